package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/sweeper"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Моки для зависимостей свипера

type MockSource struct {
	ListExpiredPendingFunc func(ctx context.Context, before time.Time, limit int) ([]models.Reservation, error)
}

func (m *MockSource) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]models.Reservation, error) {
	if m.ListExpiredPendingFunc != nil {
		return m.ListExpiredPendingFunc(ctx, before, limit)
	}
	return nil, nil
}

type MockExpirer struct {
	mu         sync.Mutex
	calls      []uuid.UUID
	ExpireFunc func(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
}

func (m *MockExpirer) Expire(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	m.mu.Lock()
	m.calls = append(m.calls, reservationID)
	m.mu.Unlock()
	if m.ExpireFunc != nil {
		return m.ExpireFunc(ctx, reservationID)
	}
	return &models.Reservation{ID: reservationID, Status: models.ReservationExpired}, nil
}

func (m *MockExpirer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func pendingRec(id uuid.UUID) models.Reservation {
	return models.Reservation{
		ID:        id,
		ProductID: uuid.New(),
		Status:    models.ReservationPending,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
}

func TestSweeper_ExpiresSelectedBatch(t *testing.T) {
	a, b := uuid.New(), uuid.New()

	var gotLimit int
	source := &MockSource{
		ListExpiredPendingFunc: func(_ context.Context, _ time.Time, limit int) ([]models.Reservation, error) {
			gotLimit = limit
			return []models.Reservation{pendingRec(a), pendingRec(b)}, nil
		},
	}
	expirer := &MockExpirer{}

	sw := sweeper.New(source, expirer, sweeper.Config{Interval: time.Minute, BatchSize: 50}, zap.NewNop())
	sw.RunOnceNow(context.Background())

	if gotLimit != 50 {
		t.Fatalf("expected batch size 50 passed to query, got %d", gotLimit)
	}
	if expirer.callCount() != 2 {
		t.Fatalf("expected 2 expire calls, got %d", expirer.callCount())
	}
}

// Ошибка по одной резервации не прерывает остальные в цикле.
func TestSweeper_PerItemFailureIsolation(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	source := &MockSource{
		ListExpiredPendingFunc: func(_ context.Context, _ time.Time, _ int) ([]models.Reservation, error) {
			return []models.Reservation{pendingRec(a), pendingRec(b), pendingRec(c)}, nil
		},
	}
	expirer := &MockExpirer{
		ExpireFunc: func(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
			if id == b {
				return nil, errors.New("storage timeout")
			}
			return &models.Reservation{ID: id, Status: models.ReservationExpired}, nil
		},
	}

	sw := sweeper.New(source, expirer, sweeper.Config{Interval: time.Minute, BatchSize: 10}, zap.NewNop())
	sw.RunOnceNow(context.Background())

	if expirer.callCount() != 3 {
		t.Fatalf("expected all 3 items attempted, got %d", expirer.callCount())
	}
}

// Ошибка самой выборки: цикл пропускается до следующего тика, без паники.
func TestSweeper_QueryFailureSkipsCycle(t *testing.T) {
	source := &MockSource{
		ListExpiredPendingFunc: func(_ context.Context, _ time.Time, _ int) ([]models.Reservation, error) {
			return nil, errors.New("connection refused")
		},
	}
	expirer := &MockExpirer{}

	sw := sweeper.New(source, expirer, sweeper.Config{Interval: time.Minute, BatchSize: 10}, zap.NewNop())
	sw.RunOnceNow(context.Background())

	if expirer.callCount() != 0 {
		t.Fatalf("expected no expire calls, got %d", expirer.callCount())
	}
}

// Stop во время стартовой задержки завершает свипер сразу,
// не дожидаясь ни задержки, ни интервала.
func TestSweeper_StopDuringStartupDelay(t *testing.T) {
	swept := make(chan struct{}, 1)
	source := &MockSource{
		ListExpiredPendingFunc: func(_ context.Context, _ time.Time, _ int) ([]models.Reservation, error) {
			select {
			case swept <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}

	sw := sweeper.New(source, &MockExpirer{}, sweeper.Config{
		Interval:     time.Hour,
		StartupDelay: time.Hour,
		BatchSize:    10,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw.Start(ctx)
	sw.Stop()

	select {
	case <-swept:
		t.Fatal("sweep must not run before startup delay elapses")
	case <-time.After(100 * time.Millisecond):
	}
}

// Нулевой интервал (например, опечатка в конфигурации) не должен ронять
// процесс паникой тикера в фоновой горутине — свипер просто не стартует.
func TestSweeper_NonPositiveIntervalDoesNotStart(t *testing.T) {
	swept := make(chan struct{}, 1)
	source := &MockSource{
		ListExpiredPendingFunc: func(_ context.Context, _ time.Time, _ int) ([]models.Reservation, error) {
			select {
			case swept <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}

	sw := sweeper.New(source, &MockExpirer{}, sweeper.Config{
		Interval:  0,
		BatchSize: 10,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw.Start(ctx)

	select {
	case <-swept:
		t.Fatal("sweeper must not run with a non-positive interval")
	case <-time.After(100 * time.Millisecond):
	}
}

// Отмена контекста также останавливает цикл.
func TestSweeper_ContextCancelStops(t *testing.T) {
	var mu sync.Mutex
	var cycles int
	source := &MockSource{
		ListExpiredPendingFunc: func(_ context.Context, _ time.Time, _ int) ([]models.Reservation, error) {
			mu.Lock()
			cycles++
			mu.Unlock()
			return nil, nil
		},
	}

	sw := sweeper.New(source, &MockExpirer{}, sweeper.Config{
		Interval:  10 * time.Millisecond,
		BatchSize: 10,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	sw.Start(ctx)

	time.Sleep(35 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	after := cycles
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	final := cycles
	mu.Unlock()

	if after == 0 {
		t.Fatal("expected at least one sweep cycle before cancel")
	}
	if final != after {
		t.Fatalf("sweeper kept running after cancel: %d -> %d", after, final)
	}
}
