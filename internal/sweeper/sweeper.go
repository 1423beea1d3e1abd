package sweeper

import (
	"context"
	"time"

	"reservation-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	Interval     time.Duration
	StartupDelay time.Duration // пауза перед первым циклом, чтобы сервис успел подняться
	BatchSize    int
}

// ReservationSource — выборка просроченных PENDING-резерваций из хранилища.
type ReservationSource interface {
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]models.Reservation, error)
}

// Expirer — переход резервации в EXPIRED; выполняет его менеджер резерваций.
type Expirer interface {
	Expire(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
}

type Sweeper struct {
	svc    Expirer
	store  ReservationSource
	cfg    Config
	log    *zap.Logger
	stopCh chan struct{}
	now    func() time.Time
}

func New(store ReservationSource, svc Expirer, cfg Config, log *zap.Logger) *Sweeper {
	return &Sweeper{
		svc:    svc,
		store:  store,
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start запускает фоновый цикл экспирации. Неположительный интервал —
// ошибка конфигурации: цикл не стартует вовсе, вместо паники тикера
// в фоновой горутине.
func (s *Sweeper) Start(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		s.log.Error("expiration sweeper not started: interval must be positive",
			zap.Duration("interval", s.cfg.Interval))
		return
	}

	s.log.Info("starting expiration sweeper",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("startup_delay", s.cfg.StartupDelay),
		zap.Int("batch_size", s.cfg.BatchSize))

	go s.run(ctx)
}

// Stop останавливает свипер; и стартовая задержка, и ожидание между
// циклами прерываются сразу.
func (s *Sweeper) Stop() {
	s.log.Info("stopping expiration sweeper")
	close(s.stopCh)
}

func (s *Sweeper) run(ctx context.Context) {
	if s.cfg.StartupDelay > 0 {
		startup := time.NewTimer(s.cfg.StartupDelay)
		defer startup.Stop()
		select {
		case <-startup.C:
		case <-s.stopCh:
			s.log.Info("expiration sweeper stopped before first sweep")
			return
		case <-ctx.Done():
			s.log.Info("expiration sweeper cancelled before first sweep")
			return
		}
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopCh:
			s.log.Info("expiration sweeper stopped")
			return
		case <-ctx.Done():
			s.log.Info("expiration sweeper cancelled")
			return
		}
	}
}

// sweep — один цикл: выбрать просроченные PENDING и погасить каждую.
// Ошибка по одной резервации не прерывает остальные; ошибка выборки
// откладывает работу до следующего тика.
func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.store.ListExpiredPending(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		s.log.Error("expiration sweep query failed", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		return
	}

	var done int
	for _, rec := range expired {
		if _, err := s.svc.Expire(ctx, rec.ID); err != nil {
			s.log.Error("failed to expire reservation",
				zap.String("reservation_id", rec.ID.String()),
				zap.String("product_id", rec.ProductID.String()),
				zap.Error(err))
			continue
		}
		done++
	}

	s.log.Info("expiration sweep completed",
		zap.Int("selected", len(expired)),
		zap.Int("expired", done))
}

// RunOnceNow выполняет один цикл немедленно (для тестов и ручного запуска)
func (s *Sweeper) RunOnceNow(ctx context.Context) {
	s.sweep(ctx)
}
