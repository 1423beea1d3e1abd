package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"reservation-service/internal/migrate"
	"reservation-service/internal/models"
	"reservation-service/internal/repository"
	"reservation-service/internal/testutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.SetupTestPostgres(t)
	if err := migrate.MigrateReservationDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, onHand int32) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	products := repository.NewProductRepo(db)
	stock := repository.NewStockRepo(db)

	p := &models.Product{SKU: "SKU-001", Name: "Test Product", IsActive: true}
	if err := products.Create(ctx, p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := stock.EnsureRow(ctx, p.ID); err != nil {
		t.Fatalf("ensure stock row: %v", err)
	}
	if onHand > 0 {
		ok, err := stock.SetOnHand(ctx, p.ID, onHand)
		if err != nil || !ok {
			t.Fatalf("set on_hand: ok=%v err=%v", ok, err)
		}
	}
	return p.ID
}

func TestStockRepo_ReserveReleaseCommit(t *testing.T) {
	db := setupDB(t)
	stock := repository.NewStockRepo(db)
	ctx := context.Background()

	productID := seedProduct(t, db, 5)

	// резерв в пределах остатка
	ok, err := stock.TryReserve(ctx, productID, 3)
	if err != nil || !ok {
		t.Fatalf("TryReserve(3): ok=%v err=%v", ok, err)
	}

	// осталось 2 свободных — ещё 3 не влезает, и это не ошибка
	ok, err = stock.TryReserve(ctx, productID, 3)
	if err != nil {
		t.Fatalf("TryReserve over: %v", err)
	}
	if ok {
		t.Fatal("expected TryReserve to fail with 2 available")
	}

	inv, err := stock.Get(ctx, productID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inv.OnHand != 5 || inv.Reserved != 3 || inv.Available() != 2 {
		t.Fatalf("counters mismatch: %+v", inv)
	}

	// возврат резерва
	ok, err = stock.Release(ctx, productID, 3)
	if err != nil || !ok {
		t.Fatalf("Release: ok=%v err=%v", ok, err)
	}

	// подтверждённая продажа списывает и резерв, и остаток
	if ok, err = stock.TryReserve(ctx, productID, 5); err != nil || !ok {
		t.Fatalf("TryReserve(5): ok=%v err=%v", ok, err)
	}
	if ok, err = stock.CommitSale(ctx, productID, 5); err != nil || !ok {
		t.Fatalf("CommitSale: ok=%v err=%v", ok, err)
	}

	inv, _ = stock.Get(ctx, productID)
	if inv.OnHand != 0 || inv.Reserved != 0 {
		t.Fatalf("after commit: %+v", inv)
	}

	// повторный CommitSale не проходит — резерва больше нет
	ok, err = stock.CommitSale(ctx, productID, 5)
	if err != nil {
		t.Fatalf("CommitSale second: %v", err)
	}
	if ok {
		t.Fatal("expected second CommitSale to be a no-op")
	}
}

func TestStockRepo_SetOnHandBelowReserved(t *testing.T) {
	db := setupDB(t)
	stock := repository.NewStockRepo(db)
	ctx := context.Background()

	productID := seedProduct(t, db, 10)

	if ok, err := stock.TryReserve(ctx, productID, 6); err != nil || !ok {
		t.Fatalf("TryReserve: ok=%v err=%v", ok, err)
	}

	// нельзя опустить остаток ниже зарезервированного
	ok, err := stock.SetOnHand(ctx, productID, 5)
	if err != nil {
		t.Fatalf("SetOnHand: %v", err)
	}
	if ok {
		t.Fatal("expected SetOnHand(5) to be rejected with reserved=6")
	}

	ok, err = stock.AdjustOnHand(ctx, productID, -5)
	if err != nil {
		t.Fatalf("AdjustOnHand: %v", err)
	}
	if ok {
		t.Fatal("expected AdjustOnHand(-5) to be rejected with reserved=6")
	}

	if ok, err = stock.AdjustOnHand(ctx, productID, -4); err != nil || !ok {
		t.Fatalf("AdjustOnHand(-4): ok=%v err=%v", ok, err)
	}
}

func TestStockRepo_ConcurrentTryReserve(t *testing.T) {
	db := setupDB(t)
	stock := repository.NewStockRepo(db)
	ctx := context.Background()

	// on_hand=10, 8 горутин по 3 штуки: пройти должны ровно floor(10/3)=3
	productID := seedProduct(t, db, 10)

	const workers = 8
	results := make(chan bool, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := stock.TryReserve(ctx, productID, 3)
			if err != nil {
				t.Errorf("TryReserve: %v", err)
				results <- false
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for ok := range results {
		if ok {
			successes++
		}
	}
	if successes != 3 {
		t.Fatalf("expected exactly 3 successful reserves, got %d", successes)
	}

	inv, err := stock.Get(ctx, productID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inv.Reserved != 9 || inv.Reserved > inv.OnHand {
		t.Fatalf("counters after concurrent reserve: %+v", inv)
	}
}

func TestReservationRepo_CreateAndMarks(t *testing.T) {
	db := setupDB(t)
	reservations := repository.NewReservationRepo(db)
	ctx := context.Background()

	productID := seedProduct(t, db, 10)
	customerID := uuid.New()
	orderID := uuid.New()

	now := time.Now()
	rec := &models.Reservation{
		ProductID:  productID,
		CustomerID: customerID,
		Quantity:   2,
		Status:     models.ReservationPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Minute),
	}
	if err := reservations.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}

	got, err := reservations.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Status != models.ReservationPending || got.Quantity != 2 {
		t.Fatalf("GetByID mismatch: %+v", got)
	}
	if got.OrderID != nil {
		t.Fatalf("order_id must be empty until confirm: %+v", got)
	}

	// CAS-переход: выигрывает первый
	ok, err := reservations.MarkConfirmed(ctx, rec.ID, orderID)
	if err != nil || !ok {
		t.Fatalf("MarkConfirmed: ok=%v err=%v", ok, err)
	}
	ok, err = reservations.MarkReleased(ctx, rec.ID)
	if err != nil {
		t.Fatalf("MarkReleased after confirm: %v", err)
	}
	if ok {
		t.Fatal("expected MarkReleased to lose against terminal CONFIRMED")
	}
	ok, err = reservations.MarkExpired(ctx, rec.ID)
	if err != nil {
		t.Fatalf("MarkExpired after confirm: %v", err)
	}
	if ok {
		t.Fatal("expected MarkExpired to lose against terminal CONFIRMED")
	}

	confirmed, _ := reservations.GetByID(ctx, rec.ID)
	if confirmed.Status != models.ReservationConfirmed {
		t.Fatalf("status mismatch: %+v", confirmed)
	}
	if confirmed.OrderID == nil || *confirmed.OrderID != orderID {
		t.Fatalf("order_id mismatch: %+v", confirmed)
	}

	byOrder, err := reservations.ListByOrder(ctx, orderID)
	if err != nil || len(byOrder) != 1 {
		t.Fatalf("ListByOrder: len=%d err=%v", len(byOrder), err)
	}
	byCustomer, err := reservations.ListByCustomer(ctx, customerID)
	if err != nil || len(byCustomer) != 1 {
		t.Fatalf("ListByCustomer: len=%d err=%v", len(byCustomer), err)
	}
	byProduct, err := reservations.ListByProduct(ctx, productID)
	if err != nil || len(byProduct) != 1 {
		t.Fatalf("ListByProduct: len=%d err=%v", len(byProduct), err)
	}
	byStatus, err := reservations.ListByStatus(ctx, models.ReservationConfirmed, 0)
	if err != nil || len(byStatus) != 1 {
		t.Fatalf("ListByStatus: len=%d err=%v", len(byStatus), err)
	}
}

func TestReservationRepo_ExpiredPendingScan(t *testing.T) {
	db := setupDB(t)
	reservations := repository.NewReservationRepo(db)
	ctx := context.Background()

	productID := seedProduct(t, db, 100)
	now := time.Now()

	mk := func(expiresAt time.Time, status models.ReservationStatus) *models.Reservation {
		rec := &models.Reservation{
			ProductID:  productID,
			CustomerID: uuid.New(),
			Quantity:   1,
			Status:     models.ReservationPending,
			CreatedAt:  now.Add(-time.Hour),
			ExpiresAt:  expiresAt,
		}
		if err := reservations.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if status != models.ReservationPending {
			if err := db.Model(&models.Reservation{}).Where("id = ?", rec.ID).Update("status", status).Error; err != nil {
				t.Fatalf("force status: %v", err)
			}
		}
		return rec
	}

	first := mk(now.Add(-2*time.Minute), models.ReservationPending)
	second := mk(now.Add(-time.Minute), models.ReservationPending)
	mk(now.Add(time.Hour), models.ReservationPending)             // ещё не истекла
	mk(now.Add(-time.Minute), models.ReservationConfirmed)        // терминальная, не попадает
	mk(now.Add(-30*time.Second), models.ReservationReleased)      // терминальная, не попадает

	expired, err := reservations.ListExpiredPending(ctx, now, 0)
	if err != nil {
		t.Fatalf("ListExpiredPending: %v", err)
	}
	if len(expired) != 2 {
		t.Fatalf("expected 2 expired pending, got %d", len(expired))
	}
	// порядок — от самой старой
	if expired[0].ID != first.ID || expired[1].ID != second.ID {
		t.Fatalf("unexpected order: %v %v", expired[0].ID, expired[1].ID)
	}

	limited, err := reservations.ListExpiredPending(ctx, now, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("ListExpiredPending limit: len=%d err=%v", len(limited), err)
	}
}

func TestReservationRepo_ReservedByProducts(t *testing.T) {
	db := setupDB(t)
	reservations := repository.NewReservationRepo(db)
	ctx := context.Background()

	productA := seedProduct(t, db, 100)
	productB := seedProduct2(t, db, "SKU-002", 100)
	customerID := uuid.New()
	now := time.Now()

	create := func(productID uuid.UUID, qty int32, status models.ReservationStatus) {
		rec := &models.Reservation{
			ProductID:  productID,
			CustomerID: customerID,
			Quantity:   qty,
			Status:     models.ReservationPending,
			CreatedAt:  now,
			ExpiresAt:  now.Add(time.Minute),
		}
		if err := reservations.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if status != models.ReservationPending {
			if err := db.Model(&models.Reservation{}).Where("id = ?", rec.ID).Update("status", status).Error; err != nil {
				t.Fatalf("force status: %v", err)
			}
		}
	}

	create(productA, 2, models.ReservationPending)
	create(productA, 3, models.ReservationConfirmed) // списана через CommitSale, в reserved не числится
	create(productA, 7, models.ReservationReleased)  // терминальная, не считается
	create(productB, 4, models.ReservationExpired)   // терминальная, не считается

	rows, err := reservations.ReservedByProducts(ctx, []uuid.UUID{productA, productB})
	if err != nil {
		t.Fatalf("ReservedByProducts: %v", err)
	}

	byProduct := map[uuid.UUID]int64{}
	for _, row := range rows {
		byProduct[row.ProductID] = row.Quantity
	}
	// агрегат повторяет счётчик reserved леджера: только PENDING
	if byProduct[productA] != 2 {
		t.Fatalf("expected 2 reserved for product A, got %d", byProduct[productA])
	}
	if _, ok := byProduct[productB]; ok {
		t.Fatalf("product B has no pending reservations, got %d", byProduct[productB])
	}

	cnt, err := reservations.CountActiveByCustomer(ctx, customerID)
	if err != nil {
		t.Fatalf("CountActiveByCustomer: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("expected 1 pending reservation for customer, got %d", cnt)
	}
}

func TestReservationRepo_RemoveAndPurge(t *testing.T) {
	db := setupDB(t)
	reservations := repository.NewReservationRepo(db)
	ctx := context.Background()

	productID := seedProduct(t, db, 10)
	operator := uuid.New()
	now := time.Now()

	rec := &models.Reservation{
		ProductID:  productID,
		CustomerID: uuid.New(),
		Quantity:   1,
		Status:     models.ReservationPending,
		CreatedAt:  now.Add(-48 * time.Hour),
		ExpiresAt:  now.Add(-47 * time.Hour),
	}
	if err := reservations.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, err := reservations.MarkExpired(ctx, rec.ID); err != nil || !ok {
		t.Fatalf("MarkExpired: ok=%v err=%v", ok, err)
	}

	removedAt := now.Add(-36 * time.Hour)
	ok, err := reservations.MarkRemoved(ctx, rec.ID, operator, "test purge", removedAt)
	if err != nil || !ok {
		t.Fatalf("MarkRemoved: ok=%v err=%v", ok, err)
	}

	// повторная пометка — no-op
	ok, err = reservations.MarkRemoved(ctx, rec.ID, operator, "again", now)
	if err != nil {
		t.Fatalf("MarkRemoved second: %v", err)
	}
	if ok {
		t.Fatal("expected second MarkRemoved to be a no-op")
	}

	got, _ := reservations.GetByID(ctx, rec.ID)
	if !got.IsRemoved || got.RemovedBy == nil || *got.RemovedBy != operator || got.RemovedReason != "test purge" {
		t.Fatalf("removal audit mismatch: %+v", got)
	}
	// статус пометка не трогает
	if got.Status != models.ReservationExpired {
		t.Fatalf("status must stay EXPIRED: %+v", got)
	}

	// за пределами retention — удаляется
	purged, err := reservations.PurgeRemoved(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeRemoved: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}

	gone, err := reservations.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID after purge: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected record to be hard-deleted: %+v", gone)
	}
}

func seedProduct2(t *testing.T, db *gorm.DB, sku string, onHand int32) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	products := repository.NewProductRepo(db)
	stock := repository.NewStockRepo(db)

	p := &models.Product{SKU: sku, Name: "Test Product " + sku, IsActive: true}
	if err := products.Create(ctx, p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := stock.EnsureRow(ctx, p.ID); err != nil {
		t.Fatalf("ensure stock row: %v", err)
	}
	if ok, err := stock.SetOnHand(ctx, p.ID, onHand); err != nil || !ok {
		t.Fatalf("set on_hand: ok=%v err=%v", ok, err)
	}
	return p.ID
}
