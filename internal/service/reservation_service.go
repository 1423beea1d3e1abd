package service

import (
	"context"
	"errors"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errTransitionRaced — внутренний маркер: CAS-переход не прошёл, потому что
// кто-то успел раньше. Наружу не выходит, снаружи это либо идемпотентный
// успех, либо ErrInvalidStateTransition.
var errTransitionRaced = errors.New("reservation transition raced")

type reservationService struct {
	repo       *repository.Repository
	events     EventBus      // nil — события не публикуем
	cache      ReservedCache // nil — читаем агрегаты напрямую из БД
	log        *zap.Logger
	defaultTTL time.Duration
	now        func() time.Time
}

func NewReservationService(repo *repository.Repository, events EventBus, cache ReservedCache, log *zap.Logger, defaultTTL time.Duration) *reservationService {
	return &reservationService{
		repo:       repo,
		events:     events,
		cache:      cache,
		log:        log,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (s *reservationService) Reserve(ctx context.Context, in ReserveInput) (*models.Reservation, error) {
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if in.ProductID == uuid.Nil || in.CustomerID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	p, err := s.repo.Products.GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	if !p.IsActive {
		return nil, ErrInactiveProduct
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.now()
	rec := &models.Reservation{
		ProductID:  in.ProductID,
		CustomerID: in.CustomerID,
		Quantity:   in.Quantity,
		Status:     models.ReservationPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		ok, err := tx.Stock.TryReserve(ctx, in.ProductID, in.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			inv, gerr := tx.Stock.Get(ctx, in.ProductID)
			if gerr != nil {
				return gerr
			}
			if inv == nil {
				return ErrStockNotFound
			}
			return ErrInsufficientStock
		}
		return tx.Reservations.Create(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateReserved(ctx, in.ProductID)
	if s.events != nil {
		if perr := s.events.PublishReservationCreated(ctx, ReservationCreatedEvent{
			ReservationID: rec.ID,
			ProductID:     rec.ProductID,
			CustomerID:    rec.CustomerID,
			Quantity:      rec.Quantity,
			ExpiresAt:     rec.ExpiresAt,
			CreatedAt:     rec.CreatedAt,
		}); perr != nil {
			s.log.Warn("failed to publish reservation created event",
				zap.String("reservation_id", rec.ID.String()), zap.Error(perr))
		}
	}

	return rec, nil
}

func (s *reservationService) Confirm(ctx context.Context, reservationID, orderID uuid.UUID) (*models.Reservation, error) {
	if reservationID == uuid.Nil || orderID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	rec, err := s.repo.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrReservationNotFound
	}

	if rec.Status == models.ReservationConfirmed {
		// ретрай координатора с тем же заказом — возвращаем существующую запись
		if rec.OrderID != nil && *rec.OrderID == orderID {
			return rec, nil
		}
		return nil, ErrInvalidStateTransition
	}
	if rec.Status.Terminal() {
		return nil, ErrInvalidStateTransition
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		ok, err := tx.Reservations.MarkConfirmed(ctx, reservationID, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return errTransitionRaced
		}
		ok, err = tx.Stock.CommitSale(ctx, rec.ProductID, rec.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLedgerOutOfSync
		}
		return nil
	})
	if errors.Is(err, errTransitionRaced) {
		fresh, ferr := s.repo.Reservations.GetByID(ctx, reservationID)
		if ferr != nil {
			return nil, ferr
		}
		if fresh != nil && fresh.Status == models.ReservationConfirmed &&
			fresh.OrderID != nil && *fresh.OrderID == orderID {
			return fresh, nil
		}
		return nil, ErrInvalidStateTransition
	}
	if err != nil {
		return nil, err
	}

	rec.Status = models.ReservationConfirmed
	rec.OrderID = &orderID

	s.invalidateReserved(ctx, rec.ProductID)
	if s.events != nil {
		if perr := s.events.PublishReservationConfirmed(ctx, ReservationConfirmedEvent{
			ReservationID: rec.ID,
			ProductID:     rec.ProductID,
			OrderID:       orderID,
			Quantity:      rec.Quantity,
			ConfirmedAt:   s.now(),
		}); perr != nil {
			s.log.Warn("failed to publish reservation confirmed event",
				zap.String("reservation_id", rec.ID.String()), zap.Error(perr))
		}
	}

	return rec, nil
}

func (s *reservationService) Release(ctx context.Context, reservationID uuid.UUID, reason string) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	rec, err := s.repo.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrReservationNotFound
	}

	if rec.Status == models.ReservationReleased {
		// повторный Release — идемпотентный no-op
		return rec, nil
	}
	if rec.Status.Terminal() {
		return nil, ErrInvalidStateTransition
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		ok, err := tx.Reservations.MarkReleased(ctx, reservationID)
		if err != nil {
			return err
		}
		if !ok {
			return errTransitionRaced
		}
		ok, err = tx.Stock.Release(ctx, rec.ProductID, rec.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLedgerOutOfSync
		}
		return nil
	})
	if errors.Is(err, errTransitionRaced) {
		fresh, ferr := s.repo.Reservations.GetByID(ctx, reservationID)
		if ferr != nil {
			return nil, ferr
		}
		if fresh != nil && fresh.Status == models.ReservationReleased {
			return fresh, nil
		}
		return nil, ErrInvalidStateTransition
	}
	if err != nil {
		return nil, err
	}

	rec.Status = models.ReservationReleased

	s.invalidateReserved(ctx, rec.ProductID)
	if s.events != nil {
		if perr := s.events.PublishReservationReleased(ctx, ReservationReleasedEvent{
			ReservationID: rec.ID,
			ProductID:     rec.ProductID,
			Quantity:      rec.Quantity,
			Reason:        reason,
			ReleasedAt:    s.now(),
		}); perr != nil {
			s.log.Warn("failed to publish reservation released event",
				zap.String("reservation_id", rec.ID.String()), zap.Error(perr))
		}
	}

	return rec, nil
}

// Expire переводит просроченную PENDING-резервацию в EXPIRED и возвращает
// резерв на склад. Уже переведённая кем-то резервация — не ошибка: свипер
// мог выбрать её до конкурентного Confirm/Release.
func (s *reservationService) Expire(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	rec, err := s.repo.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrReservationNotFound
	}
	if rec.Status != models.ReservationPending {
		return rec, nil
	}

	err = s.repo.WithTx(func(tx *repository.Repository) error {
		ok, err := tx.Reservations.MarkExpired(ctx, reservationID)
		if err != nil {
			return err
		}
		if !ok {
			return errTransitionRaced
		}
		ok, err = tx.Stock.Release(ctx, rec.ProductID, rec.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLedgerOutOfSync
		}
		return nil
	})
	if errors.Is(err, errTransitionRaced) {
		return s.repo.Reservations.GetByID(ctx, reservationID)
	}
	if err != nil {
		return nil, err
	}

	rec.Status = models.ReservationExpired

	s.invalidateReserved(ctx, rec.ProductID)
	if s.events != nil {
		if perr := s.events.PublishReservationExpired(ctx, ReservationExpiredEvent{
			ReservationID: rec.ID,
			ProductID:     rec.ProductID,
			Quantity:      rec.Quantity,
			ExpiredAt:     s.now(),
		}); perr != nil {
			s.log.Warn("failed to publish reservation expired event",
				zap.String("reservation_id", rec.ID.String()), zap.Error(perr))
		}
	}

	return rec, nil
}

func (s *reservationService) Get(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	rec, err := s.repo.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrReservationNotFound
	}
	return rec, nil
}

func (s *reservationService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	return s.repo.Reservations.ListByOrder(ctx, orderID)
}

func (s *reservationService) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Reservation, error) {
	return s.repo.Reservations.ListByCustomer(ctx, customerID)
}

func (s *reservationService) GetReservedQuantity(ctx context.Context, productID uuid.UUID) (int64, error) {
	rows, err := s.repo.Reservations.ReservedByProducts(ctx, []uuid.UUID{productID})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Quantity, nil
}

func (s *reservationService) GetReservedQuantitiesBulk(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	missing := productIDs
	if s.cache != nil {
		cached, miss, err := s.cache.GetReserved(ctx, productIDs)
		if err != nil {
			s.log.Warn("reserved cache read failed", zap.Error(err))
			miss = productIDs
		} else {
			for id, q := range cached {
				out[id] = q
			}
		}
		missing = miss
	}

	if len(missing) == 0 {
		return out, nil
	}

	rows, err := s.repo.Reservations.ReservedByProducts(ctx, missing)
	if err != nil {
		return nil, err
	}

	fetched := make(map[uuid.UUID]int64, len(missing))
	for _, id := range missing {
		fetched[id] = 0
	}
	for _, row := range rows {
		fetched[row.ProductID] = row.Quantity
	}
	for id, q := range fetched {
		out[id] = q
	}

	if s.cache != nil {
		if cerr := s.cache.SetReserved(ctx, fetched); cerr != nil {
			s.log.Warn("reserved cache write failed", zap.Error(cerr))
		}
	}

	return out, nil
}

func (s *reservationService) CountActiveByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	return s.repo.Reservations.CountActiveByCustomer(ctx, customerID)
}

func (s *reservationService) GetStock(ctx context.Context, productID uuid.UUID) (*StockInfo, error) {
	inv, err := s.repo.Stock.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrStockNotFound
	}
	return stockInfo(inv), nil
}

func (s *reservationService) SetOnHand(ctx context.Context, productID uuid.UUID, onHand int32) (*StockInfo, error) {
	if onHand < 0 {
		return nil, ErrInvalidArgument
	}
	ok, err := s.repo.Stock.SetOnHand(ctx, productID, onHand)
	if err != nil {
		return nil, err
	}
	if !ok {
		inv, gerr := s.repo.Stock.Get(ctx, productID)
		if gerr != nil {
			return nil, gerr
		}
		if inv == nil {
			return nil, ErrStockNotFound
		}
		// остаток нельзя опустить ниже зарезервированного
		return nil, ErrStockConflict
	}

	inv, err := s.repo.Stock.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return stockInfo(inv), nil
}

func (s *reservationService) AdjustOnHand(ctx context.Context, productID uuid.UUID, delta int32) (*StockInfo, error) {
	ok, err := s.repo.Stock.AdjustOnHand(ctx, productID, delta)
	if err != nil {
		return nil, err
	}
	if !ok {
		inv, gerr := s.repo.Stock.Get(ctx, productID)
		if gerr != nil {
			return nil, gerr
		}
		if inv == nil {
			return nil, ErrStockNotFound
		}
		return nil, ErrStockConflict
	}

	inv, err := s.repo.Stock.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return stockInfo(inv), nil
}

func (s *reservationService) RegisterProduct(ctx context.Context, p *models.Product) error {
	if p == nil {
		return ErrInvalidArgument
	}
	return s.repo.WithTx(func(tx *repository.Repository) error {
		if err := tx.Products.Create(ctx, p); err != nil {
			return err
		}
		// 1:1 строка леджера
		return tx.Stock.EnsureRow(ctx, p.ID)
	})
}

func (s *reservationService) BatchGetProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	return s.repo.Products.BatchGetByIDs(ctx, ids)
}

// SetProductActive снимает товар с продажи или возвращает его: новые Reserve
// по неактивному товару отклоняются, уже существующие резервации живут
// своим жизненным циклом.
func (s *reservationService) SetProductActive(ctx context.Context, productID uuid.UUID, active bool) (*models.Product, error) {
	p, err := s.repo.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProductNotFound
	}
	if p.IsActive == active {
		return p, nil
	}
	if err := s.repo.Products.UpdateFields(ctx, productID, map[string]any{"is_active": active}); err != nil {
		return nil, err
	}
	return s.repo.Products.GetByID(ctx, productID)
}

func (s *reservationService) Remove(ctx context.Context, reservationID uuid.UUID, reason string) (*models.Reservation, error) {
	actor, ok := ActorIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	rec, err := s.repo.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrReservationNotFound
	}
	if !rec.Status.Terminal() {
		return nil, ErrReservationActive
	}
	if rec.IsRemoved {
		return rec, nil
	}

	if _, err := s.repo.Reservations.MarkRemoved(ctx, reservationID, actor, reason, s.now()); err != nil {
		return nil, err
	}
	return s.repo.Reservations.GetByID(ctx, reservationID)
}

func (s *reservationService) invalidateReserved(ctx context.Context, productID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateReserved(ctx, productID); err != nil {
		s.log.Warn("reserved cache invalidation failed",
			zap.String("product_id", productID.String()), zap.Error(err))
	}
}

func stockInfo(inv *models.Inventory) *StockInfo {
	return &StockInfo{
		ProductID: inv.ProductID,
		OnHand:    inv.OnHand,
		Reserved:  inv.Reserved,
		Available: inv.Available(),
	}
}
