package service

import (
	"context"
	"time"

	"reservation-service/internal/models"

	"github.com/google/uuid"
)

type ReserveInput struct {
	ProductID  uuid.UUID
	CustomerID uuid.UUID
	Quantity   int32
	TTL        time.Duration // <= 0 — берём TTL по умолчанию из конфигурации
}

type StockInfo struct {
	ProductID uuid.UUID
	OnHand    int32
	Reserved  int32
	Available int32
}

// ReservedCache — порт кэша агрегатов reserved-количества для дашбордов;
// допускается отставание от незавершённых записей.
type ReservedCache interface {
	GetReserved(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int64, []uuid.UUID, error)
	SetReserved(ctx context.Context, quantities map[uuid.UUID]int64) error
	InvalidateReserved(ctx context.Context, productIDs ...uuid.UUID) error
}

type ReservationService interface {
	// Жизненный цикл: вызывается координатором заказов
	Reserve(ctx context.Context, in ReserveInput) (*models.Reservation, error)
	Confirm(ctx context.Context, reservationID, orderID uuid.UUID) (*models.Reservation, error)
	Release(ctx context.Context, reservationID uuid.UUID, reason string) (*models.Reservation, error)
	// Expire вызывает только свипер; добровольная отмена идёт через Release
	Expire(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)

	Get(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Reservation, error)

	// Read-only агрегации для дашбордов/аналитики
	GetReservedQuantity(ctx context.Context, productID uuid.UUID) (int64, error)
	GetReservedQuantitiesBulk(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	CountActiveByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)

	// stock (админ/операционный контур леджера)
	GetStock(ctx context.Context, productID uuid.UUID) (*StockInfo, error)
	SetOnHand(ctx context.Context, productID uuid.UUID, onHand int32) (*StockInfo, error)
	AdjustOnHand(ctx context.Context, productID uuid.UUID, delta int32) (*StockInfo, error)
	RegisterProduct(ctx context.Context, p *models.Product) error
	BatchGetProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	SetProductActive(ctx context.Context, productID uuid.UUID, active bool) (*models.Product, error)

	// Административная пометка удаления терминальной резервации
	Remove(ctx context.Context, reservationID uuid.UUID, reason string) (*models.Reservation, error)
}
