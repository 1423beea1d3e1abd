package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ReservationCreatedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ProductID     uuid.UUID `json:"product_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	Quantity      int32     `json:"quantity"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReservationConfirmedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ProductID     uuid.UUID `json:"product_id"`
	OrderID       uuid.UUID `json:"order_id"`
	Quantity      int32     `json:"quantity"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

type ReservationReleasedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Quantity      int32     `json:"quantity"`
	Reason        string    `json:"reason,omitempty"`
	ReleasedAt    time.Time `json:"released_at"`
}

type ReservationExpiredEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ProductID     uuid.UUID `json:"product_id"`
	Quantity      int32     `json:"quantity"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// EventBus — порт публикации событий жизненного цикла; nil-реализация допустима,
// сервис проверяет наличие шины перед публикацией.
type EventBus interface {
	PublishReservationCreated(ctx context.Context, e ReservationCreatedEvent) error
	PublishReservationConfirmed(ctx context.Context, e ReservationConfirmedEvent) error
	PublishReservationReleased(ctx context.Context, e ReservationReleasedEvent) error
	PublishReservationExpired(ctx context.Context, e ReservationExpiredEvent) error
}
