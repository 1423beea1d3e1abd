package models

import (
	"time"

	"github.com/google/uuid"
)

// Product — справочная запись каталога; каталожный CRUD живёт в другом сервисе,
// здесь нужны только существование и флаг активности.
type Product struct {
	ID       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SKU      string    `gorm:"type:text;not null"`
	Name     string    `gorm:"type:text;not null"`
	IsActive bool      `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Product) TableName() string {
	return "products"
}

// Inventory — счётчики склада (леджер). available = on_hand - reserved,
// считается на чтении и никогда не хранится.
type Inventory struct {
	ProductID uuid.UUID `gorm:"type:uuid;primaryKey"`
	OnHand    int32     `gorm:"not null;default:0"`
	Reserved  int32     `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Inventory) TableName() string {
	return "inventories"
}

func (i Inventory) Available() int32 {
	return i.OnHand - i.Reserved
}

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Terminal — из этих статусов переходов нет.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationConfirmed || s == ReservationReleased || s == ReservationExpired
}

type Reservation struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_reservations_product_status"`
	CustomerID uuid.UUID  `gorm:"type:uuid;not null;index"`
	OrderID    *uuid.UUID `gorm:"type:uuid;index"` // появляется только при подтверждении
	Quantity   int32      `gorm:"not null"`

	Status ReservationStatus `gorm:"type:text;not null;default:'PENDING';index:idx_reservations_product_status"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	ExpiresAt time.Time `gorm:"not null;index"`

	// Административное удаление — ортогонально жизненному циклу,
	// штатные переходы его не трогают.
	IsRemoved     bool       `gorm:"not null;default:false"`
	RemovedAt     *time.Time
	RemovedBy     *uuid.UUID `gorm:"type:uuid"`
	RemovedReason string     `gorm:"type:text"`
}

func (Reservation) TableName() string {
	return "reservations"
}
