package repository

import (
	"context"
	"errors"
	"time"

	"reservation-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReservedQty — агрегат по товару для дашбордов / low-stock запросов.
type ReservedQty struct {
	ProductID uuid.UUID
	Quantity  int64
}

type ReservationRepo interface {
	Create(ctx context.Context, r *models.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)

	// Маркировки статуса — CAS по status='PENDING': вернувшееся false означает,
	// что переход уже выполнил кто-то другой (первый победил)
	MarkConfirmed(ctx context.Context, id, orderID uuid.UUID) (bool, error)
	MarkReleased(ctx context.Context, id uuid.UUID) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (bool, error)

	MarkRemoved(ctx context.Context, id, removedBy uuid.UUID, reason string, at time.Time) (bool, error)

	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Reservation, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Reservation, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error)
	ListByStatus(ctx context.Context, status models.ReservationStatus, limit int) ([]models.Reservation, error)

	// Выборка для свипера: PENDING с истёкшим expires_at
	ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]models.Reservation, error)

	// Σ quantity по PENDING-резервациям: только они числятся в счётчике
	// reserved леджера — CONFIRMED уже списаны через CommitSale
	ReservedByProducts(ctx context.Context, productIDs []uuid.UUID) ([]ReservedQty, error)
	CountActiveByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)

	// Жёсткое удаление для административной очистки: только терминальные,
	// помеченные is_removed и старше cutoff
	PurgeRemoved(ctx context.Context, cutoff time.Time) (int64, error)
}

type reservationRepo struct{ db *gorm.DB }

func NewReservationRepo(db *gorm.DB) ReservationRepo { return &reservationRepo{db: db} }

func (r *reservationRepo) Create(ctx context.Context, rec *models.Reservation) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *reservationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var rec models.Reservation
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &rec, err
}

func (r *reservationRepo) MarkConfirmed(ctx context.Context, id, orderID uuid.UUID) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, models.ReservationPending).
		Updates(map[string]any{
			"status":   models.ReservationConfirmed,
			"order_id": orderID,
		})
	return tx.RowsAffected > 0, tx.Error
}

func (r *reservationRepo) MarkReleased(ctx context.Context, id uuid.UUID) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, models.ReservationPending).
		Update("status", models.ReservationReleased)
	return tx.RowsAffected > 0, tx.Error
}

func (r *reservationRepo) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, models.ReservationPending).
		Update("status", models.ReservationExpired)
	return tx.RowsAffected > 0, tx.Error
}

func (r *reservationRepo) MarkRemoved(ctx context.Context, id, removedBy uuid.UUID, reason string, at time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND is_removed = false", id).
		Updates(map[string]any{
			"is_removed":     true,
			"removed_at":     at,
			"removed_by":     removedBy,
			"removed_reason": reason,
		})
	return tx.RowsAffected > 0, tx.Error
}

func (r *reservationRepo) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.Reservation, error) {
	var list []models.Reservation
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *reservationRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Reservation, error) {
	var list []models.Reservation
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *reservationRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Reservation, error) {
	var list []models.Reservation
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *reservationRepo) ListByStatus(ctx context.Context, status models.ReservationStatus, limit int) ([]models.Reservation, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var list []models.Reservation
	err := q.Find(&list).Error
	return list, err
}

func (r *reservationRepo) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]models.Reservation, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.ReservationPending, before).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var list []models.Reservation
	err := q.Find(&list).Error
	return list, err
}

func (r *reservationRepo) ReservedByProducts(ctx context.Context, productIDs []uuid.UUID) ([]ReservedQty, error) {
	if len(productIDs) == 0 {
		return []ReservedQty{}, nil
	}
	var rows []ReservedQty
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Select("product_id, COALESCE(SUM(quantity), 0) AS quantity").
		Where("product_id IN ? AND status = ?", productIDs, models.ReservationPending).
		Group("product_id").
		Scan(&rows).Error
	return rows, err
}

func (r *reservationRepo) CountActiveByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	// «активные» для антихординга — удерживаемые корзины, то есть PENDING;
	// подтверждённые — уже покупки, их не ограничиваем
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("customer_id = ? AND status = ?", customerID, models.ReservationPending).
		Count(&cnt).Error
	return cnt, err
}

func (r *reservationRepo) PurgeRemoved(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("is_removed = true AND status IN ? AND removed_at < ?",
			[]models.ReservationStatus{models.ReservationConfirmed, models.ReservationReleased, models.ReservationExpired},
			cutoff).
		Delete(&models.Reservation{})
	return tx.RowsAffected, tx.Error
}
