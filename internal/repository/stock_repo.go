package repository

import (
	"context"
	"errors"
	"reservation-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockRepo interface {
	Get(ctx context.Context, productID uuid.UUID) (*models.Inventory, error)
	EnsureRow(ctx context.Context, productID uuid.UUID) error
	SetOnHand(ctx context.Context, productID uuid.UUID, onHand int32) (bool, error)
	AdjustOnHand(ctx context.Context, productID uuid.UUID, delta int32) (bool, error)

	// Атомарные примитивы леджера — единственная точка сериализации по товару.
	// TryReserve: if on_hand - reserved >= qty then reserved += qty
	TryReserve(ctx context.Context, productID uuid.UUID, qty int32) (bool, error)
	// Release: reserved -= qty (вызывающий гарантирует, что qty было зарезервировано)
	Release(ctx context.Context, productID uuid.UUID, qty int32) (bool, error)
	// CommitSale: on_hand -= qty, reserved -= qty — подтверждённая продажа
	// окончательно списывает единицы со склада
	CommitSale(ctx context.Context, productID uuid.UUID, qty int32) (bool, error)
}

type stockRepo struct{ db *gorm.DB }

func NewStockRepo(db *gorm.DB) StockRepo { return &stockRepo{db: db} }

func (r *stockRepo) Get(ctx context.Context, productID uuid.UUID) (*models.Inventory, error) {
	var inv models.Inventory
	err := r.db.WithContext(ctx).First(&inv, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &inv, err
}

func (r *stockRepo) EnsureRow(ctx context.Context, productID uuid.UUID) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Inventory{ProductID: productID}).Error
}

func (r *stockRepo) SetOnHand(ctx context.Context, productID uuid.UUID, onHand int32) (bool, error) {
	// нельзя опустить on_hand ниже уже зарезервированного
	tx := r.db.WithContext(ctx).Exec(`
UPDATE inventories
SET on_hand = @n,
    updated_at = now()
WHERE product_id = @pid
  AND reserved <= @n
`, map[string]any{
		"pid": productID,
		"n":   onHand,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *stockRepo) AdjustOnHand(ctx context.Context, productID uuid.UUID, delta int32) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE inventories
SET on_hand = on_hand + @delta,
    updated_at = now()
WHERE product_id = @pid
  AND on_hand + @delta >= reserved
`, map[string]any{
		"pid":   productID,
		"delta": delta,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *stockRepo) TryReserve(ctx context.Context, productID uuid.UUID, qty int32) (bool, error) {
	// атомарно: reserved += qty, только если хватает свободного остатка;
	// RowsAffected == 0 — штатный out-of-stock, не ошибка
	tx := r.db.WithContext(ctx).Exec(`
UPDATE inventories
SET reserved  = reserved + @q,
    updated_at = now()
WHERE product_id = @pid
  AND on_hand - reserved >= @q
`, map[string]any{
		"pid": productID,
		"q":   qty,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *stockRepo) Release(ctx context.Context, productID uuid.UUID, qty int32) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE inventories
SET reserved  = reserved - @q,
    updated_at = now()
WHERE product_id = @pid
  AND reserved >= @q
`, map[string]any{
		"pid": productID,
		"q":   qty,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *stockRepo) CommitSale(ctx context.Context, productID uuid.UUID, qty int32) (bool, error) {
	// единицы уходят и из резерва, и с физического остатка одновременно
	tx := r.db.WithContext(ctx).Exec(`
UPDATE inventories
SET on_hand   = on_hand  - @q,
    reserved  = reserved - @q,
    updated_at = now()
WHERE product_id = @pid
  AND reserved >= @q
  AND on_hand  >= @q
`, map[string]any{
		"pid": productID,
		"q":   qty,
	})
	return tx.RowsAffected > 0, tx.Error
}
