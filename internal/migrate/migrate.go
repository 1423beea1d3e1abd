package migrate

import (
	"context"
	"reservation-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto
	CreateChecks           bool // CHECK-constraint'ы
	CreateIndexes          bool // индексы и UNIQUE
	CreateFKsViaSQL        bool // FK через Exec после AutoMigrate
	CreateUpdatedAtTrigger bool // триггеры updated_at
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateFKsViaSQL:        true,
		CreateUpdatedAtTrigger: true,
	}
}

func MigrateReservationDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы резервирования")

	// Расширения
	if opt.CreateExtensions {
		log.Info("Создание расширений PostgreSQL")
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("pgcrypto error", zap.Error(err))
			return err
		}
		log.Info("Расширения созданы")
	}

	// Таблицы
	log.Info("Создание таблиц: products, inventories, reservations")
	if err := db.AutoMigrate(&models.Product{}, &models.Inventory{}, &models.Reservation{}); err != nil {
		log.Error("AutoMigrate error", zap.Error(err))
		return err
	}
	log.Info("Таблицы созданы")

	// Триггеры updated_at
	if opt.CreateUpdatedAtTrigger {
		log.Info("Создание триггеров updated_at")
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_products_updated ON products;
CREATE TRIGGER trg_products_updated BEFORE UPDATE ON products
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_inventories_updated ON inventories;
CREATE TRIGGER trg_inventories_updated BEFORE UPDATE ON inventories
FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`).Error; err != nil {
			log.Error("triggers error", zap.Error(err))
			return err
		}
		log.Info("Триггеры созданы")
	}

	// CHECK-и
	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")

		// Счётчики леджера: reserved никогда не превышает on_hand —
		// страховка инварианта на уровне схемы
		if err := db.Exec(`
ALTER TABLE inventories
	DROP CONSTRAINT IF EXISTS chk_inventories_counters,
	ADD CONSTRAINT chk_inventories_counters
	CHECK (on_hand >= 0 AND reserved >= 0 AND reserved <= on_hand);
`).Error; err != nil {
			log.Error("chk inventories", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE reservations
	DROP CONSTRAINT IF EXISTS chk_reservations_quantity_gt_zero,
	ADD CONSTRAINT chk_reservations_quantity_gt_zero
	CHECK (quantity > 0);
`).Error; err != nil {
			log.Error("chk reservations.qty", zap.Error(err))
			return err
		}

		// Допустимые статусы
		if err := db.Exec(`
ALTER TABLE reservations
	DROP CONSTRAINT IF EXISTS chk_reservations_status_allowed,
	ADD CONSTRAINT chk_reservations_status_allowed
	CHECK (status IN ('PENDING','CONFIRMED','RELEASED','EXPIRED'));
`).Error; err != nil {
			log.Error("chk reservations.status", zap.Error(err))
			return err
		}

		// order_id обязателен для CONFIRMED
		if err := db.Exec(`
ALTER TABLE reservations
	DROP CONSTRAINT IF EXISTS chk_reservations_confirmed_order,
	ADD CONSTRAINT chk_reservations_confirmed_order
	CHECK (status <> 'CONFIRMED' OR order_id IS NOT NULL);
`).Error; err != nil {
			log.Error("chk reservations.confirmed_order", zap.Error(err))
			return err
		}

		log.Info("CHECK-и созданы")
	}

	// Индексы
	if opt.CreateIndexes {
		log.Info("Создание индексов")

		// Частичный индекс для свипера: только PENDING по expires_at
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_reservations_pending_expires
ON reservations (expires_at)
WHERE status = 'PENDING';
`).Error; err != nil {
			log.Error("ix reservations pending_expires", zap.Error(err))
			return err
		}

		// Агрегации по товару в разрезе статуса
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_reservations_product_status
ON reservations (product_id, status);
`).Error; err != nil {
			log.Error("ix reservations product_status", zap.Error(err))
			return err
		}

		// Активные резервации покупателя (антихординг на стороне вызывающего)
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS ix_reservations_customer_status
ON reservations (customer_id, status);
`).Error; err != nil {
			log.Error("ix reservations customer_status", zap.Error(err))
			return err
		}

		log.Info("Индексы созданы")
	}

	// Внешние ключи
	if opt.CreateFKsViaSQL {
		log.Info("Создание внешних ключей")

		// inventories.product_id -> products.id (CASCADE)
		if err := db.Exec(`
ALTER TABLE inventories
  DROP CONSTRAINT IF EXISTS fk_inventories_product,
  ADD CONSTRAINT fk_inventories_product
    FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE;
`).Error; err != nil {
			log.Error("fk inventories.product_id", zap.Error(err))
			return err
		}

		// reservations.product_id -> products.id (RESTRICT: резервации — аудит)
		if err := db.Exec(`
ALTER TABLE reservations
  DROP CONSTRAINT IF EXISTS fk_reservations_product,
  ADD CONSTRAINT fk_reservations_product
    FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE RESTRICT;
`).Error; err != nil {
			log.Error("fk reservations.product_id", zap.Error(err))
			return err
		}

		log.Info("Внешние ключи созданы")
	}

	log.Info("Миграция базы резервирования успешно завершена")
	return nil
}
