package main

import (
	"context"
	"os"
	"time"

	"reservation-service/config"
	"reservation-service/internal/database"
	"reservation-service/internal/logger"
	"reservation-service/internal/repository"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Административная очистка: жёстко удаляет терминальные резервации,
// помеченные is_removed и вышедшие за срок хранения. Штатный жизненный
// цикл записи не удаляет никогда.
func main() {
	_ = godotenv.Load()

	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}
	defer logger.Sync()

	log := logger.L()
	cfg := config.Load(log)

	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)

	ctx := context.Background()
	cutoff := time.Now().Add(-cfg.Cleanup.Retention)

	purged, err := repos.Reservations.PurgeRemoved(ctx, cutoff)
	if err != nil {
		log.Fatal("failed to purge removed reservations", zap.Error(err))
	}

	log.Info("cleanup completed successfully",
		zap.Int64("purged", purged),
		zap.Time("cutoff", cutoff))
}
