package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reservation-service/config"
	"reservation-service/internal/cache"
	"reservation-service/internal/database"
	"reservation-service/internal/logger"
	"reservation-service/internal/producer"
	"reservation-service/internal/repository"
	"reservation-service/internal/service"
	"reservation-service/internal/sweeper"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

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

	var bus service.EventBus
	if cfg.Kafka.Enabled {
		p := producer.NewReservationEventProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer p.Close()
		bus = p
		log.Info("Kafka producer enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	var reservedCache service.ReservedCache
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSeconds)*time.Second, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rc.Close()
		reservedCache = rc
	}

	svc := service.NewReservationService(repos, bus, reservedCache, log, cfg.Reservation.DefaultTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sw := sweeper.New(repos.Reservations, svc, sweeper.Config{
		Interval:     cfg.Sweeper.Interval,
		StartupDelay: cfg.Sweeper.StartupDelay,
		BatchSize:    cfg.Sweeper.BatchSize,
	}, log)
	sw.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down reservation service...")
	sw.Stop()
	cancel()
	log.Info("Reservation service stopped gracefully")
}
