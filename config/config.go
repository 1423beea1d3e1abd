package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"reservation-service/internal/database"

	"go.uber.org/zap"
)

type Config struct {
	DB          DB
	Reservation Reservation
	Sweeper     Sweeper
	Redis       Redis
	Kafka       Kafka
	Cleanup     Cleanup
}

type DB struct {
	database.Config
}

type Reservation struct {
	DefaultTTL time.Duration
}

type Sweeper struct {
	Interval     time.Duration
	StartupDelay time.Duration
	BatchSize    int
}

type Redis struct {
	Enabled    bool
	Addr       string
	Password   string
	DB         int
	TTLSeconds int
}

type Kafka struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type Cleanup struct {
	Retention time.Duration // сколько держим удалённые терминальные резервации
}

func Load(log *zap.Logger) *Config {
	return &Config{
		DB: DB{
			Config: database.Config{
				Host:     getEnv("DB_HOST", log),
				Port:     getEnv("DB_PORT", log),
				User:     getEnv("DB_USER", log),
				Password: getEnv("DB_PASSWORD", log),
				Name:     getEnv("DB_NAME", log),
				SSLMode:  getEnv("DB_SSLMODE", log),
			},
		},
		Reservation: Reservation{
			DefaultTTL: mustPositiveDuration("RESERVATION_TTL", log),
		},
		Sweeper: Sweeper{
			Interval:     mustPositiveDuration("SWEEP_INTERVAL", log),
			StartupDelay: parseDurationWithDays(getEnv("SWEEP_STARTUP_DELAY", log)),
			BatchSize:    atoiDefault(getEnv("SWEEP_BATCH_SIZE", log), 100),
		},
		Redis: Redis{
			Enabled:    os.Getenv("REDIS_ENABLED") == "true",
			Addr:       os.Getenv("REDIS_ADDR"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         atoiDefault(os.Getenv("REDIS_DB"), 0),
			TTLSeconds: atoiDefault(os.Getenv("CACHE_TTL_SECONDS"), 30),
		},
		Kafka: Kafka{
			Enabled: os.Getenv("KAFKA_ENABLED") == "true",
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   os.Getenv("KAFKA_RESERVATION_TOPIC"),
		},
		Cleanup: Cleanup{
			Retention: parseDurationWithDays(envDefault("CLEANUP_RETENTION", "30d")),
		},
	}
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

// mustPositiveDuration — как getEnv, но дополнительно валидирует значение:
// опечатка вида "5min" тихо парсится в 0, а нулевой интервал уронил бы
// тикер свипера уже в фоновой горутине. Падаем сразу, на старте.
func mustPositiveDuration(key string, log *zap.Logger) time.Duration {
	d := parseDurationWithDays(getEnv(key, log))
	if d <= 0 {
		log.Error("Переменная окружения должна быть положительной длительностью", zap.String("key", key))
		panic("invalid duration in environment variable: " + key)
	}
	return d
}

func envDefault(key, def string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return def
}

func parseDurationWithDays(s string) time.Duration {
	if strings.HasSuffix(s, "d") {
		daysStr := strings.TrimSuffix(s, "d")
		days, err := time.ParseDuration(daysStr + "h")
		if err != nil {
			log.Printf("Ошибка парсинга длительности: %v", err)
			return 0
		}
		return time.Duration(24) * days
	}

	duration, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return duration
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
