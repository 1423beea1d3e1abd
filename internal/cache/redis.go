package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisClient(addr, password string, db int, ttl time.Duration, log *zap.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis connected successfully", zap.String("addr", addr))

	return &RedisClient{
		client: rdb,
		ttl:    ttl,
		log:    log,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func reservedKey(productID uuid.UUID) string {
	return fmt.Sprintf("reserved:%s", productID)
}

// GetReserved возвращает закэшированные агрегаты и список промахов.
func (r *RedisClient) GetReserved(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int64, []uuid.UUID, error) {
	if len(productIDs) == 0 {
		return map[uuid.UUID]int64{}, nil, nil
	}

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = reservedKey(id)
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}

	hits := make(map[uuid.UUID]int64, len(productIDs))
	var misses []uuid.UUID
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			misses = append(misses, productIDs[i])
			continue
		}
		n, perr := strconv.ParseInt(s, 10, 64)
		if perr != nil {
			misses = append(misses, productIDs[i])
			continue
		}
		hits[productIDs[i]] = n
	}
	return hits, misses, nil
}

func (r *RedisClient) SetReserved(ctx context.Context, quantities map[uuid.UUID]int64) error {
	pipe := r.client.Pipeline()
	for id, q := range quantities {
		pipe.Set(ctx, reservedKey(id), strconv.FormatInt(q, 10), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisClient) InvalidateReserved(ctx context.Context, productIDs ...uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = reservedKey(id)
	}
	return r.client.Del(ctx, keys...).Err()
}
