package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/scene-extractor/internal/domain"
)

// connectionTimeout is the timeout for verifying the Redis connection.
const connectionTimeout = 5 * time.Second

// ErrEmptyAddress is returned when the Redis tier is enabled without an address.
var ErrEmptyAddress = errors.New("redis address is required")

// RedisStore is the shared second tier. Results are JSON under prefix+sha256(key).
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, cfg RedisConfig) *RedisStore {
	return &RedisStore{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + hashKey(key)
}

// Get loads a result. A missing key is (nil, false, nil).
func (s *RedisStore) Get(ctx context.Context, key string) ([]domain.Description, bool, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var descs []domain.Description
	if err = json.Unmarshal(data, &descs); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	return descs, true, nil
}

// Put writes a result unless another worker already has. It reports whether
// this call stored it.
func (s *RedisStore) Put(ctx context.Context, key string, descs []domain.Description) (bool, error) {
	data, err := json.Marshal(descs)
	if err != nil {
		return false, fmt.Errorf("encode result: %w", err)
	}
	stored, err := s.client.SetNX(ctx, s.redisKey(key), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return stored, nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
