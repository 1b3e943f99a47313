package runstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/robert-malhotra/planet-overlap/internal/config"
)

// KeyPrefix namespaces run keys in Redis.
const KeyPrefix = "planet-overlap:run:"

// RedisStore keeps runs in Redis with a server-side TTL.
type RedisStore struct {
	rc  *redis.Client
	ttl time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rc *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rc: rc, ttl: ttl}
}

// OpenRedis connects using the store configuration.
func OpenRedis(cfg config.StoreConfig) *RedisStore {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisStore(rc, cfg.TTL)
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rc.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, id string, data []byte) error {
	if err := s.rc.Set(ctx, KeyPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save %s: %w", id, err)
	}
	return nil
}

// Load implements Store. Expired keys are evicted by Redis, so they report
// ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, id string) ([]byte, error) {
	data, err := s.rc.Get(ctx, KeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", id, err)
	}
	return data, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rc.Del(ctx, KeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rc.Close()
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(cfg.TTL, cfg.CleanupInterval), nil
	case "redis":
		s := OpenRedis(cfg)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
