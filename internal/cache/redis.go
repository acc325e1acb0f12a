package cache

import (
	"context"
	"errors"
	"time"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a byte-level store shared between tabula processes. The
// metadata registry keeps normalized schemas in it so that every replica
// serves the same schema for a table.
type RedisStore struct {
	client *redis.Client
	config RedisConfig
}

// RedisConfig holds Redis-specific configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to every key.
	Prefix string

	// DefaultTTL applies when Set is called with ttl == 0. Zero keeps
	// entries until they are deleted.
	DefaultTTL time.Duration
}

// DefaultRedisConfig returns a local Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "tabula:",
	}
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, mapRedisError(err, "redis ping failed")
	}
	return &RedisStore{client: client, config: config}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, config RedisConfig) *RedisStore {
	return &RedisStore{client: client, config: config}
}

// Get returns the value under key, or an ErrKindNotFound error on a miss.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.config.Prefix+key).Bytes()
	if err != nil {
		return nil, mapRedisError(err, "redis get "+key)
	}
	return value, nil
}

// Set stores value under key with the given ttl (DefaultTTL when zero).
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}
	if err := r.client.Set(ctx, r.config.Prefix+key, value, ttl).Err(); err != nil {
		return mapRedisError(err, "redis set "+key)
	}
	return nil
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.config.Prefix+key).Err(); err != nil {
		return mapRedisError(err, "redis delete "+key)
	}
	return nil
}

// Clear removes every key under the configured prefix.
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.config.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return mapRedisError(err, "redis clear")
		}
	}
	if err := iter.Err(); err != nil {
		return mapRedisError(err, "redis clear")
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func mapRedisError(err error, msg string) error {
	switch {
	case errors.Is(err, redis.Nil):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
