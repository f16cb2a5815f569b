package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agrimate/internal/config"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "agrimate:"

// Redis stores records as plain string keys without expiry.
type Redis struct {
	inner *redis.Client
}

// NewRedis creates the redis client from app config and pings it.
func NewRedis(cfg *config.Config) (*Redis, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{inner: client}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	if r == nil || r.inner == nil {
		return "", errors.New("redis client not initialized")
	}
	v, err := r.inner.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if r == nil || r.inner == nil {
		return errors.New("redis client not initialized")
	}
	return r.inner.Set(ctx, redisKeyPrefix+key, value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if r == nil || r.inner == nil {
		return errors.New("redis client not initialized")
	}
	return r.inner.Del(ctx, redisKeyPrefix+key).Err()
}

// Close closes client.
func (r *Redis) Close() error {
	if r == nil || r.inner == nil {
		return nil
	}
	return r.inner.Close()
}

// Raw exposes underlying go-redis client.
func (r *Redis) Raw() *redis.Client {
	if r == nil {
		return nil
	}
	return r.inner
}
