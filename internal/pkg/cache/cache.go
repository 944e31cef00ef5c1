package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Options configures the redis connection.
type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Redis wraps a go-redis client. It backs the signing-key cache and the
// reconciliation run-lock.
type Redis struct {
	client *redis.Client
}

// New connects to redis. A failed ping is logged, not fatal: callers degrade
// to uncached behavior while redis is unavailable.
func New(ctx context.Context, opts Options) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to redis at %s: %v", client.Options().Addr, err)
	} else {
		log.Infof("[Cache] Successfully connected to redis: %s", pong)
	}
	return &Redis{client: client}
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get returns the cached bytes for key. Misses and redis errors both report false.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warnf("[Cache] Get %s failed: %v", key, err)
		}
		return nil, false
	}
	return val, true
}

// Set stores value under key for ttl. Failures are logged only.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Warnf("[Cache] Set %s failed: %v", key, err)
	}
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
