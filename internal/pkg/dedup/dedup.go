// Package dedup guards mutating requests against double submission using
// short-lived Redis keys.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTimeout = 5 * time.Second
	defaultTTL     = 10 * time.Minute
)

// Config captures the settings for the Redis connection.
type Config struct {
	Addr    string
	DB      int
	TTL     time.Duration
	Timeout time.Duration
}

// Connect initialises a Redis client and validates connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// Checker claims request keys. A nil Checker, or one without a client,
// accepts every request.
// Key format: dedup:<scope>:<user id>:<request id>
type Checker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewChecker creates a Checker wrapping client.
func NewChecker(client *redis.Client, ttl time.Duration) *Checker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Checker{client: client, ttl: ttl}
}

// Enabled reports whether claims are backed by Redis.
func (d *Checker) Enabled() bool {
	return d != nil && d.client != nil
}

// Claim records the request and reports whether it is the first one seen
// within the TTL. Empty request ids are never de-duplicated.
func (d *Checker) Claim(ctx context.Context, scope, userID, requestID string) (bool, error) {
	if !d.Enabled() || requestID == "" {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, Key(scope, userID, requestID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

// Release drops a claim so the request may be retried, e.g. after it failed.
func (d *Checker) Release(ctx context.Context, scope, userID, requestID string) error {
	if !d.Enabled() || requestID == "" {
		return nil
	}
	if err := d.client.Del(ctx, Key(scope, userID, requestID)).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

// Ping checks the Redis connection. A disabled checker is always healthy.
func (d *Checker) Ping(ctx context.Context) error {
	if !d.Enabled() {
		return nil
	}
	return d.client.Ping(ctx).Err()
}

// Key builds the Redis key for a request.
func Key(scope, userID, requestID string) string {
	return fmt.Sprintf("dedup:%s:%s:%s", scope, userID, requestID)
}
