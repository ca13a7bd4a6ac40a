// Package redis provides a thin wrapper around go-redis/v9 with connection
// pooling and the primitives needed for short-lived distributed locks:
// SET NX with expiry and a compare-and-delete release.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/config"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only while it still holds ARGV[1], so an
// expired lock re-acquired by another owner is never released by mistake.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// swapScript replaces KEYS[1] with ARGV[2] when it is absent or still holds
// ARGV[1], resetting its expiry to ARGV[3] milliseconds (0 keeps no expiry).
var swapScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == false or cur == ARGV[1] then
	if tonumber(ARGV[3]) > 0 then
		redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	else
		redis.call("SET", KEYS[1], ARGV[2])
	end
	return 1
end
return 0
`)

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the string value for the given key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// SetNX stores value under key only if the key does not exist yet. It
// reports whether the value was stored.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// DelIfEquals removes key when its current value equals value. It reports
// whether a key was removed.
func (c *Client) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	n, err := releaseScript.Run(ctx, c.rdb, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("releasing %s: %w", key, err)
	}
	return n == 1, nil
}

// SwapIfEquals stores value under key when the key is missing or holds
// expected. It reports whether the value was stored.
func (c *Client) SwapIfEquals(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	n, err := swapScript.Run(ctx, c.rdb, []string{key}, expected, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("swapping %s: %w", key, err)
	}
	return n == 1, nil
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
