package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps the Redis connection pool used for the duplicate-candidate
// read-through cache and the validation/routing policy cache. The delivery
// queue (internal/queue) is built on the same pool: callers hand it
// GetClient().
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies connectivity.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewFromRedisClient wraps an already-configured *redis.Client, used by
// tests against miniredis.
func NewFromRedisClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// GetClient returns the underlying Redis client.
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func duplicateCacheKey(offerID int64, key string) string {
	return fmt.Sprintf("dupcand:%d:%s", offerID, key)
}

// CacheDuplicateCandidate records the most recent lead ID seen for a
// normalized (offer_id, key) pair with a TTL well under any realistic
// window_hours, so a stale cache entry can only shorten the effective
// lookback window, never extend it.
func (c *Client) CacheDuplicateCandidate(ctx context.Context, offerID int64, key string, leadID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, duplicateCacheKey(offerID, key), leadID, ttl).Err()
}

// GetDuplicateCandidate returns the cached lead ID for (offer_id, key), if
// present.
func (c *Client) GetDuplicateCandidate(ctx context.Context, offerID int64, key string) (int64, bool, error) {
	v, err := c.rdb.Get(ctx, duplicateCacheKey(offerID, key)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func policyCacheKey(kind string, offerID int64) string {
	return fmt.Sprintf("policy:%s:%d", kind, offerID)
}

// CachePolicy stores a policy document's raw bytes for an offer.
func (c *Client) CachePolicy(ctx context.Context, kind string, offerID int64, raw []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, policyCacheKey(kind, offerID), raw, ttl).Err()
}

// GetPolicy retrieves a cached policy document's raw bytes, if present.
func (c *Client) GetPolicy(ctx context.Context, kind string, offerID int64) ([]byte, bool, error) {
	v, err := c.rdb.Get(ctx, policyCacheKey(kind, offerID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// SetIdempotencyKey stores an idempotency key with TTL. The ingestion path
// does not call it; idempotency there rests on the database insert.
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key has been seen recently.
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
