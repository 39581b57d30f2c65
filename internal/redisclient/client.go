package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
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

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func availabilityKey(projectID, productName string) string {
	if productName == "" {
		return fmt.Sprintf("availability:%s", projectID)
	}
	return fmt.Sprintf("availability:%s:%s", projectID, productName)
}

// GetCachedAvailability returns the cached advisory count for a pool.
// The second return value reports a cache hit. The cache is only ever a
// short-lived snapshot of the database count, never a live counter.
func (c *Client) GetCachedAvailability(ctx context.Context, projectID, productName string) (int, bool, error) {
	val, err := c.rdb.Get(ctx, availabilityKey(projectID, productName)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt availability cache entry: %w", err)
	}
	return count, true, nil
}

// SetCachedAvailability stores the advisory count with a short TTL
func (c *Client) SetCachedAvailability(ctx context.Context, projectID, productName string, count int, ttl time.Duration) error {
	return c.rdb.Set(ctx, availabilityKey(projectID, productName), count, ttl).Err()
}

// InvalidateAvailability drops cached counts for a pool after a claim or import
func (c *Client) InvalidateAvailability(ctx context.Context, projectID string) error {
	iter := c.rdb.Scan(ctx, 0, fmt.Sprintf("availability:%s*", projectID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// IsEventSeen reports whether an event already reached a persisted outcome.
// Read-only fast path in front of the processed_events check; it must never
// be written before the outcome exists, or a transient failure would make
// the redelivered event look like a duplicate.
func (c *Client) IsEventSeen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, fmt.Sprintf("event:%s", eventID)).Result()
	return n > 0, err
}

// MarkEventSeen records an event ID with SETNX and reports whether this
// marker was the first. Written only after the event's outcome is persisted;
// the processed_events table remains the durable idempotency record.
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("event:%s", eventID), "1", ttl).Result()
}
