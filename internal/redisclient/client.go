package redisclient

import (
	"context"
	"fmt"
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

// ClaimWebhookEvent claims a gateway event id for processing. Returns
// false when the event was already claimed (a redelivery). This is a
// best-effort fast path; the database unique constraints remain the
// source of truth when Redis is unavailable.
func (c *Client) ClaimWebhookEvent(ctx context.Context, gatewayName, eventID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("webhook:%s:%s", gatewayName, eventID)
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseWebhookEvent drops a claim so the gateway's retry can reprocess
// an event whose apply failed.
func (c *Client) ReleaseWebhookEvent(ctx context.Context, gatewayName, eventID string) error {
	key := fmt.Sprintf("webhook:%s:%s", gatewayName, eventID)
	return c.rdb.Del(ctx, key).Err()
}

// GuardPaymentIntent takes a short-lived per-order guard so concurrent
// create-intent requests for the same order collapse to one gateway call.
func (c *Client) GuardPaymentIntent(ctx context.Context, orderID int64, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("intent:%d", orderID)
	return c.rdb.SetNX(ctx, key, "1", ttl).Result()
}

// ReleasePaymentIntentGuard releases the per-order intent guard
func (c *Client) ReleasePaymentIntentGuard(ctx context.Context, orderID int64) error {
	return c.rdb.Del(ctx, fmt.Sprintf("intent:%d", orderID)).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
