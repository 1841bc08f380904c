package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"webhook-dispatcher/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	webhookKeyPrefix = "webhook:"
	statsKeyPrefix   = "webhook_stats:"
)

// Cache is the fast-path configuration cache. It is a derived read
// optimization over the persisted store, never the source of truth: writers
// update both, and on process restart it is rebuilt from enabled configs.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing client. Used by tests running miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Client exposes the underlying connection for components that need atomic
// counter semantics (rate limiter, stats) on the same store.
func (c *Cache) Client() *redis.Client {
	return c.client
}

func webhookKey(id string) string { return webhookKeyPrefix + id }

// SetWebhook writes a fast-path entry for an enabled webhook.
func (c *Cache) SetWebhook(ctx context.Context, entry *models.CachedWebhook) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook entry: %w", err)
	}
	return c.client.Set(ctx, webhookKey(entry.ID), data, c.ttl).Err()
}

// GetWebhook returns the cached entry, or nil on a miss.
func (c *Cache) GetWebhook(ctx context.Context, id string) (*models.CachedWebhook, error) {
	data, err := c.client.Get(ctx, webhookKey(id)).Result()
	if err == redis.Nil {
		return nil, nil // Cache miss
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry models.CachedWebhook
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		// If unmarshal fails, delete corrupt data
		c.client.Del(ctx, webhookKey(id))
		return nil, fmt.Errorf("failed to unmarshal webhook entry: %w", err)
	}
	return &entry, nil
}

// DeleteWebhook evicts the fast-path entry. Disabled and deleted webhooks must
// never be matched by the dispatcher.
func (c *Cache) DeleteWebhook(ctx context.Context, id string) error {
	return c.client.Del(ctx, webhookKey(id)).Err()
}

// PurgeStats drops the rolling stats for a deleted webhook.
func (c *Cache) PurgeStats(ctx context.Context, id string) error {
	key := statsKeyPrefix + id
	return c.client.Del(ctx, key, key+":durations").Err()
}

// WarmUp rebuilds the fast-path cache from the given enabled configs. Called
// once at process start.
func (c *Cache) WarmUp(ctx context.Context, configs []*models.WebhookConfig) error {
	for _, w := range configs {
		if !w.Enabled {
			continue
		}
		if err := c.SetWebhook(ctx, w.CacheEntry()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
