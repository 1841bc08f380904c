package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "webhook_limit:"

// Decision is the outcome of a limiter check. Exhaustion is a normal branch,
// not an error: callers skip the delivery and move on.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter enforces a fixed per-webhook budget over a rolling window, backed by
// a shared Redis counter so every dispatcher process draws from the same
// budget.
type Limiter struct {
	client *redis.Client
	points int64
	window time.Duration
}

// New returns a limiter allowing points tokens per window per webhook id.
func New(client *redis.Client, points int64, window time.Duration) *Limiter {
	return &Limiter{client: client, points: points, window: window}
}

// NewDefault applies the global delivery policy: 60 tokens per 60 seconds.
func NewDefault(client *redis.Client) *Limiter {
	return New(client, 60, 60*time.Second)
}

// Consume takes one token for the webhook. INCR is atomic, so concurrent
// consumers across processes see a consistent count; the window starts when
// the first token of a fresh counter is taken.
func (l *Limiter) Consume(ctx context.Context, webhookID string) (Decision, error) {
	key := keyPrefix + webhookID

	used, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limiter store failed: %w", err)
	}
	if used == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limiter store failed: %w", err)
		}
	}
	if used > l.points {
		ttl, err := l.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: l.points - used}, nil
}
