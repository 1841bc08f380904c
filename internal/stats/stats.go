package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"webhook-dispatcher/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix  = "webhook_stats:"
	windowSize = 100
)

// Aggregator keeps rolling per-webhook delivery statistics in Redis. All
// updates use atomic store-level operations so multiple dispatcher processes
// can share one set of counters without application locks.
type Aggregator struct {
	client *redis.Client
}

func NewAggregator(client *redis.Client) *Aggregator {
	return &Aggregator{client: client}
}

func statsKey(webhookID string) string     { return keyPrefix + webhookID }
func durationsKey(webhookID string) string { return statsKey(webhookID) + ":durations" }

// Record folds one terminal delivery outcome into the aggregate. Successful
// durations are pushed to the front of a rolling window that never exceeds
// 100 entries.
func (a *Aggregator) Record(ctx context.Context, webhookID string, success bool, duration time.Duration) error {
	key := statsKey(webhookID)
	durationMS := duration.Milliseconds()

	pipe := a.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "total_calls", 1)
	if success {
		pipe.HIncrBy(ctx, key, "successes", 1)
	} else {
		pipe.HIncrBy(ctx, key, "failures", 1)
	}
	pipe.HSet(ctx, key, "last_duration", durationMS, "last_call", time.Now().UnixMilli())
	if success {
		pipe.LPush(ctx, durationsKey(webhookID), durationMS)
		pipe.LTrim(ctx, durationsKey(webhookID), 0, windowSize-1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record webhook stats: %w", err)
	}
	return nil
}

// Read returns the current aggregate, zeroed if nothing was recorded yet.
// It never fails on absence.
func (a *Aggregator) Read(ctx context.Context, webhookID string) (*models.WebhookStats, error) {
	fields, err := a.client.HGetAll(ctx, statsKey(webhookID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook stats: %w", err)
	}

	stats := &models.WebhookStats{
		TotalCalls:     parseInt(fields["total_calls"]),
		Successes:      parseInt(fields["successes"]),
		Failures:       parseInt(fields["failures"]),
		LastDurationMS: parseInt(fields["last_duration"]),
		LastCall:       parseInt(fields["last_call"]),
	}

	durations, err := a.client.LRange(ctx, durationsKey(webhookID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read duration window: %w", err)
	}
	if len(durations) > 0 {
		var sum int64
		for _, d := range durations {
			sum += parseInt(d)
		}
		stats.AverageDuration = float64(sum) / float64(len(durations))
	}

	return stats, nil
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
