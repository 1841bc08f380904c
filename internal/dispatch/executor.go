package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/ratelimit"
	"webhook-dispatcher/internal/stats"
	"webhook-dispatcher/internal/storage"
	"webhook-dispatcher/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const userAgent = "webhook-dispatcher/1.0"

// httpError marks a non-2xx response. For retry purposes it is handled the
// same way as a transport error.
type httpError struct {
	status int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http error: status %d", e.status)
}

// Executor performs full delivery sequences: rate-limit check, signed HTTP
// attempts, backoff between failures, and terminal bookkeeping. Failures are
// absorbed here and surface only as log rows and stats, never as errors to the
// dispatcher.
type Executor struct {
	store   storage.Store
	stats   *stats.Aggregator
	limiter *ratelimit.Limiter
	client  *http.Client
	logger  *zap.Logger
}

func NewExecutor(store storage.Store, agg *stats.Aggregator, limiter *ratelimit.Limiter, timeout time.Duration, logger *zap.Logger) *Executor {
	return &Executor{
		store:   store,
		stats:   agg,
		limiter: limiter,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// attemptResult captures one HTTP attempt. err is nil on success.
type attemptResult struct {
	statusCode *int
	response   interface{}
	duration   time.Duration
	err        error
}

// Deliver runs one delivery sequence to its terminal state. Attempts within
// the sequence are strictly sequential: each backoff depends on the previous
// outcome.
func (e *Executor) Deliver(ctx context.Context, webhook *models.WebhookConfig, event *models.DomainEvent) {
	decision, err := e.limiter.Consume(ctx, webhook.ID)
	if err != nil {
		// Fail open: a limiter store outage must not stop deliveries.
		e.logger.Error("Rate limiter unavailable, delivering anyway",
			zap.Error(err),
			zap.String("webhook_id", webhook.ID))
	} else if !decision.Allowed {
		// Backpressure, not failure: no log row, no retry.
		metrics.RateLimitDropped.WithLabelValues(webhook.ID).Inc()
		e.logger.Warn("Rate limit exceeded for webhook, dropping delivery",
			zap.String("webhook_id", webhook.ID),
			zap.String("event_id", event.ID),
			zap.Duration("retry_after", decision.RetryAfter))
		return
	}

	seq := newSequence(webhook.MaxRetries, webhook.BaseDelay())
	for {
		attempt := seq.Attempt()
		result := e.attempt(ctx, webhook, event, attempt)

		metrics.DeliveryDuration.WithLabelValues(event.Type).Observe(result.duration.Seconds())
		if attempt > 1 {
			metrics.DeliveryRetries.WithLabelValues(event.Type).Inc()
		}

		if result.err == nil {
			seq.Outcome(true)
			e.conclude(ctx, webhook, event, attempt, result)
			return
		}

		e.logger.Debug("Delivery attempt failed",
			zap.Error(result.err),
			zap.String("webhook_id", webhook.ID),
			zap.String("event_id", event.ID),
			zap.Int("attempt", attempt))

		seq.Outcome(false)
		if seq.Exhausted() {
			e.conclude(ctx, webhook, event, attempt, result)
			return
		}

		// Timer-based wait; other in-flight deliveries keep running.
		timer := time.NewTimer(seq.Delay())
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.Warn("Delivery sequence cancelled",
				zap.String("webhook_id", webhook.ID),
				zap.String("event_id", event.ID))
			return
		case <-timer.C:
		}
	}
}

// attempt issues a single signed HTTP POST and interprets the response.
func (e *Executor) attempt(ctx context.Context, webhook *models.WebhookConfig, event *models.DomainEvent, attempt int) attemptResult {
	start := time.Now()

	signature, err := Sign(event, webhook.Secret, start.Unix())
	if err != nil {
		return attemptResult{duration: time.Since(start), err: err}
	}

	deliveryID := uuid.NewString()
	body, err := json.Marshal(struct {
		*models.DomainEvent
		DeliveryID string `json:"deliveryId"`
	}{event, deliveryID})
	if err != nil {
		return attemptResult{duration: time.Since(start), err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return attemptResult{duration: time.Since(start), err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-ID", webhook.ID)
	req.Header.Set("X-Delivery-ID", deliveryID)
	req.Header.Set("X-Event-Type", event.Type)
	req.Header.Set("X-Attempt", strconv.Itoa(attempt))
	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return attemptResult{duration: time.Since(start), err: err}
	}
	defer resp.Body.Close()

	responseData := parseResponseBody(resp)
	status := resp.StatusCode
	result := attemptResult{
		statusCode: &status,
		response:   responseData,
		duration:   time.Since(start),
	}
	if status < 200 || status >= 300 {
		result.err = &httpError{status: status}
	}
	return result
}

// conclude writes the single terminal log row for the sequence and folds the
// outcome into the rolling stats. Bookkeeping failures are logged, never
// propagated.
func (e *Executor) conclude(ctx context.Context, webhook *models.WebhookConfig, event *models.DomainEvent, attempt int, result attemptResult) {
	success := result.err == nil

	row := &models.DeliveryAttempt{
		ID:         uuid.NewString(),
		WebhookID:  webhook.ID,
		EventID:    event.ID,
		Success:    success,
		StatusCode: result.statusCode,
		Response:   result.response,
		DurationMS: result.duration.Milliseconds(),
		Attempt:    attempt,
		CreatedAt:  time.Now().UTC(),
	}
	status := "success"
	if !success {
		row.Error = result.err.Error()
		status = "failure"
	}

	if err := e.store.InsertDelivery(ctx, row); err != nil {
		e.logger.Error("Failed to persist delivery attempt", zap.Error(err))
	}
	if err := e.stats.Record(ctx, webhook.ID, success, result.duration); err != nil {
		e.logger.Error("Failed to update webhook stats", zap.Error(err))
	}
	metrics.DeliveriesTotal.WithLabelValues(event.Type, status).Inc()

	if success {
		if err := e.store.TouchLastCalled(ctx, webhook.ID, time.Now().UTC()); err != nil {
			e.logger.Error("Failed to update last_called_at", zap.Error(err))
		}
		e.logger.Info("Webhook delivered",
			zap.String("webhook_id", webhook.ID),
			zap.String("event_id", event.ID),
			zap.Int("attempt", attempt),
			zap.Duration("duration", result.duration))
		return
	}

	e.logger.Warn("Webhook delivery exhausted retries",
		zap.String("webhook_id", webhook.ID),
		zap.String("event_id", event.ID),
		zap.Int("attempt", attempt),
		zap.String("error", row.Error))
}

// parseResponseBody captures the response body, decoded as JSON when the
// Content-Type says so, raw text otherwise.
func parseResponseBody(resp *http.Response) interface{} {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return nil
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var out interface{}
		if err := json.Unmarshal(data, &out); err == nil {
			return out
		}
	}
	return string(data)
}
