package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"webhook-dispatcher/internal/cache"
	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/stats"
	"webhook-dispatcher/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Deliverer runs one delivery sequence; the registry uses it for ping and
// manual retry, which flow through the same delivery path as ordinary events.
type Deliverer interface {
	Deliver(ctx context.Context, webhook *models.WebhookConfig, event *models.DomainEvent)
}

// Defaults are the process-wide delivery settings applied to new
// registrations.
type Defaults struct {
	MaxRetries   int
	RetryDelayMS int64
}

// Registry owns webhook configuration: CRUD against the persistent store with
// a write-through fast-path cache, stats enrichment, and the delivery-history
// view.
type Registry struct {
	store     storage.Store
	cache     *cache.Cache
	stats     *stats.Aggregator
	deliverer Deliverer
	defaults  Defaults
	logger    *zap.Logger
}

func New(store storage.Store, c *cache.Cache, agg *stats.Aggregator, deliverer Deliverer, defaults Defaults, logger *zap.Logger) *Registry {
	return &Registry{
		store:     store,
		cache:     c,
		stats:     agg,
		deliverer: deliverer,
		defaults:  defaults,
		logger:    logger,
	}
}

// RegisterInput is the payload for creating a webhook.
type RegisterInput struct {
	URL         string   `json:"url" binding:"required"`
	Secret      string   `json:"secret"`
	Events      []string `json:"events"`
	Description string   `json:"description"`
}

// UpdateInput mutates any field except the ID. Nil pointers leave the field
// untouched.
type UpdateInput struct {
	URL          *string  `json:"url"`
	Secret       *string  `json:"secret"`
	Events       []string `json:"events"`
	Description  *string  `json:"description"`
	Enabled      *bool    `json:"enabled"`
	MaxRetries   *int     `json:"maxRetries"`
	RetryDelayMS *int64   `json:"retryDelay"`
}

// Details is a config enriched with its rolling stats.
type Details struct {
	*models.WebhookConfig
	Stats *models.WebhookStats `json:"stats"`
}

// Register creates a webhook with defaults events=["*"] and enabled=true, and
// writes through to the fast-path cache immediately.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*Details, error) {
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	events := in.Events
	if len(events) == 0 {
		events = []string{models.EventTypeWildcard}
	}
	if err := validateEvents(events); err != nil {
		return nil, err
	}

	w := &models.WebhookConfig{
		ID:           uuid.NewString(),
		URL:          in.URL,
		Secret:       in.Secret,
		Events:       events,
		Description:  in.Description,
		Enabled:      true,
		MaxRetries:   r.defaults.MaxRetries,
		RetryDelayMS: r.defaults.RetryDelayMS,
		CreatedAt:    time.Now().UTC(),
	}

	if err := r.store.InsertWebhook(ctx, w); err != nil {
		return nil, err
	}
	if err := r.cache.SetWebhook(ctx, w.CacheEntry()); err != nil {
		r.logger.Error("Failed to cache new webhook", zap.Error(err), zap.String("webhook_id", w.ID))
	}

	r.logger.Info("Webhook registered",
		zap.String("webhook_id", w.ID),
		zap.String("url", w.URL),
		zap.Strings("events", w.Events))
	return r.withStats(ctx, w)
}

// Get returns a webhook with computed stats, or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Details, error) {
	w, err := r.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.withStats(ctx, w)
}

// List returns all webhooks, optionally filtered by enabled state, each
// enriched with stats.
func (r *Registry) List(ctx context.Context, active *bool) ([]*Details, error) {
	hooks, err := r.store.ListWebhooks(ctx, active)
	if err != nil {
		return nil, err
	}
	out := make([]*Details, 0, len(hooks))
	for _, w := range hooks {
		d, err := r.withStats(ctx, w)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Update mutates a webhook and re-syncs the cache entry: refreshed while
// enabled, evicted once disabled.
func (r *Registry) Update(ctx context.Context, id string, in UpdateInput) (*Details, error) {
	w, err := r.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		if err := validateURL(*in.URL); err != nil {
			return nil, err
		}
		w.URL = *in.URL
	}
	if in.Secret != nil {
		w.Secret = *in.Secret
	}
	if in.Events != nil {
		if len(in.Events) == 0 {
			return nil, &models.ValidationError{Field: "events", Reason: "must not be empty"}
		}
		if err := validateEvents(in.Events); err != nil {
			return nil, err
		}
		w.Events = in.Events
	}
	if in.Description != nil {
		w.Description = *in.Description
	}
	if in.Enabled != nil {
		w.Enabled = *in.Enabled
	}
	if in.MaxRetries != nil {
		if *in.MaxRetries < 0 {
			return nil, &models.ValidationError{Field: "maxRetries", Reason: "must not be negative"}
		}
		w.MaxRetries = *in.MaxRetries
	}
	if in.RetryDelayMS != nil {
		if *in.RetryDelayMS <= 0 {
			return nil, &models.ValidationError{Field: "retryDelay", Reason: "must be positive"}
		}
		w.RetryDelayMS = *in.RetryDelayMS
	}

	if err := r.store.UpdateWebhook(ctx, w); err != nil {
		return nil, err
	}

	if w.Enabled {
		if err := r.cache.SetWebhook(ctx, w.CacheEntry()); err != nil {
			r.logger.Error("Failed to refresh webhook cache", zap.Error(err), zap.String("webhook_id", id))
		}
	} else {
		if err := r.cache.DeleteWebhook(ctx, id); err != nil {
			r.logger.Error("Failed to evict disabled webhook from cache", zap.Error(err), zap.String("webhook_id", id))
		}
	}

	return r.withStats(ctx, w)
}

// Delete removes the config and its cache entries. Delivery-log rows are
// retained for audit.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteWebhook(ctx, id); err != nil {
		return err
	}
	if err := r.cache.DeleteWebhook(ctx, id); err != nil {
		r.logger.Error("Failed to evict deleted webhook from cache", zap.Error(err), zap.String("webhook_id", id))
	}
	if err := r.cache.PurgeStats(ctx, id); err != nil {
		r.logger.Error("Failed to purge webhook stats", zap.Error(err), zap.String("webhook_id", id))
	}
	r.logger.Info("Webhook deleted", zap.String("webhook_id", id))
	return nil
}

// History returns the paginated delivery log for a webhook, newest first.
func (r *Registry) History(ctx context.Context, id string, limit, offset int64) ([]*models.DeliveryAttempt, error) {
	if _, err := r.store.GetWebhook(ctx, id); err != nil {
		return nil, err
	}
	return r.store.ListDeliveries(ctx, id, limit, offset)
}

// Ping sends a synthetic connectivity-test event through the normal delivery
// path, synchronously.
func (r *Registry) Ping(ctx context.Context, id string) error {
	w, err := r.store.GetWebhook(ctx, id)
	if err != nil {
		return err
	}
	if !w.Enabled {
		return &models.ValidationError{Field: "id", Reason: "webhook is disabled"}
	}

	payload, _ := json.Marshal(map[string]string{
		"message":   "ping",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	event := &models.DomainEvent{
		ID:        uuid.NewString(),
		Type:      models.EventWebhookPing,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Source:    "system",
	}

	r.deliverer.Deliver(ctx, w, event)
	return nil
}

// RetryDelivery re-wraps the captured payload of a prior failed delivery as a
// webhook.retry event and sends it through the normal delivery path.
func (r *Registry) RetryDelivery(ctx context.Context, webhookID, deliveryID string) error {
	delivery, err := r.store.GetDelivery(ctx, webhookID, deliveryID)
	if err != nil {
		return err
	}
	if delivery.Success {
		return &models.ValidationError{Field: "deliveryId", Reason: "cannot retry successful delivery"}
	}

	w, err := r.store.GetWebhook(ctx, webhookID)
	if err != nil {
		return err
	}
	if !w.Enabled {
		return &models.ValidationError{Field: "id", Reason: "webhook is disabled"}
	}

	payload := json.RawMessage("{}")
	if delivery.Response != nil {
		if data, err := json.Marshal(delivery.Response); err == nil {
			payload = data
		}
	}
	event := &models.DomainEvent{
		ID:        delivery.EventID,
		Type:      models.EventWebhookRetry,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Source:    "system",
	}

	r.deliverer.Deliver(ctx, w, event)
	return nil
}

func (r *Registry) withStats(ctx context.Context, w *models.WebhookConfig) (*Details, error) {
	s, err := r.stats.Read(ctx, w.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats for webhook %s: %w", w.ID, err)
	}
	return &Details{WebhookConfig: w, Stats: s}, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &models.ValidationError{Field: "url", Reason: "must be a valid absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &models.ValidationError{Field: "url", Reason: "scheme must be http or https"}
	}
	return nil
}

func validateEvents(events []string) error {
	for _, e := range events {
		if e == models.EventTypeWildcard {
			continue
		}
		if !models.IsKnownEventType(e) {
			return &models.ValidationError{Field: "events", Reason: fmt.Sprintf("unknown event type %q", e)}
		}
	}
	return nil
}
