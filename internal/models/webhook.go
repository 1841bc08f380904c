package models

import (
	"encoding/json"
	"time"
)

// EventTypeWildcard subscribes a webhook to every event type.
const EventTypeWildcard = "*"

// Event types carried by DomainEvent. The set is closed: registration rejects
// anything outside it (the wildcard aside).
const (
	EventUploadStarted     = "file.upload.started"
	EventUploadProgress    = "file.upload.progress"
	EventUploadCompleted   = "file.upload.completed"
	EventUploadFailed      = "file.upload.failed"
	EventDownloadStarted   = "file.download.started"
	EventDownloadCompleted = "file.download.completed"
	EventFileDeleted       = "file.deleted"
	EventVersionCreated    = "file.version.created"

	// Synthetic types that flow through the normal delivery path.
	EventWebhookPing  = "webhook.ping"
	EventWebhookRetry = "webhook.retry"
)

var knownEventTypes = map[string]struct{}{
	EventUploadStarted:     {},
	EventUploadProgress:    {},
	EventUploadCompleted:   {},
	EventUploadFailed:      {},
	EventDownloadStarted:   {},
	EventDownloadCompleted: {},
	EventFileDeleted:       {},
	EventVersionCreated:    {},
	EventWebhookPing:       {},
	EventWebhookRetry:      {},
}

// IsKnownEventType reports whether t is part of the closed event enumeration.
func IsKnownEventType(t string) bool {
	_, ok := knownEventTypes[t]
	return ok
}

// WebhookConfig is a registered delivery target. The ID is assigned at
// registration and never changes.
type WebhookConfig struct {
	ID           string     `json:"id" bson:"_id"`
	URL          string     `json:"url" bson:"url"`
	Secret       string     `json:"-" bson:"secret"`
	Events       []string   `json:"events" bson:"events"`
	Description  string     `json:"description" bson:"description"`
	Enabled      bool       `json:"enabled" bson:"enabled"`
	MaxRetries   int        `json:"maxRetries" bson:"max_retries"`
	RetryDelayMS int64      `json:"retryDelay" bson:"retry_delay_ms"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`
	LastCalledAt *time.Time `json:"lastCalledAt,omitempty" bson:"last_called_at,omitempty"`
}

// BaseDelay returns the base backoff as a duration.
func (w *WebhookConfig) BaseDelay() time.Duration {
	return time.Duration(w.RetryDelayMS) * time.Millisecond
}

// Subscribes reports whether the webhook wants the given event type. Matching
// is exact; the wildcard matches everything.
func (w *WebhookConfig) Subscribes(eventType string) bool {
	for _, e := range w.Events {
		if e == EventTypeWildcard || e == eventType {
			return true
		}
	}
	return false
}

// DomainEvent is a fact to be fanned out to subscribed webhooks. Events are not
// persisted on their own; only delivery attempts referencing their ID are.
type DomainEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

// DeliveryAttempt is the persisted outcome of one concluded delivery to one
// webhook for one event. Only the terminal attempt of a retry sequence is
// written; rows are never mutated afterwards.
type DeliveryAttempt struct {
	ID         string      `json:"id" bson:"_id"`
	WebhookID  string      `json:"webhookId" bson:"webhook_id"`
	EventID    string      `json:"eventId" bson:"event_id"`
	Success    bool        `json:"success" bson:"success"`
	StatusCode *int        `json:"statusCode,omitempty" bson:"status_code,omitempty"`
	Response   interface{} `json:"response,omitempty" bson:"response,omitempty"`
	Error      string      `json:"error,omitempty" bson:"error,omitempty"`
	DurationMS int64       `json:"duration" bson:"duration_ms"`
	Attempt    int         `json:"attempt" bson:"attempt"`
	CreatedAt  time.Time   `json:"createdAt" bson:"created_at"`
}

// WebhookStats is the rolling per-webhook aggregate kept in the cache. It is a
// monitoring aid, not a source of truth; eviction resets it to zero.
type WebhookStats struct {
	TotalCalls      int64   `json:"totalCalls"`
	Successes       int64   `json:"successes"`
	Failures        int64   `json:"failures"`
	LastDurationMS  int64   `json:"lastDuration"`
	LastCall        int64   `json:"lastCall"`
	AverageDuration float64 `json:"averageDuration"`
}

// CachedWebhook is the fast-path cache entry the dispatcher matches against.
// Disabled webhooks never appear in the cache.
type CachedWebhook struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Secret       string   `json:"secret"`
	Events       []string `json:"events"`
	MaxRetries   int      `json:"maxRetries"`
	RetryDelayMS int64    `json:"retryDelay"`
}

// Config converts a cache entry back into the subset of WebhookConfig the
// delivery path needs.
func (c *CachedWebhook) Config() *WebhookConfig {
	return &WebhookConfig{
		ID:           c.ID,
		URL:          c.URL,
		Secret:       c.Secret,
		Events:       c.Events,
		Enabled:      true,
		MaxRetries:   c.MaxRetries,
		RetryDelayMS: c.RetryDelayMS,
	}
}

// CacheEntry builds the fast-path cache representation of a config.
func (w *WebhookConfig) CacheEntry() *CachedWebhook {
	return &CachedWebhook{
		ID:           w.ID,
		URL:          w.URL,
		Secret:       w.Secret,
		Events:       w.Events,
		MaxRetries:   w.MaxRetries,
		RetryDelayMS: w.RetryDelayMS,
	}
}
