package storage

import (
	"context"
	"time"

	"webhook-dispatcher/internal/models"
)

// Store exposes the persistent operations the registry and delivery path rely
// on: CRUD over webhook configs plus append-only insert and paginated reads of
// the delivery log.
type Store interface {
	InsertWebhook(ctx context.Context, w *models.WebhookConfig) error
	GetWebhook(ctx context.Context, id string) (*models.WebhookConfig, error)
	ListWebhooks(ctx context.Context, enabled *bool) ([]*models.WebhookConfig, error)
	UpdateWebhook(ctx context.Context, w *models.WebhookConfig) error
	TouchLastCalled(ctx context.Context, id string, at time.Time) error
	DeleteWebhook(ctx context.Context, id string) error

	InsertDelivery(ctx context.Context, d *models.DeliveryAttempt) error
	GetDelivery(ctx context.Context, webhookID, deliveryID string) (*models.DeliveryAttempt, error)
	ListDeliveries(ctx context.Context, webhookID string, limit, offset int64) ([]*models.DeliveryAttempt, error)
}
