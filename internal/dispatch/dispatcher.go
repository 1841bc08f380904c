package dispatch

import (
	"context"
	"sync"

	"webhook-dispatcher/internal/cache"
	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/storage"
	"webhook-dispatcher/pkg/metrics"

	"go.uber.org/zap"
)

// Deliverer runs one full delivery sequence for one webhook.
type Deliverer interface {
	Deliver(ctx context.Context, webhook *models.WebhookConfig, event *models.DomainEvent)
}

// Dispatcher fans a domain event out to every enabled webhook subscribed to
// its type. Deliveries run concurrently and independently: one webhook's
// failure never blocks or fails delivery to another.
type Dispatcher struct {
	store     storage.Store
	cache     *cache.Cache
	deliverer Deliverer
	logger    *zap.Logger
	wg        sync.WaitGroup
}

func NewDispatcher(store storage.Store, c *cache.Cache, deliverer Deliverer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		cache:     c,
		deliverer: deliverer,
		logger:    logger,
	}
}

// Dispatch matches the event against the registry and launches one delivery
// goroutine per match. It returns once the fan-out is started; it never waits
// for deliveries and never reports their failures.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.DomainEvent) error {
	enabled := true
	hooks, err := d.store.ListWebhooks(ctx, &enabled)
	if err != nil {
		return err
	}

	metrics.EventsDispatched.WithLabelValues(event.Type).Inc()

	matched := 0
	for _, hook := range hooks {
		cfg := hook
		entry, err := d.cache.GetWebhook(ctx, hook.ID)
		if err != nil {
			d.logger.Warn("Fast-path cache read failed, using persisted config",
				zap.Error(err),
				zap.String("webhook_id", hook.ID))
		}
		if entry != nil {
			cfg = entry.Config()
		} else if err == nil {
			// Miss: backfill so the next event takes the fast path.
			if err := d.cache.SetWebhook(ctx, hook.CacheEntry()); err != nil {
				d.logger.Warn("Failed to backfill webhook cache",
					zap.Error(err),
					zap.String("webhook_id", hook.ID))
			}
		}

		if !cfg.Subscribes(event.Type) {
			continue
		}

		matched++
		d.wg.Add(1)
		go func(cfg *models.WebhookConfig) {
			defer d.wg.Done()
			d.deliverer.Deliver(ctx, cfg, event)
		}(cfg)
	}

	d.logger.Debug("Event dispatched",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Int("matched", matched))
	return nil
}

// Wait blocks until every in-flight delivery sequence has concluded. Used on
// shutdown to drain before the process exits.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
