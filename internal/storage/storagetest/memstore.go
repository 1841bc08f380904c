// Package storagetest provides an in-memory Store for tests.
package storagetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/storage"
)

// MemStore is a map-backed storage.Store. Safe for concurrent use.
type MemStore struct {
	mu         sync.Mutex
	webhooks   map[string]*models.WebhookConfig
	deliveries []*models.DeliveryAttempt
}

var _ storage.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{webhooks: make(map[string]*models.WebhookConfig)}
}

func (m *MemStore) InsertWebhook(_ context.Context, w *models.WebhookConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.webhooks[w.ID] = &cp
	return nil
}

func (m *MemStore) GetWebhook(_ context.Context, id string) (*models.WebhookConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webhooks[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemStore) ListWebhooks(_ context.Context, enabled *bool) ([]*models.WebhookConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.WebhookConfig
	for _, w := range m.webhooks {
		if enabled != nil && w.Enabled != *enabled {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) UpdateWebhook(_ context.Context, w *models.WebhookConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[w.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *w
	m.webhooks[w.ID] = &cp
	return nil
}

func (m *MemStore) TouchLastCalled(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.webhooks[id]; ok {
		w.LastCalledAt = &at
	}
	return nil
}

func (m *MemStore) DeleteWebhook(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.webhooks, id)
	return nil
}

func (m *MemStore) InsertDelivery(_ context.Context, d *models.DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.deliveries = append(m.deliveries, &cp)
	return nil
}

func (m *MemStore) GetDelivery(_ context.Context, webhookID, deliveryID string) (*models.DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.ID == deliveryID && d.WebhookID == webhookID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MemStore) ListDeliveries(_ context.Context, webhookID string, limit, offset int64) ([]*models.DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.DeliveryAttempt
	for _, d := range m.deliveries {
		if d.WebhookID == webhookID {
			cp := *d
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= int64(len(all)) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < int64(len(all)) {
		all = all[:limit]
	}
	return all, nil
}

// Deliveries returns a snapshot of every persisted attempt row.
func (m *MemStore) Deliveries() []*models.DeliveryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.DeliveryAttempt, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		cp := *d
		out = append(out, &cp)
	}
	return out
}
