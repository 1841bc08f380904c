package dispatch

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"webhook-dispatcher/internal/cache"
	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/storage/storagetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []string
}

func (r *recordingDeliverer) Deliver(_ context.Context, webhook *models.WebhookConfig, _ *models.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, webhook.ID)
}

func (r *recordingDeliverer) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.delivered...)
	sort.Strings(out)
	return out
}

func setupDispatcher(t *testing.T) (*Dispatcher, *storagetest.MemStore, *cache.Cache, *recordingDeliverer) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := storagetest.NewMemStore()
	c := cache.NewWithClient(client, time.Hour)
	rec := &recordingDeliverer{}
	return NewDispatcher(store, c, rec, zap.NewNop()), store, c, rec
}

func seedWebhook(t *testing.T, store *storagetest.MemStore, id string, events []string, enabled bool) {
	t.Helper()
	err := store.InsertWebhook(context.Background(), &models.WebhookConfig{
		ID:           id,
		URL:          "https://example.com/" + id,
		Events:       events,
		Enabled:      enabled,
		MaxRetries:   3,
		RetryDelayMS: 1000,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestDispatchFansOutToSubscribers(t *testing.T) {
	d, store, _, rec := setupDispatcher(t)

	seedWebhook(t, store, "wh-upload", []string{models.EventUploadCompleted}, true)
	seedWebhook(t, store, "wh-wildcard", []string{models.EventTypeWildcard}, true)
	seedWebhook(t, store, "wh-delete", []string{models.EventFileDeleted}, true)
	seedWebhook(t, store, "wh-disabled", []string{models.EventTypeWildcard}, false)

	require.NoError(t, d.Dispatch(context.Background(), testEvent()))
	d.Wait()

	assert.Equal(t, []string{"wh-upload", "wh-wildcard"}, rec.ids())
}

func TestDispatchNoSubscribers(t *testing.T) {
	d, store, _, rec := setupDispatcher(t)

	seedWebhook(t, store, "wh-delete", []string{models.EventFileDeleted}, true)

	require.NoError(t, d.Dispatch(context.Background(), testEvent()))
	d.Wait()

	assert.Empty(t, rec.ids())
}

func TestDispatchBackfillsCacheOnMiss(t *testing.T) {
	d, store, c, _ := setupDispatcher(t)

	seedWebhook(t, store, "wh-1", []string{models.EventTypeWildcard}, true)

	entry, err := c.GetWebhook(context.Background(), "wh-1")
	require.NoError(t, err)
	require.Nil(t, entry)

	require.NoError(t, d.Dispatch(context.Background(), testEvent()))
	d.Wait()

	entry, err = c.GetWebhook(context.Background(), "wh-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "https://example.com/wh-1", entry.URL)
}

func TestDispatchPrefersCachedConfig(t *testing.T) {
	d, store, c, rec := setupDispatcher(t)

	// Persisted config subscribes to nothing this event matches; the cached
	// entry carries a wildcard. The cached view must win.
	seedWebhook(t, store, "wh-1", []string{models.EventFileDeleted}, true)
	cached, err := store.GetWebhook(context.Background(), "wh-1")
	require.NoError(t, err)
	cached.Events = []string{models.EventTypeWildcard}
	require.NoError(t, c.SetWebhook(context.Background(), cached.CacheEntry()))

	require.NoError(t, d.Dispatch(context.Background(), testEvent()))
	d.Wait()

	assert.Equal(t, []string{"wh-1"}, rec.ids())
}
