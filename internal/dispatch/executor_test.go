package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/ratelimit"
	"webhook-dispatcher/internal/stats"
	"webhook-dispatcher/internal/storage/storagetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type executorHarness struct {
	executor *Executor
	store    *storagetest.MemStore
	stats    *stats.Aggregator
	client   *redis.Client
}

func setupExecutor(t *testing.T) *executorHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := storagetest.NewMemStore()
	agg := stats.NewAggregator(client)
	limiter := ratelimit.NewDefault(client)

	return &executorHarness{
		executor: NewExecutor(store, agg, limiter, 2*time.Second, zap.NewNop()),
		store:    store,
		stats:    agg,
		client:   client,
	}
}

// targetServer records every request and serves scripted status codes.
type targetServer struct {
	mu       sync.Mutex
	attempts []string
	statuses []int
	server   *httptest.Server
}

func newTargetServer(t *testing.T, statuses ...int) *targetServer {
	ts := &targetServer{statuses: statuses}
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		call := len(ts.attempts)
		ts.attempts = append(ts.attempts, r.Header.Get("X-Attempt"))
		status := http.StatusOK
		if call < len(ts.statuses) {
			status = ts.statuses[call]
		}
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{"received":true}`))
	}))
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *targetServer) calls() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.attempts...)
}

func testWebhook(url string, maxRetries int) *models.WebhookConfig {
	return &models.WebhookConfig{
		ID:           "wh-1",
		URL:          url,
		Secret:       "topsecret",
		Events:       []string{models.EventTypeWildcard},
		Enabled:      true,
		MaxRetries:   maxRetries,
		RetryDelayMS: 1,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestDeliverSucceedsOnThirdAttempt(t *testing.T) {
	h := setupExecutor(t)
	ts := newTargetServer(t, http.StatusInternalServerError, http.StatusBadGateway, http.StatusOK)

	webhook := testWebhook(ts.server.URL, 2)
	require.NoError(t, h.store.InsertWebhook(context.Background(), webhook))

	h.executor.Deliver(context.Background(), webhook, testEvent())

	assert.Equal(t, []string{"1", "2", "3"}, ts.calls())

	rows := h.store.Deliveries()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Success)
	assert.Equal(t, 3, rows[0].Attempt)
	require.NotNil(t, rows[0].StatusCode)
	assert.Equal(t, http.StatusOK, *rows[0].StatusCode)
	assert.Equal(t, map[string]interface{}{"received": true}, rows[0].Response)
	assert.Equal(t, "evt-1", rows[0].EventID)
	assert.Equal(t, "wh-1", rows[0].WebhookID)

	stored, err := h.store.GetWebhook(context.Background(), "wh-1")
	require.NoError(t, err)
	assert.NotNil(t, stored.LastCalledAt)

	s, err := h.stats.Read(context.Background(), "wh-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.TotalCalls)
	assert.Equal(t, int64(1), s.Successes)
	assert.Equal(t, int64(0), s.Failures)
}

func TestDeliverExhaustsRetries(t *testing.T) {
	h := setupExecutor(t)
	ts := newTargetServer(t,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusInternalServerError)

	webhook := testWebhook(ts.server.URL, 2)
	h.executor.Deliver(context.Background(), webhook, testEvent())

	// maxRetries=2 means 3 attempts total, no more
	assert.Equal(t, []string{"1", "2", "3"}, ts.calls())

	rows := h.store.Deliveries()
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Success)
	assert.Equal(t, 3, rows[0].Attempt)
	assert.Contains(t, rows[0].Error, "status 500")

	s, err := h.stats.Read(context.Background(), "wh-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.TotalCalls)
	assert.Equal(t, int64(1), s.Failures)
}

func TestDeliverZeroRetriesSingleAttempt(t *testing.T) {
	h := setupExecutor(t)
	ts := newTargetServer(t, http.StatusInternalServerError)

	webhook := testWebhook(ts.server.URL, 0)
	h.executor.Deliver(context.Background(), webhook, testEvent())

	assert.Equal(t, []string{"1"}, ts.calls())

	rows := h.store.Deliveries()
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Success)
	assert.Equal(t, 1, rows[0].Attempt)

	stored, err := h.store.GetWebhook(context.Background(), "wh-1")
	if err == nil {
		assert.Nil(t, stored.LastCalledAt)
	}
}

func TestDeliverTransportFailure(t *testing.T) {
	h := setupExecutor(t)

	// Nothing listens here; every attempt is a transport error.
	webhook := testWebhook("http://127.0.0.1:1/hook", 1)
	h.executor.Deliver(context.Background(), webhook, testEvent())

	rows := h.store.Deliveries()
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Success)
	assert.Equal(t, 2, rows[0].Attempt)
	assert.Nil(t, rows[0].StatusCode)
	assert.NotEmpty(t, rows[0].Error)
}

func TestDeliverRateLimitedDropsSilently(t *testing.T) {
	h := setupExecutor(t)
	ts := newTargetServer(t)

	webhook := testWebhook(ts.server.URL, 0)

	// Exhaust the 60-token window up front.
	limiter := ratelimit.NewDefault(h.client)
	for i := 0; i < 60; i++ {
		decision, err := limiter.Consume(context.Background(), webhook.ID)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	h.executor.Deliver(context.Background(), webhook, testEvent())

	// No HTTP call, no log row: backpressure, not failure.
	assert.Empty(t, ts.calls())
	assert.Empty(t, h.store.Deliveries())

	s, err := h.stats.Read(context.Background(), webhook.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.TotalCalls)
}

func TestDeliverSendsSignatureAndHeaders(t *testing.T) {
	h := setupExecutor(t)

	var headers http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	webhook := testWebhook(server.URL, 0)
	h.executor.Deliver(context.Background(), webhook, testEvent())

	require.NotNil(t, headers)
	assert.Regexp(t, `^t=\d+,s=[0-9a-f]{64}$`, headers.Get("X-Webhook-Signature"))
	assert.Equal(t, "wh-1", headers.Get("X-Webhook-ID"))
	assert.NotEmpty(t, headers.Get("X-Delivery-ID"))
	assert.Equal(t, models.EventUploadCompleted, headers.Get("X-Event-Type"))
	assert.Equal(t, "1", headers.Get("X-Attempt"))
	assert.Equal(t, "webhook-dispatcher/1.0", headers.Get("User-Agent"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestDeliverUnsignedWhenNoSecret(t *testing.T) {
	h := setupExecutor(t)

	var signature string
	var present bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Webhook-Signature")
		_, present = r.Header["X-Webhook-Signature"]
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	webhook := testWebhook(server.URL, 0)
	webhook.Secret = ""
	h.executor.Deliver(context.Background(), webhook, testEvent())

	assert.True(t, present)
	assert.Equal(t, "", signature)
}
