package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribes(t *testing.T) {
	exact := &WebhookConfig{Events: []string{EventUploadCompleted, EventFileDeleted}}
	assert.True(t, exact.Subscribes(EventUploadCompleted))
	assert.True(t, exact.Subscribes(EventFileDeleted))
	assert.False(t, exact.Subscribes(EventUploadStarted))
	// No prefix matching: "file.upload.completed" does not imply "file.upload.*"
	assert.False(t, exact.Subscribes("file.upload"))

	wildcard := &WebhookConfig{Events: []string{EventTypeWildcard}}
	assert.True(t, wildcard.Subscribes(EventUploadStarted))
	assert.True(t, wildcard.Subscribes(EventWebhookPing))

	none := &WebhookConfig{}
	assert.False(t, none.Subscribes(EventUploadStarted))
}

func TestIsKnownEventType(t *testing.T) {
	assert.True(t, IsKnownEventType(EventUploadCompleted))
	assert.True(t, IsKnownEventType(EventWebhookRetry))
	assert.False(t, IsKnownEventType("file.renamed"))
	// The wildcard is a subscription pattern, not an event type.
	assert.False(t, IsKnownEventType(EventTypeWildcard))
}

func TestWebhookConfigJSONHidesSecret(t *testing.T) {
	w := &WebhookConfig{ID: "wh-1", URL: "https://example.com", Secret: "s3cret"}

	data, err := json.Marshal(w)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	_, ok := out["secret"]
	assert.False(t, ok)
	assert.NotContains(t, string(data), "s3cret")
}

func TestCacheEntryRoundtrip(t *testing.T) {
	w := &WebhookConfig{
		ID:           "wh-1",
		URL:          "https://example.com/hook",
		Secret:       "s3cret",
		Events:       []string{EventUploadCompleted},
		Enabled:      true,
		MaxRetries:   5,
		RetryDelayMS: 250,
	}

	back := w.CacheEntry().Config()
	assert.Equal(t, w.ID, back.ID)
	assert.Equal(t, w.URL, back.URL)
	assert.Equal(t, w.Secret, back.Secret)
	assert.Equal(t, w.Events, back.Events)
	assert.Equal(t, w.MaxRetries, back.MaxRetries)
	assert.Equal(t, w.RetryDelayMS, back.RetryDelayMS)
	assert.True(t, back.Enabled)
}
