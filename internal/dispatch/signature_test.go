package dispatch

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"webhook-dispatcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() *models.DomainEvent {
	return &models.DomainEvent{
		ID:        "evt-1",
		Type:      models.EventUploadCompleted,
		Payload:   json.RawMessage(`{"fileId":"f-1"}`),
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Source:    "files",
	}
}

func TestSignDeterministic(t *testing.T) {
	event := testEvent()

	first, err := Sign(event, "topsecret", 1748779200)
	require.NoError(t, err)
	second, err := Sign(event, "topsecret", 1748779200)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Regexp(t, regexp.MustCompile(`^t=1748779200,s=[0-9a-f]{64}$`), first)
}

func TestSignEmptySecret(t *testing.T) {
	sig, err := Sign(testEvent(), "", 1748779200)
	require.NoError(t, err)
	assert.Equal(t, "", sig)
}

func TestSignVariesWithInputs(t *testing.T) {
	event := testEvent()

	base, err := Sign(event, "topsecret", 1748779200)
	require.NoError(t, err)

	otherSecret, err := Sign(event, "othersecret", 1748779200)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherSecret)

	otherTime, err := Sign(event, "topsecret", 1748779201)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherTime)

	changed := testEvent()
	changed.Payload = json.RawMessage(`{"fileId":"f-2"}`)
	otherPayload, err := Sign(changed, "topsecret", 1748779200)
	require.NoError(t, err)
	assert.NotEqual(t, base, otherPayload)
}
