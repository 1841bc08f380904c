package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"webhook-dispatcher/internal/models"
)

// Sign computes the X-Webhook-Signature header value for an outbound event:
// HMAC-SHA256 over "{unixSeconds}.{jsonSerializedEvent}", rendered as
// "t={unixSeconds},s={hexDigest}". An empty secret produces an empty
// signature; receivers must treat that as unverifiable, not as verified.
func Sign(event *models.DomainEvent, secret string, unixSeconds int64) (string, error) {
	if secret == "" {
		return "", nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to serialize event for signing: %w", err)
	}

	signString := fmt.Sprintf("%d.%s", unixSeconds, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signString))

	return fmt.Sprintf("t=%d,s=%s", unixSeconds, hex.EncodeToString(mac.Sum(nil))), nil
}
