package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ContentHash computes the content-addressed identity of an event: a SHA-256
// digest over the addressing fields, type, correlation id, and payload,
// truncated to 128 bits (32 hex characters).
//
// Seq and Timestamp are excluded so that a redelivered event hashes to the
// same identity as its first delivery. Operations without a natural
// idempotency key (e.g. stock deliveries) must stamp a fresh CorrelationID
// so distinct occurrences stay distinct.
func ContentHash(evt Event) (string, error) {
	if strings.TrimSpace(evt.EntityType) == "" {
		return "", fmt.Errorf("entity type is required")
	}
	if strings.TrimSpace(evt.EntityID) == "" {
		return "", fmt.Errorf("entity id is required")
	}
	if !evt.Type.IsValid() {
		return "", fmt.Errorf("event type is required")
	}

	h := sha256.New()
	for _, field := range []string{
		evt.EntityType,
		evt.EntityID,
		string(evt.Type),
		evt.CorrelationID,
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	h.Write(evt.PayloadJSON)

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16]), nil
}
