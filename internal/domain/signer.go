package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Signer produces signed events. The oracle exchange requires one: either the
// logged-in identity's signer or an ephemeral throwaway identity.
type Signer interface {
	PubKey() PubKey
	// Sign fills in PubKey, ID and Sig. CreatedAt must already be set.
	Sign(ev *Event) error
}

// EventID computes the canonical content-derived id of an event: the sha256
// of the serialized [0, pubkey, created_at, kind, tags, content] array.
func EventID(ev *Event) (string, error) {
	tags := ev.Tags
	if tags == nil {
		tags = []Tag{}
	}
	payload, err := json.Marshal([]any{0, ev.PubKey, ev.CreatedAt, ev.Kind, tags, ev.Content})
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
