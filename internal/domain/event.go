package domain

import (
	"strings"
)

// Event kinds understood by the engine.
const (
	KindProfile          = 0
	KindNote             = 1
	KindRepost           = 6
	KindDVMSearchRequest = 5315
	KindDVMSearchResult  = 6315
	KindDVMFeedback      = 7000
	KindNutzap           = 9321
	KindZapReceipt       = 9735
)

// Tag is an ordered list of strings: key first, then values.
type Tag []string

// Key returns the tag key, or "" for a malformed empty tag.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first value after the key, or "".
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Event is an immutable, content-addressed record received from a relay.
// Events are append-only facts: never updated in place, only superseded by
// newer events with the same logical subject.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig,omitempty"`
}

// TagValue returns the first value of the first tag with the given key.
func (e *Event) TagValue(key string) (string, bool) {
	for _, t := range e.Tags {
		if t.Key() == key {
			return t.Value(), true
		}
	}
	return "", false
}

// TagValues returns the first value of every tag with the given key.
func (e *Event) TagValues(key string) []string {
	var vals []string
	for _, t := range e.Tags {
		if t.Key() == key && len(t) > 1 {
			vals = append(vals, t[1])
		}
	}
	return vals
}

// HasTag reports whether any tag with the given key is present.
func (e *Event) HasTag(key string) bool {
	for _, t := range e.Tags {
		if t.Key() == key {
			return true
		}
	}
	return false
}

// ContentContainsFold reports whether the event content contains the needle,
// case-insensitively. Used by client-side residual filters for terms the
// relay-side search cannot express.
func (e *Event) ContentContainsFold(needle string) bool {
	return strings.Contains(strings.ToLower(e.Content), strings.ToLower(needle))
}
