package relayseek

import (
	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/signer"
)

// Aliases re-export the core types so SDK consumers never touch internal
// packages.
type (
	// Event is one signed, timestamped message.
	Event = domain.Event
	// Tag is one structured event annotation.
	Tag = domain.Tag
	// PubKey is a canonical lowercase-hex identifier.
	PubKey = domain.PubKey
	// Resolution is the outcome of an identity lookup.
	Resolution = domain.Resolution
	// Signer signs events for the oracle exchange.
	Signer = domain.Signer
)

// Event kinds.
const (
	KindProfile = domain.KindProfile
	KindNote    = domain.KindNote
	KindRepost  = domain.KindRepost
)

// Sentinel errors surfaced by the SDK.
var (
	ErrNotFound    = domain.ErrNotFound
	ErrEmptyFilter = domain.ErrEmptyFilter
	ErrNoRelays    = domain.ErrNoRelays
)

// NewSignerFromHex creates a signer from a hex-encoded secret key, for use
// with WithSigner.
func NewSignerFromHex(secretHex string) (Signer, error) {
	return signer.FromHex(secretHex)
}

// NewEphemeralSigner creates a throwaway identity.
func NewEphemeralSigner() (Signer, error) {
	return signer.NewEphemeral()
}
