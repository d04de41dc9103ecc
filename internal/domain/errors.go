package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrEmptyFilter signals a filter with no discriminating field.
	ErrEmptyFilter = errors.New("filter has no discriminating field")
	// ErrNoRelays signals an operation attempted with an empty relay set.
	ErrNoRelays = errors.New("no relays configured")
	// ErrInvalidPubKey signals a malformed public key literal.
	ErrInvalidPubKey = errors.New("invalid public key")
	// ErrInvalidPointer signals a malformed bech32 entity pointer.
	ErrInvalidPointer = errors.New("invalid entity pointer")
	// ErrLoginRequired signals an oracle policy that demands a logged-in identity.
	ErrLoginRequired = errors.New("login required")
	// ErrOracleExhausted signals a credit/quota exhaustion status from the oracle.
	// It terminates the oracle branch of a resolution and never reaches callers.
	ErrOracleExhausted = errors.New("oracle credits exhausted")
	// ErrNoSigner signals an oracle request without any signing identity.
	ErrNoSigner = errors.New("no signer configured")
)

// OracleStatusError wraps ErrOracleExhausted with the status payload the
// oracle reported before failing.
type OracleStatusError struct {
	Status  string
	Message string
}

func (e *OracleStatusError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrOracleExhausted.Error(), e.Status, e.Message)
}

func (e *OracleStatusError) Unwrap() error { return ErrOracleExhausted }
