package domain

import "fmt"

// PubKeyLen is the length of a canonical hex-encoded public key.
const PubKeyLen = 64

// PubKey is a canonical fixed-length author identifier (lowercase hex).
type PubKey string

// ParsePubKey validates and normalizes a 64-character hex public key.
func ParsePubKey(s string) (PubKey, error) {
	if len(s) != PubKeyLen {
		return "", fmt.Errorf("%w: length %d", ErrInvalidPubKey, len(s))
	}
	buf := []byte(s)
	for i, c := range buf {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
			buf[i] = c + ('a' - 'A')
		default:
			return "", fmt.Errorf("%w: non-hex character %q", ErrInvalidPubKey, c)
		}
	}
	return PubKey(buf), nil
}

// IsHexPubKey reports whether s parses as a canonical public key.
func IsHexPubKey(s string) bool {
	_, err := ParsePubKey(s)
	return err == nil
}

// String returns the hex form.
func (p PubKey) String() string { return string(p) }

// Resolution is the terminal output of the identity resolution chain.
// A nil PubKey is a legitimate, cacheable negative result.
type Resolution struct {
	PubKey  *PubKey `json:"pubkey"`
	Profile *Event  `json:"profile,omitempty"`
}

// Found reports whether the resolution carries a canonical identifier.
func (r Resolution) Found() bool { return r.PubKey != nil }

// ResolutionOf builds a positive resolution for the given key.
func ResolutionOf(pk PubKey, profile *Event) Resolution {
	return Resolution{PubKey: &pk, Profile: profile}
}
