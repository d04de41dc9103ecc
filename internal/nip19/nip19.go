// Package nip19 encodes and decodes bech32 entity pointers (npub, note,
// nprofile, nevent).
package nip19

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/relayseek/relayseek/internal/domain"
)

// TLV types used by nprofile and nevent payloads.
const (
	tlvSpecial = 0
	tlvRelay   = 1
	tlvAuthor  = 2
	tlvKind    = 3
)

// Pointer is a decoded bech32 entity reference.
type Pointer struct {
	Prefix string // npub, note, nprofile, nevent
	ID     string // event id (note, nevent)
	PubKey domain.PubKey
	Relays []string // relay hints, tried before the default set
	Kind   int      // 0 when absent
}

// IsEvent reports whether the pointer references an event rather than a profile.
func (p Pointer) IsEvent() bool { return p.Prefix == "note" || p.Prefix == "nevent" }

// HasPrefix reports whether s looks like a bech32 pointer this package decodes.
func HasPrefix(s string) bool {
	s = strings.ToLower(strings.TrimPrefix(s, "nostr:"))
	for _, p := range []string{"npub1", "note1", "nprofile1", "nevent1"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Decode parses a bech32 entity pointer. The optional "nostr:" URI prefix is
// accepted and stripped.
func Decode(s string) (Pointer, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "nostr:"))

	prefix, grouped, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return Pointer{}, fmt.Errorf("%w: %w", domain.ErrInvalidPointer, err)
	}
	payload, err := bech32.ConvertBits(grouped, 5, 8, false)
	if err != nil {
		return Pointer{}, fmt.Errorf("%w: %w", domain.ErrInvalidPointer, err)
	}

	switch prefix {
	case "npub":
		pk, err := keyFromBytes(payload)
		if err != nil {
			return Pointer{}, err
		}
		return Pointer{Prefix: prefix, PubKey: pk}, nil
	case "note":
		if len(payload) != 32 {
			return Pointer{}, fmt.Errorf("%w: note payload is %d bytes", domain.ErrInvalidPointer, len(payload))
		}
		return Pointer{Prefix: prefix, ID: hex.EncodeToString(payload)}, nil
	case "nprofile", "nevent":
		return decodeTLV(prefix, payload)
	default:
		return Pointer{}, fmt.Errorf("%w: unknown prefix %q", domain.ErrInvalidPointer, prefix)
	}
}

func decodeTLV(prefix string, payload []byte) (Pointer, error) {
	ptr := Pointer{Prefix: prefix}
	for len(payload) >= 2 {
		typ, length := payload[0], int(payload[1])
		payload = payload[2:]
		if length > len(payload) {
			return Pointer{}, fmt.Errorf("%w: truncated TLV", domain.ErrInvalidPointer)
		}
		value := payload[:length]
		payload = payload[length:]

		switch typ {
		case tlvSpecial:
			if len(value) != 32 {
				return Pointer{}, fmt.Errorf("%w: special TLV is %d bytes", domain.ErrInvalidPointer, len(value))
			}
			if prefix == "nprofile" {
				pk, err := keyFromBytes(value)
				if err != nil {
					return Pointer{}, err
				}
				ptr.PubKey = pk
			} else {
				ptr.ID = hex.EncodeToString(value)
			}
		case tlvRelay:
			ptr.Relays = append(ptr.Relays, string(value))
		case tlvAuthor:
			if prefix == "nevent" && len(value) == 32 {
				pk, err := keyFromBytes(value)
				if err == nil {
					ptr.PubKey = pk
				}
			}
		case tlvKind:
			if len(value) == 4 {
				ptr.Kind = int(binary.BigEndian.Uint32(value))
			}
		default:
			// Unknown TLV types are skipped, per the encoding's forward
			// compatibility rule.
		}
	}
	if prefix == "nprofile" && ptr.PubKey == "" {
		return Pointer{}, fmt.Errorf("%w: nprofile without pubkey", domain.ErrInvalidPointer)
	}
	if prefix == "nevent" && ptr.ID == "" {
		return Pointer{}, fmt.Errorf("%w: nevent without id", domain.ErrInvalidPointer)
	}
	return ptr, nil
}

// EncodeNpub renders a public key as an npub pointer.
func EncodeNpub(pk domain.PubKey) (string, error) {
	raw, err := hex.DecodeString(pk.String())
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidPubKey, pk)
	}
	return encode("npub", raw)
}

// EncodeNote renders an event id as a note pointer.
func EncodeNote(id string) (string, error) {
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) != 32 {
		return "", fmt.Errorf("%w: bad event id", domain.ErrInvalidPointer)
	}
	return encode("note", raw)
}

func encode(prefix string, raw []byte) (string, error) {
	grouped, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("convert bits: %w", err)
	}
	s, err := bech32.Encode(prefix, grouped)
	if err != nil {
		return "", fmt.Errorf("bech32 encode: %w", err)
	}
	return s, nil
}

func keyFromBytes(b []byte) (domain.PubKey, error) {
	if len(b) != 32 {
		return "", fmt.Errorf("%w: %d bytes", domain.ErrInvalidPubKey, len(b))
	}
	return domain.ParsePubKey(hex.EncodeToString(b))
}
