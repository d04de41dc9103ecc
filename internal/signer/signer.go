// Package signer provides schnorr event signing, including throwaway
// ephemeral identities for unauthenticated oracle requests.
package signer

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/relayseek/relayseek/internal/domain"
)

// Compile-time check: Key implements domain.Signer.
var _ domain.Signer = (*Key)(nil)

// Key signs events with a secp256k1 private key.
type Key struct {
	priv   *secp256k1.PrivateKey
	pubkey domain.PubKey
}

// NewEphemeral generates a throwaway signing identity. Each call costs a key
// generation; callers cache one per session where the oracle policy allows
// unauthenticated requests at all.
func NewEphemeral() (*Key, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	return fromPrivate(priv)
}

// FromHex loads a signing identity from a 64-char hex secret key.
func FromHex(sk string) (*Key, error) {
	raw, err := hex.DecodeString(sk)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("secret key must be 32 hex-encoded bytes")
	}
	return fromPrivate(secp256k1.PrivKeyFromBytes(raw))
}

func fromPrivate(priv *secp256k1.PrivateKey) (*Key, error) {
	// x-only public key, per the schnorr signature scheme.
	xonly := priv.PubKey().SerializeCompressed()[1:]
	pk, err := domain.ParsePubKey(hex.EncodeToString(xonly))
	if err != nil {
		return nil, fmt.Errorf("derive pubkey: %w", err)
	}
	return &Key{priv: priv, pubkey: pk}, nil
}

// PubKey returns the signing identity.
func (k *Key) PubKey() domain.PubKey { return k.pubkey }

// Sign fills in the event's PubKey, ID and Sig.
func (k *Key) Sign(ev *domain.Event) error {
	ev.PubKey = k.pubkey.String()

	id, err := domain.EventID(ev)
	if err != nil {
		return err
	}
	ev.ID = id

	digest, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("decode event id: %w", err)
	}
	sig, err := schnorr.Sign(k.priv, digest)
	if err != nil {
		return fmt.Errorf("schnorr sign: %w", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}
