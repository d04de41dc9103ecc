package nip19

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayseek/relayseek/internal/domain"
)

const (
	knownNpub   = "npub10elfcs4fr0l0r8af98jlmgdh9c8tcxjvz9qkw038js35mp4dma8qzvjptg"
	knownPubKey = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"

	knownNprofile = "nprofile1qqsrhuxx8l9ex335q7he0f09aej04zpazpl0ne2cgukyawd24mayt8gpp4mhxue69uhhytnc9e3k7mgpz4mhxue69uhkg6nzv9ejuumpv34kytnrdaksjlyr9p"
	profilePubKey = "3bf0c63fcb93463407af97a5e5ee64fa883d107ef9e558472c4eb9aaaefa459d"
)

func TestDecode_Npub(t *testing.T) {
	ptr, err := Decode(knownNpub)
	require.NoError(t, err)

	assert.Equal(t, "npub", ptr.Prefix)
	assert.Equal(t, domain.PubKey(knownPubKey), ptr.PubKey)
	assert.False(t, ptr.IsEvent())
}

func TestDecode_NostrURIPrefix(t *testing.T) {
	ptr, err := Decode("nostr:" + knownNpub)
	require.NoError(t, err)

	assert.Equal(t, domain.PubKey(knownPubKey), ptr.PubKey)
}

func TestDecode_NprofileTLV(t *testing.T) {
	ptr, err := Decode(knownNprofile)
	require.NoError(t, err)

	assert.Equal(t, "nprofile", ptr.Prefix)
	assert.Equal(t, domain.PubKey(profilePubKey), ptr.PubKey)
	assert.Equal(t, []string{"wss://r.x.com", "wss://djbas.sadkb.com"}, ptr.Relays)
}

func TestDecode_Garbage(t *testing.T) {
	for _, s := range []string{"", "npub1", "npub1qqqqqqxxxxxx", "hello world", "nsec1vl029mgpspedva04g90vltkh6fvh240zqtv9k0t9af8935ke9laqsnlfe5"} {
		_, err := Decode(s)
		assert.ErrorIs(t, err, domain.ErrInvalidPointer, "input %q", s)
	}
}

func TestEncodeNpub_RoundTrip(t *testing.T) {
	encoded, err := EncodeNpub(domain.PubKey(knownPubKey))
	require.NoError(t, err)
	assert.Equal(t, knownNpub, encoded)

	ptr, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, domain.PubKey(knownPubKey), ptr.PubKey)
}

func TestEncodeNote_RoundTrip(t *testing.T) {
	id := "b9f5441e45ca39179320e0031cfb18e34078673dcf3bd0db42459aeab0e3a0c1"

	encoded, err := EncodeNote(id)
	require.NoError(t, err)

	ptr, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "note", ptr.Prefix)
	assert.Equal(t, id, ptr.ID)
	assert.True(t, ptr.IsEvent())
}

func TestEncodeNpub_RejectsBadKey(t *testing.T) {
	_, err := EncodeNpub("zzzz")
	assert.Error(t, err)
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix(knownNpub))
	assert.True(t, HasPrefix("nostr:"+knownNpub))
	assert.True(t, HasPrefix("note1abc"))
	assert.True(t, HasPrefix("nevent1abc"))
	assert.False(t, HasPrefix("alice@example.com"))
	assert.False(t, HasPrefix("npub"))
}
