// Package profiles keeps a bounded in-memory store of profile events.
// Only the newest profile per author is retained.
package profiles

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/relayseek/relayseek/internal/domain"
)

// DefaultSize bounds the number of cached profiles.
const DefaultSize = 4096

// Store is an LRU cache of kind-0 events keyed by author.
type Store struct {
	cache *lru.Cache[domain.PubKey, *domain.Event]
}

// New creates a store. A non-positive size falls back to the default.
func New(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.New[domain.PubKey, *domain.Event](size)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache}, nil
}

// Get returns the cached profile for pk, if any.
func (s *Store) Get(pk domain.PubKey) (*domain.Event, bool) {
	return s.cache.Get(pk)
}

// Put stores ev unless a newer profile for the same author is already cached.
// It reports whether the event was stored.
func (s *Store) Put(ev *domain.Event) bool {
	if ev == nil || ev.Kind != domain.KindProfile {
		return false
	}
	pk := domain.PubKey(ev.PubKey)
	if old, ok := s.cache.Peek(pk); ok && old.CreatedAt >= ev.CreatedAt {
		return false
	}
	s.cache.Add(pk, ev)
	return true
}

// Len reports the number of cached profiles.
func (s *Store) Len() int {
	return s.cache.Len()
}
