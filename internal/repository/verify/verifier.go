// Package verify caches NIP-05 well-known verification results. Positives are
// persisted with a long TTL; negatives are never stored, so a handle that was
// briefly unreachable can be re-checked immediately. Concurrent checks for the
// same handle are collapsed into a single fetch.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/relayseek/relayseek/internal/db"
	"github.com/relayseek/relayseek/internal/domain"
)

const cacheKeyPrefix = "relayseek:nip05:"

// DefaultPositiveTTL is how long a confirmed handle-to-key binding is trusted.
const DefaultPositiveTTL = 24 * time.Hour

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// fetcher performs the actual well-known lookup.
type fetcher interface {
	Lookup(ctx context.Context, name, dom string) (domain.PubKey, bool)
}

type cachedBinding struct {
	PubKey domain.PubKey `json:"pubkey"`
}

// Verifier checks handle-to-key bindings with caching and in-flight dedup.
type Verifier struct {
	fetcher     fetcher
	store       store
	positiveTTL time.Duration
	group       singleflight.Group
	cacheTotal  *prometheus.CounterVec // label "result": hit/miss
	logger      *zap.Logger
}

// New creates a caching verifier. A zero TTL falls back to the default;
// cacheTotal may be nil.
func New(f fetcher, s store, positiveTTL time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Verifier {
	if positiveTTL <= 0 {
		positiveTTL = DefaultPositiveTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		fetcher:     f,
		store:       s,
		positiveTTL: positiveTTL,
		cacheTotal:  cacheTotal,
		logger:      logger,
	}
}

// Check returns the key bound to name@dom, or false when the binding cannot
// be confirmed. Failures are clean negatives.
func (v *Verifier) Check(ctx context.Context, name, dom string) (domain.PubKey, bool) {
	key := cacheKeyPrefix + name + "@" + dom

	if pk, ok := v.getFromCache(ctx, key); ok {
		v.incCache("hit")
		return pk, true
	}
	v.incCache("miss")

	res, err, _ := v.group.Do(key, func() (any, error) {
		pk, found := v.fetcher.Lookup(ctx, name, dom)
		if !found {
			return nil, nil
		}
		v.putToCache(ctx, key, pk)
		return pk, nil
	})
	if err != nil || res == nil {
		return "", false
	}
	return res.(domain.PubKey), true
}

func (v *Verifier) incCache(result string) {
	if v.cacheTotal != nil {
		v.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (v *Verifier) getFromCache(ctx context.Context, key string) (domain.PubKey, bool) {
	data, err := v.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			v.logger.Warn("Failed to get cached verification", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	var b cachedBinding
	if err := json.Unmarshal(data, &b); err != nil {
		v.logger.Warn("Dropping corrupt cached verification", zap.String("key", key), zap.Error(err))
		return "", false
	}
	if _, err := domain.ParsePubKey(string(b.PubKey)); err != nil {
		return "", false
	}
	return b.PubKey, true
}

func (v *Verifier) putToCache(ctx context.Context, key string, pk domain.PubKey) {
	data, err := json.Marshal(cachedBinding{PubKey: pk})
	if err != nil {
		return
	}
	if err := v.store.SetWithTTL(ctx, key, data, v.positiveTTL); err != nil {
		v.logger.Warn("Failed to cache verification", zap.String("key", key), zap.Error(err))
	}
}
