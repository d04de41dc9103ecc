// Package identcache memoizes identity resolutions in a key-value store with
// tiered TTLs: positive results live for hours, negatives for seconds, so a
// transient lookup failure is not penalized for long.
package identcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/db"
	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/usecase/resolve"
)

const cacheKeyPrefix = "relayseek:resolve:"

// Default TTLs for cached resolutions.
const (
	DefaultPositiveTTL = 6 * time.Hour
	DefaultNegativeTTL = 90 * time.Second
)

// store is the consumer interface for the resolution cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedResolver is a caching decorator around a resolver.
type CachedResolver struct {
	inner       resolve.Resolver
	store       store
	positiveTTL time.Duration
	negativeTTL time.Duration
	cacheTotal  *prometheus.CounterVec // label "result": hit/miss
	logger      *zap.Logger
}

// New creates a caching decorator. Zero TTLs fall back to the defaults;
// cacheTotal may be nil.
func New(
	inner resolve.Resolver,
	s store,
	positiveTTL, negativeTTL time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedResolver {
	if positiveTTL <= 0 {
		positiveTTL = DefaultPositiveTTL
	}
	if negativeTTL <= 0 {
		negativeTTL = DefaultNegativeTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedResolver{
		inner:       inner,
		store:       s,
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
		cacheTotal:  cacheTotal,
		logger:      logger,
	}
}

// Resolve returns a cached resolution or calls the inner chain. A cached
// negative is a real answer, not a miss.
func (c *CachedResolver) Resolve(ctx context.Context, token string) (domain.Resolution, error) {
	key := c.cacheKey(token)

	if res, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return res, nil
	}
	c.incCache("miss")

	res, err := c.inner.Resolve(ctx, token)
	if err != nil {
		return domain.Resolution{}, err
	}

	c.putToCache(ctx, key, res)
	return res, nil
}

func (c *CachedResolver) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedResolver) cacheKey(token string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(token))))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedResolver) getFromCache(ctx context.Context, key string) (domain.Resolution, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached resolution", zap.String("key", key), zap.Error(err))
		}
		return domain.Resolution{}, false
	}

	var res domain.Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		// A corrupt entry is dropped; the rest of the cache is unaffected.
		c.logger.Warn("Dropping corrupt cached resolution", zap.String("key", key), zap.Error(err))
		return domain.Resolution{}, false
	}
	return res, true
}

func (c *CachedResolver) putToCache(ctx context.Context, key string, res domain.Resolution) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	ttl := c.positiveTTL
	if !res.Found() {
		ttl = c.negativeTTL
	}
	if err := c.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		c.logger.Warn("Failed to cache resolution", zap.String("key", key), zap.Error(err))
	}
}
