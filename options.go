package relayseek

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/relay"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	subscriber relay.Subscriber
	publisher  relay.Publisher

	relaySets map[string][]string

	redisAddrs    []string
	redisPassword string

	signer domain.Signer

	defaultKinds          []int
	timeout               time.Duration
	profileCacheSize      int
	requireLoginForOracle bool

	logger     *zap.Logger
	metricsReg prometheus.Registerer
}

// WithSubscriber replaces the bundled websocket transport for reading.
// Publishing still uses the bundled transport unless WithPublisher is also
// given.
func WithSubscriber(s relay.Subscriber) Option {
	return func(c *clientConfig) {
		c.subscriber = s
	}
}

// WithPublisher replaces the bundled websocket transport for publishing.
func WithPublisher(p relay.Publisher) Option {
	return func(c *clientConfig) {
		c.publisher = p
	}
}

// WithRelaySets defines the purpose-tagged relay groups. Recognized group
// names: default, search, profiles, premium, dvm. The default group is
// required; an oracle is enabled only when the dvm group is non-empty.
func WithRelaySets(sets map[string][]string) Option {
	return func(c *clientConfig) {
		c.relaySets = sets
	}
}

// WithRelays is shorthand for a single default group.
func WithRelays(urls ...string) Option {
	return func(c *clientConfig) {
		if c.relaySets == nil {
			c.relaySets = make(map[string][]string)
		}
		c.relaySets["default"] = urls
	}
}

// WithRedisCache persists resolution and verification caches in Redis
// instead of process memory.
func WithRedisCache(password string, addrs ...string) Option {
	return func(c *clientConfig) {
		c.redisAddrs = addrs
		c.redisPassword = password
	}
}

// WithSigner sets the logged-in identity used to sign oracle requests.
func WithSigner(s domain.Signer) Option {
	return func(c *clientConfig) {
		c.signer = s
	}
}

// WithDefaultKinds sets the event kinds searched when a query names none.
func WithDefaultKinds(kinds ...int) Option {
	return func(c *clientConfig) {
		c.defaultKinds = kinds
	}
}

// WithTimeout bounds each search.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithProfileCacheSize bounds the in-memory profile cache.
func WithProfileCacheSize(n int) Option {
	return func(c *clientConfig) {
		c.profileCacheSize = n
	}
}

// WithLoginRequiredForOracle disables the ephemeral-identity oracle path;
// logged-out callers then rely on the relay fallback alone.
func WithLoginRequiredForOracle() Option {
	return func(c *clientConfig) {
		c.requireLoginForOracle = true
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithMetrics registers the engine collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.metricsReg = reg
	}
}
