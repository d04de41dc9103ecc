package relayseek

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/db"
	dbMemory "github.com/relayseek/relayseek/internal/db/memory"
	dbRedis "github.com/relayseek/relayseek/internal/db/redis"
	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/metrics"
	"github.com/relayseek/relayseek/internal/relay"
	"github.com/relayseek/relayseek/internal/relayset"
	"github.com/relayseek/relayseek/internal/repository/identcache"
	"github.com/relayseek/relayseek/internal/repository/profiles"
	"github.com/relayseek/relayseek/internal/repository/verify"
	"github.com/relayseek/relayseek/internal/signer"
	"github.com/relayseek/relayseek/internal/transport/dvm"
	"github.com/relayseek/relayseek/internal/transport/nip05"
	"github.com/relayseek/relayseek/internal/transport/relayws"
	"github.com/relayseek/relayseek/internal/usecase/aggregate"
	"github.com/relayseek/relayseek/internal/usecase/resolve"
	searchuc "github.com/relayseek/relayseek/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the relayseek SDK entry point.
type Client struct {
	store     db.Store
	pool      *relayws.Pool // nil when the transport was injected
	subs      relay.Subscriber
	provider  *relayset.Provider
	agg       *aggregate.Service
	searchSvc *searchuc.Service
	resolver  resolve.Resolver
	profiles  *profiles.Store

	defaultKinds []int
	timeout      time.Duration
	logger       *zap.Logger
}

// New creates a relayseek Client. At minimum a default relay group is
// required (WithRelays or WithRelaySets).
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if len(cfg.relaySets["default"]) == 0 {
		return nil, errors.New("relayseek: default relay group required (use WithRelays or WithRelaySets)")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	c, err := wireClient(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	if len(cfg.redisAddrs) == 0 {
		// No persistent cache configured: the engine degrades to in-memory
		// caching and stays fully functional.
		return dbMemory.NewStore(), nil
	}
	s, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.redisAddrs,
		Password: cfg.redisPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("relayseek: create redis store: %w", err)
	}
	if err := s.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("relayseek: redis not ready: %w", err)
	}
	return s, nil
}

func wireClient(store db.Store, cfg *clientConfig) (*Client, error) {
	logger := cfg.logger

	m := metrics.NewSearchMetrics()
	if cfg.metricsReg != nil {
		if err := m.Register(cfg.metricsReg); err != nil {
			return nil, fmt.Errorf("relayseek: register metrics: %w", err)
		}
	}

	var pool *relayws.Pool
	subs := cfg.subscriber
	pub := cfg.publisher
	if subs == nil || pub == nil {
		pool = relayws.NewPool(logger)
		if subs == nil {
			subs = pool
		}
		if pub == nil {
			pub = pool
		}
	}

	sets := make(map[relayset.Purpose][]string, len(cfg.relaySets))
	for name, urls := range cfg.relaySets {
		sets[relayset.Purpose(name)] = urls
	}
	provider := relayset.New(sets)

	agg := aggregate.New(subs, m.EventsReceived, m.Duplicates, logger)

	verifier := verify.New(nip05.New(nil, logger), store, 0, m.VerifyCache, logger)

	var oracle resolve.Oracle
	if len(cfg.relaySets["dvm"]) > 0 {
		oracle = dvm.New(subs, pub, provider.Get(relayset.DVM), logger)
	}

	resolveSvc := resolve.New(
		oracle,
		verifier,
		agg,
		resolve.Config{
			RequireLoginForOracle: cfg.requireLoginForOracle,
			ProfileRelays:         provider.Merge(relayset.Profiles, relayset.Default),
		},
		cfg.signer,
		func() (domain.Signer, error) { return signer.NewEphemeral() },
		nil,
		m.ResolveOutcomes,
		logger,
	)
	resolver := identcache.New(resolveSvc, store, 0, 0, m.ResolveCache, logger)

	searchSvc := searchuc.New(agg, resolver, provider, m.Strategies, logger)

	profileStore, err := profiles.New(cfg.profileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("relayseek: profile cache: %w", err)
	}

	return &Client{
		store:        store,
		pool:         pool,
		subs:         subs,
		provider:     provider,
		agg:          agg,
		searchSvc:    searchSvc,
		resolver:     resolver,
		profiles:     profileStore,
		defaultKinds: cfg.defaultKinds,
		timeout:      cfg.timeout,
		logger:       logger,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks cache-store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Resolve maps an identity token (hex key, npub, nprofile, name@domain or a
// free-form name) to its canonical identifier.
func (c *Client) Resolve(ctx context.Context, token string) (Resolution, error) {
	return c.resolver.Resolve(ctx, token)
}

// Profile returns the newest known profile event for pk, fetching it from
// the profile relays on a cache miss.
func (c *Client) Profile(ctx context.Context, pk PubKey) (*Event, error) {
	if ev, ok := c.profiles.Get(pk); ok {
		return ev, nil
	}

	plan := filter.Plan{{
		Authors: []string{pk.String()},
		Kinds:   []int{domain.KindProfile},
		Limit:   1,
	}}
	events, err := c.agg.Collect(ctx, plan, aggregate.Options{
		Relays:  c.provider.Merge(relayset.Profiles, relayset.Default),
		Timeout: c.timeout,
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, domain.ErrNotFound
	}
	c.profiles.Put(events[0])
	return events[0], nil
}
