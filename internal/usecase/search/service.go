// Package search turns free-text queries into filter plans and executes them.
// A query is owned by the first strategy that recognizes it; a recognized
// query that yields nothing stays empty rather than falling through to a
// broader strategy, so results never silently change meaning.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/domain/query"
	"github.com/relayseek/relayseek/internal/relayset"
	"github.com/relayseek/relayseek/internal/usecase/aggregate"
)

// Strategy names, reported in results and metrics.
const (
	StrategyURL      = "url"
	StrategyPointer  = "pointer"
	StrategyTag      = "tag"
	StrategyProfile  = "profile"
	StrategyMentions = "mentions"
	StrategyBy       = "by"
	StrategyFullText = "fulltext"
)

// DefaultLimit bounds a search when the caller does not.
const DefaultLimit = 50

// minRelaySearchTerm is the shortest term worth sending to relay-side
// full-text search; shorter terms are matched client-side instead.
const minRelaySearchTerm = 3

// Options configures one search.
type Options struct {
	Limit   int           // 0 = DefaultLimit
	Relays  []string      // explicit override; empty = purpose-derived sets
	Kinds   []int         // default kinds when the query names none
	Timeout time.Duration // 0 = aggregate.DefaultTimeout
	// Since and Until window the search in unix seconds; in-query since:/
	// until: modifiers take precedence.
	Since int64
	Until int64
	// OnPartial receives merged snapshots while the search streams.
	OnPartial func([]*domain.Event)
	// SnapshotEvery is the partial-snapshot cadence; 0 uses the aggregation
	// default.
	SnapshotEvery time.Duration
	KeepOpen      bool
}

// Result is a completed search: the merged events and the strategy that
// produced them.
type Result struct {
	Events   []*domain.Event
	Strategy string
}

// Service dispatches queries to strategies and runs them.
type Service struct {
	agg        Aggregator
	resolver   Resolver
	relays     RelayProvider
	strategies *prometheus.CounterVec // label: strategy
	logger     *zap.Logger
}

// New creates a search service. The strategies counter may be nil.
func New(agg Aggregator, resolver Resolver, relays RelayProvider, strategies *prometheus.CounterVec, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		agg:        agg,
		resolver:   resolver,
		relays:     relays,
		strategies: strategies,
		logger:     logger,
	}
}

// Search runs text through the strategy chain and returns the merged results.
func (s *Service) Search(ctx context.Context, text string, opts Options) (Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	parsed := query.Extract(text)
	if len(parsed.Relays) > 0 && len(opts.Relays) == 0 {
		opts.Relays = parsed.Relays
	}

	col := aggregate.NewCollector()
	strategy, ordered, err := s.dispatch(ctx, parsed, col, opts)
	if err != nil {
		return Result{Strategy: strategy}, err
	}
	s.countStrategy(strategy)

	// A strategy with its own ordering (profile ranking) overrides the
	// collector's newest-first order.
	events := ordered
	if events == nil {
		events = col.Snapshot()
	}
	if opts.Limit > 0 && len(events) > opts.Limit {
		events = events[:opts.Limit]
	}
	s.logger.Debug("Search completed",
		zap.String("strategy", strategy),
		zap.Int("results", len(events)),
	)
	return Result{Events: events, Strategy: strategy}, nil
}

// dispatch walks the ordered recognizers; the first applicable one owns the
// query. Strategies with an intrinsic ordering return the ordered slice;
// everything else streams into the shared collector.
func (s *Service) dispatch(ctx context.Context, parsed query.Parsed, col *aggregate.Collector, opts Options) (string, []*domain.Event, error) {
	token := strings.TrimSpace(parsed.Text)

	switch {
	case isURL(token):
		return StrategyURL, nil, s.searchURL(ctx, parsed, token, col, opts)
	case isEventPointer(token):
		return StrategyPointer, nil, s.searchPointer(ctx, parsed, token, col, opts)
	case isTagOnly(token) || isStructuredTagQuery(token, parsed):
		return StrategyTag, nil, s.searchTags(ctx, parsed, token, col, opts)
	case parsed.Profile != "" || isProfileToken(token, parsed):
		ordered, err := s.searchProfile(ctx, parsed, col, opts)
		return StrategyProfile, ordered, err
	case len(parsed.Mentions) > 0:
		return StrategyMentions, nil, s.searchMentions(ctx, parsed, col, opts)
	case len(parsed.Authors) > 0:
		return StrategyBy, nil, s.searchByAuthors(ctx, parsed, col, opts)
	default:
		return StrategyFullText, nil, s.searchFullText(ctx, parsed, col, opts)
	}
}

func (s *Service) countStrategy(name string) {
	if s.strategies != nil {
		s.strategies.WithLabelValues(name).Inc()
	}
}

// execute runs one plan against the given relays into the shared collector.
func (s *Service) execute(ctx context.Context, plan filter.Plan, relays []string, parsed query.Parsed, col *aggregate.Collector, opts Options) error {
	return s.executeWith(ctx, plan, relays, parsed, acceptPredicate(parsed), col, opts)
}

func (s *Service) executeWith(ctx context.Context, plan filter.Plan, relays []string, parsed query.Parsed, accept func(*domain.Event) bool, col *aggregate.Collector, opts Options) error {
	since, until := parsed.Since, parsed.Until
	if since == 0 {
		since = opts.Since
	}
	if until == 0 {
		until = opts.Until
	}
	plan = plan.ApplyWindow(since, until, opts.Limit)
	return s.agg.CollectInto(ctx, plan, col, aggregate.Options{
		Relays:        relays,
		Timeout:       opts.Timeout,
		MaxResults:    opts.Limit,
		OnPartial:     opts.OnPartial,
		Accept:        accept,
		KeepOpen:      opts.KeepOpen,
		SnapshotEvery: opts.SnapshotEvery,
	})
}

func (s *Service) relaysFor(opts Options, purposes ...relayset.Purpose) []string {
	if len(opts.Relays) > 0 {
		return opts.Relays
	}
	return s.relays.Merge(purposes...)
}

func (s *Service) kindsFor(parsed query.Parsed, opts Options) []int {
	if len(parsed.Kinds) > 0 {
		return parsed.Kinds
	}
	if len(opts.Kinds) > 0 {
		return opts.Kinds
	}
	return []int{domain.KindNote}
}

// fanOut runs one plan entry per variant concurrently into the shared
// collector. All variants share cancellation; the first hard failure wins.
func (s *Service) fanOut(ctx context.Context, variants []filter.Filter, relays []string, parsed query.Parsed, col *aggregate.Collector, opts Options) error {
	if len(variants) == 1 {
		return s.execute(ctx, filter.Plan{variants[0]}, relays, parsed, col, opts)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range variants {
		f := f
		g.Go(func() error {
			return s.execute(gctx, filter.Plan{f}, relays, parsed, col, opts)
		})
	}
	return g.Wait()
}
