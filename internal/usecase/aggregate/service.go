// Package aggregate executes filter plans against relay sets: it opens the
// subscriptions, merges and deduplicates the streams, and emits bounded,
// monotonic result snapshots.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/relay"
)

const (
	// DefaultTimeout bounds a streaming collection.
	DefaultTimeout = 30 * time.Second
	// DefaultSnapshotEvery is the partial-result emission cadence. Snapshots
	// are never emitted per event; redundant churn is pointless for callers.
	DefaultSnapshotEvery = 250 * time.Millisecond
)

// Options configures one collection run.
type Options struct {
	Relays     []string
	Timeout    time.Duration // 0 = DefaultTimeout
	MaxResults int           // 0 = unbounded
	// OnPartial receives merged newest-first snapshots at a bounded cadence
	// and unconditionally on timeout, cancellation, or MaxResults.
	OnPartial func([]*domain.Event)
	// Accept is the client-side residual predicate; nil accepts everything.
	Accept func(*domain.Event) bool
	// KeepOpen keeps subscriptions alive past the end-of-stored signal;
	// long-poll relays deliver late events after it.
	KeepOpen      bool
	SnapshotEvery time.Duration // 0 = DefaultSnapshotEvery
}

// Service runs streaming collections.
type Service struct {
	subs     Subscriber
	logger   *zap.Logger
	received *prometheus.CounterVec // label: relay
	dedup    prometheus.Counter
}

// New creates an aggregation service. The counters may be nil.
func New(subs Subscriber, received *prometheus.CounterVec, dedup prometheus.Counter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{subs: subs, logger: logger, received: received, dedup: dedup}
}

// Collect runs the plan to completion and returns the merged result set.
func (s *Service) Collect(ctx context.Context, plan filter.Plan, opts Options) ([]*domain.Event, error) {
	col := NewCollector()
	if err := s.CollectInto(ctx, plan, col, opts); err != nil {
		return nil, err
	}
	return bounded(col.Snapshot(), opts.MaxResults), nil
}

// CollectInto runs the plan into a caller-owned collector, letting several
// sub-searches of one logical search share a dedup map. Cancellation and
// timeout are valid bounded outcomes, not failures: the collector keeps
// whatever arrived. Only a contract violation (empty plan entry) errors.
func (s *Service) CollectInto(ctx context.Context, plan filter.Plan, col *Collector, opts Options) error {
	if len(plan) == 0 {
		return fmt.Errorf("collect: %w", domain.ErrEmptyFilter)
	}
	for i := range plan {
		if !plan[i].HasDiscriminator() {
			return fmt.Errorf("collect: entry %d: %w", i, domain.ErrEmptyFilter)
		}
	}
	if opts.MaxResults > 0 {
		// The cap is enforced at the collector so concurrent subscriptions
		// cannot overshoot it; an overshot set would force snapshot
		// truncation to retract already-emitted events.
		col.SetLimit(opts.MaxResults)
	}
	if len(opts.Relays) == 0 {
		// A search against zero relays returns what is already collected,
		// never a fault.
		s.emit(col, opts)
		return nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{}, len(plan))
	for i := range plan {
		go func(entry filter.Filter) {
			defer func() { done <- struct{}{} }()
			s.runSubscription(ctx, cancel, entry, col, opts)
		}(plan[i])
	}

	ticker := time.NewTicker(snapshotEvery(opts))
	defer ticker.Stop()

	remaining := len(plan)
	lastEmitted := -1
	for remaining > 0 {
		select {
		case <-done:
			remaining--
		case <-ticker.C:
			if n := col.Len(); n != lastEmitted {
				lastEmitted = n
				s.emit(col, opts)
			}
		case <-ctx.Done():
			// Subscriptions observe the same context; drain their exits.
			<-done
			remaining--
		}
	}

	// Unconditional terminal snapshot: timeout, cancellation, and MaxResults
	// all land here.
	s.emit(col, opts)
	return nil
}

// runSubscription opens one subscription for one plan entry and feeds the
// collector until the stream ends or the context is cancelled. Transport
// failures are excluded from aggregation silently.
func (s *Service) runSubscription(
	ctx context.Context, cancel context.CancelFunc,
	entry filter.Filter, col *Collector, opts Options,
) {
	sub, err := s.subs.Subscribe(ctx, filter.Plan{entry}, relay.SubscribeOptions{
		Relays:      opts.Relays,
		CloseOnEOSE: !opts.KeepOpen,
	})
	if err != nil {
		s.logger.Debug("Subscription failed, relay excluded from aggregation", zap.Error(err))
		return
	}
	defer sub.Close()

	for {
		select {
		case in, ok := <-sub.Events():
			if !ok {
				return
			}
			if in.Event == nil {
				continue
			}
			if opts.Accept != nil && !opts.Accept(in.Event) {
				continue
			}
			if s.received != nil {
				s.received.WithLabelValues(in.Relay).Inc()
			}
			if first := col.Add(in.Event, in.Relay); !first {
				if s.dedup != nil {
					s.dedup.Inc()
				}
				continue
			}
			if opts.MaxResults > 0 && col.Len() >= opts.MaxResults {
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) emit(col *Collector, opts Options) {
	if opts.OnPartial == nil {
		return
	}
	opts.OnPartial(bounded(col.Snapshot(), opts.MaxResults))
}

func snapshotEvery(opts Options) time.Duration {
	if opts.SnapshotEvery > 0 {
		return opts.SnapshotEvery
	}
	return DefaultSnapshotEvery
}

func bounded(evs []*domain.Event, max int) []*domain.Event {
	if max > 0 && len(evs) > max {
		return evs[:max]
	}
	return evs
}
