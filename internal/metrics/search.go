package metrics

import "github.com/prometheus/client_golang/prometheus"

// SearchMetrics bundles the engine counters. Unlike the HTTP middleware these
// are registered explicitly by the composition root, so embedding the engine
// as a library never double-registers collectors.
type SearchMetrics struct {
	// EventsReceived counts raw events per relay before deduplication.
	EventsReceived *prometheus.CounterVec
	// Duplicates counts events discarded by the dedup map.
	Duplicates prometheus.Counter
	// Strategies counts queries per owning strategy.
	Strategies *prometheus.CounterVec
	// ResolveOutcomes counts resolution branch results (oracle, fallback,
	// exhausted).
	ResolveOutcomes *prometheus.CounterVec
	// ResolveCache and VerifyCache count hits and misses.
	ResolveCache *prometheus.CounterVec
	VerifyCache  *prometheus.CounterVec
}

// NewSearchMetrics creates the collectors without registering them.
func NewSearchMetrics() *SearchMetrics {
	return &SearchMetrics{
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayseek",
			Name:      "events_received_total",
			Help:      "Events received from relays before deduplication",
		}, []string{"relay"}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relayseek",
			Name:      "events_duplicate_total",
			Help:      "Events discarded as duplicates during aggregation",
		}),
		Strategies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayseek",
			Name:      "search_strategy_total",
			Help:      "Searches per owning strategy",
		}, []string{"strategy"}),
		ResolveOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayseek",
			Name:      "resolve_outcome_total",
			Help:      "Identity resolution branch outcomes",
		}, []string{"branch"}),
		ResolveCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayseek",
			Name:      "resolve_cache_total",
			Help:      "Resolution cache lookups by result",
		}, []string{"result"}),
		VerifyCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relayseek",
			Name:      "verify_cache_total",
			Help:      "NIP-05 verification cache lookups by result",
		}, []string{"result"}),
	}
}

// Register registers every collector with reg.
func (m *SearchMetrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.EventsReceived,
		m.Duplicates,
		m.Strategies,
		m.ResolveOutcomes,
		m.ResolveCache,
		m.VerifyCache,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
