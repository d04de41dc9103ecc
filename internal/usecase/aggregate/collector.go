package aggregate

import (
	"sort"
	"sync"

	"github.com/relayseek/relayseek/internal/domain"
)

// Collector is a grow-only, deduplicating result set keyed by event id.
// A collector is exclusively owned by the search call that created it; it is
// safe for the concurrent subscriptions of that call, but never shared across
// calls. Because entries are only ever added, successive snapshots are
// monotonically non-decreasing in content.
type Collector struct {
	mu     sync.Mutex
	byID   map[string]*domain.Event
	seenOn map[string][]string
	limit  int
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		byID:   make(map[string]*domain.Event),
		seenOn: make(map[string][]string),
	}
}

// SetLimit caps the number of distinct events the collector accepts. Once
// full, unseen ids are rejected in Add, so the result set never holds an
// event a snapshot would later have to drop. Zero means unbounded.
func (c *Collector) SetLimit(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limit = n
}

// Add records an event from a relay. On first sight the event enters the
// result set; repeat sightings only append relay provenance. Returns true on
// first sight. A full collector rejects unseen events: concurrent
// subscriptions race each other to the cap, and whichever events lose the
// race are dropped rather than displacing anything already collected.
func (c *Collector) Add(ev *domain.Event, relayURL string) bool {
	if ev == nil || ev.ID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_, seen := c.byID[ev.ID]
	if !seen {
		if c.limit > 0 && len(c.byID) >= c.limit {
			return false
		}
		c.byID[ev.ID] = ev
	}
	if relayURL != "" && !containsString(c.seenOn[ev.ID], relayURL) {
		c.seenOn[ev.ID] = append(c.seenOn[ev.ID], relayURL)
	}
	return !seen
}

// Len returns the number of distinct events collected.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Snapshot returns the merged result set sorted newest-first. Ties break by
// id for determinism.
func (c *Collector) Snapshot() []*domain.Event {
	c.mu.Lock()
	out := make([]*domain.Event, 0, len(c.byID))
	for _, ev := range c.byID {
		out = append(out, ev)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Sources returns the relays an event id has been seen on, in first-seen order.
func (c *Collector) Sources(id string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	src := c.seenOn[id]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func containsString(vals []string, v string) bool {
	for _, s := range vals {
		if s == v {
			return true
		}
	}
	return false
}
