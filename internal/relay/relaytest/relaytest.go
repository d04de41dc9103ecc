// Package relaytest provides a scripted in-memory Subscriber and Publisher
// for tests.
package relaytest

import (
	"context"
	"sync"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/relay"
)

// Fake is a scripted relay.Subscriber + relay.Publisher. Events loaded per
// relay URL are replayed to any subscription whose plan matches them, then
// the end-of-stored signal fires. Late events can be injected afterwards.
type Fake struct {
	mu        sync.Mutex
	stored    map[string][]*domain.Event // relay URL -> events
	subs      []*Subscription
	published []*domain.Event

	// SubscribeErr, when set, is returned by every Subscribe call.
	SubscribeErr error
}

// NewFake creates an empty fake transport.
func NewFake() *Fake {
	return &Fake{stored: make(map[string][]*domain.Event)}
}

// Load adds stored events for a relay URL.
func (f *Fake) Load(relayURL string, evs ...*domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[relayURL] = append(f.stored[relayURL], evs...)
}

// Published returns everything sent through Publish.
func (f *Fake) Published() []*domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Event, len(f.published))
	copy(out, f.published)
	return out
}

// Publish records the event.
func (f *Fake) Publish(_ context.Context, ev *domain.Event, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ev)
	return nil
}

// Subscribe replays stored events matching the plan, closes the end-of-stored
// channel, and keeps the subscription open unless CloseOnEOSE is set.
func (f *Fake) Subscribe(ctx context.Context, plan filter.Plan, opts relay.SubscribeOptions) (relay.Subscription, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	for i := range plan {
		if !plan[i].HasDiscriminator() {
			return nil, domain.ErrEmptyFilter
		}
	}

	sub := newSubscription()
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	var backlog []relay.Incoming
	for _, url := range opts.Relays {
		for _, ev := range f.stored[url] {
			if planMatches(plan, ev) {
				backlog = append(backlog, relay.Incoming{Event: ev, Relay: url})
			}
		}
	}
	f.mu.Unlock()

	go func() {
		for _, in := range backlog {
			if ctx.Err() != nil {
				sub.Close()
				return
			}
			if !sub.deliver(in) {
				return
			}
		}
		sub.signalEOSE()
		if opts.CloseOnEOSE {
			sub.Close()
		}
	}()
	return sub, nil
}

// Inject delivers a late event to every open subscription, regardless of
// stored state. Returns the number of subscriptions that accepted it.
func (f *Fake) Inject(relayURL string, ev *domain.Event) int {
	f.mu.Lock()
	subs := make([]*Subscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	delivered := 0
	for _, sub := range subs {
		if sub.deliver(relay.Incoming{Event: ev, Relay: relayURL}) {
			delivered++
		}
	}
	return delivered
}

func planMatches(plan filter.Plan, ev *domain.Event) bool {
	for i := range plan {
		if matchesLoose(&plan[i], ev) {
			return true
		}
	}
	return false
}

// matchesLoose applies the filter the way a search-capable relay would:
// structural fields exactly, the search term as a case-insensitive substring.
func matchesLoose(f *filter.Filter, ev *domain.Event) bool {
	structural := *f
	structural.Search = ""
	if !structural.Matches(ev) {
		return false
	}
	if f.Search != "" && !ev.ContentContainsFold(f.Search) {
		return false
	}
	return true
}

// Subscription is the fake's relay.Subscription.
type Subscription struct {
	mu     sync.Mutex
	closed bool
	events chan relay.Incoming
	eose   chan struct{}
	done   chan struct{}

	eoseOnce sync.Once
}

func newSubscription() *Subscription {
	return &Subscription{
		events: make(chan relay.Incoming, 256),
		eose:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Events implements relay.Subscription.
func (s *Subscription) Events() <-chan relay.Incoming { return s.events }

// EndOfStored implements relay.Subscription.
func (s *Subscription) EndOfStored() <-chan struct{} { return s.eose }

// Close implements relay.Subscription. Safe to call repeatedly.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.events)
}

func (s *Subscription) signalEOSE() {
	s.eoseOnce.Do(func() { close(s.eose) })
}

// deliver enqueues an event unless the subscription is closed. The buffer is
// large enough for any test scenario; overflow drops the event, mirroring a
// slow-consumer relay.
func (s *Subscription) deliver(in relay.Incoming) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- in:
		return true
	default:
		return false
	}
}
