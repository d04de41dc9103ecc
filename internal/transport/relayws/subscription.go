package relayws

import (
	"sync"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/relay"
)

// subscription merges per-relay streams into the transport contract. The
// end-of-stored channel closes once every relay has either delivered its
// backlog marker or dropped out. With closeOnDrain set, draining the last
// relay also closes the whole subscription so consumers ranging over Events
// terminate without waiting out their timeout.
type subscription struct {
	events chan relay.Incoming
	eose   chan struct{}

	mu           sync.Mutex
	pending      int
	closed       bool
	closeOnDrain bool
	onClose      []func()
	eoseDone     bool
}

func newSubscription(relays int, closeOnDrain bool) *subscription {
	s := &subscription{
		events:       make(chan relay.Incoming, eventBuffer),
		eose:         make(chan struct{}),
		pending:      relays,
		closeOnDrain: closeOnDrain,
	}
	if relays == 0 {
		close(s.eose)
		s.eoseDone = true
	}
	return s
}

func (s *subscription) Events() <-chan relay.Incoming { return s.events }

func (s *subscription) EndOfStored() <-chan struct{} { return s.eose }

func (s *subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cleanup := s.onClose
	s.onClose = nil
	close(s.events)
	if !s.eoseDone {
		s.eoseDone = true
		close(s.eose)
	}
	s.mu.Unlock()

	for _, fn := range cleanup {
		fn()
	}
}

// deliver hands an event to the consumer, dropping it when the consumer has
// fallen behind the buffer or the subscription is gone.
func (s *subscription) deliver(ev *domain.Event, relayURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- relay.Incoming{Event: ev, Relay: relayURL}:
	default:
	}
}

// relayDone marks one relay as finished with its stored backlog. Once every
// relay has reported, end-of-stored fires, and a closeOnDrain subscription
// closes itself.
func (s *subscription) relayDone() {
	s.mu.Lock()
	s.pending--
	drained := s.pending <= 0
	if drained && !s.eoseDone {
		s.eoseDone = true
		close(s.eose)
	}
	selfClose := drained && s.closeOnDrain && !s.closed
	s.mu.Unlock()

	if selfClose {
		s.Close()
	}
}

// registerCleanup runs fn when the consumer closes the subscription. When it
// is already closed, fn runs immediately.
func (s *subscription) registerCleanup(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}
