// Package relay defines the transport contract the engine consumes: anything
// that can open a filter subscription and publish an event can drive the
// engine. The bundled websocket implementation lives in transport/relayws.
package relay

import (
	"context"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
)

// Incoming pairs a received event with its originating relay URL.
type Incoming struct {
	Event *domain.Event
	Relay string
}

// SubscribeOptions configures a subscription.
type SubscribeOptions struct {
	// Relays to fan the subscription out to. Empty is legal and yields a
	// subscription that never fires.
	Relays []string
	// CloseOnEOSE closes the subscription once every relay has delivered its
	// stored backlog. When false the subscription stays open for late events;
	// the end-of-stored signal does not mean no more will arrive.
	CloseOnEOSE bool
}

// Subscription is a live filter subscription across one or more relays.
type Subscription interface {
	// Events delivers matching events as they arrive. The channel is closed
	// when the subscription ends.
	Events() <-chan Incoming
	// EndOfStored is closed once every responsive relay has sent its initial
	// backlog. Relays that never respond simply contribute nothing.
	EndOfStored() <-chan struct{}
	// Close terminates the subscription. Idempotent: closing an already
	// closed subscription is a no-op, never an error.
	Close()
}

// Subscriber opens filter subscriptions. Implementations must reject plans
// containing a filter with no discriminating field.
type Subscriber interface {
	Subscribe(ctx context.Context, plan filter.Plan, opts SubscribeOptions) (Subscription, error)
}

// Publisher sends a signed event to the given relays. Used by the oracle
// request/response exchange.
type Publisher interface {
	Publish(ctx context.Context, ev *domain.Event, relays []string) error
}
