package aggregate

import (
	"context"

	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/relay"
)

// Subscriber is the consumer interface for opening relay subscriptions (ISP).
type Subscriber interface {
	Subscribe(ctx context.Context, plan filter.Plan, opts relay.SubscribeOptions) (relay.Subscription, error)
}
