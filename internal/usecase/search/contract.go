package search

import (
	"context"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/relayset"
	"github.com/relayseek/relayseek/internal/usecase/aggregate"
)

// Aggregator is the consumer interface for streaming plan execution.
type Aggregator interface {
	CollectInto(ctx context.Context, plan filter.Plan, col *aggregate.Collector, opts aggregate.Options) error
}

// Resolver turns an identity token into a pubkey and profile.
type Resolver interface {
	Resolve(ctx context.Context, token string) (domain.Resolution, error)
}

// RelayProvider resolves relay set purposes to endpoint lists.
type RelayProvider interface {
	Get(purpose relayset.Purpose) []string
	Merge(purposes ...relayset.Purpose) []string
}
