package resolve

import (
	"context"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/usecase/aggregate"
)

// Oracle is the consumer interface for the authoritative ranking service.
type Oracle interface {
	SearchProfiles(ctx context.Context, signer domain.Signer, query string, limit int) ([]domain.PubKey, error)
}

// Verifier is the consumer interface for domain verification lookups.
type Verifier interface {
	Check(ctx context.Context, name, dom string) (domain.PubKey, bool)
}

// Collector is the consumer interface for relay-side profile search.
type Collector interface {
	Collect(ctx context.Context, plan filter.Plan, opts aggregate.Options) ([]*domain.Event, error)
}

// Resolver is what the search layer consumes. *Service implements it, as does
// the caching decorator wrapped around it.
type Resolver interface {
	Resolve(ctx context.Context, token string) (domain.Resolution, error)
}
