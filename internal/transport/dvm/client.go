// Package dvm implements the oracle client: an authoritative identity-ranking
// service reached through a signed request/response exchange over the relay
// transport.
package dvm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/relay"
)

// DefaultTimeout bounds one oracle round-trip.
const DefaultTimeout = 10 * time.Second

// Feedback statuses that signal credit exhaustion. They terminate the oracle
// branch without retry.
var exhaustionStatuses = map[string]bool{
	"payment-required":     true,
	"credit-required":      true,
	"insufficient-credits": true,
}

// Subscriber opens relay subscriptions (consumer interface).
type Subscriber interface {
	Subscribe(ctx context.Context, plan filter.Plan, opts relay.SubscribeOptions) (relay.Subscription, error)
}

// Publisher sends signed events (consumer interface).
type Publisher interface {
	Publish(ctx context.Context, ev *domain.Event, relays []string) error
}

// Client runs profile-search requests against DVM relays.
type Client struct {
	subs    Subscriber
	pub     Publisher
	relays  []string
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an oracle client for the given DVM relay group.
func New(subs Subscriber, pub Publisher, relays []string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{subs: subs, pub: pub, relays: relays, timeout: DefaultTimeout, logger: logger}
}

// resultEntry mirrors one entry of a search-result content payload.
type resultEntry struct {
	PubKey string  `json:"pubkey"`
	Rank   float64 `json:"rank,omitempty"`
}

// SearchProfiles asks the oracle to rank identities for a free-form name.
// The request is signed with the given signer (logged-in or ephemeral) and
// published after the response subscription is in place. Returns the ranked
// keys, or ErrOracleExhausted when the service reports spent credits.
func (c *Client) SearchProfiles(ctx context.Context, signer domain.Signer, query string, limit int) ([]domain.PubKey, error) {
	if signer == nil {
		return nil, domain.ErrNoSigner
	}
	if len(c.relays) == 0 {
		return nil, domain.ErrNoRelays
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := &domain.Event{
		Kind:      domain.KindDVMSearchRequest,
		CreatedAt: time.Now().Unix(),
		Tags: []domain.Tag{
			{"param", "search", query},
			{"param", "limit", fmt.Sprintf("%d", limit)},
		},
	}
	if err := signer.Sign(req); err != nil {
		return nil, fmt.Errorf("sign oracle request: %w", err)
	}

	// Watch for the answer before publishing, so a fast response cannot slip
	// past the subscription.
	plan := filter.Plan{{
		Kinds: []int{domain.KindDVMSearchResult, domain.KindDVMFeedback},
		Tags:  map[string][]string{"e": {req.ID}},
	}}
	sub, err := c.subs.Subscribe(ctx, plan, relay.SubscribeOptions{Relays: c.relays})
	if err != nil {
		return nil, fmt.Errorf("subscribe oracle responses: %w", err)
	}
	defer sub.Close()

	if err := c.pub.Publish(ctx, req, c.relays); err != nil {
		return nil, fmt.Errorf("publish oracle request: %w", err)
	}

	for {
		select {
		case in, ok := <-sub.Events():
			if !ok {
				return nil, fmt.Errorf("oracle stream closed without answer")
			}
			if in.Event == nil {
				continue
			}
			switch in.Event.Kind {
			case domain.KindDVMFeedback:
				if err := feedbackError(in.Event); err != nil {
					return nil, err
				}
				// Progress feedback; keep waiting.
			case domain.KindDVMSearchResult:
				return parseResult(in.Event)
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("oracle: %w", ctx.Err())
		}
	}
}

// feedbackError inspects a status-update document. Exhaustion statuses map to
// the distinguished ErrOracleExhausted; a generic error status fails the
// request plainly; anything else is progress chatter.
func feedbackError(ev *domain.Event) error {
	status, _ := ev.TagValue("status")
	if status == "" {
		return nil
	}
	if exhaustionStatuses[status] {
		return &domain.OracleStatusError{Status: status, Message: ev.Content}
	}
	if status == "error" {
		return fmt.Errorf("oracle error: %s", ev.Content)
	}
	return nil
}

func parseResult(ev *domain.Event) ([]domain.PubKey, error) {
	var entries []resultEntry
	if err := json.Unmarshal([]byte(ev.Content), &entries); err != nil {
		// Some services answer with a bare array of hex keys.
		var plain []string
		if err2 := json.Unmarshal([]byte(ev.Content), &plain); err2 != nil {
			return nil, fmt.Errorf("parse oracle result: %w", err)
		}
		for _, s := range plain {
			entries = append(entries, resultEntry{PubKey: s})
		}
	}

	var keys []domain.PubKey
	for _, e := range entries {
		pk, err := domain.ParsePubKey(e.PubKey)
		if err != nil {
			continue // one bad entry does not poison the answer
		}
		keys = append(keys, pk)
	}
	return keys, nil
}
