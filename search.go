package relayseek

import (
	"context"
	"strings"
	"time"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/relayset"
	searchuc "github.com/relayseek/relayseek/internal/usecase/search"
)

// Result is a completed search.
type Result struct {
	// Events is the merged result set, deduplicated across relays.
	Events []*Event
	// Strategy names the recognizer that owned the query.
	Strategy string
}

// SearchBuilder is a fluent builder for search queries.
type SearchBuilder struct {
	c *Client

	text   string
	limit  int
	relays []string
	kinds  []int
	since  time.Time
	until  time.Time
}

// Search starts a query. The text may carry structured modifiers
// (kind:, since:, by:, site: and friends) alongside free terms.
func (c *Client) Search(text string) *SearchBuilder {
	return &SearchBuilder{c: c, text: text}
}

// Limit caps the number of results.
func (b *SearchBuilder) Limit(n int) *SearchBuilder {
	b.limit = n
	return b
}

// Relays routes the search to relay URLs or named groups (default, search,
// profiles, premium). Names and URLs may be mixed.
func (b *SearchBuilder) Relays(relays ...string) *SearchBuilder {
	b.relays = append(b.relays, relays...)
	return b
}

// Kinds sets the event kinds searched when the query itself names none.
func (b *SearchBuilder) Kinds(kinds ...int) *SearchBuilder {
	b.kinds = kinds
	return b
}

// Since restricts results to events created at or after t.
func (b *SearchBuilder) Since(t time.Time) *SearchBuilder {
	b.since = t
	return b
}

// Until restricts results to events created at or before t.
func (b *SearchBuilder) Until(t time.Time) *SearchBuilder {
	b.until = t
	return b
}

// Do executes the search to completion.
func (b *SearchBuilder) Do(ctx context.Context) (Result, error) {
	return b.run(ctx, nil)
}

// Stream executes the search, invoking fn with each monotonic snapshot of
// the merged result set before returning the final one.
func (b *SearchBuilder) Stream(ctx context.Context, fn func([]*Event)) (Result, error) {
	return b.run(ctx, fn)
}

func (b *SearchBuilder) run(ctx context.Context, onPartial func([]*Event)) (Result, error) {
	opts := searchuc.Options{
		Limit:     b.limit,
		Relays:    b.resolveRelays(),
		Kinds:     b.kinds,
		Timeout:   b.c.timeout,
		OnPartial: onPartial,
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = b.c.defaultKinds
	}
	if !b.since.IsZero() {
		opts.Since = b.since.Unix()
	}
	if !b.until.IsZero() {
		opts.Until = b.until.Unix()
	}

	res, err := b.c.searchSvc.Search(ctx, b.text, opts)
	if err != nil {
		return Result{}, err
	}
	b.c.rememberProfiles(res.Events)
	return Result{Events: res.Events, Strategy: res.Strategy}, nil
}

// resolveRelays expands named groups into their URLs.
func (b *SearchBuilder) resolveRelays() []string {
	var out []string
	for _, r := range b.relays {
		if strings.Contains(r, "://") {
			out = append(out, r)
			continue
		}
		out = append(out, b.c.provider.Get(relayset.Purpose(r))...)
	}
	return out
}

// rememberProfiles feeds returned profile events into the client cache so a
// later Profile call skips the network.
func (c *Client) rememberProfiles(events []*Event) {
	for _, ev := range events {
		if ev.Kind == domain.KindProfile {
			c.profiles.Put(ev)
		}
	}
}
