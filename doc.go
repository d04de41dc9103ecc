// Package relayseek is a distributed search engine client for relay-based
// social networks. It compiles free-text queries into filter plans, picks an
// execution strategy per query shape, streams results from many relays at
// once, and resolves author names to canonical identifiers through a tiered
// chain with caching.
//
// # Searching
//
//	client, _ := relayseek.New(
//	    relayseek.WithRelaySets(map[string][]string{
//	        "default": {"wss://relay.example.com"},
//	        "search":  {"wss://search.example.com"},
//	    }),
//	)
//	defer client.Close()
//
//	res, _ := client.Search(`"exact phrase" by:alice@example.com`).
//	    Limit(50).
//	    Since(time.Now().Add(-24 * time.Hour)).
//	    Do(ctx)
//
// Queries carry structured modifiers inline: kind:, since:, until:, by:,
// mentions:, p:, site:, has:, license: and relay:. OR groups expand into
// parallel sub-searches whose results merge into one deduplicated set.
//
// # Streaming
//
//	res, _ := client.Search("nostr").Stream(ctx, func(events []*relayseek.Event) {
//	    render(events) // monotonic snapshots while relays respond
//	})
//
// # Identity resolution
//
//	r, _ := client.Resolve(ctx, "alice@example.com")
//	if r.Found() {
//	    profile, _ := client.Profile(ctx, *r.PubKey)
//	    _ = profile
//	}
package relayseek
