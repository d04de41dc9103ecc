// Package relayset provides named, purpose-tagged groups of relay endpoints.
package relayset

import "strings"

// Purpose names the relay group roles the engine dispatches against.
type Purpose string

const (
	// Default is the broad general-purpose relay group.
	Default Purpose = "default"
	// Search holds relays with full-text search capability.
	Search Purpose = "search"
	// Profiles holds relays capable of identity/profile search.
	Profiles Purpose = "profiles"
	// Premium holds paid relays used when widening an empty search.
	Premium Purpose = "premium"
	// DVM holds relays the oracle request/response exchange runs over.
	DVM Purpose = "dvm"
)

// Provider resolves a purpose to its relay URLs.
type Provider struct {
	sets map[Purpose][]string
}

// New creates a provider from named groups. URLs are normalized and
// deduplicated within each group; group contents are copied.
func New(sets map[Purpose][]string) *Provider {
	p := &Provider{sets: make(map[Purpose][]string, len(sets))}
	for purpose, urls := range sets {
		p.sets[purpose] = normalize(urls)
	}
	return p
}

// Get returns a defensive copy of the group for the purpose. An unknown or
// empty purpose falls back to the default group. A missing default yields nil.
func (p *Provider) Get(purpose Purpose) []string {
	urls, ok := p.sets[purpose]
	if !ok || len(urls) == 0 {
		urls = p.sets[Default]
	}
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, len(urls))
	copy(out, urls)
	return out
}

// Merge unions the groups for several purposes, preserving first-seen order.
func (p *Provider) Merge(purposes ...Purpose) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, purpose := range purposes {
		for _, u := range p.Get(purpose) {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

func normalize(urls []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(u)), "/")
		if u == "" {
			continue
		}
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			u = "wss://" + u
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
