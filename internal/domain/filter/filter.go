// Package filter models protocol-level subscription filters and OR-combined
// filter plans compiled from user queries.
package filter

import (
	"encoding/json"
	"fmt"

	"github.com/relayseek/relayseek/internal/domain"
)

// Filter is a single protocol filter. Fields are AND-combined; values within
// a field are OR-combined, matching the transport's native semantics.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string // single-letter tag constraints, e.g. "t", "p", "l"
	Search  string
	Since   int64
	Until   int64
	Limit   int
}

// HasDiscriminator reports whether the filter constrains at least one
// identifying field. An unconstrained wildcard fetch is a contract violation.
func (f *Filter) HasDiscriminator() bool {
	if len(f.IDs) > 0 || len(f.Authors) > 0 || f.Search != "" {
		return true
	}
	for _, vals := range f.Tags {
		if len(vals) > 0 {
			return true
		}
	}
	return false
}

// MarshalJSON renders the filter in wire form: tag constraints become
// "#<key>" members, zero-valued fields are omitted.
func (f Filter) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 8)
	if len(f.IDs) > 0 {
		out["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		out["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		out["kinds"] = f.Kinds
	}
	for key, vals := range f.Tags {
		if len(vals) > 0 {
			out["#"+key] = vals
		}
	}
	if f.Search != "" {
		out["search"] = f.Search
	}
	if f.Since > 0 {
		out["since"] = f.Since
	}
	if f.Until > 0 {
		out["until"] = f.Until
	}
	if f.Limit > 0 {
		out["limit"] = f.Limit
	}
	return json.Marshal(out)
}

// Matches reports whether an event satisfies the filter. Used for client-side
// rechecks; relays are not trusted to apply filters exactly.
func (f *Filter) Matches(ev *domain.Event) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, ev.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, ev.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, ev.Kind) {
		return false
	}
	for key, vals := range f.Tags {
		if len(vals) == 0 {
			continue
		}
		if !tagIntersects(ev, key, vals) {
			return false
		}
	}
	if f.Since > 0 && ev.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && ev.CreatedAt > f.Until {
		return false
	}
	return true
}

// Plan is an ordered set of independent filters to be evaluated separately
// and unioned. Request-scoped: created and discarded per search call.
type Plan []Filter

// NewPlan validates and creates a plan. Every entry must carry at least one
// discriminating field.
func NewPlan(filters ...Filter) (Plan, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("new plan: %w", domain.ErrEmptyFilter)
	}
	for i := range filters {
		if !filters[i].HasDiscriminator() {
			return nil, fmt.Errorf("new plan: entry %d: %w", i, domain.ErrEmptyFilter)
		}
	}
	return Plan(filters), nil
}

// ApplyWindow sets time bounds and the per-filter limit on every entry that
// does not already carry its own.
func (p Plan) ApplyWindow(since, until int64, limit int) Plan {
	for i := range p {
		if since > 0 && p[i].Since == 0 {
			p[i].Since = since
		}
		if until > 0 && p[i].Until == 0 {
			p[i].Until = until
		}
		if limit > 0 && p[i].Limit == 0 {
			p[i].Limit = limit
		}
	}
	return p
}

func containsString(vals []string, v string) bool {
	for _, s := range vals {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(vals []int, v int) bool {
	for _, n := range vals {
		if n == v {
			return true
		}
	}
	return false
}

func tagIntersects(ev *domain.Event, key string, wanted []string) bool {
	for _, have := range ev.TagValues(key) {
		if containsString(wanted, have) {
			return true
		}
	}
	return false
}
