package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/domain/profile"
	"github.com/relayseek/relayseek/internal/domain/query"
	"github.com/relayseek/relayseek/internal/nip19"
	"github.com/relayseek/relayseek/internal/relayset"
	"github.com/relayseek/relayseek/internal/transport/nip05"
	"github.com/relayseek/relayseek/internal/usecase/aggregate"
	"github.com/relayseek/relayseek/internal/usecase/rank"
)

// domainRankLimit bounds how many profiles a domain-only query fetches before
// client-side ranking.
const domainRankLimit = 30

func isURL(token string) bool {
	if token == "" || strings.ContainsAny(token, " \t") {
		return false
	}
	return strings.HasPrefix(token, "http://") || strings.HasPrefix(token, "https://")
}

func isEventPointer(token string) bool {
	if !nip19.HasPrefix(token) {
		return false
	}
	bare := strings.TrimPrefix(strings.ToLower(token), "nostr:")
	return strings.HasPrefix(bare, "note1") || strings.HasPrefix(bare, "nevent1")
}

// isTagOnly reports whether every term of the query is a hashtag.
func isTagOnly(token string) bool {
	if token == "" {
		return false
	}
	for _, t := range strings.Fields(token) {
		if len(t) < 2 || t[0] != '#' {
			return false
		}
	}
	return true
}

// isStructuredTagQuery recognizes queries that reduce to tag constraints
// alone: no residual text and no identity modifiers, with at least one
// structured tag. Such queries need no search capability and run on the broad
// default set like hashtag lookups.
func isStructuredTagQuery(token string, parsed query.Parsed) bool {
	if token != "" || len(parsed.Licenses) == 0 {
		return false
	}
	return parsed.Profile == "" && len(parsed.Authors) == 0 && len(parsed.Mentions) == 0
}

// isProfileToken recognizes single-token identity queries: hex keys, profile
// pointers, and name@domain / bare-domain handles.
func isProfileToken(token string, parsed query.Parsed) bool {
	if token == "" || strings.ContainsAny(token, " \t") {
		return false
	}
	// Other modifiers mean the token is a content query, not an identity one.
	if len(parsed.Kinds) > 0 || len(parsed.Authors) > 0 || len(parsed.Mentions) > 0 {
		return false
	}
	if domain.IsHexPubKey(token) {
		return true
	}
	if nip19.HasPrefix(token) {
		bare := strings.TrimPrefix(strings.ToLower(token), "nostr:")
		return strings.HasPrefix(bare, "npub1") || strings.HasPrefix(bare, "nprofile1")
	}
	return nip05.IsHandle(token)
}

// searchURL looks up notes citing a URL as an exact phrase, with the protocol
// stripped so http and https posts both match.
func (s *Service) searchURL(ctx context.Context, parsed query.Parsed, token string, col *aggregate.Collector, opts Options) error {
	stripped := strings.TrimPrefix(strings.TrimPrefix(token, "https://"), "http://")
	stripped = strings.TrimSuffix(stripped, "/")
	f := filter.Filter{
		Search: `"` + stripped + `"`,
		Kinds:  s.kindsFor(parsed, opts),
		Tags:   tagConstraints(parsed),
	}
	return s.execute(ctx, filter.Plan{f}, s.relaysFor(opts, relayset.Search), parsed, col, opts)
}

// searchPointer fetches the event a note1/nevent1 pointer names. Hinted
// relays are tried alongside the default and search sets.
func (s *Service) searchPointer(ctx context.Context, parsed query.Parsed, token string, col *aggregate.Collector, opts Options) error {
	ptr, err := nip19.Decode(token)
	if err != nil {
		return fmt.Errorf("pointer %q: %w", token, err)
	}
	relays := opts.Relays
	if len(relays) == 0 {
		relays = mergeRelayLists(ptr.Relays, s.relays.Merge(relayset.Default, relayset.Search))
	}
	f := filter.Filter{IDs: []string{ptr.ID}, Limit: 1}
	return s.execute(ctx, filter.Plan{f}, relays, parsed, col, opts)
}

// searchTags runs a structured tag lookup on the broad default set; tag
// queries need no search capability.
func (s *Service) searchTags(ctx context.Context, parsed query.Parsed, token string, col *aggregate.Collector, opts Options) error {
	tags := tagConstraints(parsed)
	if tags == nil {
		tags = make(map[string][]string)
	}
	for _, t := range strings.Fields(token) {
		tags["t"] = appendLower(tags["t"], strings.TrimPrefix(t, "#"))
	}
	f := filter.Filter{
		Kinds: s.kindsFor(parsed, opts),
		Tags:  tags,
	}
	return s.execute(ctx, filter.Plan{f}, s.relaysFor(opts, relayset.Default), parsed, col, opts)
}

// searchProfile resolves an identity token to its profile. Domain-only
// tokens that fail strict resolution fall back to domain-filtered profile
// ranking; the returned slice carries the rank order.
func (s *Service) searchProfile(ctx context.Context, parsed query.Parsed, col *aggregate.Collector, opts Options) ([]*domain.Event, error) {
	token := parsed.Profile
	if token == "" {
		token = strings.TrimSpace(parsed.Text)
	}

	res, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if res.Found() {
		if res.Profile != nil {
			col.Add(res.Profile, "resolver")
			return []*domain.Event{res.Profile}, nil
		}
		f := filter.Filter{
			Authors: []string{res.PubKey.String()},
			Kinds:   []int{domain.KindProfile},
			Limit:   1,
		}
		err := s.execute(ctx, filter.Plan{f}, s.relaysFor(opts, relayset.Profiles, relayset.Default), parsed, col, opts)
		return nil, err
	}

	// A bare domain with no confirmed root key still names a community of
	// profiles; rank them instead of giving up.
	if name, dom, ok := nip05.ParseHandle(token); ok && name == "_" {
		return s.rankDomainProfiles(ctx, dom, col, opts)
	}
	return []*domain.Event{}, nil
}

func (s *Service) rankDomainProfiles(ctx context.Context, dom string, col *aggregate.Collector, opts Options) ([]*domain.Event, error) {
	plan := filter.Plan{{
		Kinds:  []int{domain.KindProfile},
		Search: dom,
		Limit:  domainRankLimit,
	}}
	tmp := aggregate.NewCollector()
	err := s.agg.CollectInto(ctx, plan, tmp, aggregate.Options{
		Relays:     s.relaysFor(opts, relayset.Profiles, relayset.Search),
		Timeout:    opts.Timeout,
		MaxResults: domainRankLimit,
	})
	if err != nil {
		return nil, err
	}
	events := tmp.Snapshot()

	var cands []rank.Candidate
	for _, ev := range newestProfiles(events) {
		meta := profile.Parse(ev)
		if d, _ := meta.NIP05Domain(); d != dom {
			continue
		}
		cands = append(cands, rank.Candidate{
			PubKey:  domain.PubKey(ev.PubKey),
			Profile: ev,
			Meta:    meta,
		})
	}
	rank.Sort(cands, dom)

	ordered := make([]*domain.Event, 0, len(cands))
	for i := range cands {
		col.Add(cands[i].Profile, "rank")
		ordered = append(ordered, cands[i].Profile)
	}
	return ordered, nil
}

// searchMentions finds notes tagging the resolved identities, optionally
// narrowed by resolved authors and residual text.
func (s *Service) searchMentions(ctx context.Context, parsed query.Parsed, col *aggregate.Collector, opts Options) error {
	mentioned := s.resolveAll(ctx, parsed.Mentions)
	if len(mentioned) == 0 {
		return nil
	}
	authors := s.resolveAll(ctx, parsed.Authors)

	tags := tagConstraints(parsed)
	if tags == nil {
		tags = make(map[string][]string)
	}
	tags["p"] = mentioned

	base := filter.Filter{
		Kinds:   s.kindsFor(parsed, opts),
		Tags:    tags,
		Authors: authors,
	}

	residual := query.Normalize(parsed.Text)
	purpose := relayset.Default
	var variants []filter.Filter
	if len(residual) >= minRelaySearchTerm {
		purpose = relayset.Search
		for _, v := range query.Variants(residual) {
			f := base
			f.Search = v
			variants = append(variants, f)
		}
	} else {
		variants = []filter.Filter{base}
	}
	return s.fanOut(ctx, variants, s.relaysFor(opts, purpose), parsed, col, opts)
}

// searchByAuthors finds notes by the resolved authors matching the residual
// term, widening the relay set progressively when nothing comes back.
func (s *Service) searchByAuthors(ctx context.Context, parsed query.Parsed, col *aggregate.Collector, opts Options) error {
	authors := s.resolveAll(ctx, parsed.Authors)
	if len(authors) == 0 {
		return nil
	}

	residual := query.Normalize(parsed.Text)
	base := filter.Filter{
		Authors: authors,
		Kinds:   s.kindsFor(parsed, opts),
		Tags:    tagConstraints(parsed),
	}

	if len(residual) >= minRelaySearchTerm {
		var variants []filter.Filter
		for _, v := range query.Variants(residual) {
			f := base
			f.Search = v
			variants = append(variants, f)
		}
		if err := s.fanOut(ctx, variants, s.relaysFor(opts, relayset.Search), parsed, col, opts); err != nil {
			return err
		}
		if col.Len() > 0 {
			return nil
		}
		// Widen: the same search on the premium and broad sets.
		if err := s.fanOut(ctx, variants, s.relaysFor(opts, relayset.Premium, relayset.Default), parsed, col, opts); err != nil {
			return err
		}
		if col.Len() > 0 {
			return nil
		}
	}

	// Last resort: fetch the authors' notes and match the term client-side.
	// This is also the only path for terms too short for relay-side search.
	accept := acceptPredicate(parsed)
	if residual != "" {
		accept = andPredicate(accept, func(ev *domain.Event) bool {
			return ev.ContentContainsFold(residual)
		})
	}
	s.logger.Debug("Author search falling back to client-side match",
		zap.Int("authors", len(authors)),
		zap.String("term", residual),
	)
	return s.executeWith(ctx, filter.Plan{base}, s.relaysFor(opts, relayset.Default, relayset.Premium), parsed, accept, col, opts)
}

// searchFullText is the terminal strategy: relay-side full-text over every
// boolean variant of the cleaned query.
func (s *Service) searchFullText(ctx context.Context, parsed query.Parsed, col *aggregate.Collector, opts Options) error {
	residual := query.Normalize(parsed.Text)
	tags := tagConstraints(parsed)
	if residual == "" && tags == nil {
		return fmt.Errorf("search: %w", domain.ErrEmptyFilter)
	}

	base := filter.Filter{
		Kinds: s.kindsFor(parsed, opts),
		Tags:  tags,
	}
	var variants []filter.Filter
	if residual == "" {
		variants = []filter.Filter{base}
	} else {
		for _, v := range query.Variants(residual) {
			f := base
			f.Search = v
			variants = append(variants, f)
		}
	}
	return s.fanOut(ctx, variants, s.relaysFor(opts, relayset.Search), parsed, col, opts)
}

// resolveAll resolves identity tokens, dropping the ones that cannot be
// resolved. Failures are logged and skipped; a partially resolved author
// list is more useful than none.
func (s *Service) resolveAll(ctx context.Context, tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		res, err := s.resolver.Resolve(ctx, tok)
		if err != nil || !res.Found() {
			s.logger.Debug("Skipping unresolved token", zap.String("token", tok), zap.Error(err))
			continue
		}
		out = appendUniqueString(out, res.PubKey.String())
	}
	return out
}

// tagConstraints builds relay-side tag filters from the parsed modifiers.
func tagConstraints(parsed query.Parsed) map[string][]string {
	if len(parsed.Licenses) == 0 {
		return nil
	}
	tags := make(map[string][]string, 1)
	for _, l := range parsed.Licenses {
		tags["l"] = appendLower(tags["l"], l)
	}
	return tags
}

// acceptPredicate builds the client-side residual predicate for constraints
// relays cannot apply: site and content-shape flags.
func acceptPredicate(parsed query.Parsed) func(*domain.Event) bool {
	if len(parsed.Sites) == 0 && len(parsed.Flags) == 0 {
		return nil
	}
	sites := parsed.Sites
	flags := parsed.Flags
	return func(ev *domain.Event) bool {
		if len(sites) > 0 && !matchesAnySite(ev.Content, sites) {
			return false
		}
		for _, fl := range flags {
			if !matchesFlag(ev, fl) {
				return false
			}
		}
		return true
	}
}

func matchesAnySite(content string, hosts []string) bool {
	for _, host := range hosts {
		if containsHost(content, host) {
			return true
		}
	}
	return false
}

func andPredicate(a, b func(*domain.Event) bool) func(*domain.Event) bool {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ev *domain.Event) bool { return a(ev) && b(ev) }
}

// containsHost reports whether content links to the host. Matching the host
// with a boundary check avoids "notreddit.com" matching "reddit.com".
func containsHost(content, host string) bool {
	lc := strings.ToLower(content)
	host = strings.ToLower(host)
	for idx := strings.Index(lc, host); idx >= 0; {
		before := byte(0)
		if idx > 0 {
			before = lc[idx-1]
		}
		if before == 0 || before == '/' || before == '.' || before == ' ' || before == '@' {
			return true
		}
		next := strings.Index(lc[idx+1:], host)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

var flagMarkers = map[string][]string{
	query.FlagImage: {".jpg", ".jpeg", ".png", ".gif", ".webp"},
	query.FlagVideo: {".mp4", ".webm", ".mov", "youtube.com/watch", "youtu.be/"},
	query.FlagLink:  {"http://", "https://"},
}

func matchesFlag(ev *domain.Event, flag string) bool {
	if flag == query.FlagReply {
		return ev.HasTag("e")
	}
	markers, ok := flagMarkers[flag]
	if !ok {
		return true
	}
	lc := strings.ToLower(ev.Content)
	for _, m := range markers {
		if strings.Contains(lc, m) {
			return true
		}
	}
	return false
}

// mergeRelayLists unions relay lists preserving first-seen order.
func mergeRelayLists(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, u := range list {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}

func appendLower(slice []string, v string) []string {
	return appendUniqueString(slice, strings.ToLower(v))
}

func appendUniqueString(slice []string, v string) []string {
	for _, existing := range slice {
		if existing == v {
			return slice
		}
	}
	return append(slice, v)
}

// newestProfiles keeps the newest profile event per author.
func newestProfiles(events []*domain.Event) []*domain.Event {
	newest := make(map[string]*domain.Event)
	var order []string
	for _, ev := range events {
		if ev.Kind != domain.KindProfile {
			continue
		}
		cur, ok := newest[ev.PubKey]
		if !ok {
			order = append(order, ev.PubKey)
		}
		if !ok || ev.CreatedAt > cur.CreatedAt {
			newest[ev.PubKey] = ev
		}
	}
	out := make([]*domain.Event, 0, len(order))
	for _, pk := range order {
		out = append(out, newest[pk])
	}
	return out
}
