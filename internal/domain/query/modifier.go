// Package query compiles free-text user queries: structured modifier
// extraction and boolean OR expansion. All functions are pure; the input
// string is never mutated in place.
package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Known has:/is: flags. Unknown flags stay in the text as plain terms.
const (
	FlagImage = "image"
	FlagVideo = "video"
	FlagLink  = "link"
	FlagReply = "reply"
)

// Parsed is the outcome of modifier extraction: the cleaned residual text
// plus every typed side-channel value. Repeated modifiers of the same family
// are unioned, never overwritten.
type Parsed struct {
	Text     string   // cleaned full-text remainder
	Kinds    []int    // kind: values, deduplicated; empty means caller default
	Since    int64    // inclusive start-of-day, unix seconds; 0 when absent
	Until    int64    // inclusive end-of-day (start + 86399s); 0 when absent
	Sites    []string // site: values expanded through the alias table
	Flags    []string // has:/is: flags (image, video, link, reply)
	Licenses []string // license: values, matched as "l" tag constraints
	Authors  []string // by: tokens, unresolved
	Mentions []string // mentions: tokens, unresolved
	Profile  string   // p: token, unresolved
	Relays   []string // relay: overrides
}

// HasModifiers reports whether any structured modifier was extracted.
func (p *Parsed) HasModifiers() bool {
	return len(p.Kinds) > 0 || p.Since > 0 || p.Until > 0 ||
		len(p.Sites) > 0 || len(p.Flags) > 0 || len(p.Licenses) > 0 ||
		len(p.Authors) > 0 || len(p.Mentions) > 0 || p.Profile != "" ||
		len(p.Relays) > 0
}

var (
	kindRe     = regexp.MustCompile(`(?i)(^|\s)kind:([0-9][0-9,]*)`)
	sinceRe    = regexp.MustCompile(`(?i)(^|\s)since:(\d{4}-\d{2}-\d{2})\b`)
	untilRe    = regexp.MustCompile(`(?i)(^|\s)until:(\d{4}-\d{2}-\d{2})\b`)
	siteRe     = regexp.MustCompile(`(?i)(^|\s)site:(\S+)`)
	flagRe     = regexp.MustCompile(`(?i)(^|\s)(?:has|is):([a-z]+)\b`)
	licenseRe  = regexp.MustCompile(`(?i)(^|\s)license:(\S+)`)
	byRe       = regexp.MustCompile(`(?i)(^|\s)by:(\S+)`)
	mentionsRe = regexp.MustCompile(`(?i)(^|\s)mentions:(\S+)`)
	profileRe  = regexp.MustCompile(`(?i)(^|\s)p:(\S+)`)
	relayRe    = regexp.MustCompile(`(?i)(^|\s)relay:(wss?://\S+)`)
)

// siteAliases maps short site names to the equivalent hostnames they cover.
// Values not present in the table are treated as literal hostnames.
var siteAliases = map[string][]string{
	"youtube": {"youtube.com", "youtu.be", "m.youtube.com"},
	"twitter": {"twitter.com", "x.com", "mobile.twitter.com"},
	"x":       {"twitter.com", "x.com"},
	"github":  {"github.com", "gist.github.com"},
	"reddit":  {"reddit.com", "old.reddit.com", "redd.it"},
	"tiktok":  {"tiktok.com", "vm.tiktok.com"},
}

var knownFlags = map[string]bool{
	FlagImage: true,
	FlagVideo: true,
	FlagLink:  true,
	FlagReply: true,
}

// Extract strips structured modifiers from raw query text. Each family is
// extracted independently; matched tokens are removed from the text and the
// remainder's whitespace collapsed. Malformed or unrecognized values are left
// in the text and degrade to full-text terms; extraction never fails.
func Extract(raw string) Parsed {
	var p Parsed
	text := raw

	text = extractAll(text, kindRe, func(v string) bool {
		kinds, ok := parseKindList(v)
		if !ok {
			return false
		}
		p.Kinds = append(p.Kinds, kinds...)
		return true
	})

	// Repeated window modifiers union like the other families: the widest
	// window wins, so the earliest since and the latest until stand.
	text = extractAll(text, sinceRe, func(v string) bool {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return false
		}
		if ts := t.UTC().Unix(); p.Since == 0 || ts < p.Since {
			p.Since = ts
		}
		return true
	})

	text = extractAll(text, untilRe, func(v string) bool {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return false
		}
		if ts := t.UTC().Unix() + 86399; ts > p.Until {
			p.Until = ts
		}
		return true
	})

	text = extractAll(text, siteRe, func(v string) bool {
		p.Sites = append(p.Sites, expandSite(v)...)
		return true
	})

	text = extractAll(text, flagRe, func(v string) bool {
		v = strings.ToLower(v)
		if !knownFlags[v] {
			return false
		}
		p.Flags = appendUnique(p.Flags, v)
		return true
	})

	text = extractAll(text, licenseRe, func(v string) bool {
		p.Licenses = appendUnique(p.Licenses, strings.ToLower(v))
		return true
	})

	text = extractAll(text, mentionsRe, func(v string) bool {
		p.Mentions = appendUnique(p.Mentions, v)
		return true
	})

	text = extractAll(text, byRe, func(v string) bool {
		p.Authors = appendUnique(p.Authors, v)
		return true
	})

	text = extractAll(text, profileRe, func(v string) bool {
		if p.Profile != "" {
			return false // only the first p: token owns the slot
		}
		p.Profile = v
		return true
	})

	text = extractAll(text, relayRe, func(v string) bool {
		p.Relays = appendUnique(p.Relays, v)
		return true
	})

	p.Kinds = dedupKinds(p.Kinds)
	p.Text = Normalize(text)
	return p
}

// extractAll removes every match whose value the consume callback accepts.
// Rejected matches stay in the text untouched (lenient parsing).
func extractAll(text string, re *regexp.Regexp, consume func(value string) bool) string {
	return re.ReplaceAllStringFunc(text, func(m string) string {
		sub := re.FindStringSubmatch(m)
		lead, value := sub[1], sub[2]
		if consume(value) {
			return lead
		}
		return m
	})
}

// Normalize collapses runs of whitespace and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseKindList(v string) ([]int, bool) {
	var kinds []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, false
		}
		kinds = append(kinds, n)
	}
	return kinds, len(kinds) > 0
}

func dedupKinds(kinds []int) []int {
	if len(kinds) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(kinds))
	out := kinds[:0]
	for _, k := range kinds {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func expandSite(v string) []string {
	v = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(v, "https://"), "http://"))
	v = strings.TrimSuffix(v, "/")
	if hosts, ok := siteAliases[v]; ok {
		return hosts
	}
	return []string{v}
}

func appendUnique(slice []string, v string) []string {
	for _, s := range slice {
		if s == v {
			return slice
		}
	}
	return append(slice, v)
}
