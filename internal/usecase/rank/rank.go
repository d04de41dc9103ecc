// Package rank scores profile candidates against a name query.
package rank

import (
	"sort"
	"strings"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/profile"
)

// Name-match tiers are non-overlapping: only the highest tier reached counts,
// taking the best across name and display name.
const (
	scoreExact     = 10.0
	scorePrefix    = 6.0
	scoreSubstring = 3.0

	bonusVerified     = 8.0 // nip05 handle confirmed by its domain
	bonusRootVerified = 3.0 // on top of bonusVerified for a root-level handle
	bonusFollowed     = 4.0 // in the caller's direct follow set

	// Payment receipt bonuses. The stronger receipt dominates; they never
	// stack with each other.
	bonusZapReceipt = 5.0
	bonusNutzap     = 2.0
)

// Candidate is one profile considered for an identity query.
type Candidate struct {
	PubKey       domain.PubKey
	Profile      *domain.Event
	Meta         profile.Metadata
	Verified     bool // nip05 confirmed against the claimed domain
	RootVerified bool // verified with no local part (root-level handle)
	Followed     bool // in the caller's direct follow set
	ReceiptKinds []int
}

// Score computes the ranking score of a candidate for a query; higher wins.
func Score(c Candidate, query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))

	score := nameScore(c.Meta.Name, q)
	if s := nameScore(c.Meta.DisplayName, q); s > score {
		score = s
	}

	if c.Verified {
		score += bonusVerified
		if c.RootVerified {
			score += bonusRootVerified
		}
	}
	if c.Followed {
		score += bonusFollowed
	}
	score += receiptBonus(c.ReceiptKinds)

	return score
}

// Sort orders candidates best-first. Ties break by follow status, then by
// lexicographic name.
func Sort(cands []Candidate, query string) {
	type scored struct {
		c Candidate
		s float64
	}
	tmp := make([]scored, len(cands))
	for i := range cands {
		tmp[i] = scored{c: cands[i], s: Score(cands[i], query)}
	}
	sort.SliceStable(tmp, func(i, j int) bool {
		if tmp[i].s != tmp[j].s {
			return tmp[i].s > tmp[j].s
		}
		if tmp[i].c.Followed != tmp[j].c.Followed {
			return tmp[i].c.Followed
		}
		return sortName(tmp[i].c) < sortName(tmp[j].c)
	})
	for i := range tmp {
		cands[i] = tmp[i].c
	}
}

// Best returns the top candidate, or nil when the list is empty or nothing
// matches the query at all.
func Best(cands []Candidate, query string) *Candidate {
	if len(cands) == 0 {
		return nil
	}
	Sort(cands, query)
	if Score(cands[0], query) <= 0 {
		return nil
	}
	return &cands[0]
}

func nameScore(name, q string) float64 {
	if name == "" || q == "" {
		return 0
	}
	name = strings.ToLower(name)
	switch {
	case name == q:
		return scoreExact
	case strings.HasPrefix(name, q):
		return scorePrefix
	case strings.Contains(name, q):
		return scoreSubstring
	}
	return 0
}

func receiptBonus(kinds []int) float64 {
	bonus := 0.0
	for _, k := range kinds {
		switch k {
		case domain.KindZapReceipt:
			return bonusZapReceipt
		case domain.KindNutzap:
			bonus = bonusNutzap
		}
	}
	return bonus
}

func sortName(c Candidate) string {
	return strings.ToLower(c.Meta.BestName())
}
