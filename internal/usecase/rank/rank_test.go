package rank

import (
	"testing"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/profile"
)

func named(name string) Candidate {
	return Candidate{Meta: profile.Metadata{Name: name}}
}

func TestScore_NameTiers(t *testing.T) {
	tests := []struct {
		name  string
		cand  Candidate
		query string
		want  float64
	}{
		{"exact", named("alice"), "alice", scoreExact},
		{"exact case-insensitive", named("Alice"), "ALICE", scoreExact},
		{"prefix", named("alice-w"), "alice", scorePrefix},
		{"substring", named("malice"), "alice", scoreSubstring},
		{"no match", named("bob"), "alice", 0},
		{"empty query", named("alice"), "", 0},
		{"empty name", Candidate{}, "alice", 0},
		{"query trimmed", named("alice"), "  alice  ", scoreExact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.cand, tt.query); got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore_BestOfNameAndDisplayName(t *testing.T) {
	c := Candidate{Meta: profile.Metadata{Name: "malice", DisplayName: "alice"}}
	if got := Score(c, "alice"); got != scoreExact {
		t.Errorf("Score() = %v, want exact tier from display name", got)
	}
}

func TestScore_Bonuses(t *testing.T) {
	base := named("alice")

	verified := base
	verified.Verified = true
	if got := Score(verified, "alice"); got != scoreExact+bonusVerified {
		t.Errorf("verified: %v", got)
	}

	root := verified
	root.RootVerified = true
	if got := Score(root, "alice"); got != scoreExact+bonusVerified+bonusRootVerified {
		t.Errorf("root verified: %v", got)
	}

	// RootVerified without Verified must not count.
	rootOnly := base
	rootOnly.RootVerified = true
	if got := Score(rootOnly, "alice"); got != scoreExact {
		t.Errorf("root without verified: %v", got)
	}

	followed := base
	followed.Followed = true
	if got := Score(followed, "alice"); got != scoreExact+bonusFollowed {
		t.Errorf("followed: %v", got)
	}
}

func TestScore_ReceiptDominance(t *testing.T) {
	tests := []struct {
		name  string
		kinds []int
		want  float64
	}{
		{"zap receipt", []int{domain.KindZapReceipt}, bonusZapReceipt},
		{"nutzap", []int{domain.KindNutzap}, bonusNutzap},
		{"both, zap dominates", []int{domain.KindNutzap, domain.KindZapReceipt}, bonusZapReceipt},
		{"duplicates do not stack", []int{domain.KindZapReceipt, domain.KindZapReceipt}, bonusZapReceipt},
		{"unrelated kinds ignored", []int{domain.KindNote}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := named("alice")
			c.ReceiptKinds = tt.kinds
			if got := Score(c, "alice"); got != scoreExact+tt.want {
				t.Errorf("Score() = %v, want %v", got, scoreExact+tt.want)
			}
		})
	}
}

func TestSort(t *testing.T) {
	verified := named("alice")
	verified.Verified = true
	followedTie := named("alice")
	followedTie.Followed = true

	cands := []Candidate{named("malice"), verified, named("alice"), followedTie}
	Sort(cands, "alice")

	if !cands[0].Verified {
		t.Errorf("verified candidate must rank first, got %+v", cands[0])
	}
	// followedTie beats the plain exact match on the follow tie-break only
	// after accounting for its score bonus; either way it precedes it.
	if !cands[1].Followed {
		t.Errorf("followed candidate must rank second, got %+v", cands[1])
	}
	if cands[3].Meta.Name != "malice" {
		t.Errorf("substring match must rank last, got %+v", cands[3])
	}
}

func TestSort_TieBreaksByName(t *testing.T) {
	cands := []Candidate{named("alice-z"), named("alice-a")}
	Sort(cands, "alice")
	if cands[0].Meta.Name != "alice-a" {
		t.Errorf("lexicographic tie-break, got %q first", cands[0].Meta.Name)
	}
}

func TestBest(t *testing.T) {
	if Best(nil, "alice") != nil {
		t.Error("empty list must yield nil")
	}
	if Best([]Candidate{named("bob")}, "alice") != nil {
		t.Error("zero-score candidates must yield nil")
	}
	got := Best([]Candidate{named("malice"), named("alice")}, "alice")
	if got == nil || got.Meta.Name != "alice" {
		t.Errorf("Best() = %+v", got)
	}
}
