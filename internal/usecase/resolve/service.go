// Package resolve turns free-form author tokens into canonical identifiers
// through a tiered chain: literal decode, domain verification, then an oracle
// lookup raced against a relay-side full-text fallback.
package resolve

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/domain/profile"
	"github.com/relayseek/relayseek/internal/nip19"
	"github.com/relayseek/relayseek/internal/transport/nip05"
	"github.com/relayseek/relayseek/internal/usecase/aggregate"
	"github.com/relayseek/relayseek/internal/usecase/rank"
)

const (
	// fallbackTimeout bounds the relay-side profile search branch.
	fallbackTimeout = 8 * time.Second
	// fallbackLimit is how many candidate profiles the fallback considers.
	fallbackLimit = 30
	// verifyTop caps how many top candidates get their claimed handle
	// verified for the ranking bonus.
	verifyTop = 5
	// oracleLimit is how many ranked identities the oracle is asked for.
	oracleLimit = 10
)

// Config tunes the resolution chain.
type Config struct {
	// RequireLoginForOracle skips the oracle entirely for logged-out callers
	// instead of spending an ephemeral signature on a ranking whose quality
	// depends on an authenticated identity graph.
	RequireLoginForOracle bool
	// ProfileRelays is the identity-search-capable relay group.
	ProfileRelays []string
}

// Service implements the resolution chain.
type Service struct {
	oracle    Oracle // nil disables the oracle branch
	verifier  Verifier
	collector Collector
	cfg       Config

	login     domain.Signer // logged-in identity, nil when logged out
	ephemeral func() (domain.Signer, error)
	follows   map[domain.PubKey]bool

	outcomes *prometheus.CounterVec // label: branch
	logger   *zap.Logger
}

// New creates a resolution service. oracle, login, ephemeral, follows and
// outcomes may be nil.
func New(
	oracle Oracle,
	verifier Verifier,
	collector Collector,
	cfg Config,
	login domain.Signer,
	ephemeral func() (domain.Signer, error),
	follows map[domain.PubKey]bool,
	outcomes *prometheus.CounterVec,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		oracle:    oracle,
		verifier:  verifier,
		collector: collector,
		cfg:       cfg,
		login:     login,
		ephemeral: ephemeral,
		follows:   follows,
		outcomes:  outcomes,
		logger:    logger,
	}
}

// Resolve maps a token to a canonical identifier. A nil-pubkey resolution
// with a nil error is a legitimate negative outcome; errors are reserved for
// contract violations.
func (s *Service) Resolve(ctx context.Context, token string) (domain.Resolution, error) {
	// Branch 1: canonical literal, no network.
	if res, ok := s.resolveLiteral(token); ok {
		s.outcome("literal")
		return res, nil
	}

	// Branch 2: domain-verification handle.
	if nip05.IsHandle(token) {
		name, dom, _ := nip05.ParseHandle(token)
		if pk, found := s.verifier.Check(ctx, name, dom); found {
			s.outcome("verified")
			return domain.ResolutionOf(pk, nil), nil
		}
		s.outcome("verify-negative")
		return domain.Resolution{}, nil
	}

	// Branch 3: free-form name, oracle raced against the relay fallback.
	res := firstSuccessful(ctx, s.raceBranches(token)...)
	if res == nil {
		s.outcome("negative")
		return domain.Resolution{}, nil
	}
	s.outcome("race")
	return *res, nil
}

func (s *Service) resolveLiteral(token string) (domain.Resolution, bool) {
	if domain.IsHexPubKey(token) {
		pk, _ := domain.ParsePubKey(token)
		return domain.ResolutionOf(pk, nil), true
	}
	if nip19.HasPrefix(token) {
		ptr, err := nip19.Decode(token)
		if err != nil || ptr.IsEvent() || ptr.PubKey == "" {
			return domain.Resolution{}, false
		}
		return domain.ResolutionOf(ptr.PubKey, nil), true
	}
	return domain.Resolution{}, false
}

func (s *Service) raceBranches(token string) []func(context.Context) (*domain.Resolution, error) {
	branches := []func(context.Context) (*domain.Resolution, error){
		func(ctx context.Context) (*domain.Resolution, error) {
			return s.fallbackSearch(ctx, token)
		},
	}

	signer := s.oracleSigner()
	if s.oracle != nil && signer != nil {
		branches = append(branches, func(ctx context.Context) (*domain.Resolution, error) {
			return s.oracleSearch(ctx, signer, token)
		})
	}
	return branches
}

// oracleSigner picks the signing identity for an oracle request, or nil when
// the branch must be skipped.
func (s *Service) oracleSigner() domain.Signer {
	if s.login != nil {
		return s.login
	}
	if s.cfg.RequireLoginForOracle || s.ephemeral == nil {
		return nil
	}
	signer, err := s.ephemeral()
	if err != nil {
		s.logger.Warn("Ephemeral signer unavailable, oracle branch skipped", zap.Error(err))
		return nil
	}
	return signer
}

func (s *Service) oracleSearch(ctx context.Context, signer domain.Signer, token string) (*domain.Resolution, error) {
	keys, err := s.oracle.SearchProfiles(ctx, signer, token, oracleLimit)
	if err != nil {
		if errors.Is(err, domain.ErrOracleExhausted) {
			// Credits are spent: the branch dies without retry and the
			// fallback's answer stands alone.
			s.outcome("oracle-exhausted")
			s.logger.Debug("Oracle credits exhausted", zap.Error(err))
			return nil, nil
		}
		s.logger.Debug("Oracle lookup failed", zap.Error(err))
		return nil, nil
	}
	if len(keys) == 0 {
		return nil, nil
	}
	res := domain.ResolutionOf(keys[0], nil)
	return &res, nil
}

// fallbackSearch runs a relay-side full-text profile search and ranks the
// candidates locally.
func (s *Service) fallbackSearch(ctx context.Context, token string) (*domain.Resolution, error) {
	plan, err := filter.NewPlan(filter.Filter{
		Kinds:  []int{domain.KindProfile},
		Search: token,
		Limit:  fallbackLimit,
	})
	if err != nil {
		return nil, err
	}

	events, err := s.collector.Collect(ctx, plan, aggregate.Options{
		Relays:     s.cfg.ProfileRelays,
		Timeout:    fallbackTimeout,
		MaxResults: fallbackLimit,
	})
	if err != nil || len(events) == 0 {
		return nil, nil
	}

	cands := s.candidates(ctx, events, token)
	best := rank.Best(cands, token)
	if best == nil {
		return nil, nil
	}
	res := domain.ResolutionOf(best.PubKey, best.Profile)
	return &res, nil
}

// candidates keeps the newest profile per pubkey and decorates the strongest
// preliminary matches with verification status.
func (s *Service) candidates(ctx context.Context, events []*domain.Event, token string) []rank.Candidate {
	newest := make(map[string]*domain.Event, len(events))
	for _, ev := range events {
		if ev.Kind != domain.KindProfile {
			continue
		}
		if cur, ok := newest[ev.PubKey]; !ok || ev.CreatedAt > cur.CreatedAt {
			newest[ev.PubKey] = ev
		}
	}

	cands := make([]rank.Candidate, 0, len(newest))
	for _, ev := range newest {
		pk, err := domain.ParsePubKey(ev.PubKey)
		if err != nil {
			continue
		}
		cands = append(cands, rank.Candidate{
			PubKey:   pk,
			Profile:  ev,
			Meta:     profile.Parse(ev),
			Followed: s.follows[pk],
		})
	}

	rank.Sort(cands, token)
	for i := range cands {
		if i >= verifyTop {
			break
		}
		s.verifyCandidate(ctx, &cands[i])
	}
	return cands
}

func (s *Service) verifyCandidate(ctx context.Context, c *rank.Candidate) {
	if s.verifier == nil || c.Meta.NIP05 == "" {
		return
	}
	name, dom, ok := nip05.ParseHandle(c.Meta.NIP05)
	if !ok {
		return
	}
	pk, found := s.verifier.Check(ctx, name, dom)
	if !found || pk != c.PubKey {
		return
	}
	c.Verified = true
	_, root := c.Meta.NIP05Domain()
	c.RootVerified = root
}

func (s *Service) outcome(branch string) {
	if s.outcomes != nil {
		s.outcomes.WithLabelValues(branch).Inc()
	}
}
