// Package nip05 fetches well-known domain-hosted identity mappings.
package nip05

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/domain"
)

const (
	// DefaultTimeout is the hard bound on one well-known fetch.
	DefaultTimeout = 5 * time.Second
	// maxBodyBytes caps the response we are willing to parse. The document
	// is untrusted input.
	maxBodyBytes = 1 << 20
)

// handleRe matches name@domain, bare domain.tld and @domain.tld literals.
var handleRe = regexp.MustCompile(`^@?([\w.+-]*)@?([\w-]+(?:\.[\w-]+)+)$`)

// ParseHandle splits a verification literal into local part and domain.
// A missing local part maps to "_" (root-level handle).
func ParseHandle(token string) (name, dom string, ok bool) {
	token = strings.TrimSpace(token)
	if strings.Count(token, "@") > 1 {
		return "", "", false
	}
	local, d, found := strings.Cut(strings.TrimPrefix(token, "@"), "@")
	if !found {
		// bare domain.tld
		d, local = local, ""
	}
	if !strings.Contains(d, ".") || strings.ContainsAny(d, " /") {
		return "", "", false
	}
	if local == "" {
		local = "_"
	}
	return strings.ToLower(local), strings.ToLower(d), true
}

// IsHandle reports whether the token looks like a domain-verification literal.
func IsHandle(token string) bool {
	if !handleRe.MatchString(strings.TrimSpace(token)) {
		return false
	}
	_, _, ok := ParseHandle(token)
	return ok
}

// wellKnown mirrors the JSON shape of the hosted mapping document.
type wellKnown struct {
	Names map[string]string `json:"names"`
}

// Fetcher resolves name@domain handles against the domain's well-known
// mapping document.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a fetcher. A nil client uses a dedicated one with the default
// hard timeout.
func New(client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, timeout: DefaultTimeout, logger: logger}
}

// Lookup fetches the mapping for name@dom. An unreachable domain, a non-200
// response, malformed JSON, or an absent name are all clean negatives, never
// errors: the caller treats them as "this handle does not verify".
func (f *Fetcher) Lookup(ctx context.Context, name, dom string) (domain.PubKey, bool) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	u := fmt.Sprintf("https://%s/.well-known/nostr.json?name=%s", dom, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("Well-known fetch failed", zap.String("domain", dom), zap.Error(err))
		return "", false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var doc wellKnown
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&doc); err != nil {
		f.logger.Debug("Well-known document malformed", zap.String("domain", dom), zap.Error(err))
		return "", false
	}

	raw, ok := doc.Names[name]
	if !ok && name != strings.ToLower(name) {
		raw, ok = doc.Names[strings.ToLower(name)]
	}
	if !ok {
		return "", false
	}

	pk, err := domain.ParsePubKey(raw)
	if err != nil {
		f.logger.Debug("Well-known entry is not a valid key",
			zap.String("domain", dom), zap.String("name", name))
		return "", false
	}
	return pk, true
}
