package nip05

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const hexKey = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"

func TestParseHandle(t *testing.T) {
	tests := []struct {
		token    string
		wantName string
		wantDom  string
		wantOK   bool
	}{
		{"alice@example.com", "alice", "example.com", true},
		{"Alice@Example.COM", "alice", "example.com", true},
		{"@example.com", "_", "example.com", true},
		{"example.com", "_", "example.com", true},
		{" alice@example.com ", "alice", "example.com", true},
		{"a@b@c.com", "", "", false},
		{"no-domain", "", "", false},
		{"alice@bad domain.com", "", "", false},
	}
	for _, tt := range tests {
		name, dom, ok := ParseHandle(tt.token)
		if name != tt.wantName || dom != tt.wantDom || ok != tt.wantOK {
			t.Errorf("ParseHandle(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.token, name, dom, ok, tt.wantName, tt.wantDom, tt.wantOK)
		}
	}
}

func TestIsHandle(t *testing.T) {
	for _, token := range []string{"alice@example.com", "example.com", "@example.com"} {
		if !IsHandle(token) {
			t.Errorf("IsHandle(%q) = false", token)
		}
	}
	for _, token := range []string{"", "plaintext", "bitcoin lightning", "https://example.com"} {
		if IsHandle(token) {
			t.Errorf("IsHandle(%q) = true", token)
		}
	}
}

// testFetcher wires a Fetcher to a TLS test server; the returned dom routes
// requests to it.
func testFetcher(t *testing.T, handler http.HandlerFunc) (*Fetcher, string) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	f := New(srv.Client(), nil)
	return f, strings.TrimPrefix(srv.URL, "https://")
}

func TestLookup_Found(t *testing.T) {
	f, dom := testFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/nostr.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("name"); got != "alice" {
			t.Errorf("name query = %q", got)
		}
		_, _ = w.Write([]byte(`{"names":{"alice":"` + hexKey + `"}}`))
	})

	pk, ok := f.Lookup(context.Background(), "alice", dom)
	if !ok || pk.String() != hexKey {
		t.Fatalf("Lookup() = (%q, %v)", pk, ok)
	}
}

func TestLookup_CleanNegatives(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"name absent", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"names":{"bob":"` + hexKey + `"}}`))
		}},
		{"non-200", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"malformed json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"names":`))
		}},
		{"invalid key", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"names":{"alice":"not-a-key"}}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, dom := testFetcher(t, tt.handler)
			if _, ok := f.Lookup(context.Background(), "alice", dom); ok {
				t.Error("expected a negative")
			}
		})
	}
}

func TestLookup_UnreachableDomain(t *testing.T) {
	f := New(&http.Client{}, nil)
	if _, ok := f.Lookup(context.Background(), "alice", "localhost:1"); ok {
		t.Error("expected a negative")
	}
}

func TestLookup_MixedCaseNameFallsBackToLower(t *testing.T) {
	f, dom := testFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"names":{"alice":"` + hexKey + `"}}`))
	})

	pk, ok := f.Lookup(context.Background(), "Alice", dom)
	if !ok || pk.String() != hexKey {
		t.Fatalf("Lookup() = (%q, %v)", pk, ok)
	}
}
