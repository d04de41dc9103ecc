package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/relayseek/relayseek/internal/config"
	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/repository/profiles"
	"github.com/relayseek/relayseek/internal/usecase/search"
)

const hexKey = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"

type mockSearcher struct {
	searchFn func(ctx context.Context, text string, opts search.Options) (search.Result, error)
}

func (m *mockSearcher) Search(ctx context.Context, text string, opts search.Options) (search.Result, error) {
	return m.searchFn(ctx, text, opts)
}

type mockResolver struct {
	resolveFn func(ctx context.Context, token string) (domain.Resolution, error)
}

func (m *mockResolver) Resolve(ctx context.Context, token string) (domain.Resolution, error) {
	return m.resolveFn(ctx, token)
}

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.Search.DefaultLimit = 50
	cfg.Search.MaxLimit = 500
	cfg.Search.TimeoutSec = 5
	cfg.Search.SnapshotEveryMs = 100
	return cfg
}

func newTestServer(searcher Searcher, resolver Resolver) *Server {
	store, _ := profiles.New(16)
	return New(testConfig(), searcher, resolver, store, nil)
}

func doRequest(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(nil, nil)
	rec := doRequest(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(_ context.Context, text string, opts search.Options) (search.Result, error) {
		if text != "bitcoin" {
			t.Errorf("text = %q", text)
		}
		if opts.Limit != 50 {
			t.Errorf("default limit = %d", opts.Limit)
		}
		return search.Result{
			Events:   []*domain.Event{{ID: "a", Kind: domain.KindNote, Content: "bitcoin"}},
			Strategy: search.StrategyFullText,
		}, nil
	}}
	s := newTestServer(searcher, nil)

	rec := doRequest(t, s, "/search?q=bitcoin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Strategy != search.StrategyFullText || !resp.Complete {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleSearch_SnapshotCadenceFromConfig(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(_ context.Context, _ string, opts search.Options) (search.Result, error) {
		if opts.SnapshotEvery != 100*time.Millisecond {
			t.Errorf("snapshot cadence = %v, want the configured 100ms", opts.SnapshotEvery)
		}
		return search.Result{}, nil
	}}
	s := newTestServer(searcher, nil)
	doRequest(t, s, "/search?q=x")
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	s := newTestServer(&mockSearcher{}, nil)
	rec := doRequest(t, s, "/search")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleSearch_LimitClampedToMax(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(_ context.Context, _ string, opts search.Options) (search.Result, error) {
		if opts.Limit != 500 {
			t.Errorf("limit = %d, want the configured maximum", opts.Limit)
		}
		return search.Result{}, nil
	}}
	s := newTestServer(searcher, nil)
	doRequest(t, s, "/search?q=x&limit=99999")
}

func TestHandleSearch_RelaysParam(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(_ context.Context, _ string, opts search.Options) (search.Result, error) {
		want := []string{"wss://a", "wss://b"}
		if len(opts.Relays) != 2 || opts.Relays[0] != want[0] || opts.Relays[1] != want[1] {
			t.Errorf("relays = %v", opts.Relays)
		}
		return search.Result{}, nil
	}}
	s := newTestServer(searcher, nil)
	doRequest(t, s, "/search?q=x&relays=wss://a,%20wss://b")
}

func TestHandleSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantPublic bool
	}{
		{domain.ErrEmptyFilter, http.StatusBadRequest, true},
		{fmt.Errorf("pointer: %w", domain.ErrInvalidPointer), http.StatusBadRequest, true},
		{domain.ErrNotFound, http.StatusNotFound, true},
		{domain.ErrNoRelays, http.StatusServiceUnavailable, true},
		{fmt.Errorf("redis connection lost"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			searcher := &mockSearcher{searchFn: func(context.Context, string, search.Options) (search.Result, error) {
				return search.Result{}, tt.err
			}}
			s := newTestServer(searcher, nil)

			rec := doRequest(t, s, "/search?q=x")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp errorResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if tt.wantPublic && !strings.Contains(tt.err.Error(), resp.Error) {
				t.Errorf("body error = %q", resp.Error)
			}
			if !tt.wantPublic && resp.Error != "internal error" {
				t.Errorf("internal detail leaked: %q", resp.Error)
			}
		})
	}
}

func TestHandleSearchStream(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(_ context.Context, _ string, opts search.Options) (search.Result, error) {
		snap := []*domain.Event{{ID: "a", Kind: domain.KindNote}}
		opts.OnPartial(snap)
		opts.OnPartial(append(snap, &domain.Event{ID: "b", Kind: domain.KindNote}))
		return search.Result{
			Events:   []*domain.Event{{ID: "a"}, {ID: "b"}},
			Strategy: search.StrategyFullText,
		}, nil
	}}
	s := newTestServer(searcher, nil)

	rec := doRequest(t, s, "/search/stream?q=bitcoin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if got := strings.Count(body, "event: snapshot"); got != 2 {
		t.Errorf("%d snapshot events, want 2", got)
	}
	if !strings.Contains(body, "event: complete") {
		t.Error("terminal complete event missing")
	}
	if strings.Index(body, "event: complete") < strings.LastIndex(body, "event: snapshot") {
		t.Error("complete event must come last")
	}
}

func TestHandleSearchStream_ErrorEvent(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(context.Context, string, search.Options) (search.Result, error) {
		return search.Result{}, domain.ErrEmptyFilter
	}}
	s := newTestServer(searcher, nil)

	rec := doRequest(t, s, "/search/stream?q=x")
	body := rec.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Errorf("body = %q", body)
	}
	if strings.Contains(body, "event: complete") {
		t.Error("failed stream must not complete")
	}
}

func TestHandleResolve(t *testing.T) {
	resolver := &mockResolver{resolveFn: func(_ context.Context, token string) (domain.Resolution, error) {
		if token != "alice@example.com" {
			t.Errorf("token = %q", token)
		}
		pk, _ := domain.ParsePubKey(hexKey)
		return domain.ResolutionOf(pk, nil), nil
	}}
	s := newTestServer(nil, resolver)

	rec := doRequest(t, s, "/resolve?token=alice@example.com")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var res domain.Resolution
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Found() || res.PubKey.String() != hexKey {
		t.Errorf("resolution = %+v", res)
	}
}

func TestHandleResolve_AttachesProfileFromSearch(t *testing.T) {
	prof := &domain.Event{ID: "p1", PubKey: hexKey, Kind: domain.KindProfile, CreatedAt: 10, Content: `{"name":"alice"}`}
	searcher := &mockSearcher{searchFn: func(context.Context, string, search.Options) (search.Result, error) {
		return search.Result{Events: []*domain.Event{prof}, Strategy: search.StrategyProfile}, nil
	}}
	resolver := &mockResolver{resolveFn: func(context.Context, string) (domain.Resolution, error) {
		pk, _ := domain.ParsePubKey(hexKey)
		return domain.ResolutionOf(pk, nil), nil
	}}
	s := newTestServer(searcher, resolver)

	// The search response seeds the profile store.
	if rec := doRequest(t, s, "/search?q=alice"); rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}

	rec := doRequest(t, s, "/resolve?token=alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body %s", rec.Code, rec.Body)
	}
	var res domain.Resolution
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Profile == nil || res.Profile.ID != "p1" {
		t.Errorf("resolution profile = %+v, want the cached search result", res.Profile)
	}
}

func TestHandleResolve_NegativeIs404(t *testing.T) {
	resolver := &mockResolver{resolveFn: func(context.Context, string) (domain.Resolution, error) {
		return domain.Resolution{}, nil
	}}
	s := newTestServer(nil, resolver)

	rec := doRequest(t, s, "/resolve?token=ghost")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleResolve_MissingToken(t *testing.T) {
	s := newTestServer(nil, &mockResolver{})
	rec := doRequest(t, s, "/resolve")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
