package verify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relayseek/relayseek/internal/db/memory"
	"github.com/relayseek/relayseek/internal/domain"
)

const hexKey = "7e7e9c42a91bfef19fa929e5fda1b72e0ebc1a4c1141673e2794234d86addf4e"

type mockFetcher struct {
	calls    atomic.Int64
	lookupFn func(ctx context.Context, name, dom string) (domain.PubKey, bool)
}

func (m *mockFetcher) Lookup(ctx context.Context, name, dom string) (domain.PubKey, bool) {
	m.calls.Add(1)
	return m.lookupFn(ctx, name, dom)
}

func positiveFetcher() *mockFetcher {
	pk, _ := domain.ParsePubKey(hexKey)
	return &mockFetcher{lookupFn: func(context.Context, string, string) (domain.PubKey, bool) {
		return pk, true
	}}
}

func TestCheck_PositivePersisted(t *testing.T) {
	f := positiveFetcher()
	store := memory.NewStore()
	v := New(f, store, 0, nil, nil)
	ctx := context.Background()

	pk, ok := v.Check(ctx, "alice", "example.com")
	if !ok || pk.String() != hexKey {
		t.Fatalf("Check() = (%q, %v)", pk, ok)
	}
	if _, ok := v.Check(ctx, "alice", "example.com"); !ok {
		t.Fatal("second check must hit")
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetcher called %d times, want 1", got)
	}
}

func TestCheck_NegativeNeverStored(t *testing.T) {
	f := &mockFetcher{lookupFn: func(context.Context, string, string) (domain.PubKey, bool) {
		return "", false
	}}
	store := memory.NewStore()
	v := New(f, store, 0, nil, nil)
	ctx := context.Background()

	if _, ok := v.Check(ctx, "ghost", "example.com"); ok {
		t.Fatal("unexpected positive")
	}
	if _, ok := v.Check(ctx, "ghost", "example.com"); ok {
		t.Fatal("unexpected positive")
	}
	// A briefly unreachable handle must be re-checkable at once.
	if got := f.calls.Load(); got != 2 {
		t.Errorf("fetcher called %d times, want 2", got)
	}
	if exists, _ := store.Exists(ctx, "relayseek:nip05:ghost@example.com"); exists {
		t.Error("negative result leaked into the store")
	}
}

func TestCheck_ConcurrentChecksCollapse(t *testing.T) {
	pk, _ := domain.ParsePubKey(hexKey)
	release := make(chan struct{})
	f := &mockFetcher{lookupFn: func(context.Context, string, string) (domain.PubKey, bool) {
		<-release
		return pk, true
	}}
	v := New(f, memory.NewStore(), 0, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := v.Check(context.Background(), "alice", "example.com"); !ok {
				t.Error("check failed")
			}
		}()
	}
	close(release)
	wg.Wait()

	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetcher called %d times, want a single collapsed fetch", got)
	}
}

func TestCheck_CorruptCacheEntryRefetched(t *testing.T) {
	f := positiveFetcher()
	store := memory.NewStore()
	v := New(f, store, 0, nil, nil)
	ctx := context.Background()

	_ = store.SetWithTTL(ctx, "relayseek:nip05:alice@example.com", []byte("garbage"), time.Hour)

	pk, ok := v.Check(ctx, "alice", "example.com")
	if !ok || pk.String() != hexKey {
		t.Fatalf("Check() = (%q, %v)", pk, ok)
	}
	if got := f.calls.Load(); got != 1 {
		t.Errorf("fetcher calls = %d", got)
	}
}

func TestCheck_InvalidCachedKeyRefetched(t *testing.T) {
	f := positiveFetcher()
	store := memory.NewStore()
	v := New(f, store, 0, nil, nil)
	ctx := context.Background()

	_ = store.SetWithTTL(ctx, "relayseek:nip05:alice@example.com", []byte(`{"pubkey":"not-hex"}`), time.Hour)

	pk, ok := v.Check(ctx, "alice", "example.com")
	if !ok || pk.String() != hexKey {
		t.Fatalf("Check() = (%q, %v)", pk, ok)
	}
}
