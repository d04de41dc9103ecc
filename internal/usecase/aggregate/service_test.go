package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/relay/relaytest"
)

func searchPlan(term string) filter.Plan {
	return filter.Plan{{Kinds: []int{domain.KindNote}, Search: term}}
}

func TestCollect_MergesAndDeduplicates(t *testing.T) {
	fake := relaytest.NewFake()
	shared := note("shared", 5)
	fake.Load("wss://one", note("a", 1), shared)
	fake.Load("wss://two", note("b", 2), shared)

	svc := New(fake, nil, nil, nil)
	got, err := svc.Collect(context.Background(), searchPlan("note"), Options{
		Relays:  []string{"wss://one", "wss://two"},
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].ID != "shared" {
		t.Errorf("newest-first order, got %q first", got[0].ID)
	}
}

func TestCollect_EmptyPlanRejected(t *testing.T) {
	svc := New(relaytest.NewFake(), nil, nil, nil)

	_, err := svc.Collect(context.Background(), nil, Options{Relays: []string{"wss://r"}})
	if !errors.Is(err, domain.ErrEmptyFilter) {
		t.Fatalf("expected ErrEmptyFilter, got %v", err)
	}

	_, err = svc.Collect(context.Background(), filter.Plan{{Kinds: []int{1}}}, Options{Relays: []string{"wss://r"}})
	if !errors.Is(err, domain.ErrEmptyFilter) {
		t.Fatalf("undiscriminated entry: expected ErrEmptyFilter, got %v", err)
	}
}

func TestCollect_NoRelaysIsBoundedOutcome(t *testing.T) {
	svc := New(relaytest.NewFake(), nil, nil, nil)

	got, err := svc.Collect(context.Background(), searchPlan("x"), Options{})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d events, want 0", len(got))
	}
}

func TestCollect_MaxResultsCancelsEarly(t *testing.T) {
	fake := relaytest.NewFake()
	for _, ev := range []*domain.Event{note("a", 1), note("b", 2), note("c", 3), note("d", 4)} {
		fake.Load("wss://r", ev)
	}

	svc := New(fake, nil, nil, nil)
	got, err := svc.Collect(context.Background(), searchPlan("note"), Options{
		Relays:     []string{"wss://r"},
		MaxResults: 2,
		Timeout:    2 * time.Second,
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events, want 2", len(got))
	}
}

func TestCollect_MaxResultsNeverRetractsFromSnapshots(t *testing.T) {
	fake := relaytest.NewFake()
	old := note("old", 1)
	fake.Load("wss://r", old)

	var snapshots [][]*domain.Event
	svc := New(fake, nil, nil, nil)

	col := NewCollector()
	done := make(chan error, 1)
	go func() {
		done <- svc.CollectInto(context.Background(), searchPlan("note"), col, Options{
			Relays:        []string{"wss://r"},
			MaxResults:    2,
			KeepOpen:      true,
			Timeout:       5 * time.Second,
			SnapshotEvery: time.Millisecond,
			OnPartial:     func(evs []*domain.Event) { snapshots = append(snapshots, evs) },
		})
	}()

	deadline := time.After(2 * time.Second)
	for col.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("stored event never arrived")
		case <-time.After(time.Millisecond):
		}
	}
	// Newer events than the cap can hold; whichever loses the race to the
	// last slot must be dropped, never swapped in for an emitted event.
	fake.Inject("wss://r", note("newA", 2))
	fake.Inject("wss://r", note("newB", 3))

	if err := <-done; err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(snapshots) == 0 {
		t.Fatal("no snapshots emitted")
	}
	for i := 1; i < len(snapshots); i++ {
		cur := make(map[string]bool, len(snapshots[i]))
		for _, ev := range snapshots[i] {
			cur[ev.ID] = true
		}
		for _, ev := range snapshots[i-1] {
			if !cur[ev.ID] {
				t.Fatalf("snapshot %d retracted %q", i, ev.ID)
			}
		}
	}
	last := snapshots[len(snapshots)-1]
	if len(last) != 2 {
		t.Fatalf("terminal snapshot has %d events, want 2", len(last))
	}
	found := false
	for _, ev := range last {
		if ev.ID == "old" {
			found = true
		}
	}
	if !found {
		t.Error("the first-emitted event must survive to the terminal snapshot")
	}
}

func TestCollect_AcceptFiltersClientSide(t *testing.T) {
	fake := relaytest.NewFake()
	fake.Load("wss://r", note("keep", 1), note("drop", 2))

	svc := New(fake, nil, nil, nil)
	got, err := svc.Collect(context.Background(), searchPlan("note"), Options{
		Relays:  []string{"wss://r"},
		Timeout: 2 * time.Second,
		Accept:  func(ev *domain.Event) bool { return ev.ID == "keep" },
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != 1 || got[0].ID != "keep" {
		t.Errorf("got %v", got)
	}
}

func TestCollect_CancellationKeepsPartialResults(t *testing.T) {
	fake := relaytest.NewFake()
	fake.Load("wss://r", note("a", 1))

	ctx, cancel := context.WithCancel(context.Background())
	svc := New(fake, nil, nil, nil)

	col := NewCollector()
	// KeepOpen leaves the subscription alive after stored replay; cancel is
	// the only way out, and whatever arrived before it must survive.
	done := make(chan error, 1)
	go func() {
		done <- svc.CollectInto(ctx, searchPlan("note"), col, Options{
			Relays:   []string{"wss://r"},
			KeepOpen: true,
			Timeout:  5 * time.Second,
		})
	}()

	deadline := time.After(2 * time.Second)
	for col.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("stored event never arrived")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("collect: %v", err)
	}
	if col.Len() != 1 {
		t.Errorf("partial results lost: Len() = %d", col.Len())
	}
}

func TestCollect_SubscribeFailureExcludesRelay(t *testing.T) {
	fake := relaytest.NewFake()
	fake.SubscribeErr = errors.New("dial refused")

	svc := New(fake, nil, nil, nil)
	got, err := svc.Collect(context.Background(), searchPlan("x"), Options{
		Relays:  []string{"wss://dead"},
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("transport failure must not fail the collection: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d events, want 0", len(got))
	}
}

func TestCollect_PartialSnapshotsEmitted(t *testing.T) {
	fake := relaytest.NewFake()
	fake.Load("wss://r", note("a", 1), note("b", 2))

	var snapshots [][]*domain.Event
	svc := New(fake, nil, nil, nil)
	_, err := svc.Collect(context.Background(), searchPlan("note"), Options{
		Relays:        []string{"wss://r"},
		Timeout:       2 * time.Second,
		SnapshotEvery: time.Millisecond,
		OnPartial:     func(evs []*domain.Event) { snapshots = append(snapshots, evs) },
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(snapshots) == 0 {
		t.Fatal("no snapshots emitted")
	}
	last := snapshots[len(snapshots)-1]
	if len(last) != 2 {
		t.Errorf("terminal snapshot has %d events, want 2", len(last))
	}
	for i := 1; i < len(snapshots); i++ {
		if len(snapshots[i]) < len(snapshots[i-1]) {
			t.Errorf("snapshot %d shrank: %d -> %d", i, len(snapshots[i-1]), len(snapshots[i]))
		}
	}
}
