package aggregate

import (
	"reflect"
	"testing"

	"github.com/relayseek/relayseek/internal/domain"
)

func note(id string, createdAt int64) *domain.Event {
	return &domain.Event{ID: id, Kind: domain.KindNote, CreatedAt: createdAt, Content: "note " + id}
}

func TestCollector_DeduplicatesByID(t *testing.T) {
	col := NewCollector()

	if first := col.Add(note("a", 1), "wss://one"); !first {
		t.Error("first sighting must report true")
	}
	if first := col.Add(note("a", 1), "wss://two"); first {
		t.Error("repeat sighting must report false")
	}
	if got := col.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	if got := col.Sources("a"); !reflect.DeepEqual(got, []string{"wss://one", "wss://two"}) {
		t.Errorf("Sources(a) = %v", got)
	}
}

func TestCollector_IgnoresInvalidEvents(t *testing.T) {
	col := NewCollector()

	if col.Add(nil, "wss://one") {
		t.Error("nil event accepted")
	}
	if col.Add(&domain.Event{}, "wss://one") {
		t.Error("event without id accepted")
	}
	if col.Len() != 0 {
		t.Errorf("Len() = %d, want 0", col.Len())
	}
}

func TestCollector_SnapshotNewestFirst(t *testing.T) {
	col := NewCollector()
	col.Add(note("old", 10), "r")
	col.Add(note("new", 30), "r")
	col.Add(note("mid", 20), "r")
	// Same timestamp as mid; id breaks the tie.
	col.Add(note("aaa", 20), "r")

	got := col.Snapshot()
	ids := make([]string, len(got))
	for i, ev := range got {
		ids[i] = ev.ID
	}
	want := []string{"new", "aaa", "mid", "old"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("snapshot order = %v, want %v", ids, want)
	}
}

func TestCollector_LimitRejectsOverflow(t *testing.T) {
	col := NewCollector()
	col.SetLimit(2)

	col.Add(note("a", 1), "r")
	col.Add(note("b", 2), "r")
	if col.Add(note("c", 3), "r") {
		t.Error("full collector accepted an unseen event")
	}
	if got := col.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	if got := col.Sources("c"); len(got) != 0 {
		t.Errorf("rejected event has provenance %v", got)
	}

	// A repeat sighting of a collected event still records provenance.
	if col.Add(note("a", 1), "r2") {
		t.Error("repeat sighting must report false")
	}
	if got := col.Sources("a"); !reflect.DeepEqual(got, []string{"r", "r2"}) {
		t.Errorf("Sources(a) = %v", got)
	}
}

func TestCollector_SnapshotsAreMonotonic(t *testing.T) {
	col := NewCollector()
	col.Add(note("a", 1), "r")
	before := col.Len()

	col.Add(note("a", 1), "r2")
	col.Add(note("b", 2), "r")

	if col.Len() < before {
		t.Error("collector shrank")
	}
	if got := col.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}
