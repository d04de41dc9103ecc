package relayws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relayseek/relayseek/internal/domain"
	"github.com/relayseek/relayseek/internal/domain/filter"
	"github.com/relayseek/relayseek/internal/relay"
)

// scriptedRelay runs a minimal wire-protocol relay: every REQ is answered
// with the scripted events followed by EOSE. Returns the ws:// URL.
func scriptedRelay(t *testing.T, events ...*domain.Event) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var frame []json.RawMessage
			if json.Unmarshal(data, &frame) != nil || len(frame) < 2 {
				continue
			}
			var kind, subID string
			_ = json.Unmarshal(frame[0], &kind)
			_ = json.Unmarshal(frame[1], &subID)
			if kind != "REQ" {
				continue
			}
			for _, ev := range events {
				if ws.WriteJSON([]any{"EVENT", subID, ev}) != nil {
					return
				}
			}
			if ws.WriteJSON([]any{"EOSE", subID}) != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPool_CloseOnEOSEEndsTheStream(t *testing.T) {
	url := scriptedRelay(t,
		&domain.Event{ID: "a1", Kind: domain.KindNote, Content: "hello"},
		&domain.Event{ID: "b2", Kind: domain.KindNote, Content: "world"},
	)

	pool := NewPool(nil)
	defer pool.Close()

	sub, err := pool.Subscribe(context.Background(), filter.Plan{{Search: "x"}}, relay.SubscribeOptions{
		Relays:      []string{url},
		CloseOnEOSE: true,
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	var got []string
	deadline := time.After(5 * time.Second)
	for {
		select {
		case in, ok := <-sub.Events():
			if !ok {
				if len(got) != 2 {
					t.Fatalf("stream closed after %v, want both stored events first", got)
				}
				return
			}
			if in.Relay != url {
				t.Errorf("relay = %q, want %q", in.Relay, url)
			}
			got = append(got, in.Event.ID)
		case <-deadline:
			t.Fatalf("events channel never closed after the backlog; got %v", got)
		}
	}
}

func TestPool_KeepOpenOutlivesBacklog(t *testing.T) {
	url := scriptedRelay(t, &domain.Event{ID: "a1", Kind: domain.KindNote, Content: "hello"})

	pool := NewPool(nil)
	defer pool.Close()

	sub, err := pool.Subscribe(context.Background(), filter.Plan{{Search: "x"}}, relay.SubscribeOptions{
		Relays: []string{url},
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	select {
	case <-sub.EndOfStored():
	case <-time.After(5 * time.Second):
		t.Fatal("end-of-stored never fired")
	}

	select {
	case in, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed without CloseOnEOSE")
		}
		if in.Event.ID != "a1" {
			t.Fatalf("got %q", in.Event.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("stored event not delivered")
	}

	// Past end-of-stored the stream must stay open for late events.
	select {
	case _, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed without CloseOnEOSE")
		}
		t.Fatal("unexpected extra event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPool_NoReachableRelay(t *testing.T) {
	pool := NewPool(nil)
	defer pool.Close()

	_, err := pool.Subscribe(context.Background(), filter.Plan{{Search: "x"}}, relay.SubscribeOptions{
		Relays:      []string{"ws://127.0.0.1:1"},
		CloseOnEOSE: true,
	})
	if !errors.Is(err, domain.ErrNoRelays) {
		t.Fatalf("expected ErrNoRelays, got %v", err)
	}
}
