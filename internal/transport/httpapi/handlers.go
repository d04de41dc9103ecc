package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/domain"
	logpkg "github.com/relayseek/relayseek/internal/logger"
	"github.com/relayseek/relayseek/internal/usecase/search"
)

type errorResponse struct {
	Error string `json:"error"`
}

type searchResponse struct {
	Events   []*domain.Event `json:"events"`
	Count    int             `json:"count"`
	Strategy string          `json:"strategy"`
	Complete bool            `json:"complete"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "q is required"})
		return
	}

	res, err := s.searcher.Search(r.Context(), q, s.searchOptions(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rememberProfiles(res.Events)
	writeJSON(w, http.StatusOK, searchResponse{
		Events:   orEmpty(res.Events),
		Count:    len(res.Events),
		Strategy: res.Strategy,
		Complete: r.Context().Err() == nil,
	})
}

// handleSearchStream streams monotonic snapshots as SSE events, closing with
// a terminal complete event. A client disconnect cancels the search; whatever
// arrived is still flushed.
func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "q is required"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Snapshots may arrive from concurrent plan executions.
	var mu sync.Mutex
	writeEvent := func(name string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		_, _ = w.Write([]byte("event: " + name + "\ndata: " + string(data) + "\n\n"))
		flusher.Flush()
	}

	opts := s.searchOptions(r)
	opts.OnPartial = func(events []*domain.Event) {
		writeEvent("snapshot", searchResponse{
			Events: orEmpty(events),
			Count:  len(events),
		})
	}

	res, err := s.searcher.Search(r.Context(), q, opts)
	if err != nil {
		writeEvent("error", errorResponse{Error: publicError(err)})
		return
	}
	s.rememberProfiles(res.Events)
	writeEvent("complete", searchResponse{
		Events:   orEmpty(res.Events),
		Count:    len(res.Events),
		Strategy: res.Strategy,
		Complete: true,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "token is required"})
		return
	}

	res, err := s.resolver.Resolve(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !res.Found() {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "identity not found"})
		return
	}
	switch {
	case res.Profile != nil:
		s.rememberProfiles([]*domain.Event{res.Profile})
	case s.profiles != nil:
		// A bare resolution gets its profile filled in from earlier searches.
		if ev, ok := s.profiles.Get(*res.PubKey); ok {
			res.Profile = ev
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// rememberProfiles feeds profile events into the server cache so a later
// resolution can attach them without another relay round trip.
func (s *Server) rememberProfiles(events []*domain.Event) {
	if s.profiles == nil {
		return
	}
	for _, ev := range events {
		if ev != nil && ev.Kind == domain.KindProfile {
			s.profiles.Put(ev)
		}
	}
}

// searchOptions maps query params onto search options, clamping the limit.
func (s *Server) searchOptions(r *http.Request) search.Options {
	opts := search.Options{
		Limit:         s.cfg.Search.DefaultLimit,
		Kinds:         s.cfg.Search.DefaultKinds,
		Timeout:       time.Duration(s.cfg.Search.TimeoutSec) * time.Second,
		SnapshotEvery: time.Duration(s.cfg.Search.SnapshotEveryMs) * time.Millisecond,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			opts.Limit = min(n, s.cfg.Search.MaxLimit)
		}
	}
	if raw := r.URL.Query().Get("relays"); raw != "" {
		for _, u := range strings.Split(raw, ",") {
			if u = strings.TrimSpace(u); u != "" {
				opts.Relays = append(opts.Relays, u)
			}
		}
	}
	return opts
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrEmptyFilter),
		errors.Is(err, domain.ErrInvalidPubKey),
		errors.Is(err, domain.ErrInvalidPointer):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoRelays):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logpkg.FromContext(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: publicError(err)})
}

// publicError keeps internal detail out of 5xx bodies.
func publicError(err error) string {
	for _, sentinel := range []error{
		domain.ErrEmptyFilter,
		domain.ErrInvalidPubKey,
		domain.ErrInvalidPointer,
		domain.ErrNotFound,
		domain.ErrNoRelays,
	} {
		if errors.Is(err, sentinel) {
			return err.Error()
		}
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func orEmpty(events []*domain.Event) []*domain.Event {
	if events == nil {
		return []*domain.Event{}
	}
	return events
}
