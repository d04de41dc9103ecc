// Package httpapi exposes the search engine over HTTP: plain JSON queries,
// an SSE streaming variant, and identity resolution.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/config"
	"github.com/relayseek/relayseek/internal/domain"
	logpkg "github.com/relayseek/relayseek/internal/logger"
	"github.com/relayseek/relayseek/internal/metrics"
	"github.com/relayseek/relayseek/internal/repository/profiles"
	"github.com/relayseek/relayseek/internal/usecase/search"
)

// Searcher is the consumer interface for query execution.
type Searcher interface {
	Search(ctx context.Context, text string, opts search.Options) (search.Result, error)
}

// Resolver is the consumer interface for identity resolution.
type Resolver interface {
	Resolve(ctx context.Context, token string) (domain.Resolution, error)
}

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	searcher   Searcher
	resolver   Resolver
	profiles   *profiles.Store
	cfg        config.Config
	logger     *zap.Logger
}

// New creates the server with its routes mounted. The profile store may be
// nil; search results are then never remembered for resolution responses.
func New(cfg config.Config, searcher Searcher, resolver Resolver, store *profiles.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		searcher: searcher,
		resolver: resolver,
		profiles: store,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(s.withRequestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/search", s.handleSearch)
	r.Get("/search/stream", s.handleSearchStream)
	r.Get("/resolve", s.handleResolve)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}
	return s
}

// withRequestLogger stores a request-scoped logger in the context so
// handlers log with the request id attached.
func (s *Server) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.logger
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			l = l.With(zap.String("request_id", reqID))
		}
		next.ServeHTTP(w, r.WithContext(logpkg.ContextWithLogger(r.Context(), l)))
	})
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx) //nolint:wrapcheck // direct passthrough
}
