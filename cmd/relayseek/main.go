package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/relayseek/relayseek/internal/config"
	"github.com/relayseek/relayseek/internal/db"
	dbMemory "github.com/relayseek/relayseek/internal/db/memory"
	dbRedis "github.com/relayseek/relayseek/internal/db/redis"
	"github.com/relayseek/relayseek/internal/domain"
	logpkg "github.com/relayseek/relayseek/internal/logger"
	"github.com/relayseek/relayseek/internal/metrics"
	"github.com/relayseek/relayseek/internal/relayset"
	"github.com/relayseek/relayseek/internal/repository/identcache"
	"github.com/relayseek/relayseek/internal/repository/profiles"
	"github.com/relayseek/relayseek/internal/repository/verify"
	"github.com/relayseek/relayseek/internal/signer"
	"github.com/relayseek/relayseek/internal/transport/dvm"
	"github.com/relayseek/relayseek/internal/transport/httpapi"
	"github.com/relayseek/relayseek/internal/transport/nip05"
	"github.com/relayseek/relayseek/internal/transport/relayws"
	"github.com/relayseek/relayseek/internal/usecase/aggregate"
	"github.com/relayseek/relayseek/internal/usecase/resolve"
	searchuc "github.com/relayseek/relayseek/internal/usecase/search"
	"github.com/relayseek/relayseek/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting relayseek server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.Strings("default_relays", cfg.Relays.Default),
	)

	// Cache store: redis when configured, in-memory otherwise.
	var store db.Store
	switch cfg.Cache.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		ctx := context.Background()
		if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to cache store")
	default:
		store = dbMemory.NewStore()
		logger.Info("Using in-memory cache store")
	}
	defer store.Close()

	m := metrics.NewSearchMetrics()
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Relay transport and purpose-tagged relay groups.
	pool := relayws.NewPool(logger)
	defer pool.Close()

	sets := make(map[relayset.Purpose][]string)
	for name, urls := range cfg.RelaySets() {
		sets[relayset.Purpose(name)] = urls
	}
	provider := relayset.New(sets)

	// Composition root.
	agg := aggregate.New(pool, m.EventsReceived, m.Duplicates, logger)

	verifier := verify.New(
		nip05.New(nil, logger),
		store,
		time.Duration(cfg.Resolve.VerifyTTLSec)*time.Second,
		m.VerifyCache,
		logger,
	)

	var oracle resolve.Oracle
	if len(cfg.Relays.DVM) > 0 && !cfg.Resolve.OracleDisabled {
		oracle = dvm.New(pool, pool, provider.Get(relayset.DVM), logger)
		logger.Info("Oracle enabled", zap.Strings("dvm_relays", cfg.Relays.DVM))
	}

	resolveSvc := resolve.New(
		oracle,
		verifier,
		agg,
		resolve.Config{
			RequireLoginForOracle: cfg.Resolve.RequireLoginForOracle,
			ProfileRelays:         provider.Merge(relayset.Profiles, relayset.Default),
		},
		nil, // the server has no logged-in identity
		func() (domain.Signer, error) { return signer.NewEphemeral() },
		nil,
		m.ResolveOutcomes,
		logger,
	)
	resolver := identcache.New(
		resolveSvc,
		store,
		time.Duration(cfg.Resolve.PositiveTTLSec)*time.Second,
		time.Duration(cfg.Resolve.NegativeTTLSec)*time.Second,
		m.ResolveCache,
		logger,
	)

	searchSvc := searchuc.New(agg, resolver, provider, m.Strategies, logger)

	profileStore, err := profiles.New(cfg.Search.ProfileCacheSize)
	if err != nil {
		logger.Fatal("Failed to create profile store", zap.Error(err))
	}

	server := httpapi.New(cfg, searchSvc, resolver, profileStore, logger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
