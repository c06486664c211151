package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sales-dashboard/internal/config"
	"sales-dashboard/internal/middleware"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/rules"
	"sales-dashboard/internal/server"
	"sales-dashboard/internal/services"
)

const (
	version    = "1.0.0"
	clientIdle = 10 * time.Minute
)

// app holds everything main wires together.
type app struct {
	handler   http.Handler
	rules     *rules.Store
	analytics *services.Analytics
	limiter   *middleware.RateLimiter
	metrics   *observability.Metrics
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := rules.NewStore(cfg.Rules.File, logger)
	if err != nil {
		return nil, err
	}
	if _, err := store.Profile(cfg.Rules.DefaultProfile); err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	cache := services.NewDatasetCache(cfg.Cache.TTL)
	analytics := services.NewAnalytics(store, cache, metrics, logger)

	store.OnReloadFailure(func(err error) {
		metrics.RulesReloads.WithLabelValues("rejected").Inc()
	})
	store.OnReload(func(r *rules.Rules) {
		metrics.RulesReloads.WithLabelValues("ok").Inc()
		n := analytics.Purge()
		logger.Info("datasets purged after rules reload", "count", n)
	})

	srv := server.NewServer(analytics, store, metrics, logger, server.Options{
		Upload:         cfg.Upload,
		DefaultProfile: cfg.Rules.DefaultProfile,
	})

	limiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(limiter, logger),
		middleware.Metrics(metrics),
	)

	return &app{
		handler:   middlewareChain(srv),
		rules:     store,
		analytics: analytics,
		limiter:   limiter,
		metrics:   metrics,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", version,
		"addr", cfg.Address(),
		"rules_file", cfg.Rules.File,
		"default_profile", cfg.Rules.DefaultProfile,
	)

	shutdownTracing, err := observability.InitTracing(cfg.Tracing, logger)
	if err != nil {
		logger.Error("failed to initialise tracing", "error", err)
		os.Exit(1)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to load business rules", "error", err)
		os.Exit(1)
	}

	background, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	if cfg.Rules.Watch && cfg.Rules.File != "" {
		if err := a.rules.Watch(background); err != nil {
			logger.Warn("rules hot reload disabled", "error", err)
		}
	}
	go a.analytics.RunJanitor(background, cfg.Cache.SweepInterval)
	go forgetIdleClients(background, a.limiter, cfg.Cache.SweepInterval)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)

	gracefulServer.RegisterShutdownHook("background", func(ctx context.Context) error {
		stopBackground()
		logger.Info("stopped rules watcher and cache janitor")
		return nil
	})
	gracefulServer.RegisterShutdownHook("tracing", shutdownTracing)

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}

func forgetIdleClients(ctx context.Context, limiter *middleware.RateLimiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Forget(clientIdle)
		}
	}
}
