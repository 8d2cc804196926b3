package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/dravya/backend/internal/config"
	"github.com/dravya/backend/internal/middleware"
	"github.com/dravya/backend/internal/money"
	"github.com/dravya/backend/internal/provider"
	"github.com/dravya/backend/internal/reconcile"
	"github.com/dravya/backend/internal/repository"
	"github.com/dravya/backend/internal/router"
	"github.com/dravya/backend/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st   store.Store
		pool *pgxpool.Pool
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Unable to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			slog.Error("Cannot reach PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("Connected to PostgreSQL database successfully!")

		pg := repository.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("Schema migration failed", "error", err)
			os.Exit(1)
		}
		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			slog.Error("Failed to create River migrator", "error", err)
			os.Exit(1)
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			slog.Error("River migrate up failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Migrations applied")
		st = pg
	default:
		slog.Warn("Using in-memory store; data is lost on restart")
		st = store.NewMemory()
	}

	var rail provider.Provider
	if cfg.ProviderBaseURL == "" {
		slog.Warn("PROVIDER_BASE_URL not set; payouts go to the sandbox rail")
		rail = provider.NewSandbox(money.MustParse("1000000.00"))
	} else {
		rail = provider.NewHTTPClient(provider.HTTPConfig{
			BaseURL: cfg.ProviderBaseURL,
			APIKey:  cfg.ProviderAPIKey,
			Timeout: cfg.ProviderTimeout,
			RPS:     cfg.ProviderRPS,
			Burst:   int(cfg.ProviderRPS) + 1,
		}, logger)
	}

	app := build(st, rail, cfg, logger)
	if err := app.auth.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		slog.Error("Admin bootstrap failed", "error", err)
		os.Exit(1)
	}

	// Reconciliation: a River periodic job when PostgreSQL backs the store,
	// otherwise an in-process ticker.
	rcfg := reconcile.Config{
		Interval:    cfg.ReconcileInterval,
		Grace:       cfg.ReconcileGrace,
		MaxAttempts: cfg.ReconcileMaxAttempts,
		Batch:       cfg.ReconcileBatch,
	}
	poller := reconcile.NewPoller(st, app.payouts, rcfg, logger)
	if pool != nil {
		workers := river.NewWorkers()
		river.AddWorker(workers, reconcile.NewWorker(poller))
		riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault: {MaxWorkers: 1},
			},
			Workers:      workers,
			PeriodicJobs: []*river.PeriodicJob{reconcile.PeriodicJob(rcfg)},
			Logger:       logger,
		})
		if err != nil {
			slog.Error("Failed to create River client", "error", err)
			os.Exit(1)
		}
		if err := riverClient.Start(ctx); err != nil {
			slog.Error("River client failed to start", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				slog.Error("River client stop", "error", err)
			}
		}()
	} else {
		go poller.Run(ctx)
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS)*2)
	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(router.New(app.handlers, app.auth, limiter))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", srv.Addr, "store", cfg.Store)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
