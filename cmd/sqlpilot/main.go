package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	sphttp "github.com/sqlpilot/sqlpilot/internal/adapter/http"
	spnats "github.com/sqlpilot/sqlpilot/internal/adapter/nats"
	"github.com/sqlpilot/sqlpilot/internal/adapter/openai"
	"github.com/sqlpilot/sqlpilot/internal/adapter/otel"
	"github.com/sqlpilot/sqlpilot/internal/adapter/postgres"
	"github.com/sqlpilot/sqlpilot/internal/adapter/ristretto"
	"github.com/sqlpilot/sqlpilot/internal/adapter/ws"
	"github.com/sqlpilot/sqlpilot/internal/config"
	"github.com/sqlpilot/sqlpilot/internal/logger"
	"github.com/sqlpilot/sqlpilot/internal/resilience"
	"github.com/sqlpilot/sqlpilot/internal/safety"
	"github.com/sqlpilot/sqlpilot/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "hash-key" {
		if err := runHashKey(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"provider", cfg.LLM.DefaultProvider,
		"max_iterations", cfg.Agent.MaxIterations,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// Shadow database
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if cfg.Postgres.SeedDemoData {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		log.Info("demo dataset seeded")
	}
	db := postgres.New(pool)

	// NATS is optional: optimization events are best-effort.
	deps := service.OptimizerDeps{}
	queue, err := spnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		log.Warn("nats unavailable, events disabled", "error", err)
	} else {
		defer func() { _ = queue.Close() }()
		deps.Queue = queue
		log.Info("nats connected", "url", cfg.NATS.URL)
	}

	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	// --- LLM ---
	provider, ok := cfg.ActiveProvider()
	if !ok {
		return fmt.Errorf("llm: unknown provider %q", cfg.LLM.DefaultProvider)
	}
	llmClient := openai.NewClient(provider)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	llmClient.SetBreaker(breaker)

	// --- Services ---
	guard, err := safety.New(cfg.Security.ForbiddenOperations, cfg.Security.MaxResultRows)
	if err != nil {
		return fmt.Errorf("safety guard: %w", err)
	}

	hub := ws.NewHub()

	deps.DB = db
	deps.LLM = llmClient
	deps.Guard = guard
	deps.Feedback = service.NewFeedbackController(cfg.Agent.MinImprovementRatio)
	deps.Cache = cache
	deps.Broadcaster = hub
	deps.Metrics = metrics
	deps.Logger = log
	optimizer := service.NewOptimizer(cfg, deps)

	// --- HTTP ---
	handlers := sphttp.NewHandlers(optimizer, db, breaker, "postgres", log)

	r := chi.NewRouter()
	r.Use(sphttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sphttp.Logger)
	r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Agent runs make several LLM round trips, so the API timeout is far
	// longer than a typical request budget.
	sphttp.MountRoutes(r, handlers, hub, cfg.Auth.APIKeyHash, 10*time.Minute)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
