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

	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/dataset"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/evalbus"
	oshttp "github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/http"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/litellm"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/llmgen"
	osnats "github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/nats"
	ostel "github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/otel"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/postgres"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/ristretto"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/adapter/ws"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/config"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/logger"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/middleware"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/port/suitegen"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/resilience"
	"github.com/robinandreeklund-collab/oneseek-tuning/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
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

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"use_holdout", cfg.Tuning.UseHoldout,
		"target_success_rate", cfg.Tuning.TargetSuccessRate,
	)

	ctx := context.Background()

	// --- Telemetry ---
	var metrics *ostel.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := ostel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("telemetry shutdown", "error", err)
			}
		}()
		metrics, err = ostel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := osnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Drain() }()

	// In-process cache
	cache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	// --- Collaborators ---

	llmClient := litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	var datasets *dataset.Loader
	if cfg.Tuning.DatasetsDir != "" {
		datasets = dataset.NewLoader(cfg.Tuning.DatasetsDir)
	}
	suites := service.NewSuiteSource(
		llmgen.NewSuiteGenerator(llmClient, cfg.Tuning.GenerateModel),
		generatorOrNil(datasets),
	)
	suggest := llmgen.NewSuggester(llmClient, cfg.Tuning.SuggestModel)

	engine := evalbus.New(queue)
	cancelResults, err := engine.StartSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("result subscriber: %w", err)
	}
	defer cancelResults()

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	tuner := service.NewTuner(suites, engine, suggest)
	runs := service.NewRunManager(tuner, cfg.Tuning.DefaultOptions(), store, store, cache, cfg.Cache.TTL, hub, metrics)
	evaluations := service.NewEvaluationService(suites, engine, suggest, runs, store)

	// --- HTTP ---

	handlers := &oshttp.Handlers{
		Runs:        runs,
		Evaluations: evaluations,
		Datasets:    datasets,
		Hub:         hub,
		Pool:        pool,
		Queue:       queue,
		LiteLLM:     llmClient,
	}

	r := chi.NewRouter()
	r.Use(oshttp.CORS(cfg.Server.CORSOrigin))
	r.Use(oshttp.SecurityHeaders)
	r.Use(oshttp.Logger)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(ostel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(middleware.AdminToken(store))

	oshttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// generatorOrNil keeps a typed-nil *dataset.Loader from reaching the
// suite source as a non-nil interface.
func generatorOrNil(l *dataset.Loader) suitegen.Generator {
	if l == nil {
		return nil
	}
	return l
}
