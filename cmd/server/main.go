package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/S-Corkum/agent-router/internal/api"
	"github.com/S-Corkum/agent-router/internal/cache"
	"github.com/S-Corkum/agent-router/internal/config"
	"github.com/S-Corkum/agent-router/internal/database"
	"github.com/S-Corkum/agent-router/internal/learning"
	"github.com/S-Corkum/agent-router/internal/observability"
	"github.com/S-Corkum/agent-router/internal/repository"
	"github.com/S-Corkum/agent-router/internal/resilience"
	"github.com/S-Corkum/agent-router/internal/routing"
	"github.com/S-Corkum/agent-router/internal/secrets"
	"github.com/S-Corkum/agent-router/internal/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLoggerWithLevel("server", observability.LogLevel(cfg.Observability.LogLevel))
	metricsClient := observability.NewMetricsClient()
	defer func() { _ = metricsClient.Close() }()

	secretProvider := secrets.NewEnvProvider()
	if password, err := secretProvider.Get(ctx, "database.password"); err == nil {
		cfg.Database.Password = password
	}
	if password, err := secretProvider.Get(ctx, "cache.password"); err == nil {
		cfg.Cache.Password = password
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: "agent-router",
		Environment: cfg.Observability.Environment,
		Endpoint:    cfg.Observability.TracingEndpoint,
	})
	if err != nil {
		logger.Fatal("Failed to initialize tracing", map[string]interface{}{"error": err.Error()})
	}

	db, err := database.NewDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer func() { _ = db.Close() }()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("Failed to run migrations", map[string]interface{}{"error": err.Error()})
		}
	}

	breakerManager := resilience.NewManager(nil, logger.WithPrefix("resilience"))

	var scoreCache cache.Cache
	redisCache, err := cache.NewRedisCache(cfg.Cache)
	if err != nil {
		// Redis is an accelerator, not a dependency: scoring falls back
		// to the in-process cache and the database.
		logger.Warn("Redis unavailable, continuing without the shared score cache", map[string]interface{}{
			"address": cfg.Cache.Address,
			"error":   err.Error(),
		})
	} else {
		scoreCache = cache.NewResilientCache(redisCache, breakerManager)
		defer func() { _ = redisCache.Close() }()
	}

	repo := repository.NewPostgres(db.DB(), cfg.Database.Schema)

	loads := routing.NewLoadTracker(cfg.Routing.CapacityDefault)
	pending := routing.NewPendingRoutings()
	registry := routing.NewRegistry(repo, logger.WithPrefix("routing.registry"))
	agentBreaker := routing.NewCircuitBreaker(repo, cfg.Routing.Breaker, logger.WithPrefix("routing.breaker"), metricsClient)
	scorer := routing.NewScorer(repo, scoreCache, loads, logger.WithPrefix("routing.scorer"))
	selector := routing.NewSelector(registry, agentBreaker, scorer, loads, pending, repo, logger.WithPrefix("routing.selector"), metricsClient)

	engine := learning.NewEngine(repo, cfg.Learning, logger.WithPrefix("learning.engine"), metricsClient)
	if err := engine.LoadActive(ctx); err != nil {
		logger.Warn("Failed to load learning state, starting cold", map[string]interface{}{
			"error": err.Error(),
		})
	}
	optimizer := learning.NewOptimizer(repo, engine, logger.WithPrefix("learning.optimizer"), metricsClient)
	predictor := learning.NewPredictor(repo, engine, logger.WithPrefix("learning.predictor"), metricsClient)
	detector := learning.NewSpecializationDetector(repo, engine, logger.WithPrefix("learning.specialization"), metricsClient)
	intelligentRouter := learning.NewIntelligentRouter(selector, engine, predictor, logger.WithPrefix("learning.router"), metricsClient)

	recorder := routing.NewOutcomeRecorder(repo, agentBreaker, loads, scorer, pending, engine, logger.WithPrefix("routing.recorder"), metricsClient)
	maintenance := routing.NewMaintenance(repo, scorer, loads, pending, logger.WithPrefix("routing.maintenance"), metricsClient)

	runner := worker.NewRunner(logger.WithPrefix("worker"), metricsClient)
	runner.Add(worker.Job{
		Name:          "performance_refresh",
		Interval:      time.Duration(cfg.Loops.PerformanceRefreshSeconds) * time.Second,
		RetryInterval: time.Minute,
		Run:           maintenance.RefreshScores,
	})
	runner.Add(worker.Job{
		Name:     "breaker_transitions",
		Interval: time.Duration(cfg.Loops.BreakerTransitionsSeconds) * time.Second,
		Run:      agentBreaker.ApplyTransitions,
	})
	runner.Add(worker.Job{
		Name:          "performance_snapshots",
		Interval:      time.Duration(cfg.Loops.SnapshotsSeconds) * time.Second,
		RetryInterval: 5 * time.Minute,
		Run:           maintenance.CaptureSnapshots,
	})
	runner.Add(worker.Job{
		Name:          "specialization_scan",
		Interval:      time.Duration(cfg.Loops.SpecializationSeconds) * time.Second,
		RetryInterval: 5 * time.Minute,
		Run:           detector.Scan,
	})
	runner.Add(worker.Job{
		Name:          "prediction_validation",
		Interval:      time.Duration(cfg.Loops.SnapshotsSeconds) * time.Second,
		RetryInterval: 5 * time.Minute,
		Run:           predictor.ValidatePending,
	})
	runner.Add(worker.Job{
		Name:     "outcome_flush",
		Interval: 30 * time.Second,
		Run: func(ctx context.Context) error {
			recorder.Flush(ctx)
			return nil
		},
	})
	runner.Start(ctx)

	server := api.NewServer(cfg.API, api.Deps{
		Store:     repo,
		Router:    intelligentRouter,
		Recorder:  recorder,
		Optimizer: optimizer,
		Engine:    engine,
		Scorer:    scorer,
		Loads:     loads,
		Logger:    logger.WithPrefix("api"),
		Metrics:   metricsClient,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", map[string]interface{}{"signal": sig.String()})
	case err := <-errCh:
		if err != nil {
			logger.Error("API server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("API shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	runner.Stop()

	// Drain any outcome writes still queued from store outages.
	recorder.Flush(shutdownCtx)

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracing shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	logger.Info("Shutdown complete", nil)
}
