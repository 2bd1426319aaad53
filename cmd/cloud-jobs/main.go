// cloud-jobs is the HTTP API server that provisions free cloud Redis
// databases and imports them into the local repository.
package main

import (
	"cloudjobs/internal/analytics"
	"cloudjobs/internal/api"
	"cloudjobs/internal/cloudapi"
	"cloudjobs/internal/cloudjob"
	"cloudjobs/internal/config"
	"cloudjobs/internal/database"
	"cloudjobs/internal/dispatcher"
	"cloudjobs/internal/health"
	"cloudjobs/internal/job"
	"cloudjobs/internal/observability"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

// repository opens PostgreSQL when databaseURL is set, memory otherwise.
// The returned cleanup is never nil.
func repository(ctx context.Context, databaseURL string) (database.Repository, func(), error) {
	if databaseURL == "" {
		slog.Warn("DATABASE_URL not set, imported databases are kept in memory")
		return database.NewMemoryRepository(), func() {}, nil
	}

	pool, err := database.NewPostgresPool(ctx, databaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, nil, err
	}
	repo, err := database.NewPostgresRepository(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	slog.Info("Connected to PostgreSQL")
	return repo, repo.Close, nil
}

// budgets layers the YAML file, then POLL_* variables, over the defaults.
func budgets(path string) (cloudjob.Budgets, error) {
	b := cloudjob.DefaultBudgets()
	if path != "" {
		var err error
		if b, err = cloudjob.LoadBudgetsFile(path, b); err != nil {
			return b, fmt.Errorf("failed to load polling config: %w", err)
		}
		slog.Info("Loaded polling config", "path", path)
	}
	return cloudjob.LoadBudgetsFromEnv(b), nil
}

type namedServer struct {
	name string
	srv  *http.Server
}

func metricsMux(h http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", h)
	return mux
}

// listen starts every server. The channel receives the first listen failure.
func listen(servers []namedServer) <-chan error {
	errs := make(chan error, len(servers))
	for _, s := range servers {
		go func() {
			slog.Info("Starting server", "server", s.name, "addr", s.srv.Addr)
			if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("%s server: %w", s.name, err)
			}
		}()
	}
	return errs
}

// shutdownServers stops the servers concurrently, sharing one deadline.
func shutdownServers(servers []namedServer, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Go(func() {
			if err := s.srv.Shutdown(ctx); err != nil {
				slog.Error("Server shutdown error", "server", s.name, "error", err)
			}
		})
	}
	wg.Wait()
}

func run() error {
	ctx := context.Background()

	svcCfg := config.LoadServiceConfig()
	dispatcherCfg := dispatcher.LoadConfigFromEnv()

	pollBudgets, err := budgets(svcCfg.PollingConfigFile)
	if err != nil {
		return err
	}

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	repo, closeRepo, err := repository(ctx, svcCfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeRepo()

	var verifier database.Verifier
	if svcCfg.VerifyConnection {
		verifier = database.NewRedisVerifier(svcCfg.VerifyTimeout)
	}

	eventDispatcher := dispatcher.NewMemory(dispatcherCfg, metrics)
	if err := metrics.ObserveDispatcherQueue(func() int64 { return int64(eventDispatcher.Stats().QueueDepth) }); err != nil {
		return err
	}
	if svcCfg.AnalyticsURL == "" {
		slog.Info("Analytics destination not configured, workflow events are only logged")
	}

	jobService := job.NewService(cloudjob.Deps{
		API:        cloudapi.NewHTTPClient(svcCfg.CloudAPIURL, svcCfg.CloudAPITimeout),
		Repository: repo,
		Verifier:   verifier,
		Budgets:    pollBudgets,
		Analytics:  analytics.NewSink(eventDispatcher, svcCfg.AnalyticsURL, svcCfg.AnalyticsSigningKey),
	}, metrics, job.Config{
		Retention:           svcCfg.JobRetention,
		MaintenanceInterval: svcCfg.MaintenanceInterval,
	})
	if err := jobService.Start(); err != nil {
		return err
	}

	healthChecker := health.NewChecker(
		health.Check{Name: "repository", Checker: repo},
		health.Check{Name: "analytics", Optional: true, Checker: health.CheckFunc(func(context.Context) error {
			if open := eventDispatcher.Stats().OpenDestinations; len(open) > 0 {
				return fmt.Errorf("analytics destinations paused: %s", strings.Join(open, ", "))
			}
			return nil
		})},
	)

	router := api.NewRouter(api.RouterConfig{
		JobService:    jobService,
		Databases:     repo,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey == "" {
		slog.Warn("API authentication disabled, set API_KEY or API_KEY_FILE to enable it")
	}

	servers := []namedServer{
		{name: "api", srv: &http.Server{
			Addr:         ":" + svcCfg.Port,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}},
		{name: "metrics", srv: &http.Server{
			Addr:         ":" + svcCfg.MetricsPort,
			Handler:      metricsMux(metricsHandler),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}},
	}
	serverErr := listen(servers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		shutdownServers(servers, 5*time.Second)
		return err
	}

	// Phase 1: fail readiness so load balancers stop sending traffic
	healthChecker.SetShuttingDown()
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdownServers(servers, 25*time.Second)

	// Phase 3: cancel running workflows; remote resources they already
	// requested keep provisioning and can be imported later
	jobCtx, jobCancel := context.WithTimeout(context.Background(), svcCfg.ShutdownJobWait)
	defer jobCancel()
	if err := jobService.Shutdown(jobCtx); err != nil {
		slog.Warn("Workflows did not settle before shutdown", "error", err)
	}

	// Phase 4: deliver the analytics events the cancellations produced
	slog.Info("Draining analytics dispatcher")
	dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatcherCancel()
	if err := eventDispatcher.Close(dispatcherCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	stats := eventDispatcher.Stats()
	slog.Info("Dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}
