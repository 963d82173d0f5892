package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/palantiri/internal/api/handler"
	"github.com/cuongbtq/palantiri/internal/api/router"
	"github.com/cuongbtq/palantiri/internal/config"
	"github.com/cuongbtq/palantiri/internal/errtrack"
	"github.com/cuongbtq/palantiri/internal/jobs"
	"github.com/cuongbtq/palantiri/internal/metrics"
	"github.com/cuongbtq/palantiri/internal/worker"
	workerhandler "github.com/cuongbtq/palantiri/internal/worker/handler"
	"github.com/cuongbtq/palantiri/shared/docker"
	"github.com/cuongbtq/palantiri/shared/postgresql"
	"github.com/cuongbtq/palantiri/shared/swarm"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume jobs, schedule health checks and serve the ops API",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", Version),
		slog.String("environment", cfg.App.Environment),
	)

	rabbitClient, err := initRabbitMQ(cmd, &cfg.RabbitMQ, appLogger.Component("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	reporter := errtrack.MultiReporter{errtrack.NewLogReporter(appLogger.Component("errtrack"))}

	var (
		dbClient *postgresql.Client
		store    *errtrack.Store
	)
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(cmd, &cfg.Database, appLogger.Component("postgresql"))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		store = errtrack.NewStore(dbClient.DB())
		if err := store.EnsureSchema(cmd.Context()); err != nil {
			return err
		}
		reporter = append(reporter, errtrack.NewPostgresReporter(store, appLogger.Component("errtrack")))
	}

	cluster, err := swarm.NewClient(swarm.Config{
		Host:          cfg.Swarm.Host,
		DockPort:      cfg.Swarm.DockPort,
		OrgLabel:      cfg.Swarm.OrgLabel,
		TLSCertPath:   cfg.Swarm.TLSCertPath,
		RetryAttempts: cfg.Docker.RetryAttempts,
		RetryInterval: cfg.Docker.RetryInterval,
		CallTimeout:   cfg.Docker.CallTimeout,
	}, appLogger.Component("swarm"))
	if err != nil {
		return fmt.Errorf("failed to initialize swarm client: %w", err)
	}

	publisher := jobs.NewPublisher(rabbitClient, appLogger.Component("publisher"))

	handlers := workerhandler.Registry(workerhandler.Deps{
		Docker:   dockerFactory(cfg.Docker, appLogger.Component("docker")),
		Cluster:  cluster,
		Metrics:  metrics.NewRecorder(appLogger.Component("metrics")),
		Logger:   appLogger.Component("handler"),
		Settings: handlerSettings(cfg.Health),
	})

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:         appLogger.Component("worker"),
		Broker:         rabbitClient,
		Publisher:      publisher,
		Reporter:       reporter,
		Handlers:       handlers,
		Budget:         workerBudget(cfg),
		Service:        cfg.App.Service,
		Prefetch:       cfg.RabbitMQ.Consumer.PrefetchCount,
		JobTimeout:     cfg.Worker.JobTimeout,
		ReconnectDelay: cfg.Worker.ReconnectDelay,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := workerInstance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	if cfg.Health.ScheduleEnabled {
		schedule, err := worker.ParseSchedule(cfg.Health.Schedule, cfg.Health.CollectInterval)
		if err != nil {
			workerInstance.Stop()
			return err
		}
		scheduler := worker.NewScheduler(publisher, schedule, appLogger.Component("scheduler"))
		go scheduler.Run(ctx)
	}

	var srv *http.Server
	errChan := make(chan error, 1)
	if cfg.Server.Enabled {
		deps := &handler.Dependencies{
			Logger:    appLogger.Component("api"),
			Service:   cfg.App.Name,
			Publisher: publisher,
			Broker:    rabbitClient,
			Budget:    cfg.RetryBudget,
		}
		if store != nil {
			deps.Reports = store
			deps.Database = dbClient
		}
		srv = initServer(cfg, deps)

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
		appLogger.Info("Ops server listening", slog.String("address", srv.Addr))
	}

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case runErr = <-errChan:
		appLogger.Error("Ops server error", slog.Any("error", runErr))
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		}
		shutdownCancel()
	}

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

func dockerFactory(cfg config.DockerConfig, logger *slog.Logger) workerhandler.DockerFactory {
	dockerCfg := docker.Config{
		APIVersion:    cfg.APIVersion,
		TLSCertPath:   cfg.TLSCertPath,
		RegistryAuth:  cfg.RegistryAuth,
		RetryAttempts: cfg.RetryAttempts,
		RetryInterval: cfg.RetryInterval,
		CallTimeout:   cfg.CallTimeout,
	}
	return func(host string) (workerhandler.DockerClient, error) {
		client, err := docker.NewClient(host, dockerCfg, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func handlerSettings(cfg config.HealthConfig) workerhandler.Settings {
	return workerhandler.Settings{
		InfoImage:           cfg.InfoImage,
		RSSLimit:            cfg.RSSLimit,
		UserRegistry:        cfg.UserRegistry,
		ASGCreatedDelay:     cfg.ASGCreatedDelay,
		SwarmAgentContainer: cfg.SwarmAgentContainer,
		CleanupTimeout:      cfg.CleanupTimeout,
	}
}

func workerBudget(cfg *config.Config) func(string) worker.Budget {
	return func(name string) worker.Budget {
		b := cfg.RetryBudget(name)
		return worker.Budget{MaxAttempts: b.MaxAttempts, RetryInterval: b.RetryInterval}
	}
}

// initServer builds the ops HTTP server
func initServer(cfg *config.Config, deps *handler.Dependencies) *http.Server {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.SetupRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
