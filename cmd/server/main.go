package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/schoolops/caseflow/internal/application/dispatcher"
	"github.com/schoolops/caseflow/internal/application/engine"
	"github.com/schoolops/caseflow/internal/catalog"
	"github.com/schoolops/caseflow/internal/config"
	httpiface "github.com/schoolops/caseflow/internal/interfaces/http"
	"github.com/schoolops/caseflow/internal/infrastructure/persistence/repository"
	"github.com/schoolops/caseflow/internal/infrastructure/persistence/sqlite"
	"github.com/schoolops/caseflow/internal/infrastructure/worker"
	"github.com/schoolops/caseflow/internal/notification"
	"github.com/schoolops/caseflow/internal/observability"
	"github.com/schoolops/caseflow/pkg/database"
	"github.com/schoolops/caseflow/pkg/utils"
)

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting case workflow engine",
		zap.Int("port", cfg.Server.Port))

	// Load and validate the workflow catalog. A malformed definition is a
	// startup failure, not a runtime surprise.
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal("Failed to load workflow catalog", zap.Error(err))
	}
	logger.Info("Workflow catalog loaded", zap.Int("categories", cat.Len()))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	txManager := sqlite.NewDB(db.DB, logger)
	instanceStore := repository.NewInstanceRepository(db.DB, logger)
	auditSink := repository.NewAuditRepository(db.DB, logger)
	escalations := repository.NewEscalationRepository(db.DB, logger)
	cases := repository.NewCaseRepository(db.DB, logger)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	events := dispatcher.NewDispatcher(dispatcher.WithLogger(logger))
	defer events.Close()
	notification.NewLogNotifier(logger).Register(events)

	eng := engine.New(cat, cases, instanceStore, auditSink, txManager, logger,
		engine.WithDispatcher(events),
		engine.WithMetrics(metrics),
	)

	slaMonitor := worker.NewSLAMonitor(
		worker.SLAMonitorConfig{Schedule: cfg.SLA.SweepSchedule},
		cat, instanceStore, escalations, events, metrics, logger,
	)

	workers := worker.NewManager(logger)
	workers.Register(slaMonitor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	handlers := httpiface.NewHandlers(eng, cases, logger)
	server := httpiface.NewServer(httpiface.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, handlers, registry, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := workers.StopAll(); err != nil {
		logger.Error("Worker shutdown failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
