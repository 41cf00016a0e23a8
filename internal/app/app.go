package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hudsor01/tenant-flow-sub014/internal/adapter/alerting/hook"
	"github.com/hudsor01/tenant-flow-sub014/internal/adapter/repository/postgres"
	"github.com/hudsor01/tenant-flow-sub014/internal/alert"
	"github.com/hudsor01/tenant-flow-sub014/internal/api"
	"github.com/hudsor01/tenant-flow-sub014/internal/config"
	"github.com/hudsor01/tenant-flow-sub014/internal/deadletter"
	"github.com/hudsor01/tenant-flow-sub014/internal/dispatch"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/ledger"
	"github.com/hudsor01/tenant-flow-sub014/internal/domain/queue"
	"github.com/hudsor01/tenant-flow-sub014/internal/handler"
	"github.com/hudsor01/tenant-flow-sub014/internal/intake"
	"github.com/hudsor01/tenant-flow-sub014/internal/metrics"
	"github.com/hudsor01/tenant-flow-sub014/internal/reconciler"
	"github.com/hudsor01/tenant-flow-sub014/internal/webhook"
	"github.com/hudsor01/tenant-flow-sub014/internal/worker"
	"github.com/hudsor01/tenant-flow-sub014/pkg/alertclient"
	"github.com/hudsor01/tenant-flow-sub014/pkg/db"
	zaplog "github.com/hudsor01/tenant-flow-sub014/pkg/log"
	"github.com/hudsor01/tenant-flow-sub014/pkg/snowflake"
	"github.com/hudsor01/tenant-flow-sub014/sql/migrations"
)

// RunServer starts the HTTP server and background workers.
func RunServer() {
	app := fx.New(
		fx.Provide(
			// Config
			config.Load,

			// Alert sink
			alertclient.NewFromEnv,
			fx.Annotate(
				hook.NewAdapter,
				fx.As(new(alert.Sink)),
			),

			// Storage Adapters (Bind Interfaces)
			fx.Annotate(
				postgres.NewLedgerRepository,
				fx.As(new(ledger.Repository)),
			),
			fx.Annotate(
				postgres.NewQueueRepository,
				fx.As(new(queue.Repository)),
			),
			fx.Annotate(
				postgres.NewDeadLetterRepository,
				fx.As(new(deadletter.Repository)),
			),
			fx.Annotate(
				postgres.NewIntakeStore,
				fx.As(new(intake.Store)),
			),

			// Pipeline
			newVerifier,
			newPipelineMetrics,
			deadletter.NewRecorder,
			handler.NewPaymentHandler,
			handler.NewSubscriptionHandler,
			handler.NewRegistry,
			intake.NewService,
			newWorkerPool,
			newClaimReaper,
			newSubscriptionReconciler,

			// API
			api.NewRouter,
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
		fx.Invoke(registerHooks),
	)

	app.Run()
}

// RunMigrations executes database migrations (up or down).
func RunMigrations(command string) error {
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting database migration...", zap.String("command", command))

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("Migration up applied")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("Migration down applied")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}

func registerHooks(
	lc fx.Lifecycle,
	router *api.Router,
	pool *worker.Pool,
	reaper *reconciler.ClaimReaper,
	subscriptions *reconciler.SubscriptionReconciler,
	cfg *config.Config,
	logger *zap.Logger,
) {
	var poolCancel context.CancelFunc
	var reaperCancel context.CancelFunc
	var subscriptionCancel context.CancelFunc
	poolDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			poolCancel = cancel
			go func() {
				pool.Run(poolCtx)
				close(poolDone)
			}()

			reaperCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			reaperCancel = cancel
			go reaper.Run(reaperCtx)

			subscriptionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			subscriptionCancel = cancel
			go subscriptions.Run(subscriptionCtx)

			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down gracefully...")

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			// Stop intake first so no new work arrives, then drain the
			// workers.
			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
			}

			if poolCancel != nil {
				poolCancel()
			}
			if reaperCancel != nil {
				reaperCancel()
			}
			if subscriptionCancel != nil {
				subscriptionCancel()
			}

			select {
			case <-poolDone:
				logger.Info("Worker pool drained")
			case <-shutdownCtx.Done():
				logger.Warn("Worker pool drain timed out")
			}

			return nil
		},
	})
}

func newVerifier(cfg *config.Config) *webhook.Verifier {
	return webhook.NewVerifier(cfg.WebhookSecret, cfg.ReplayTolerance)
}

func newPipelineMetrics() *metrics.Pipeline {
	return metrics.NewPipeline(prometheus.DefaultRegisterer)
}

func newWorkerPool(
	cfg *config.Config,
	jobs queue.Repository,
	events ledger.Repository,
	registry *dispatch.Registry,
	recorder *deadletter.Recorder,
	pipelineMetrics *metrics.Pipeline,
	logger *zap.Logger,
) *worker.Pool {
	return worker.NewPool(worker.Config{
		Workers:        cfg.WorkerCount,
		PollInterval:   cfg.WorkerPollInterval,
		MaxAttempts:    cfg.MaxAttempts,
		BaseBackoff:    cfg.BaseBackoffDelay,
		MaxBackoff:     cfg.MaxBackoffDelay,
		ClaimLease:     cfg.ClaimLeaseDuration,
		HandlerTimeout: cfg.HandlerTimeout,
	}, jobs, events, registry, recorder, pipelineMetrics, logger)
}

func newClaimReaper(
	cfg *config.Config,
	events ledger.Repository,
	jobs queue.Repository,
	logger *zap.Logger,
) *reconciler.ClaimReaper {
	return reconciler.NewClaimReaper(events, jobs, cfg.ReconcileInterval, cfg.ReconcileBatchSize, logger)
}

func newSubscriptionReconciler(
	cfg *config.Config,
	database *gorm.DB,
	logger *zap.Logger,
) *reconciler.SubscriptionReconciler {
	return reconciler.NewSubscriptionReconciler(database, cfg.ReconcileInterval, cfg.ReconcileBatchSize, logger)
}
