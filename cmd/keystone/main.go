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

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/accounting/posting"
	"github.com/keystone-erp/keystone-erp/internal/app"
	"github.com/keystone-erp/keystone-erp/internal/audit"
	"github.com/keystone-erp/keystone-erp/internal/inventory"
	"github.com/keystone-erp/keystone-erp/internal/lifecycle"
	"github.com/keystone-erp/keystone-erp/internal/platform/db"
	"github.com/keystone-erp/keystone-erp/internal/voucher"
	"github.com/keystone-erp/keystone-erp/internal/workflow"
	"github.com/keystone-erp/keystone-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(pool)
	auditLogger := audit.NewLogger(auditRepo, logger)

	journalRepo := journals.NewRepository(pool)
	journalService := journals.NewService(journalRepo, auditLogger)
	postingService := posting.NewService(journalRepo, auditLogger)
	lifecycleService := lifecycle.NewService(journalRepo, auditLogger, lifecycle.StaticConfig{}, postingService)

	workflowRepo := workflow.NewRepository(pool)
	workflowService := workflow.NewService(workflowRepo, lifecycle.NewDocumentGateway(lifecycleService), auditLogger)

	inventoryRepo := inventory.NewRepository(pool)
	costingEngine := inventory.NewEngine()
	inventoryService := inventory.NewService(inventoryRepo, costingEngine, auditLogger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	hooks := voucher.NewRegistry(logger)
	hooks.Register(voucher.HookAfterPost, voucher.Hook{
		Name: "audit-seal-enqueue",
		Fn: func(ctx context.Context, _ *voucher.HookContext) error {
			_, err := jobsClient.EnqueueAuditSeal(ctx, jobs.AuditSealPayload{Limit: cfg.AuditSealBatchSize})
			return err
		},
	})

	orchestrator := voucher.NewOrchestrator(
		voucher.NewProcessRepository(pool),
		voucher.NewTxRunner(pool),
		journalRepo,
		voucher.NewConfigRepository(pool),
		postingService,
		costingEngine,
		workflowService,
		hooks,
		auditLogger,
		logger,
	)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		API: []app.RouteMounter{
			journals.NewHandler(logger, journalService),
			lifecycle.NewHandler(logger, lifecycleService),
			workflow.NewHandler(logger, workflowService),
			voucher.NewHandler(logger, orchestrator),
			inventory.NewHandler(logger, inventoryService),
		},
		JobsHealth: jobHandler.MountRoutes,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
