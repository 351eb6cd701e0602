package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/keystone-erp/keystone-erp/internal/accounting/journals"
	"github.com/keystone-erp/keystone-erp/internal/accounting/posting"
	"github.com/keystone-erp/keystone-erp/internal/app"
	"github.com/keystone-erp/keystone-erp/internal/audit"
	jobmetrics "github.com/keystone-erp/keystone-erp/internal/jobs"
	"github.com/keystone-erp/keystone-erp/internal/platform/db"
	"github.com/keystone-erp/keystone-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	metrics := jobmetrics.NewMetrics(nil)

	auditRepo := audit.NewRepository(pool)
	auditLogger := audit.NewLogger(auditRepo, logger)
	sealer := audit.NewSealer(auditRepo)

	journalRepo := journals.NewRepository(pool)
	postingService := posting.NewService(journalRepo, auditLogger)

	sealHandler := jobs.NewAuditSealHandler(sealer, metrics, logger)
	verifyHandler := jobs.NewAuditVerifyHandler(sealer, metrics, logger)
	batchPostHandler := jobs.NewBatchPostHandler(journalRepo, postingService, metrics, logger)
	integrityHandler := jobs.NewLedgerIntegrityHandler(pool, metrics, logger)

	sealTask, err := jobs.NewAuditSealTask(jobs.AuditSealPayload{Limit: cfg.AuditSealBatchSize})
	if err != nil {
		logger.Error("build seal task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask(jobs.LedgerIntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditSeal, Handler: sealHandler.Handle},
			{Type: jobs.TaskAuditVerify, Handler: verifyHandler.Handle},
			{Type: jobs.TaskBatchPost, Handler: batchPostHandler.Handle},
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityHandler.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AuditSealCron, Task: sealTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueCritical)}},
			{Spec: "0 3 * * *", Task: jobs.NewAuditVerifyTask(), Options: []asynq.Option{asynq.MaxRetry(1), asynq.Queue(jobs.QueueCritical)}},
			{Spec: "30 3 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(1), asynq.Queue(jobs.QueueCritical)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
