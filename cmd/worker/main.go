package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/odyssey-pcm/internal/app"
	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	jobmetrics "github.com/odyssey-erp/odyssey-pcm/internal/jobs"
	"github.com/odyssey-erp/odyssey-pcm/internal/notify"
	"github.com/odyssey-erp/odyssey-pcm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pcm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pcm/internal/reports"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
	"github.com/odyssey-erp/odyssey-pcm/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	thresholds, err := cfg.Thresholds()
	if err != nil {
		logger.Error("budget thresholds", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	notifiers := notify.Multi{notify.NewEmailNotifier(jobClient, cfg.AlertEmailTo)}
	if cfg.NATSURL != "" {
		nc, err := notify.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("nats connect", slog.Any("error", err))
		} else {
			defer nc.Close()
			notifiers = append(notifiers, notify.NewNATSNotifier(nc))
		}
	}

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL, nil)

	budgetService := budget.NewService(budget.NewRepository(pool), shared.NewAuditLogger(pool), budget.ServiceConfig{
		Defaults: thresholds,
		Logger:   logger,
		Notifier: notifiers,
		Cache:    reportCache,
	})

	reconcileJob := jobs.NewBudgetReconcileJob(budgetService, logger, metrics)
	alertEmailJob := jobs.NewAlertEmailJob(logger, metrics)

	reconcileTask, err := jobs.NewBudgetReconcileTask(0)
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBudgetReconcile, Handler: reconcileJob.Handle},
			{Type: notify.TaskAlertEmail, Handler: alertEmailJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReconcileCron, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
