package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pcm/internal/app"
	"github.com/odyssey-erp/odyssey-pcm/internal/audit"
	"github.com/odyssey-erp/odyssey-pcm/internal/auth"
	"github.com/odyssey-erp/odyssey-pcm/internal/billing"
	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	"github.com/odyssey-erp/odyssey-pcm/internal/expenses"
	"github.com/odyssey-erp/odyssey-pcm/internal/notify"
	"github.com/odyssey-erp/odyssey-pcm/internal/observability"
	"github.com/odyssey-erp/odyssey-pcm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pcm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pcm/internal/rbac"
	"github.com/odyssey-erp/odyssey-pcm/internal/reports"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
	"github.com/odyssey-erp/odyssey-pcm/internal/timeentries"
	"github.com/odyssey-erp/odyssey-pcm/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL, metrics)
	if err := reportCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("report cache listener", slog.Any("error", err))
	}

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
			logger.Warn("nats connect, alerts fall back to e-mail only", slog.Any("error", err))
		} else {
			defer nc.Close()
			notifiers = append(notifiers, notify.NewNATSNotifier(nc))
		}
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	tokens, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(dbpool), tokens)
	authHandler := auth.NewHandler(logger, authService)

	budgetService := budget.NewService(budget.NewRepository(dbpool), auditLogger, budget.ServiceConfig{
		Defaults: thresholds,
		Logger:   logger,
		Notifier: notifiers,
		Metrics:  metrics,
		Cache:    reportCache,
	})
	budgetHandler := budget.NewHandler(logger, budgetService, rbacMiddleware)

	expenseService := expenses.NewService(expenses.NewRepository(dbpool), budgetService, auditLogger, expenses.ServiceConfig{
		Logger:  logger,
		Metrics: metrics,
		Cache:   reportCache,
	})
	expenseHandler := expenses.NewHandler(logger, expenseService, rbacMiddleware)

	timeEntryService := timeentries.NewService(timeentries.NewRepository(dbpool), auditLogger, logger)
	timeEntryHandler := timeentries.NewHandler(logger, timeEntryService, rbacMiddleware)

	billingService := billing.NewService(billing.NewRepository(dbpool), auditLogger, billing.ServiceConfig{
		ExcludeInvoiced: cfg.BillingExcludeInvoiced,
		Logger:          logger,
		Metrics:         metrics,
		Cache:           reportCache,
	})
	billingHandler := billing.NewHandler(logger, billingService, rbacMiddleware)

	reportService := reports.NewService(reports.NewRepository(dbpool), reportCache, auditLogger, logger)
	reportHandler := reports.NewHandler(logger, reportService, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)
	auditHandler := audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             tokens,
		Metrics:            metrics,
		AuthHandler:        authHandler,
		TimeEntriesHandler: timeEntryHandler,
		ExpensesHandler:    expenseHandler,
		BudgetHandler:      budgetHandler,
		BillingHandler:     billingHandler,
		ReportsHandler:     reportHandler,
		JobHandler:         jobHandler,
		AuditHandler:       auditHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
