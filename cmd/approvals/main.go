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
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-approvals/internal/app"
	"github.com/odyssey-erp/odyssey-approvals/internal/approval"
	approvalhttp "github.com/odyssey-erp/odyssey-approvals/internal/approval/http"
	"github.com/odyssey-erp/odyssey-approvals/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-approvals/internal/audit/http"
	"github.com/odyssey-erp/odyssey-approvals/internal/observability"
	"github.com/odyssey-erp/odyssey-approvals/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-approvals/internal/platform/db"
	"github.com/odyssey-erp/odyssey-approvals/internal/rbac"
	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
	"github.com/odyssey-erp/odyssey-approvals/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	redisClient, err = cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("redis unavailable, approval config cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	approvalRepo := approval.NewRepository(dbpool)
	configCache := approval.NewConfigCache(redisClient, cfg.ApprovalConfigCacheTTL, logger)
	configService := approval.NewConfigService(approvalRepo, configCache, logger)

	auditSink := audit.NewSink(shared.NewAuditLogger(dbpool))
	approvalService := approval.NewService(approvalRepo, configService, approval.Options{
		Audit:                 auditSink,
		Notifier:              jobClient,
		Observer:              metrics,
		Logger:                logger,
		RequireExplicitConfig: cfg.ApprovalRequireExplicitConfig,
		PendingMaxLimit:       cfg.ApprovalPendingMaxLimit,
	})

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	approvalHandler := approvalhttp.NewHandler(logger, approvalService, configService, rbacService, rbacMiddleware, cfg.ActionRateLimitPerMinute).
		WithIdempotency(shared.NewIdempotencyStore(dbpool))
	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware)
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacService, rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ApprovalHandler:    approvalHandler,
		AuditHandler:       auditHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
