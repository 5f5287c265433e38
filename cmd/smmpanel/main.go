// Package main запускает HTTP-сервер SMM-панели.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/smm-panel/internal/config"
	"github.com/mmeshcher/smm-panel/internal/functions"
	"github.com/mmeshcher/smm-panel/internal/handler"
	"github.com/mmeshcher/smm-panel/internal/metrics"
	"github.com/mmeshcher/smm-panel/internal/middleware"
	"github.com/mmeshcher/smm-panel/internal/provider"
	"github.com/mmeshcher/smm-panel/internal/ratelimit"
	"github.com/mmeshcher/smm-panel/internal/repository"
	"github.com/mmeshcher/smm-panel/internal/scheduler"
	"github.com/mmeshcher/smm-panel/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	metrics.MustRegister()

	opts := []service.Option{
		service.WithLogger(logger.Named("service")),
		service.WithProvider(provider.NewClient(cfg.ProviderTimeout)),
		service.WithFunctions(functions.NewClient(cfg.FunctionsURL, cfg.FunctionsKey, cfg.ProviderTimeout)),
	}
	if cfg.FunctionsURL == "" {
		sugar.Warn("functions URL is not set, payments and two-factor codes are unavailable")
	}

	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress, Password: cfg.RedisPassword})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			sugar.Warnw("redis is unreachable, code throttling fails open", "addr", cfg.RedisAddress, "error", err.Error())
		}
		cancel()

		opts = append(opts, service.WithLimiter(
			ratelimit.NewRedisLimiter(rdb, "smm:rate_limit", cfg.CodeSendLimit, cfg.CodeSendWindow),
		))
	}

	svc := service.NewService(repo, opts...)
	defer svc.Close()

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT secret is not set, sessions will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.WebhookSecret)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Опрос поставщиков о статусах заказов
	g.Go(func() error {
		svc.StartStatusUpdates(ctx, cfg.ProviderPollInterval)
		return nil
	})

	jobs := scheduler.New(svc, scheduler.Config{
		ReconcileSchedule: cfg.ReconcileSchedule,
		ResubmitSchedule:  cfg.ResubmitSchedule,
	}, logger.Named("scheduler"))
	if err := jobs.Start(ctx); err != nil {
		sugar.Fatalw("scheduler initialization error", "error", err.Error())
	}

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting smm panel server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		<-jobs.Stop().Done()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
