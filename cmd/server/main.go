package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"siampos/backend/internal/cache"
	"siampos/backend/internal/config"
	"siampos/backend/internal/httpapi"
	"siampos/backend/internal/payment"
	"siampos/backend/internal/service"
	"siampos/backend/internal/store"
	"siampos/backend/internal/store/memory"
	pgstore "siampos/backend/internal/store/postgres"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		slog.Error("invalid security configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", "err", err)
			os.Exit(1)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		repo = pg
		closers = append(closers, pg.Close)
		slog.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		slog.Info("repository: in-memory")
	}

	intents := cache.IntentCache(cache.NoopIntentCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisIntentCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, using noop intent cache", "err", err)
		} else {
			intents = redisCache
			closers = append(closers, redisCache.Close)
			slog.Info("intent cache: redis")
		}
	} else {
		slog.Info("intent cache: noop")
	}

	gateway := payment.NewSimulatedGateway()
	svc := service.New(repo, gateway, intents, time.Duration(cfg.IntentCacheTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, svc)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:    cfg.AllowedOrigin,
		WebhookSecret:    cfg.WebhookSecret,
		WebhookTolerance: time.Duration(cfg.WebhookToleranceSeconds) * time.Second,
		LoginRateLimit:   cfg.RateLimitPerMinute,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("POS backend listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			slog.Warn("close error", "err", err)
		}
	}

	slog.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.WebhookSecret) < 16 {
		return fmt.Errorf("WEBHOOK_SECRET must be set and at least 16 characters")
	}
	return nil
}
