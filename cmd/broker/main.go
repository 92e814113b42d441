// cmd/broker/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ican-broker/internal/auth"
	"ican-broker/internal/broker"
	"ican-broker/internal/common/config"
	"ican-broker/internal/common/database"
	"ican-broker/internal/common/logger"
	"ican-broker/internal/common/observability"
	"ican-broker/internal/server"
	"ican-broker/internal/store"
	"ican-broker/internal/upstream"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting broker...",
		zap.String("env", cfg.App.Environment),
		zap.String("upstream", cfg.Upstream.BaseURL),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init local PostgreSQL with retry ---
	var localPG *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		localPG, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return localPG.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Local PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("local postgres failed after retries", zap.Error(err))
	}
	defer localPG.Close()
	zapLog.Info("Local PostgreSQL connected successfully")

	// --- Init secondary (read-only) PostgreSQL with retry ---
	var secondaryPG *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		secondaryPG, err = database.NewPostgres(cfg.Database.Secondary)
		if err != nil {
			return err
		}
		return secondaryPG.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Secondary PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("secondary postgres failed after retries", zap.Error(err))
	}
	defer secondaryPG.Close()
	zapLog.Info("Secondary PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Wire services ---
	upstreamClient := upstream.NewClient(cfg.Upstream.BaseURL, config.GetDuration(cfg.Upstream.Timeout), log)
	snapshots := store.NewSnapshotStore(secondaryPG.DB, log)
	progress := store.NewProgressStore(localPG.DB, log)
	locks := store.NewAppLock(redis.Client, config.GetDuration(cfg.Lock.TTL), log)

	lifecycle := broker.NewService(upstreamClient, snapshots, progress, locks, log)
	authenticator := auth.NewService(upstreamClient, log)

	srv := server.New(lifecycle, authenticator, obs, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Broker stopped gracefully")
}
