package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hkbertoson/dayssincetags/internal/adapter/badger"
	"github.com/hkbertoson/dayssincetags/internal/adapter/httpserver"
	"github.com/hkbertoson/dayssincetags/internal/adapter/metrics"
	"github.com/hkbertoson/dayssincetags/internal/adapter/redis"
	"github.com/hkbertoson/dayssincetags/internal/adapter/websocket"
	"github.com/hkbertoson/dayssincetags/internal/domain"
	"github.com/hkbertoson/dayssincetags/internal/platform/config"
	"github.com/hkbertoson/dayssincetags/internal/platform/logging"
	"github.com/hkbertoson/dayssincetags/internal/platform/version"
	"github.com/hkbertoson/dayssincetags/internal/tag"
	"github.com/jonboulle/clockwork"
)

const (
	loadTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

type tagStore interface {
	domain.TagStore
	Ping(ctx context.Context) error
	Close() error
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStore(cfg *config.Config, storageMetrics *metrics.StorageMetrics) tagStore {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		client, err := redis.NewClient(ctx, cfg.RedisURL,
			redis.NewCircuitBreakerHook(storageMetrics),
			redis.NewMetricsHook(storageMetrics),
		)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		return redis.NewTagStore(client)
	default:
		db, err := badger.Open(cfg.BadgerPath)
		if err != nil {
			slog.Error("Failed to open Badger database", "path", cfg.BadgerPath, "error", err)
			os.Exit(1)
		}
		return badger.NewTagStore(db, storageMetrics)
	}
}

func runGracefulShutdown(srv *httpserver.Server, coordinator *tag.Coordinator, store tagStore) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		coordinator.Stop()

		if err := store.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", append(version.Get().LogAttrs(), "env", cfg.AppEnv, "backend", cfg.StorageBackend)...)

	reg := metrics.NewRegistry()
	storageMetrics := metrics.NewStorageMetrics(reg)
	tagMetrics := metrics.NewTagMetrics(reg)
	wsMetrics := metrics.NewWebSocketMetrics(reg)

	store := setupStore(cfg, storageMetrics)

	coordinator := tag.New(store, clock, tagMetrics, cfg.MaxWebSocketConnections)

	// Nothing is served until the tag state is in memory.
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), loadTimeout)
	err := coordinator.WaitReady(loadCtx)
	cancelLoad()
	if err != nil {
		slog.Error("Failed to load tag state", "error", err)
		coordinator.Stop()
		_ = store.Close()
		os.Exit(1)
	}

	checkOrigin := websocket.NewCheckOrigin(cfg.AppURL, cfg.AllowedOrigins, cfg.IsDevelopment())
	wsHandler := websocket.NewHandler(coordinator, checkOrigin, clock, wsMetrics)

	healthChecks := []httpserver.HealthCheck{
		{Name: "storage", Check: store.Ping},
		{Name: "coordinator", Check: coordinator.Ready},
	}
	srv := httpserver.NewServer(cfg, coordinator, wsHandler, reg, healthChecks)

	done := runGracefulShutdown(srv, coordinator, store)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
