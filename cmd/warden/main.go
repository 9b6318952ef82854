// Warden - employee compliance violation engine.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/teamops/warden/internal/api"
	"github.com/teamops/warden/internal/batch"
	"github.com/teamops/warden/internal/bus"
	"github.com/teamops/warden/internal/cache"
	"github.com/teamops/warden/internal/domain"
	"github.com/teamops/warden/internal/events"
	"github.com/teamops/warden/internal/metrics"
	"github.com/teamops/warden/internal/repository"
	"github.com/teamops/warden/internal/roster"
	"github.com/teamops/warden/internal/rules"
	"github.com/teamops/warden/internal/status"
	"github.com/teamops/warden/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("WARDEN_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting warden",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()
	if os.Getenv("WARDEN_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"warnings_per_suspension", cfg.Escalation.WarningsPerSuspension,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	store, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	customEngine, err := rules.NewCustomEngine()
	if err != nil {
		slog.Error("failed to initialize custom rule engine", "error", err)
		os.Exit(1)
	}

	statusSvc := status.NewService(store, cacheImpl, cfg.Escalation.WarningsPerSuspension)
	eventSvc := events.NewService(store, statusSvc, busImpl)
	snapshotProvider := metrics.NewSQLProvider(store.DB(), store)
	directory := roster.NewSQLRoster(store.DB(), store, cacheImpl)

	orchestrator := batch.NewOrchestrator(snapshotProvider, directory, eventSvc, customEngine, busImpl, 10)
	slog.Info("batch orchestrator initialized")

	busWorker := worker.NewWorker(busImpl, statusSvc)
	if err := busWorker.Start(); err != nil {
		slog.Error("failed to start worker", "error", err)
	}

	handler := api.NewHandler(store, eventSvc, statusSvc, orchestrator, snapshotProvider, directory, customEngine, cacheImpl, busImpl, Version)
	srv := api.NewServer(cfg.Server, handler)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("warden is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	if err := busWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("warden shutdown complete")
}

// applyEnvOverrides patches the config from the environment.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("WARDEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WARDEN_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("WARDEN_ESCALATION_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Escalation.WarningsPerSuspension = k
		}
	}
	if v := os.Getenv("WARDEN_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("WARDEN_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
}
