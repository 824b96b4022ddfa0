// swarmsched is a task-scheduling server: bots poll it for work, clients
// submit tasks to it (spec.md §0).
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/luci/swarmsched/internal/botpoll"
	"github.com/luci/swarmsched/internal/cleanup"
	"github.com/luci/swarmsched/internal/sweeper"
	"github.com/luci/swarmsched/internal/xsrf"
	"github.com/luci/swarmsched/pkg/api"
	"github.com/luci/swarmsched/pkg/config"
	"github.com/luci/swarmsched/pkg/database"
	"github.com/luci/swarmsched/pkg/services"
	"github.com/luci/swarmsched/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}

	slog.Info("starting swarmsched", "version", version.Full())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to PostgreSQL database")

	signer, err := xsrf.NewSigner()
	if err != nil {
		slog.Error("failed to initialize xsrf signer", "error", err)
		os.Exit(1)
	}

	taskService := services.NewTaskService(dbClient.Client, cfg.Scheduler.PriorityFloor)
	botService := services.NewBotService(dbClient.Client, signer, botpoll.Config{
		BotVersion:    cfg.Scheduler.BotVersion,
		RestartAfter:  cfg.Scheduler.RestartAfter,
		BaseBackoff:   cfg.Scheduler.PollBaseBackoff,
		MaxBackoff:    cfg.Scheduler.PollMaxBackoff,
		MatcherFanout: cfg.Scheduler.MatcherFanout,
		MaxPowerset:   cfg.Scheduler.MaxDimensionPowerset,
	}, cfg.Scheduler.ChunkSize)

	sw := sweeper.New(dbClient.Client, sweeper.Config{
		Interval:        cfg.Scheduler.SweepInterval,
		BotDeathTimeout: cfg.Scheduler.BotDeathTimeout,
	})
	sw.Start(ctx)
	defer sw.Stop()
	slog.Info("sweeper started", "interval", cfg.Scheduler.SweepInterval, "bot_death_timeout", cfg.Scheduler.BotDeathTimeout)

	var cleaner *cleanup.Cleaner
	if cfg.Retention.Enabled {
		cleaner = cleanup.New(dbClient.Client, cleanup.Config{
			Interval:  cfg.Retention.CleanupInterval,
			Retention: cfg.Retention.TaskRetention,
		})
		cleaner.Start(ctx)
		defer cleaner.Stop()
		slog.Info("tombstone cleanup started", "interval", cfg.Retention.CleanupInterval, "retention", cfg.Retention.TaskRetention)
	} else {
		slog.Info("tombstone cleanup disabled")
	}

	server := api.NewServer(dbClient, taskService, botService, cfg.Server.BodyLimit, cfg.Scheduler.ChunkSize)
	server.SetSweeper(sw)

	serverErrCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := server.Start(cfg.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-serverErrCh:
		if err != nil {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during HTTP server shutdown", "error", err)
	}
}
