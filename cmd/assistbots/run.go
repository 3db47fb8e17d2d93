package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgard/assistbots/internal/bot"
	"github.com/edgard/assistbots/internal/bot/tasks"
	"github.com/edgard/assistbots/internal/config"
	"github.com/edgard/assistbots/internal/database"
	"github.com/edgard/assistbots/internal/dispatch"
	"github.com/edgard/assistbots/internal/logger"
	"github.com/edgard/assistbots/internal/telegram"
)

// run wires every component from configuration and blocks until ctx is
// cancelled or the bots stop. A nil return means a clean shutdown.
func run(ctx context.Context, opts *rootOptions) error {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		slog.Error("Failed to load env file", "path", opts.envFile, "error", err)
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", opts.configPath, "error", err)
		return err
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON, "version", version)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return err
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	var dispatcher dispatch.Dispatcher
	if len(cfg.Instances) > 0 {
		dispatcher, err = dispatch.New(ctx, cfg.Assistant, store, log)
		if err != nil {
			log.Error("Failed to initialize assistant dispatcher", "provider", cfg.Assistant.Provider, "error", err)
			return fmt.Errorf("failed to initialize dispatcher: %w", err)
		}
	}

	orchestrator := bot.NewOrchestrator(bot.InstanceDeps{
		Logger:         log,
		Connector:      telegram.NewConnector(log, cfg.Telegram),
		Dispatcher:     dispatcher,
		Messages:       cfg.Messages,
		HandlerTimeout: cfg.Assistant.Timeout + cfg.Telegram.ConnectTimeout,
	}, cfg.Telegram.ShutdownGrace, log)

	taskDeps := tasks.TaskDeps{
		Logger:    log,
		Store:     store,
		ThreadTTL: cfg.Scheduler.ThreadTTL,
	}
	if remote, ok := dispatch.Unwrap(dispatcher).(tasks.ThreadDeleter); ok {
		taskDeps.RemoteThreads = remote
	}
	taskMap := tasks.RegisterAllTasks(taskDeps)
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, taskMap)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return err
	}

	svc := bot.NewService(log, cfg.Instances, orchestrator, sched)
	if err := svc.Run(ctx); err != nil {
		log.Error("Bot fleet stopped due to error", "error", err)
		return err
	}

	log.Info("Shutdown complete")
	return nil
}
