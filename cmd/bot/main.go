// Package main contains the entrypoint for the monitoring bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/keywatch/keywatch/internal/bot"
	"github.com/keywatch/keywatch/internal/bot/handlers"
	"github.com/keywatch/keywatch/internal/bot/tasks"
	"github.com/keywatch/keywatch/internal/chatsource"
	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/logger"
	"github.com/keywatch/keywatch/internal/match"
	"github.com/keywatch/keywatch/internal/metering"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/notify"
	"github.com/keywatch/keywatch/internal/payment"
	"github.com/keywatch/keywatch/internal/registry"
	"github.com/keywatch/keywatch/internal/session"
	"github.com/keywatch/keywatch/internal/telegram"
	"github.com/keywatch/keywatch/internal/textnorm"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	m := metrics.New()

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log,
		tgbot.WithMiddlewares(logger.Middleware(log)))
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	// The alert bot delivers match notifications on a separate token so
	// they never drown out command replies. Without one, the primary bot
	// carries both.
	alertBot := tg
	if cfg.Telegram.AlertToken != "" {
		alertBot, err = telegram.NewTelegramBot(cfg.Telegram.AlertToken, log)
		if err != nil {
			log.Error("Failed to create alert bot", "error", err)
			return 1
		}
	}
	notifier := notify.NewTelegramNotifier(tg, alertBot, log, m)

	engine := match.NewEngine(textnorm.New(cfg.Session.PrimaryLanguage))
	sessions := session.NewManager(log, store, chatsource.NewDisconnected(), engine, notifier, m)

	pricing := metering.NewPricing(cfg.Pricing)
	reg := registry.New(log, store, sessions, pricing)
	meter := metering.NewEngine(log, store, pricing, notifier, reg, m)
	payments := payment.NewService(log, store, payment.NewClient(cfg.Payments), notifier, cfg.Pricing, cfg.Payments)

	hDeps := handlers.HandlerDeps{
		Logger:   log,
		Config:   cfg,
		Store:    store,
		Sessions: sessions,
		Registry: reg,
		Metering: meter,
		Payments: payments,
		Notifier: notifier,
	}
	tDeps := tasks.TaskDeps{
		Logger:   log,
		Store:    store,
		Metering: meter,
		Config:   cfg,
	}

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, db, store, sessions, tg, sched, m)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
