// Package bot implements lifecycle management and component orchestration
// for the monitoring bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/session"
)

// Bot represents the main application and manages its components'
// lifecycle.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	db        *sqlx.DB
	store     database.Store
	sessions  *session.Manager
	tgBot     *tgbot.Bot
	scheduler *Scheduler
	metrics   *metrics.Metrics
}

// NewBot creates the orchestrator over all long-running components.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	db *sqlx.DB,
	store database.Store,
	sessions *session.Manager,
	tgBot *tgbot.Bot,
	scheduler *Scheduler,
	m *metrics.Metrics,
) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		cfg:       cfg,
		db:        db,
		store:     store,
		sessions:  sessions,
		tgBot:     tgBot,
		scheduler: scheduler,
		metrics:   m,
	}
}

// Run starts all components and blocks until the context is cancelled or a
// component fails. Sessions are restored before the listeners come up and
// torn down on the way out.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	b.restoreSessions(ctx)
	defer b.sessions.Shutdown()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.tgBot.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")

			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}

		return nil
	})

	if b.cfg.Metrics.Enabled {
		g.Go(func() error {
			return b.serveMetrics(gCtx)
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// restoreSessions reconnects every tenant with stored credentials. A failed
// restore is logged and that tenant waits for a fresh /login.
func (b *Bot) restoreSessions(ctx context.Context) {
	ids, err := b.store.AllTenantIDs(ctx)
	if err != nil {
		b.logger.Error("Failed to list tenants for session restore", "error", err)
		return
	}

	restored := 0
	for _, id := range ids {
		err := b.sessions.Restore(ctx, id)
		switch {
		case err == nil:
			restored++
		case errors.Is(err, session.ErrNoStoredCredentials):
		default:
			b.logger.Warn("Failed to restore session", "tenant_id", id, "error", err)
		}
	}
	b.logger.Info("Session restore complete", "tenants", len(ids), "restored", restored)
}

func (b *Bot) serveMetrics(ctx context.Context) error {
	srv := &http.Server{
		Addr:              b.cfg.Metrics.Addr,
		Handler:           b.metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			b.logger.Error("Error stopping metrics server", "error", err)
		}
	}()

	b.logger.Info("Starting metrics server...", "addr", b.cfg.Metrics.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
