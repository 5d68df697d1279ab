package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const welcomeText = `👋 Welcome to the keyword monitoring bot.

Connect your account with /login, create a monitor with /newmonitor, and I will watch your chats for the keywords you care about.

Use /help to see every command.`

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler processes the /start command using injected dependencies.
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	tenantID := update.Message.From.ID
	log.InfoContext(ctx, "Handling /start command", "tenant_id", tenantID)

	if _, err := h.deps.Store.GetOrCreateTenant(ctx, tenantID); err != nil {
		log.ErrorContext(ctx, "Failed to create tenant record", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, update.Message.Chat.ID, "Something went wrong, please try again.")
		return
	}

	// Subscription state is re-evaluated on entry, not only by the nightly
	// sweep, so an expiry that lapsed since the last cycle is acted on now.
	if err := h.deps.Metering.SweepTenant(ctx, tenantID); err != nil {
		log.ErrorContext(ctx, "Subscription sweep on /start failed", "error", err, "tenant_id", tenantID)
	}

	reply(ctx, log, b, update.Message.Chat.ID, welcomeText)
}
