package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// PrivateOnly creates a middleware that rejects commands issued outside a
// private chat. Account commands carry credentials and balances, so they
// never run in groups.
func PrivateOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				return
			}

			if update.Message.Chat.Type != "private" {
				log := deps.Logger.With("middleware", "PrivateOnly")
				log.WarnContext(ctx, "Command outside private chat ignored",
					"user_id", update.Message.From.ID, "chat_id", update.Message.Chat.ID)
				return
			}

			next(ctx, bot, update)
		}
	}
}
