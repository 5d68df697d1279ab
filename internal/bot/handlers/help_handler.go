package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const helpText = `Account:
/login <api_id> <api_hash> <phone> - connect your account
/code <code> - enter the one-time login code
/password <password> - enter the two-factor password
/logout - disconnect your account

Monitors:
/monitors - list your monitors
/newmonitor - create a monitor
/rename <id> <name> - rename a monitor
/setchats <id> <chat, chat, ...> - set the chats to watch
/setwords <id> <word, word, ...> - set the keywords
/setexclude <id> <word, word, ...> - set exclusion keywords
/resume <id> - start a monitor
/pause <id> - pause a monitor
/delete <id> - delete a paused monitor

Results:
/export <id|all> - download results as CSV
/clearresults <id|all> - clear stored results

Billing:
/balance - balance and service forecast
/topup <amount> - top up your balance
/subscribe - buy a monthly subscription
/expand <chats> - buy a plan sized to more chats
/promo <code> - redeem a promo code
/recurring <on|off> - toggle automatic renewal`

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return helpHandler{deps}.Handle
}

// helpHandler processes the /help command using injected dependencies.
type helpHandler struct {
	deps HandlerDeps
}

func (h helpHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "help")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Help handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	log.InfoContext(ctx, "Handling /help command", "tenant_id", update.Message.From.ID)
	reply(ctx, log, b, update.Message.Chat.ID, helpText)
}
