package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its middleware.
// It encapsulates all information needed to register a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available bot
// commands. Every command is private-chat only: monitors, credentials, and
// balances belong to one account.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	private := []tgbot.Middleware{PrivateOnly(deps)}

	command := func(pattern string, handler tgbot.HandlerFunc) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     handler,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  private,
		}
	}

	handlers := make(map[string]RegisteredHandler)

	handlers["/start"] = command("start", NewStartHandler(deps))
	handlers["/help"] = command("help", NewHelpHandler(deps))

	handlers["/login"] = command("login", NewLoginHandler(deps))
	handlers["/code"] = command("code", NewCodeHandler(deps))
	handlers["/password"] = command("password", NewPasswordHandler(deps))
	handlers["/logout"] = command("logout", NewLogoutHandler(deps))

	handlers["/monitors"] = command("monitors", NewListMonitorsHandler(deps))
	handlers["/newmonitor"] = command("newmonitor", NewCreateMonitorHandler(deps))
	handlers["/rename"] = command("rename", NewRenameHandler(deps))
	handlers["/setchats"] = command("setchats", NewSetChatsHandler(deps))
	handlers["/setwords"] = command("setwords", NewSetKeywordsHandler(deps))
	handlers["/setexclude"] = command("setexclude", NewSetExcludeHandler(deps))
	handlers["/resume"] = command("resume", NewResumeHandler(deps))
	handlers["/pause"] = command("pause", NewPauseHandler(deps))
	handlers["/delete"] = command("delete", NewDeleteHandler(deps))

	handlers["/export"] = command("export", NewExportHandler(deps))
	handlers["/clearresults"] = command("clearresults", NewClearResultsHandler(deps))

	handlers["/balance"] = command("balance", NewBalanceHandler(deps))
	handlers["/topup"] = command("topup", NewTopUpHandler(deps))
	handlers["/subscribe"] = command("subscribe", NewSubscribeHandler(deps))
	handlers["/expand"] = command("expand", NewExpandHandler(deps))
	handlers["/promo"] = command("promo", NewPromoHandler(deps))
	handlers["/recurring"] = command("recurring", NewRecurringHandler(deps))

	return handlers
}
