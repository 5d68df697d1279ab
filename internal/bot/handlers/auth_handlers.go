package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/keywatch/keywatch/internal/chatsource"
	"github.com/keywatch/keywatch/internal/session"
)

// NewLoginHandler returns a handler for the /login command. It starts the
// account connection flow by requesting a one-time code.
func NewLoginHandler(deps HandlerDeps) bot.HandlerFunc {
	return loginHandler{deps}.Handle
}

type loginHandler struct {
	deps HandlerDeps
}

func (h loginHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "login")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 3 {
		reply(ctx, log, b, chatID, "Usage: /login <api_id> <api_hash> <phone>")
		return
	}

	apiID, err := strconv.Atoi(args[0])
	if err != nil || apiID <= 0 {
		reply(ctx, log, b, chatID, "api_id must be a positive number.")
		return
	}

	creds := chatsource.Credentials{APIID: apiID, APIHash: args[1], Phone: args[2]}
	if err := h.deps.Sessions.BeginAuth(ctx, tenantID, creds); err != nil {
		log.ErrorContext(ctx, "Failed to start login", "error", err, "tenant_id", tenantID)
		switch {
		case errors.Is(err, chatsource.ErrInvalidCredential):
			reply(ctx, log, b, chatID, "Those credentials were rejected. Check api_id and api_hash.")
		case errors.Is(err, chatsource.ErrRateLimited):
			reply(ctx, log, b, chatID, "Too many attempts, try again later.")
		default:
			reply(ctx, log, b, chatID, "Could not start the login, please try again.")
		}
		return
	}

	log.InfoContext(ctx, "Login challenge issued", "tenant_id", tenantID)
	reply(ctx, log, b, chatID, "A login code was sent to your account. Reply with /code <code>.")
}

// NewCodeHandler returns a handler for the /code command.
func NewCodeHandler(deps HandlerDeps) bot.HandlerFunc {
	return codeHandler{deps}.Handle
}

type codeHandler struct {
	deps HandlerDeps
}

func (h codeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "code")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /code <code>")
		return
	}

	err := h.deps.Sessions.CompleteAuth(ctx, tenantID, args[0])
	switch {
	case err == nil:
		log.InfoContext(ctx, "Account connected", "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "✅ Account connected. Active monitors are running again.")
	case errors.Is(err, chatsource.ErrPasswordRequired):
		reply(ctx, log, b, chatID, "Your account uses two-factor auth. Reply with /password <password>.")
	case errors.Is(err, chatsource.ErrCodeExpired):
		reply(ctx, log, b, chatID, "That code expired. Run /login again to get a new one.")
	case errors.Is(err, chatsource.ErrCodeInvalid):
		reply(ctx, log, b, chatID, "That code is not valid, try again.")
	case errors.Is(err, session.ErrNoChallenge):
		reply(ctx, log, b, chatID, "There is no login in progress. Start with /login.")
	default:
		log.ErrorContext(ctx, "Failed to complete login", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Could not complete the login, please try again.")
	}
}

// NewPasswordHandler returns a handler for the /password command.
func NewPasswordHandler(deps HandlerDeps) bot.HandlerFunc {
	return passwordHandler{deps}.Handle
}

type passwordHandler struct {
	deps HandlerDeps
}

func (h passwordHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "password")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /password <password>")
		return
	}

	err := h.deps.Sessions.CompletePassword(ctx, tenantID, args[0])
	switch {
	case err == nil:
		log.InfoContext(ctx, "Account connected with second factor", "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "✅ Account connected. Active monitors are running again.")
	case errors.Is(err, session.ErrNoChallenge):
		reply(ctx, log, b, chatID, "There is no login in progress. Start with /login.")
	case errors.Is(err, chatsource.ErrInvalidCredential):
		reply(ctx, log, b, chatID, "Wrong password, try again.")
	default:
		log.ErrorContext(ctx, "Failed to complete second factor", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Could not complete the login, please try again.")
	}
}

// NewLogoutHandler returns a handler for the /logout command.
func NewLogoutHandler(deps HandlerDeps) bot.HandlerFunc {
	return logoutHandler{deps}.Handle
}

type logoutHandler struct {
	deps HandlerDeps
}

func (h logoutHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "logout")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID

	h.deps.Sessions.Logout(tenantID)
	log.InfoContext(ctx, "Account disconnected", "tenant_id", tenantID)
	reply(ctx, log, b, update.Message.Chat.ID, "Account disconnected. Monitors will resume on your next /login.")
}
