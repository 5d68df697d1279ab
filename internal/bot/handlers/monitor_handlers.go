package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/keywatch/keywatch/internal/chatsource"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/registry"
	"github.com/keywatch/keywatch/internal/session"
)

// NewListMonitorsHandler returns a handler for the /monitors command.
func NewListMonitorsHandler(deps HandlerDeps) bot.HandlerFunc {
	return listMonitorsHandler{deps}.Handle
}

type listMonitorsHandler struct {
	deps HandlerDeps
}

func (h listMonitorsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "monitors")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	tenant, err := h.deps.Store.GetOrCreateTenant(ctx, tenantID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load tenant", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Something went wrong, please try again.")
		return
	}

	if len(tenant.Monitors) == 0 {
		reply(ctx, log, b, chatID, "You have no monitors yet. Create one with /newmonitor.")
		return
	}

	var sb strings.Builder
	for _, m := range tenant.Monitors {
		status := "⏸ paused"
		if m.Status == database.StatusActive {
			status = "▶️ active"
		}
		fmt.Fprintf(&sb, "#%d %s (%s)\n", m.ID, m.Name, status)
		fmt.Fprintf(&sb, "  chats: %d, keywords: %s\n", len(m.Chats), strings.Join(m.Keywords, ", "))
		if len(m.ExcludeKeywords) > 0 {
			fmt.Fprintf(&sb, "  excluded: %s\n", strings.Join(m.ExcludeKeywords, ", "))
		}
		fmt.Fprintf(&sb, "  daily cost: %s ₽, results: %d\n\n", m.DailyPrice.StringFixed(2), len(m.Results))
	}

	reply(ctx, log, b, chatID, strings.TrimRight(sb.String(), "\n"))
}

// NewCreateMonitorHandler returns a handler for the /newmonitor command.
func NewCreateMonitorHandler(deps HandlerDeps) bot.HandlerFunc {
	return createMonitorHandler{deps}.Handle
}

type createMonitorHandler struct {
	deps HandlerDeps
}

func (h createMonitorHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "newmonitor")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	mon, err := h.deps.Registry.Create(ctx, tenantID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create monitor", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Could not create the monitor, please try again.")
		return
	}

	reply(ctx, log, b, chatID, fmt.Sprintf(
		"Created monitor #%d. Configure it with /setchats %d ... and /setwords %d ..., then start it with /resume %d.",
		mon.ID, mon.ID, mon.ID, mon.ID))
}

// NewRenameHandler returns a handler for the /rename command.
func NewRenameHandler(deps HandlerDeps) bot.HandlerFunc {
	return renameHandler{deps}.Handle
}

type renameHandler struct {
	deps HandlerDeps
}

func (h renameHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "rename")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) < 2 {
		reply(ctx, log, b, chatID, "Usage: /rename <id> <name>")
		return
	}
	id, ok := parseMonitorID(args[0])
	if !ok {
		reply(ctx, log, b, chatID, "The monitor id must be a number, see /monitors.")
		return
	}

	name := strings.Join(args[1:], " ")
	if err := h.deps.Registry.Rename(ctx, tenantID, id, name); err != nil {
		replyRegistryError(ctx, log, b, chatID, err)
		return
	}
	reply(ctx, log, b, chatID, fmt.Sprintf("Monitor #%d renamed to %q.", id, name))
}

// NewSetChatsHandler returns a handler for the /setchats command. Chat
// references are resolved through the tenant's live connection, so this
// command requires a connected account.
func NewSetChatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return setChatsHandler{deps}.Handle
}

type setChatsHandler struct {
	deps HandlerDeps
}

func (h setChatsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "setchats")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) < 2 {
		reply(ctx, log, b, chatID, "Usage: /setchats <id> <chat, chat, ...>")
		return
	}
	id, ok := parseMonitorID(args[0])
	if !ok {
		reply(ctx, log, b, chatID, "The monitor id must be a number, see /monitors.")
		return
	}

	refs := splitList(args[1:])
	if len(refs) == 0 {
		reply(ctx, log, b, chatID, "Give at least one chat link, username, or id.")
		return
	}

	chats := make([]chatsource.ChatID, 0, len(refs))
	for _, ref := range refs {
		resolved, err := h.deps.Sessions.Resolve(ctx, tenantID, ref)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrNoSession):
				reply(ctx, log, b, chatID, "Connect your account first with /login.")
			case errors.Is(err, chatsource.ErrChatNotFound):
				reply(ctx, log, b, chatID, fmt.Sprintf("Could not find chat %q.", ref))
			default:
				log.ErrorContext(ctx, "Failed to resolve chat", "error", err, "tenant_id", tenantID, "ref", ref)
				reply(ctx, log, b, chatID, fmt.Sprintf("Could not resolve chat %q, please try again.", ref))
			}
			return
		}
		chats = append(chats, resolved)
	}

	if err := h.deps.Registry.SetChats(ctx, tenantID, id, chats); err != nil {
		replyRegistryError(ctx, log, b, chatID, err)
		return
	}
	reply(ctx, log, b, chatID, fmt.Sprintf("Monitor #%d now watches %d chats.", id, len(chats)))
}

// NewSetKeywordsHandler returns a handler for the /setwords command.
func NewSetKeywordsHandler(deps HandlerDeps) bot.HandlerFunc {
	return setKeywordsHandler{deps}.Handle
}

type setKeywordsHandler struct {
	deps HandlerDeps
}

func (h setKeywordsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "setwords")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) < 2 {
		reply(ctx, log, b, chatID, "Usage: /setwords <id> <word, word, ...>")
		return
	}
	id, ok := parseMonitorID(args[0])
	if !ok {
		reply(ctx, log, b, chatID, "The monitor id must be a number, see /monitors.")
		return
	}

	words := splitList(args[1:])
	if len(words) == 0 {
		reply(ctx, log, b, chatID, "Give at least one keyword.")
		return
	}

	if err := h.deps.Registry.SetKeywords(ctx, tenantID, id, words); err != nil {
		replyRegistryError(ctx, log, b, chatID, err)
		return
	}
	reply(ctx, log, b, chatID, fmt.Sprintf("Monitor #%d keywords: %s", id, strings.Join(words, ", ")))
}

// NewSetExcludeHandler returns a handler for the /setexclude command.
func NewSetExcludeHandler(deps HandlerDeps) bot.HandlerFunc {
	return setExcludeHandler{deps}.Handle
}

type setExcludeHandler struct {
	deps HandlerDeps
}

func (h setExcludeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "setexclude")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) < 1 {
		reply(ctx, log, b, chatID, "Usage: /setexclude <id> <word, word, ...>")
		return
	}
	id, ok := parseMonitorID(args[0])
	if !ok {
		reply(ctx, log, b, chatID, "The monitor id must be a number, see /monitors.")
		return
	}

	// An empty list clears the exclusions.
	words := splitList(args[1:])
	if err := h.deps.Registry.SetExcludeKeywords(ctx, tenantID, id, words); err != nil {
		replyRegistryError(ctx, log, b, chatID, err)
		return
	}

	if len(words) == 0 {
		reply(ctx, log, b, chatID, fmt.Sprintf("Monitor #%d exclusions cleared.", id))
		return
	}
	reply(ctx, log, b, chatID, fmt.Sprintf("Monitor #%d exclusions: %s", id, strings.Join(words, ", ")))
}

// NewResumeHandler returns a handler for the /resume command.
func NewResumeHandler(deps HandlerDeps) bot.HandlerFunc {
	return resumeHandler{deps}.Handle
}

type resumeHandler struct {
	deps HandlerDeps
}

func (h resumeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "resume")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /resume <id>")
		return
	}
	id, ok := parseMonitorID(args[0])
	if !ok {
		reply(ctx, log, b, chatID, "The monitor id must be a number, see /monitors.")
		return
	}

	if err := h.deps.Registry.SetStatusActive(ctx, tenantID, id); err != nil {
		replyRegistryError(ctx, log, b, chatID, err)
		return
	}

	mon, err := h.deps.Registry.Get(ctx, tenantID, id)
	if err != nil {
		reply(ctx, log, b, chatID, fmt.Sprintf("Monitor #%d is running.", id))
		return
	}

	text := fmt.Sprintf("▶️ Monitor #%d is running. Daily cost: %s ₽.", id, mon.DailyPrice.StringFixed(2))
	if !h.deps.Sessions.IsAuthenticated(tenantID) {
		text += " Connect your account with /login to start receiving matches."
	}
	reply(ctx, log, b, chatID, text)
}

// NewPauseHandler returns a handler for the /pause command.
func NewPauseHandler(deps HandlerDeps) bot.HandlerFunc {
	return pauseHandler{deps}.Handle
}

type pauseHandler struct {
	deps HandlerDeps
}

func (h pauseHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "pause")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /pause <id>")
		return
	}
	id, ok := parseMonitorID(args[0])
	if !ok {
		reply(ctx, log, b, chatID, "The monitor id must be a number, see /monitors.")
		return
	}

	if err := h.deps.Registry.SetStatusPaused(ctx, tenantID, id); err != nil {
		replyRegistryError(ctx, log, b, chatID, err)
		return
	}
	reply(ctx, log, b, chatID, fmt.Sprintf("⏸ Monitor #%d paused.", id))
}

// NewDeleteHandler returns a handler for the /delete command.
func NewDeleteHandler(deps HandlerDeps) bot.HandlerFunc {
	return deleteHandler{deps}.Handle
}

type deleteHandler struct {
	deps HandlerDeps
}

func (h deleteHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "delete")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /delete <id>")
		return
	}
	id, ok := parseMonitorID(args[0])
	if !ok {
		reply(ctx, log, b, chatID, "The monitor id must be a number, see /monitors.")
		return
	}

	if err := h.deps.Registry.Delete(ctx, tenantID, id); err != nil {
		replyRegistryError(ctx, log, b, chatID, err)
		return
	}
	reply(ctx, log, b, chatID, fmt.Sprintf("Monitor #%d deleted.", id))
}

// replyRegistryError maps registry errors to user-facing messages.
func replyRegistryError(ctx context.Context, log *slog.Logger, b *bot.Bot, chatID int64, err error) {
	switch {
	case errors.Is(err, registry.ErrMonitorNotFound):
		reply(ctx, log, b, chatID, "No monitor with that id, see /monitors.")
	case errors.Is(err, registry.ErrMonitorActive):
		reply(ctx, log, b, chatID, "Pause the monitor first with /pause.")
	case errors.Is(err, registry.ErrNoChats):
		reply(ctx, log, b, chatID, "Set the chats first with /setchats.")
	case errors.Is(err, registry.ErrNoKeywords):
		reply(ctx, log, b, chatID, "Set the keywords first with /setwords.")
	case errors.Is(err, registry.ErrChatLimitExceeded):
		reply(ctx, log, b, chatID, "That is more chats than your plan allows.")
	default:
		log.ErrorContext(ctx, "Monitor command failed", "error", err)
		reply(ctx, log, b, chatID, "Something went wrong, please try again.")
	}
}
