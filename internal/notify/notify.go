// Package notify delivers best-effort outbound notifications to tenants.
// Delivery failures (blocked bot, never-started chat) are logged and
// swallowed; they must never propagate into the registry or the metering
// engine.
package notify

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/keywatch/keywatch/internal/metrics"
)

// Notifier is the outbound notification channel.
type Notifier interface {
	// Notify sends a service notice (billing, reminders). Best-effort.
	Notify(ctx context.Context, tenantID int64, text string)

	// NotifyMatch sends a keyword match alert. Best-effort.
	NotifyMatch(ctx context.Context, tenantID int64, text string)

	// NotifyDocument sends a file attachment with a caption. Best-effort.
	NotifyDocument(ctx context.Context, tenantID int64, filename string, data []byte, caption string)
}

// TelegramNotifier sends notifications through Telegram. Match alerts go
// through the dedicated alert bot when configured; when that delivery fails
// the tenant gets a hint on the primary bot to start the alert bot first.
type TelegramNotifier struct {
	primary *bot.Bot
	alert   *bot.Bot
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewTelegramNotifier builds a notifier over the primary bot and an optional
// alert bot (nil disables the dedicated channel).
func NewTelegramNotifier(primary, alert *bot.Bot, logger *slog.Logger, m *metrics.Metrics) *TelegramNotifier {
	return &TelegramNotifier{
		primary: primary,
		alert:   alert,
		logger:  logger.With("component", "notifier"),
		metrics: m,
	}
}

func (n *TelegramNotifier) send(ctx context.Context, b *bot.Bot, tenantID int64, text string) bool {
	if b == nil {
		return false
	}
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: tenantID, Text: text})
	if err != nil {
		n.logger.WarnContext(ctx, "Failed to send notification", "tenant_id", tenantID, "error", err)
		return false
	}
	return true
}

// Notify sends a service notice through the primary bot.
func (n *TelegramNotifier) Notify(ctx context.Context, tenantID int64, text string) {
	if n.send(ctx, n.primary, tenantID, text) {
		n.metrics.NotificationsSent.Inc()
		return
	}
	n.metrics.NotificationsFailed.Inc()
}

// NotifyMatch sends a match alert through the alert bot. On failure the
// tenant is asked (via the primary bot) to start a chat with the alert bot.
func (n *TelegramNotifier) NotifyMatch(ctx context.Context, tenantID int64, text string) {
	if n.send(ctx, n.alert, tenantID, text) {
		n.metrics.NotificationsSent.Inc()
		return
	}
	n.metrics.NotificationsFailed.Inc()
	n.send(ctx, n.primary, tenantID, "Please start a chat with the alert bot to receive match notifications.")
}

// NotifyDocument sends a document through the primary bot.
func (n *TelegramNotifier) NotifyDocument(ctx context.Context, tenantID int64, filename string, data []byte, caption string) {
	if n.primary == nil {
		return
	}
	_, err := n.primary.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   tenantID,
		Document: &models.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)},
		Caption:  caption,
	})
	if err != nil {
		n.logger.WarnContext(ctx, "Failed to send document", "tenant_id", tenantID, "filename", filename, "error", err)
		n.metrics.NotificationsFailed.Inc()
		return
	}
	n.metrics.NotificationsSent.Inc()
}
