package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
)

// reply sends a plain text message and logs delivery failures.
func reply(ctx context.Context, log *slog.Logger, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
	}
}

// commandArgs returns the whitespace-separated arguments after the command
// itself.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// parseMonitorID parses a numeric monitor identifier argument.
func parseMonitorID(arg string) (int, bool) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// splitList splits a comma-separated argument tail into trimmed non-empty
// items.
func splitList(args []string) []string {
	joined := strings.Join(args, " ")
	parts := strings.Split(joined, ",")

	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}
