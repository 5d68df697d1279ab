package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/export"
)

// NewExportHandler returns a handler for the /export command. It ships the
// stored results of one monitor, or of all monitors, as a CSV document.
func NewExportHandler(deps HandlerDeps) bot.HandlerFunc {
	return exportHandler{deps}.Handle
}

type exportHandler struct {
	deps HandlerDeps
}

func (h exportHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "export")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /export <id|all>")
		return
	}

	tenant, err := h.deps.Store.GetOrCreateTenant(ctx, tenantID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load tenant", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Something went wrong, please try again.")
		return
	}

	var (
		csv      []byte
		filename string
	)
	if args[0] == "all" {
		csv, err = export.WriteCSV(export.TenantResults(tenant))
		filename = "results_all.csv"
	} else {
		id, ok := parseMonitorID(args[0])
		if !ok {
			reply(ctx, log, b, chatID, "Usage: /export <id|all>")
			return
		}
		mon := tenant.Monitor(id)
		if mon == nil {
			reply(ctx, log, b, chatID, "No monitor with that id, see /monitors.")
			return
		}
		if len(mon.Results) == 0 {
			reply(ctx, log, b, chatID, fmt.Sprintf("Monitor #%d has no results yet.", id))
			return
		}
		csv, err = export.WriteCSV(export.MonitorResults(mon))
		filename = fmt.Sprintf("results_%d.csv", id)
	}
	if err != nil {
		log.ErrorContext(ctx, "Failed to export results", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Could not build the export, please try again.")
		return
	}

	_, err = b.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filename, Data: bytes.NewReader(csv)},
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send export document", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Could not send the export, please try again.")
		return
	}
	log.InfoContext(ctx, "Results exported", "tenant_id", tenantID, "file", filename)
}

// NewClearResultsHandler returns a handler for the /clearresults command.
func NewClearResultsHandler(deps HandlerDeps) bot.HandlerFunc {
	return clearResultsHandler{deps}.Handle
}

type clearResultsHandler struct {
	deps HandlerDeps
}

func (h clearResultsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "clearresults")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /clearresults <id|all>")
		return
	}

	if args[0] == "all" {
		if err := export.ClearTenant(ctx, h.deps.Store, tenantID); err != nil {
			log.ErrorContext(ctx, "Failed to clear results", "error", err, "tenant_id", tenantID)
			reply(ctx, log, b, chatID, "Something went wrong, please try again.")
			return
		}
		reply(ctx, log, b, chatID, "All stored results cleared.")
		return
	}

	id, ok := parseMonitorID(args[0])
	if !ok {
		reply(ctx, log, b, chatID, "Usage: /clearresults <id|all>")
		return
	}

	err := export.ClearMonitor(ctx, h.deps.Store, tenantID, id)
	switch {
	case err == nil:
		reply(ctx, log, b, chatID, fmt.Sprintf("Monitor #%d results cleared.", id))
	case errors.Is(err, database.ErrMonitorNotFound):
		reply(ctx, log, b, chatID, "No monitor with that id, see /monitors.")
	default:
		log.ErrorContext(ctx, "Failed to clear results", "error", err, "tenant_id", tenantID, "monitor_id", id)
		reply(ctx, log, b, chatID, "Something went wrong, please try again.")
	}
}
