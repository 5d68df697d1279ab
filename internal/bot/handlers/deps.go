// Package handlers contains Telegram bot command handlers, along with their
// registration logic and middleware.
package handlers

import (
	"log/slog"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/metering"
	"github.com/keywatch/keywatch/internal/notify"
	"github.com/keywatch/keywatch/internal/payment"
	"github.com/keywatch/keywatch/internal/registry"
	"github.com/keywatch/keywatch/internal/session"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    database.Store
	Sessions *session.Manager
	Registry *registry.Registry
	Metering *metering.Engine
	Payments *payment.Service
	Notifier notify.Notifier
}
