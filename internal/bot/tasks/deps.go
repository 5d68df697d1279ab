// Package tasks implements the scheduled jobs: the daily billing cycle and
// the subscription sweep.
package tasks

import (
	"log/slog"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/metering"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Metering *metering.Engine
	Config   *config.Config
}
