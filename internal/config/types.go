// Package config manages application configuration from environment
// variables, config files, and default values.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration marks configuration loading or validation failures.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration. Values can be set via
// environment variables prefixed with BOT_ (e.g. BOT_TELEGRAM_TOKEN) or
// through config.yaml.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Session   SessionConfig   `mapstructure:"session"`
	Payments  PaymentsConfig  `mapstructure:"payments"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// TelegramConfig holds bot tokens. AlertToken is the optional dedicated
// notification bot; match alerts fall back to the primary bot without it.
type TelegramConfig struct {
	Token      string `mapstructure:"token" validate:"required"`
	AlertToken string `mapstructure:"alert_token"`
}

// DatabaseConfig holds the SQLite path for the tenant document store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// PricingConfig defines the proration model: a base monthly plan rate plus a
// per-extra-chat monthly rate, both converted to daily debits.
type PricingConfig struct {
	BaseMonthlyRate      float64 `mapstructure:"base_monthly_rate"       validate:"gt=0"`
	ExtraChatMonthlyRate float64 `mapstructure:"extra_chat_monthly_rate" validate:"gte=0"`
	FreeChatAllowance    int     `mapstructure:"free_chat_allowance"     validate:"gte=0"`
	DefaultChatLimit     int     `mapstructure:"default_chat_limit"      validate:"gt=0"`
	MinTopUp             float64 `mapstructure:"min_top_up"              validate:"gte=0"`
}

// SessionConfig controls the per-tenant connection sessions.
type SessionConfig struct {
	// PrimaryLanguage selects the stemmer for tokens in the primary
	// alphabet (snowball language name).
	PrimaryLanguage string `mapstructure:"primary_language" validate:"required"`
}

// PaymentsConfig configures the external payment gateway.
type PaymentsConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	ShopID    string        `mapstructure:"shop_id"`
	SecretKey string        `mapstructure:"secret_key"`
	ReturnURL string        `mapstructure:"return_url"`
	PollEvery time.Duration `mapstructure:"poll_every" validate:"min=1s"`
	PollLimit int           `mapstructure:"poll_limit" validate:"gt=0"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}
