package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load loads and validates configuration from:
// 1. Default values
// 2. the config file at path (optional)
// 3. BOT_* environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: failed to read config file: %v", ErrConfiguration, err)
		}
		// Config file not found is okay, we'll use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	// Registered so the BOT_* environment overlay can supply them.
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.alert_token", "")
	v.SetDefault("payments.base_url", "")
	v.SetDefault("payments.shop_id", "")
	v.SetDefault("payments.secret_key", "")
	v.SetDefault("payments.return_url", "")

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("pricing.base_monthly_rate", DefaultBaseMonthlyRate)
	v.SetDefault("pricing.extra_chat_monthly_rate", DefaultExtraChatMonthlyRate)
	v.SetDefault("pricing.free_chat_allowance", DefaultFreeChatAllowance)
	v.SetDefault("pricing.default_chat_limit", DefaultChatLimit)
	v.SetDefault("pricing.min_top_up", DefaultMinTopUp)

	v.SetDefault("session.primary_language", DefaultPrimaryLanguage)

	v.SetDefault("payments.poll_every", DefaultPaymentsPollEvery)
	v.SetDefault("payments.poll_limit", DefaultPaymentsPollLimit)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)

	v.SetDefault("scheduler.tasks.daily_billing.enabled", true)
	v.SetDefault("scheduler.tasks.daily_billing.schedule", DefaultBillingSchedule)
	v.SetDefault("scheduler.tasks.subscription_sweep.enabled", true)
	v.SetDefault("scheduler.tasks.subscription_sweep.schedule", DefaultSubscriptionSchedule)
}
