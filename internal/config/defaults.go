package config

import "time"

// Default values for configuration.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultDBPath = "keywatch.db"

	// Pricing defaults mirror the production plan: a monthly base rate
	// prorated over 30 days, five chats included, each extra chat billed
	// monthly on top.
	DefaultBaseMonthlyRate      = 1490.00
	DefaultExtraChatMonthlyRate = 490.00
	DefaultFreeChatAllowance    = 5
	DefaultChatLimit            = 5
	DefaultMinTopUp             = 300.00

	DefaultPrimaryLanguage = "russian"

	DefaultPaymentsPollEvery = 5 * time.Second
	DefaultPaymentsPollLimit = 60

	DefaultMetricsAddr = ":9090"

	// The billing cycle runs daily at a fixed wall-clock point.
	DefaultBillingSchedule = "0 0 3 * * *"
	// The subscription sweep backs up the on-demand evaluation at entry
	// points.
	DefaultSubscriptionSchedule = "0 0 9 * * *"
)
