// Package metering computes per-monitor and per-tenant daily costs, runs the
// scheduled billing cycle with its insolvency cascade, and manages the
// subscription reminder lifecycle.
package metering

import (
	"github.com/shopspring/decimal"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/database"
)

// daysInMonth converts monthly plan rates into daily debits.
const daysInMonth = 30

// Pricing is the proration model: a base monthly plan rate plus a monthly
// rate for every chat beyond the free allowance, both divided over the
// month. All amounts round to cents, half away from zero.
type Pricing struct {
	BaseMonthly      decimal.Decimal
	ExtraChatMonthly decimal.Decimal
	FreeChats        int
}

// NewPricing builds the pricing model from configuration.
func NewPricing(cfg config.PricingConfig) Pricing {
	return Pricing{
		BaseMonthly:      decimal.NewFromFloat(cfg.BaseMonthlyRate),
		ExtraChatMonthly: decimal.NewFromFloat(cfg.ExtraChatMonthlyRate),
		FreeChats:        cfg.FreeChatAllowance,
	}
}

// DailyCost returns the monitor's daily debit. Deterministic and
// monotonically non-decreasing in chat count.
func (p Pricing) DailyCost(m *database.Monitor) decimal.Decimal {
	days := decimal.NewFromInt(daysInMonth)
	cost := p.BaseMonthly.Div(days)

	extras := len(m.Chats) - p.FreeChats
	if extras > 0 {
		cost = cost.Add(decimal.NewFromInt(int64(extras)).Mul(p.ExtraChatMonthly.Div(days)))
	}
	return cost.Round(2)
}

// TenantDailyCost sums the daily cost of exactly the tenant's active
// monitors, preferring the cached per-monitor price when present.
func (p Pricing) TenantDailyCost(t *database.Tenant) decimal.Decimal {
	total := decimal.Zero
	for _, m := range t.Monitors {
		if m.Status != database.StatusActive {
			continue
		}
		price := m.DailyPrice
		if price.IsZero() {
			price = p.DailyCost(m)
		}
		total = total.Add(price)
	}
	return total.Round(2)
}
