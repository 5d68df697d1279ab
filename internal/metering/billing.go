package metering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/notify"
)

// MonitorPauser pauses a single monitor, detaching any live listener
// before the status change is persisted.
type MonitorPauser interface {
	SetStatusPaused(ctx context.Context, tenantID int64, monitorID int) error
}

// Engine runs the daily billing cycle and the subscription sweep.
type Engine struct {
	logger   *slog.Logger
	store    database.Store
	pricing  Pricing
	notifier notify.Notifier
	pauser   MonitorPauser
	metrics  *metrics.Metrics

	now func() time.Time
}

// NewEngine wires the billing engine.
func NewEngine(logger *slog.Logger, store database.Store, pricing Pricing, notifier notify.Notifier, pauser MonitorPauser, m *metrics.Metrics) *Engine {
	return &Engine{
		logger:   logger.With("component", "metering"),
		store:    store,
		pricing:  pricing,
		notifier: notifier,
		pauser:   pauser,
		metrics:  m,
		now:      time.Now,
	}
}

// RunBillingCycle bills every known tenant exactly once. A failure for one
// tenant is logged and does not stop the cycle.
func (e *Engine) RunBillingCycle(ctx context.Context) error {
	ids, err := e.store.AllTenantIDs(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.BillTenant(ctx, id); err != nil {
			e.logger.Error("billing failed", "tenant_id", id, "error", err)
		}
	}

	e.metrics.BillingCycles.Inc()
	e.logger.Info("billing cycle complete", "tenants", len(ids))
	return nil
}

// BillTenant debits one day's cost from the tenant's balance. The cost is
// computed and the balance checked inside a single record update, so the
// debit is all-or-nothing against the state it was decided on. A tenant
// that cannot cover the full amount is not debited at all; instead every
// active monitor is paused and a single insolvency notice is sent.
func (e *Engine) BillTenant(ctx context.Context, tenantID int64) error {
	var (
		debited   decimal.Decimal
		remaining decimal.Decimal
		pauseIDs  []int
	)

	err := e.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		cost := e.pricing.TenantDailyCost(t)
		if !cost.IsPositive() {
			return nil
		}
		if t.Balance.Cmp(cost) < 0 {
			for _, m := range t.ActiveMonitors() {
				pauseIDs = append(pauseIDs, m.ID)
			}
			return nil
		}
		t.Balance = t.Balance.Sub(cost).Round(2)
		debited = cost
		remaining = t.Balance
		return nil
	})
	if err != nil {
		return err
	}

	if debited.IsPositive() {
		e.metrics.TenantsDebited.Inc()
		e.logger.Info("tenant billed",
			"tenant_id", tenantID,
			"debited", debited.String(),
			"balance", remaining.String())
		return nil
	}

	if len(pauseIDs) == 0 {
		return nil
	}

	paused := 0
	for _, monitorID := range pauseIDs {
		if err := e.pauser.SetStatusPaused(ctx, tenantID, monitorID); err != nil {
			e.logger.Error("insolvency pause failed",
				"tenant_id", tenantID,
				"monitor_id", monitorID,
				"error", err)
			continue
		}
		paused++
	}

	// The notice promises the monitors are paused; if every pause failed
	// the next cycle retries the cascade and sends it then.
	if paused == 0 {
		return nil
	}

	e.metrics.InsolvencyCascades.Inc()
	e.logger.Warn("tenant insolvent, monitors paused",
		"tenant_id", tenantID,
		"monitors", paused)

	e.notifier.Notify(ctx, tenantID,
		"⚠️ Your balance is too low to cover today's monitoring cost. "+
			"All monitors have been paused. Top up your balance and resume them.")
	return nil
}
