package metering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/export"
)

const secondsPerDay = 86400

// SweepAll evaluates the subscription state of every known tenant. One
// tenant failing does not stop the sweep.
func (e *Engine) SweepAll(ctx context.Context) error {
	ids, err := e.store.AllTenantIDs(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.SweepTenant(ctx, id); err != nil {
			e.logger.Error("subscription sweep failed", "tenant_id", id, "error", err)
		}
	}
	return nil
}

// SweepTenant sends at most one subscription notice for the tenant: an
// expiry archive when the subscription has lapsed, or a 3-day or 1-day
// reminder for non-recurring subscriptions. Each notice is one-shot,
// guarded by a persisted flag, and the flag is only recorded after the
// notice went out. If persisting the flag fails the notice may repeat on
// the next sweep rather than be lost.
func (e *Engine) SweepTenant(ctx context.Context, tenantID int64) error {
	tenant, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, database.ErrTenantNotFound) {
			return nil
		}
		return err
	}
	if tenant.SubscriptionExpiry == 0 {
		return nil
	}

	daysLeft := floorDiv(tenant.SubscriptionExpiry-e.now().Unix(), secondsPerDay)

	if daysLeft <= 0 {
		if tenant.InactiveNotified {
			return nil
		}
		return e.notifyExpired(ctx, tenant)
	}

	if tenant.Recurring {
		return nil
	}

	switch {
	case daysLeft == 3 && !tenant.Reminder3Sent:
		e.notifier.Notify(ctx, tenantID,
			"⏳ Your subscription expires in 3 days. Renew it to keep your monitors running.")
		return e.setFlag(ctx, tenantID, func(t *database.Tenant) { t.Reminder3Sent = true })
	case daysLeft == 1 && !tenant.Reminder1Sent:
		e.notifier.Notify(ctx, tenantID,
			"⏳ Your subscription expires tomorrow. Renew it to keep your monitors running.")
		return e.setFlag(ctx, tenantID, func(t *database.Tenant) { t.Reminder1Sent = true })
	}
	return nil
}

// notifyExpired ships the tenant's accumulated results as a CSV archive,
// sends the expiry notice, and records the one-shot flag.
func (e *Engine) notifyExpired(ctx context.Context, tenant *database.Tenant) error {
	csv, err := export.WriteCSV(export.TenantResults(tenant))
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}

	name := fmt.Sprintf("results_%d.csv", tenant.ID)
	e.notifier.NotifyDocument(ctx, tenant.ID, name, csv,
		"Your subscription has expired. Here is everything your monitors collected.")
	e.notifier.Notify(ctx, tenant.ID,
		"❌ Your subscription has expired and your monitors are no longer running. "+
			"Renew your subscription to start them again.")

	e.logger.Info("subscription expired", "tenant_id", tenant.ID)
	return e.setFlag(ctx, tenant.ID, func(t *database.Tenant) { t.InactiveNotified = true })
}

func (e *Engine) setFlag(ctx context.Context, tenantID int64, set func(*database.Tenant)) error {
	return e.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		set(t)
		return nil
	})
}

// TenantDailyCost reports what the next billing cycle will try to debit.
func (e *Engine) TenantDailyCost(tenant *database.Tenant) decimal.Decimal {
	return e.pricing.TenantDailyCost(tenant)
}

// PredictExhaustion reports when the tenant's service will stop. A future
// subscription expiry wins; otherwise the date is derived from how many
// whole days the balance covers at the current daily cost. The boolean is
// false when no date can be determined, which happens when nothing is
// active or the balance is already gone.
func (e *Engine) PredictExhaustion(tenant *database.Tenant) (time.Time, int64, bool) {
	now := e.now()

	if tenant.SubscriptionExpiry > now.Unix() {
		days := floorDiv(tenant.SubscriptionExpiry-now.Unix(), secondsPerDay)
		return time.Unix(tenant.SubscriptionExpiry, 0).UTC(), days, true
	}

	cost := e.pricing.TenantDailyCost(tenant)
	if !cost.IsPositive() || !tenant.Balance.IsPositive() {
		return time.Time{}, 0, false
	}

	days := tenant.Balance.Div(cost).IntPart()
	return now.Add(time.Duration(days) * 24 * time.Hour).UTC(), days, true
}

// floorDiv divides rounding toward negative infinity, so a deadline in the
// past yields a negative day count instead of truncating toward zero.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
