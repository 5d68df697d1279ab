// Package registry owns the monitor lifecycle: creation, activation,
// pausing, edits, and deletion. Every mutation runs a whole tenant record
// through the store so concurrent commands cannot interleave partial
// monitor state, and every transition keeps the live session attachment in
// step with the persisted status.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keywatch/keywatch/internal/chatsource"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/metering"
	"github.com/keywatch/keywatch/internal/session"
)

var (
	// ErrMonitorNotFound is returned when the tenant has no monitor with
	// the given identifier.
	ErrMonitorNotFound = database.ErrMonitorNotFound

	// ErrMonitorActive is returned by Delete for monitors that have not
	// been paused first.
	ErrMonitorActive = errors.New("monitor must be paused before deletion")

	// ErrNoChats rejects activation of a monitor with an empty chat list.
	ErrNoChats = errors.New("monitor has no chats")

	// ErrNoKeywords rejects activation of a monitor with an empty keyword
	// list.
	ErrNoKeywords = errors.New("monitor has no keywords")

	// ErrChatLimitExceeded rejects chat lists larger than the tenant's
	// allowance.
	ErrChatLimitExceeded = errors.New("chat limit exceeded")
)

// Registry coordinates the tenant store, the session manager, and the
// pricing model.
type Registry struct {
	logger   *slog.Logger
	store    database.Store
	sessions *session.Manager
	pricing  metering.Pricing
}

// New creates a monitor registry.
func New(logger *slog.Logger, store database.Store, sessions *session.Manager, pricing metering.Pricing) *Registry {
	return &Registry{
		logger:   logger.With("component", "registry"),
		store:    store,
		sessions: sessions,
		pricing:  pricing,
	}
}

// Create adds a new paused monitor with no chats, no keywords, and a zero
// price, and returns a copy of it.
func (r *Registry) Create(ctx context.Context, tenantID int64) (*database.Monitor, error) {
	var created database.Monitor

	err := r.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		m := &database.Monitor{
			ID:     t.NextMonitorID(),
			Status: database.StatusPaused,
		}
		m.Name = fmt.Sprintf("Monitor %d", m.ID)
		t.Monitors = append(t.Monitors, m)
		created = *m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create monitor: %w", err)
	}

	r.logger.Info("monitor created", "tenant_id", tenantID, "monitor_id", created.ID)
	return &created, nil
}

// Get returns a copy of the monitor.
func (r *Registry) Get(ctx context.Context, tenantID int64, monitorID int) (*database.Monitor, error) {
	tenant, err := r.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	m := tenant.Monitor(monitorID)
	if m == nil {
		return nil, ErrMonitorNotFound
	}
	cp := *m
	return &cp, nil
}

// SetStatusActive transitions a monitor to active. Monitors with no chats
// or no keywords are rejected. The daily price is recomputed from the
// current chat count before the record is persisted, and the monitor is
// attached to the tenant's session when one is established.
func (r *Registry) SetStatusActive(ctx context.Context, tenantID int64, monitorID int) error {
	var snapshot database.Monitor

	err := r.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		m := t.Monitor(monitorID)
		if m == nil {
			return ErrMonitorNotFound
		}
		if len(m.Chats) == 0 {
			return ErrNoChats
		}
		if len(m.Keywords) == 0 {
			return ErrNoKeywords
		}
		m.Status = database.StatusActive
		m.DailyPrice = r.pricing.DailyCost(m)
		snapshot = *m
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("monitor activated",
		"tenant_id", tenantID,
		"monitor_id", monitorID,
		"daily_price", snapshot.DailyPrice.String())

	if r.sessions.IsAuthenticated(tenantID) {
		if err := r.sessions.Attach(ctx, tenantID, &snapshot); err != nil {
			return fmt.Errorf("attach monitor %d: %w", monitorID, err)
		}
	}
	return nil
}

// SetStatusPaused transitions a monitor to paused, detaching its listener
// before the new status is persisted.
func (r *Registry) SetStatusPaused(ctx context.Context, tenantID int64, monitorID int) error {
	r.sessions.Detach(tenantID, monitorID)

	err := r.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		m := t.Monitor(monitorID)
		if m == nil {
			return ErrMonitorNotFound
		}
		m.Status = database.StatusPaused
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("monitor paused", "tenant_id", tenantID, "monitor_id", monitorID)
	return nil
}

// Rename sets the monitor's display name.
func (r *Registry) Rename(ctx context.Context, tenantID int64, monitorID int, name string) error {
	return r.edit(ctx, tenantID, monitorID, func(t *database.Tenant, m *database.Monitor) error {
		m.Name = name
		return nil
	})
}

// SetChats replaces the monitor's chat list. Lists exceeding the tenant's
// chat limit are rejected before any mutation happens.
func (r *Registry) SetChats(ctx context.Context, tenantID int64, monitorID int, chats []chatsource.ChatID) error {
	return r.edit(ctx, tenantID, monitorID, func(t *database.Tenant, m *database.Monitor) error {
		if len(chats) > t.ChatLimit {
			return fmt.Errorf("%w: %d chats, limit %d", ErrChatLimitExceeded, len(chats), t.ChatLimit)
		}
		m.Chats = append([]chatsource.ChatID(nil), chats...)
		return nil
	})
}

// SetKeywords replaces the monitor's include keyword list.
func (r *Registry) SetKeywords(ctx context.Context, tenantID int64, monitorID int, keywords []string) error {
	return r.edit(ctx, tenantID, monitorID, func(t *database.Tenant, m *database.Monitor) error {
		m.Keywords = append([]string(nil), keywords...)
		return nil
	})
}

// SetExcludeKeywords replaces the monitor's exclusion keyword list.
func (r *Registry) SetExcludeKeywords(ctx context.Context, tenantID int64, monitorID int, keywords []string) error {
	return r.edit(ctx, tenantID, monitorID, func(t *database.Tenant, m *database.Monitor) error {
		m.ExcludeKeywords = append([]string(nil), keywords...)
		return nil
	})
}

// Delete removes a paused monitor from the tenant record. Active monitors
// must be paused first.
func (r *Registry) Delete(ctx context.Context, tenantID int64, monitorID int) error {
	err := r.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		idx := -1
		for i, m := range t.Monitors {
			if m.ID == monitorID {
				if m.Status == database.StatusActive {
					return ErrMonitorActive
				}
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrMonitorNotFound
		}
		t.Monitors = append(t.Monitors[:idx], t.Monitors[idx+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	// A listener should never exist for a paused monitor, but a stale one
	// must not outlive the record. Detaching only after the removal persists
	// keeps a rejected delete free of side effects.
	r.sessions.Detach(tenantID, monitorID)

	r.logger.Info("monitor deleted", "tenant_id", tenantID, "monitor_id", monitorID)
	return nil
}

// edit applies a mutation to the tenant record, recomputes the daily price
// for active monitors, and swaps the live listener for the new definition
// after a successful persist. A failed mutation persists nothing and leaves
// the existing listener untouched.
func (r *Registry) edit(ctx context.Context, tenantID int64, monitorID int, fn func(*database.Tenant, *database.Monitor) error) error {
	var (
		snapshot  database.Monitor
		wasActive bool
	)

	err := r.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		m := t.Monitor(monitorID)
		if m == nil {
			return ErrMonitorNotFound
		}
		if err := fn(t, m); err != nil {
			return err
		}
		if m.Status == database.StatusActive {
			wasActive = true
			m.DailyPrice = r.pricing.DailyCost(m)
		}
		snapshot = *m
		return nil
	})
	if err != nil {
		return err
	}

	if wasActive && r.sessions.IsAuthenticated(tenantID) {
		r.sessions.Detach(tenantID, monitorID)
		if err := r.sessions.Attach(ctx, tenantID, &snapshot); err != nil {
			return fmt.Errorf("reattach monitor %d: %w", monitorID, err)
		}
	}
	return nil
}
