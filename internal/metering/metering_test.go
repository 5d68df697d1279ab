package metering

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keywatch/keywatch/internal/chatsource"
	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/metrics"
)

func testPricing() Pricing {
	return NewPricing(config.PricingConfig{
		BaseMonthlyRate:      1490.00,
		ExtraChatMonthlyRate: 490.00,
		FreeChatAllowance:    5,
	})
}

type fakeNotifier struct {
	notices   []string
	documents []string
}

func (f *fakeNotifier) Notify(_ context.Context, _ int64, text string) {
	f.notices = append(f.notices, text)
}

func (f *fakeNotifier) NotifyMatch(_ context.Context, _ int64, text string) {
	f.notices = append(f.notices, text)
}

func (f *fakeNotifier) NotifyDocument(_ context.Context, _ int64, filename string, _ []byte, _ string) {
	f.documents = append(f.documents, filename)
}

type fakePauser struct {
	store  database.Store
	paused []int
	err    error
}

func (f *fakePauser) SetStatusPaused(ctx context.Context, tenantID int64, monitorID int) error {
	if f.err != nil {
		return f.err
	}
	f.paused = append(f.paused, monitorID)
	return f.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		if m := t.Monitor(monitorID); m != nil {
			m.Status = database.StatusPaused
		}
		return nil
	})
}

func testEngine(store database.Store) (*Engine, *fakeNotifier, *fakePauser) {
	notifier := &fakeNotifier{}
	pauser := &fakePauser{store: store}
	engine := NewEngine(slog.Default(), store, testPricing(), notifier, pauser, metrics.New())
	return engine, notifier, pauser
}

func chats(n int) []chatsource.ChatID {
	out := make([]chatsource.ChatID, n)
	for i := range out {
		out[i] = chatsource.ChatID(-100 - i)
	}
	return out
}

func TestDailyCost(t *testing.T) {
	t.Parallel()

	pricing := testPricing()

	tests := []struct {
		name  string
		chats int
		want  string
	}{
		{"no chats", 0, "49.67"},
		{"within allowance", 5, "49.67"},
		{"one extra chat", 6, "66"},
		{"two extra chats", 7, "82.33"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := &database.Monitor{Chats: chats(tt.chats)}
			if got := pricing.DailyCost(m).String(); got != tt.want {
				t.Errorf("DailyCost(%d chats) = %s, want %s", tt.chats, got, tt.want)
			}
		})
	}
}

func TestTenantDailyCostSkipsPaused(t *testing.T) {
	t.Parallel()

	pricing := testPricing()
	tenant := &database.Tenant{
		Monitors: []*database.Monitor{
			{ID: 1, Status: database.StatusActive, DailyPrice: decimal.RequireFromString("49.67")},
			{ID: 2, Status: database.StatusPaused, DailyPrice: decimal.RequireFromString("82.33")},
			{ID: 3, Status: database.StatusActive, Chats: chats(5)},
		},
	}

	if got := pricing.TenantDailyCost(tenant).String(); got != "99.34" {
		t.Errorf("TenantDailyCost = %s, want 99.34", got)
	}
}

func TestBillTenantDebits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := database.NewMemStore()
	engine, notifier, pauser := testEngine(store)

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.Balance = decimal.RequireFromString("100.00")
		tn.Monitors = []*database.Monitor{{
			ID:         1,
			Status:     database.StatusActive,
			Chats:      chats(5),
			DailyPrice: decimal.RequireFromString("49.67"),
		}}
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	if err := engine.BillTenant(ctx, 1); err != nil {
		t.Fatalf("BillTenant: %v", err)
	}

	tenant, err := store.GetTenant(ctx, 1)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got := tenant.Balance.String(); got != "50.33" {
		t.Errorf("balance after debit = %s, want 50.33", got)
	}
	if len(pauser.paused) != 0 {
		t.Errorf("paused %v monitors, want none", pauser.paused)
	}
	if len(notifier.notices) != 0 {
		t.Errorf("sent %d notices, want none", len(notifier.notices))
	}
}

func TestBillTenantInsolvencyPausesAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := database.NewMemStore()
	engine, notifier, pauser := testEngine(store)

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.Balance = decimal.RequireFromString("50.33")
		tn.Monitors = []*database.Monitor{
			{ID: 1, Status: database.StatusActive, Chats: chats(5), DailyPrice: decimal.RequireFromString("49.67")},
			{ID: 2, Status: database.StatusActive, Chats: chats(1), DailyPrice: decimal.RequireFromString("10.33")},
			{ID: 3, Status: database.StatusPaused, Chats: chats(1), DailyPrice: decimal.RequireFromString("49.67")},
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	if err := engine.BillTenant(ctx, 1); err != nil {
		t.Fatalf("BillTenant: %v", err)
	}

	tenant, err := store.GetTenant(ctx, 1)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got := tenant.Balance.String(); got != "50.33" {
		t.Errorf("balance after insolvency = %s, want unchanged 50.33", got)
	}
	if len(pauser.paused) != 2 {
		t.Fatalf("paused %v, want monitors 1 and 2", pauser.paused)
	}
	for _, m := range tenant.Monitors {
		if m.Status != database.StatusPaused {
			t.Errorf("monitor %d status = %s, want paused", m.ID, m.Status)
		}
	}
	if len(notifier.notices) != 1 {
		t.Errorf("sent %d notices, want exactly 1", len(notifier.notices))
	}
}

func TestBillTenantNoNoticeWhenPausesFail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := database.NewMemStore()
	engine, notifier, pauser := testEngine(store)
	pauser.err = errors.New("session manager unavailable")

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.Balance = decimal.RequireFromString("10.00")
		tn.Monitors = []*database.Monitor{
			{ID: 1, Status: database.StatusActive, Chats: chats(5), DailyPrice: decimal.RequireFromString("49.67")},
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	if err := engine.BillTenant(ctx, 1); err != nil {
		t.Fatalf("BillTenant: %v", err)
	}

	// The notice claims every monitor is paused; nothing was, so it must
	// wait for a cycle where at least one pause lands.
	if len(notifier.notices) != 0 {
		t.Errorf("sent %d notices with every pause failing, want 0", len(notifier.notices))
	}

	pauser.err = nil
	if err := engine.BillTenant(ctx, 1); err != nil {
		t.Fatalf("BillTenant retry: %v", err)
	}
	if len(pauser.paused) != 1 {
		t.Fatalf("paused %v on retry, want monitor 1", pauser.paused)
	}
	if len(notifier.notices) != 1 {
		t.Errorf("sent %d notices after a successful pause, want 1", len(notifier.notices))
	}
}

func TestBillTenantNothingActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := database.NewMemStore()
	engine, notifier, pauser := testEngine(store)

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.Balance = decimal.RequireFromString("10.00")
		tn.Monitors = []*database.Monitor{
			{ID: 1, Status: database.StatusPaused, Chats: chats(5), DailyPrice: decimal.RequireFromString("49.67")},
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	if err := engine.BillTenant(ctx, 1); err != nil {
		t.Fatalf("BillTenant: %v", err)
	}

	tenant, _ := store.GetTenant(ctx, 1)
	if got := tenant.Balance.String(); got != "10" {
		t.Errorf("balance = %s, want untouched 10", got)
	}
	if len(pauser.paused) != 0 || len(notifier.notices) != 0 {
		t.Errorf("idle tenant triggered pauses %v or notices %v", pauser.paused, notifier.notices)
	}
}

func TestSweepTenantReminders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := database.NewMemStore()
	engine, notifier, _ := testEngine(store)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.SubscriptionExpiry = now.Add(3*24*time.Hour + time.Hour).Unix()
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	if err := engine.SweepTenant(ctx, 1); err != nil {
		t.Fatalf("SweepTenant: %v", err)
	}
	if len(notifier.notices) != 1 {
		t.Fatalf("sent %d notices, want 1 three-day reminder", len(notifier.notices))
	}

	// Same day again: the flag makes the reminder one-shot.
	if err := engine.SweepTenant(ctx, 1); err != nil {
		t.Fatalf("SweepTenant: %v", err)
	}
	if len(notifier.notices) != 1 {
		t.Fatalf("reminder repeated, %d notices", len(notifier.notices))
	}

	// Two days later the one-day reminder fires once.
	now = now.Add(2 * 24 * time.Hour)
	for range 2 {
		if err := engine.SweepTenant(ctx, 1); err != nil {
			t.Fatalf("SweepTenant: %v", err)
		}
	}
	if len(notifier.notices) != 2 {
		t.Fatalf("sent %d notices, want 2", len(notifier.notices))
	}
}

func TestSweepTenantRecurringSkipsReminders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := database.NewMemStore()
	engine, notifier, _ := testEngine(store)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.Recurring = true
		tn.SubscriptionExpiry = now.Add(3*24*time.Hour + time.Hour).Unix()
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	if err := engine.SweepTenant(ctx, 1); err != nil {
		t.Fatalf("SweepTenant: %v", err)
	}
	if len(notifier.notices) != 0 {
		t.Errorf("recurring tenant got %d reminders", len(notifier.notices))
	}
}

func TestSweepTenantExpiredShipsArchive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := database.NewMemStore()
	engine, notifier, _ := testEngine(store)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.SubscriptionExpiry = now.Add(-time.Hour).Unix()
		tn.Monitors = []*database.Monitor{{
			ID:     1,
			Status: database.StatusPaused,
			Results: []database.Result{
				{Keyword: "rent", Chat: "flats", Text: "rent available"},
			},
		}}
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	for range 2 {
		if err := engine.SweepTenant(ctx, 1); err != nil {
			t.Fatalf("SweepTenant: %v", err)
		}
	}

	if len(notifier.documents) != 1 {
		t.Errorf("shipped %d archives, want exactly 1", len(notifier.documents))
	}
	if len(notifier.notices) != 1 {
		t.Errorf("sent %d expiry notices, want exactly 1", len(notifier.notices))
	}
}

func TestPredictExhaustion(t *testing.T) {
	t.Parallel()

	store := database.NewMemStore()
	engine, _, _ := testEngine(store)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	t.Run("future expiry wins", func(t *testing.T) {
		tenant := &database.Tenant{
			SubscriptionExpiry: now.Add(10*24*time.Hour + time.Hour).Unix(),
			Balance:            decimal.RequireFromString("1000.00"),
		}
		when, days, ok := engine.PredictExhaustion(tenant)
		if !ok {
			t.Fatal("PredictExhaustion = unknown, want expiry date")
		}
		if days != 10 {
			t.Errorf("days = %d, want 10", days)
		}
		if when.Unix() != tenant.SubscriptionExpiry {
			t.Errorf("when = %v, want expiry instant", when)
		}
	})

	t.Run("balance over daily cost", func(t *testing.T) {
		tenant := &database.Tenant{
			Balance: decimal.RequireFromString("100.00"),
			Monitors: []*database.Monitor{{
				ID:         1,
				Status:     database.StatusActive,
				Chats:      chats(5),
				DailyPrice: decimal.RequireFromString("49.67"),
			}},
		}
		when, days, ok := engine.PredictExhaustion(tenant)
		if !ok {
			t.Fatal("PredictExhaustion = unknown, want balance-derived date")
		}
		if days != 2 {
			t.Errorf("days = %d, want 2", days)
		}
		if want := now.Add(48 * time.Hour); !when.Equal(want) {
			t.Errorf("when = %v, want %v", when, want)
		}
	})

	t.Run("nothing active", func(t *testing.T) {
		tenant := &database.Tenant{Balance: decimal.RequireFromString("100.00")}
		if _, _, ok := engine.PredictExhaustion(tenant); ok {
			t.Error("PredictExhaustion = known, want unknown with no active monitors")
		}
	})

	t.Run("empty balance", func(t *testing.T) {
		tenant := &database.Tenant{
			Monitors: []*database.Monitor{{
				ID:         1,
				Status:     database.StatusActive,
				DailyPrice: decimal.RequireFromString("49.67"),
			}},
		}
		if _, _, ok := engine.PredictExhaustion(tenant); ok {
			t.Error("PredictExhaustion = known, want unknown with zero balance")
		}
	})
}
