package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/keywatch/keywatch/internal/chatsource"
	"github.com/keywatch/keywatch/internal/chatsource/chatsourcetest"
	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/match"
	"github.com/keywatch/keywatch/internal/metering"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/session"
	"github.com/keywatch/keywatch/internal/textnorm"
)

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, int64, string) {}

func (noopNotifier) NotifyMatch(context.Context, int64, string) {}

func (noopNotifier) NotifyDocument(context.Context, int64, string, []byte, string) {}

func testRegistry(t *testing.T) (*Registry, *session.Manager, *chatsourcetest.Connector, *database.MemStore) {
	t.Helper()

	store := database.NewMemStore()
	connector := chatsourcetest.NewConnector()
	engine := match.NewEngine(textnorm.New("russian"))
	sessions := session.NewManager(slog.Default(), store, connector, engine, noopNotifier{}, metrics.New())
	t.Cleanup(sessions.Shutdown)

	pricing := metering.NewPricing(config.PricingConfig{
		BaseMonthlyRate:      1490.00,
		ExtraChatMonthlyRate: 490.00,
		FreeChatAllowance:    5,
	})
	return New(slog.Default(), store, sessions, pricing), sessions, connector, store
}

func authenticate(t *testing.T, store database.Store, sessions *session.Manager, tenantID int64) {
	t.Helper()
	ctx := context.Background()
	err := store.Update(ctx, tenantID, func(tn *database.Tenant) error {
		tn.APIID = 12345
		tn.APIHash = "hash"
		return nil
	})
	if err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
	if err := sessions.Restore(ctx, tenantID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
}

func TestCreateDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _, _, store := testRegistry(t)

	first, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Status != database.StatusPaused {
		t.Errorf("status = %s, want paused", first.Status)
	}
	if len(first.Chats) != 0 || len(first.Keywords) != 0 {
		t.Errorf("new monitor not empty: %+v", first)
	}
	if !first.DailyPrice.IsZero() {
		t.Errorf("daily price = %s, want 0", first.DailyPrice)
	}

	second, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if second.ID == first.ID {
		t.Errorf("monitor IDs collide: %d", second.ID)
	}

	tenant, err := store.GetTenant(ctx, 1)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if len(tenant.Monitors) != 2 {
		t.Errorf("persisted %d monitors, want 2", len(tenant.Monitors))
	}
}

func TestActivationGuards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _, _, _ := testRegistry(t)

	mon, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := reg.SetStatusActive(ctx, 1, mon.ID); !errors.Is(err, ErrNoChats) {
		t.Errorf("activate without chats = %v, want ErrNoChats", err)
	}

	if err := reg.SetChats(ctx, 1, mon.ID, []chatsource.ChatID{-100}); err != nil {
		t.Fatalf("SetChats: %v", err)
	}
	if err := reg.SetStatusActive(ctx, 1, mon.ID); !errors.Is(err, ErrNoKeywords) {
		t.Errorf("activate without keywords = %v, want ErrNoKeywords", err)
	}

	if err := reg.SetStatusActive(ctx, 1, 99); !errors.Is(err, ErrMonitorNotFound) {
		t.Errorf("activate unknown monitor = %v, want ErrMonitorNotFound", err)
	}
}

func TestActivationRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, sessions, connector, store := testRegistry(t)
	authenticate(t, store, sessions, 1)

	mon, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.SetChats(ctx, 1, mon.ID, []chatsource.ChatID{-100, -200}); err != nil {
		t.Fatalf("SetChats: %v", err)
	}
	if err := reg.SetKeywords(ctx, 1, mon.ID, []string{"аренда"}); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}

	if err := reg.SetStatusActive(ctx, 1, mon.ID); err != nil {
		t.Fatalf("SetStatusActive: %v", err)
	}

	got, err := reg.Get(ctx, 1, mon.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != database.StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	if got.DailyPrice.String() != "49.67" {
		t.Errorf("daily price = %s, want 49.67 within the free allowance", got.DailyPrice)
	}
	if n := connector.Latest().ListenerCount(); n != 1 {
		t.Errorf("listener count = %d, want 1 after activation", n)
	}

	if err := reg.SetStatusPaused(ctx, 1, mon.ID); err != nil {
		t.Fatalf("SetStatusPaused: %v", err)
	}
	got, _ = reg.Get(ctx, 1, mon.ID)
	if got.Status != database.StatusPaused {
		t.Errorf("status = %s, want paused", got.Status)
	}
	if n := connector.Latest().ListenerCount(); n != 0 {
		t.Errorf("listener count = %d, want 0 after pause", n)
	}
}

func TestActivationWithoutSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _, _, _ := testRegistry(t)

	mon, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.SetChats(ctx, 1, mon.ID, []chatsource.ChatID{-100}); err != nil {
		t.Fatalf("SetChats: %v", err)
	}
	if err := reg.SetKeywords(ctx, 1, mon.ID, []string{"аренда"}); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}

	// No live session: the status change still persists, attachment waits
	// for the next login.
	if err := reg.SetStatusActive(ctx, 1, mon.ID); err != nil {
		t.Fatalf("SetStatusActive: %v", err)
	}
	got, _ := reg.Get(ctx, 1, mon.ID)
	if got.Status != database.StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
}

func TestSetChatsEnforcesLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _, _, store := testRegistry(t)

	mon, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.SetChats(ctx, 1, mon.ID, []chatsource.ChatID{-1, -2}); err != nil {
		t.Fatalf("SetChats: %v", err)
	}

	over := make([]chatsource.ChatID, database.DefaultChatLimit+1)
	for i := range over {
		over[i] = chatsource.ChatID(-100 - i)
	}
	if err := reg.SetChats(ctx, 1, mon.ID, over); !errors.Is(err, ErrChatLimitExceeded) {
		t.Fatalf("SetChats over limit = %v, want ErrChatLimitExceeded", err)
	}

	// The rejected edit mutated nothing.
	tenant, _ := store.GetTenant(ctx, 1)
	if n := len(tenant.Monitor(mon.ID).Chats); n != 2 {
		t.Errorf("chat list length = %d after rejected edit, want 2", n)
	}
}

func TestEditRepricesAndReattaches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, sessions, connector, store := testRegistry(t)
	authenticate(t, store, sessions, 1)

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.ChatLimit = 10
		return nil
	})
	if err != nil {
		t.Fatalf("raise chat limit: %v", err)
	}

	mon, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.SetChats(ctx, 1, mon.ID, []chatsource.ChatID{-1, -2, -3, -4, -5}); err != nil {
		t.Fatalf("SetChats: %v", err)
	}
	if err := reg.SetKeywords(ctx, 1, mon.ID, []string{"аренда"}); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}
	if err := reg.SetStatusActive(ctx, 1, mon.ID); err != nil {
		t.Fatalf("SetStatusActive: %v", err)
	}

	if err := reg.SetChats(ctx, 1, mon.ID, []chatsource.ChatID{-1, -2, -3, -4, -5, -6, -7}); err != nil {
		t.Fatalf("SetChats while active: %v", err)
	}

	got, err := reg.Get(ctx, 1, mon.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DailyPrice.String() != "82.33" {
		t.Errorf("daily price = %s, want 82.33 with two extra chats", got.DailyPrice)
	}
	if n := connector.Latest().ListenerCount(); n != 1 {
		t.Errorf("listener count = %d, want 1 after edit", n)
	}
}

func TestDeleteRequiresPaused(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _, _, store := testRegistry(t)

	mon, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.SetChats(ctx, 1, mon.ID, []chatsource.ChatID{-100}); err != nil {
		t.Fatalf("SetChats: %v", err)
	}
	if err := reg.SetKeywords(ctx, 1, mon.ID, []string{"аренда"}); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}
	if err := reg.SetStatusActive(ctx, 1, mon.ID); err != nil {
		t.Fatalf("SetStatusActive: %v", err)
	}

	if err := reg.Delete(ctx, 1, mon.ID); !errors.Is(err, ErrMonitorActive) {
		t.Fatalf("Delete active monitor = %v, want ErrMonitorActive", err)
	}

	if err := reg.SetStatusPaused(ctx, 1, mon.ID); err != nil {
		t.Fatalf("SetStatusPaused: %v", err)
	}
	if err := reg.Delete(ctx, 1, mon.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	tenant, _ := store.GetTenant(ctx, 1)
	if len(tenant.Monitors) != 0 {
		t.Errorf("monitor still present after delete")
	}
	if err := reg.Delete(ctx, 1, mon.ID); !errors.Is(err, ErrMonitorNotFound) {
		t.Errorf("second Delete = %v, want ErrMonitorNotFound", err)
	}
}

func TestRejectedDeleteKeepsListener(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, sessions, connector, store := testRegistry(t)
	authenticate(t, store, sessions, 1)

	mon, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.SetChats(ctx, 1, mon.ID, []chatsource.ChatID{-100}); err != nil {
		t.Fatalf("SetChats: %v", err)
	}
	if err := reg.SetKeywords(ctx, 1, mon.ID, []string{"аренда"}); err != nil {
		t.Fatalf("SetKeywords: %v", err)
	}
	if err := reg.SetStatusActive(ctx, 1, mon.ID); err != nil {
		t.Fatalf("SetStatusActive: %v", err)
	}
	if n := connector.Latest().ListenerCount(); n != 1 {
		t.Fatalf("listener count = %d, want 1 after activation", n)
	}

	if err := reg.Delete(ctx, 1, mon.ID); !errors.Is(err, ErrMonitorActive) {
		t.Fatalf("Delete active monitor = %v, want ErrMonitorActive", err)
	}

	// A rejected delete must leave the live attachment in place: the
	// monitor is still active and still billed, so it must keep matching.
	if n := connector.Latest().ListenerCount(); n != 1 {
		t.Errorf("listener count = %d after rejected delete, want 1", n)
	}
	got, err := reg.Get(ctx, 1, mon.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != database.StatusActive {
		t.Errorf("status = %s after rejected delete, want active", got.Status)
	}
}

func TestRename(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, _, _, _ := testRegistry(t)

	mon, err := reg.Create(ctx, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Rename(ctx, 1, mon.ID, "Rental watch"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	got, err := reg.Get(ctx, 1, mon.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Rental watch" {
		t.Errorf("name = %q, want %q", got.Name, "Rental watch")
	}
}
