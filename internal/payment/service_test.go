package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/database"
)

type fakeGateway struct {
	mu           sync.Mutex
	nextID       int
	payments     map[string]*Payment
	amounts      []decimal.Decimal
	succeedAfter int
	statusCalls  int
	cancel       bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: make(map[string]*Payment)}
}

func (g *fakeGateway) CreatePayment(_ context.Context, amount decimal.Decimal, _ string, _ bool) (*Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.amounts = append(g.amounts, amount)
	g.nextID++
	p := &Payment{
		ID:              fmt.Sprintf("pay-%d", g.nextID),
		Status:          StatusPending,
		ConfirmationURL: "https://pay.example/confirm",
	}
	g.payments[p.ID] = p
	return p, nil
}

func (g *fakeGateway) PaymentStatus(_ context.Context, id string) (*Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[id]
	if !ok {
		return nil, errors.New("no such payment")
	}
	g.statusCalls++
	if g.cancel {
		p.Status = StatusCanceled
	} else if g.statusCalls > g.succeedAfter {
		p.Status = StatusSucceeded
		p.Paid = true
	}
	return p, nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, int64, string) {}

func (nopNotifier) NotifyMatch(context.Context, int64, string) {}

func (nopNotifier) NotifyDocument(context.Context, int64, string, []byte, string) {}

func testService(gateway *fakeGateway) (*Service, *database.MemStore) {
	store := database.NewMemStore()
	svc := NewService(slog.Default(), store, gateway, nopNotifier{},
		config.PricingConfig{
			BaseMonthlyRate:      1490.00,
			ExtraChatMonthlyRate: 490.00,
			FreeChatAllowance:    5,
			MinTopUp:             300.00,
			DefaultChatLimit:     5,
		},
		config.PaymentsConfig{PollEvery: time.Millisecond, PollLimit: 5},
	)
	return svc, store
}

func TestTopUpBelowMinimum(t *testing.T) {
	t.Parallel()

	svc, _ := testService(newFakeGateway())

	_, err := svc.TopUp(context.Background(), 1, decimal.RequireFromString("100.00"))
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("TopUp(100) = %v, want ErrBelowMinimum", err)
	}
}

func TestTopUpCreditsBalance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.succeedAfter = 2
	svc, store := testService(gateway)

	amount := decimal.RequireFromString("500.00")
	payment, err := svc.TopUp(ctx, 1, amount)
	if err != nil {
		t.Fatalf("TopUp: %v", err)
	}
	if payment.ConfirmationURL == "" {
		t.Fatal("no confirmation URL")
	}

	tenant, err := store.GetTenant(ctx, 1)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if tenant.PaymentID != payment.ID {
		t.Errorf("pending payment id = %q, want %q", tenant.PaymentID, payment.ID)
	}

	if err := svc.AwaitTopUp(ctx, 1, payment.ID, amount); err != nil {
		t.Fatalf("AwaitTopUp: %v", err)
	}

	tenant, _ = store.GetTenant(ctx, 1)
	if got := tenant.Balance.String(); got != "500" {
		t.Errorf("balance = %s, want 500", got)
	}
	if tenant.PaymentID != "" {
		t.Errorf("pending payment id not cleared: %q", tenant.PaymentID)
	}
}

func TestAwaitTopUpCanceled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.cancel = true
	svc, store := testService(gateway)

	amount := decimal.RequireFromString("500.00")
	payment, err := svc.TopUp(ctx, 1, amount)
	if err != nil {
		t.Fatalf("TopUp: %v", err)
	}

	if err := svc.AwaitTopUp(ctx, 1, payment.ID, amount); !errors.Is(err, ErrPaymentCanceled) {
		t.Fatalf("AwaitTopUp = %v, want ErrPaymentCanceled", err)
	}

	tenant, _ := store.GetTenant(ctx, 1)
	if !tenant.Balance.IsZero() {
		t.Errorf("canceled payment credited balance %s", tenant.Balance)
	}
}

func TestAwaitTopUpTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.succeedAfter = 100
	svc, _ := testService(gateway)

	amount := decimal.RequireFromString("500.00")
	payment, err := svc.TopUp(ctx, 1, amount)
	if err != nil {
		t.Fatalf("TopUp: %v", err)
	}

	if err := svc.AwaitTopUp(ctx, 1, payment.ID, amount); !errors.Is(err, ErrPaymentTimeout) {
		t.Fatalf("AwaitTopUp = %v, want ErrPaymentTimeout", err)
	}
}

func TestSubscribeActivates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := testService(newFakeGateway())

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.Reminder3Sent = true
		tn.Reminder1Sent = true
		tn.InactiveNotified = true
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	payment, err := svc.Subscribe(ctx, 1, true)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := svc.AwaitSubscription(ctx, 1, payment.ID, true); err != nil {
		t.Fatalf("AwaitSubscription: %v", err)
	}

	tenant, _ := store.GetTenant(ctx, 1)
	wantExpiry := time.Now().Add(subscriptionDays * 24 * time.Hour).Unix()
	if diff := tenant.SubscriptionExpiry - wantExpiry; diff < -5 || diff > 5 {
		t.Errorf("expiry = %d, want about %d", tenant.SubscriptionExpiry, wantExpiry)
	}
	if !tenant.Recurring {
		t.Error("recurring not set")
	}
	if tenant.ChatLimit != 5 {
		t.Errorf("chat limit = %d, want 5", tenant.ChatLimit)
	}
	if tenant.Reminder3Sent || tenant.Reminder1Sent || tenant.InactiveNotified {
		t.Error("reminder flags not rearmed on renewal")
	}
}

func TestSubscribeExtendsFromCurrentExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := testService(newFakeGateway())

	current := time.Now().Add(10 * 24 * time.Hour).Unix()
	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.SubscriptionExpiry = current
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	payment, err := svc.Subscribe(ctx, 1, false)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := svc.AwaitSubscription(ctx, 1, payment.ID, false); err != nil {
		t.Fatalf("AwaitSubscription: %v", err)
	}

	tenant, _ := store.GetTenant(ctx, 1)
	want := time.Unix(current, 0).Add(subscriptionDays * 24 * time.Hour).Unix()
	if tenant.SubscriptionExpiry != want {
		t.Errorf("expiry = %d, want %d (extended from the old expiry)", tenant.SubscriptionExpiry, want)
	}
}

func TestExpandPrice(t *testing.T) {
	t.Parallel()

	svc, _ := testService(newFakeGateway())

	tests := []struct {
		chats int
		want  string
	}{
		{3, "1490"},
		{5, "1490"},
		{6, "1980"},
		{8, "2960"},
	}

	for _, tt := range tests {
		if got := svc.ExpandPrice(tt.chats).String(); got != tt.want {
			t.Errorf("ExpandPrice(%d) = %s, want %s", tt.chats, got, tt.want)
		}
	}
}

func TestExpandActivatesPurchasedLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gateway := newFakeGateway()
	svc, store := testService(gateway)

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.Reminder3Sent = true
		tn.InactiveNotified = true
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	payment, err := svc.Expand(ctx, 1, 8)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if got := gateway.amounts[0].String(); got != "2960" {
		t.Errorf("payment amount = %s, want 2960 for 3 extra chats", got)
	}

	if err := svc.AwaitExpansion(ctx, 1, payment.ID, 8); err != nil {
		t.Fatalf("AwaitExpansion: %v", err)
	}

	tenant, _ := store.GetTenant(ctx, 1)
	if tenant.ChatLimit != 8 {
		t.Errorf("chat limit = %d, want the purchased 8", tenant.ChatLimit)
	}
	wantExpiry := time.Now().Add(subscriptionDays * 24 * time.Hour).Unix()
	if diff := tenant.SubscriptionExpiry - wantExpiry; diff < -5 || diff > 5 {
		t.Errorf("expiry = %d, want about %d", tenant.SubscriptionExpiry, wantExpiry)
	}
	if tenant.PaymentID != "" {
		t.Errorf("pending payment id not cleared: %q", tenant.PaymentID)
	}
	if tenant.Reminder3Sent || tenant.InactiveNotified {
		t.Error("reminder flags not rearmed on expansion")
	}
}

func TestRenewalKeepsExpandedLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := testService(newFakeGateway())

	err := store.Update(ctx, 1, func(tn *database.Tenant) error {
		tn.ChatLimit = 8
		return nil
	})
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	payment, err := svc.Subscribe(ctx, 1, false)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := svc.AwaitSubscription(ctx, 1, payment.ID, false); err != nil {
		t.Fatalf("AwaitSubscription: %v", err)
	}

	tenant, _ := store.GetTenant(ctx, 1)
	if tenant.ChatLimit != 8 {
		t.Errorf("chat limit = %d after renewal, want the expanded 8", tenant.ChatLimit)
	}

	if err := svc.RedeemPromo(ctx, 1, "DEMO"); err != nil {
		t.Fatalf("RedeemPromo: %v", err)
	}
	tenant, _ = store.GetTenant(ctx, 1)
	if tenant.ChatLimit != 8 {
		t.Errorf("chat limit = %d after promo, want the expanded 8", tenant.ChatLimit)
	}
}

func TestRedeemPromo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, store := testService(newFakeGateway())

	if err := svc.RedeemPromo(ctx, 1, "bogus"); !errors.Is(err, ErrUnknownPromo) {
		t.Fatalf("RedeemPromo(bogus) = %v, want ErrUnknownPromo", err)
	}

	if err := svc.RedeemPromo(ctx, 1, " demo "); err != nil {
		t.Fatalf("RedeemPromo(demo): %v", err)
	}

	tenant, _ := store.GetTenant(ctx, 1)
	wantExpiry := time.Now().Add(7 * 24 * time.Hour).Unix()
	if diff := tenant.SubscriptionExpiry - wantExpiry; diff < -5 || diff > 5 {
		t.Errorf("expiry = %d, want about %d", tenant.SubscriptionExpiry, wantExpiry)
	}

	if err := svc.RedeemPromo(ctx, 1, "DEMO"); !errors.Is(err, ErrPromoAlreadyUsed) {
		t.Fatalf("second RedeemPromo = %v, want ErrPromoAlreadyUsed", err)
	}
}
