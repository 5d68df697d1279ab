package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/notify"
)

var (
	// ErrBelowMinimum rejects top-ups under the configured minimum.
	ErrBelowMinimum = errors.New("amount below the top-up minimum")

	// ErrPaymentTimeout is returned when a payment did not complete within
	// the polling window.
	ErrPaymentTimeout = errors.New("payment confirmation timed out")

	// ErrPaymentCanceled is returned when the gateway reports the payment
	// as canceled.
	ErrPaymentCanceled = errors.New("payment canceled")

	// ErrUnknownPromo is returned for promo codes that do not exist.
	ErrUnknownPromo = errors.New("unknown promo code")

	// ErrPromoAlreadyUsed is returned when the tenant has redeemed the code
	// before. Promo codes are one-shot per tenant.
	ErrPromoAlreadyUsed = errors.New("promo code already used")
)

// subscriptionDays is the length of one paid subscription period.
const subscriptionDays = 30

// promoCodes maps a code to the subscription time it grants.
var promoCodes = map[string]time.Duration{
	"DEMO": 7 * 24 * time.Hour,
}

// Service drives the payment flows: it creates gateway payments, polls
// them to completion, and applies the outcome to the tenant record.
type Service struct {
	logger   *slog.Logger
	store    database.Store
	gateway  Gateway
	notifier notify.Notifier

	minTopUp         decimal.Decimal
	subscriptionRate decimal.Decimal
	extraChatRate    decimal.Decimal
	chatLimit        int
	freeChats        int
	pollEvery        time.Duration
	pollLimit        int
}

// NewService wires the payment service.
func NewService(logger *slog.Logger, store database.Store, gateway Gateway, notifier notify.Notifier, pricing config.PricingConfig, payments config.PaymentsConfig) *Service {
	return &Service{
		logger:           logger.With("component", "payment"),
		store:            store,
		gateway:          gateway,
		notifier:         notifier,
		minTopUp:         decimal.NewFromFloat(pricing.MinTopUp),
		subscriptionRate: decimal.NewFromFloat(pricing.BaseMonthlyRate),
		extraChatRate:    decimal.NewFromFloat(pricing.ExtraChatMonthlyRate),
		chatLimit:        pricing.DefaultChatLimit,
		freeChats:        pricing.FreeChatAllowance,
		pollEvery:        payments.PollEvery,
		pollLimit:        payments.PollLimit,
	}
}

// TopUp creates a balance top-up payment and returns it so the caller can
// hand the confirmation URL to the tenant. The pending payment ID is
// persisted on the tenant record.
func (s *Service) TopUp(ctx context.Context, tenantID int64, amount decimal.Decimal) (*Payment, error) {
	if amount.Cmp(s.minTopUp) < 0 {
		return nil, fmt.Errorf("%w: minimum is %s", ErrBelowMinimum, s.minTopUp.StringFixed(2))
	}

	payment, err := s.gateway.CreatePayment(ctx, amount, "Balance top-up", false)
	if err != nil {
		return nil, fmt.Errorf("create top-up payment: %w", err)
	}

	if err := s.rememberPayment(ctx, tenantID, payment.ID); err != nil {
		return nil, err
	}
	s.logger.Info("top-up payment created", "tenant_id", tenantID, "payment_id", payment.ID, "amount", amount.StringFixed(2))
	return payment, nil
}

// AwaitTopUp polls the payment to completion and credits the amount to the
// tenant's balance on success.
func (s *Service) AwaitTopUp(ctx context.Context, tenantID int64, paymentID string, amount decimal.Decimal) error {
	if err := s.awaitSuccess(ctx, paymentID); err != nil {
		return err
	}

	var balance decimal.Decimal
	err := s.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		t.Balance = t.Balance.Add(amount).Round(2)
		t.PaymentID = ""
		balance = t.Balance
		return nil
	})
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}

	s.logger.Info("balance credited", "tenant_id", tenantID, "amount", amount.StringFixed(2), "balance", balance.StringFixed(2))
	s.notifier.Notify(ctx, tenantID,
		fmt.Sprintf("✅ Payment received. Your balance is now %s ₽.", balance.StringFixed(2)))
	return nil
}

// Subscribe creates a subscription purchase payment. When recurring is set
// the gateway is asked to save the payment method for later charges.
func (s *Service) Subscribe(ctx context.Context, tenantID int64, recurring bool) (*Payment, error) {
	payment, err := s.gateway.CreatePayment(ctx, s.subscriptionRate, "Monthly subscription", recurring)
	if err != nil {
		return nil, fmt.Errorf("create subscription payment: %w", err)
	}

	if err := s.rememberPayment(ctx, tenantID, payment.ID); err != nil {
		return nil, err
	}
	s.logger.Info("subscription payment created", "tenant_id", tenantID, "payment_id", payment.ID)
	return payment, nil
}

// AwaitSubscription polls the payment to completion and activates one
// subscription period. A still-active subscription is extended from its
// current expiry rather than from now, so renewing early never loses days.
func (s *Service) AwaitSubscription(ctx context.Context, tenantID int64, paymentID string, recurring bool) error {
	if err := s.awaitSuccess(ctx, paymentID); err != nil {
		return err
	}

	var expiry int64
	err := s.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		s.extendSubscription(t, subscriptionDays*24*time.Hour, s.renewedChatLimit(t))
		t.Recurring = recurring
		t.PaymentID = ""
		expiry = t.SubscriptionExpiry
		return nil
	})
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}

	until := time.Unix(expiry, 0).UTC().Format("2006-01-02")
	s.logger.Info("subscription activated", "tenant_id", tenantID, "expiry", until)
	s.notifier.Notify(ctx, tenantID,
		fmt.Sprintf("✅ Subscription active until %s.", until))
	return nil
}

// ExpandPrice returns the monthly rate for a subscription sized to the
// given chat count.
func (s *Service) ExpandPrice(chats int) decimal.Decimal {
	extra := chats - s.freeChats
	if extra < 0 {
		extra = 0
	}
	return s.subscriptionRate.Add(s.extraChatRate.Mul(decimal.NewFromInt(int64(extra)))).Round(2)
}

// Expand creates a payment for a subscription period sized to the given
// chat count.
func (s *Service) Expand(ctx context.Context, tenantID int64, chats int) (*Payment, error) {
	price := s.ExpandPrice(chats)
	payment, err := s.gateway.CreatePayment(ctx, price, fmt.Sprintf("Subscription for %d chats", chats), false)
	if err != nil {
		return nil, fmt.Errorf("create expansion payment: %w", err)
	}

	if err := s.rememberPayment(ctx, tenantID, payment.ID); err != nil {
		return nil, err
	}
	s.logger.Info("expansion payment created",
		"tenant_id", tenantID, "payment_id", payment.ID, "chats", chats, "price", price.StringFixed(2))
	return payment, nil
}

// AwaitExpansion polls the payment to completion and activates one
// subscription period with the tenant's chat limit set to the purchased
// count.
func (s *Service) AwaitExpansion(ctx context.Context, tenantID int64, paymentID string, chats int) error {
	if err := s.awaitSuccess(ctx, paymentID); err != nil {
		return err
	}

	var expiry int64
	err := s.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		s.extendSubscription(t, subscriptionDays*24*time.Hour, chats)
		t.PaymentID = ""
		expiry = t.SubscriptionExpiry
		return nil
	})
	if err != nil {
		return fmt.Errorf("activate expansion: %w", err)
	}

	until := time.Unix(expiry, 0).UTC().Format("2006-01-02")
	s.logger.Info("expansion activated", "tenant_id", tenantID, "chats", chats, "expiry", until)
	s.notifier.Notify(ctx, tenantID,
		fmt.Sprintf("✅ Subscription active until %s with room for %d chats per monitor.", until, chats))
	return nil
}

// RedeemPromo grants the subscription time attached to the code. Each code
// works once per tenant.
func (s *Service) RedeemPromo(ctx context.Context, tenantID int64, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	grant, ok := promoCodes[code]
	if !ok {
		return ErrUnknownPromo
	}

	var expiry int64
	err := s.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		if t.HasUsedPromo(code) {
			return ErrPromoAlreadyUsed
		}
		t.UsedPromos = append(t.UsedPromos, code)
		s.extendSubscription(t, grant, s.renewedChatLimit(t))
		expiry = t.SubscriptionExpiry
		return nil
	})
	if err != nil {
		return err
	}

	until := time.Unix(expiry, 0).UTC().Format("2006-01-02")
	s.logger.Info("promo redeemed", "tenant_id", tenantID, "code", code, "expiry", until)
	s.notifier.Notify(ctx, tenantID,
		fmt.Sprintf("🎁 Promo code accepted. Subscription active until %s.", until))
	return nil
}

// SetRecurring toggles automatic renewal.
func (s *Service) SetRecurring(ctx context.Context, tenantID int64, recurring bool) error {
	return s.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		t.Recurring = recurring
		return nil
	})
}

// extendSubscription adds d to the tenant's subscription, applies the chat
// limit, and rearms the one-shot reminder flags.
func (s *Service) extendSubscription(t *database.Tenant, d time.Duration, chatLimit int) {
	base := time.Now()
	if current := time.Unix(t.SubscriptionExpiry, 0); current.After(base) {
		base = current
	}
	t.SubscriptionExpiry = base.Add(d).Unix()
	t.ChatLimit = chatLimit
	t.Reminder3Sent = false
	t.Reminder1Sent = false
	t.InactiveNotified = false
}

// renewedChatLimit keeps a previously purchased expansion across plain
// renewals and promo grants.
func (s *Service) renewedChatLimit(t *database.Tenant) int {
	if t.ChatLimit > s.chatLimit {
		return t.ChatLimit
	}
	return s.chatLimit
}

func (s *Service) rememberPayment(ctx context.Context, tenantID int64, paymentID string) error {
	err := s.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		t.PaymentID = paymentID
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist payment id: %w", err)
	}
	return nil
}

// awaitSuccess polls the gateway until the payment succeeds, is canceled,
// or the polling window closes.
func (s *Service) awaitSuccess(ctx context.Context, paymentID string) error {
	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for attempt := 0; attempt < s.pollLimit; attempt++ {
		payment, err := s.gateway.PaymentStatus(ctx, paymentID)
		if err != nil {
			s.logger.Warn("payment status check failed", "payment_id", paymentID, "error", err)
		} else {
			switch payment.Status {
			case StatusSucceeded:
				return nil
			case StatusCanceled:
				return ErrPaymentCanceled
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return ErrPaymentTimeout
}
