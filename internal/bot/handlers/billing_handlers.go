package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"

	"github.com/keywatch/keywatch/internal/payment"
)

// NewBalanceHandler returns a handler for the /balance command.
func NewBalanceHandler(deps HandlerDeps) bot.HandlerFunc {
	return balanceHandler{deps}.Handle
}

type balanceHandler struct {
	deps HandlerDeps
}

func (h balanceHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "balance")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if err := h.deps.Metering.SweepTenant(ctx, tenantID); err != nil {
		log.ErrorContext(ctx, "Subscription sweep on /balance failed", "error", err, "tenant_id", tenantID)
	}

	tenant, err := h.deps.Store.GetOrCreateTenant(ctx, tenantID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load tenant", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Something went wrong, please try again.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Balance: %s ₽\n", tenant.Balance.StringFixed(2))
	fmt.Fprintf(&sb, "Daily cost: %s ₽\n", h.deps.Metering.TenantDailyCost(tenant).StringFixed(2))

	if tenant.SubscriptionActive(time.Now()) {
		until := time.Unix(tenant.SubscriptionExpiry, 0).UTC().Format("2006-01-02")
		renewal := "off"
		if tenant.Recurring {
			renewal = "on"
		}
		fmt.Fprintf(&sb, "Subscription: active until %s (auto-renewal %s)\n", until, renewal)
	}

	if when, days, ok := h.deps.Metering.PredictExhaustion(tenant); ok {
		fmt.Fprintf(&sb, "Service paid through %s (%d days)", when.Format("2006-01-02"), days)
	} else {
		sb.WriteString("No active monitors are being billed right now.")
	}

	reply(ctx, log, b, chatID, sb.String())
}

// NewTopUpHandler returns a handler for the /topup command. The payment is
// confirmed out of band, so the handler answers with the confirmation URL
// and watches the payment in the background.
func NewTopUpHandler(deps HandlerDeps) bot.HandlerFunc {
	return topUpHandler{deps}.Handle
}

type topUpHandler struct {
	deps HandlerDeps
}

func (h topUpHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "topup")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /topup <amount>")
		return
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil || !amount.IsPositive() {
		reply(ctx, log, b, chatID, "The amount must be a positive number.")
		return
	}

	pay, err := h.deps.Payments.TopUp(ctx, tenantID, amount)
	if err != nil {
		if errors.Is(err, payment.ErrBelowMinimum) {
			reply(ctx, log, b, chatID, "That amount is below the top-up minimum.")
			return
		}
		log.ErrorContext(ctx, "Failed to create top-up", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Could not create the payment, please try again.")
		return
	}

	reply(ctx, log, b, chatID, fmt.Sprintf("Pay here: %s\n\nI will confirm once the payment goes through.", pay.ConfirmationURL))

	go func() {
		err := h.deps.Payments.AwaitTopUp(ctx, tenantID, pay.ID, amount)
		switch {
		case err == nil:
		case errors.Is(err, payment.ErrPaymentTimeout):
			h.deps.Notifier.Notify(ctx, tenantID, "The payment was not completed in time. Start over with /topup.")
		case errors.Is(err, payment.ErrPaymentCanceled):
			h.deps.Notifier.Notify(ctx, tenantID, "The payment was canceled.")
		default:
			log.Error("Top-up confirmation failed", "error", err, "tenant_id", tenantID)
		}
	}()
}

// NewSubscribeHandler returns a handler for the /subscribe command.
func NewSubscribeHandler(deps HandlerDeps) bot.HandlerFunc {
	return subscribeHandler{deps}.Handle
}

type subscribeHandler struct {
	deps HandlerDeps
}

func (h subscribeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "subscribe")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	recurring := false
	if args := commandArgs(update.Message.Text); len(args) == 1 && args[0] == "auto" {
		recurring = true
	}

	pay, err := h.deps.Payments.Subscribe(ctx, tenantID, recurring)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create subscription payment", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Could not create the payment, please try again.")
		return
	}

	reply(ctx, log, b, chatID, fmt.Sprintf("Pay here: %s\n\nI will confirm once the payment goes through.", pay.ConfirmationURL))

	go func() {
		err := h.deps.Payments.AwaitSubscription(ctx, tenantID, pay.ID, recurring)
		switch {
		case err == nil:
		case errors.Is(err, payment.ErrPaymentTimeout):
			h.deps.Notifier.Notify(ctx, tenantID, "The payment was not completed in time. Start over with /subscribe.")
		case errors.Is(err, payment.ErrPaymentCanceled):
			h.deps.Notifier.Notify(ctx, tenantID, "The payment was canceled.")
		default:
			log.Error("Subscription confirmation failed", "error", err, "tenant_id", tenantID)
		}
	}()
}

// NewExpandHandler returns a handler for the /expand command. The purchase
// buys one subscription period sized to the requested chat count; on
// success the tenant's chat limit becomes that count.
func NewExpandHandler(deps HandlerDeps) bot.HandlerFunc {
	return expandHandler{deps}.Handle
}

type expandHandler struct {
	deps HandlerDeps
}

func (h expandHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "expand")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /expand <chats>")
		return
	}
	chatCount, err := strconv.Atoi(args[0])
	if err != nil || chatCount <= 0 {
		reply(ctx, log, b, chatID, "The chat count must be a positive number.")
		return
	}

	pay, err := h.deps.Payments.Expand(ctx, tenantID, chatCount)
	if err != nil {
		log.ErrorContext(ctx, "Failed to create expansion payment", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Could not create the payment, please try again.")
		return
	}

	price := h.deps.Payments.ExpandPrice(chatCount)
	reply(ctx, log, b, chatID, fmt.Sprintf("A plan for %d chats costs %s ₽ per month.\nPay here: %s\n\nI will confirm once the payment goes through.",
		chatCount, price.StringFixed(2), pay.ConfirmationURL))

	go func() {
		err := h.deps.Payments.AwaitExpansion(ctx, tenantID, pay.ID, chatCount)
		switch {
		case err == nil:
		case errors.Is(err, payment.ErrPaymentTimeout):
			h.deps.Notifier.Notify(ctx, tenantID, "The payment was not completed in time. Start over with /expand.")
		case errors.Is(err, payment.ErrPaymentCanceled):
			h.deps.Notifier.Notify(ctx, tenantID, "The payment was canceled.")
		default:
			log.Error("Expansion confirmation failed", "error", err, "tenant_id", tenantID)
		}
	}()
}

// NewPromoHandler returns a handler for the /promo command.
func NewPromoHandler(deps HandlerDeps) bot.HandlerFunc {
	return promoHandler{deps}.Handle
}

type promoHandler struct {
	deps HandlerDeps
}

func (h promoHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "promo")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, log, b, chatID, "Usage: /promo <code>")
		return
	}

	err := h.deps.Payments.RedeemPromo(ctx, tenantID, args[0])
	switch {
	case err == nil:
		// The payment service already confirmed via the notifier.
	case errors.Is(err, payment.ErrUnknownPromo):
		reply(ctx, log, b, chatID, "That promo code does not exist.")
	case errors.Is(err, payment.ErrPromoAlreadyUsed):
		reply(ctx, log, b, chatID, "You already used that promo code.")
	default:
		log.ErrorContext(ctx, "Failed to redeem promo", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Something went wrong, please try again.")
	}
}

// NewRecurringHandler returns a handler for the /recurring command.
func NewRecurringHandler(deps HandlerDeps) bot.HandlerFunc {
	return recurringHandler{deps}.Handle
}

type recurringHandler struct {
	deps HandlerDeps
}

func (h recurringHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "recurring")

	if update.Message == nil || update.Message.From == nil {
		return
	}
	tenantID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		reply(ctx, log, b, chatID, "Usage: /recurring <on|off>")
		return
	}

	if err := h.deps.Payments.SetRecurring(ctx, tenantID, args[0] == "on"); err != nil {
		log.ErrorContext(ctx, "Failed to toggle renewal", "error", err, "tenant_id", tenantID)
		reply(ctx, log, b, chatID, "Something went wrong, please try again.")
		return
	}

	if args[0] == "on" {
		reply(ctx, log, b, chatID, "Automatic renewal is on.")
	} else {
		reply(ctx, log, b, chatID, "Automatic renewal is off.")
	}
}
