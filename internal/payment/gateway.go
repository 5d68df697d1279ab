// Package payment integrates the external payment gateway: balance top-ups,
// subscription purchases, and promo code redemption.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keywatch/keywatch/internal/config"
)

// Payment gateway states.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusCanceled  = "canceled"
)

// Payment is the gateway's view of one payment.
type Payment struct {
	ID              string
	Status          string
	Paid            bool
	ConfirmationURL string
}

// Gateway creates payments and reports their status.
type Gateway interface {
	CreatePayment(ctx context.Context, amount decimal.Decimal, description string, savePaymentMethod bool) (*Payment, error)
	PaymentStatus(ctx context.Context, id string) (*Payment, error)
}

// Client is the REST gateway client. Every create request carries a fresh
// idempotence key, so a retried request cannot double-charge.
type Client struct {
	httpClient *http.Client
	baseURL    string
	shopID     string
	secretKey  string
	returnURL  string
}

// NewClient builds the gateway client from configuration.
func NewClient(cfg config.PaymentsConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.BaseURL,
		shopID:     cfg.ShopID,
		secretKey:  cfg.SecretKey,
		returnURL:  cfg.ReturnURL,
	}
}

type amountBody struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmationBody struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type paymentBody struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Paid              bool              `json:"paid"`
	Amount            amountBody        `json:"amount"`
	Capture           bool              `json:"capture,omitempty"`
	Description       string            `json:"description,omitempty"`
	Confirmation      *confirmationBody `json:"confirmation,omitempty"`
	SavePaymentMethod bool              `json:"save_payment_method,omitempty"`
}

// CreatePayment registers a redirect-confirmation payment and returns its
// ID and confirmation URL.
func (c *Client) CreatePayment(ctx context.Context, amount decimal.Decimal, description string, savePaymentMethod bool) (*Payment, error) {
	reqBody := paymentBody{
		Amount:            amountBody{Value: amount.StringFixed(2), Currency: "RUB"},
		Capture:           true,
		Description:       description,
		Confirmation:      &confirmationBody{Type: "redirect", ReturnURL: c.returnURL},
		SavePaymentMethod: savePaymentMethod,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())
	req.SetBasicAuth(c.shopID, c.secretKey)

	return c.do(req)
}

// PaymentStatus fetches the current state of a payment.
func (c *Client) PaymentStatus(ctx context.Context, id string) (*Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Payment, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("payment gateway returned %s", resp.Status)
	}

	var body paymentBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}

	payment := &Payment{
		ID:     body.ID,
		Status: body.Status,
		Paid:   body.Paid,
	}
	if body.Confirmation != nil {
		payment.ConfirmationURL = body.Confirmation.ConfirmationURL
	}
	return payment, nil
}
