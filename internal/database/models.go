package database

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/keywatch/keywatch/internal/chatsource"
)

// Monitor status values.
const (
	StatusActive = "active"
	StatusPaused = "paused"
)

// DefaultChatLimit is the chat cap applied to tenants that never purchased
// an expanded plan.
const DefaultChatLimit = 5

// ResultTextLimit caps the stored message text of a Result.
const ResultTextLimit = 400

// LinkUnavailable is the sentinel stored when no deep link to the source
// message can be built.
const LinkUnavailable = "unavailable"

// Tenant is the whole persisted record for one end user: balance and
// subscription state, stored platform credentials, and owned monitors.
// Live runtime handles (connections, listeners) never appear here.
type Tenant struct {
	ID                 int64           `json:"id"`
	Balance            decimal.Decimal `json:"balance"`
	SubscriptionExpiry int64           `json:"subscription_expiry"` // unix seconds, 0 = none
	Recurring          bool            `json:"recurring"`
	ChatLimit          int             `json:"chat_limit"`

	// One-shot reminder bits; only a new subscription purchase resets them.
	Reminder3Sent    bool `json:"reminder3_sent"`
	Reminder1Sent    bool `json:"reminder1_sent"`
	InactiveNotified bool `json:"inactive_notified"`

	UsedPromos []string `json:"used_promos"`

	// Stored platform credentials for session restore.
	APIID   int    `json:"api_id,omitempty"`
	APIHash string `json:"api_hash,omitempty"`
	Phone   string `json:"phone,omitempty"`

	// Pending payment awaiting settlement, if any.
	PaymentID string `json:"payment_id,omitempty"`

	Monitors []*Monitor `json:"monitors"`
}

// Monitor is a tenant-owned watch configuration over a set of remote chats.
type Monitor struct {
	ID              int                 `json:"id"`
	Name            string              `json:"name"`
	Chats           []chatsource.ChatID `json:"chats"`
	Keywords        []string            `json:"keywords"`
	ExcludeKeywords []string            `json:"exclude_keywords"`
	Status          string              `json:"status"`
	DailyPrice      decimal.Decimal     `json:"daily_price"`
	Results         []Result            `json:"results"`
}

// Result is one recorded keyword match. Append-only until an explicit clear.
type Result struct {
	Keyword  string `json:"keyword"`
	Chat     string `json:"chat"`
	Sender   string `json:"sender"`
	DateTime string `json:"datetime"`
	Link     string `json:"link"`
	Text     string `json:"text"`
}

// EnsureDefaults fills zero-value fields of records loaded from older
// documents, mirroring the loader-side defaulting the store relies on.
func (t *Tenant) EnsureDefaults() {
	if t.ChatLimit == 0 {
		t.ChatLimit = DefaultChatLimit
	}
	if t.UsedPromos == nil {
		t.UsedPromos = []string{}
	}
	if t.Monitors == nil {
		t.Monitors = []*Monitor{}
	}
	for _, m := range t.Monitors {
		if m.Status == "" {
			m.Status = StatusPaused
		}
		if m.Results == nil {
			m.Results = []Result{}
		}
		if m.Name == "" {
			m.Name = "Monitor"
		}
	}
}

// Monitor returns the monitor with the given ID, or nil.
func (t *Tenant) Monitor(id int) *Monitor {
	for _, m := range t.Monitors {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// ActiveMonitors returns the monitors with status active.
func (t *Tenant) ActiveMonitors() []*Monitor {
	var out []*Monitor
	for _, m := range t.Monitors {
		if m.Status == StatusActive {
			out = append(out, m)
		}
	}
	return out
}

// NextMonitorID allocates the next sequential monitor identifier for this
// tenant. Identifiers stay unique within the tenant and stable across edits.
func (t *Tenant) NextMonitorID() int {
	next := 1
	for _, m := range t.Monitors {
		if m.ID >= next {
			next = m.ID + 1
		}
	}
	return next
}

// HasUsedPromo reports whether the promo code was already redeemed.
func (t *Tenant) HasUsedPromo(code string) bool {
	for _, c := range t.UsedPromos {
		if c == code {
			return true
		}
	}
	return false
}

// SubscriptionActive reports whether the tenant has an unexpired
// subscription at the given instant.
func (t *Tenant) SubscriptionActive(now time.Time) bool {
	return t.SubscriptionExpiry > now.Unix()
}

// CapResultText truncates message text to the stored preview length.
func CapResultText(text string) string {
	runes := []rune(text)
	if len(runes) <= ResultTextLimit {
		return text
	}
	return string(runes[:ResultTextLimit])
}
