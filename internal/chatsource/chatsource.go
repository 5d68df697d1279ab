// Package chatsource defines the boundary contracts for the remote chat
// platform: authenticated connections, event subscriptions, and the error
// conditions the rest of the system reacts to. Implementations live outside
// the core; tests use in-memory fakes.
package chatsource

import (
	"context"
	"errors"
	"time"
)

// ChatID is an opaque identifier of a remote chat or channel.
type ChatID int64

// Event is one inbound message observed on a live connection.
type Event struct {
	Chat         ChatID
	ChatTitle    string
	ChatUsername string
	MessageID    int64
	SenderLabel  string
	SenderIsBot  bool
	Text         string
	Time         time.Time
}

// EventFunc handles one inbound event.
type EventFunc func(Event)

// Subscription is an opaque listener handle returned by Conn.Subscribe.
type Subscription interface{}

// Authentication and connection error conditions. The session manager does
// not retry on any of these; it reports the condition and waits for new
// input.
var (
	ErrInvalidCredential = errors.New("chatsource: invalid credential")
	ErrCodeInvalid       = errors.New("chatsource: invalid one-time code")
	ErrCodeExpired       = errors.New("chatsource: one-time code expired")
	ErrPasswordRequired  = errors.New("chatsource: second factor required")
	ErrRateLimited       = errors.New("chatsource: rate limited")
	ErrNotAuthorized     = errors.New("chatsource: stored session not authorized")
	ErrChatNotFound      = errors.New("chatsource: chat not found")
)

// Credentials identify a tenant's account on the remote platform.
type Credentials struct {
	APIID   int
	APIHash string
	Phone   string
}

// Conn is a live authenticated connection.
//
// Subscribe registers a listener for events originating from the given chats
// and returns a handle for Unsubscribe. Implementations must dispatch events
// in arrival order and must make Subscribe/Unsubscribe atomic with respect to
// dispatch: no event may be delivered against a listener set that is
// mid-update.
type Conn interface {
	Subscribe(chats []ChatID, fn EventFunc) (Subscription, error)
	Unsubscribe(sub Subscription) error

	// Resolve maps a chat reference string (link, username, or numeric ID)
	// to a ChatID. Returns ErrChatNotFound for invalid references.
	Resolve(ctx context.Context, ref string) (ChatID, error)

	// Run pumps inbound events until ctx is cancelled or the connection is
	// lost. It must be running for subscribed listeners to receive events.
	Run(ctx context.Context) error

	Close() error
}

// PendingAuth is a login challenge awaiting the one-time code (and possibly
// a second-factor password).
type PendingAuth interface {
	// Complete finishes the challenge with the one-time code. May fail with
	// ErrCodeInvalid, ErrCodeExpired, ErrPasswordRequired, or ErrRateLimited.
	Complete(ctx context.Context, code string) (Conn, error)

	// CompletePassword finishes a challenge that required a second factor.
	CompletePassword(ctx context.Context, password string) (Conn, error)
}

// Connector opens connections to the remote platform.
type Connector interface {
	// StartAuth issues a login challenge for the credentials. May fail with
	// ErrInvalidCredential or ErrRateLimited.
	StartAuth(ctx context.Context, creds Credentials) (PendingAuth, error)

	// Restore opens a connection from stored credentials without user
	// interaction. Returns ErrNotAuthorized when a fresh login is needed.
	Restore(ctx context.Context, creds Credentials) (Conn, error)
}
