// Package chatsourcetest provides in-memory chatsource fakes for tests.
package chatsourcetest

import (
	"context"
	"sync"

	"github.com/keywatch/keywatch/internal/chatsource"
)

// Conn is an in-memory chatsource.Conn. Events are injected with Emit and
// dispatched synchronously to every listener subscribed to the event's
// chat.
type Conn struct {
	mu        sync.Mutex
	nextSub   int
	listeners map[int]listener
	refs      map[string]chatsource.ChatID
	closed    bool
}

type listener struct {
	chats map[chatsource.ChatID]struct{}
	fn    chatsource.EventFunc
}

// NewConn creates an open fake connection.
func NewConn() *Conn {
	return &Conn{
		listeners: make(map[int]listener),
		refs:      make(map[string]chatsource.ChatID),
	}
}

// AddRef makes ref resolvable to id.
func (c *Conn) AddRef(ref string, id chatsource.ChatID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs[ref] = id
}

func (c *Conn) Subscribe(chats []chatsource.ChatID, fn chatsource.EventFunc) (chatsource.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := make(map[chatsource.ChatID]struct{}, len(chats))
	for _, id := range chats {
		set[id] = struct{}{}
	}
	c.nextSub++
	c.listeners[c.nextSub] = listener{chats: set, fn: fn}
	return c.nextSub, nil
}

func (c *Conn) Unsubscribe(sub chatsource.Subscription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, sub.(int))
	return nil
}

func (c *Conn) Resolve(_ context.Context, ref string) (chatsource.ChatID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.refs[ref]; ok {
		return id, nil
	}
	return 0, chatsource.ErrChatNotFound
}

func (c *Conn) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ListenerCount returns the number of live subscriptions.
func (c *Conn) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Emit dispatches the event to every listener subscribed to its chat. The
// copy of the listener set is taken under the lock but dispatch happens
// outside it, so listeners may call back into the connection.
func (c *Conn) Emit(ev chatsource.Event) {
	c.mu.Lock()
	fns := make([]chatsource.EventFunc, 0, len(c.listeners))
	for _, l := range c.listeners {
		if _, ok := l.chats[ev.Chat]; ok {
			fns = append(fns, l.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Connector is an in-memory chatsource.Connector. Each successful auth or
// restore hands out a fresh Conn, recorded in order on Conns.
type Connector struct {
	mu              sync.Mutex
	RequirePassword bool
	AuthErr         error
	RestoreErr      error
	Conns           []*Conn
}

// NewConnector creates a fake connector.
func NewConnector() *Connector {
	return &Connector{}
}

// Latest returns the most recently handed out connection, or nil.
func (f *Connector) Latest() *Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Conns) == 0 {
		return nil
	}
	return f.Conns[len(f.Conns)-1]
}

func (f *Connector) newConn() *Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := NewConn()
	f.Conns = append(f.Conns, c)
	return c
}

func (f *Connector) StartAuth(_ context.Context, _ chatsource.Credentials) (chatsource.PendingAuth, error) {
	if f.AuthErr != nil {
		return nil, f.AuthErr
	}
	return &pendingAuth{connector: f}, nil
}

func (f *Connector) Restore(_ context.Context, _ chatsource.Credentials) (chatsource.Conn, error) {
	if f.RestoreErr != nil {
		return nil, f.RestoreErr
	}
	return f.newConn(), nil
}

type pendingAuth struct {
	connector    *Connector
	codeAccepted bool
}

func (p *pendingAuth) Complete(_ context.Context, code string) (chatsource.Conn, error) {
	if code == "" {
		return nil, chatsource.ErrCodeInvalid
	}
	if p.connector.RequirePassword {
		p.codeAccepted = true
		return nil, chatsource.ErrPasswordRequired
	}
	return p.connector.newConn(), nil
}

func (p *pendingAuth) CompletePassword(_ context.Context, password string) (chatsource.Conn, error) {
	if !p.codeAccepted {
		return nil, chatsource.ErrCodeInvalid
	}
	if password == "" {
		return nil, chatsource.ErrInvalidCredential
	}
	return p.connector.newConn(), nil
}
