package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/keywatch/keywatch/internal/chatsource"
)

// Session is the live per-tenant connection plus its background listening
// task. It holds the set of currently attached monitor listeners; the
// persisted tenant record never sees these handles.
type Session struct {
	tenantID int64
	conn     chatsource.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	logger   *slog.Logger

	mu        sync.Mutex
	listeners map[int]chatsource.Subscription
	closed    bool
}

func newSession(tenantID int64, conn chatsource.Conn, logger *slog.Logger) *Session {
	return &Session{
		tenantID:  tenantID,
		conn:      conn,
		done:      make(chan struct{}),
		logger:    logger.With("component", "session", "tenant_id", tenantID),
		listeners: make(map[int]chatsource.Subscription),
	}
}

// start launches the supervised pump task. The task keeps the connection
// alive even with zero listeners and restarts the pump after transient
// failures until the session context is cancelled.
func (s *Session) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		defer close(s.done)
		for {
			err := s.conn.Run(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.Warn("Listening task failed, restarting", "error", err)
			} else {
				s.logger.Warn("Listening task stopped unexpectedly, restarting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()
}

// attach subscribes a listener for the monitor. An already-attached monitor
// first has its stale listener removed, so at most one live listener exists
// per monitor.
func (s *Session) attach(monitorID int, chats []chatsource.ChatID, fn chatsource.EventFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stale, ok := s.listeners[monitorID]; ok {
		if err := s.conn.Unsubscribe(stale); err != nil {
			s.logger.Warn("Failed to remove stale listener", "monitor_id", monitorID, "error", err)
		}
		delete(s.listeners, monitorID)
	}

	sub, err := s.conn.Subscribe(chats, fn)
	if err != nil {
		return err
	}
	s.listeners[monitorID] = sub
	return nil
}

// detach removes the monitor's listener if present. Already-detached
// monitors are not an error.
func (s *Session) detach(monitorID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.listeners[monitorID]
	if !ok {
		return false
	}
	if err := s.conn.Unsubscribe(sub); err != nil {
		s.logger.Warn("Failed to unsubscribe listener", "monitor_id", monitorID, "error", err)
	}
	delete(s.listeners, monitorID)
	return true
}

func (s *Session) attachedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *Session) isAttached(monitorID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.listeners[monitorID]
	return ok
}

// teardown cancels the listening task, waits for it to finish, and releases
// the connection. Safe to call once.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listeners = make(map[int]chatsource.Subscription)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("Failed to close connection", "error", err)
	}
	s.logger.Info("Session torn down")
}
