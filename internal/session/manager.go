// Package session owns the per-tenant connection sessions: authentication
// against the remote chat platform, the background listening task, and the
// attachment of monitor listeners to live connections.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keywatch/keywatch/internal/chatsource"
	"github.com/keywatch/keywatch/internal/database"
	"github.com/keywatch/keywatch/internal/match"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/notify"
)

// Session manager error conditions reported to the conversation layer.
var (
	ErrNoSession           = errors.New("session: no authenticated session for tenant")
	ErrNoChallenge         = errors.New("session: no pending login challenge for tenant")
	ErrNoStoredCredentials = errors.New("session: no stored credentials for tenant")
)

// Manager owns one Session per tenant. Re-authentication tears down the
// prior session before the replacement is created, so two listening tasks
// never race on the same tenant's monitors.
type Manager struct {
	logger    *slog.Logger
	store     database.Store
	connector chatsource.Connector
	engine    *match.Engine
	notifier  notify.Notifier
	metrics   *metrics.Metrics

	// base context for session pump tasks; cancelled on Shutdown.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[int64]*Session
	pending  map[int64]chatsource.PendingAuth
}

// NewManager creates a session manager.
func NewManager(
	logger *slog.Logger,
	store database.Store,
	connector chatsource.Connector,
	engine *match.Engine,
	notifier notify.Notifier,
	m *metrics.Metrics,
) *Manager {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		logger:     logger.With("component", "session_manager"),
		store:      store,
		connector:  connector,
		engine:     engine,
		notifier:   notifier,
		metrics:    m,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		sessions:   make(map[int64]*Session),
		pending:    make(map[int64]chatsource.PendingAuth),
	}
}

// IsAuthenticated reports whether the tenant currently has a live session.
func (m *Manager) IsAuthenticated(tenantID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[tenantID]
	return ok
}

// BeginAuth stores the credentials and issues a login challenge. The tenant
// moves to the challenge-issued state; CompleteAuth finishes the flow.
func (m *Manager) BeginAuth(ctx context.Context, tenantID int64, creds chatsource.Credentials) error {
	pending, err := m.connector.StartAuth(ctx, creds)
	if err != nil {
		return err
	}

	if err := m.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		t.APIID = creds.APIID
		t.APIHash = creds.APIHash
		t.Phone = creds.Phone
		return nil
	}); err != nil {
		m.logger.ErrorContext(ctx, "Failed to persist credentials", "tenant_id", tenantID, "error", err)
	}

	m.mu.Lock()
	m.pending[tenantID] = pending
	m.mu.Unlock()
	return nil
}

// CompleteAuth finishes a pending challenge with the one-time code. When the
// account needs a second factor the challenge stays pending and
// chatsource.ErrPasswordRequired is returned; CompletePassword finishes it.
func (m *Manager) CompleteAuth(ctx context.Context, tenantID int64, code string) error {
	m.mu.Lock()
	pending, ok := m.pending[tenantID]
	m.mu.Unlock()
	if !ok {
		return ErrNoChallenge
	}

	conn, err := pending.Complete(ctx, code)
	if err != nil {
		if errors.Is(err, chatsource.ErrPasswordRequired) {
			return err
		}
		if errors.Is(err, chatsource.ErrCodeExpired) {
			m.mu.Lock()
			delete(m.pending, tenantID)
			m.mu.Unlock()
		}
		return err
	}

	m.mu.Lock()
	delete(m.pending, tenantID)
	m.mu.Unlock()
	return m.establish(ctx, tenantID, conn)
}

// CompletePassword finishes a challenge that required the second factor.
func (m *Manager) CompletePassword(ctx context.Context, tenantID int64, password string) error {
	m.mu.Lock()
	pending, ok := m.pending[tenantID]
	m.mu.Unlock()
	if !ok {
		return ErrNoChallenge
	}

	conn, err := pending.CompletePassword(ctx, password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.pending, tenantID)
	m.mu.Unlock()
	return m.establish(ctx, tenantID, conn)
}

// Restore opens a session from stored credentials without user interaction.
// Returns chatsource.ErrNotAuthorized when a fresh login is required.
func (m *Manager) Restore(ctx context.Context, tenantID int64) error {
	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if tenant.APIID == 0 || tenant.APIHash == "" {
		return ErrNoStoredCredentials
	}

	conn, err := m.connector.Restore(ctx, chatsource.Credentials{
		APIID:   tenant.APIID,
		APIHash: tenant.APIHash,
		Phone:   tenant.Phone,
	})
	if err != nil {
		return err
	}
	return m.establish(ctx, tenantID, conn)
}

// establish replaces the tenant's session with a new one over conn and
// replays attachment for every persisted active monitor exactly once.
func (m *Manager) establish(ctx context.Context, tenantID int64, conn chatsource.Conn) error {
	m.teardownSession(tenantID)

	sess := newSession(tenantID, conn, m.logger)
	sess.start(m.baseCtx)

	m.mu.Lock()
	m.sessions[tenantID] = sess
	m.mu.Unlock()
	m.metrics.ActiveSessions.Inc()
	m.logger.InfoContext(ctx, "Session established", "tenant_id", tenantID)

	tenant, err := m.store.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant for monitor replay: %w", err)
	}
	for _, mon := range tenant.ActiveMonitors() {
		if err := m.Attach(ctx, tenantID, mon); err != nil {
			m.logger.WarnContext(ctx, "Failed to reattach monitor after auth",
				"tenant_id", tenantID, "monitor_id", mon.ID, "error", err)
		}
	}
	return nil
}

// Logout tears down the tenant's session and forgets any pending challenge.
func (m *Manager) Logout(tenantID int64) {
	m.mu.Lock()
	delete(m.pending, tenantID)
	m.mu.Unlock()
	m.teardownSession(tenantID)
}

// Shutdown tears down every session. Used on process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.teardownSession(id)
	}
	m.baseCancel()
}

func (m *Manager) teardownSession(tenantID int64) {
	m.mu.Lock()
	sess, ok := m.sessions[tenantID]
	if ok {
		delete(m.sessions, tenantID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.metrics.AttachedMonitors.Sub(float64(sess.attachedCount()))
	m.metrics.ActiveSessions.Dec()
	sess.teardown()
}

func (m *Manager) session(tenantID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[tenantID]
}

// Resolve maps a chat reference to a ChatID using the tenant's connection.
func (m *Manager) Resolve(ctx context.Context, tenantID int64, ref string) (chatsource.ChatID, error) {
	sess := m.session(tenantID)
	if sess == nil {
		return 0, ErrNoSession
	}
	return sess.conn.Resolve(ctx, ref)
}

// Attach registers a listener scoped to the monitor's chat targets. The
// listener carries an immutable snapshot of the monitor's filter sets, so a
// later edit must detach and reattach to take effect. Attaching an
// already-attached monitor replaces the stale listener; at most one live
// listener exists per monitor.
func (m *Manager) Attach(ctx context.Context, tenantID int64, mon *database.Monitor) error {
	sess := m.session(tenantID)
	if sess == nil {
		return ErrNoSession
	}

	snapshot := listenerSnapshot{
		monitorID: mon.ID,
		keywords:  append([]string(nil), mon.Keywords...),
		excludes:  append([]string(nil), mon.ExcludeKeywords...),
	}
	chats := append([]chatsource.ChatID(nil), mon.Chats...)

	wasAttached := sess.isAttached(mon.ID)
	if err := sess.attach(mon.ID, chats, func(ev chatsource.Event) {
		m.handleEvent(tenantID, snapshot, ev)
	}); err != nil {
		return err
	}
	if !wasAttached {
		m.metrics.AttachedMonitors.Inc()
	}
	m.logger.InfoContext(ctx, "Monitor attached", "tenant_id", tenantID, "monitor_id", mon.ID, "chats", len(chats))
	return nil
}

// Detach removes the monitor's listener. Tolerant of already-detached
// monitors and of absent sessions.
func (m *Manager) Detach(tenantID int64, monitorID int) {
	sess := m.session(tenantID)
	if sess == nil {
		return
	}
	if sess.detach(monitorID) {
		m.metrics.AttachedMonitors.Dec()
		m.logger.Info("Monitor detached", "tenant_id", tenantID, "monitor_id", monitorID)
	}
}

// listenerSnapshot is the immutable filter state one listener evaluates
// against. Edits never mutate a live snapshot; they produce a new listener.
type listenerSnapshot struct {
	monitorID int
	keywords  []string
	excludes  []string
}

// handleEvent evaluates one inbound event against one monitor and, on a
// match, appends a Result and dispatches a match alert. Bot-originated
// senders never reach the match engine.
func (m *Manager) handleEvent(tenantID int64, snap listenerSnapshot, ev chatsource.Event) {
	m.metrics.EventsEvaluated.Inc()

	if ev.SenderIsBot {
		return
	}

	keyword, ok := m.engine.Evaluate(ev.Text, snap.keywords, snap.excludes)
	if !ok {
		return
	}

	link := database.LinkUnavailable
	if ev.ChatUsername != "" {
		link = fmt.Sprintf("https://t.me/%s/%d", ev.ChatUsername, ev.MessageID)
	}
	result := database.Result{
		Keyword:  keyword,
		Chat:     ev.ChatTitle,
		Sender:   ev.SenderLabel,
		DateTime: ev.Time.UTC().Format("2006-01-02 15:04:05"),
		Link:     link,
		Text:     database.CapResultText(ev.Text),
	}

	ctx, cancel := context.WithTimeout(m.baseCtx, 15*time.Second)
	defer cancel()

	err := m.store.Update(ctx, tenantID, func(t *database.Tenant) error {
		mon := t.Monitor(snap.monitorID)
		if mon == nil {
			// Monitor deleted while the event was in flight.
			return nil
		}
		mon.Results = append(mon.Results, result)
		return nil
	})
	if err != nil {
		m.logger.Error("Failed to record match result",
			"tenant_id", tenantID, "monitor_id", snap.monitorID, "error", err)
	} else {
		m.metrics.MatchesRecorded.Inc()
	}

	alert := fmt.Sprintf("🔔 Found '%s' in chat '%s'\nUsername: %s\nDateTime: %s\nLink: %s\n\n%s",
		keyword, result.Chat, result.Sender, result.DateTime, result.Link, result.Text)
	m.notifier.NotifyMatch(ctx, tenantID, alert)
}
