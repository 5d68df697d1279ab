package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrTenantNotFound is returned by GetTenant for unknown tenant IDs.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrMonitorNotFound is returned by record mutations targeting a
	// monitor the tenant does not have.
	ErrMonitorNotFound = errors.New("monitor not found")
)

// Store is the tenant document store: whole-record read and replace, keyed
// by tenant ID. The store itself provides no field-level atomicity; instead
// Update serializes read-modify-write per tenant, which is the only way
// concurrent writers (match handlers, the metering engine, the registry)
// are allowed to mutate a record.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetTenant reads one whole tenant record. Returns ErrTenantNotFound
	// for unknown IDs.
	GetTenant(ctx context.Context, id int64) (*Tenant, error)

	// GetOrCreateTenant reads a tenant record, lazily creating a default
	// record on first interaction.
	GetOrCreateTenant(ctx context.Context, id int64) (*Tenant, error)

	// Update applies fn to the tenant record under the tenant's write lock
	// and persists the result. The record passed to fn is lazily created if
	// missing and has defaults applied. fn returning an error aborts the
	// update with nothing persisted.
	Update(ctx context.Context, id int64, fn func(*Tenant) error) error

	// AllTenantIDs lists every known tenant.
	AllTenantIDs(ctx context.Context) ([]int64, error)
}

// sqlxStore implements Store over a tenants(id, doc) table.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// tenantLock returns the per-tenant mutex, creating it on first use.
func (s *sqlxStore) tenantLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *sqlxStore) readTenant(ctx context.Context, id int64) (*Tenant, error) {
	var doc []byte
	err := s.db.GetContext(ctx, &doc, `SELECT doc FROM tenants WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant %d: %w", id, err)
	}

	tenant := &Tenant{}
	if err := json.Unmarshal(doc, tenant); err != nil {
		return nil, fmt.Errorf("failed to decode tenant %d: %w", id, err)
	}
	tenant.ID = id
	tenant.EnsureDefaults()
	return tenant, nil
}

func (s *sqlxStore) writeTenant(ctx context.Context, tenant *Tenant) error {
	doc, err := json.Marshal(tenant)
	if err != nil {
		return fmt.Errorf("failed to encode tenant %d: %w", tenant.ID, err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, doc, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		tenant.ID, doc, now, now)
	if err != nil {
		return fmt.Errorf("failed to write tenant %d: %w", tenant.ID, err)
	}
	return nil
}

func (s *sqlxStore) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	lock := s.tenantLock(id)
	lock.Lock()
	defer lock.Unlock()
	return s.readTenant(ctx, id)
}

func (s *sqlxStore) GetOrCreateTenant(ctx context.Context, id int64) (*Tenant, error) {
	lock := s.tenantLock(id)
	lock.Lock()
	defer lock.Unlock()

	tenant, err := s.readTenant(ctx, id)
	if errors.Is(err, ErrTenantNotFound) {
		tenant = &Tenant{ID: id}
		tenant.EnsureDefaults()
		if err := s.writeTenant(ctx, tenant); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "Created tenant record", "tenant_id", id)
		return tenant, nil
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *sqlxStore) Update(ctx context.Context, id int64, fn func(*Tenant) error) error {
	lock := s.tenantLock(id)
	lock.Lock()
	defer lock.Unlock()

	tenant, err := s.readTenant(ctx, id)
	if errors.Is(err, ErrTenantNotFound) {
		tenant = &Tenant{ID: id}
		tenant.EnsureDefaults()
	} else if err != nil {
		return err
	}

	if err := fn(tenant); err != nil {
		return err
	}
	return s.writeTenant(ctx, tenant)
}

func (s *sqlxStore) AllTenantIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT id FROM tenants ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return ids, nil
}
