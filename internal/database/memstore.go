package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store used in tests. It keeps the same
// whole-record semantics as the SQL-backed store: records round-trip
// through JSON and Update serializes read-modify-write per tenant.
type MemStore struct {
	mu      sync.Mutex
	tenants map[int64][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{tenants: make(map[int64][]byte)}
}

func (s *MemStore) Ping(_ context.Context) error { return nil }

func (s *MemStore) GetTenant(_ context.Context, id int64) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decode(id)
}

func (s *MemStore) GetOrCreateTenant(_ context.Context, id int64) (*Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, err := s.decode(id)
	if errors.Is(err, ErrTenantNotFound) {
		tenant = &Tenant{ID: id}
		tenant.EnsureDefaults()
		if err := s.encode(tenant); err != nil {
			return nil, err
		}
		return tenant, nil
	}
	return tenant, err
}

func (s *MemStore) Update(_ context.Context, id int64, fn func(*Tenant) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, err := s.decode(id)
	if errors.Is(err, ErrTenantNotFound) {
		tenant = &Tenant{ID: id}
		tenant.EnsureDefaults()
	} else if err != nil {
		return err
	}

	if err := fn(tenant); err != nil {
		return err
	}
	return s.encode(tenant)
}

func (s *MemStore) AllTenantIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemStore) decode(id int64) (*Tenant, error) {
	doc, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	var tenant Tenant
	if err := json.Unmarshal(doc, &tenant); err != nil {
		return nil, fmt.Errorf("decode tenant %d: %w", id, err)
	}
	tenant.EnsureDefaults()
	return &tenant, nil
}

func (s *MemStore) encode(tenant *Tenant) error {
	doc, err := json.Marshal(tenant)
	if err != nil {
		return fmt.Errorf("encode tenant %d: %w", tenant.ID, err)
	}
	s.tenants[tenant.ID] = doc
	return nil
}
