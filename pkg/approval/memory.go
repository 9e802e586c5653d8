package approval

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps orders and audit entries in process. It backs local
// runs without Postgres and the package tests.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]*Order
	audit  []*AuditEntry
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[string]*Order)}
}

func (m *MemoryStore) InsertOrder(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *MemoryStore) FindOrder(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) TransitionOrder(_ context.Context, order *Order, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[order.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != from {
		return ErrInvalidTransition
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *MemoryStore) ListOrdersByUser(_ context.Context, userID string, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Order, 0)
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendAudit(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.audit = append(m.audit, &cp)
	return nil
}

// AuditEntries returns a copy of the audit log in append order.
func (m *MemoryStore) AuditEntries() []*AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}
