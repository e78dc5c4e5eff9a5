package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nvandessel/timedilation/internal/event"
)

// MemoryStore keeps tables in memory. Thread-safe.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[int]*event.Table
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[int]*event.Table)}
}

// WriteRun replaces any previous table of the same run.
func (m *MemoryStore) WriteRun(ctx context.Context, t *event.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.Run.Number] = t
	return nil
}

// RemoveRun drops run n.
func (m *MemoryStore) RemoveRun(_ context.Context, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, n)
	return nil
}

// Get returns the table of run n.
func (m *MemoryStore) Get(n int) (*event.Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[n]
	return t, ok
}

// Tables returns every stored table ordered by run number.
func (m *MemoryStore) Tables() []*event.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*event.Table, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Run.Number < out[j].Run.Number })
	return out
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
