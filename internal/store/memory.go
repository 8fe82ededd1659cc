package store

import (
	"context"
	"sync"

	"github.com/rezonia/nfe-conferencia/internal/model"
)

// Memory keeps rows in process memory
type Memory struct {
	mu   sync.RWMutex
	rows map[string][]model.Row
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{rows: make(map[string][]model.Row)}
}

// Append stores a copy of rows under polo
func (m *Memory) Append(_ context.Context, polo string, rows []model.Row) error {
	if polo == "" {
		return ErrNoPolo
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[polo] = append(m.rows[polo], rows...)
	return nil
}

// LoadAll returns the rows of polo in append order
func (m *Memory) LoadAll(_ context.Context, polo string) ([]model.Row, error) {
	if polo == "" {
		return nil, ErrNoPolo
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Row, len(m.rows[polo]))
	copy(out, m.rows[polo])
	return out, nil
}

// Close is a no-op
func (m *Memory) Close() error { return nil }
