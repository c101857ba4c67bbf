package feature

import (
	"context"
	"maps"
	"sync"
)

// MemoryOverrides is an in-process OverrideStore. It is safe for concurrent use.
type MemoryOverrides struct {
	mu    sync.RWMutex
	flags map[Name]bool
}

// NewMemoryOverrides creates a store seeded with initial overrides.
func NewMemoryOverrides(initial map[Name]bool) *MemoryOverrides {
	m := &MemoryOverrides{flags: make(map[Name]bool, len(initial))}
	maps.Copy(m.flags, initial)
	return m
}

func (m *MemoryOverrides) Get(_ context.Context, flag Name) (bool, bool, error) {
	m.mu.RLock()
	v, ok := m.flags[flag]
	m.mu.RUnlock()
	return v, ok, nil
}

func (m *MemoryOverrides) Set(_ context.Context, flag Name, value bool) error {
	m.mu.Lock()
	m.flags[flag] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryOverrides) Delete(_ context.Context, flag Name) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flags[flag]; !ok {
		return ErrOverrideNotFound
	}
	delete(m.flags, flag)
	return nil
}

func (m *MemoryOverrides) List(_ context.Context) (map[Name]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.flags), nil
}
