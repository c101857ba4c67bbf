package journal

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStorage keeps events in process memory. It suits tests and the
// single-process CLI; history is lost on restart.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
	ids    map[string]struct{}
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{ids: make(map[string]struct{})}
}

// Store appends e.
func (s *MemoryStorage) Store(_ context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[e.ID]; ok {
		return ErrDuplicateEvent
	}
	e.Metadata = maps.Clone(e.Metadata)
	s.events = append(s.events, e)
	s.ids[e.ID] = struct{}{}
	return nil
}

// List returns matching events, newest first.
func (s *MemoryStorage) List(_ context.Context, f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0)
	skipped := 0
	for _, e := range slices.Backward(s.events) {
		if !f.Match(e) {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		e.Metadata = maps.Clone(e.Metadata)
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
