// Package memory keeps audit events in process for tests and database-less runs.
package memory

import (
	"context"
	"slices"
	"sync"

	id "irpf/pkg/domain"
	audit "irpf/pkg/platform/audit"
)

// InMemoryStore is an append-only log. Events are returned in append order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByUser returns the events whose subject owner is userID.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	return s.filter(func(e audit.Event) bool { return e.UserID == userID }), nil
}

// ListByAction returns every event recorded for action.
func (s *InMemoryStore) ListByAction(action audit.AuditEvent) []audit.Event {
	return s.filter(func(e audit.Event) bool { return e.Action == string(action) })
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) filter(keep func(audit.Event) bool) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0)
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return slices.Clip(out)
}
