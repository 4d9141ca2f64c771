// Package store persists financial records of every category behind one
// owner-scoped interface.
package store

import (
	"context"
	"sort"
	"sync"

	"irpf/internal/records/models"
	id "irpf/pkg/domain"
	"irpf/pkg/platform/sentinel"
)

// InMemory is a thread-safe record store. Operation records are additionally
// indexed by OperationKey to mirror the Postgres unique index.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.Record
	byKey   map[models.OperationKey]id.RecordID
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[id.RecordID]*models.Record),
		byKey:   make(map[models.OperationKey]id.RecordID),
	}
}

func (s *InMemory) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	if record.Category.IsOperation() {
		key := record.Key()
		if _, taken := s.byKey[key]; taken {
			return sentinel.ErrConflict
		}
		s.byKey[key] = record.ID
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemory) ListByOwner(_ context.Context, owner id.UserID, filter models.Filter) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Record
	for _, r := range s.records {
		if r.OwnerID != owner || !filter.Matches(r) {
			continue
		}
		out = append(out, r.Clone())
	}
	SortNewestFirst(out)
	return out, nil
}

func (s *InMemory) FindByOwnerAndID(_ context.Context, owner id.UserID, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[recordID]
	if !ok || r.OwnerID != owner {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemory) UpdateByOwner(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[record.ID]
	if !ok || current.OwnerID != record.OwnerID {
		return sentinel.ErrNotFound
	}
	if record.Category.IsOperation() {
		oldKey, newKey := current.Key(), record.Key()
		if oldKey != newKey {
			if _, taken := s.byKey[newKey]; taken {
				return sentinel.ErrConflict
			}
			delete(s.byKey, oldKey)
			s.byKey[newKey] = record.ID
		}
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemory) DeleteByOwnerAndID(_ context.Context, owner id.UserID, recordID id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[recordID]
	if !ok || r.OwnerID != owner {
		return sentinel.ErrNotFound
	}
	if r.Category.IsOperation() {
		delete(s.byKey, r.Key())
	}
	delete(s.records, recordID)
	return nil
}

// SortNewestFirst orders by period descending, then creation time descending.
// Undated records sort after dated ones.
func SortNewestFirst(records []*models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if c := records[i].Period.Compare(records[j].Period); c != 0 {
			return c > 0
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
