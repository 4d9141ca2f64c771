// Package store persists declarations and their submission snapshots.
package store

import (
	"context"
	"sort"
	"sync"

	"irpf/internal/declaration/models"
	id "irpf/pkg/domain"
	"irpf/pkg/platform/sentinel"
)

type ownerYear struct {
	owner id.UserID
	year  int
}

// InMemory is a thread-safe declaration store. Execute holds the write lock
// across validation and mutation.
type InMemory struct {
	mu           sync.RWMutex
	declarations map[ownerYear]*models.Declaration
	snapshots    map[id.DeclarationID][]*models.Snapshot
}

func NewInMemory() *InMemory {
	return &InMemory{
		declarations: make(map[ownerYear]*models.Declaration),
		snapshots:    make(map[id.DeclarationID][]*models.Snapshot),
	}
}

func (s *InMemory) Create(_ context.Context, d *models.Declaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerYear{d.OwnerID, d.Year}
	if _, exists := s.declarations[key]; exists {
		return sentinel.ErrConflict
	}
	s.declarations[key] = d.Clone()
	return nil
}

func (s *InMemory) FindByOwnerAndYear(_ context.Context, owner id.UserID, year int) (*models.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.declarations[ownerYear{owner, year}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

// FindForShare is FindByOwnerAndYear. Writers serialize on the service locker.
func (s *InMemory) FindForShare(ctx context.Context, owner id.UserID, year int) (*models.Declaration, error) {
	return s.FindByOwnerAndYear(ctx, owner, year)
}

// ListByOwner returns the owner's declarations, newest year first.
func (s *InMemory) ListByOwner(_ context.Context, owner id.UserID) ([]*models.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Declaration
	for key, d := range s.declarations {
		if key.owner == owner {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out, nil
}

// ListByYear returns every owner's declaration for year, oldest first.
func (s *InMemory) ListByYear(_ context.Context, year int) ([]*models.Declaration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Declaration
	for key, d := range s.declarations {
		if key.year == year {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Execute loads the declaration, runs validate and then mutate on a copy and
// stores the result together with the snapshot mutate returns, if any.
// Nothing is written when validate fails.
func (s *InMemory) Execute(_ context.Context, owner id.UserID, year int, validate func(*models.Declaration) error, mutate func(*models.Declaration) *models.Snapshot) (*models.Declaration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerYear{owner, year}
	current, ok := s.declarations[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	d := current.Clone()
	if err := validate(d); err != nil {
		return nil, err
	}
	snap := mutate(d)
	if snap != nil {
		for _, existing := range s.snapshots[d.ID] {
			if existing.Revision == snap.Revision {
				return nil, sentinel.ErrConflict
			}
		}
		s.snapshots[d.ID] = append(s.snapshots[d.ID], snap)
	}
	s.declarations[key] = d
	return d.Clone(), nil
}

// ListSnapshots returns the snapshots of a declaration by ascending revision.
func (s *InMemory) ListSnapshots(_ context.Context, declarationID id.DeclarationID) ([]*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Snapshot, 0, len(s.snapshots[declarationID]))
	for _, snap := range s.snapshots[declarationID] {
		c := *snap
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision < out[j].Revision })
	return out, nil
}

// Delete removes the declaration row and its snapshots. Records are untouched.
func (s *InMemory) Delete(_ context.Context, owner id.UserID, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerYear{owner, year}
	d, ok := s.declarations[key]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.snapshots, d.ID)
	delete(s.declarations, key)
	return nil
}
