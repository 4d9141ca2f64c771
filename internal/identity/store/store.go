// Package store persists users and their roles.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"irpf/internal/identity/models"
	id "irpf/pkg/domain"
	"irpf/pkg/platform/sentinel"
)

type userRole struct {
	user id.UserID
	role models.Role
}

// InMemory is a thread-safe user store with a unique email index.
type InMemory struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
	roles   map[userRole]time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
		roles:   make(map[userRole]time.Time),
	}
}

func (s *InMemory) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return sentinel.ErrConflict
	}
	if _, exists := s.users[user.ID]; exists {
		return sentinel.ErrConflict
	}
	c := *user
	s.users[user.ID] = &c
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byEmail[email]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *s.users[userID]
	return &c, nil
}

// List returns every user, oldest first.
func (s *InMemory) List(_ context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

func (s *InMemory) HasRole(_ context.Context, userID id.UserID, role models.Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.roles[userRole{userID, role}]
	return ok, nil
}

// GrantRole is idempotent. Granting to an unknown user is ErrNotFound.
func (s *InMemory) GrantRole(_ context.Context, userID id.UserID, role models.Role, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return sentinel.ErrNotFound
	}
	key := userRole{userID, role}
	if _, ok := s.roles[key]; !ok {
		s.roles[key] = now
	}
	return nil
}
