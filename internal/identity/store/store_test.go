package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"irpf/internal/identity/models"
	id "irpf/pkg/domain"
	"irpf/pkg/platform/sentinel"
)

type InMemoryUserStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemory
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
}

func (s *InMemoryUserStoreSuite) user(email string, created time.Time) *models.User {
	return &models.User{ID: id.NewUserID(), Email: email, FullName: "Test User", PasswordHash: "hash", CreatedAt: created}
}

func (s *InMemoryUserStoreSuite) TestLookupBehavior() {
	u := s.user("jane.doe@example.com", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, u))

	s.Run("by id", func() {
		found, err := s.store.FindByID(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Equal(u, found)
	})

	s.Run("by email", func() {
		found, err := s.store.FindByEmail(s.ctx, u.Email)
		s.Require().NoError(err)
		s.Equal(u.ID, found.ID)
	})

	s.Run("missing", func() {
		_, err := s.store.FindByID(s.ctx, id.NewUserID())
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FindByEmail(s.ctx, "nobody@example.com")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate email", func() {
		s.ErrorIs(s.store.Create(s.ctx, s.user(u.Email, time.Now())), sentinel.ErrConflict)
	})
}

func (s *InMemoryUserStoreSuite) TestListOldestFirst() {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Create(s.ctx, s.user("late@example.com", base.Add(time.Hour))))
	s.Require().NoError(s.store.Create(s.ctx, s.user("early@example.com", base)))

	users, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 2)
	s.Equal("early@example.com", users[0].Email)
}

func (s *InMemoryUserStoreSuite) TestRoles() {
	u := s.user("admin@example.com", time.Now())
	s.Require().NoError(s.store.Create(s.ctx, u))

	has, err := s.store.HasRole(s.ctx, u.ID, models.RoleAdmin)
	s.Require().NoError(err)
	s.False(has)

	s.Require().NoError(s.store.GrantRole(s.ctx, u.ID, models.RoleAdmin, time.Now()))
	s.Require().NoError(s.store.GrantRole(s.ctx, u.ID, models.RoleAdmin, time.Now()), "idempotent")

	has, err = s.store.HasRole(s.ctx, u.ID, models.RoleAdmin)
	s.Require().NoError(err)
	s.True(has)

	s.ErrorIs(s.store.GrantRole(s.ctx, id.NewUserID(), models.RoleAdmin, time.Now()), sentinel.ErrNotFound)
}
