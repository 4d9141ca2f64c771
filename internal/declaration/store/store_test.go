package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"irpf/internal/declaration/models"
	id "irpf/pkg/domain"
	"irpf/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemory
	owner id.UserID
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
	s.owner = id.NewUserID()
	s.now = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) create(owner id.UserID, year int) *models.Declaration {
	d, err := models.NewDeclaration(id.NewDeclarationID(), owner, year, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, d))
	return d
}

func submit(now time.Time) (func(*models.Declaration) error, func(*models.Declaration) *models.Snapshot) {
	validate := func(d *models.Declaration) error { return nil }
	mutate := func(d *models.Declaration) *models.Snapshot {
		d.ApplyTransition(models.StatusSubmitted, now)
		return &models.Snapshot{ID: id.NewSnapshotID(), DeclarationID: d.ID, Revision: d.Revision, CreatedAt: now}
	}
	return validate, mutate
}

func (s *InMemoryStoreSuite) TestCreateAndFind() {
	d := s.create(s.owner, 2024)

	s.ErrorIs(s.store.Create(s.ctx, d), sentinel.ErrConflict)

	found, err := s.store.FindByOwnerAndYear(s.ctx, s.owner, 2024)
	s.Require().NoError(err)
	s.Equal(d.ID, found.ID)

	found.Status = models.StatusSubmitted
	again, err := s.store.FindByOwnerAndYear(s.ctx, s.owner, 2024)
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, again.Status, "callers get copies")

	_, err = s.store.FindByOwnerAndYear(s.ctx, id.NewUserID(), 2024)
	s.ErrorIs(err, sentinel.ErrNotFound)

	shared, err := s.store.FindForShare(s.ctx, s.owner, 2024)
	s.Require().NoError(err)
	s.Equal(d.ID, shared.ID)
}

func (s *InMemoryStoreSuite) TestListing() {
	s.create(s.owner, 2022)
	s.create(s.owner, 2024)
	s.create(s.owner, 2023)
	s.now = s.now.Add(time.Hour)
	s.create(id.NewUserID(), 2024)

	mine, err := s.store.ListByOwner(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Require().Len(mine, 3)
	s.Equal([]int{2024, 2023, 2022}, []int{mine[0].Year, mine[1].Year, mine[2].Year})

	byYear, err := s.store.ListByYear(s.ctx, 2024)
	s.Require().NoError(err)
	s.Require().Len(byYear, 2)
	s.Equal(s.owner, byYear[0].OwnerID)
}

func (s *InMemoryStoreSuite) TestExecute() {
	d := s.create(s.owner, 2024)

	s.Run("validation failure writes nothing", func() {
		refuse := errors.New("refused")
		_, err := s.store.Execute(s.ctx, s.owner, 2024,
			func(*models.Declaration) error { return refuse },
			func(d *models.Declaration) *models.Snapshot {
				s.Fail("mutate must not run")
				return nil
			})
		s.ErrorIs(err, refuse)

		snaps, err := s.store.ListSnapshots(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Empty(snaps)
	})

	s.Run("mutation and snapshot are stored together", func() {
		validate, mutate := submit(s.now)
		updated, err := s.store.Execute(s.ctx, s.owner, 2024, validate, mutate)
		s.Require().NoError(err)
		s.Equal(1, updated.Revision)

		found, err := s.store.FindByOwnerAndYear(s.ctx, s.owner, 2024)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, found.Status)

		snaps, err := s.store.ListSnapshots(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Require().Len(snaps, 1)
		s.Equal(1, snaps[0].Revision)
	})

	s.Run("duplicate revision conflicts", func() {
		_, err := s.store.Execute(s.ctx, s.owner, 2024,
			func(*models.Declaration) error { return nil },
			func(d *models.Declaration) *models.Snapshot {
				return &models.Snapshot{ID: id.NewSnapshotID(), DeclarationID: d.ID, Revision: d.Revision}
			})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("missing declaration", func() {
		validate, mutate := submit(s.now)
		_, err := s.store.Execute(s.ctx, s.owner, 1990, validate, mutate)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestDelete() {
	d := s.create(s.owner, 2024)
	validate, mutate := submit(s.now)
	_, err := s.store.Execute(s.ctx, s.owner, 2024, validate, mutate)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(s.ctx, s.owner, 2024))

	_, err = s.store.FindByOwnerAndYear(s.ctx, s.owner, 2024)
	s.ErrorIs(err, sentinel.ErrNotFound)
	snaps, err := s.store.ListSnapshots(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Empty(snaps)
	s.ErrorIs(s.store.Delete(s.ctx, s.owner, 2024), sentinel.ErrNotFound)
}
