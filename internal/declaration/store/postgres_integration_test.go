//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"irpf/internal/aggregate"
	"irpf/internal/declaration/models"
	"irpf/internal/declaration/store"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/money"
	"irpf/pkg/platform/sentinel"
	txcontext "irpf/pkg/platform/tx"
	"irpf/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	driver string
	pg     *containers.PostgresContainer
	store  *store.PostgresStore
	ctx    context.Context
	owner  id.UserID
	now    time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	for _, driver := range []string{"pgx", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			suite.Run(t, &PostgresStoreSuite{driver: driver})
		})
	}
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgresWithDriver(s.T(), s.driver)
	s.store = store.NewPostgres(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "declaration_snapshots", "declarations"))
	s.owner = id.NewUserID()
	s.now = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) create(year int) *models.Declaration {
	d, err := models.NewDeclaration(id.NewDeclarationID(), s.owner, year, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, d))
	return d
}

func (s *PostgresStoreSuite) moveTo(year int, target models.Status, agg *aggregate.Aggregate) (*models.Declaration, error) {
	return s.store.Execute(s.ctx, s.owner, year,
		func(d *models.Declaration) error { return d.CanTransition(target) },
		func(d *models.Declaration) *models.Snapshot {
			d.ApplyTransition(target, s.now)
			if target != models.StatusSubmitted {
				return nil
			}
			return models.NewSnapshot(id.NewSnapshotID(), d, agg, nil, s.now)
		})
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	d := s.create(2024)

	s.ErrorIs(s.store.Create(s.ctx, d), sentinel.ErrConflict)

	found, err := s.store.FindByOwnerAndYear(s.ctx, s.owner, 2024)
	s.Require().NoError(err)
	s.Equal(d.ID, found.ID)
	s.Equal(models.StatusDraft, found.Status)
	s.Nil(found.SubmittedAt)

	_, err = s.store.FindByOwnerAndYear(s.ctx, s.owner, 2023)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListing() {
	s.create(2023)
	s.create(2024)

	out, err := s.store.ListByOwner(s.ctx, s.owner)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.Equal(2024, out[0].Year)

	byYear, err := s.store.ListByYear(s.ctx, 2023)
	s.Require().NoError(err)
	s.Len(byYear, 1)
}

func (s *PostgresStoreSuite) TestSubmitStoresSnapshot() {
	d := s.create(2024)
	agg := &aggregate.Aggregate{Owner: s.owner, Year: 2024}

	_, err := s.moveTo(2024, models.StatusReadyForReview, agg)
	s.Require().NoError(err)
	updated, err := s.moveTo(2024, models.StatusSubmitted, agg)
	s.Require().NoError(err)
	s.Equal(1, updated.Revision)

	found, err := s.store.FindByOwnerAndYear(s.ctx, s.owner, 2024)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, found.Status)
	s.Require().NotNil(found.SubmittedAt)
	s.True(s.now.Equal(*found.SubmittedAt))

	snaps, err := s.store.ListSnapshots(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Require().Len(snaps, 1)
	s.Equal(1, snaps[0].Revision)
	s.True(snaps[0].Payload.NetWorthDelta.Equal(money.Zero()))
	s.Empty(snaps[0].RecordIDs)

	s.Run("rejected transition leaves the row alone", func() {
		_, err := s.moveTo(2024, models.StatusDraft, agg)
		s.True(dErrors.HasCode(err, dErrors.CodeRejected))

		found, err := s.store.FindByOwnerAndYear(s.ctx, s.owner, 2024)
		s.Require().NoError(err)
		s.Equal(models.StatusSubmitted, found.Status)
	})

	s.Run("delete cascades to snapshots", func() {
		s.Require().NoError(s.store.Delete(s.ctx, s.owner, 2024))
		snaps, err := s.store.ListSnapshots(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Empty(snaps)
		s.ErrorIs(s.store.Delete(s.ctx, s.owner, 2024), sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestExecuteSerializesOnRowLock() {
	s.create(2024)
	const writers = 6

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.moveTo(2024, models.StatusReadyForReview, nil)
			if err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, applied)
}

func (s *PostgresStoreSuite) TestFindForShareBlocksTransitionsUntilCommit() {
	s.create(2024)
	held := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)

	go func() {
		txDone <- txcontext.Run(s.ctx, s.pg.DB, func(ctx context.Context) error {
			_, err := s.store.FindForShare(ctx, s.owner, 2024)
			close(held)
			if err != nil {
				return err
			}
			<-release
			return nil
		})
	}()
	<-held

	moved := make(chan error, 1)
	go func() {
		_, err := s.moveTo(2024, models.StatusReadyForReview, nil)
		moved <- err
	}()

	select {
	case err := <-moved:
		s.Failf("transition ran while the row was shared", "err=%v", err)
	case <-time.After(200 * time.Millisecond):
	}
	close(release)
	s.Require().NoError(<-txDone)
	s.Require().NoError(<-moved)

	_, err := s.store.FindForShare(s.ctx, s.owner, 2023)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
