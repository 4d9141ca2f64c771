package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"irpf/internal/aggregate"
	"irpf/internal/declaration/handler/mocks"
	"irpf/internal/declaration/models"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/declaration-mocks.go -package=mocks Service
type DeclarationHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	owner   id.UserID
}

func TestDeclarationHandlerSuite(t *testing.T) {
	suite.Run(t, new(DeclarationHandlerSuite))
}

func (s *DeclarationHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)
	s.owner = id.NewUserID()
}

func (s *DeclarationHandlerSuite) declaration(status models.Status) *models.Declaration {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	return &models.Declaration{
		ID:        id.NewDeclarationID(),
		OwnerID:   s.owner,
		Year:      2024,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *DeclarationHandlerSuite) TestCreate() {
	s.Run("opens a draft for the path year", func() {
		d := s.declaration(models.StatusDraft)
		s.service.EXPECT().Create(gomock.Any(), s.owner, 2024).Return(d, nil)

		req := testutil.NewRequest(s.T(), http.MethodPost, "/declarations/2024")
		rr := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))

		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertJSONContains(s.T(), rr, "status", "draft")
		testutil.AssertJSONContains(s.T(), rr, "id", d.ID.String())
	})

	s.Run("duplicate year is a conflict", func() {
		s.service.EXPECT().Create(gomock.Any(), s.owner, 2024).
			Return(nil, dErrors.New(dErrors.CodeConflict, "declaration 2024 already exists"))

		req := testutil.NewRequest(s.T(), http.MethodPost, "/declarations/2024")
		rr := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeConflict))
	})

	s.Run("non-numeric year is a bad request", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/declarations/twenty")
		rr := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("out of range year is a bad request", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/declarations/99999")
		rr := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("missing identity is unauthorized", func() {
		req := testutil.NewRequest(s.T(), http.MethodPost, "/declarations/2024")
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})
}

func (s *DeclarationHandlerSuite) TestGetAndList() {
	s.Run("get returns the declaration", func() {
		d := s.declaration(models.StatusSubmitted)
		d.Revision = 1
		s.service.EXPECT().Get(gomock.Any(), s.owner, 2024).Return(d, nil)

		rr := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodGet, "/declarations/2024"), s.owner))

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "status", "submitted")
		testutil.AssertJSONContains(s.T(), rr, "revision", float64(1))
	})

	s.Run("missing declaration is not found", func() {
		s.service.EXPECT().Get(gomock.Any(), s.owner, 2023).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "declaration 2023 not found"))

		rr := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodGet, "/declarations/2023"), s.owner))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})

	s.Run("list wraps declarations", func() {
		s.service.EXPECT().List(gomock.Any(), s.owner).
			Return([]*models.Declaration{s.declaration(models.StatusDraft)}, nil)

		rr := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodGet, "/declarations"), s.owner))

		testutil.AssertStatusOK(s.T(), rr)
		body := testutil.UnmarshalResponse[listResponse](s.T(), rr)
		require.Len(s.T(), body.Declarations, 1)
		assert.Equal(s.T(), 2024, body.Declarations[0].Year)
	})
}

func (s *DeclarationHandlerSuite) TestTransition() {
	s.Run("passes the parsed target to the service", func() {
		d := s.declaration(models.StatusReadyForReview)
		s.service.EXPECT().Transition(gomock.Any(), s.owner, 2024, models.StatusReadyForReview).Return(d, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/declarations/2024/transitions", map[string]string{"target": "ready_for_review"})
		rr := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "status", "ready_for_review")
	})

	s.Run("illegal transition exposes its reason", func() {
		s.service.EXPECT().Transition(gomock.Any(), s.owner, 2024, models.StatusSubmitted).
			Return(nil, dErrors.Rejected(models.ReasonIllegalTransition, "cannot move declaration 2024 from draft to submitted"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/declarations/2024/transitions", map[string]string{"target": "submitted"})
		rr := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))

		assert.Equal(s.T(), http.StatusUnprocessableEntity, rr.Code)
		body := testutil.UnmarshalErrorResponse(s.T(), rr)
		assert.Equal(s.T(), string(dErrors.CodeRejected), body["error"])
		assert.Equal(s.T(), string(models.ReasonIllegalTransition), body["reason"])
	})

	s.Run("unknown target never reaches the service", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/declarations/2024/transitions", map[string]string{"target": "archived"})
		rr := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))

		assert.Equal(s.T(), http.StatusUnprocessableEntity, rr.Code)
	})

	s.Run("missing target is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/declarations/2024/transitions", map[string]string{})
		rr := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))

		assert.Equal(s.T(), http.StatusUnprocessableEntity, rr.Code)
	})

	s.Run("lock timeout is reported", func() {
		s.service.EXPECT().Transition(gomock.Any(), s.owner, 2024, models.StatusAmended).
			Return(nil, dErrors.New(dErrors.CodeTimeout, "timed out waiting for declaration lock"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/declarations/2024/transitions", map[string]string{"target": "amended"})
		rr := testutil.DoRequest(s.router, testutil.WithOwner(req, s.owner))

		testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeTimeout))
	})
}

func (s *DeclarationHandlerSuite) TestAggregateAndSnapshots() {
	s.Run("aggregate view", func() {
		view := &models.AggregateView{Aggregate: &aggregate.Aggregate{Owner: s.owner, Year: 2024}}
		s.service.EXPECT().Aggregate(gomock.Any(), s.owner, 2024).Return(view, nil)

		rr := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodGet, "/declarations/2024/aggregate"), s.owner))

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONHasKey(s.T(), rr, "aggregate")
		testutil.AssertJSONHasKey(s.T(), rr, "summary")
	})

	s.Run("snapshots are listed", func() {
		d := s.declaration(models.StatusSubmitted)
		snaps := []*models.Snapshot{{ID: id.NewSnapshotID(), DeclarationID: d.ID, Revision: 1}}
		s.service.EXPECT().Snapshots(gomock.Any(), s.owner, 2024).Return(snaps, nil)

		rr := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodGet, "/declarations/2024/snapshots"), s.owner))

		testutil.AssertStatusOK(s.T(), rr)
		body := testutil.UnmarshalResponse[snapshotsResponse](s.T(), rr)
		require.Len(s.T(), body.Snapshots, 1)
		assert.Equal(s.T(), 1, body.Snapshots[0].Revision)
	})
}

func (s *DeclarationHandlerSuite) TestDelete() {
	s.Run("defaults to keeping the attached-records guard", func() {
		s.service.EXPECT().Delete(gomock.Any(), s.owner, 2024, false).Return(nil)

		rr := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodDelete, "/declarations/2024"), s.owner))

		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("detach flag is passed through", func() {
		s.service.EXPECT().Delete(gomock.Any(), s.owner, 2024, true).Return(nil)

		rr := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodDelete, "/declarations/2024?detach_records=true"), s.owner))

		testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	})

	s.Run("malformed detach flag is a bad request", func() {
		rr := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodDelete, "/declarations/2024?detach_records=maybe"), s.owner))

		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})

	s.Run("attached records are refused", func() {
		s.service.EXPECT().Delete(gomock.Any(), s.owner, 2024, false).
			Return(dErrors.Rejected("records_attached", "3 record(s) are dated in 2024"))

		rr := testutil.DoRequest(s.router, testutil.WithOwner(testutil.NewRequest(s.T(), http.MethodDelete, "/declarations/2024"), s.owner))

		assert.Equal(s.T(), http.StatusUnprocessableEntity, rr.Code)
		assert.Equal(s.T(), "records_attached", testutil.UnmarshalErrorResponse(s.T(), rr)["reason"])
	})
}
