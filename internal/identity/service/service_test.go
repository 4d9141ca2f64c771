package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"irpf/internal/identity/metrics"
	"irpf/internal/identity/models"
	"irpf/internal/identity/store"
	"irpf/internal/identity/token"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	audit "irpf/pkg/platform/audit"
	"irpf/pkg/platform/audit/publisher"
	auditmemory "irpf/pkg/platform/audit/store/memory"
	"irpf/pkg/requestcontext"
)

var fixedNow = time.Date(2025, 2, 10, 8, 30, 0, 0, time.UTC)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	jwt     *token.JWTService
	audit   *auditmemory.InMemoryStore
	metrics *metrics.Metrics
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), fixedNow)
	s.ctx = requestcontext.WithClientMetadata(s.ctx, "203.0.113.7", "test-agent")
	s.store = store.NewInMemory()
	s.jwt = token.NewJWTService("test-key", "irpf", "irpf-api")
	s.audit = auditmemory.NewInMemoryStore()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(s.store, s.jwt,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(publisher.NewPublisher(s.audit)),
		WithMetrics(s.metrics),
		WithBcryptCost(bcrypt.MinCost),
		WithTokenTTL(30*time.Minute),
		WithAdminEmails([]string{" Auditor@Receita.example "}),
	)
}

func (s *ServiceSuite) register(email, password string) *models.User {
	u, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: email, Password: password})
	s.Require().NoError(err)
	return u
}

func (s *ServiceSuite) TestRegister() {
	s.Run("stores a bcrypt hash, never the password", func() {
		u := s.register("joao.souza@example.com", "correct-horse")

		s.Equal("Joao Souza", u.FullName)
		s.Equal(fixedNow, u.CreatedAt)
		s.NotEqual("correct-horse", u.PasswordHash)
		s.NoError(bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct-horse")))

		events, err := s.audit.ListByUser(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(string(audit.EventUserRegistered), events[0].Action)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.UsersCreated))
	})

	s.Run("email is unique regardless of case", func() {
		_, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: "JOAO.SOUZA@example.com", Password: "another-pass"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("regular users are not admins", func() {
		u, err := s.store.FindByEmail(s.ctx, "joao.souza@example.com")
		s.Require().NoError(err)
		admin, err := s.service.IsAdmin(s.ctx, u.ID)
		s.Require().NoError(err)
		s.False(admin)
	})

	s.Run("configured admin emails get the role", func() {
		u := s.register("auditor@receita.example", "correct-horse")
		admin, err := s.service.IsAdmin(s.ctx, u.ID)
		s.Require().NoError(err)
		s.True(admin)
	})

	s.Run("invalid input never reaches the store", func() {
		_, err := s.service.Register(s.ctx, &models.RegisterRequest{Email: "x@example.com", Password: "short"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.store.FindByEmail(s.ctx, "x@example.com")
		s.Error(err)
	})
}

func (s *ServiceSuite) TestLogin() {
	u := s.register("ana@example.com", "correct-horse")

	s.Run("issues a token for the user", func() {
		res, err := s.service.Login(s.ctx, &models.LoginRequest{Email: "ANA@example.com", Password: "correct-horse"})
		s.Require().NoError(err)

		s.Equal("Bearer", res.TokenType)
		s.Equal(u.ID, res.UserID)
		s.Equal(fixedNow.Add(30*time.Minute), res.ExpiresAt)

		claims, err := s.jwt.ValidateToken(res.AccessToken)
		s.Require().NoError(err)
		s.Equal(u.ID.String(), claims.UserID)
		s.Equal(1.0, promtest.ToFloat64(s.metrics.Logins.WithLabelValues("success")))
	})

	s.Run("wrong password", func() {
		_, err := s.service.Login(s.ctx, &models.LoginRequest{Email: "ana@example.com", Password: "wrong-horse"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		events, err := s.audit.ListByUser(s.ctx, u.ID)
		s.Require().NoError(err)
		last := events[len(events)-1]
		s.Equal(string(audit.EventLoginFailed), last.Action)
		s.Equal("203.0.113.7", last.Detail)
	})

	s.Run("unknown email looks the same", func() {
		_, err := s.service.Login(s.ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "correct-horse"})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal("invalid email or password", err.Error())
		s.Equal(2.0, promtest.ToFloat64(s.metrics.Logins.WithLabelValues("failure")))
	})
}

func (s *ServiceSuite) TestUsers() {
	a := s.register("a@example.com", "correct-horse")
	s.register("b@example.com", "correct-horse")

	users, err := s.service.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Len(users, 2)

	got, err := s.service.GetUser(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal("a@example.com", got.Email)

	_, err = s.service.GetUser(s.ctx, id.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type brokenStore struct {
	*store.InMemory
}

func (brokenStore) FindByEmail(context.Context, string) (*models.User, error) {
	return nil, errors.New("connection refused")
}

func (s *ServiceSuite) TestLogin_StoreFailureIsInternal() {
	svc := New(brokenStore{store.NewInMemory()}, s.jwt, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err := svc.Login(s.ctx, &models.LoginRequest{Email: "a@example.com", Password: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
