// Package service registers users, verifies credentials and resolves the
// admin capability.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"irpf/internal/identity/metrics"
	"irpf/internal/identity/models"
	"irpf/internal/identity/secrets"
	"irpf/pkg/attrs"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	audit "irpf/pkg/platform/audit"
	"irpf/pkg/platform/device"
	"irpf/pkg/platform/sentinel"
	"irpf/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	HasRole(ctx context.Context, userID id.UserID, role models.Role) (bool, error)
	GrantRole(ctx context.Context, userID id.UserID, role models.Role, now time.Time) error
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, now time.Time, ttl time.Duration) (string, time.Time, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store          Store
	tokens         TokenIssuer
	tokenTTL       time.Duration
	bcryptCost     int
	adminEmails    []string
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics

	// dummyHash is compared against when the email is unknown so both login
	// failure paths cost one bcrypt comparison.
	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.tokenTTL = ttl
	}
}

// WithBcryptCost lowers hashing cost in tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// WithAdminEmails grants the admin role to these addresses when they register.
func WithAdminEmails(emails []string) Option {
	return func(s *Service) {
		for _, e := range emails {
			if n := models.NormalizeEmail(e); n != "" {
				s.adminEmails = append(s.adminEmails, n)
			}
		}
	}
}

func New(store Store, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		tokens:   tokens,
		tokenTTL: time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user with a bcrypt password hash. Emails are unique.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := secrets.Hash(req.Password, s.bcryptCost)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	user := models.NewUser(id.NewUserID(), req, hash, now)
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, s.storageError(ctx, err, "failed to create user")
	}
	if slices.Contains(s.adminEmails, user.Email) {
		if err := s.store.GrantRole(ctx, user.ID, models.RoleAdmin, now); err != nil {
			return nil, s.storageError(ctx, err, "failed to grant admin role")
		}
	}

	s.logAudit(ctx, string(audit.EventUserRegistered),
		"user_id", user.ID,
		"subject", user.Email,
	)
	if s.metrics != nil {
		s.metrics.UsersCreated.Inc()
	}
	return user, nil
}

// Login verifies credentials and issues an access token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.storageError(ctx, err, "failed to load user")
		}
		_ = secrets.Verify(req.Password, s.timingHash())
		return nil, s.loginFailed(ctx, id.UserID{}, req.Email)
	}
	if err := secrets.Verify(req.Password, user.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, s.loginFailed(ctx, user.ID, req.Email)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(user.ID, requestcontext.Now(ctx), s.tokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.logAudit(ctx, string(audit.EventLoginSucceeded),
		"user_id", user.ID,
		"subject", user.Email,
		"detail", requestcontext.ClientIP(ctx),
		"device", device.ParseUserAgent(requestcontext.UserAgent(ctx)),
	)
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues("success").Inc()
	}
	return &models.TokenResult{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		UserID:      user.ID,
	}, nil
}

func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = secrets.Hash("irpf-unknown-user", s.bcryptCost)
	})
	return s.dummyHash
}

func (s *Service) loginFailed(ctx context.Context, userID id.UserID, email string) error {
	s.logAudit(ctx, string(audit.EventLoginFailed),
		"user_id", userID,
		"subject", email,
		"detail", requestcontext.ClientIP(ctx),
		"device", device.ParseUserAgent(requestcontext.UserAgent(ctx)),
	)
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues("failure").Inc()
	}
	return dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, s.storageError(ctx, err, "failed to load user")
	}
	return u, nil
}

// ListUsers returns every registered user. Callers gate it on the admin capability.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to list users")
	}
	return out, nil
}

// IsAdmin implements the auth middleware's capability check.
func (s *Service) IsAdmin(ctx context.Context, userID id.UserID) (bool, error) {
	return s.store.HasRole(ctx, userID, models.RoleAdmin)
}

func (s *Service) storageError(ctx context.Context, err error, msg string) error {
	s.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
	if s.auditPublisher == nil {
		return
	}
	userID, _ := id.ParseUserID(attrs.ExtractString(attributes, "user_id"))
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		UserID:    userID,
		Subject:   attrs.ExtractString(attributes, "subject"),
		Action:    event,
		Detail:    attrs.ExtractString(attributes, "detail"),
		RequestID: requestID,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event, "error", err)
	}
}
