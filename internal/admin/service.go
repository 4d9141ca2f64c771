// Package admin serves the operator review surface: the user directory, the
// filings of a year and read-only access to any user's yearly aggregate.
package admin

import (
	"context"
	"log/slog"
	"strconv"

	"irpf/internal/admin/types"
	declarationModels "irpf/internal/declaration/models"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	audit "irpf/pkg/platform/audit"
	"irpf/pkg/requestcontext"
)

// UserDirectory lists users with their admin flag.
type UserDirectory interface {
	ListAll(ctx context.Context) ([]*types.AdminUser, error)
	FindByID(ctx context.Context, userID id.UserID) (*types.AdminUser, error)
}

// DeclarationDirectory reads declarations across owners.
type DeclarationDirectory interface {
	ListByYear(ctx context.Context, year int) ([]*types.AdminDeclaration, error)
	Aggregate(ctx context.Context, owner id.UserID, year int) (*declarationModels.AggregateView, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	users          UserDirectory
	declarations   DeclarationDirectory
	auditPublisher AuditPublisher
	logger         *slog.Logger
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

func NewService(users UserDirectory, declarations DeclarationDirectory, opts ...Option) *Service {
	s := &Service{
		users:        users,
		declarations: declarations,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListUsers(ctx context.Context) (*UsersListResponse, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return toUsersList(users), nil
}

func (s *Service) ListDeclarations(ctx context.Context, year int) (*DeclarationsListResponse, error) {
	if err := declarationModels.ValidateYear(year); err != nil {
		return nil, err
	}
	decls, err := s.declarations.ListByYear(ctx, year)
	if err != nil {
		return nil, err
	}
	return toDeclarationsList(year, decls), nil
}

// UserAggregate builds another user's aggregate for year. Every successful
// read is audited with the acting admin as ActorID.
func (s *Service) UserAggregate(ctx context.Context, userID id.UserID, year int) (*declarationModels.AggregateView, error) {
	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if err := declarationModels.ValidateYear(year); err != nil {
		return nil, err
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	view, err := s.declarations.Aggregate(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, audit.Event{
		UserID:  userID,
		ActorID: actor.String(),
		Subject: strconv.Itoa(year),
		Action:  string(audit.EventAdminAggregateViewed),
	})
	return view, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	s.logger.InfoContext(ctx, event.Action,
		"event", event.Action,
		"log_type", "audit",
		"user_id", event.UserID.String(),
		"actor_id", event.ActorID,
		"subject", event.Subject,
		"request_id", event.RequestID,
	)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
