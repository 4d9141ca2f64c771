// Package service drives the declaration lifecycle: opening a year, moving it
// through review and submission, snapshotting submitted figures and locking
// the year's records while it is filed.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"irpf/internal/aggregate"
	"irpf/internal/declaration/lock"
	"irpf/internal/declaration/metrics"
	"irpf/internal/declaration/models"
	"irpf/pkg/attrs"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/money"
	audit "irpf/pkg/platform/audit"
	"irpf/pkg/platform/sentinel"
	"irpf/pkg/requestcontext"
)

// ReasonRecordsAttached refuses deleting a declaration while records dated in
// its year exist and the caller did not ask to detach them.
const ReasonRecordsAttached dErrors.Reason = "records_attached"

// Store persists declarations. Execute runs validate then mutate atomically
// and stores the snapshot mutate returns.
type Store interface {
	Create(ctx context.Context, d *models.Declaration) error
	FindByOwnerAndYear(ctx context.Context, owner id.UserID, year int) (*models.Declaration, error)
	FindForShare(ctx context.Context, owner id.UserID, year int) (*models.Declaration, error)
	ListByOwner(ctx context.Context, owner id.UserID) ([]*models.Declaration, error)
	ListByYear(ctx context.Context, year int) ([]*models.Declaration, error)
	Execute(ctx context.Context, owner id.UserID, year int, validate func(*models.Declaration) error, mutate func(*models.Declaration) *models.Snapshot) (*models.Declaration, error)
	ListSnapshots(ctx context.Context, declarationID id.DeclarationID) ([]*models.Snapshot, error)
	Delete(ctx context.Context, owner id.UserID, year int) error
}

// AggregateBuilder assembles the yearly aggregate of an owner's records.
type AggregateBuilder interface {
	BuildAggregate(ctx context.Context, owner id.UserID, year int) (*aggregate.Aggregate, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DefaultJumpThreshold is the net worth change that flags a submission for review.
var DefaultJumpThreshold = money.MustParse("1000000.00")

type Service struct {
	store          Store
	builder        AggregateBuilder
	locker         lock.Locker
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	jumpThreshold  money.Amount
	runTx          TxRunner
}

// TxRunner runs fn inside one storage transaction carried on ctx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

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

// WithLocker replaces the in-process sharded locker, e.g. with a RedisLocker.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithJumpThreshold(threshold money.Amount) Option {
	return func(s *Service) {
		s.jumpThreshold = threshold
	}
}

// WithTxRunner makes WithYearsUnlocked check the declaration and run the
// record write in a single transaction.
func WithTxRunner(run TxRunner) Option {
	return func(s *Service) {
		s.runTx = run
	}
}

func New(store Store, builder AggregateBuilder, opts ...Option) *Service {
	s := &Service{
		store:         store,
		builder:       builder,
		logger:        slog.Default(),
		tracer:        otel.Tracer("irpf/declaration"),
		jumpThreshold: DefaultJumpThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewShardedLocker()
	}
	if s.runTx == nil {
		s.runTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		}
	}
	return s
}

// Create opens a draft declaration for year.
func (s *Service) Create(ctx context.Context, owner id.UserID, year int) (*models.Declaration, error) {
	d, err := models.NewDeclaration(id.NewDeclarationID(), owner, year, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, d); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("declaration %d already exists", year))
		}
		return nil, s.storageError(ctx, err, "failed to create declaration")
	}

	s.logAudit(ctx, string(audit.EventDeclarationCreated),
		"user_id", owner,
		"subject", d.ID,
		"detail", fmt.Sprint(year),
	)
	if s.metrics != nil {
		s.metrics.DeclarationsCreated.Inc()
	}
	return d, nil
}

// Get returns the owner's declaration for year.
func (s *Service) Get(ctx context.Context, owner id.UserID, year int) (*models.Declaration, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing owner")
	}
	d, err := s.store.FindByOwnerAndYear(ctx, owner, year)
	if err != nil {
		return nil, s.translate(ctx, err, year, "failed to load declaration")
	}
	return d, nil
}

// List returns the owner's declarations, newest year first.
func (s *Service) List(ctx context.Context, owner id.UserID) ([]*models.Declaration, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing owner")
	}
	out, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to list declarations")
	}
	if out == nil {
		out = []*models.Declaration{}
	}
	return out, nil
}

// ListByYear returns every user's declaration for year. Callers gate it on
// the admin capability.
func (s *Service) ListByYear(ctx context.Context, year int) ([]*models.Declaration, error) {
	if err := models.ValidateYear(year); err != nil {
		return nil, err
	}
	out, err := s.store.ListByYear(ctx, year)
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to list declarations")
	}
	if out == nil {
		out = []*models.Declaration{}
	}
	return out, nil
}

// Aggregate builds the owner's aggregate for year with its derived figures.
// No declaration needs to exist.
func (s *Service) Aggregate(ctx context.Context, owner id.UserID, year int) (*models.AggregateView, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing owner")
	}
	if err := models.ValidateYear(year); err != nil {
		return nil, err
	}
	agg, err := s.builder.BuildAggregate(ctx, owner, year)
	if err != nil {
		return nil, err
	}
	return &models.AggregateView{Aggregate: agg, Summary: aggregate.Summarize(agg)}, nil
}

// Transition moves the declaration for year to target.
//
//   - draft -> ready_for_review requires an aggregate without rejections
//   - ready_for_review -> submitted files a snapshot and locks the year
//   - submitted -> amended reopens the year; amended -> submitted re-files
//   - ready_for_review -> draft reopens editing
//
// Anything else is rejected with illegal_transition.
func (s *Service) Transition(ctx context.Context, owner id.UserID, year int, target models.Status) (*models.Declaration, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing owner")
	}
	ctx, span := s.tracer.Start(ctx, "declaration.Transition", trace.WithAttributes(
		attribute.String("owner_id", owner.String()),
		attribute.Int("year", year),
		attribute.String("target", string(target)),
	))
	defer span.End()

	release, err := s.acquire(ctx, owner, year)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer release()

	current, err := s.store.FindByOwnerAndYear(ctx, owner, year)
	if err != nil {
		return nil, s.translate(ctx, err, year, "failed to load declaration")
	}
	if err := current.CanTransition(target); err != nil {
		s.countRejected(err)
		return nil, err
	}

	var (
		agg  *aggregate.Aggregate
		jump *aggregate.Jump
	)
	switch target {
	case models.StatusReadyForReview:
		if agg, err = s.builder.BuildAggregate(ctx, owner, year); err != nil {
			return nil, err
		}
		if rejections := aggregate.ValidateAggregate(agg); len(rejections) > 0 {
			err := dErrors.Rejected(models.ReasonNotReady,
				fmt.Sprintf("%d record(s) fail validation; first: %s", len(rejections), rejections[0].Message))
			s.countRejected(err)
			return nil, err
		}
	case models.StatusSubmitted:
		if agg, err = s.builder.BuildAggregate(ctx, owner, year); err != nil {
			return nil, err
		}
		if jump, err = s.netWorthJump(ctx, owner, year, agg); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	from := current.Status
	updated, err := s.store.Execute(ctx, owner, year,
		func(d *models.Declaration) error {
			return d.CanTransition(target)
		},
		func(d *models.Declaration) *models.Snapshot {
			d.ApplyTransition(target, now)
			if target != models.StatusSubmitted {
				return nil
			}
			return models.NewSnapshot(id.NewSnapshotID(), d, agg, jump, now)
		},
	)
	if err != nil {
		if _, coded := dErrors.As(err); coded {
			s.countRejected(err)
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return nil, s.translate(ctx, err, year, "failed to transition declaration")
	}

	s.logAudit(ctx, string(audit.EventDeclarationTransitioned),
		"user_id", owner,
		"subject", updated.ID,
		"detail", fmt.Sprintf("%s->%s", from, updated.Status),
	)
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(target)).Inc()
	}
	if jump != nil && jump.Flagged {
		s.logAudit(ctx, string(audit.EventNetWorthJumpFlagged),
			"user_id", owner,
			"subject", updated.ID,
			"detail", fmt.Sprintf("%s over %s", jump.Change.Display(), jump.Threshold.Display()),
		)
		if s.metrics != nil {
			s.metrics.NetWorthJumps.Inc()
		}
	}
	span.SetAttributes(attribute.Int("revision", updated.Revision))
	return updated, nil
}

// netWorthJump compares agg with the net worth filed in the latest snapshot
// of the previous year. Without a previous filing there is nothing to compare.
func (s *Service) netWorthJump(ctx context.Context, owner id.UserID, year int, agg *aggregate.Aggregate) (*aggregate.Jump, error) {
	prev, err := s.store.FindByOwnerAndYear(ctx, owner, year-1)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, s.storageError(ctx, err, "failed to load previous declaration")
	}
	snaps, err := s.store.ListSnapshots(ctx, prev.ID)
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to load previous snapshots")
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	latest := snaps[len(snaps)-1]
	jump := aggregate.NetWorthJump(latest.Payload.NetWorthDelta, aggregate.NetWorthDelta(agg), s.jumpThreshold)
	return &jump, nil
}

// Snapshots returns the filed snapshots of the owner's declaration for year.
func (s *Service) Snapshots(ctx context.Context, owner id.UserID, year int) ([]*models.Snapshot, error) {
	d, err := s.Get(ctx, owner, year)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.ListSnapshots(ctx, d.ID)
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to list snapshots")
	}
	return snaps, nil
}

// Delete removes a never-submitted declaration. Records are never deleted;
// while records dated in year exist the call is refused unless detach is set.
func (s *Service) Delete(ctx context.Context, owner id.UserID, year int, detach bool) error {
	if owner.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "missing owner")
	}
	release, err := s.acquire(ctx, owner, year)
	if err != nil {
		return err
	}
	defer release()

	d, err := s.store.FindByOwnerAndYear(ctx, owner, year)
	if err != nil {
		return s.translate(ctx, err, year, "failed to load declaration")
	}
	if err := d.CanDelete(); err != nil {
		return err
	}
	if !detach {
		agg, err := s.builder.BuildAggregate(ctx, owner, year)
		if err != nil {
			return err
		}
		if n := agg.PeriodScopedCount(); n > 0 {
			return dErrors.Rejected(ReasonRecordsAttached,
				fmt.Sprintf("%d record(s) are dated in %d; pass detach_records=true to keep them and delete the declaration", n, year))
		}
	}
	if err := s.store.Delete(ctx, owner, year); err != nil {
		return s.translate(ctx, err, year, "failed to delete declaration")
	}

	s.logAudit(ctx, string(audit.EventDeclarationDeleted),
		"user_id", owner,
		"subject", d.ID,
		"detail", fmt.Sprintf("year=%d detach=%t", year, detach),
	)
	return nil
}

// EnsureUnlocked returns a CodeLocked error while the owner's declaration
// for year is submitted. Years without a declaration are unlocked.
func (s *Service) EnsureUnlocked(ctx context.Context, owner id.UserID, year int) error {
	return s.checkUnlocked(ctx, s.store.FindByOwnerAndYear, owner, year)
}

// WithYearsUnlocked runs fn while holding the declaration locks of years,
// after checking that none of them is submitted. A transition of any of those
// years waits for fn to return, so a write cannot land in a year that was
// filed after the check.
func (s *Service) WithYearsUnlocked(ctx context.Context, owner id.UserID, years []int, fn func(ctx context.Context) error) error {
	if len(years) == 0 {
		return fn(ctx)
	}
	release, err := s.acquire(ctx, owner, years...)
	if err != nil {
		return err
	}
	defer release()

	return s.runTx(ctx, func(ctx context.Context) error {
		for _, year := range years {
			if err := s.checkUnlocked(ctx, s.store.FindForShare, owner, year); err != nil {
				return err
			}
		}
		return fn(ctx)
	})
}

func (s *Service) checkUnlocked(ctx context.Context, find func(context.Context, id.UserID, int) (*models.Declaration, error), owner id.UserID, year int) error {
	d, err := find(ctx, owner, year)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return s.storageError(ctx, err, "failed to check declaration lock")
	}
	if d.IsLocked() {
		return dErrors.New(dErrors.CodeLocked,
			fmt.Sprintf("declaration %d is submitted; amend it before changing its records", year))
	}
	return nil
}

func (s *Service) acquire(ctx context.Context, owner id.UserID, years ...int) (func(), error) {
	start := time.Now()
	release, err := lock.AcquireYears(ctx, s.locker, owner, years)
	if s.metrics != nil {
		s.metrics.LockWait.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.logger.WarnContext(ctx, "declaration lock not acquired",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", owner.String(),
			"years", years,
			"error", err,
		)
		return nil, err
	}
	return release, nil
}

func (s *Service) translate(ctx context.Context, err error, year int, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("declaration %d not found", year))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("declaration %d was changed concurrently", year))
	}
	return s.storageError(ctx, err, msg)
}

func (s *Service) countRejected(err error) {
	if s.metrics == nil {
		return
	}
	reason := string(dErrors.ReasonOf(err))
	if reason == "" {
		reason = string(dErrors.CodeOf(err))
	}
	s.metrics.RejectedTransitions.WithLabelValues(reason).Inc()
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
