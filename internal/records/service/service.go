// Package service implements owner-scoped record operations on top of the
// generic record store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"irpf/internal/aggregate"
	"irpf/internal/records/metrics"
	"irpf/internal/records/models"
	"irpf/pkg/attrs"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	audit "irpf/pkg/platform/audit"
	"irpf/pkg/platform/sentinel"
	"irpf/pkg/requestcontext"
)

// Store is the generic, owner-scoped record repository.
type Store interface {
	Create(ctx context.Context, record *models.Record) error
	ListByOwner(ctx context.Context, owner id.UserID, filter models.Filter) ([]*models.Record, error)
	FindByOwnerAndID(ctx context.Context, owner id.UserID, recordID id.RecordID) (*models.Record, error)
	UpdateByOwner(ctx context.Context, record *models.Record) error
	DeleteByOwnerAndID(ctx context.Context, owner id.UserID, recordID id.RecordID) error
}

// LockGate runs a record write under the declaration locks of the years it
// touches. It returns a CodeLocked error without calling fn while any of those
// years is submitted.
type LockGate interface {
	WithYearsUnlocked(ctx context.Context, owner id.UserID, years []int, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates record mutations: rule validation, declaration locks,
// uniqueness and audit.
type Service struct {
	store          Store
	gate           LockGate
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
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

// WithLockGate wires the declaration lifecycle. Without it no year is locked.
func WithLockGate(gate LockGate) Option {
	return func(s *Service) {
		s.gate = gate
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListRecords returns the owner's records matching filter, newest first.
func (s *Service) ListRecords(ctx context.Context, owner id.UserID, filter models.Filter) ([]*models.Record, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing owner")
	}
	if filter.Category != "" && !filter.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown record category")
	}
	records, err := s.store.ListByOwner(ctx, owner, filter)
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to list records")
	}
	if records == nil {
		records = []*models.Record{}
	}
	return records, nil
}

// GetRecord returns one record of category owned by owner.
func (s *Service) GetRecord(ctx context.Context, owner id.UserID, category models.Category, recordID id.RecordID) (*models.Record, error) {
	return s.load(ctx, owner, category, recordID)
}

// CreateRecord validates and stores a new record. With in.Upsert an existing
// operation row for the same key is updated instead.
func (s *Service) CreateRecord(ctx context.Context, owner id.UserID, category models.Category, in models.RecordInput) (*models.Record, error) {
	now := requestcontext.Now(ctx)
	rec, err := models.NewRecord(id.NewRecordID(), owner, category, in, now)
	if err != nil {
		return nil, err
	}

	var upserted *models.Record
	err = s.guard(ctx, func(ctx context.Context) error {
		siblings, err := s.siblings(ctx, rec)
		if err != nil {
			return err
		}
		if in.Upsert && category.IsOperation() {
			if target := findByKey(siblings, rec.Key()); target != nil {
				updated := target.Clone()
				if err := updated.ApplyInput(in, now); err != nil {
					return err
				}
				upserted = updated
				return s.storeUpdate(ctx, updated, siblings)
			}
		}

		if err := s.validate(ctx, rec, siblings, aggregate.Intent{Update: in.Upsert}); err != nil {
			return err
		}
		if err := s.store.Create(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				s.countConflict(category)
				return conflictError(rec)
			}
			return s.storageError(ctx, err, "failed to create record")
		}
		return nil
	}, rec)
	if err != nil {
		return nil, err
	}
	if upserted != nil {
		s.updated(ctx, upserted)
		return upserted, nil
	}

	s.logAudit(ctx, string(audit.EventRecordCreated),
		"user_id", owner,
		"subject", rec.ID,
		"detail", string(category),
	)
	if s.metrics != nil {
		s.metrics.RecordsCreated.WithLabelValues(string(category)).Inc()
	}
	return rec, nil
}

// UpdateRecord merges a partial update into an existing record. Disposed
// assets and settled debts are kept as they were and cannot be edited.
func (s *Service) UpdateRecord(ctx context.Context, owner id.UserID, category models.Category, recordID id.RecordID, in models.RecordInput) (*models.Record, error) {
	current, err := s.load(ctx, owner, category, recordID)
	if err != nil {
		return nil, err
	}
	if category.Rule().Lifecycle != models.LifecycleNone && !current.IsActive() {
		return nil, dErrors.Rejected(models.ReasonIllegalStatusTransition,
			fmt.Sprintf("record is %s and can no longer change", current.Status))
	}
	updated := current.Clone()
	if err := updated.ApplyInput(in, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}

	err = s.guard(ctx, func(ctx context.Context) error {
		siblings, err := s.siblings(ctx, updated)
		if err != nil {
			return err
		}
		return s.storeUpdate(ctx, updated, siblings)
	}, current, updated)
	if err != nil {
		return nil, err
	}
	s.updated(ctx, updated)
	return updated, nil
}

func (s *Service) storeUpdate(ctx context.Context, updated *models.Record, siblings []*models.Record) error {
	if err := s.validate(ctx, updated, siblings, aggregate.Intent{}); err != nil {
		return err
	}
	if err := s.store.UpdateByOwner(ctx, updated); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "record not found")
		case errors.Is(err, sentinel.ErrConflict):
			s.countConflict(updated.Category)
			return conflictError(updated)
		}
		return s.storageError(ctx, err, "failed to update record")
	}
	return nil
}

func (s *Service) updated(ctx context.Context, updated *models.Record) {
	s.logAudit(ctx, string(audit.EventRecordUpdated),
		"user_id", updated.OwnerID,
		"subject", updated.ID,
		"detail", string(updated.Category),
	)
	if s.metrics != nil {
		s.metrics.RecordsUpdated.WithLabelValues(string(updated.Category)).Inc()
	}
}

// DeleteRecord hard-deletes a record. Another owner's record is NotFound.
func (s *Service) DeleteRecord(ctx context.Context, owner id.UserID, category models.Category, recordID id.RecordID) error {
	current, err := s.load(ctx, owner, category, recordID)
	if err != nil {
		return err
	}
	err = s.guard(ctx, func(ctx context.Context) error {
		if err := s.store.DeleteByOwnerAndID(ctx, owner, recordID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "record not found")
			}
			return s.storageError(ctx, err, "failed to delete record")
		}
		return nil
	}, current)
	if err != nil {
		return err
	}

	s.logAudit(ctx, string(audit.EventRecordDeleted),
		"user_id", owner,
		"subject", recordID,
		"detail", string(category),
	)
	if s.metrics != nil {
		s.metrics.RecordsDeleted.WithLabelValues(string(category)).Inc()
	}
	return nil
}

// DisposeRecord moves an active asset to disposed or an active debt to
// settled. The row is kept.
func (s *Service) DisposeRecord(ctx context.Context, owner id.UserID, category models.Category, recordID id.RecordID) (*models.Record, error) {
	current, err := s.load(ctx, owner, category, recordID)
	if err != nil {
		return nil, err
	}
	if err := current.CanDispose(); err != nil {
		return nil, err
	}
	current.ApplyDisposal(requestcontext.Now(ctx))
	err = s.guard(ctx, func(ctx context.Context) error {
		if err := s.store.UpdateByOwner(ctx, current); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "record not found")
			}
			return s.storageError(ctx, err, "failed to dispose record")
		}
		return nil
	}, current)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventRecordDisposed),
		"user_id", owner,
		"subject", recordID,
		"detail", string(current.Status),
	)
	if s.metrics != nil {
		s.metrics.RecordsDisposed.WithLabelValues(string(category)).Inc()
	}
	return current, nil
}

func (s *Service) load(ctx context.Context, owner id.UserID, category models.Category, recordID id.RecordID) (*models.Record, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing owner")
	}
	rec, err := s.store.FindByOwnerAndID(ctx, owner, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, s.storageError(ctx, err, "failed to load record")
	}
	if rec.Category != category {
		return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	return rec, nil
}

// siblings returns the owner's records of the same category and period, the
// set a submission is checked against.
func (s *Service) siblings(ctx context.Context, rec *models.Record) ([]*models.Record, error) {
	if !rec.Category.IsOperation() || rec.Period.IsZero() {
		return nil, nil
	}
	records, err := s.store.ListByOwner(ctx, rec.OwnerID, models.Filter{Category: rec.Category, Period: rec.Period})
	if err != nil {
		return nil, s.storageError(ctx, err, "failed to load records for period")
	}
	return records, nil
}

func (s *Service) validate(ctx context.Context, rec *models.Record, siblings []*models.Record, intent aggregate.Intent) error {
	err := aggregate.ValidateSubmission(rec, siblings, intent)
	if err == nil {
		return nil
	}
	reason := dErrors.ReasonOf(err)
	if reason == aggregate.ReasonDuplicatePeriodKey {
		s.countConflict(rec.Category)
		return conflictError(rec)
	}
	if s.metrics != nil {
		s.metrics.Rejections.WithLabelValues(string(rec.Category), string(reason)).Inc()
	}
	s.logger.InfoContext(ctx, "record submission rejected",
		"request_id", requestcontext.RequestID(ctx),
		"category", string(rec.Category),
		"reason", string(reason),
	)
	return err
}

// guard runs write under the declaration locks of the years recs are dated
// in. Undated and non period-keyed records take no lock.
func (s *Service) guard(ctx context.Context, write func(ctx context.Context) error, recs ...*models.Record) error {
	var (
		years   []int
		periods []string
	)
	for _, rec := range recs {
		if !rec.Category.Rule().PeriodKeyed || rec.Period.IsZero() {
			continue
		}
		years = append(years, rec.Period.Year)
		if p := rec.Period.String(); !slices.Contains(periods, p) {
			periods = append(periods, p)
		}
	}
	if s.gate == nil || len(years) == 0 {
		return write(ctx)
	}
	err := s.gate.WithYearsUnlocked(ctx, recs[0].OwnerID, years, write)
	if err != nil && dErrors.HasCode(err, dErrors.CodeLocked) {
		if s.metrics != nil {
			s.metrics.LockedMutations.Inc()
		}
		s.logAudit(ctx, string(audit.EventRecordLocked),
			"user_id", recs[0].OwnerID,
			"subject", recs[0].ID,
			"detail", strings.Join(periods, ","),
		)
	}
	return err
}

func (s *Service) countConflict(category models.Category) {
	if s.metrics != nil {
		s.metrics.Conflicts.WithLabelValues(string(category)).Inc()
	}
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

func findByKey(records []*models.Record, key models.OperationKey) *models.Record {
	for _, r := range records {
		if r.Key() == key {
			return r
		}
	}
	return nil
}

func conflictError(rec *models.Record) error {
	return &dErrors.Error{
		Code:    dErrors.CodeConflict,
		Message: rec.Category.String() + " already exists for " + string(rec.InstrumentClass) + " " + rec.Period.String(),
		Reason:  aggregate.ReasonDuplicatePeriodKey,
	}
}
