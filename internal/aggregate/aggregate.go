// Package aggregate composes a user's records into the per-year financial
// picture of a declaration and derives totals, net worth and taxable events
// from it.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"irpf/internal/records/models"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Aggregate is the read-only projection of one owner's records for a year.
// Period-keyed lists hold only records dated in Year; assets and debts are
// included regardless of year.
type Aggregate struct {
	Owner         id.UserID        `json:"owner_id"`
	Year          int              `json:"year"`
	Incomes       []*models.Record `json:"incomes"`
	Assets        []*models.Record `json:"assets"`
	Debts         []*models.Record `json:"debts"`
	Deductions    []*models.Record `json:"deductions"`
	Donations     []*models.Record `json:"donations"`
	TaxesPaid     []*models.Record `json:"taxes_paid"`
	ForeignIncome []*models.Record `json:"foreign_income"`
	StockResults  []*models.Record `json:"stock_results"`
	FIIResults    []*models.Record `json:"fii_results"`
}

// List returns the records of one category.
func (a *Aggregate) List(c models.Category) []*models.Record {
	if p := a.slot(c); p != nil {
		return *p
	}
	return nil
}

func (a *Aggregate) slot(c models.Category) *[]*models.Record {
	switch c {
	case models.CategoryIncome:
		return &a.Incomes
	case models.CategoryAsset:
		return &a.Assets
	case models.CategoryDebt:
		return &a.Debts
	case models.CategoryDeductibleExpense:
		return &a.Deductions
	case models.CategoryDonation:
		return &a.Donations
	case models.CategoryTaxPaid:
		return &a.TaxesPaid
	case models.CategoryForeignIncome:
		return &a.ForeignIncome
	case models.CategoryStockOperation:
		return &a.StockResults
	case models.CategoryFIIOperation:
		return &a.FIIResults
	}
	return nil
}

// All returns every record in category order.
func (a *Aggregate) All() []*models.Record {
	var out []*models.Record
	for _, c := range models.Categories {
		out = append(out, a.List(c)...)
	}
	return out
}

// RecordIDs returns the ids of every record in category order.
func (a *Aggregate) RecordIDs() []id.RecordID {
	all := a.All()
	ids := make([]id.RecordID, 0, len(all))
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	return ids
}

// PeriodScopedCount counts records dated within the aggregate year.
func (a *Aggregate) PeriodScopedCount() int {
	n := 0
	for _, r := range a.All() {
		if !r.Period.IsZero() {
			n++
		}
	}
	return n
}

// RecordLister is the read side of the record store.
type RecordLister interface {
	ListByOwner(ctx context.Context, owner id.UserID, filter models.Filter) ([]*models.Record, error)
}

// Builder assembles aggregates from the record store.
type Builder struct {
	records RecordLister
	logger  *slog.Logger
	tracer  trace.Tracer
	observe func(start time.Time)
}

type Option func(*Builder)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithLatencyObserver records build latency, typically into a histogram.
func WithLatencyObserver(observe func(start time.Time)) Option {
	return func(b *Builder) {
		b.observe = observe
	}
}

func NewBuilder(records RecordLister, opts ...Option) *Builder {
	b := &Builder{
		records: records,
		logger:  slog.Default(),
		tracer:  otel.Tracer("irpf/aggregate"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildAggregate fetches every category concurrently and checks that the
// union is consistent: no record twice and every record owned by owner.
func (b *Builder) BuildAggregate(ctx context.Context, owner id.UserID, year int) (*Aggregate, error) {
	start := time.Now()
	ctx, span := b.tracer.Start(ctx, "aggregate.Build", trace.WithAttributes(
		attribute.String("owner_id", owner.String()),
		attribute.Int("year", year),
	))
	defer span.End()
	if b.observe != nil {
		defer b.observe(start)
	}

	agg := &Aggregate{Owner: owner, Year: year}
	lists := make([][]*models.Record, len(models.Categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range models.Categories {
		g.Go(func() error {
			records, err := b.records.ListByOwner(gctx, owner, models.Filter{Category: category, Year: year})
			if err != nil {
				return fmt.Errorf("list %s: %w", category, err)
			}
			lists[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		b.logger.ErrorContext(ctx, "failed to build aggregate",
			"user_id", owner.String(),
			"year", year,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load records")
	}

	for i, category := range models.Categories {
		*agg.slot(category) = lists[i]
	}

	if err := agg.checkConsistency(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inconsistent aggregate")
		b.logger.ErrorContext(ctx, "aggregate invariant breach",
			"user_id", owner.String(),
			"year", year,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "inconsistent aggregate")
	}
	span.SetAttributes(attribute.Int("records", len(agg.All())))
	return agg, nil
}

func (a *Aggregate) checkConsistency() error {
	seen := make(map[id.RecordID]models.Category)
	for _, c := range models.Categories {
		for _, r := range a.List(c) {
			if r.OwnerID != a.Owner {
				return fmt.Errorf("record %s belongs to another owner", r.ID)
			}
			if r.Category != c {
				return fmt.Errorf("record %s of category %s listed under %s", r.ID, r.Category, c)
			}
			if prev, dup := seen[r.ID]; dup {
				return fmt.Errorf("record %s appears in %s and %s", r.ID, prev, c)
			}
			if !r.Period.IsZero() && r.Period.Year != a.Year {
				return fmt.Errorf("record %s dated %s outside year %d", r.ID, r.Period, a.Year)
			}
			seen[r.ID] = c
		}
	}
	return nil
}
