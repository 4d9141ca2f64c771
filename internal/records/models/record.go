package models

import (
	"fmt"
	"maps"
	"strings"
	"time"

	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/money"
)

// Status is the soft lifecycle state of assets and debts. Other categories
// leave it empty.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisposed Status = "disposed"
	StatusSettled  Status = "settled"
)

// ReasonIllegalStatusTransition rejects disposal of a record that is not active
// or whose category has no lifecycle.
const ReasonIllegalStatusTransition dErrors.Reason = "illegal_status_transition"

// Details holds the descriptive, category-specific fields (source, creditor,
// recipient...). Rules only check presence.
type Details map[string]string

// Record is one financial record of any category.
//
// Invariants:
//   - OwnerID never changes after creation
//   - Amount is the income/expense/tax amount, the asset value, the debt
//     amount, or the signed monthly result for operations
//   - Period is zero only for categories that are not period keyed
//   - Status only moves forward: active -> disposed (assets), active -> settled (debts)
type Record struct {
	ID              id.RecordID     `json:"id"`
	OwnerID         id.UserID       `json:"owner_id"`
	Category        Category        `json:"category"`
	Amount          money.Amount    `json:"amount"`
	Period          Period          `json:"period"`
	Date            *time.Time      `json:"date,omitempty"`
	Status          Status          `json:"status,omitempty"`
	InstrumentClass InstrumentClass `json:"instrument_class,omitempty"`
	Buys            money.Amount    `json:"buys"`
	Sells           money.Amount    `json:"sells"`
	Details         Details         `json:"details,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OperationKey identifies the one allowed row per owner, month and instrument.
type OperationKey struct {
	Owner      id.UserID
	Category   Category
	Period     Period
	Instrument InstrumentClass
}

// RecordInput is a parsed create or update payload. Nil pointers and empty
// values mean "not provided"; on update they keep the stored value.
type RecordInput struct {
	Amount          *money.Amount
	Period          Period
	Date            *time.Time
	InstrumentClass InstrumentClass
	Buys            *money.Amount
	Sells           *money.Amount
	Details         Details
	// Upsert asks create to update the existing operation row for the same
	// key instead of failing with a conflict.
	Upsert bool
}

// NewRecord builds a record from input, applying category defaults.
func NewRecord(recordID id.RecordID, owner id.UserID, category Category, in RecordInput, now time.Time) (*Record, error) {
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown record category: %s", category))
	}
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing owner")
	}
	rule := category.Rule()
	r := &Record{
		ID:        recordID,
		OwnerID:   owner,
		Category:  category,
		Amount:    money.Zero(),
		Buys:      money.Zero(),
		Sells:     money.Zero(),
		Details:   Details{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rule.Lifecycle != LifecycleNone {
		r.Status = StatusActive
	}
	if rule.UniqueByInstrument {
		r.InstrumentClass = rule.DefaultInstrument
	}
	if in.Amount == nil && !rule.UniqueByInstrument {
		return nil, dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	if err := r.apply(in, true); err != nil {
		return nil, err
	}
	return r, nil
}

// ApplyInput merges a partial update into the record.
func (r *Record) ApplyInput(in RecordInput, now time.Time) error {
	if err := r.apply(in, false); err != nil {
		return err
	}
	r.UpdatedAt = now
	return nil
}

func (r *Record) apply(in RecordInput, creating bool) error {
	if in.Amount != nil {
		r.Amount = *in.Amount
	}
	if in.Date != nil {
		d := in.Date.UTC()
		r.Date = &d
	}
	if !in.Period.IsZero() {
		r.Period = in.Period
	}
	if in.InstrumentClass != "" {
		r.InstrumentClass = InstrumentClass(strings.ToUpper(string(in.InstrumentClass)))
	}
	if in.Buys != nil {
		r.Buys = *in.Buys
	}
	if in.Sells != nil {
		r.Sells = *in.Sells
	}
	if in.Details != nil {
		if r.Details == nil {
			r.Details = Details{}
		}
		for k, v := range in.Details {
			r.Details[k] = strings.TrimSpace(v)
		}
	}

	rule := r.Category.Rule()
	if rule.PeriodKeyed && r.Date != nil {
		switch {
		case in.Period.IsZero() && (creating || in.Date != nil):
			r.Period = PeriodOf(*r.Date)
		case !r.Period.Contains(*r.Date):
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("date %s is outside period %s", r.Date.Format(time.DateOnly), r.Period))
		}
	}
	if !rule.PeriodKeyed && !in.Period.IsZero() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s records are not period keyed", r.Category))
	}
	if rule.UniqueByInstrument && in.Amount == nil && (creating || in.Buys != nil || in.Sells != nil) {
		r.Amount = r.Sells.Sub(r.Buys)
	}
	return nil
}

// Year returns the period year, or 0 for undated records.
func (r *Record) Year() int {
	return r.Period.Year
}

// IsActive reports whether the record counts towards net worth. Categories
// without a lifecycle are always active.
func (r *Record) IsActive() bool {
	return r.Status == "" || r.Status == StatusActive
}

// Key returns the uniqueness key for operation records.
func (r *Record) Key() OperationKey {
	return OperationKey{
		Owner:      r.OwnerID,
		Category:   r.Category,
		Period:     r.Period,
		Instrument: r.InstrumentClass,
	}
}

// CanDispose checks that the record has a lifecycle and is still active.
func (r *Record) CanDispose() error {
	if r.Category.Rule().Lifecycle == LifecycleNone {
		return dErrors.Rejected(ReasonIllegalStatusTransition,
			fmt.Sprintf("%s records have no disposal lifecycle", r.Category))
	}
	if r.Status != StatusActive {
		return dErrors.Rejected(ReasonIllegalStatusTransition,
			fmt.Sprintf("record is already %s", r.Status))
	}
	return nil
}

// ApplyDisposal moves an active record to its terminal status. Call CanDispose first.
func (r *Record) ApplyDisposal(now time.Time) {
	switch r.Category.Rule().Lifecycle {
	case LifecycleDisposable:
		r.Status = StatusDisposed
	case LifecycleSettleable:
		r.Status = StatusSettled
	}
	r.UpdatedAt = now
}

// Clone returns a deep copy safe to hand out of a store.
func (r *Record) Clone() *Record {
	c := *r
	if r.Date != nil {
		d := *r.Date
		c.Date = &d
	}
	c.Details = maps.Clone(r.Details)
	return &c
}

// Filter narrows ListByOwner. Zero fields match everything.
//
// Year matches records dated in that year plus undated records, which
// represent point-in-time state rather than period flow.
type Filter struct {
	Category Category
	Year     int
	Period   Period
}

// Matches reports whether r passes the filter.
func (f Filter) Matches(r *Record) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Year != 0 && !r.Period.IsZero() && r.Period.Year != f.Year {
		return false
	}
	if !f.Period.IsZero() && r.Period != f.Period {
		return false
	}
	return true
}
