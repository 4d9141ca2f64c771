package models

import (
	"fmt"
	"strings"
	"time"

	"irpf/internal/aggregate"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/money"
)

// Status is the lifecycle state of a yearly declaration.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusReadyForReview Status = "ready_for_review"
	StatusSubmitted      Status = "submitted"
	StatusAmended        Status = "amended"
)

// ReasonIllegalTransition rejects a target state not reachable from the
// current one.
const ReasonIllegalTransition dErrors.Reason = "illegal_transition"

// ReasonNotReady rejects draft -> ready_for_review while the aggregate still
// has validation rejections.
const ReasonNotReady dErrors.Reason = "aggregate_not_ready"

// MinYear and MaxYear bound the fiscal years a declaration can be opened for.
const (
	MinYear = 1900
	MaxYear = 9999
)

var transitions = map[Status][]Status{
	StatusDraft:          {StatusReadyForReview},
	StatusReadyForReview: {StatusSubmitted, StatusDraft},
	StatusSubmitted:      {StatusAmended},
	StatusAmended:        {StatusSubmitted},
}

func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether target is reachable in one step.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ParseStatus normalizes a user-supplied state name.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown declaration status %q", s))
	}
	return st, nil
}

// Declaration is the per-owner, per-year filing.
//
// Invariants:
//   - (OwnerID, Year) is unique
//   - Revision counts submissions; it only grows
//   - SubmittedAt is set on the first submission and updated on each re-filing
//   - Records of Year are locked while Status is submitted
type Declaration struct {
	ID          id.DeclarationID `json:"id"`
	OwnerID     id.UserID        `json:"owner_id"`
	Year        int              `json:"year"`
	Status      Status           `json:"status"`
	Revision    int              `json:"revision"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
}

func NewDeclaration(declarationID id.DeclarationID, owner id.UserID, year int, now time.Time) (*Declaration, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing owner")
	}
	if err := ValidateYear(year); err != nil {
		return nil, err
	}
	return &Declaration{
		ID:        declarationID,
		OwnerID:   owner,
		Year:      year,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateYear checks that year is a plausible fiscal year.
func ValidateYear(year int) error {
	if year < MinYear || year > MaxYear {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid declaration year: %d", year))
	}
	return nil
}

// IsLocked reports whether the year's period-keyed records are frozen.
func (d *Declaration) IsLocked() bool {
	return d.Status == StatusSubmitted
}

// CanTransition checks that target is reachable from the current state.
// Use with ApplyTransition in Execute callbacks.
func (d *Declaration) CanTransition(target Status) error {
	if !target.IsValid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown declaration status %q", target))
	}
	if !d.Status.CanTransitionTo(target) {
		return dErrors.Rejected(ReasonIllegalTransition,
			fmt.Sprintf("cannot move declaration %d from %s to %s", d.Year, d.Status, target))
	}
	return nil
}

// ApplyTransition moves the declaration to target. Submitting bumps the
// revision and stamps SubmittedAt. Call CanTransition first.
func (d *Declaration) ApplyTransition(target Status, now time.Time) {
	d.Status = target
	d.UpdatedAt = now
	if target == StatusSubmitted {
		d.Revision++
		at := now
		d.SubmittedAt = &at
	}
}

// CanDelete refuses removing a filing that has been submitted at least once.
func (d *Declaration) CanDelete() error {
	if d.Revision > 0 {
		return dErrors.Rejected(ReasonIllegalTransition,
			fmt.Sprintf("declaration %d has been submitted and cannot be deleted", d.Year))
	}
	return nil
}

// Clone returns a copy safe to hand out of a store.
func (d *Declaration) Clone() *Declaration {
	c := *d
	if d.SubmittedAt != nil {
		at := *d.SubmittedAt
		c.SubmittedAt = &at
	}
	return &c
}

// Snapshot freezes the aggregate figures at one submission. Snapshots are
// append-only; an amendment files a new revision.
type Snapshot struct {
	ID            id.SnapshotID    `json:"id"`
	DeclarationID id.DeclarationID `json:"declaration_id"`
	Revision      int              `json:"revision"`
	Payload       SnapshotPayload  `json:"payload"`
	RecordIDs     []id.RecordID    `json:"record_ids"`
	CreatedAt     time.Time        `json:"created_at"`
}

// SnapshotPayload is the JSON document stored with each snapshot.
type SnapshotPayload struct {
	Totals        aggregate.Totals         `json:"totals"`
	NetWorthDelta money.Amount             `json:"net_worth_delta"`
	TaxableEvents []aggregate.TaxableEvent `json:"taxable_events"`
	Jump          *aggregate.Jump          `json:"net_worth_jump,omitempty"`
}

// NewSnapshot captures agg for the declaration's current revision.
func NewSnapshot(snapshotID id.SnapshotID, d *Declaration, agg *aggregate.Aggregate, jump *aggregate.Jump, now time.Time) *Snapshot {
	return &Snapshot{
		ID:            snapshotID,
		DeclarationID: d.ID,
		Revision:      d.Revision,
		Payload: SnapshotPayload{
			Totals:        aggregate.TotalByCategory(agg),
			NetWorthDelta: aggregate.NetWorthDelta(agg),
			TaxableEvents: aggregate.TaxableEvents(agg),
			Jump:          jump,
		},
		RecordIDs: agg.RecordIDs(),
		CreatedAt: now,
	}
}
