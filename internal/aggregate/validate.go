package aggregate

import (
	"fmt"
	"strings"

	"irpf/internal/records/models"
	id "irpf/pkg/domain"
	dErrors "irpf/pkg/domain-errors"
)

// Rejection reasons returned by ValidateSubmission.
const (
	ReasonNegativeAmount     dErrors.Reason = "negative_amount"
	ReasonDuplicatePeriodKey dErrors.Reason = "duplicate_period_key"
	ReasonMissingPeriod      dErrors.Reason = "missing_period"
	ReasonMissingDetail      dErrors.Reason = "missing_detail"
	ReasonInvalidInstrument  dErrors.Reason = "invalid_instrument"
)

// Intent qualifies a submission. Update means a colliding operation row is
// the target of the write, not a duplicate.
type Intent struct {
	Update bool
}

// ValidateSubmission checks rec against its category rule and the owner's
// existing records for the same period. rec itself may appear in existing
// and is ignored there.
func ValidateSubmission(rec *models.Record, existing []*models.Record, intent Intent) error {
	rule := rec.Category.Rule()

	if rule.PeriodKeyed && rec.Period.IsZero() {
		return dErrors.Rejected(ReasonMissingPeriod,
			fmt.Sprintf("%s requires a reference period", rec.Category))
	}
	if !rule.AllowNegative && rec.Amount.IsNegative() {
		return dErrors.Rejected(ReasonNegativeAmount,
			fmt.Sprintf("%s amount must not be negative", rec.Category))
	}
	if rule.UniqueByInstrument {
		if rec.Buys.IsNegative() || rec.Sells.IsNegative() {
			return dErrors.Rejected(ReasonNegativeAmount, "buys and sells must not be negative")
		}
		if !rule.Allows(rec.InstrumentClass) {
			return dErrors.Rejected(ReasonInvalidInstrument,
				fmt.Sprintf("instrument class %q is not valid for %s", rec.InstrumentClass, rec.Category))
		}
	}
	for _, key := range rule.RequiredDetails {
		if strings.TrimSpace(rec.Details[key]) == "" {
			return dErrors.Rejected(ReasonMissingDetail,
				fmt.Sprintf("%s requires %s", rec.Category, key))
		}
	}
	if rule.UniqueByInstrument && !intent.Update {
		key := rec.Key()
		for _, other := range existing {
			if other.ID == rec.ID {
				continue
			}
			if other.Key() == key {
				return dErrors.Rejected(ReasonDuplicatePeriodKey,
					fmt.Sprintf("%s for %s %s already exists", rec.Category, key.Instrument, key.Period))
			}
		}
	}
	return nil
}

// Rejection is one failed check found by ValidateAggregate.
type Rejection struct {
	RecordID id.RecordID     `json:"record_id"`
	Category models.Category `json:"category"`
	Reason   dErrors.Reason  `json:"reason"`
	Message  string          `json:"message"`
}

// ValidateAggregate re-runs submission checks on every record against its
// siblings. An empty result means the year is ready for review.
func ValidateAggregate(a *Aggregate) []Rejection {
	var out []Rejection
	for _, c := range models.Categories {
		siblings := a.List(c)
		for _, r := range siblings {
			err := ValidateSubmission(r, siblings, Intent{})
			if err == nil {
				continue
			}
			de, _ := dErrors.As(err)
			rej := Rejection{RecordID: r.ID, Category: c, Message: err.Error()}
			if de != nil {
				rej.Reason = de.Reason
			}
			out = append(out, rej)
		}
	}
	return out
}
