package models

import (
	"strings"
	"time"

	dErrors "irpf/pkg/domain-errors"
	"irpf/pkg/money"
)

// RecordRequest is the JSON body for creating or updating a record. There is
// no owner field; the owner always comes from the authenticated identity.
type RecordRequest struct {
	Amount          *money.Amount     `json:"amount"`
	Period          string            `json:"period"`
	Date            string            `json:"date"`
	InstrumentClass string            `json:"instrument_class"`
	Buys            *money.Amount     `json:"buys"`
	Sells           *money.Amount     `json:"sells"`
	Details         map[string]string `json:"details"`
	Upsert          bool              `json:"upsert"`

	input RecordInput
}

// Validate parses the string fields. Category rules are checked later by the
// service against existing state.
func (r *RecordRequest) Validate() error {
	in := RecordInput{
		Amount:          r.Amount,
		InstrumentClass: InstrumentClass(strings.ToUpper(strings.TrimSpace(r.InstrumentClass))),
		Buys:            r.Buys,
		Sells:           r.Sells,
		Details:         r.Details,
		Upsert:          r.Upsert,
	}
	if p := strings.TrimSpace(r.Period); p != "" {
		period, err := ParsePeriod(p)
		if err != nil {
			return err
		}
		in.Period = period
	}
	if d := strings.TrimSpace(r.Date); d != "" {
		t, err := time.Parse(time.DateOnly, d)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "invalid date, expected YYYY-MM-DD")
		}
		in.Date = &t
	}
	for k := range r.Details {
		if len(k) > 64 {
			return dErrors.New(dErrors.CodeValidation, "detail key too long")
		}
	}
	r.input = in
	return nil
}

// Input returns the parsed payload. Call Validate first.
func (r *RecordRequest) Input() RecordInput {
	return r.input
}
