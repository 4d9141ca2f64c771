package models

import (
	"irpf/internal/aggregate"
	dErrors "irpf/pkg/domain-errors"
)

// TransitionRequest asks to move a declaration to Target.
type TransitionRequest struct {
	Target string `json:"target"`

	status Status
}

func (r *TransitionRequest) Validate() error {
	if r.Target == "" {
		return dErrors.New(dErrors.CodeValidation, "target is required")
	}
	st, err := ParseStatus(r.Target)
	if err != nil {
		return err
	}
	r.status = st
	return nil
}

// Status returns the parsed target. Call Validate first.
func (r *TransitionRequest) Status() Status {
	return r.status
}

// AggregateView is the response for a year's aggregate with its derived figures.
type AggregateView struct {
	Aggregate *aggregate.Aggregate `json:"aggregate"`
	Summary   aggregate.Summary    `json:"summary"`
}
