// Package services implements the queue admission and prioritization engine:
// ticket lifecycle, consultation slots, urgency assessments and priority
// recompute. This file centralizes the classified errors every service method
// returns so that handlers can map them to HTTP results consistently.
package services

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure. Every rejected operation carries one.
type Kind string

const (
	KindValidation         Kind = "validation_error"
	KindNotFound           Kind = "not_found"
	KindInvalidTransition  Kind = "invalid_transition"
	KindSlotOccupied       Kind = "slot_occupied"
	KindNoWaitingTicket    Kind = "no_waiting_ticket"
	KindAllocationFailed   Kind = "allocation_failed"
	KindServiceUnavailable Kind = "service_unavailable"
)

// Error is a classified service error with a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrSlotOccupied       = &Error{Kind: KindSlotOccupied}
	ErrNoWaitingTicket    = &Error{Kind: KindNoWaitingTicket}
	ErrAllocationFailed   = &Error{Kind: KindAllocationFailed}
	ErrServiceUnavailable = &Error{Kind: KindServiceUnavailable}
)

func newErr(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Reason: fmt.Sprintf(format, args...), Err: err}
}

func validation(format string, args ...any) error {
	return newErr(KindValidation, nil, format, args...)
}

func notFound(format string, args ...any) error {
	return newErr(KindNotFound, nil, format, args...)
}

func invalidTransition(format string, args ...any) error {
	return newErr(KindInvalidTransition, nil, format, args...)
}

// unavailable wraps a storage failure that could not be recovered.
func unavailable(err error, op string) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return newErr(KindServiceUnavailable, err, "%s", op)
}

// KindOf returns the kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Warning is a non-fatal condition reported alongside a valid result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WarnDegradedAssessment is attached when the urgency engine fell back to
// its neutral verdict.
const WarnDegradedAssessment = "degraded_assessment"
