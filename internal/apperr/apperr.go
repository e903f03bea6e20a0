// Package apperr defines the error taxonomy shared by the reservation engine.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and transports.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindNotMember       Kind = "not_member"
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindValidation      Kind = "validation_failure"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal"
)

// Reason codes attached to validation failures and conflicts.
const (
	ReasonInvalidTimeRange = "INVALID_TIME_RANGE"
	ReasonNotReservable    = "NOT_RESERVABLE"
	ReasonClosedDay        = "CLOSED_DAY"
	ReasonClosedException  = "CLOSED_EXCEPTION"
	ReasonOutsideHours     = "OUTSIDE_HOURS"
	ReasonSlotTaken        = "SLOT_TAKEN"
	ReasonMonthlyLimit     = "MONTHLY_LIMIT"
	ReasonDailyLimit       = "DAILY_LIMIT"
	ReasonInvalidStatus    = "INVALID_STATUS"
	ReasonInvalidFilter    = "INVALID_FILTER"
	ReasonStaleState       = "STALE_STATE"
)

// Error is a classified domain error.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a ValidationFailure carrying a reason code.
func Validation(reason, message string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: message}
}

// Conflict creates a Conflict carrying a reason code.
func Conflict(reason, message string, err error) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: message, Err: err}
}

// Internal wraps an infrastructure fault.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the reason code carried by err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
