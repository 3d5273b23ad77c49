package usecase

import (
	"errors"
	"fmt"
	"time"

	"dispatch-bot/internal/ledger"
	"dispatch-bot/internal/session"
)

type ErrorCode string

const (
	ErrorValidation       ErrorCode = "VALIDATION"
	ErrorInvalidPeriod    ErrorCode = "INVALID_PERIOD"
	ErrorRangeUnavailable ErrorCode = "RANGE_UNAVAILABLE"
	ErrorTransport        ErrorCode = "TRANSPORT"
	ErrorLookupMiss       ErrorCode = "LOOKUP_MISS"
	ErrorDuplicateSession ErrorCode = "DUPLICATE_SESSION"
	ErrorInternal         ErrorCode = "INTERNAL_ERROR"
)

// Error carries a code plus the human-readable reason shown to the operator.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func invalid(format string, args ...any) *Error {
	return newError(ErrorValidation, fmt.Sprintf(format, args...), nil)
}

// InvalidPeriodError reports an end date earlier than the previous period end.
type InvalidPeriodError struct {
	Previous time.Time
	New      time.Time
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("usecase: new date %s is before previous date %s",
		e.New.Format(dateLayout), e.Previous.Format(dateLayout))
}

// recoverable reports whether err should re-prompt the same state instead of
// ending the session.
func recoverable(err error) bool {
	var pe *InvalidPeriodError
	if errors.As(err, &pe) {
		return true
	}
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code == ErrorValidation || ue.Code == ErrorInvalidPeriod
	}
	return false
}

// classify turns a collaborator failure into a coded error with a reason that
// names what failed.
func classify(what string, err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	var re *ledger.RangeUnavailableError
	if errors.As(err, &re) {
		return newError(ErrorRangeUnavailable, fmt.Sprintf("%s: ledger range %s is unavailable", what, re.Range), err)
	}
	var de *session.DuplicateSessionError
	if errors.As(err, &de) {
		return newError(ErrorDuplicateSession, what, err)
	}
	return newError(ErrorTransport, what, err)
}

// userMessage is the text shown for err.
func userMessage(err error) string {
	var pe *InvalidPeriodError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%s is before the previous period end %s. Enter a later date.",
			pe.New.Format(dateLayout), pe.Previous.Format(dateLayout))
	}
	var ue *Error
	if errors.As(err, &ue) && ue.Reason != "" {
		if ue.Err != nil && ue.Code != ErrorValidation {
			return fmt.Sprintf("%s (%v)", ue.Reason, rootCause(ue.Err))
		}
		return ue.Reason
	}
	return err.Error()
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
