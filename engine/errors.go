/*
errors.go - Centralized error types for the accounting engine

PURPOSE:
  All engine error types in one place. Service packages wrap these with
  request context; the API layer maps them to status codes via the
  classifier helpers at the bottom.

ERROR CATEGORIES:
  1. Lookup errors - Missing users, absences, entries
  2. Validation errors - Malformed input, out-of-range values
  3. Conflict errors - Overlaps, entry/absence exclusion, balance gates
  4. Infrastructure errors - Store integrity, upstream holiday source

USAGE:
  Callers branch with errors.Is:

    if errors.Is(err, engine.ErrAbsenceOverlap) {
        // 409
    }

SEE ALSO:
  - absence/service.go: Produces most of the conflict errors
  - api/handlers.go: Maps categories to HTTP status codes
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the acting user may not perform the
	// operation on the target record.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when an operation contradicts existing state.
	ErrConflict = errors.New("conflict")

	// ErrAbsenceOverlap is returned when a new absence intersects a pending
	// or approved one.
	ErrAbsenceOverlap = errors.New("absence overlaps existing request")

	// ErrTimeEntryConflict is returned when time entries and a non-sick
	// absence would occupy the same date.
	ErrTimeEntryConflict = errors.New("time entry conflicts with absence")

	// ErrInsufficientVacation is returned when a vacation request exceeds
	// the remaining entitlement.
	ErrInsufficientVacation = errors.New("insufficient vacation days")

	// ErrInsufficientOvertime is returned when an overtime compensation
	// request exceeds the accumulated balance.
	ErrInsufficientOvertime = errors.New("insufficient overtime balance")

	// ErrBeforeHireDate is returned when a fact is dated before employment.
	ErrBeforeHireDate = errors.New("date precedes hire date")

	// ErrNoWorkingDays is returned when a requested absence range contains
	// no business days under the kind's counting rule.
	ErrNoWorkingDays = errors.New("range contains no working days")

	// ErrInvalidTransition is returned for a disallowed absence status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrIntegrity is returned when the store rejects a write that should
	// have been consistent, for example a broken running balance.
	ErrIntegrity = errors.New("store integrity violation")

	// ErrUpstream is returned when the external holiday source fails and no
	// stored fallback exists.
	ErrUpstream = errors.New("upstream source unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// OverlapError reports which existing absence blocks a new request.
type OverlapError struct {
	UserID   UserID
	Existing AbsenceID
	Span     Span
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("absence %s..%s overlaps request %s", e.Span.Start, e.Span.End, e.Existing)
}

func (e *OverlapError) Unwrap() error { return ErrAbsenceOverlap }

// EntryConflictError reports time entries occupying requested absence dates.
type EntryConflictError struct {
	UserID  UserID
	Dates   []Date
	Entries int
}

func (e *EntryConflictError) Error() string {
	return fmt.Sprintf("%d time entries exist on %d requested dates", e.Entries, len(e.Dates))
}

func (e *EntryConflictError) Unwrap() error { return ErrTimeEntryConflict }

// InsufficientVacationError details a vacation balance shortage in days.
type InsufficientVacationError struct {
	UserID    UserID
	Year      int
	Requested int
	Remaining int
}

func (e *InsufficientVacationError) Error() string {
	return fmt.Sprintf("vacation balance %d: requested %d days, %d remaining",
		e.Year, e.Requested, e.Remaining)
}

func (e *InsufficientVacationError) Unwrap() error { return ErrInsufficientVacation }

// InsufficientOvertimeError details an overtime balance shortage in hours.
type InsufficientOvertimeError struct {
	UserID    UserID
	Requested Hours
	Available Hours
}

func (e *InsufficientOvertimeError) Error() string {
	return fmt.Sprintf("overtime compensation needs %sh, balance is %sh",
		e.Requested, e.Available)
}

func (e *InsufficientOvertimeError) Unwrap() error { return ErrInsufficientOvertime }

// TransitionError reports a disallowed absence state change.
type TransitionError struct {
	From AbsenceStatus
	To   AbsenceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move absence from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden returns true if the actor lacks permission.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsValidation returns true for malformed client input.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict returns true for state conflicts that a client could resolve
// by changing the request.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAbsenceOverlap) ||
		errors.Is(err, ErrTimeEntryConflict) ||
		errors.Is(err, ErrInsufficientVacation) ||
		errors.Is(err, ErrInsufficientOvertime) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsClientError returns true if the request, not the system, is at fault.
func IsClientError(err error) bool {
	return IsValidation(err) ||
		IsConflict(err) ||
		errors.Is(err, ErrBeforeHireDate) ||
		errors.Is(err, ErrNoWorkingDays)
}
