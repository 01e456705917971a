// Package apperrors holds the typed errors returned by the tracking core and
// their mapping to the reason codes carried in acks and REST responses.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason codes surfaced to clients
const (
	CodeValidation       = "validation_failed"
	CodeStaleUpdate      = "stale_update"
	CodeDuplicateSession = "duplicate_session"
	CodeInvalidState     = "invalid_state"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal_error"
)

// ValidationError reports an out-of-range or malformed input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// StaleUpdateError reports a point whose timestamp is not after the last accepted one
type StaleUpdateError struct {
	SessionID string
	Got       int64
	Last      int64
}

func (e *StaleUpdateError) Error() string {
	return fmt.Sprintf("stale update for session %s: timestamp %d is not after %d", e.SessionID, e.Got, e.Last)
}

// DuplicateSessionError reports a start while a session is already Active for the route and type
type DuplicateSessionError struct {
	RouteID           string
	SessionType       string
	ExistingSessionID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("route %s already has an active %s session %s", e.RouteID, e.SessionType, e.ExistingSessionID)
}

// InvalidStateError reports an operation not allowed in the session's current status
type InvalidStateError struct {
	SessionID string
	Status    string
	Op        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s session %s in status %s", e.Op, e.SessionID, e.Status)
}

// NotFoundError reports an unknown session, stop or route
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NewNotFound is a shorthand for &NotFoundError{...}
func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Code maps err to its client-facing reason code
func Code(err error) string {
	var (
		validation *ValidationError
		stale      *StaleUpdateError
		duplicate  *DuplicateSessionError
		state      *InvalidStateError
		notFound   *NotFoundError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return CodeValidation
	case errors.As(err, &stale):
		return CodeStaleUpdate
	case errors.As(err, &duplicate):
		return CodeDuplicateSession
	case errors.As(err, &state):
		return CodeInvalidState
	case errors.As(err, &notFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// HTTPStatus maps err to the status code used by the REST surface
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case CodeValidation:
		return http.StatusBadRequest
	case CodeStaleUpdate, CodeDuplicateSession, CodeInvalidState:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// InvariantViolation is the panic value raised when a session invariant is
// observed broken. It indicates a concurrency bug and is never recovered.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (v InvariantViolation) Error() string {
	return "invariant violated: " + v.Invariant + ": " + v.Detail
}

// Assert panics with an InvariantViolation when cond is false
func Assert(cond bool, invariant, format string, args ...interface{}) {
	if !cond {
		panic(InvariantViolation{Invariant: invariant, Detail: fmt.Sprintf(format, args...)})
	}
}
