package engine

import (
	"errors"
	"fmt"

	"textile-sync/internal/deadline"
	"textile-sync/internal/gateway"
)

// Class categorizes mutation failures for callers.
type Class string

const (
	// ClassRemoteUnreachable covers timeouts and transport failures on
	// Shape A operations, where the store was left untouched.
	ClassRemoteUnreachable Class = "remote-unreachable"

	// ClassSchemaDriftExhausted means the self-healing strip-and-retry ran
	// out of payload without the remote accepting the commit.
	ClassSchemaDriftExhausted Class = "schema-drift-exhausted"

	// ClassNotAuthenticated means no non-anonymous Actor is active, or the
	// remote rejected the credentials.
	ClassNotAuthenticated Class = "not-authenticated"

	// ClassValidationRejected is surfaced verbatim to the UI.
	ClassValidationRejected Class = "validation-rejected"

	// ClassConflict covers duplicate idempotency references and
	// preconditions that no longer hold, e.g. a listing already sold.
	ClassConflict Class = "conflict"

	// ClassReferentialConstraint means a dependent record blocks the
	// operation; the message carries a human-readable suggestion.
	ClassReferentialConstraint Class = "referential-constraint"

	// ClassPendingSync is the non-fatal Shape B outcome: the optimistic
	// value stays visible in the store, the remote commit did not confirm.
	// The UI must render "saved locally, pending sync", never revert.
	ClassPendingSync Class = "pending-sync"
)

// SyncError is the structured error every engine operation returns on its
// failure path, with enough context to diagnose without blocking the
// calling workflow.
type SyncError struct {
	Class   Class
	Kind    string // entity kind
	Op      string
	ID      string
	Message string
	Err     error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", e.Class, e.Op, e.Kind)
	if e.ID != "" {
		msg += fmt.Sprintf(" id=%s", e.ID)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *SyncError) Unwrap() error { return e.Err }

// ClassOf extracts the failure class, ClassRemoteUnreachable for anything
// that is not a SyncError.
func ClassOf(err error) Class {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassRemoteUnreachable
}

// IsPendingSync reports the non-fatal Shape B outcome: saved locally,
// awaiting remote confirmation.
func IsPendingSync(err error) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Class == ClassPendingSync
}

// mapRemote translates a gateway (or deadline) failure into the caller
// taxonomy.
func mapRemote(op, kind, id string, err error) *SyncError {
	se := &SyncError{Kind: kind, Op: op, ID: id, Message: err.Error(), Err: err}

	if deadline.Exceeded(err) {
		se.Class = ClassRemoteUnreachable
		return se
	}
	switch gateway.ClassOf(err) {
	case gateway.ClassUnauthenticated:
		se.Class = ClassNotAuthenticated
	case gateway.ClassConflict:
		se.Class = ClassConflict
	case gateway.ClassReferentialConstraint:
		se.Class = ClassReferentialConstraint
		se.Message = "a dependent record exists; change the status instead of deleting"
	case gateway.ClassSchemaMismatch:
		se.Class = ClassValidationRejected
	case gateway.ClassNotFound:
		se.Class = ClassConflict
		se.Message = "record no longer exists"
	default:
		se.Class = ClassRemoteUnreachable
	}
	return se
}

func rejectErr(op, kind, id, message string) *SyncError {
	return &SyncError{Class: ClassValidationRejected, Kind: kind, Op: op, ID: id, Message: message}
}

func pendingErr(op, kind, id string, err error) *SyncError {
	return &SyncError{Class: ClassPendingSync, Kind: kind, Op: op, ID: id,
		Message: "saved locally, remote commit unconfirmed", Err: err}
}

func authErr(op, kind string) *SyncError {
	return &SyncError{Class: ClassNotAuthenticated, Kind: kind, Op: op, Message: "no active identity"}
}
