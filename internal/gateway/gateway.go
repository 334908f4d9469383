package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Row is a raw record as the remote data service returns it. Rows are
// normalized before they reach the cache store.
type Row = map[string]any

// ErrorClass categorizes gateway failures so callers can branch without
// string matching.
type ErrorClass string

const (
	// ClassNotFound indicates the addressed record does not exist.
	ClassNotFound ErrorClass = "not-found"

	// ClassSchemaMismatch indicates the remote schema does not recognize a
	// field in the payload. Error.Field names the offending field.
	ClassSchemaMismatch ErrorClass = "schema-mismatch"

	// ClassConflict indicates a uniqueness or precondition violation, e.g. a
	// duplicate payment reference or a second Accepted proposal.
	ClassConflict ErrorClass = "conflict"

	// ClassReferentialConstraint indicates the operation is blocked by a
	// dependent record, e.g. deleting a listing that has transactions.
	ClassReferentialConstraint ErrorClass = "referential-constraint"

	// ClassUnauthenticated indicates missing or expired credentials.
	ClassUnauthenticated ErrorClass = "unauthenticated"

	// ClassUnknown covers everything else, including transport failures.
	ClassUnknown ErrorClass = "unknown"
)

// Error is the typed failure every Gateway method returns on the error path.
type Error struct {
	Class   ErrorClass
	Field   string // set for ClassSchemaMismatch
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Class, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// ClassOf extracts the error class from a (possibly wrapped) gateway error.
// Non-gateway errors report ClassUnknown.
func ClassOf(err error) ErrorClass {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Class
	}
	return ClassUnknown
}

// FieldOf returns the offending field of a schema-mismatch error, or "".
func FieldOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Field
	}
	return ""
}

// Filter restricts a Select. Zero value selects everything.
type Filter struct {
	Column string
	Value  any
}

// Settlement is the request handed to the remote payment-settlement
// procedure. Reference is the provider-assigned payment reference and the
// idempotency key: the gateway is the sole authority for detecting a
// duplicate and answers it with ClassConflict.
type Settlement struct {
	Reference  string
	ListingID  string
	BuyerID    string
	Amount     float64
	Commission float64
}

// Gateway executes queries and row-level mutations against named entity
// collections on the remote data service. All errors on the failure path are
// *Error values (possibly wrapped).
type Gateway interface {
	Select(ctx context.Context, kind string, filter Filter) ([]Row, error)
	Insert(ctx context.Context, kind string, row Row) (Row, error)
	Update(ctx context.Context, kind, id string, patch Row) (Row, error)
	Delete(ctx context.Context, kind, id string) error

	// SettlePayment is the sole writer of transaction records. A duplicate
	// reference returns ClassConflict; the caller resolves it by locating
	// the existing transaction.
	SettlePayment(ctx context.Context, s Settlement) (Row, error)
}
