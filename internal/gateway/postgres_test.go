package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyUndefinedColumn(t *testing.T) {
	err := classify(&pq.Error{
		Code:    "42703",
		Message: `column "preferred_payout" of relation "accounts" does not exist`,
	})

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, ClassSchemaMismatch, gwErr.Class)
	assert.Equal(t, "preferred_payout", gwErr.Field)
}

func TestClassifyCodes(t *testing.T) {
	cases := []struct {
		code pq.ErrorCode
		want ErrorClass
	}{
		{"23505", ClassConflict},
		{"23503", ClassReferentialConstraint},
		{"28P01", ClassUnauthenticated},
		{"28000", ClassUnauthenticated},
		{"23514", ClassConflict},
		{"42P01", ClassUnknown},
	}

	for _, c := range cases {
		err := classify(&pq.Error{Code: c.code, Message: "boom"})
		assert.Equal(t, c.want, ClassOf(err), string(c.code))
	}
}

func TestClassifyPlainError(t *testing.T) {
	err := classify(errors.New("connection reset"))
	assert.Equal(t, ClassUnknown, ClassOf(err))
}

func TestBuildInsertDeterministic(t *testing.T) {
	cols, placeholders, args := buildInsert(Row{
		"quantity": 50.0,
		"id":       "l1",
		"title":    "Cotton",
	})

	assert.Equal(t, []string{`"id"`, `"quantity"`, `"title"`}, cols)
	assert.Equal(t, []string{"$1", "$2", "$3"}, placeholders)
	assert.Equal(t, []any{"l1", 50.0, "Cotton"}, args)
}

func TestBuildSetDeterministic(t *testing.T) {
	sets, args := buildSet(Row{"status": "Sold", "price": 10.0})

	assert.Equal(t, []string{`"price" = $1`, `"status" = $2`}, sets)
	assert.Equal(t, []any{10.0, "Sold"}, args)
}

func TestValidIdent(t *testing.T) {
	assert.True(t, validIdent("listings"))
	assert.True(t, validIdent("bulk_requests"))
	assert.False(t, validIdent("listings; DROP TABLE accounts"))
	assert.False(t, validIdent(""))
	assert.False(t, validIdent("Listings"))
}

func TestSelectRejectsBadIdent(t *testing.T) {
	p := &Postgres{}
	_, err := p.Select(context.Background(), "bad ident", Filter{})
	assert.Equal(t, ClassUnknown, ClassOf(err))
}

func TestPostgresSelect(t *testing.T) {
	t.Skip("Integration test - requires database")
}

func TestPostgresSettlePayment(t *testing.T) {
	t.Skip("Integration test - requires database")
}
