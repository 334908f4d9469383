package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres implements Gateway against the marketplace database. Each entity
// kind maps to a relational table of the same name, so a payload field the
// schema has not been migrated for surfaces as a genuine undefined-column
// error, which is reported as ClassSchemaMismatch naming the field.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to the remote data service.
func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validIdent(s string) bool {
	return identPattern.MatchString(s)
}

// Select returns raw rows of the given kind, most recent first.
func (p *Postgres) Select(ctx context.Context, kind string, filter Filter) ([]Row, error) {
	if !validIdent(kind) {
		return nil, &Error{Class: ClassUnknown, Message: fmt.Sprintf("invalid kind %q", kind)}
	}

	query := fmt.Sprintf("SELECT * FROM %s", kind)
	var args []any
	if filter.Column != "" {
		if !validIdent(filter.Column) {
			return nil, &Error{Class: ClassUnknown, Message: fmt.Sprintf("invalid filter column %q", filter.Column)}
		}
		query += fmt.Sprintf(" WHERE %s = $1", filter.Column)
		args = append(args, filter.Value)
	}
	query += " ORDER BY created_at DESC"

	rows, err := p.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		m := Row{}
		if err := rows.MapScan(m); err != nil {
			return nil, classify(err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Insert writes a new row and returns it as stored.
func (p *Postgres) Insert(ctx context.Context, kind string, row Row) (Row, error) {
	if !validIdent(kind) {
		return nil, &Error{Class: ClassUnknown, Message: fmt.Sprintf("invalid kind %q", kind)}
	}

	cols, placeholders, args := buildInsert(row)
	if len(cols) == 0 {
		return nil, &Error{Class: ClassUnknown, Message: "empty payload"}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		kind, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	return p.queryRow(ctx, query, args...)
}

// Update patches a row by id and returns the stored result.
func (p *Postgres) Update(ctx context.Context, kind, id string, patch Row) (Row, error) {
	if !validIdent(kind) {
		return nil, &Error{Class: ClassUnknown, Message: fmt.Sprintf("invalid kind %q", kind)}
	}
	if len(patch) == 0 {
		return nil, &Error{Class: ClassUnknown, Message: "empty patch"}
	}

	sets, args := buildSet(patch)
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
		kind, strings.Join(sets, ", "), len(args))

	return p.queryRow(ctx, query, args...)
}

// Delete removes a row by id. A dependent record blocks the delete with
// ClassReferentialConstraint.
func (p *Postgres) Delete(ctx context.Context, kind, id string) error {
	if !validIdent(kind) {
		return &Error{Class: ClassUnknown, Message: fmt.Sprintf("invalid kind %q", kind)}
	}

	res, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", kind), id)
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &Error{Class: ClassNotFound, Message: fmt.Sprintf("%s %s not found", kind, id)}
	}
	return nil
}

// SettlePayment inserts the transaction and marks the listing sold in one
// database transaction. The unique index on payment_ref makes the reference
// the idempotency key: a duplicate reports ClassConflict and writes nothing.
func (p *Postgres) SettlePayment(ctx context.Context, s Settlement) (Row, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO transactions (listing_id, buyer_id, amount, commission, status, payment_ref)
		VALUES ($1, $2, $3, $4, 'Completed', $5)
		RETURNING *`,
		s.ListingID, s.BuyerID, s.Amount, s.Commission, s.Reference)

	m := Row{}
	if err := row.MapScan(m); err != nil {
		return nil, classify(err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE listings SET status = 'Sold' WHERE id = $1", s.ListingID); err != nil {
		return nil, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return m, nil
}

func (p *Postgres) queryRow(ctx context.Context, query string, args ...any) (Row, error) {
	m := Row{}
	if err := p.db.QueryRowxContext(ctx, query, args...).MapScan(m); err != nil {
		return nil, classify(err)
	}
	return m, nil
}

// buildInsert produces deterministic column order so errors are reproducible.
func buildInsert(row Row) (cols, placeholders []string, args []any) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		cols = append(cols, pq.QuoteIdentifier(k))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, row[k])
	}
	return cols, placeholders, args
}

func buildSet(patch Row) (sets []string, args []any) {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(k), i+1))
		args = append(args, patch[k])
	}
	return sets, args
}

var undefinedColumn = regexp.MustCompile(`column "([^"]+)"`)

// classify maps driver errors onto the machine-checkable taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return &Error{Class: ClassNotFound, Message: "no rows"}
	}

	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "42703": // undefined_column: remote schema lags the client
			field := ""
			if m := undefinedColumn.FindStringSubmatch(pqErr.Message); m != nil {
				field = m[1]
			}
			return &Error{Class: ClassSchemaMismatch, Field: field, Message: pqErr.Message}
		case "23505": // unique_violation
			return &Error{Class: ClassConflict, Message: pqErr.Message}
		case "23503": // foreign_key_violation
			return &Error{Class: ClassReferentialConstraint, Message: pqErr.Message}
		case "28000", "28P01":
			return &Error{Class: ClassUnauthenticated, Message: pqErr.Message}
		case "23514": // check_violation, e.g. negative quantity or price
			return &Error{Class: ClassConflict, Message: pqErr.Message}
		}
		return &Error{Class: ClassUnknown, Message: pqErr.Message}
	}

	return &Error{Class: ClassUnknown, Message: err.Error()}
}
