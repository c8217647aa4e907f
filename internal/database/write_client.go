package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// WriteClient provides write access to the database for the index and analytics
type WriteClient struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewWriteClient wraps an open connection. Queries use ? placeholders and are
// rebound for the connection's driver.
func NewWriteClient(db *sqlx.DB) *WriteClient {
	return &WriteClient{db: db, timeout: 30 * time.Second}
}

// GetDB returns the underlying database connection
func (wc *WriteClient) GetDB() *sqlx.DB {
	return wc.db
}

// IsPostgres reports whether the connection speaks the PostgreSQL dialect
func (wc *WriteClient) IsPostgres() bool {
	return wc.db.DriverName() == DriverPostgres
}

// ExecuteWriteQuery executes a write query and returns the result. ctx bounds the
// call; without a deadline a 30s limit applies.
func (wc *WriteClient) ExecuteWriteQuery(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wc.timeout)
		defer cancel()
	}

	return wc.db.ExecContext(ctx, wc.db.Rebind(query), args...)
}

// Assignment is one SET item of an upsert. In Expr, NEW(col) stands for the
// incoming value and OLD(col) for the stored one.
type Assignment struct {
	Column string
	Expr   string
}

// Upsert renders an insert-or-update statement for the connection's dialect,
// keyed on the unique column key
func (wc *WriteClient) Upsert(table, key string, columns []string, set []Assignment) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(placeholders)
	b.WriteString(")")

	if wc.IsPostgres() {
		b.WriteString(" ON CONFLICT (" + key + ") DO UPDATE SET ")
	} else {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
	}

	clauses := make([]string, 0, len(set))
	for _, a := range set {
		clauses = append(clauses, a.Column+" = "+wc.expand(table, a.Expr))
	}
	b.WriteString(strings.Join(clauses, ", "))
	return b.String()
}

// expand rewrites NEW(col) and OLD(col) markers for the dialect
func (wc *WriteClient) expand(table, expr string) string {
	var out strings.Builder
	for {
		newIdx := strings.Index(expr, "NEW(")
		oldIdx := strings.Index(expr, "OLD(")
		idx, isNew := newIdx, true
		if idx < 0 || (oldIdx >= 0 && oldIdx < idx) {
			idx, isNew = oldIdx, false
		}
		if idx < 0 {
			out.WriteString(expr)
			return out.String()
		}

		end := strings.Index(expr[idx:], ")")
		if end < 0 {
			out.WriteString(expr)
			return out.String()
		}
		col := expr[idx+4 : idx+end]
		out.WriteString(expr[:idx])

		switch {
		case isNew && wc.IsPostgres():
			out.WriteString("EXCLUDED." + col)
		case isNew:
			out.WriteString("VALUES(" + col + ")")
		case wc.IsPostgres():
			out.WriteString(table + "." + col)
		default:
			out.WriteString(col)
		}
		expr = expr[idx+end+1:]
	}
}

// Close closes the database connection
func (wc *WriteClient) Close() error {
	return wc.db.Close()
}
