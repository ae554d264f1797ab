// Package store provides the database connections statements are executed
// on. Failing statements are logged with their text and the driver error
// is returned unchanged.
package store

import (
	"context"
	"log"
)

// Result holds the materialized rows of a query.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (r *Result) Len() int { return len(r.Rows) }

// Conn executes rendered statements.
type Conn interface {
	// Query runs a statement returning rows.
	Query(ctx context.Context, query string, args ...any) (*Result, error)
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Insert runs an INSERT and returns the generated serial, or 0 when
	// the table has none.
	Insert(ctx context.Context, query string, args ...any) (int64, error)
	// Driver returns the driver name ("sqlite" or "postgres").
	Driver() string
	Close() error
}

func logFailure(driver, query string, err error) {
	log.Printf("store: [FATAL] %s statement failed: %s: %v", driver, query, err)
}
