// Package executor runs built statements on a connection and turns the
// rows into objects.
package executor

import (
	"context"
	"fmt"

	"github.com/relmap/relmap/internal/dialect"
	"github.com/relmap/relmap/internal/observability"
	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/query/builder"
	"github.com/relmap/relmap/internal/store"
	"github.com/relmap/relmap/pkg/types"
)

// Executor executes statements against one connection.
type Executor struct {
	conn    store.Conn
	dialect dialect.Dialect
	stats   *observability.QueryStats
}

// Option configures an Executor.
type Option func(*Executor)

// WithStats records the predicates of every executed statement.
func WithStats(stats *observability.QueryStats) Option {
	return func(e *Executor) { e.stats = stats }
}

// New creates an executor.
func New(conn store.Conn, d dialect.Dialect, opts ...Option) *Executor {
	e := &Executor{conn: conn, dialect: d}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Conn returns the connection statements run on.
func (e *Executor) Conn() store.Conn { return e.conn }

// Dialect returns the dialect statements are rendered with.
func (e *Executor) Dialect() dialect.Dialect { return e.dialect }

// Select executes stmt and returns one object per distinct root row, in
// the order the rows were returned.
func (e *Executor) Select(ctx context.Context, stmt *builder.Statement) ([]*types.Object, error) {
	query, args, err := e.dialect.Select(stmt.Select)
	if err != nil {
		return nil, fmt.Errorf("executor: render select: %w", err)
	}
	e.record(stmt)

	res, err := e.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return group(stmt, res)
}

// Count returns the number of distinct root rows stmt selects.
func (e *Executor) Count(ctx context.Context, stmt *builder.Statement) (int64, error) {
	query, args, err := e.dialect.Count(stmt.CountStatement())
	if err != nil {
		return 0, fmt.Errorf("executor: render count: %w", err)
	}
	e.record(stmt)

	res, err := e.conn.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if res.Len() != 1 || len(res.Rows[0]) != 1 {
		return 0, fmt.Errorf("executor: count returned %d rows", res.Len())
	}
	n, ok := res.Rows[0][0].(int64)
	if !ok {
		return 0, fmt.Errorf("executor: count returned %T", res.Rows[0][0])
	}
	return n, nil
}

// record counts the predicates of stmt per "type.attribute".
func (e *Executor) record(stmt *builder.Statement) {
	if e.stats == nil || stmt.Where() == nil {
		return
	}
	names := map[string]string{builder.RootAlias: stmt.Entity}
	for _, j := range stmt.Joins {
		names[j.Alias] = j.TypeName()
	}
	for _, p := range ast.ExtractPredicates(stmt.Where()) {
		name, ok := names[p.Table]
		if !ok {
			continue
		}
		e.stats.RecordPredicate(name+"."+p.Column, predicateOperator(p))
	}
}

func predicateOperator(p ast.Predicate) string {
	switch p.Type {
	case ast.PredicateIn:
		return "IN"
	case ast.PredicateBetween:
		return "BETWEEN"
	case ast.PredicateLike:
		return "LIKE"
	case ast.PredicateIsNull:
		return "IS NULL"
	}
	return p.Operator
}
