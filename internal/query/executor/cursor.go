package executor

import (
	"context"
	"iter"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/query/builder"
	"github.com/relmap/relmap/pkg/types"
)

// Cursor reads the rows of a query in bounded batches ordered by the root
// primary key. A cursor is single-use; create a new one to restart.
type Cursor struct {
	exec   *Executor
	query  *builder.Query
	table  string
	size   int
	offset int64
	done   bool
}

// NewCursor returns a cursor reading batches of size rows of query from
// the physical table.
func (e *Executor) NewCursor(query *builder.Query, table string, size int) (*Cursor, error) {
	if size <= 0 {
		return nil, relerr.Newf(relerr.ErrCategoryValue, relerr.CodeInvalidBatch, "batch size must be positive, got %d", size)
	}
	if query.Heading().PrimaryKey() == nil {
		return nil, relerr.Newf(relerr.ErrCategoryValue, relerr.CodeInvalidBatch, "%s has no primary key to batch on", query.Entity())
	}
	return &Cursor{exec: e, query: query, table: table, size: size}, nil
}

// Next returns the next batch, or nil once the rows are exhausted.
func (c *Cursor) Next(ctx context.Context) ([]*types.Object, error) {
	if c.done {
		return nil, nil
	}
	stmt, err := c.query.Build(c.table)
	if err != nil {
		return nil, err
	}
	if len(stmt.Projected()) > 0 {
		return nil, relerr.New(relerr.ErrCategoryValue, relerr.CodeInvalidBatch, "batched queries cannot project joins")
	}

	limit, offset := int64(c.size), c.offset
	stmt.OrderByIdentity()
	stmt.Select.Limit = &limit
	stmt.Select.Offset = &offset

	objs, err := c.exec.Select(ctx, stmt)
	if err != nil {
		return nil, err
	}
	c.offset += int64(len(objs))
	if len(objs) < c.size {
		c.done = true
	}
	if len(objs) == 0 {
		return nil, nil
	}
	return objs, nil
}

// Each yields the rows of query one by one in primary key order, reading
// them in batches of size. Iteration stops at the first error.
func (e *Executor) Each(ctx context.Context, query *builder.Query, table string, size int) iter.Seq2[*types.Object, error] {
	return func(yield func(*types.Object, error) bool) {
		cur, err := e.NewCursor(query, table, size)
		if err != nil {
			yield(nil, err)
			return
		}
		for {
			batch, err := cur.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if batch == nil {
				return
			}
			for _, obj := range batch {
				if !yield(obj, nil) {
					return
				}
			}
		}
	}
}
