package builder

import "github.com/relmap/relmap/internal/query/ast"

// Conditions collects the restriction, projection and ordering of a script.
type Conditions struct {
	b       *build
	where   []ast.Expression
	orderBy []ast.OrderByClause
	limit   *int64
	offset  *int64
}

// Where adds restrictions; all of them must hold. nil expressions are
// ignored.
func (c *Conditions) Where(exprs ...ast.Expression) *Conditions {
	for _, e := range exprs {
		if e != nil {
			c.where = append(c.where, e)
		}
	}
	return c
}

// Project selects the attributes of joined tables and groups them into
// the associations of each result object.
func (c *Conditions) Project(tables ...*Table) *Conditions {
	for _, t := range tables {
		if t == nil || t.join == nil {
			continue
		}
		t.join.Projected = true
	}
	return c
}

// OrderBy sets the result order.
func (c *Conditions) OrderBy(clauses ...ast.OrderByClause) *Conditions {
	c.orderBy = append(c.orderBy, clauses...)
	return c
}

// Limit bounds the number of rows read.
func (c *Conditions) Limit(n int64) *Conditions {
	c.limit = &n
	return c
}

// Offset skips rows.
func (c *Conditions) Offset(n int64) *Conditions {
	c.offset = &n
	return c
}
