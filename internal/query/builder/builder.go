// Package builder turns query scripts written against one entity into
// SELECT statements. A script names attributes of the root entity and of
// the entities and simple associations reachable from it; every distinct
// path becomes one join whose predicate is derived from the registered
// references.
//
// A Query is built once per physical table so that the same script can be
// replayed against every partition of a partitioned entity.
package builder

import (
	"fmt"

	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/schema"
)

// RootAlias is the alias of the root table in every statement.
const RootAlias = "t0"

// Script declares the conditions of a query against its root table.
type Script func(c *Conditions, t *Table)

// Query is a reusable query over one entity.
type Query struct {
	registry *schema.Registry
	entity   string
	child    string
	root     *heading.Heading
	script   Script
}

// New returns a query over entity. A nil script selects every row.
func New(registry *schema.Registry, entity string, script Script) (*Query, error) {
	root, err := registry.Heading(entity)
	if err != nil {
		return nil, err
	}
	return &Query{registry: registry, entity: entity, root: root, script: script}, nil
}

// NewChild returns a query over the simple association child of entity.
// Its rows cannot be joined to other entities.
func NewChild(registry *schema.Registry, entity, child string, script Script) (*Query, error) {
	root, err := registry.ChildHeading(entity, child)
	if err != nil {
		return nil, err
	}
	return &Query{registry: registry, entity: entity, child: child, root: root, script: script}, nil
}

// Entity returns the root entity name.
func (q *Query) Entity() string { return q.entity }

// Child returns the simple association queried, or "" for the base heading.
func (q *Query) Child() string { return q.child }

// Heading returns the root heading.
func (q *Query) Heading() *heading.Heading { return q.root }

// Build replays the script against a root table stored under the physical
// name table. The first error raised by the script is returned.
func (q *Query) Build(table string) (*Statement, error) {
	if table == "" {
		table = q.root.Name()
	}
	b := &build{registry: q.registry, byPath: make(map[string]*Join)}
	root := &Table{b: b, heading: q.root, entity: q.entity, child: q.child, alias: RootAlias}
	c := &Conditions{b: b}

	if q.script != nil {
		q.script(c, root)
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.statement(q, root, table, c)
}

// build is the state of one Build call.
type build struct {
	registry *schema.Registry
	joins    []*Join
	byPath   map[string]*Join
	err      error
}

func (b *build) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *build) nextAlias() string {
	return fmt.Sprintf("t%d", len(b.joins)+1)
}

// Binding says which attribute a selected column carries. Join is nil for
// root columns.
type Binding struct {
	Join      *Join
	Attribute *heading.Attribute
}

// Statement is a built query.
type Statement struct {
	Select *ast.SelectStatement
	Entity string
	// Child is the simple association of the root rows, if any.
	Child    string
	Root     *heading.Heading
	Table    string
	Bindings []Binding
	Joins    []*Join
}

// String returns the statement as SQL with inline literals.
func (s *Statement) String() string { return s.Select.String() }

// Where returns the restriction of the statement, or nil.
func (s *Statement) Where() ast.Expression { return s.Select.Where }

// Projected returns the projected joins in registration order.
func (s *Statement) Projected() []*Join {
	var out []*Join
	for _, j := range s.Joins {
		if j.Projected {
			out = append(out, j)
		}
	}
	return out
}

// RootColumns returns the number of leading columns holding root attributes.
func (s *Statement) RootColumns() int { return len(s.Root.Attributes()) }

// CountStatement returns a statement selecting each distinct root row
// once, for counting.
func (s *Statement) CountStatement() *ast.SelectStatement {
	sel := *s.Select
	sel.Distinct = true
	sel.Columns = identityColumns(s.Root)
	sel.OrderBy = nil
	sel.Limit = nil
	sel.Offset = nil
	return &sel
}

// OrderByIdentity replaces the ordering by the root identity attributes
// ascending.
func (s *Statement) OrderByIdentity() {
	cols := identityColumns(s.Root)
	s.Select.OrderBy = make([]ast.OrderByClause, len(cols))
	for i, c := range cols {
		s.Select.OrderBy[i] = ast.OrderByClause{Expr: c.Expr}
	}
}

func identityColumns(h *heading.Heading) []ast.SelectColumn {
	attrs := h.IdentityAttributes()
	cols := make([]ast.SelectColumn, len(attrs))
	for i, a := range attrs {
		cols[i] = ast.SelectColumn{Expr: &ast.ColumnRef{Table: RootAlias, Column: a.Name()}}
	}
	return cols
}

func (b *build) statement(q *Query, root *Table, table string, c *Conditions) (*Statement, error) {
	where := ast.And(c.where...)

	// Joins referenced by the restriction, and their ancestors, are inner
	// joins; projected-only joins are left joins.
	referenced := ast.ReferencedTables(where)
	for _, j := range b.joins {
		if referenced[j.Alias] {
			for k := j; k != nil; k = k.Parent {
				k.Restricted = true
			}
		}
	}
	for _, j := range b.joins {
		if j.Projected {
			for k := j.Parent; k != nil; k = k.Parent {
				k.carriesProjection = true
			}
		}
	}

	sel := &ast.SelectStatement{
		From:    &ast.TableRef{Name: table, Alias: RootAlias},
		Where:   where,
		OrderBy: c.orderBy,
		Limit:   c.limit,
		Offset:  c.offset,
	}
	stmt := &Statement{Select: sel, Entity: q.entity, Child: q.child, Root: q.root, Table: table, Joins: b.joins}

	for _, a := range q.root.Attributes() {
		sel.Columns = append(sel.Columns, ast.SelectColumn{Expr: &ast.ColumnRef{Table: RootAlias, Column: a.Name()}})
		stmt.Bindings = append(stmt.Bindings, Binding{Attribute: a})
	}

	projected := false
	for _, j := range b.joins {
		kind := ast.InnerJoin
		if !j.Restricted && (j.Projected || j.carriesProjection) {
			kind = ast.LeftJoin
		}
		sel.Joins = append(sel.Joins, ast.JoinClause{
			Kind:  kind,
			Table: &ast.TableRef{Name: j.Heading.Name(), Alias: j.Alias},
			On:    j.on(),
		})
		j.Kind = kind

		if !j.Projected {
			continue
		}
		projected = true
		for _, a := range j.Heading.Attributes() {
			sel.Columns = append(sel.Columns, ast.SelectColumn{
				Expr:  &ast.ColumnRef{Table: j.Alias, Column: a.Name()},
				Alias: j.Alias + "__" + a.Name(),
			})
			stmt.Bindings = append(stmt.Bindings, Binding{Join: j, Attribute: a})
		}
	}

	// Restriction joins may repeat root rows.
	if len(b.joins) > 0 && !projected {
		sel.Distinct = true
	}
	return stmt, nil
}
