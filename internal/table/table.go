// Package table binds headings to physical tables: rows are inserted,
// upserted, looked up by key and queried through the query builder.
package table

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"github.com/relmap/relmap/internal/dialect"
	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/query/builder"
	"github.com/relmap/relmap/internal/query/executor"
	"github.com/relmap/relmap/internal/schema"
	"github.com/relmap/relmap/internal/store"
	"github.com/relmap/relmap/pkg/types"
)

// Relation is the set of operations shared by plain tables and
// partitioned tables.
type Relation interface {
	// Entity returns the logical entity name.
	Entity() string
	// Heading returns the heading rows conform to.
	Heading() *heading.Heading
	Insert(ctx context.Context, attrs types.Row) (*types.Object, error)
	Upsert(ctx context.Context, attrs types.Row, opts UpsertOptions) error
	Query(ctx context.Context, script builder.Script) ([]*types.Object, error)
	Count(ctx context.Context, script builder.Script) (int64, error)
	// Each yields the rows matching script in primary key order, reading
	// them in batches of size.
	Each(ctx context.Context, script builder.Script, size int) iter.Seq2[*types.Object, error]
}

// Table is a heading bound to one physical table.
type Table struct {
	registry *schema.Registry
	exec     *executor.Executor
	entity   string
	child    string
	heading  *heading.Heading
	name     string
}

var _ Relation = (*Table)(nil)

// New returns the table of entity's base heading, stored under the
// heading name.
func New(registry *schema.Registry, exec *executor.Executor, entity string) (*Table, error) {
	h, err := registry.Heading(entity)
	if err != nil {
		return nil, err
	}
	return &Table{registry: registry, exec: exec, entity: entity, heading: h, name: h.Name()}, nil
}

// Child returns the table of the simple association name.
func (t *Table) Child(name string) (*Table, error) {
	if t.child != "" {
		return nil, relerr.HeadingNotFound(t.TypeName(), name)
	}
	h, err := t.registry.ChildHeading(t.entity, name)
	if err != nil {
		return nil, err
	}
	return &Table{registry: t.registry, exec: t.exec, entity: t.entity, child: name, heading: h, name: h.Name()}, nil
}

// WithName returns a copy of the table stored under the physical name.
func (t *Table) WithName(name string) *Table {
	c := *t
	c.name = name
	return &c
}

// Entity returns the logical entity name.
func (t *Table) Entity() string { return t.entity }

// Heading returns the table's heading.
func (t *Table) Heading() *heading.Heading { return t.heading }

// Name returns the physical table name.
func (t *Table) Name() string { return t.name }

// Registry returns the schema registry the table was resolved in.
func (t *Table) Registry() *schema.Registry { return t.registry }

// Executor returns the executor statements run on.
func (t *Table) Executor() *executor.Executor { return t.exec }

// TypeName is the type name of objects stored in the table.
func (t *Table) TypeName() string {
	if t.child != "" {
		return t.entity + "." + t.child
	}
	return t.entity
}

func (t *Table) conn() store.Conn { return t.exec.Conn() }
func (t *Table) dialect() dialect.Dialect { return t.exec.Dialect() }

// Create creates the physical table. Errors, including "already exists",
// are returned as reported by the driver.
func (t *Table) Create(ctx context.Context) error {
	_, err := t.conn().Exec(ctx, t.dialect().CreateTable(t.heading, t.name))
	return err
}

// CreateForeignKeys adds the foreign keys of dialects that do not declare
// them in CREATE TABLE.
func (t *Table) CreateForeignKeys(ctx context.Context) error {
	for _, stmt := range t.dialect().ForeignKeys(t.heading, t.name) {
		if _, err := t.conn().Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) object(attrs types.Row) *types.Object {
	obj := types.NewObject(t.entity, attrs)
	obj.Heading = t.child
	return obj
}

// row encodes attrs in heading order. Missing UUID surrogates are
// generated into attrs; a missing Serial attribute is returned as serial.
func (t *Table) row(attrs types.Row) (cols []string, vals []any, serial *heading.Attribute, err error) {
	for name := range attrs {
		if !t.heading.Has(name) {
			return nil, nil, nil, relerr.UnknownAttribute(t.heading.Name(), name)
		}
	}
	for _, a := range t.heading.Attributes() {
		v, ok := attrs[a.Name()]
		if !ok || v == nil {
			switch a.Domain() {
			case heading.Serial:
				serial = a
				continue
			case heading.UUID:
				v = uuid.New().String()
				attrs[a.Name()] = v
			default:
				if !ok {
					continue
				}
			}
		}
		enc, err := a.Encode(v)
		if err != nil {
			return nil, nil, nil, err
		}
		cols = append(cols, a.Name())
		vals = append(vals, enc)
	}
	return cols, vals, serial, nil
}

// Insert stores one row and returns it as an object. Generated surrogate
// values are filled into the returned object.
func (t *Table) Insert(ctx context.Context, attrs types.Row) (*types.Object, error) {
	attrs = attrs.Clone()
	cols, vals, serial, err := t.row(attrs)
	if err != nil {
		return nil, err
	}
	stmt := &ast.InsertStatement{Table: t.name, Columns: cols, Values: vals}
	if serial != nil {
		stmt.Returning = serial.Name()
	}
	query, args, err := t.dialect().Insert(stmt)
	if err != nil {
		return nil, fmt.Errorf("table: render insert: %w", err)
	}
	id, err := t.conn().Insert(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if serial != nil {
		attrs[serial.Name()] = id
	}
	return t.object(attrs), nil
}

// Query returns the objects matching script.
func (t *Table) Query(ctx context.Context, script builder.Script) ([]*types.Object, error) {
	stmt, err := t.build(script)
	if err != nil {
		return nil, err
	}
	return t.exec.Select(ctx, stmt)
}

// Count returns the number of rows matching script.
func (t *Table) Count(ctx context.Context, script builder.Script) (int64, error) {
	stmt, err := t.build(script)
	if err != nil {
		return 0, err
	}
	return t.exec.Count(ctx, stmt)
}

// Batches returns a cursor reading the rows matching script in batches of
// size, ordered by primary key.
func (t *Table) Batches(script builder.Script, size int) (*executor.Cursor, error) {
	q, err := t.query(script)
	if err != nil {
		return nil, err
	}
	return t.exec.NewCursor(q, t.name, size)
}

// Each yields the rows matching script one by one in primary key order.
func (t *Table) Each(ctx context.Context, script builder.Script, size int) iter.Seq2[*types.Object, error] {
	q, err := t.query(script)
	if err != nil {
		return func(yield func(*types.Object, error) bool) { yield(nil, err) }
	}
	return t.exec.Each(ctx, q, t.name, size)
}

// Find returns the row whose primary key equals values, given in key
// order.
func (t *Table) Find(ctx context.Context, values ...any) (*types.Object, error) {
	if t.heading.PrimaryKey() == nil {
		return nil, relerr.KeyNotFound(t.heading.Name(), heading.PrimaryKeyName)
	}
	return t.FindBy(ctx, heading.PrimaryKeyName, values...)
}

// FindBy returns the row whose key keyName equals values.
func (t *Table) FindBy(ctx context.Context, keyName string, values ...any) (*types.Object, error) {
	key, err := t.heading.Key(keyName)
	if err != nil {
		return nil, err
	}
	if len(values) != key.Len() {
		return nil, relerr.InvalidValue(keyName, values,
			fmt.Sprintf("key %s has %d attributes, got %d values", keyName, key.Len(), len(values)))
	}
	objs, err := t.Query(ctx, func(c *builder.Conditions, tb *builder.Table) {
		for i, a := range key.Attributes() {
			c.Where(tb.Attr(a.Name()).Eq(values[i]))
		}
		c.Limit(1)
	})
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, relerr.Newf(relerr.ErrCategoryStorage, relerr.CodeRowNotFound,
			"no %s row with %s %v", t.TypeName(), keyName, values)
	}
	return objs[0], nil
}

// Update sets attributes of the row identified by obj and returns the
// number of rows changed.
func (t *Table) Update(ctx context.Context, obj *types.Object, set types.Row) (int64, error) {
	where, err := t.identify(obj)
	if err != nil {
		return 0, err
	}
	stmt := &ast.UpdateStatement{Table: t.name, Where: where}
	for _, a := range t.heading.Attributes() {
		v, ok := set[a.Name()]
		if !ok {
			continue
		}
		enc, err := a.Encode(v)
		if err != nil {
			return 0, err
		}
		stmt.Set = append(stmt.Set, ast.Assignment{Column: a.Name(), Value: enc})
	}
	if len(stmt.Set) != len(set) {
		for name := range set {
			if !t.heading.Has(name) {
				return 0, relerr.UnknownAttribute(t.heading.Name(), name)
			}
		}
	}
	if len(stmt.Set) == 0 {
		return 0, nil
	}
	query, args, err := t.dialect().Update(stmt)
	if err != nil {
		return 0, fmt.Errorf("table: render update: %w", err)
	}
	return t.conn().Exec(ctx, query, args...)
}

// Delete removes the row identified by obj and returns the number of rows
// removed.
func (t *Table) Delete(ctx context.Context, obj *types.Object) (int64, error) {
	where, err := t.identify(obj)
	if err != nil {
		return 0, err
	}
	query, args, err := t.dialect().Delete(&ast.DeleteStatement{Table: t.name, Where: where})
	if err != nil {
		return 0, fmt.Errorf("table: render delete: %w", err)
	}
	return t.conn().Exec(ctx, query, args...)
}

// identify builds the equality on obj's identity attributes.
func (t *Table) identify(obj *types.Object) (ast.Expression, error) {
	actual := "<nil>"
	if obj != nil {
		actual = obj.TypeName()
	}
	if obj == nil || actual != t.TypeName() {
		return nil, relerr.TypeMismatch(t.TypeName(), actual)
	}
	var parts []ast.Expression
	for _, a := range t.heading.IdentityAttributes() {
		v, ok := obj.Attributes[a.Name()]
		if !ok {
			return nil, relerr.InvalidValue(a.Name(), nil, "object is missing an identity attribute")
		}
		enc, err := a.Encode(v)
		if err != nil {
			return nil, err
		}
		ref := &ast.ColumnRef{Column: a.Name()}
		if enc == nil {
			parts = append(parts, &ast.IsNullExpr{Expr: ref})
			continue
		}
		parts = append(parts, &ast.BinaryExpr{Left: ref, Operator: ast.OpEq, Right: &ast.Literal{Value: enc}})
	}
	return ast.And(parts...), nil
}

func (t *Table) query(script builder.Script) (*builder.Query, error) {
	if t.child != "" {
		return builder.NewChild(t.registry, t.entity, t.child, script)
	}
	return builder.New(t.registry, t.entity, script)
}

func (t *Table) build(script builder.Script) (*builder.Statement, error) {
	q, err := t.query(script)
	if err != nil {
		return nil, err
	}
	return q.Build(t.name)
}
