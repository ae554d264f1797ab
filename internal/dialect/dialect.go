// Package dialect renders ast statements into SQL text with bound
// parameters and generates the DDL for headings. SQLite and Postgres are
// supported.
package dialect

import (
	"fmt"
	"strings"

	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/ast"
)

// Dialect is the statement builder and DDL generator for one database.
type Dialect interface {
	// Name returns the dialect name ("sqlite" or "postgres").
	Name() string

	Select(s *ast.SelectStatement) (string, []any, error)
	// Count renders SELECT COUNT(*) over the rows of s.
	Count(s *ast.SelectStatement) (string, []any, error)
	Insert(s *ast.InsertStatement) (string, []any, error)
	Upsert(s *ast.UpsertStatement) (string, []any, error)
	Update(s *ast.UpdateStatement) (string, []any, error)
	Delete(s *ast.DeleteStatement) (string, []any, error)

	// CreateTable returns the CREATE TABLE statement for h stored under
	// the physical name table.
	CreateTable(h *heading.Heading, table string) string
	// ForeignKeys returns the ALTER TABLE statements adding h's foreign
	// keys, for dialects that do not declare them inline.
	ForeignKeys(h *heading.Heading, table string) []string
	// ReturnsGeneratedID reports whether inserts hand back generated
	// serials through RETURNING.
	ReturnsGeneratedID() bool
	// IsAlreadyExists reports whether err says the table being created
	// exists already.
	IsAlreadyExists(err error) bool
}

// New returns the dialect with the given name.
func New(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql", "pgx":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("dialect: unknown dialect %q", name)
	}
}

// Quote quotes an identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Quote(n)
	}
	return strings.Join(out, ", ")
}

// renderer accumulates SQL text and arguments.
type renderer struct {
	sb          strings.Builder
	args        []any
	placeholder func(n int) string
}

func (r *renderer) write(s string) { r.sb.WriteString(s) }

func (r *renderer) bind(v any) {
	r.args = append(r.args, v)
	r.write(r.placeholder(len(r.args)))
}

func (r *renderer) expr(e ast.Expression) error {
	switch x := e.(type) {
	case *ast.BinaryExpr:
		op := x.Operator
		if op == "<>" {
			op = ast.OpNe
		}
		r.write("(")
		if err := r.expr(x.Left); err != nil {
			return err
		}
		r.write(" " + op + " ")
		if err := r.expr(x.Right); err != nil {
			return err
		}
		r.write(")")
	case *ast.UnaryExpr:
		r.write(x.Operator + " ")
		return r.expr(x.Operand)
	case *ast.ColumnRef:
		if x.Table != "" {
			r.write(Quote(x.Table) + ".")
		}
		r.write(Quote(x.Column))
	case *ast.Literal:
		if x.Value == nil {
			r.write("NULL")
		} else {
			r.bind(x.Value)
		}
	case *ast.ParenExpr:
		r.write("(")
		if err := r.expr(x.Expr); err != nil {
			return err
		}
		r.write(")")
	case *ast.InExpr:
		if err := r.expr(x.Expr); err != nil {
			return err
		}
		if x.Not {
			r.write(" NOT")
		}
		r.write(" IN (")
		for i, v := range x.Values {
			if i > 0 {
				r.write(", ")
			}
			if err := r.expr(v); err != nil {
				return err
			}
		}
		r.write(")")
	case *ast.BetweenExpr:
		if err := r.expr(x.Expr); err != nil {
			return err
		}
		if x.Not {
			r.write(" NOT")
		}
		r.write(" BETWEEN ")
		if err := r.expr(x.Low); err != nil {
			return err
		}
		r.write(" AND ")
		return r.expr(x.High)
	case *ast.LikeExpr:
		if err := r.expr(x.Expr); err != nil {
			return err
		}
		if x.Not {
			r.write(" NOT")
		}
		r.write(" LIKE ")
		return r.expr(x.Pattern)
	case *ast.IsNullExpr:
		if err := r.expr(x.Expr); err != nil {
			return err
		}
		if x.Not {
			r.write(" IS NOT NULL")
		} else {
			r.write(" IS NULL")
		}
	case *ast.StarExpr:
		if x.Table != "" {
			r.write(Quote(x.Table) + ".")
		}
		r.write("*")
	case *ast.AggregateExpr:
		r.write(strings.ToUpper(x.Function) + "(")
		if x.Distinct {
			r.write("DISTINCT ")
		}
		if x.Arg == nil {
			r.write("*")
		} else if err := r.expr(x.Arg); err != nil {
			return err
		}
		r.write(")")
	default:
		return fmt.Errorf("dialect: cannot render %T", e)
	}
	return nil
}

func (r *renderer) selectStmt(s *ast.SelectStatement) error {
	if s.From == nil {
		return fmt.Errorf("dialect: select without FROM")
	}
	r.write("SELECT ")
	if s.Distinct {
		r.write("DISTINCT ")
	}
	for i, c := range s.Columns {
		if i > 0 {
			r.write(", ")
		}
		if err := r.expr(c.Expr); err != nil {
			return err
		}
		if c.Alias != "" {
			r.write(" AS " + Quote(c.Alias))
		}
	}
	r.write(" FROM ")
	r.tableRef(s.From)
	for _, j := range s.Joins {
		r.write(" " + j.Kind.String() + " ")
		r.tableRef(j.Table)
		r.write(" ON ")
		if err := r.expr(j.On); err != nil {
			return err
		}
	}
	if s.Where != nil {
		r.write(" WHERE ")
		if err := r.expr(s.Where); err != nil {
			return err
		}
	}
	if len(s.OrderBy) > 0 {
		r.write(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				r.write(", ")
			}
			if err := r.expr(o.Expr); err != nil {
				return err
			}
			if o.Desc {
				r.write(" DESC")
			} else {
				r.write(" ASC")
			}
		}
	}
	if s.Limit != nil {
		r.write(fmt.Sprintf(" LIMIT %d", *s.Limit))
	}
	if s.Offset != nil {
		r.write(fmt.Sprintf(" OFFSET %d", *s.Offset))
	}
	return nil
}

func (r *renderer) tableRef(t *ast.TableRef) {
	r.write(Quote(t.Name))
	if t.Alias != "" {
		r.write(" AS " + Quote(t.Alias))
	}
}

func (r *renderer) insert(s *ast.InsertStatement) error {
	if len(s.Columns) != len(s.Values) {
		return fmt.Errorf("dialect: insert into %s has %d columns and %d values", s.Table, len(s.Columns), len(s.Values))
	}
	r.write("INSERT INTO " + Quote(s.Table))
	if len(s.Columns) == 0 {
		r.write(" DEFAULT VALUES")
		return nil
	}
	r.write(" (" + quoteAll(s.Columns) + ") VALUES (")
	for i, v := range s.Values {
		if i > 0 {
			r.write(", ")
		}
		r.bind(v)
	}
	r.write(")")
	return nil
}

func (r *renderer) upsert(s *ast.UpsertStatement) error {
	if s.Insert == nil || len(s.ConflictColumns) == 0 {
		return fmt.Errorf("dialect: upsert needs an insert and conflict columns")
	}
	if err := r.insert(s.Insert); err != nil {
		return err
	}
	r.write(" ON CONFLICT (" + quoteAll(s.ConflictColumns) + ")")
	if len(s.UpdateColumns) == 0 {
		r.write(" DO NOTHING")
		return nil
	}
	r.write(" DO UPDATE SET ")
	for i, c := range s.UpdateColumns {
		if i > 0 {
			r.write(", ")
		}
		q := Quote(c)
		switch s.Strategy {
		case ast.UpsertIncrement:
			r.write(fmt.Sprintf("%s = %s.%s + excluded.%s", q, Quote(s.Insert.Table), q, q))
		case ast.UpsertReplace, "":
			r.write(fmt.Sprintf("%s = excluded.%s", q, q))
		default:
			return fmt.Errorf("dialect: unknown upsert strategy %q", s.Strategy)
		}
	}
	return nil
}

func (r *renderer) update(s *ast.UpdateStatement) error {
	if len(s.Set) == 0 {
		return fmt.Errorf("dialect: update of %s sets nothing", s.Table)
	}
	r.write("UPDATE " + Quote(s.Table) + " SET ")
	for i, a := range s.Set {
		if i > 0 {
			r.write(", ")
		}
		r.write(Quote(a.Column) + " = ")
		if a.Value == nil {
			r.write("NULL")
		} else {
			r.bind(a.Value)
		}
	}
	if s.Where != nil {
		r.write(" WHERE ")
		return r.expr(s.Where)
	}
	return nil
}

func (r *renderer) delete(s *ast.DeleteStatement) error {
	r.write("DELETE FROM " + Quote(s.Table))
	if s.Where != nil {
		r.write(" WHERE ")
		return r.expr(s.Where)
	}
	return nil
}

// base implements the rendering shared by every dialect.
type base struct {
	placeholder func(n int) string
}

func (b base) render(fn func(r *renderer) error) (string, []any, error) {
	r := &renderer{placeholder: b.placeholder}
	if err := fn(r); err != nil {
		return "", nil, err
	}
	return r.sb.String(), r.args, nil
}

func (b base) Select(s *ast.SelectStatement) (string, []any, error) {
	return b.render(func(r *renderer) error { return r.selectStmt(s) })
}

func (b base) Count(s *ast.SelectStatement) (string, []any, error) {
	return b.render(func(r *renderer) error {
		r.write("SELECT COUNT(*) FROM (")
		if err := r.selectStmt(s); err != nil {
			return err
		}
		r.write(") AS " + Quote("counted"))
		return nil
	})
}

func (b base) Insert(s *ast.InsertStatement) (string, []any, error) {
	return b.render(func(r *renderer) error {
		if err := r.insert(s); err != nil {
			return err
		}
		if s.Returning != "" {
			r.write(" RETURNING " + Quote(s.Returning))
		}
		return nil
	})
}

func (b base) Upsert(s *ast.UpsertStatement) (string, []any, error) {
	return b.render(func(r *renderer) error { return r.upsert(s) })
}

func (b base) Update(s *ast.UpdateStatement) (string, []any, error) {
	return b.render(func(r *renderer) error { return r.update(s) })
}

func (b base) Delete(s *ast.DeleteStatement) (string, []any, error) {
	return b.render(func(r *renderer) error { return r.delete(s) })
}

// columnTypes maps domains to column types.
type columnTypes map[heading.Domain]string

// createTable renders the column list, the primary key and the unique
// keys of h. inlineFKs adds the foreign keys as table constraints.
// serialPK, when non-empty, is the inline column definition used for a
// sole Serial primary key attribute.
func createTable(h *heading.Heading, table string, types columnTypes, serialPK string, inlineFKs bool) string {
	var defs []string

	pk := h.PrimaryKey()
	inlinePK := serialPK != "" && pk != nil && pk.Len() == 1 && pk.Attributes()[0].Domain() == heading.Serial

	for _, a := range h.Attributes() {
		if inlinePK && a == pk.Attributes()[0] {
			defs = append(defs, Quote(a.Name())+" "+serialPK)
			continue
		}
		defs = append(defs, Quote(a.Name())+" "+types[a.Domain()])
	}

	if pk != nil && !inlinePK {
		defs = append(defs, "PRIMARY KEY ("+quoteAll(heading.Names(pk.Attributes()))+")")
	}
	for _, k := range h.Keys() {
		if k.Primary() {
			continue
		}
		defs = append(defs, "UNIQUE ("+quoteAll(heading.Names(k.Attributes()))+")")
	}
	if inlineFKs {
		for _, fk := range h.ForeignKeys() {
			defs = append(defs, foreignKeyClause(fk))
		}
	}

	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", Quote(table), strings.Join(defs, ",\n    "))
}

func foreignKeyClause(fk *heading.ForeignKey) string {
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
		quoteAll(heading.Names(fk.Attributes())),
		Quote(fk.Parent().Name()),
		quoteAll(heading.Names(fk.ParentKey().Attributes())))
}
