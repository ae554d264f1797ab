package builder

import (
	"strings"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/query/ast"
)

// Bind resolves a parsed condition against the table. Unqualified columns
// are attributes of the table; a qualifier names one of its simple
// associations, an associated entity, or the table's own entity.
// Literals are encoded with the domain of the column they are compared
// with.
func (t *Table) Bind(expr ast.Expression) ast.Expression {
	if t.broken() || expr == nil {
		return nil
	}
	return t.bind(expr)
}

// BindOrderBy resolves parsed ORDER BY clauses against the table.
func (t *Table) BindOrderBy(clauses []ast.OrderByClause) []ast.OrderByClause {
	out := make([]ast.OrderByClause, 0, len(clauses))
	for _, o := range clauses {
		ref, ok := o.Expr.(*ast.ColumnRef)
		if !ok {
			t.b.fail(relerr.Newf(relerr.ErrCategoryValue, relerr.CodeParseError, "cannot order by %s", o.Expr))
			continue
		}
		col := t.resolve(ref)
		if o.Desc {
			out = append(out, col.Desc())
		} else {
			out = append(out, col.Asc())
		}
	}
	return out
}

func (t *Table) resolve(ref *ast.ColumnRef) *Column {
	switch {
	case ref.Table == "" || (ref.Table == t.entity && t.child == ""):
		return t.Attr(ref.Column)
	case t.child == "" && t.hasChild(ref.Table):
		return t.Child(ref.Table).Attr(ref.Column)
	default:
		return t.Entity(ref.Table).Attr(ref.Column)
	}
}

func (t *Table) hasChild(name string) bool {
	_, err := t.b.registry.ChildHeading(t.entity, name)
	return err == nil
}

func (t *Table) bind(expr ast.Expression) ast.Expression {
	switch x := expr.(type) {
	case *ast.ColumnRef:
		return t.resolve(x).Ref()
	case *ast.Literal:
		return x
	case *ast.ParenExpr:
		inner := t.bind(x.Expr)
		if inner == nil {
			return nil
		}
		return &ast.ParenExpr{Expr: inner}
	case *ast.UnaryExpr:
		if strings.EqualFold(x.Operator, ast.OpNot) {
			return ast.Not(t.bind(x.Operand))
		}
	case *ast.BinaryExpr:
		op := strings.ToUpper(x.Operator)
		switch {
		case op == ast.OpAnd:
			return ast.And(t.bind(x.Left), t.bind(x.Right))
		case op == ast.OpOr:
			return ast.Or(t.bind(x.Left), t.bind(x.Right))
		case ast.IsComparison(op):
			if op == "<>" {
				op = ast.OpNe
			}
			return t.bindComparison(op, x.Left, x.Right)
		}
	case *ast.InExpr:
		ref, ok := x.Expr.(*ast.ColumnRef)
		if !ok {
			break
		}
		values, ok := literals(x.Values)
		if !ok {
			break
		}
		return t.resolve(ref).in(x.Not, values)
	case *ast.BetweenExpr:
		ref, ok := x.Expr.(*ast.ColumnRef)
		low, lok := x.Low.(*ast.Literal)
		high, hok := x.High.(*ast.Literal)
		if !ok || !lok || !hok {
			break
		}
		e := t.resolve(ref).Between(low.Value, high.Value)
		if b, ok := e.(*ast.BetweenExpr); ok {
			b.Not = x.Not
		}
		return e
	case *ast.LikeExpr:
		ref, ok := x.Expr.(*ast.ColumnRef)
		pattern, pok := x.Pattern.(*ast.Literal)
		if !ok || !pok {
			break
		}
		s, ok := pattern.Value.(string)
		if !ok {
			break
		}
		e := t.resolve(ref).Like(s)
		if l, ok := e.(*ast.LikeExpr); ok {
			l.Not = x.Not
		}
		return e
	case *ast.IsNullExpr:
		ref, ok := x.Expr.(*ast.ColumnRef)
		if !ok {
			break
		}
		col := t.resolve(ref)
		if x.Not {
			return col.IsNotNull()
		}
		return col.IsNull()
	}
	t.b.fail(relerr.Newf(relerr.ErrCategoryValue, relerr.CodeParseError, "unsupported condition %s", expr))
	return nil
}

func (t *Table) bindComparison(op string, left, right ast.Expression) ast.Expression {
	lref, lcol := left.(*ast.ColumnRef)
	rref, rcol := right.(*ast.ColumnRef)
	switch {
	case lcol && rcol:
		return t.resolve(lref).compare(op, t.resolve(rref))
	case lcol:
		if lit, ok := right.(*ast.Literal); ok {
			return t.resolve(lref).compare(op, lit.Value)
		}
	case rcol:
		if lit, ok := left.(*ast.Literal); ok {
			return t.resolve(rref).compare(ast.ReverseOperator(op), lit.Value)
		}
	}
	t.b.fail(relerr.Newf(relerr.ErrCategoryValue, relerr.CodeParseError,
		"comparison %s %s %s needs a column", left, op, right))
	return nil
}

func literals(exprs []ast.Expression) ([]any, bool) {
	out := make([]any, len(exprs))
	for i, e := range exprs {
		lit, ok := e.(*ast.Literal)
		if !ok {
			return nil, false
		}
		out[i] = lit.Value
	}
	return out, true
}
