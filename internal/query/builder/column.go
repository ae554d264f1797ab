package builder

import (
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/ast"
)

// Column is an attribute of a table in a script. Values compared with a
// column are encoded with the attribute's domain; comparing with another
// *Column compares the two columns.
type Column struct {
	table *Table
	attr  *heading.Attribute
}

// Attribute returns the attribute, or nil for a column that failed to
// resolve.
func (c *Column) Attribute() *heading.Attribute { return c.attr }

// Ref returns the column reference.
func (c *Column) Ref() *ast.ColumnRef {
	if c.attr == nil {
		return &ast.ColumnRef{}
	}
	return &ast.ColumnRef{Table: c.table.alias, Column: c.attr.Name()}
}

func (c *Column) operand(v any) (ast.Expression, bool) {
	if c.attr == nil {
		return nil, false
	}
	if other, ok := v.(*Column); ok {
		if other.attr == nil {
			return nil, false
		}
		return other.Ref(), true
	}
	enc, err := c.attr.Encode(v)
	if err != nil {
		c.table.b.fail(err)
		return nil, false
	}
	return &ast.Literal{Value: enc}, true
}

func (c *Column) compare(op string, v any) ast.Expression {
	if c.attr == nil {
		return nil
	}
	if v == nil && (op == ast.OpEq || op == ast.OpNe) {
		return &ast.IsNullExpr{Expr: c.Ref(), Not: op == ast.OpNe}
	}
	right, ok := c.operand(v)
	if !ok {
		return nil
	}
	return &ast.BinaryExpr{Left: c.Ref(), Operator: op, Right: right}
}

// Eq is column = v. A nil v tests IS NULL.
func (c *Column) Eq(v any) ast.Expression { return c.compare(ast.OpEq, v) }

// Ne is column != v. A nil v tests IS NOT NULL.
func (c *Column) Ne(v any) ast.Expression { return c.compare(ast.OpNe, v) }

func (c *Column) Lt(v any) ast.Expression { return c.compare(ast.OpLt, v) }
func (c *Column) Le(v any) ast.Expression { return c.compare(ast.OpLe, v) }
func (c *Column) Gt(v any) ast.Expression { return c.compare(ast.OpGt, v) }
func (c *Column) Ge(v any) ast.Expression { return c.compare(ast.OpGe, v) }

// In is column IN (values...).
func (c *Column) In(values ...any) ast.Expression { return c.in(false, values) }

// NotIn is column NOT IN (values...).
func (c *Column) NotIn(values ...any) ast.Expression { return c.in(true, values) }

func (c *Column) in(not bool, values []any) ast.Expression {
	if c.attr == nil {
		return nil
	}
	exprs := make([]ast.Expression, 0, len(values))
	for _, v := range values {
		e, ok := c.operand(v)
		if !ok {
			return nil
		}
		exprs = append(exprs, e)
	}
	if len(exprs) == 0 {
		// IN () matches nothing and NOT IN () everything.
		if not {
			return nil
		}
		return &ast.BinaryExpr{Left: &ast.Literal{Value: int64(1)}, Operator: ast.OpEq, Right: &ast.Literal{Value: int64(0)}}
	}
	return &ast.InExpr{Expr: c.Ref(), Values: exprs, Not: not}
}

// Between is column BETWEEN low AND high.
func (c *Column) Between(low, high any) ast.Expression {
	lo, ok := c.operand(low)
	if !ok {
		return nil
	}
	hi, ok := c.operand(high)
	if !ok {
		return nil
	}
	return &ast.BetweenExpr{Expr: c.Ref(), Low: lo, High: hi}
}

// Like is column LIKE pattern.
func (c *Column) Like(pattern string) ast.Expression {
	if c.attr == nil {
		return nil
	}
	return &ast.LikeExpr{Expr: c.Ref(), Pattern: &ast.Literal{Value: pattern}}
}

// IsNull is column IS NULL.
func (c *Column) IsNull() ast.Expression {
	if c.attr == nil {
		return nil
	}
	return &ast.IsNullExpr{Expr: c.Ref()}
}

// IsNotNull is column IS NOT NULL.
func (c *Column) IsNotNull() ast.Expression {
	if c.attr == nil {
		return nil
	}
	return &ast.IsNullExpr{Expr: c.Ref(), Not: true}
}

// Asc orders by the column ascending.
func (c *Column) Asc() ast.OrderByClause { return ast.OrderByClause{Expr: c.Ref()} }

// Desc orders by the column descending.
func (c *Column) Desc() ast.OrderByClause { return ast.OrderByClause{Expr: c.Ref(), Desc: true} }
