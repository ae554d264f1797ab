// Package ast defines the explicit expression and statement tree shared by
// the query builder, the condition parser, the SQL dialects and the
// partition predicate accumulator. Nodes render themselves as SQL text
// with inline literals for logging; dialects render them with bound
// parameters.
package ast

import (
	"fmt"
	"strings"
	"time"
)

// Expression represents an expression in the tree.
type Expression interface {
	expressionNode()
	String() string
}

// Comparison operators.
const (
	OpEq = "="
	OpNe = "!="
	OpLt = "<"
	OpLe = "<="
	OpGt = ">"
	OpGe = ">="
)

// Logical operators.
const (
	OpAnd = "AND"
	OpOr  = "OR"
	OpNot = "NOT"
)

// IsComparison reports whether op is a comparison operator.
func IsComparison(op string) bool {
	switch op {
	case OpEq, OpNe, "<>", OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// ReverseOperator returns the operator that holds with its operands swapped.
func ReverseOperator(op string) string {
	switch op {
	case OpLt:
		return OpGt
	case OpGt:
		return OpLt
	case OpLe:
		return OpGe
	case OpGe:
		return OpLe
	default:
		return op
	}
}

// BinaryExpr represents a binary operation (e.g., a = b, a AND b).
type BinaryExpr struct {
	Left     Expression
	Operator string
	Right    Expression
}

func (b *BinaryExpr) expressionNode() {}

// String returns the SQL representation of the binary expression.
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Operator, b.Right.String())
}

// UnaryExpr represents a unary operation (NOT x).
type UnaryExpr struct {
	Operator string
	Operand  Expression
}

func (u *UnaryExpr) expressionNode() {}

// String returns the SQL representation of the unary expression.
func (u *UnaryExpr) String() string {
	return fmt.Sprintf("%s %s", u.Operator, u.Operand.String())
}

// ColumnRef represents a column reference. Table is a table alias once
// bound by the builder, or a qualifier name as written in a parsed
// condition.
type ColumnRef struct {
	Table  string
	Column string
}

func (c *ColumnRef) expressionNode() {}

// String returns the SQL representation of the column reference.
func (c *ColumnRef) String() string {
	if c.Table != "" {
		return fmt.Sprintf("%s.%s", c.Table, c.Column)
	}
	return c.Column
}

// Literal represents a literal value, already encoded for the driver
// when produced by the builder.
type Literal struct {
	Value interface{}
}

func (l *Literal) expressionNode() {}

// String returns the SQL representation of the literal.
func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case string:
		escaped := strings.ReplaceAll(v, "'", "''")
		return fmt.Sprintf("'%s'", escaped)
	case nil:
		return "NULL"
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return fmt.Sprintf("'%s'", v.Format(time.RFC3339Nano))
	case []byte:
		return fmt.Sprintf("X'%X'", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// AggregateExpr represents an aggregate function call.
type AggregateExpr struct {
	Function string // COUNT, SUM, AVG, MIN, MAX
	Arg      Expression
	Distinct bool
}

func (a *AggregateExpr) expressionNode() {}

// String returns the SQL representation of the aggregate expression.
func (a *AggregateExpr) String() string {
	var sb strings.Builder
	sb.WriteString(a.Function)
	sb.WriteString("(")
	if a.Distinct {
		sb.WriteString("DISTINCT ")
	}
	if a.Arg != nil {
		sb.WriteString(a.Arg.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// StarExpr represents the * wildcard.
type StarExpr struct {
	Table string
}

func (s *StarExpr) expressionNode() {}

// String returns the SQL representation of the star expression.
func (s *StarExpr) String() string {
	if s.Table != "" {
		return fmt.Sprintf("%s.*", s.Table)
	}
	return "*"
}

// InExpr represents an IN expression (e.g., x IN (1, 2, 3)).
type InExpr struct {
	Expr   Expression
	Values []Expression
	Not    bool
}

func (i *InExpr) expressionNode() {}

// String returns the SQL representation of the IN expression.
func (i *InExpr) String() string {
	values := make([]string, len(i.Values))
	for j, v := range i.Values {
		values[j] = v.String()
	}
	if i.Not {
		return fmt.Sprintf("%s NOT IN (%s)", i.Expr.String(), strings.Join(values, ", "))
	}
	return fmt.Sprintf("%s IN (%s)", i.Expr.String(), strings.Join(values, ", "))
}

// BetweenExpr represents a BETWEEN expression.
type BetweenExpr struct {
	Expr Expression
	Low  Expression
	High Expression
	Not  bool
}

func (b *BetweenExpr) expressionNode() {}

// String returns the SQL representation of the BETWEEN expression.
func (b *BetweenExpr) String() string {
	if b.Not {
		return fmt.Sprintf("%s NOT BETWEEN %s AND %s", b.Expr.String(), b.Low.String(), b.High.String())
	}
	return fmt.Sprintf("%s BETWEEN %s AND %s", b.Expr.String(), b.Low.String(), b.High.String())
}

// IsNullExpr represents an IS NULL or IS NOT NULL expression.
type IsNullExpr struct {
	Expr Expression
	Not  bool
}

func (i *IsNullExpr) expressionNode() {}

// String returns the SQL representation of the IS NULL expression.
func (i *IsNullExpr) String() string {
	if i.Not {
		return fmt.Sprintf("%s IS NOT NULL", i.Expr.String())
	}
	return fmt.Sprintf("%s IS NULL", i.Expr.String())
}

// LikeExpr represents a LIKE expression.
type LikeExpr struct {
	Expr    Expression
	Pattern Expression
	Not     bool
}

func (l *LikeExpr) expressionNode() {}

// String returns the SQL representation of the LIKE expression.
func (l *LikeExpr) String() string {
	if l.Not {
		return fmt.Sprintf("%s NOT LIKE %s", l.Expr.String(), l.Pattern.String())
	}
	return fmt.Sprintf("%s LIKE %s", l.Expr.String(), l.Pattern.String())
}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Expr Expression
}

func (p *ParenExpr) expressionNode() {}

// String returns the SQL representation of the parenthesized expression.
func (p *ParenExpr) String() string {
	return fmt.Sprintf("(%s)", p.Expr.String())
}

// And joins the non-nil expressions with AND. It returns nil when none
// remain and the single expression when only one does.
func And(exprs ...Expression) Expression {
	return fold(OpAnd, exprs)
}

// Or joins the non-nil expressions with OR.
func Or(exprs ...Expression) Expression {
	return fold(OpOr, exprs)
}

// Not negates e; Not(nil) is nil.
func Not(e Expression) Expression {
	if e == nil {
		return nil
	}
	return &UnaryExpr{Operator: OpNot, Operand: e}
}

func fold(op string, exprs []Expression) Expression {
	var out Expression
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if out == nil {
			out = e
			continue
		}
		out = &BinaryExpr{Left: out, Operator: op, Right: e}
	}
	return out
}

// Conjuncts splits an AND tree into its operands.
func Conjuncts(e Expression) []Expression {
	switch x := e.(type) {
	case nil:
		return nil
	case *BinaryExpr:
		if strings.EqualFold(x.Operator, OpAnd) {
			return append(Conjuncts(x.Left), Conjuncts(x.Right)...)
		}
	case *ParenExpr:
		return Conjuncts(x.Expr)
	}
	return []Expression{e}
}
