package ast

import "strings"

// PredicateType represents the type of a predicate.
type PredicateType int

const (
	PredicateEquality PredicateType = iota // column = value, column != value
	PredicateRange                         // column < value, column > value, etc.
	PredicateIn                            // column IN (v1, v2, ...)
	PredicateBetween                       // column BETWEEN low AND high
	PredicateLike                          // column LIKE pattern
	PredicateIsNull                        // column IS NULL / IS NOT NULL
)

// Predicate is one column-versus-literal condition found in an expression.
type Predicate struct {
	Type     PredicateType
	Column   string
	Table    string
	Operator string
	Value    interface{}
	Values   []interface{}
	Low      interface{}
	High     interface{}
	Not      bool
}

// Literals returns every literal the predicate compares its column with.
func (p Predicate) Literals() []interface{} {
	switch p.Type {
	case PredicateIn:
		return p.Values
	case PredicateBetween:
		return []interface{}{p.Low, p.High}
	case PredicateIsNull:
		return nil
	default:
		return []interface{}{p.Value}
	}
}

// PredicateExtractor walks an expression and records its predicates.
type PredicateExtractor struct {
	predicates []Predicate
}

// NewPredicateExtractor creates a new PredicateExtractor.
func NewPredicateExtractor() *PredicateExtractor {
	return &PredicateExtractor{}
}

// ExtractPredicates returns every column-versus-literal predicate in expr,
// in tree order, regardless of the AND/OR/NOT structure around it.
func ExtractPredicates(expr Expression) []Predicate {
	if expr == nil {
		return nil
	}
	e := NewPredicateExtractor()
	e.extract(expr)
	return e.predicates
}

func (e *PredicateExtractor) extract(expr Expression) {
	switch ex := expr.(type) {
	case *BinaryExpr:
		e.extractBinary(ex)
	case *InExpr:
		e.extractIn(ex)
	case *BetweenExpr:
		e.extractBetween(ex)
	case *LikeExpr:
		e.extractLike(ex)
	case *IsNullExpr:
		e.extractIsNull(ex)
	case *UnaryExpr:
		if strings.EqualFold(ex.Operator, OpNot) {
			e.extract(ex.Operand)
		}
	case *ParenExpr:
		e.extract(ex.Expr)
	}
}

func (e *PredicateExtractor) extractBinary(expr *BinaryExpr) {
	switch strings.ToUpper(expr.Operator) {
	case OpAnd, OpOr:
		e.extract(expr.Left)
		e.extract(expr.Right)
	case OpEq, "<>", OpNe:
		e.extractComparison(expr, PredicateEquality)
	case OpLt, OpGt, OpLe, OpGe:
		e.extractComparison(expr, PredicateRange)
	}
}

func (e *PredicateExtractor) extractComparison(expr *BinaryExpr, predType PredicateType) {
	if col, ok := expr.Left.(*ColumnRef); ok {
		if val, ok := literalValue(expr.Right); ok {
			e.predicates = append(e.predicates, Predicate{
				Type:     predType,
				Column:   col.Column,
				Table:    col.Table,
				Operator: expr.Operator,
				Value:    val,
			})
			return
		}
	}

	if col, ok := expr.Right.(*ColumnRef); ok {
		if val, ok := literalValue(expr.Left); ok {
			e.predicates = append(e.predicates, Predicate{
				Type:     predType,
				Column:   col.Column,
				Table:    col.Table,
				Operator: ReverseOperator(expr.Operator),
				Value:    val,
			})
		}
	}
}

func (e *PredicateExtractor) extractIn(expr *InExpr) {
	col, ok := expr.Expr.(*ColumnRef)
	if !ok {
		return
	}

	var values []interface{}
	for _, v := range expr.Values {
		if val, ok := literalValue(v); ok {
			values = append(values, val)
		}
	}

	if len(values) > 0 {
		e.predicates = append(e.predicates, Predicate{
			Type:     PredicateIn,
			Column:   col.Column,
			Table:    col.Table,
			Operator: "IN",
			Values:   values,
			Not:      expr.Not,
		})
	}
}

func (e *PredicateExtractor) extractBetween(expr *BetweenExpr) {
	col, ok := expr.Expr.(*ColumnRef)
	if !ok {
		return
	}

	low, lok := literalValue(expr.Low)
	high, hok := literalValue(expr.High)
	if lok && hok {
		e.predicates = append(e.predicates, Predicate{
			Type:     PredicateBetween,
			Column:   col.Column,
			Table:    col.Table,
			Operator: "BETWEEN",
			Low:      low,
			High:     high,
			Not:      expr.Not,
		})
	}
}

func (e *PredicateExtractor) extractLike(expr *LikeExpr) {
	col, ok := expr.Expr.(*ColumnRef)
	if !ok {
		return
	}

	if pattern, ok := literalValue(expr.Pattern); ok {
		e.predicates = append(e.predicates, Predicate{
			Type:     PredicateLike,
			Column:   col.Column,
			Table:    col.Table,
			Operator: "LIKE",
			Value:    pattern,
			Not:      expr.Not,
		})
	}
}

func (e *PredicateExtractor) extractIsNull(expr *IsNullExpr) {
	col, ok := expr.Expr.(*ColumnRef)
	if !ok {
		return
	}

	e.predicates = append(e.predicates, Predicate{
		Type:     PredicateIsNull,
		Column:   col.Column,
		Table:    col.Table,
		Operator: "IS NULL",
		Not:      expr.Not,
	})
}

// literalValue extracts a non-NULL literal value from an expression.
func literalValue(expr Expression) (interface{}, bool) {
	switch ex := expr.(type) {
	case *Literal:
		return ex.Value, ex.Value != nil
	case *ParenExpr:
		return literalValue(ex.Expr)
	case *UnaryExpr:
		if ex.Operator == "-" {
			if val, ok := literalValue(ex.Operand); ok {
				switch v := val.(type) {
				case int64:
					return -v, true
				case float64:
					return -v, true
				}
			}
		}
	}
	return nil, false
}

// FilterPredicates returns the predicates on table.column.
func FilterPredicates(predicates []Predicate, table, column string) []Predicate {
	var result []Predicate
	for _, p := range predicates {
		if p.Table == table && p.Column == column {
			result = append(result, p)
		}
	}
	return result
}

// Walk calls fn for expr and every expression below it, depth first.
func Walk(expr Expression, fn func(Expression)) {
	if expr == nil {
		return
	}
	fn(expr)
	switch ex := expr.(type) {
	case *BinaryExpr:
		Walk(ex.Left, fn)
		Walk(ex.Right, fn)
	case *UnaryExpr:
		Walk(ex.Operand, fn)
	case *InExpr:
		Walk(ex.Expr, fn)
		for _, v := range ex.Values {
			Walk(v, fn)
		}
	case *BetweenExpr:
		Walk(ex.Expr, fn)
		Walk(ex.Low, fn)
		Walk(ex.High, fn)
	case *IsNullExpr:
		Walk(ex.Expr, fn)
	case *LikeExpr:
		Walk(ex.Expr, fn)
		Walk(ex.Pattern, fn)
	case *ParenExpr:
		Walk(ex.Expr, fn)
	case *AggregateExpr:
		Walk(ex.Arg, fn)
	}
}

// ReferencedTables returns the set of table qualifiers used by column
// references in expr.
func ReferencedTables(expr Expression) map[string]bool {
	tables := make(map[string]bool)
	Walk(expr, func(e Expression) {
		if c, ok := e.(*ColumnRef); ok && c.Table != "" {
			tables[c.Table] = true
		}
	})
	return tables
}
