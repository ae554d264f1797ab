package executor

import (
	"cmp"
	"fmt"
	"sort"
	"time"

	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/query/builder"
	"github.com/relmap/relmap/pkg/types"
)

// SortObjects sorts objects in place by the root attributes the clauses
// name. Clauses on joined columns are ignored; the sort is stable.
func SortObjects(objs []*types.Object, clauses ...ast.OrderByClause) {
	if len(clauses) == 0 || len(objs) <= 1 {
		return
	}

	names := make([]string, 0, len(clauses))
	desc := make([]bool, 0, len(clauses))
	for _, clause := range clauses {
		ref, ok := clause.Expr.(*ast.ColumnRef)
		if !ok || (ref.Table != "" && ref.Table != builder.RootAlias) {
			continue
		}
		names = append(names, ref.Column)
		desc = append(desc, clause.Desc)
	}

	sort.SliceStable(objs, func(i, j int) bool {
		for k, name := range names {
			c := compareValues(objs[i].Get(name), objs[j].Get(name))
			if c == 0 {
				continue
			}
			if desc[k] {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// compareValues orders NULL first, then numbers, times, booleans and
// strings by value; anything else by its text.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	ia, aInt := toInt(a)
	ib, bInt := toInt(b)
	if aInt && bInt {
		return cmp.Compare(ia, ib)
	}

	fa, aOk := toFloat(a)
	fb, bOk := toFloat(b)
	if aOk && bOk {
		return cmp.Compare(fa, fb)
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}

	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			}
			return 1
		}
	}

	sa, aStr := a.(string)
	sb, bStr := b.(string)
	if aStr && bStr {
		return cmp.Compare(sa, sb)
	}

	return cmp.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toInt(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case uint32:
		return int64(val), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint:
		return float64(val), true
	}
	return 0, false
}
