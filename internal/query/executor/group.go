package executor

import (
	"fmt"
	"strings"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/builder"
	"github.com/relmap/relmap/internal/store"
	"github.com/relmap/relmap/pkg/types"
)

// columnSet is the slice of result columns carrying one join's attributes.
type columnSet struct {
	join    *builder.Join
	indexes []int
	attrs   []*heading.Attribute
}

// group folds result rows into root objects. Rows sharing a root identity
// become one object; projected join rows are attached under the join name,
// nested below the nearest projected ancestor join.
func group(stmt *builder.Statement, res *store.Result) ([]*types.Object, error) {
	if len(res.Columns) != len(stmt.Bindings) {
		return nil, fmt.Errorf("executor: %d columns returned for %d bindings", len(res.Columns), len(stmt.Bindings))
	}

	root := &columnSet{}
	var sets []*columnSet
	byJoin := make(map[*builder.Join]*columnSet)
	for i, b := range stmt.Bindings {
		set := root
		if b.Join != nil {
			set = byJoin[b.Join]
			if set == nil {
				set = &columnSet{join: b.Join}
				byJoin[b.Join] = set
				sets = append(sets, set)
			}
		}
		set.indexes = append(set.indexes, i)
		set.attrs = append(set.attrs, b.Attribute)
	}

	var out []*types.Object
	roots := make(map[string]*types.Object)
	seen := make(map[*types.Object]map[string]bool)

	for _, row := range res.Rows {
		attrs, _, err := root.decode(row)
		if err != nil {
			return nil, err
		}
		id := identity(stmt.Root, attrs)
		obj, ok := roots[id]
		if !ok {
			obj = types.NewObject(stmt.Entity, attrs)
			obj.Heading = stmt.Child
			roots[id] = obj
			out = append(out, obj)
		}

		// Objects of this row per join, for nesting.
		rowObjects := make(map[*builder.Join]*types.Object, len(sets))
		for _, set := range sets {
			attrs, null, err := set.decode(row)
			if err != nil {
				return nil, err
			}
			if null {
				continue
			}
			j := set.join
			owner, name := obj, j.Name
			if anc := projectedAncestor(j); anc != nil {
				owner = rowObjects[anc]
				if owner == nil {
					continue
				}
				name = strings.TrimPrefix(j.Name, anc.Name+".")
			}

			key := name + "\x00" + identity(j.Heading, attrs)
			if seen[owner] == nil {
				seen[owner] = make(map[string]bool)
			}
			if seen[owner][key] {
				rowObjects[j] = findAssociated(owner, name, j.Heading, attrs)
				continue
			}
			seen[owner][key] = true

			child := types.NewObject(j.Entity, attrs)
			child.Heading = j.Child
			owner.Associate(name, child)
			rowObjects[j] = child
		}
	}
	return out, nil
}

// decode decodes the set's columns of row. null reports that every column
// was NULL, which is how a LEFT JOIN reports a missing row.
func (s *columnSet) decode(row []any) (types.Row, bool, error) {
	attrs := make(types.Row, len(s.indexes))
	null := true
	for k, i := range s.indexes {
		a := s.attrs[k]
		v, err := a.Decode(row[i])
		if err != nil {
			return nil, false, relerr.Wrap(relerr.ErrCategoryStorage, relerr.CodeInvalidValue,
				fmt.Sprintf("cannot decode column %s", a.Name()), err)
		}
		if v != nil {
			null = false
		}
		attrs[a.Name()] = v
	}
	return attrs, null, nil
}

func projectedAncestor(j *builder.Join) *builder.Join {
	for k := j.Parent; k != nil; k = k.Parent {
		if k.Projected {
			return k
		}
	}
	return nil
}

func findAssociated(owner *types.Object, name string, h *heading.Heading, attrs types.Row) *types.Object {
	id := identity(h, attrs)
	for _, o := range owner.Many(name) {
		if identity(h, o.Attributes) == id {
			return o
		}
	}
	return nil
}

// identity renders the identity attribute values of a row as a map key.
func identity(h *heading.Heading, attrs types.Row) string {
	var sb strings.Builder
	for i, a := range h.IdentityAttributes() {
		if i > 0 {
			sb.WriteByte(0)
		}
		fmt.Fprintf(&sb, "%T:%v", attrs[a.Name()], attrs[a.Name()])
	}
	return sb.String()
}
