package schema

import (
	"fmt"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
)

// Kind is how a joined heading relates to the heading it is joined from.
type Kind int

const (
	// ChildRef: the target holds a reference whose parent is the root.
	ChildRef Kind = iota + 1
	// ParentRef: the root holds a reference whose parent is the target.
	ParentRef
	// SimpleChild: the target is a simple association of the root entity.
	SimpleChild
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case ChildRef:
		return "child"
	case ParentRef:
		return "parent"
	case SimpleChild:
		return "simple-child"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type assocKey struct {
	from  string
	to    string
	child bool
}

// Association is the precomputed relationship between a root entity and
// a join target.
type Association struct {
	Kind Kind
	// From is the root entity name.
	From string
	// To is the target entity name; for SimpleChild it is the owner entity.
	To string
	// Name is the target entity name or the simple association name.
	Name      string
	Reference *heading.Reference
	Root      *heading.Heading
	Target    *heading.Heading

	ambiguous bool
}

// AttributePair matches a root attribute with the target attribute it
// must equal.
type AttributePair struct {
	Root   *heading.Attribute
	Target *heading.Attribute
}

// JoinPairs returns the equality pairs of the join, in derivation order:
// for ChildRef and SimpleChild the root's key attributes against the
// target's foreign attributes, for ParentRef the root's foreign
// attributes against the target's key attributes.
func (a *Association) JoinPairs() []AttributePair {
	pairs := a.Reference.ForeignKey.Pairs()
	out := make([]AttributePair, len(pairs))
	for i, p := range pairs {
		if a.Kind == ParentRef {
			out[i] = AttributePair{Root: p.Child, Target: p.Parent}
		} else {
			out[i] = AttributePair{Root: p.Parent, Target: p.Child}
		}
	}
	return out
}

// associate records an association between two entities. A ChildRef
// takes precedence over a ParentRef for the same pair, so a root that is
// both parent and child of a target (and a self-reference) is treated as
// the parent. Two references in the same direction make the pair
// ambiguous.
func (r *Registry) associate(a *Association) {
	key := assocKey{from: a.From, to: a.To}
	existing, ok := r.associations[key]
	switch {
	case !ok:
		r.associations[key] = a
	case existing.Kind == a.Kind:
		existing.ambiguous = true
	case a.Kind == ChildRef:
		r.associations[key] = a
	}
}

// Resolve returns the association from entity from to entity to. A
// partitioned entity can only be the root of a query.
func (r *Registry) Resolve(from, to string) (*Association, error) {
	if _, err := r.Entity(from); err != nil {
		return nil, err
	}
	if _, err := r.Entity(to); err != nil {
		return nil, err
	}
	if r.partitioned[to] {
		return nil, relerr.Newf(relerr.ErrCategorySchema, relerr.CodeInvalidSchema,
			"entity %q is partitioned and cannot be joined from %q", to, from)
	}
	a, ok := r.associations[assocKey{from: from, to: to}]
	if !ok {
		return nil, relerr.NoAssociation(from, to)
	}
	if a.ambiguous {
		return nil, relerr.AmbiguousAssociation(from, to)
	}
	return a, nil
}

// ResolveChild returns the association from entity to its simple
// association name.
func (r *Registry) ResolveChild(entity, name string) (*Association, error) {
	a, ok := r.associations[assocKey{from: entity, to: name, child: true}]
	if !ok {
		return nil, relerr.HeadingNotFound(entity, name)
	}
	return a, nil
}
