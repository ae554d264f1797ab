package heading

import (
	"fmt"
	"strings"

	relerr "github.com/relmap/relmap/internal/errors"
)

// Cardinality is the multiplicity of the child side of a reference.
type Cardinality int

const (
	// One means at most one child row per parent row.
	One Cardinality = iota + 1
	// Many means any number of child rows per parent row.
	Many
)

// String implements fmt.Stringer.
func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case Many:
		return "many"
	default:
		return fmt.Sprintf("cardinality(%d)", int(c))
	}
}

// ParseCardinality maps "one"/"many" to a Cardinality. Empty means One.
func ParseCardinality(s string) (Cardinality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "one", "1":
		return One, nil
	case "many", "n", "*":
		return Many, nil
	}
	return 0, fmt.Errorf("heading: unknown cardinality %q", s)
}

// ForeignKey is a key of a child heading derived from a parent key. Its
// attributes pair positionally with the parent key's attributes.
type ForeignKey struct {
	name        string
	child       *Heading
	attributes  []*Attribute
	parent      *Heading
	parentKey   *Key
	cardinality Cardinality
}

// Name returns the child key name.
func (fk *ForeignKey) Name() string { return fk.name }

// Child returns the referencing heading.
func (fk *ForeignKey) Child() *Heading { return fk.child }

// Parent returns the referenced heading.
func (fk *ForeignKey) Parent() *Heading { return fk.parent }

// ParentKey returns the referenced key.
func (fk *ForeignKey) ParentKey() *Key { return fk.parentKey }

// Cardinality returns the child-side multiplicity.
func (fk *ForeignKey) Cardinality() Cardinality { return fk.cardinality }

// Attributes returns the derived attributes, in parent key order.
func (fk *ForeignKey) Attributes() []*Attribute {
	out := make([]*Attribute, len(fk.attributes))
	copy(out, fk.attributes)
	return out
}

// Pair is one child attribute matched with the parent attribute it references.
type Pair struct {
	Child  *Attribute
	Parent *Attribute
}

// Pairs returns child/parent attribute pairs in parent key order.
func (fk *ForeignKey) Pairs() []Pair {
	parents := fk.parentKey.attributes
	pairs := make([]Pair, len(fk.attributes))
	for i, a := range fk.attributes {
		pairs[i] = Pair{Child: a, Parent: parents[i]}
	}
	return pairs
}

// ConstraintName returns a stable constraint name for DDL.
func (fk *ForeignKey) ConstraintName() string {
	return fmt.Sprintf("fk_%s_%s", fk.child.name, fk.name)
}

// String implements fmt.Stringer.
func (fk *ForeignKey) String() string {
	return fmt.Sprintf("%s.%s(%s) -> %s", fk.child.name, fk.name,
		strings.Join(Names(fk.attributes), ", "), fk.parentKey)
}

// Reference records that Child refers to Parent through ParentKey.
type Reference struct {
	Parent      *Heading
	ParentKey   *Key
	Child       *Heading
	Name        string
	Cardinality Cardinality
	ForeignKey  *ForeignKey
}

// String implements fmt.Stringer.
func (r *Reference) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", r.Child.name, r.Cardinality, r.ParentKey)
}

// Relate applies a reference from child to parent's key parentKeyName:
// the foreign attributes derived from that key are appended to child in
// key order and recorded as a foreign key named name. With cardinality
// One the foreign key also becomes a candidate key of the child (its
// primary key when the child has none).
//
// Relating the same child to the same parent key under the same name
// again returns the existing reference.
func Relate(parent *Heading, parentKeyName string, child *Heading, name string, card Cardinality) (*Reference, error) {
	if parentKeyName == "" {
		parentKeyName = PrimaryKeyName
	}
	if name == "" {
		name = parent.name
	}
	if card == 0 {
		card = One
	}
	parentKey, err := parent.Key(parentKeyName)
	if err != nil {
		return nil, relerr.UnknownKey(parent.name, parentKeyName)
	}

	for _, fk := range child.foreignKeys {
		if fk.parentKey == parentKey && fk.name == name {
			return &Reference{Parent: parent, ParentKey: parentKey, Child: child,
				Name: name, Cardinality: fk.cardinality, ForeignKey: fk}, nil
		}
		if fk.name == name {
			return nil, relerr.Newf(relerr.ErrCategorySchema, relerr.CodeDuplicateKey,
				"heading %q already has a foreign key named %q", child.name, name)
		}
	}

	derived, err := parentKey.ForeignAttributes()
	if err != nil {
		return nil, err
	}
	for _, a := range derived {
		if err := child.addAttribute(a); err != nil {
			return nil, err
		}
	}

	fk := &ForeignKey{
		name:        name,
		child:       child,
		attributes:  derived,
		parent:      parent,
		parentKey:   parentKey,
		cardinality: card,
	}
	child.foreignKeys = append(child.foreignKeys, fk)

	if card == One {
		keyName := name
		if child.PrimaryKey() == nil {
			keyName = PrimaryKeyName
		}
		if _, err := child.addKey(keyName, derived); err != nil {
			return nil, err
		}
	}

	return &Reference{
		Parent:      parent,
		ParentKey:   parentKey,
		Child:       child,
		Name:        name,
		Cardinality: card,
		ForeignKey:  fk,
	}, nil
}

// PrefixPrimaryKey makes prefix the leading attributes of h's primary
// key. When h declares no primary key, the key becomes prefix followed by
// every other attribute of h. It is used for simple associations whose
// rows are identified within their owner.
func PrefixPrimaryKey(h *Heading, prefix []*Attribute) (*Key, error) {
	inPrefix := make(map[*Attribute]bool, len(prefix))
	for _, a := range prefix {
		inPrefix[a] = true
	}
	if pk := h.PrimaryKey(); pk != nil {
		attrs := append([]*Attribute(nil), prefix...)
		for _, a := range pk.attributes {
			if !inPrefix[a] {
				attrs = append(attrs, a)
			}
		}
		pk.attributes = attrs
		return pk, nil
	}
	attrs := append([]*Attribute(nil), prefix...)
	for _, a := range h.attributes {
		if !inPrefix[a] {
			attrs = append(attrs, a)
		}
	}
	return h.addKey(PrimaryKeyName, attrs)
}
