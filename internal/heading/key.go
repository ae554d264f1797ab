package heading

import (
	"fmt"
	"strings"
	"sync"
)

// PrimaryKeyName is the name of a heading's primary key.
const PrimaryKeyName = "primary"

// Key is a named, ordered list of attributes that uniquely identifies a
// row of its heading. Attribute order is significant: it fixes the order
// of derived foreign-key attributes and of join predicates.
type Key struct {
	name       string
	heading    *Heading
	attributes []*Attribute

	once    sync.Once
	foreign []*Attribute
	err     error
}

// Name returns the key name.
func (k *Key) Name() string { return k.name }

// Heading returns the heading the key belongs to.
func (k *Key) Heading() *Heading { return k.heading }

// Attributes returns the key attributes in declaration order.
func (k *Key) Attributes() []*Attribute {
	out := make([]*Attribute, len(k.attributes))
	copy(out, k.attributes)
	return out
}

// Len returns the number of key attributes.
func (k *Key) Len() int { return len(k.attributes) }

// Primary reports whether this is the heading's primary key.
func (k *Key) Primary() bool { return k.name == PrimaryKeyName }

// String implements fmt.Stringer.
func (k *Key) String() string {
	return fmt.Sprintf("%s.%s(%s)", k.heading.name, k.name, strings.Join(Names(k.attributes), ", "))
}

// ForeignAttributes returns the attributes a referencing heading receives
// for this key, one per key attribute in key order. Surrogate attributes
// are renamed to "<heading>_<attribute>" and converted to their foreign
// domain; other attributes keep their name. Derivation is memoized on each
// attribute, so keys sharing an attribute, such as the two sides of a
// diamond, derive the same attribute value.
func (k *Key) ForeignAttributes() ([]*Attribute, error) {
	k.once.Do(func() {
		derived := make([]*Attribute, 0, len(k.attributes))
		for _, a := range k.attributes {
			f, err := a.Foreign(k.heading.name)
			if err != nil {
				k.err = err
				return
			}
			derived = append(derived, f)
		}
		k.foreign = derived
	})
	if k.err != nil {
		return nil, k.err
	}
	return k.foreign, nil
}

// Values extracts this key's values from a row, in key order. The second
// result is false when any key attribute is missing or nil.
func (k *Key) Values(row map[string]any) ([]any, bool) {
	values := make([]any, len(k.attributes))
	for i, a := range k.attributes {
		v, ok := row[a.name]
		if !ok || v == nil {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}
