package heading

import (
	"fmt"
	"strings"

	relerr "github.com/relmap/relmap/internal/errors"
)

// Heading is a named relation schema: attributes in insertion order, the
// candidate keys declared over them and the foreign keys derived from
// references. A heading is mutated only while the schema is being
// registered; afterwards it is read concurrently without locking.
type Heading struct {
	name        string
	attributes  []*Attribute
	byName      map[string]*Attribute
	keys        []*Key
	foreignKeys []*ForeignKey
	cardinality Cardinality
}

// New returns an empty heading.
func New(name string) *Heading {
	return &Heading{
		name:        name,
		byName:      make(map[string]*Attribute),
		cardinality: One,
	}
}

// Name returns the heading name, which is also its default table name.
func (h *Heading) Name() string { return h.name }

// Cardinality is the multiplicity of a simple association heading
// relative to its owner.
func (h *Heading) Cardinality() Cardinality { return h.cardinality }

// Attributes returns the attributes in insertion order.
func (h *Heading) Attributes() []*Attribute {
	out := make([]*Attribute, len(h.attributes))
	copy(out, h.attributes)
	return out
}

// AttributeNames returns attribute names in insertion order.
func (h *Heading) AttributeNames() []string {
	return Names(h.attributes)
}

// Attribute looks up an attribute by name.
func (h *Heading) Attribute(name string) (*Attribute, error) {
	if a, ok := h.byName[name]; ok {
		return a, nil
	}
	return nil, relerr.UnknownAttribute(h.name, name)
}

// Has reports whether the heading has an attribute with this name.
func (h *Heading) Has(name string) bool {
	_, ok := h.byName[name]
	return ok
}

// Key looks up a key by name.
func (h *Heading) Key(name string) (*Key, error) {
	for _, k := range h.keys {
		if k.name == name {
			return k, nil
		}
	}
	return nil, relerr.KeyNotFound(h.name, name)
}

// PrimaryKey returns the primary key, or nil when none is declared.
func (h *Heading) PrimaryKey() *Key {
	k, _ := h.Key(PrimaryKeyName)
	return k
}

// Keys returns all candidate keys, primary first when present.
func (h *Heading) Keys() []*Key {
	out := make([]*Key, 0, len(h.keys))
	if pk := h.PrimaryKey(); pk != nil {
		out = append(out, pk)
	}
	for _, k := range h.keys {
		if !k.Primary() {
			out = append(out, k)
		}
	}
	return out
}

// ForeignKeys returns the derived foreign keys in derivation order.
func (h *Heading) ForeignKeys() []*ForeignKey {
	out := make([]*ForeignKey, len(h.foreignKeys))
	copy(out, h.foreignKeys)
	return out
}

// ForeignKeysTo returns the foreign keys of h that reference parent.
func (h *Heading) ForeignKeysTo(parent *Heading) []*ForeignKey {
	var out []*ForeignKey
	for _, fk := range h.foreignKeys {
		if fk.parent == parent {
			out = append(out, fk)
		}
	}
	return out
}

// IdentityAttributes returns the attributes that identify a row: the
// primary key when declared, otherwise every attribute.
func (h *Heading) IdentityAttributes() []*Attribute {
	if pk := h.PrimaryKey(); pk != nil {
		return pk.Attributes()
	}
	return h.Attributes()
}

// String renders the heading as name(attr domain, ...).
func (h *Heading) String() string {
	parts := make([]string, len(h.attributes))
	for i, a := range h.attributes {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", h.name, strings.Join(parts, ", "))
}

// addAttribute appends a. Adding the identical attribute twice is a no-op,
// which lets diamond-shaped references share one derived column.
func (h *Heading) addAttribute(a *Attribute) error {
	if existing, ok := h.byName[a.name]; ok {
		if existing == a {
			return nil
		}
		return relerr.Newf(relerr.ErrCategorySchema, relerr.CodeDuplicateAttribute,
			"heading %q already has an attribute named %q", h.name, a.name).
			WithDetails(map[string]interface{}{"heading": h.name, "attribute": a.name})
	}
	h.attributes = append(h.attributes, a)
	h.byName[a.name] = a
	return nil
}

func (h *Heading) addKey(name string, attrs []*Attribute) (*Key, error) {
	if name == "" {
		return nil, relerr.Newf(relerr.ErrCategorySchema, relerr.CodeInvalidSchema, "heading %q: key name is empty", h.name)
	}
	if len(attrs) == 0 {
		return nil, relerr.Newf(relerr.ErrCategorySchema, relerr.CodeInvalidSchema, "heading %q: key %q has no attributes", h.name, name)
	}
	for _, k := range h.keys {
		if k.name == name {
			return nil, relerr.Newf(relerr.ErrCategorySchema, relerr.CodeDuplicateKey,
				"heading %q already has a key named %q", h.name, name)
		}
	}
	seen := make(map[*Attribute]bool, len(attrs))
	for _, a := range attrs {
		if h.byName[a.name] != a {
			return nil, relerr.UnknownAttribute(h.name, a.name)
		}
		if seen[a] {
			return nil, relerr.Newf(relerr.ErrCategorySchema, relerr.CodeInvalidSchema,
				"heading %q: key %q lists %q twice", h.name, name, a.name)
		}
		seen[a] = true
	}
	k := &Key{name: name, heading: h, attributes: append([]*Attribute(nil), attrs...)}
	h.keys = append(h.keys, k)
	return k, nil
}

func (h *Heading) attributesNamed(names []string) ([]*Attribute, error) {
	attrs := make([]*Attribute, len(names))
	for i, n := range names {
		a, err := h.Attribute(n)
		if err != nil {
			return nil, err
		}
		attrs[i] = a
	}
	return attrs, nil
}
