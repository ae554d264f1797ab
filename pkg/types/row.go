// Package types provides the public data types exchanged with relmap callers.
package types

import "sort"

// Row holds attribute values keyed by attribute name.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Names returns the attribute names present in the row, sorted.
func (r Row) Names() []string {
	names := make([]string, 0, len(r))
	for k := range r {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Object is one entity instance as read from (or written to) storage.
type Object struct {
	// Entity is the logical entity type name
	Entity string `json:"entity"`

	// Heading names the simple association this object belongs to; empty
	// for an entity's base heading
	Heading string `json:"heading,omitempty"`

	// Attributes carries the decoded attribute values
	Attributes Row `json:"attributes"`

	// Associations holds projected joined objects keyed by join name
	Associations map[string][]*Object `json:"associations,omitempty"`
}

// NewObject returns an object of the given entity type.
func NewObject(entity string, attrs Row) *Object {
	if attrs == nil {
		attrs = Row{}
	}
	return &Object{Entity: entity, Attributes: attrs}
}

// TypeName identifies the object's type: the entity name, or
// "entity.child" for objects of a simple association.
func (o *Object) TypeName() string {
	if o.Heading == "" {
		return o.Entity
	}
	return o.Entity + "." + o.Heading
}

// Get returns an attribute value, or nil.
func (o *Object) Get(name string) any {
	return o.Attributes[name]
}

// Many returns the associated objects for a join name.
func (o *Object) Many(name string) []*Object {
	if o.Associations == nil {
		return nil
	}
	return o.Associations[name]
}

// One returns the first associated object for a join name, or nil.
func (o *Object) One(name string) *Object {
	objs := o.Many(name)
	if len(objs) == 0 {
		return nil
	}
	return objs[0]
}

// Associate appends an associated object under a join name.
func (o *Object) Associate(name string, child *Object) {
	if o.Associations == nil {
		o.Associations = make(map[string][]*Object)
	}
	o.Associations[name] = append(o.Associations[name], child)
}
