// Package heading models relation headings: named, typed attributes,
// candidate keys over them, and the foreign keys derived when one heading
// references another.
//
// Attributes and keys are immutable once built and are compared by
// pointer identity; derived foreign-key attributes are memoized so that a
// given parent key always yields the same attribute values.
package heading

import (
	"fmt"
	"sync"

	relerr "github.com/relmap/relmap/internal/errors"
)

// Attribute is a named, typed column of a heading.
type Attribute struct {
	name   string
	domain Domain

	foreignOnce sync.Once
	foreign     *Attribute
	foreignErr  error
}

// NewAttribute creates an attribute.
func NewAttribute(name string, domain Domain) *Attribute {
	return &Attribute{name: name, domain: domain}
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return a.name }

// Domain returns the attribute's value domain.
func (a *Attribute) Domain() Domain { return a.domain }

// String implements fmt.Stringer.
func (a *Attribute) String() string {
	return fmt.Sprintf("%s %s", a.name, a.domain)
}

// Encode converts v into a driver value for this attribute.
func (a *Attribute) Encode(v any) (any, error) {
	out, err := a.domain.Encode(v)
	if err != nil {
		return nil, relerr.InvalidValue(a.name, v, err.Error())
	}
	return out, nil
}

// Decode converts a driver value read from this attribute's column.
func (a *Attribute) Decode(v any) (any, error) {
	out, err := a.domain.Decode(v)
	if err != nil {
		return nil, relerr.InvalidValue(a.name, v, err.Error())
	}
	return out, nil
}

// Foreign returns the attribute a referencing heading receives for a,
// where owner is the name of the heading that declares a. It is derived
// once per attribute: every key containing a, in any heading, yields the
// same pointer.
func (a *Attribute) Foreign(owner string) (*Attribute, error) {
	a.foreignOnce.Do(func() {
		domain, ok := a.domain.ForeignDomain()
		if !ok {
			a.foreignErr = relerr.Newf(relerr.ErrCategorySchema, relerr.CodeUnsupportedDomain,
				"attribute %q of %q has domain %s and cannot be referenced", a.name, owner, a.domain)
			return
		}
		name := a.name
		if a.domain.Surrogate() {
			name = owner + "_" + a.name
		}
		a.foreign = NewAttribute(name, domain)
	})
	return a.foreign, a.foreignErr
}

// Names returns the names of attrs in order.
func Names(attrs []*Attribute) []string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.name
	}
	return names
}
