// Package schema keeps the per-entity schema metadata: each entity's base
// heading, its simple associations (child headings owned by the entity)
// and the references between entities. Registration happens once at
// bootstrap; after Freeze the registry is read-only and may be shared
// between goroutines without locking.
package schema

import (
	"sort"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
)

// Entity is the schema of one logical entity type.
type Entity struct {
	name       string
	base       *heading.Heading
	children   map[string]*Child
	childOrder []string
}

// Child is a simple association: a heading owned by an entity and keyed
// by the entity's primary key.
type Child struct {
	Name      string
	Heading   *heading.Heading
	Reference *heading.Reference
}

// Name returns the entity name.
func (e *Entity) Name() string { return e.name }

// Base returns the base heading, or nil before it is registered.
func (e *Entity) Base() *heading.Heading { return e.base }

// Child returns a simple association by name.
func (e *Entity) Child(name string) (*Child, error) {
	if c, ok := e.children[name]; ok {
		return c, nil
	}
	return nil, relerr.HeadingNotFound(e.name, name)
}

// Children returns the simple associations in registration order.
func (e *Entity) Children() []*Child {
	out := make([]*Child, 0, len(e.childOrder))
	for _, n := range e.childOrder {
		out = append(out, e.children[n])
	}
	return out
}

// Link is a reference between two registered entities.
type Link struct {
	Parent    string
	Child     string
	Reference *heading.Reference
}

// Registry maps entity names to their schema.
type Registry struct {
	entities     map[string]*Entity
	order        []string
	links        []*Link
	associations map[assocKey]*Association
	partitioned  map[string]bool
	frozen       bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:     make(map[string]*Entity),
		associations: make(map[assocKey]*Association),
		partitioned:  make(map[string]bool),
	}
}

// MarkPartitioned records that entity is stored in partitions, so it
// cannot be joined into from another entity: there is no single table to
// join against.
func (r *Registry) MarkPartitioned(entity string) error {
	if r.frozen {
		return relerr.ErrRegistryFrozen
	}
	if _, err := r.Entity(entity); err != nil {
		return err
	}
	r.partitioned[entity] = true
	return nil
}

// Partitioned reports whether entity was marked partitioned.
func (r *Registry) Partitioned(entity string) bool { return r.partitioned[entity] }

// Freeze ends registration.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether registration has ended.
func (r *Registry) Frozen() bool { return r.frozen }

func (r *Registry) entity(name string) *Entity {
	e, ok := r.entities[name]
	if !ok {
		e = &Entity{name: name, children: make(map[string]*Child)}
		r.entities[name] = e
		r.order = append(r.order, name)
	}
	return e
}

// RegisterHeading registers the base heading of entity (name == "") or
// one of its simple associations. build runs at most once per
// (entity, name); later calls return the stored heading.
//
// A simple association is keyed by the entity's primary key: the key's
// foreign attributes are appended to the child heading under a foreign
// key named after the entity. With cardinality Many the child's primary
// key is prefixed by those attributes.
func (r *Registry) RegisterHeading(entity, name string, build func(*heading.Builder)) (*heading.Heading, error) {
	if e, ok := r.entities[entity]; ok {
		if name == "" && e.base != nil {
			return e.base, nil
		}
		if c, ok := e.children[name]; ok {
			return c.Heading, nil
		}
	}
	if r.frozen {
		return nil, relerr.ErrRegistryFrozen
	}

	if name == "" {
		h, err := heading.Build(entity, build)
		if err != nil {
			return nil, err
		}
		r.entity(entity).base = h
		return h, nil
	}

	e, ok := r.entities[entity]
	if !ok || e.base == nil {
		return nil, relerr.HeadingNotFound(entity, "")
	}
	if e.base.PrimaryKey() == nil {
		return nil, relerr.Newf(relerr.ErrCategorySchema, relerr.CodeInvalidSchema,
			"entity %q needs a primary key to own simple association %q", entity, name)
	}

	h, err := heading.Build(entity+"_"+name, build)
	if err != nil {
		return nil, err
	}
	ref, err := heading.Relate(e.base, heading.PrimaryKeyName, h, entity, h.Cardinality())
	if err != nil {
		return nil, err
	}
	if h.Cardinality() == heading.Many {
		if _, err := heading.PrefixPrimaryKey(h, ref.ForeignKey.Attributes()); err != nil {
			return nil, err
		}
	}

	e.children[name] = &Child{Name: name, Heading: h, Reference: ref}
	e.childOrder = append(e.childOrder, name)
	r.associations[assocKey{from: entity, to: name, child: true}] = &Association{
		Kind:      SimpleChild,
		From:      entity,
		To:        entity,
		Name:      name,
		Reference: ref,
		Root:      e.base,
		Target:    h,
	}
	return h, nil
}

// ReferenceOption customizes RegisterReference.
type ReferenceOption func(*referenceOptions)

type referenceOptions struct {
	parentKey string
	name      string
}

// WithParentKey references a named key of the parent instead of its
// primary key.
func WithParentKey(name string) ReferenceOption {
	return func(o *referenceOptions) { o.parentKey = name }
}

// WithName names the child's foreign key; the default is the parent
// entity name.
func WithName(name string) ReferenceOption {
	return func(o *referenceOptions) { o.name = name }
}

// RegisterReference declares that child refers to parent. Both base
// headings must be registered.
func (r *Registry) RegisterReference(parent, child string, card heading.Cardinality, opts ...ReferenceOption) (*heading.Reference, error) {
	if r.frozen {
		return nil, relerr.ErrRegistryFrozen
	}
	o := referenceOptions{parentKey: heading.PrimaryKeyName, name: parent}
	for _, opt := range opts {
		opt(&o)
	}
	ph, err := r.Heading(parent)
	if err != nil {
		return nil, err
	}
	ch, err := r.Heading(child)
	if err != nil {
		return nil, err
	}
	ref, err := heading.Relate(ph, o.parentKey, ch, o.name, card)
	if err != nil {
		return nil, err
	}
	for _, l := range r.links {
		if l.Reference.ForeignKey == ref.ForeignKey {
			return ref, nil
		}
	}
	r.links = append(r.links, &Link{Parent: parent, Child: child, Reference: ref})

	r.associate(&Association{Kind: ChildRef, From: parent, To: child, Name: child,
		Reference: ref, Root: ph, Target: ch})
	r.associate(&Association{Kind: ParentRef, From: child, To: parent, Name: parent,
		Reference: ref, Root: ch, Target: ph})
	return ref, nil
}

// Entity returns a registered entity.
func (r *Registry) Entity(name string) (*Entity, error) {
	if e, ok := r.entities[name]; ok && e.base != nil {
		return e, nil
	}
	return nil, relerr.HeadingNotFound(name, "")
}

// Heading returns an entity's base heading.
func (r *Registry) Heading(entity string) (*heading.Heading, error) {
	e, err := r.Entity(entity)
	if err != nil {
		return nil, err
	}
	return e.base, nil
}

// ChildHeading returns the heading of a simple association.
func (r *Registry) ChildHeading(entity, name string) (*heading.Heading, error) {
	e, ok := r.entities[entity]
	if !ok {
		return nil, relerr.HeadingNotFound(entity, name)
	}
	c, err := e.Child(name)
	if err != nil {
		return nil, err
	}
	return c.Heading, nil
}

// Entities returns the registered entities in registration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, n := range r.order {
		if e := r.entities[n]; e.base != nil {
			out = append(out, e)
		}
	}
	return out
}

// Links returns the references between entities in registration order.
func (r *Registry) Links() []*Link {
	out := make([]*Link, len(r.links))
	copy(out, r.links)
	return out
}

// IsParent reports whether any entity references entity.
func (r *Registry) IsParent(entity string) bool {
	for _, l := range r.links {
		if l.Parent == entity && l.Child != entity {
			return true
		}
	}
	return false
}

// Ordered returns the entities with every referenced entity before the
// entities referencing it. Entities on a reference cycle are appended in
// registration order.
func (r *Registry) Ordered() []*Entity {
	entities := r.Entities()
	index := make(map[string]int, len(entities))
	for i, e := range entities {
		index[e.name] = i
	}

	inDegree := make(map[string]int, len(entities))
	children := make(map[string][]string)
	for _, l := range r.links {
		if l.Parent == l.Child {
			continue
		}
		children[l.Parent] = append(children[l.Parent], l.Child)
		inDegree[l.Child]++
	}

	var queue []string
	for _, e := range entities {
		if inDegree[e.name] == 0 {
			queue = append(queue, e.name)
		}
	}

	var order []*Entity
	placed := make(map[string]bool, len(entities))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, r.entities[node])
		placed[node] = true

		next := children[node]
		sort.SliceStable(next, func(i, j int) bool { return index[next[i]] < index[next[j]] })
		for _, child := range next {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	for _, e := range entities {
		if !placed[e.name] {
			order = append(order, e)
		}
	}
	return order
}
