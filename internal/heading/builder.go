package heading

type keyDef struct {
	name  string
	attrs []string
}

// Builder declares a heading fluently. Declarations are recorded and
// validated in Build, so keys may name attributes declared after them.
type Builder struct {
	name        string
	attrs       []*Attribute
	keys        []keyDef
	cardinality Cardinality
}

// NewBuilder creates a builder for a heading called name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, cardinality: One}
}

// Attribute adds an attribute.
func (b *Builder) Attribute(name string, domain Domain) *Builder {
	b.attrs = append(b.attrs, NewAttribute(name, domain))
	return b
}

// Integer adds an integer attribute.
func (b *Builder) Integer(name string) *Builder { return b.Attribute(name, Integer) }

// Text adds a text attribute.
func (b *Builder) Text(name string) *Builder { return b.Attribute(name, Text) }

// Serial adds an auto-increment surrogate and makes it the primary key.
func (b *Builder) Serial(name string) *Builder {
	b.Attribute(name, Serial)
	return b.PrimaryKey(name)
}

// PrimaryKey declares the primary key over the named attributes.
func (b *Builder) PrimaryKey(names ...string) *Builder {
	return b.Key(PrimaryKeyName, names...)
}

// Key declares a named candidate key.
func (b *Builder) Key(name string, names ...string) *Builder {
	b.keys = append(b.keys, keyDef{name: name, attrs: append([]string(nil), names...)})
	return b
}

// Many marks a simple association as holding any number of rows per owner.
func (b *Builder) Many() *Builder {
	b.cardinality = Many
	return b
}

// One marks a simple association as holding at most one row per owner.
func (b *Builder) One() *Builder {
	b.cardinality = One
	return b
}

// Build validates the declarations and returns the heading.
func (b *Builder) Build() (*Heading, error) {
	h := New(b.name)
	h.cardinality = b.cardinality
	for _, a := range b.attrs {
		if err := h.addAttribute(a); err != nil {
			return nil, err
		}
	}
	for _, kd := range b.keys {
		attrs, err := h.attributesNamed(kd.attrs)
		if err != nil {
			return nil, err
		}
		if _, err := h.addKey(kd.name, attrs); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Build is a shorthand for running fn against a fresh builder.
func Build(name string, fn func(*Builder)) (*Heading, error) {
	b := NewBuilder(name)
	if fn != nil {
		fn(b)
	}
	return b.Build()
}
