package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	_, err := r.RegisterHeading("user", "", func(b *heading.Builder) {
		b.Text("first_name").Text("last_name").Integer("age").PrimaryKey("first_name", "last_name")
	})
	require.NoError(t, err)
	_, err = r.RegisterHeading("thing", "", func(b *heading.Builder) {
		b.Text("name").PrimaryKey("name")
	})
	require.NoError(t, err)
	_, err = r.RegisterHeading("user", "addresses", func(b *heading.Builder) {
		b.Text("city").Text("street").Many()
	})
	require.NoError(t, err)
	_, err = r.RegisterReference("user", "thing", heading.Many)
	require.NoError(t, err)
	return r
}

func TestRegisterHeading_BuilderRunsOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	build := func(b *heading.Builder) {
		calls++
		b.Serial("id")
	}
	h1, err := r.RegisterHeading("user", "", build)
	require.NoError(t, err)
	h2, err := r.RegisterHeading("user", "", build)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, calls)
}

func TestRegisterHeading_SimpleAssociation(t *testing.T) {
	r := newTestRegistry(t)

	h, err := r.ChildHeading("user", "addresses")
	require.NoError(t, err)
	assert.Equal(t, "user_addresses", h.Name())
	assert.Equal(t, []string{"city", "street", "first_name", "last_name"}, h.AttributeNames())

	pk := h.PrimaryKey()
	require.NotNil(t, pk)
	assert.Equal(t, []string{"first_name", "last_name", "city", "street"}, heading.Names(pk.Attributes()))

	fks := h.ForeignKeys()
	require.Len(t, fks, 1)
	assert.Equal(t, "user", fks[0].Name())
}

func TestRegisterHeading_ChildWithoutBase(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterHeading("user", "addresses", func(b *heading.Builder) { b.Text("city") })
	assert.True(t, errors.Is(err, relerr.ErrHeadingNotFound))
}

func TestChildHeading_NotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.ChildHeading("user", "phones")
	require.Error(t, err)
	assert.True(t, errors.Is(err, relerr.ErrHeadingNotFound))

	re, _ := relerr.As(err)
	assert.Equal(t, "user", re.Detail("entity"))
	assert.Equal(t, "phones", re.Detail("child"))
}

func TestRegisterReference_Errors(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.RegisterReference("user", "nope", heading.Many)
	assert.True(t, errors.Is(err, relerr.ErrHeadingNotFound))

	_, err = r.RegisterReference("user", "thing", heading.Many, WithParentKey("by_email"), WithName("owner"))
	assert.True(t, errors.Is(err, relerr.ErrUnknownKey))
}

func TestResolve_Directions(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Resolve("user", "thing")
	require.NoError(t, err)
	assert.Equal(t, ChildRef, a.Kind)

	b, err := r.Resolve("thing", "user")
	require.NoError(t, err)
	assert.Equal(t, ParentRef, b.Kind)

	// Same attributes, reversed pairing.
	pa, pb := a.JoinPairs(), b.JoinPairs()
	require.Len(t, pa, 2)
	require.Len(t, pb, 2)
	for i := range pa {
		assert.Same(t, pa[i].Root, pb[i].Target)
		assert.Same(t, pa[i].Target, pb[i].Root)
	}
	assert.Equal(t, "first_name", pa[0].Root.Name())
	assert.Equal(t, "last_name", pa[1].Root.Name())
}

func TestResolve_NoAssociation(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.RegisterHeading("hit", "", func(b *heading.Builder) { b.Text("day") })
	require.NoError(t, err)

	_, err = r.Resolve("user", "hit")
	require.Error(t, err)
	assert.True(t, errors.Is(err, relerr.ErrNoAssociation))
}

func TestResolve_Ambiguous(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterHeading("user", "", func(b *heading.Builder) {
		b.Serial("id").Text("email").Key("by_email", "email")
	})
	require.NoError(t, err)
	_, err = r.RegisterHeading("doc", "", func(b *heading.Builder) { b.Serial("id") })
	require.NoError(t, err)

	_, err = r.RegisterReference("user", "doc", heading.Many, WithName("author"))
	require.NoError(t, err)
	_, err = r.RegisterReference("user", "doc", heading.Many, WithName("reviewer"), WithParentKey("by_email"))
	require.NoError(t, err)

	_, err = r.Resolve("doc", "user")
	assert.True(t, errors.Is(err, relerr.ErrAmbiguousAssociation))
	_, err = r.Resolve("user", "doc")
	assert.True(t, errors.Is(err, relerr.ErrAmbiguousAssociation))
}

func TestResolve_ChildRefWinsOverParentRef(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterHeading("a", "", func(b *heading.Builder) { b.Serial("id") })
	require.NoError(t, err)
	_, err = r.RegisterHeading("b", "", func(b *heading.Builder) { b.Serial("id") })
	require.NoError(t, err)

	_, err = r.RegisterReference("a", "b", heading.Many)
	require.NoError(t, err)
	_, err = r.RegisterReference("b", "a", heading.One)
	require.NoError(t, err)

	ab, err := r.Resolve("a", "b")
	require.NoError(t, err)
	assert.Equal(t, ChildRef, ab.Kind)
	assert.Equal(t, "a_id", ab.JoinPairs()[0].Target.Name())

	ba, err := r.Resolve("b", "a")
	require.NoError(t, err)
	assert.Equal(t, ChildRef, ba.Kind)
	assert.Equal(t, "b_id", ba.JoinPairs()[0].Target.Name())
}

func TestResolve_SelfReference(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterHeading("employee", "", func(b *heading.Builder) { b.Serial("id") })
	require.NoError(t, err)
	_, err = r.RegisterReference("employee", "employee", heading.Many, WithName("manager"))
	require.NoError(t, err)

	a, err := r.Resolve("employee", "employee")
	require.NoError(t, err)
	assert.Equal(t, ChildRef, a.Kind)
}

func TestResolveChild(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.ResolveChild("user", "addresses")
	require.NoError(t, err)
	assert.Equal(t, SimpleChild, a.Kind)
	pairs := a.JoinPairs()
	assert.Equal(t, "first_name", pairs[0].Root.Name())
	assert.Equal(t, "first_name", pairs[0].Target.Name())
	assert.NotSame(t, pairs[0].Root, pairs[0].Target)
}

func TestFreeze(t *testing.T) {
	r := newTestRegistry(t)
	r.Freeze()

	_, err := r.RegisterHeading("other", "", func(b *heading.Builder) { b.Text("x") })
	assert.True(t, errors.Is(err, relerr.ErrRegistryFrozen))

	// Already registered headings are still returned.
	_, err = r.RegisterHeading("user", "", nil)
	assert.NoError(t, err)
}

func TestOrdered_ParentsFirst(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"c", "b", "a"} {
		_, err := r.RegisterHeading(n, "", func(b *heading.Builder) { b.Serial("id") })
		require.NoError(t, err)
	}
	_, err := r.RegisterReference("a", "b", heading.Many)
	require.NoError(t, err)
	_, err = r.RegisterReference("b", "c", heading.Many)
	require.NoError(t, err)

	var names []string
	for _, e := range r.Ordered() {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

const schemaYAML = `
entities:
  - name: user
    attributes:
      - {name: first_name, domain: text}
      - {name: last_name, domain: text}
      - {name: age, domain: integer}
    primary_key: [first_name, last_name]
    children:
      - name: addresses
        cardinality: many
        attributes:
          - {name: city, domain: text}
  - name: thing
    attributes:
      - {name: name, domain: text}
    primary_key: [name]
  - name: hit
    attributes:
      - {name: day, domain: text}
      - {name: thing, domain: text}
      - {name: count, domain: integer}
    primary_key: [day, thing]
references:
  - {parent: user, child: thing, cardinality: many}
partitions:
  - {entity: hit, attribute: day, function: monthly}
`

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schemaYAML), 0o644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, s.Registry.Frozen())

	thing, err := s.Registry.Heading("thing")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "first_name", "last_name"}, thing.AttributeNames())

	p, ok := s.Partition("hit")
	require.True(t, ok)
	assert.Equal(t, types.StrategyMonthly, p.Strategy)
	assert.Equal(t, "day", p.Attribute)

	_, ok = s.Partition("user")
	assert.False(t, ok)
}

func TestLoad_PartitionedParentRejected(t *testing.T) {
	f := &File{
		Entities: []EntityDef{
			{Name: "user", HeadingDef: HeadingDef{Attributes: []AttributeDef{{Name: "id", Domain: "serial"}}, PrimaryKey: []string{"id"}}},
			{Name: "thing", HeadingDef: HeadingDef{Attributes: []AttributeDef{{Name: "name", Domain: "text"}}}},
		},
		References: []ReferenceDef{{Parent: "user", Child: "thing", Cardinality: "many"}},
		Partitions: []types.PartitionConfig{{Entity: "user", Attribute: "id", Strategy: types.StrategyHash, HashModulo: 4}},
	}
	_, err := Load(f)
	assert.Equal(t, relerr.CodeInvalidSchema, relerr.GetCode(err))
}

func TestLoad_JoinIntoPartitionedRejected(t *testing.T) {
	s, err := Load(&File{
		Entities: []EntityDef{
			{Name: "user", HeadingDef: HeadingDef{Attributes: []AttributeDef{{Name: "id", Domain: "serial"}}, PrimaryKey: []string{"id"}}},
			{Name: "hit", HeadingDef: HeadingDef{Attributes: []AttributeDef{{Name: "day", Domain: "text"}}}},
		},
		References: []ReferenceDef{{Parent: "user", Child: "hit", Cardinality: "many"}},
		Partitions: []types.PartitionConfig{{Entity: "hit", Attribute: "day", Strategy: types.StrategyMonthly}},
	})
	require.NoError(t, err)
	assert.True(t, s.Registry.Partitioned("hit"))

	_, err = s.Registry.Resolve("user", "hit")
	assert.Equal(t, relerr.CodeInvalidSchema, relerr.GetCode(err))

	a, err := s.Registry.Resolve("hit", "user")
	require.NoError(t, err)
	assert.Equal(t, ParentRef, a.Kind)

	assert.ErrorIs(t, s.Registry.MarkPartitioned("user"), relerr.ErrRegistryFrozen)
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.toml")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestRegisterReference_Diamond(t *testing.T) {
	r := NewRegistry()
	_, err := r.RegisterHeading("a", "", func(b *heading.Builder) { b.Serial("id") })
	require.NoError(t, err)
	for _, name := range []string{"b", "c", "d"} {
		_, err := r.RegisterHeading(name, "", nil)
		require.NoError(t, err)
	}
	_, err = r.RegisterReference("a", "b", heading.One)
	require.NoError(t, err)
	_, err = r.RegisterReference("a", "c", heading.One)
	require.NoError(t, err)
	_, err = r.RegisterReference("b", "d", heading.Many)
	require.NoError(t, err)
	_, err = r.RegisterReference("c", "d", heading.Many)
	require.NoError(t, err)

	d, err := r.Heading("d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_id"}, d.AttributeNames())
	assert.Len(t, d.ForeignKeys(), 2)
}
