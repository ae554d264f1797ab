package heading

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var keyDomains = []Domain{Integer, Serial, UUID, Text, Real, Boolean, Timestamp}

// TestProperty_ForeignKeyDerivationOrder checks that, for any parent key,
// the child receives exactly one derived attribute per key attribute, in
// key order, grouped together after the child's own attributes.
func TestProperty_ForeignKeyDerivationOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("derived attributes follow parent key order", prop.ForAll(
		func(domainIdx []int, childAttrs int) bool {
			if len(domainIdx) == 0 {
				return true
			}
			parent := NewBuilder("parent")
			names := make([]string, len(domainIdx))
			for i, di := range domainIdx {
				names[i] = fmt.Sprintf("k%d", i)
				parent.Attribute(names[i], keyDomains[di%len(keyDomains)])
			}
			// Reverse declaration order in the key to make key order observable.
			keyOrder := make([]string, len(names))
			for i := range names {
				keyOrder[i] = names[len(names)-1-i]
			}
			parent.PrimaryKey(keyOrder...)
			ph, err := parent.Build()
			if err != nil {
				return false
			}

			child := NewBuilder("child")
			for i := 0; i < childAttrs; i++ {
				child.Text(fmt.Sprintf("own%d", i))
			}
			ch, err := child.Build()
			if err != nil {
				return false
			}

			ref, err := Relate(ph, "", ch, "", Many)
			if err != nil {
				return false
			}

			attrs := ch.Attributes()
			if len(attrs) != childAttrs+len(names) {
				return false
			}
			for i, src := range ph.PrimaryKey().Attributes() {
				got := attrs[childAttrs+i]
				if got != ref.ForeignKey.Attributes()[i] {
					return false
				}
				want := src.Name()
				if src.Domain().Surrogate() {
					want = "parent_" + src.Name()
				}
				if got.Name() != want {
					return false
				}
				fd, _ := src.Domain().ForeignDomain()
				if got.Domain() != fd {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(5, gen.IntRange(0, len(keyDomains)-1)),
		gen.IntRange(0, 4),
	))

	properties.Property("derivation is memoized per parent key", prop.ForAll(
		func(n int) bool {
			b := NewBuilder("p")
			names := make([]string, n)
			for i := range names {
				names[i] = fmt.Sprintf("a%d", i)
				b.Attribute(names[i], Serial)
			}
			ph, err := b.PrimaryKey(names...).Build()
			if err != nil {
				return false
			}
			first, err := ph.PrimaryKey().ForeignAttributes()
			if err != nil {
				return false
			}
			second, _ := ph.PrimaryKey().ForeignAttributes()
			for i := range first {
				if first[i] != second[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
