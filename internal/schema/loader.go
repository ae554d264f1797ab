package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/pkg/types"
)

// File is the on-disk schema description.
type File struct {
	Entities   []EntityDef             `json:"entities" yaml:"entities"`
	References []ReferenceDef          `json:"references" yaml:"references"`
	Partitions []types.PartitionConfig `json:"partitions" yaml:"partitions"`
}

// EntityDef declares an entity and its simple associations.
type EntityDef struct {
	Name string `json:"name" yaml:"name"`
	HeadingDef `yaml:",inline"`
	Children   []ChildDef `json:"children,omitempty" yaml:"children,omitempty"`
}

// ChildDef declares a simple association.
type ChildDef struct {
	Name        string `json:"name" yaml:"name"`
	Cardinality string `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
	HeadingDef  `yaml:",inline"`
}

// HeadingDef lists attributes and keys.
type HeadingDef struct {
	Attributes []AttributeDef `json:"attributes" yaml:"attributes"`
	PrimaryKey []string       `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Keys       []KeyDef       `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// AttributeDef declares one attribute.
type AttributeDef struct {
	Name   string `json:"name" yaml:"name"`
	Domain string `json:"domain" yaml:"domain"`
}

// KeyDef declares an alternate key.
type KeyDef struct {
	Name       string   `json:"name" yaml:"name"`
	Attributes []string `json:"attributes" yaml:"attributes"`
}

// ReferenceDef declares a reference from child to parent.
type ReferenceDef struct {
	Parent      string `json:"parent" yaml:"parent"`
	Child       string `json:"child" yaml:"child"`
	Cardinality string `json:"cardinality,omitempty" yaml:"cardinality,omitempty"`
	ParentKey   string `json:"parent_key,omitempty" yaml:"parent_key,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Schema is a loaded, frozen registry plus its partition declarations.
type Schema struct {
	Registry   *Registry
	Partitions []types.PartitionConfig
}

// Partition returns the partition declaration for entity, if any.
func (s *Schema) Partition(entity string) (types.PartitionConfig, bool) {
	for _, p := range s.Partitions {
		if p.Entity == entity {
			return p, true
		}
	}
	return types.PartitionConfig{}, false
}

// LoadFile reads a schema from a YAML or JSON file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: reading %s: %w", path, err)
	}

	var f File
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("schema: parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("schema: parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("schema: unsupported file extension: %s", ext)
	}
	return Load(&f)
}

// Load registers every declaration of f into a new registry and freezes it.
func Load(f *File) (*Schema, error) {
	r := NewRegistry()
	for _, ed := range f.Entities {
		if ed.Name == "" {
			return nil, relerr.NewSchemaError(relerr.CodeInvalidSchema, "entity without a name")
		}
		build, err := ed.HeadingDef.builder("")
		if err != nil {
			return nil, fmt.Errorf("schema: entity %s: %w", ed.Name, err)
		}
		if _, err := r.RegisterHeading(ed.Name, "", build); err != nil {
			return nil, fmt.Errorf("schema: entity %s: %w", ed.Name, err)
		}
	}
	for _, ed := range f.Entities {
		for _, cd := range ed.Children {
			build, err := cd.HeadingDef.builder(cd.Cardinality)
			if err != nil {
				return nil, fmt.Errorf("schema: %s.%s: %w", ed.Name, cd.Name, err)
			}
			if _, err := r.RegisterHeading(ed.Name, cd.Name, build); err != nil {
				return nil, fmt.Errorf("schema: %s.%s: %w", ed.Name, cd.Name, err)
			}
		}
	}
	for _, rd := range f.References {
		card, err := heading.ParseCardinality(rd.Cardinality)
		if err != nil {
			return nil, fmt.Errorf("schema: reference %s -> %s: %w", rd.Child, rd.Parent, err)
		}
		var opts []ReferenceOption
		if rd.ParentKey != "" {
			opts = append(opts, WithParentKey(rd.ParentKey))
		}
		if rd.Name != "" {
			opts = append(opts, WithName(rd.Name))
		}
		if _, err := r.RegisterReference(rd.Parent, rd.Child, card, opts...); err != nil {
			return nil, fmt.Errorf("schema: reference %s -> %s: %w", rd.Child, rd.Parent, err)
		}
	}
	for _, p := range f.Partitions {
		if err := validatePartition(r, p); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return &Schema{Registry: r, Partitions: f.Partitions}, nil
}

func validatePartition(r *Registry, p types.PartitionConfig) error {
	h, err := r.Heading(p.Entity)
	if err != nil {
		return fmt.Errorf("schema: partition: %w", err)
	}
	if !h.Has(p.Attribute) {
		return fmt.Errorf("schema: partition: %w", relerr.UnknownAttribute(h.Name(), p.Attribute))
	}
	if r.IsParent(p.Entity) {
		return relerr.Newf(relerr.ErrCategorySchema, relerr.CodeInvalidSchema,
			"entity %q is referenced by other entities and cannot be partitioned", p.Entity)
	}
	if len(r.entities[p.Entity].children) > 0 {
		return relerr.Newf(relerr.ErrCategorySchema, relerr.CodeInvalidSchema,
			"entity %q owns simple associations and cannot be partitioned", p.Entity)
	}
	return r.MarkPartitioned(p.Entity)
}

func (d HeadingDef) builder(cardinality string) (func(*heading.Builder), error) {
	card, err := heading.ParseCardinality(cardinality)
	if err != nil {
		return nil, err
	}
	domains := make([]heading.Domain, len(d.Attributes))
	for i, a := range d.Attributes {
		dom, err := heading.ParseDomain(a.Domain)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		domains[i] = dom
	}
	return func(b *heading.Builder) {
		for i, a := range d.Attributes {
			b.Attribute(a.Name, domains[i])
		}
		if len(d.PrimaryKey) > 0 {
			b.PrimaryKey(d.PrimaryKey...)
		}
		for _, k := range d.Keys {
			b.Key(k.Name, k.Attributes...)
		}
		if card == heading.Many {
			b.Many()
		}
	}, nil
}
