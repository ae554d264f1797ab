package table

import (
	"context"
	"fmt"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/pkg/types"
)

const (
	// Replace overwrites the stored values on a primary key conflict.
	Replace = ast.UpsertReplace
	// Increment adds the inserted values to the stored ones.
	Increment = ast.UpsertIncrement
)

// UpsertOptions says which attributes an upsert updates on a primary key
// conflict and how.
type UpsertOptions struct {
	// Values are the attributes updated on conflict.
	Values []string `json:"values" yaml:"values"`
	// With is Replace or Increment; empty means Replace.
	With ast.UpsertStrategy `json:"with,omitempty" yaml:"with,omitempty"`
}

// validate checks opts against h and the inserted attrs.
func (opts UpsertOptions) validate(h *heading.Heading, attrs types.Row) (ast.UpsertStrategy, error) {
	with := opts.With
	if with == "" {
		with = Replace
	}
	if with != Replace && with != Increment {
		return "", relerr.InvalidUpsert(fmt.Sprintf("unknown strategy %q", opts.With))
	}
	pk := h.PrimaryKey()
	if pk == nil {
		return "", relerr.InvalidUpsert(fmt.Sprintf("%s has no primary key to detect conflicts on", h.Name()))
	}
	if len(opts.Values) == 0 {
		return "", relerr.InvalidUpsert("no values to update on conflict")
	}

	inKey := make(map[string]bool, pk.Len())
	for _, a := range pk.Attributes() {
		inKey[a.Name()] = true
	}
	for _, name := range opts.Values {
		a, err := h.Attribute(name)
		if err != nil {
			return "", relerr.InvalidUpsert(fmt.Sprintf("%s is not an attribute of %s", name, h.Name()))
		}
		if inKey[name] {
			return "", relerr.InvalidUpsert(fmt.Sprintf("%s is part of the primary key", name))
		}
		if _, ok := attrs[name]; !ok {
			return "", relerr.InvalidUpsert(fmt.Sprintf("%s is not among the inserted attributes", name))
		}
		if with == Increment && !a.Domain().Numeric() {
			return "", relerr.InvalidUpsert(fmt.Sprintf("cannot increment %s attribute %s", a.Domain(), name))
		}
	}
	return with, nil
}

// Upsert inserts attrs or, when a row with the same primary key exists,
// updates the attributes opts names.
func (t *Table) Upsert(ctx context.Context, attrs types.Row, opts UpsertOptions) error {
	with, err := opts.validate(t.heading, attrs)
	if err != nil {
		return err
	}
	attrs = attrs.Clone()
	cols, vals, _, err := t.row(attrs)
	if err != nil {
		return err
	}
	stmt := &ast.UpsertStatement{
		Insert:          &ast.InsertStatement{Table: t.name, Columns: cols, Values: vals},
		ConflictColumns: heading.Names(t.heading.PrimaryKey().Attributes()),
		UpdateColumns:   opts.Values,
		Strategy:        with,
	}
	query, args, err := t.dialect().Upsert(stmt)
	if err != nil {
		return fmt.Errorf("table: render upsert: %w", err)
	}
	_, err = t.conn().Exec(ctx, query, args...)
	return err
}
