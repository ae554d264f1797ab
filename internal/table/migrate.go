package table

import (
	"context"
	"log"

	"github.com/relmap/relmap/internal/query/executor"
	"github.com/relmap/relmap/internal/schema"
)

// Tables returns the tables of every registered heading, referenced
// entities first and each entity's simple associations after its base
// heading. Entities in skip are left out.
func Tables(registry *schema.Registry, exec *executor.Executor, skip map[string]bool) ([]*Table, error) {
	var out []*Table
	for _, e := range registry.Ordered() {
		if skip[e.Name()] || e.Base() == nil {
			continue
		}
		t, err := New(registry, exec, e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		for _, c := range e.Children() {
			ct, err := t.Child(c.Name)
			if err != nil {
				return nil, err
			}
			out = append(out, ct)
		}
	}
	return out, nil
}

// Migrate creates the tables of every registered heading not in skip.
// Tables that exist already are left alone. Foreign keys that the dialect
// adds separately are added once every table exists.
func Migrate(ctx context.Context, registry *schema.Registry, exec *executor.Executor, skip map[string]bool) error {
	tables, err := Tables(registry, exec, skip)
	if err != nil {
		return err
	}
	d := exec.Dialect()

	created := make([]*Table, 0, len(tables))
	for _, t := range tables {
		if err := t.Create(ctx); err != nil {
			if d.IsAlreadyExists(err) {
				log.Printf("table: %s exists, skipping", t.Name())
				continue
			}
			return err
		}
		created = append(created, t)
	}
	for _, t := range created {
		if err := t.CreateForeignKeys(ctx); err != nil && !d.IsAlreadyExists(err) {
			return err
		}
	}
	return nil
}

// DDL returns the statements Migrate would run on an empty database, in
// order: every CREATE TABLE first, then the separately added foreign keys.
func DDL(registry *schema.Registry, exec *executor.Executor, skip map[string]bool) ([]string, error) {
	tables, err := Tables(registry, exec, skip)
	if err != nil {
		return nil, err
	}
	d := exec.Dialect()
	var creates, fks []string
	for _, t := range tables {
		creates = append(creates, d.CreateTable(t.heading, t.name))
		fks = append(fks, d.ForeignKeys(t.heading, t.name)...)
	}
	return append(creates, fks...), nil
}
