// Package manifest records the partitioned tables of a database: the
// template each partitioned entity was declared with and every physical
// partition created for it. The catalog lives in the same database as the
// partitions.
package manifest

// Table names of the catalog.
const (
	TemplatesTable  = "_relmap_templates"
	PartitionsTable = "_relmap_partitions"
)

// CreateTemplatesTableSQL creates the templates table. One row per
// partitioned entity.
const CreateTemplatesTableSQL = `
CREATE TABLE IF NOT EXISTS _relmap_templates (
    entity TEXT PRIMARY KEY,
    attribute TEXT NOT NULL,
    function TEXT NOT NULL,
    modulo BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL
)`

// CreatePartitionsTableSQL creates the partitions table. Partitions are
// never deleted.
const CreatePartitionsTableSQL = `
CREATE TABLE IF NOT EXISTS _relmap_partitions (
    name TEXT PRIMARY KEY,
    entity TEXT NOT NULL REFERENCES _relmap_templates (entity),
    partition_key TEXT NOT NULL,
    created_at BIGINT NOT NULL
)`

// CreatePartitionsIndexSQL indexes partitions by entity.
const CreatePartitionsIndexSQL = `CREATE INDEX IF NOT EXISTS idx_relmap_partitions_entity ON _relmap_partitions (entity)`

// AllSchemaSQL returns the statements creating the catalog, in order.
func AllSchemaSQL() []string {
	return []string{
		CreateTemplatesTableSQL,
		CreatePartitionsTableSQL,
		CreatePartitionsIndexSQL,
	}
}
