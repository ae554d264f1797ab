package dialect

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/ast"
)

// SQLSTATE codes reported when a table or constraint exists already. Two
// sessions creating the same table at once can also fail the later one
// with a unique violation on the catalog's type name index.
const (
	pgDuplicateTable  = "42P07"
	pgDuplicateObject = "42710"
	pgUniqueViolation = "23505"
	pgTypeNameIndex   = "pg_type_typname_nsp_index"
)

var postgresTypes = columnTypes{
	heading.Integer:   "BIGINT",
	heading.Serial:    "BIGSERIAL",
	heading.UUID:      "TEXT",
	heading.Text:      "TEXT",
	heading.Real:      "DOUBLE PRECISION",
	heading.Boolean:   "BOOLEAN",
	heading.Timestamp: "TIMESTAMPTZ",
	heading.Blob:      "BYTEA",
	heading.Document:  "BYTEA",
}

// Postgres renders statements for github.com/jackc/pgx/v5. Foreign keys
// are added with ALTER TABLE once every table exists.
type Postgres struct{}

func (Postgres) b() base {
	return base{placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
}

// Name implements Dialect.
func (Postgres) Name() string { return "postgres" }

// ReturnsGeneratedID implements Dialect.
func (Postgres) ReturnsGeneratedID() bool { return true }

func (d Postgres) Select(s *ast.SelectStatement) (string, []any, error) { return d.b().Select(s) }
func (d Postgres) Count(s *ast.SelectStatement) (string, []any, error)  { return d.b().Count(s) }
func (d Postgres) Insert(s *ast.InsertStatement) (string, []any, error) { return d.b().Insert(s) }
func (d Postgres) Upsert(s *ast.UpsertStatement) (string, []any, error) { return d.b().Upsert(s) }
func (d Postgres) Update(s *ast.UpdateStatement) (string, []any, error) { return d.b().Update(s) }
func (d Postgres) Delete(s *ast.DeleteStatement) (string, []any, error) { return d.b().Delete(s) }

// CreateTable implements Dialect.
func (Postgres) CreateTable(h *heading.Heading, table string) string {
	return createTable(h, table, postgresTypes, "", false)
}

// ForeignKeys implements Dialect.
func (Postgres) ForeignKeys(h *heading.Heading, table string) []string {
	fks := h.ForeignKeys()
	out := make([]string, 0, len(fks))
	for _, fk := range fks {
		out = append(out, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s",
			Quote(table), Quote(fk.ConstraintName()), foreignKeyClause(fk)))
	}
	return out
}

// IsAlreadyExists implements Dialect.
func (Postgres) IsAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgDuplicateTable, pgDuplicateObject:
			return true
		case pgUniqueViolation:
			return pgErr.ConstraintName == pgTypeNameIndex
		}
	}
	return false
}
