package dialect

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/ast"
)

var sqliteTypes = columnTypes{
	heading.Integer:   "INTEGER",
	heading.Serial:    "INTEGER",
	heading.UUID:      "TEXT",
	heading.Text:      "TEXT",
	heading.Real:      "REAL",
	heading.Boolean:   "BOOLEAN",
	heading.Timestamp: "TIMESTAMP",
	heading.Blob:      "BLOB",
	heading.Document:  "BLOB",
}

// SQLite renders statements for github.com/mattn/go-sqlite3. Foreign keys
// are declared inline and serials come from LastInsertId.
type SQLite struct{}

func (SQLite) b() base { return base{placeholder: func(int) string { return "?" }} }

// Name implements Dialect.
func (SQLite) Name() string { return "sqlite" }

// ReturnsGeneratedID implements Dialect.
func (SQLite) ReturnsGeneratedID() bool { return false }

func (d SQLite) Select(s *ast.SelectStatement) (string, []any, error) { return d.b().Select(s) }
func (d SQLite) Count(s *ast.SelectStatement) (string, []any, error)  { return d.b().Count(s) }
func (d SQLite) Upsert(s *ast.UpsertStatement) (string, []any, error) { return d.b().Upsert(s) }
func (d SQLite) Update(s *ast.UpdateStatement) (string, []any, error) { return d.b().Update(s) }
func (d SQLite) Delete(s *ast.DeleteStatement) (string, []any, error) { return d.b().Delete(s) }

// Insert implements Dialect. RETURNING is never rendered.
func (d SQLite) Insert(s *ast.InsertStatement) (string, []any, error) {
	plain := *s
	plain.Returning = ""
	return d.b().Insert(&plain)
}

// CreateTable implements Dialect. A sole Serial primary key becomes an
// INTEGER PRIMARY KEY AUTOINCREMENT column.
func (SQLite) CreateTable(h *heading.Heading, table string) string {
	return createTable(h, table, sqliteTypes, "INTEGER PRIMARY KEY AUTOINCREMENT", true)
}

// ForeignKeys implements Dialect; SQLite cannot add constraints later.
func (SQLite) ForeignKeys(*heading.Heading, string) []string { return nil }

// IsAlreadyExists implements Dialect.
func (SQLite) IsAlreadyExists(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrError && strings.Contains(se.Error(), "already exists")
	}
	return err != nil && strings.Contains(err.Error(), "already exists")
}
