package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Conn over a single SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating when missing) the database at path with
// foreign keys enforced. A single connection is used so that writers do
// not contend for the file lock.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn += sep + "_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// DB exposes the underlying handle.
func (s *SQLite) DB() *sql.DB { return s.db }

// Driver implements Conn.
func (s *SQLite) Driver() string { return "sqlite" }

// Query implements Conn.
func (s *SQLite) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logFailure("sqlite", query, err)
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			logFailure("sqlite", query, err)
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		logFailure("sqlite", query, err)
		return nil, err
	}
	return res, nil
}

// Exec implements Conn.
func (s *SQLite) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logFailure("sqlite", query, err)
		return 0, err
	}
	return res.RowsAffected()
}

// Insert implements Conn using LastInsertId.
func (s *SQLite) Insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logFailure("sqlite", query, err)
		return 0, err
	}
	return res.LastInsertId()
}

// Close implements Conn.
func (s *SQLite) Close() error {
	return s.db.Close()
}
