package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Conn over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and pings the server.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parsing DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: pinging database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Driver implements Conn.
func (p *Postgres) Driver() string { return "postgres" }

// Query implements Conn.
func (p *Postgres) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		logFailure("postgres", query, err)
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	res := &Result{Columns: make([]string, len(fields))}
	for i, f := range fields {
		res.Columns[i] = f.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			logFailure("postgres", query, err)
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		logFailure("postgres", query, err)
		return nil, err
	}
	return res, nil
}

// Exec implements Conn.
func (p *Postgres) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		logFailure("postgres", query, err)
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Insert implements Conn. Statements with a RETURNING clause hand back
// the generated serial.
func (p *Postgres) Insert(ctx context.Context, query string, args ...any) (int64, error) {
	if !strings.Contains(query, " RETURNING ") {
		_, err := p.Exec(ctx, query, args...)
		return 0, err
	}
	var id int64
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		logFailure("postgres", query, err)
		return 0, err
	}
	return id, nil
}

// Close implements Conn.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
