package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLite_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Exec(ctx, `CREATE TABLE thing (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`)
	require.NoError(t, err)

	id, err := db.Insert(ctx, `INSERT INTO thing (name) VALUES (?)`, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	id, err = db.Insert(ctx, `INSERT INTO thing (name) VALUES (?)`, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	res, err := db.Query(ctx, `SELECT id, name FROM thing ORDER BY id`)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	require.Equal(t, 2, res.Len())
	assert.Equal(t, int64(2), res.Rows[1][0])

	n, err := db.Exec(ctx, `DELETE FROM thing WHERE id = ?`, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_ErrorsReturnedUnchanged(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Query(ctx, `SELECT * FROM missing`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
}

func TestSQLite_ForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Exec(ctx, `CREATE TABLE parent (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `CREATE TABLE child (id INTEGER PRIMARY KEY, parent_id INTEGER REFERENCES parent (id))`)
	require.NoError(t, err)

	_, err = db.Insert(ctx, `INSERT INTO child (id, parent_id) VALUES (1, 42)`)
	assert.Error(t, err)
}
