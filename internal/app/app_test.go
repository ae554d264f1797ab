package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relmap/relmap/internal/api"
	"github.com/relmap/relmap/internal/config"
	relerr "github.com/relmap/relmap/internal/errors"
)

const testSchema = `
entities:
  - name: user
    attributes:
      - {name: first_name, domain: text}
      - {name: last_name, domain: text}
      - {name: age, domain: integer}
    primary_key: [first_name, last_name]
    children:
      - name: addresses
        cardinality: many
        attributes:
          - {name: city, domain: text}
  - name: hit
    attributes:
      - {name: day, domain: text}
      - {name: thing, domain: text}
      - {name: count, domain: integer}
    primary_key: [day, thing]
partitions:
  - {entity: hit, attribute: day, function: monthly}
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(testSchema), 0o644))

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.SchemaFile = schemaPath

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.Migrate(context.Background()))
	return a
}

func TestApp_DDL(t *testing.T) {
	a := newTestApp(t)
	stmts, err := a.DDL()
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.True(t, strings.HasPrefix(stmts[0], `CREATE TABLE "user"`))
	assert.True(t, strings.HasPrefix(stmts[1], `CREATE TABLE "user_addresses"`))
}

func TestApp_ServiceRoutesPartitions(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	sub := a.Events().Subscribe("hit")

	// migrating twice leaves existing tables alone
	require.NoError(t, a.Migrate(ctx))

	svc, err := a.Service(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"hit", "user"}, svc.Entities())

	for _, day := range []string{"20120101", "20120215"} {
		_, err := svc.Write(ctx, api.WriteRequest{Entity: "hit", Attributes: map[string]any{
			"day": day, "thing": "a", "count": json.Number("1"),
		}})
		require.NoError(t, err)
	}
	parts, err := svc.Partitions(ctx, "hit")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "hit_201201", parts[0].Name)

	assert.Len(t, sub.C(), 2)

	n, err := svc.Count(ctx, api.QueryRequest{Entity: "hit"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	again, err := a.Service(ctx)
	require.NoError(t, err)
	assert.Same(t, svc, again)
}

func TestApp_ExportRestorePartition(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	svc, err := a.Service(ctx)
	require.NoError(t, err)

	for _, thing := range []string{"a", "b", "c"} {
		_, err := svc.Write(ctx, api.WriteRequest{Entity: "hit", Attributes: map[string]any{
			"day": "20120101", "thing": thing, "count": json.Number("2"),
		}})
		require.NoError(t, err)
	}

	part, err := a.Partition(ctx, "hit", "hit_201201")
	require.NoError(t, err)
	exp, err := a.Exporter(ctx)
	require.NoError(t, err)
	archive, err := exp.Export(ctx, part)
	require.NoError(t, err)
	assert.Equal(t, int64(3), archive.Rows)

	archives, err := exp.Archives(ctx, "hit")
	require.NoError(t, err)
	assert.Equal(t, []string{archive.Path}, archives)

	_, err = a.Partition(ctx, "hit", "hit_209901")
	assert.Equal(t, relerr.CodePartitionNotFound, relerr.GetCode(err))
	_, err = a.Partition(ctx, "ghost", "ghost")
	assert.ErrorIs(t, err, relerr.ErrHeadingNotFound)

	users, err := a.Partition(ctx, "user", "user")
	require.NoError(t, err)
	assert.Equal(t, "user", users.Name())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "oracle"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.SchemaFile = filepath.Join(cfg.DataDir, "missing.yaml")
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
