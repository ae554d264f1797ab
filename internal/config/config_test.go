package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join("data", "relmap", "relmap.db"), filepath.Clean(cfg.Database.DSN))
	assert.Equal(t, filepath.Join(cfg.DataDir, "archive"), cfg.Storage.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }},
		{"no schema", func(c *Config) { c.SchemaFile = "" }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"zero concurrency", func(c *Config) { c.Query.Concurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "relmap.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
schema_file: hits.yaml
database:
  driver: postgres
  dsn: postgres://localhost/relmap
http:
  addr: ":9999"
query:
  concurrency: 3
  stats_window: 10m
storage:
  type: s3
  s3:
    bucket: archives
`), 0644))

	cfg, err := LoadFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "hits.yaml", cfg.SchemaFile)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, 3, cfg.Query.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.Query.StatsWindow)
	assert.Equal(t, "archives", cfg.Storage.S3.Bucket)
	// untouched fields keep their defaults
	assert.Equal(t, "us-east-1", cfg.Storage.S3.Region)
	assert.Equal(t, ":9090", cfg.GRPC.Addr)
	require.NoError(t, cfg.Validate())

	jsonPath := filepath.Join(dir, "relmap.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"schema_file":"s.json","grpc":{"enabled":false}}`), 0644))
	cfg, err = LoadFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "s.json", cfg.SchemaFile)
	assert.False(t, cfg.GRPC.Enabled)

	_, err = LoadFromFile(filepath.Join(dir, "relmap.toml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RELMAP_DATABASE_DRIVER", "postgres")
	t.Setenv("RELMAP_DATABASE_DSN", "postgres://db/relmap")
	t.Setenv("RELMAP_GRPC_ENABLED", "0")
	t.Setenv("RELMAP_QUERY_CONCURRENCY", "16")
	t.Setenv("RELMAP_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("RELMAP_S3_ENDPOINT", "http://minio:9000")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://db/relmap", cfg.Database.DSN)
	assert.False(t, cfg.GRPC.Enabled)
	assert.Equal(t, 16, cfg.Query.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Shutdown.ShutdownTimeout)
	assert.True(t, cfg.Storage.S3.UsePathStyle)
	assert.False(t, cfg.IsSQLite())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("RELMAP_HTTP_ADDR=:7070\n"), 0644))
	t.Setenv("RELMAP_HTTP_ADDR", "")
	os.Unsetenv("RELMAP_HTTP_ADDR")

	require.NoError(t, LoadDotEnv(envFile, filepath.Join(dir, "missing.env")))
	cfg := DefaultConfig()
	LoadFromEnv(cfg)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Resolve()
	require.NoError(t, cfg.EnsureDirectories())
	for _, dir := range []string{cfg.DataDir, cfg.Storage.Path, cfg.Storage.WorkDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schema_file: a.yaml\nhttp:\n  addr: \":1111\"\n"), 0644))
	t.Setenv("RELMAP_HTTP_ADDR", ":2222")

	cfg, err := Load(path, func(c *Config) { c.DataDir = dir })
	require.NoError(t, err)
	assert.Equal(t, ":2222", cfg.HTTP.Addr)
	assert.Equal(t, "a.yaml", cfg.SchemaFile)
	assert.Equal(t, filepath.Join(dir, "relmap.db"), cfg.Database.DSN)

	_, err = Load(path, func(c *Config) { c.Query.Concurrency = -1 })
	assert.Error(t, err)
}
