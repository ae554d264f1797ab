// Package config holds the relmap server and CLI configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/relmap/relmap/internal/server"
	"github.com/relmap/relmap/internal/storage"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "RELMAP_"

// Config holds the configuration of the relmap services.
type Config struct {
	// DataDir is the base directory for local files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// SchemaFile is the YAML or JSON schema declaration
	SchemaFile string `json:"schema_file" yaml:"schema_file"`

	Database DatabaseConfig        `json:"database" yaml:"database"`
	HTTP     HTTPConfig            `json:"http" yaml:"http"`
	GRPC     GRPCConfig            `json:"grpc" yaml:"grpc"`
	Query    QueryConfig           `json:"query" yaml:"query"`
	Storage  StorageConfig         `json:"storage" yaml:"storage"`
	Shutdown server.ShutdownConfig `json:"shutdown" yaml:"shutdown"`
}

// DatabaseConfig selects the database holding the mapped tables.
type DatabaseConfig struct {
	// Driver is sqlite or postgres
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the SQLite file path or the Postgres connection string.
	// Defaults to <data_dir>/relmap.db for SQLite.
	DSN string `json:"dsn" yaml:"dsn"`

	// MaxConns bounds the Postgres pool
	MaxConns int32 `json:"max_conns" yaml:"max_conns"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// QueryConfig tunes query execution.
type QueryConfig struct {
	// Concurrency is the number of partitions queried in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// StatsWindow is how long predicate statistics are kept
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// StorageConfig selects where partition archives go.
type StorageConfig struct {
	// Type is local or s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage root (for local type)
	Path string `json:"path" yaml:"path"`

	// WorkDir holds archives while they are written
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	S3 storage.S3Config `json:"s3" yaml:"s3"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "./data/relmap",
		SchemaFile: "schema.yaml",
		Database: DatabaseConfig{
			Driver:   "sqlite",
			MaxConns: 10,
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Query: QueryConfig{
			Concurrency: 8,
			StatsWindow: time.Hour,
		},
		Storage: StorageConfig{
			Type: "local",
			S3:   storage.DefaultS3Config(),
		},
		Shutdown: server.DefaultShutdownConfig(),
	}
}

// Resolve fills paths left empty from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/relmap"
	}
	if c.Database.DSN == "" && c.IsSQLite() {
		c.Database.DSN = filepath.Join(c.DataDir, "relmap.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "archive")
	}
	if c.Storage.WorkDir == "" {
		c.Storage.WorkDir = filepath.Join(c.DataDir, "work")
	}
}

// IsSQLite reports whether the database driver is SQLite.
func (c *Config) IsSQLite() bool {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3":
	case "postgres", "postgresql", "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite or postgres)", c.Database.Driver)
	}

	if c.SchemaFile == "" {
		return fmt.Errorf("schema_file is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Query.Concurrency < 1 {
		return fmt.Errorf("query.concurrency must be positive, got %d", c.Query.Concurrency)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files, or from .env,
// into the process environment without overriding variables already set.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadFromEnv overrides cfg from RELMAP_ environment variables.
func LoadFromEnv(cfg *Config) {
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	if v := env("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := env("SCHEMA_FILE"); v != "" {
		cfg.SchemaFile = v
	}

	// Database configuration
	if v := env("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := env("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := env("DATABASE_MAX_CONNS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Database.MaxConns)
	}

	// Server configuration
	if v := env("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := env("GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := env("GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}
	if v := env("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Shutdown.ShutdownTimeout = d
		}
	}

	// Query configuration
	if v := env("QUERY_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Query.Concurrency)
	}
	if v := env("QUERY_STATS_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Query.StatsWindow = d
		}
	}

	// Storage configuration
	if v := env("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := env("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := env("S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := env("S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}
	if v := env("S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := env("S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
		cfg.Storage.S3.UsePathStyle = true
	}
}

// Load reads .env, then path (if not empty) over the defaults, then the
// environment, then applies overrides in order, and resolves and
// validates the result.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	for _, o := range overrides {
		o(cfg)
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnsureDirectories creates the local directories the configuration uses.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.Storage.WorkDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.IsSQLite() {
		dirs = append(dirs, filepath.Dir(c.Database.DSN))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
