// Package app wires a configuration into a running relmap instance: the
// database connection, the loaded schema, its tables and partition
// routers, the API service and the servers.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/relmap/relmap/internal/api"
	grpcapi "github.com/relmap/relmap/internal/api/grpc"
	httpapi "github.com/relmap/relmap/internal/api/http"
	"github.com/relmap/relmap/internal/config"
	"github.com/relmap/relmap/internal/dialect"
	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/events"
	"github.com/relmap/relmap/internal/export"
	"github.com/relmap/relmap/internal/manifest"
	"github.com/relmap/relmap/internal/observability"
	"github.com/relmap/relmap/internal/partition"
	"github.com/relmap/relmap/internal/query/executor"
	"github.com/relmap/relmap/internal/schema"
	"github.com/relmap/relmap/internal/server"
	"github.com/relmap/relmap/internal/storage"
	"github.com/relmap/relmap/internal/store"
	"github.com/relmap/relmap/internal/table"
)

// App holds the resources shared by the CLI commands and the servers.
type App struct {
	cfg *config.Config

	conn     store.Conn
	dialect  dialect.Dialect
	schema   *schema.Schema
	exec     *executor.Executor
	catalog  *manifest.Catalog
	stats    *observability.QueryStats
	service  *api.Service
	tables   map[string]*table.Table
	events   *events.Bus
	shutdown *server.ShutdownManager

	storageOnce sync.Once
	storage     storage.ObjectStorage
	storageErr  error
}

// New resolves and validates cfg, connects to the database and loads the
// schema. Tables are not created; see Migrate.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	sch, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	d, err := dialect.New(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		dialect:  d,
		schema:   sch,
		stats:    observability.NewQueryStats(cfg.Query.StatsWindow),
		tables:   make(map[string]*table.Table),
		events:   events.NewBus(eventBuffer),
		shutdown: server.NewShutdownManager(cfg.Shutdown),
	}
	if a.conn, err = a.open(ctx); err != nil {
		return nil, err
	}
	log.Printf("app: connected to %s database", a.conn.Driver())

	a.exec = executor.New(a.conn, d, executor.WithStats(a.stats))
	if a.catalog, err = manifest.NewCatalog(ctx, a.conn, d); err != nil {
		a.conn.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) (store.Conn, error) {
	if a.cfg.IsSQLite() {
		return store.OpenSQLite(a.cfg.Database.DSN)
	}
	return store.OpenPostgres(ctx, a.cfg.Database.DSN, a.cfg.Database.MaxConns)
}

// eventBuffer is the channel size of each partition event subscriber.
const eventBuffer = 256

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Schema returns the loaded schema.
func (a *App) Schema() *schema.Schema { return a.schema }

// Events returns the bus announcing partition creation, archival and
// restore.
func (a *App) Events() *events.Bus { return a.events }

// partitioned lists the entities declared partitioned. Their tables are
// created per partition by the routers.
func (a *App) partitioned() map[string]bool {
	skip := make(map[string]bool, len(a.schema.Partitions))
	for _, p := range a.schema.Partitions {
		skip[p.Entity] = true
	}
	return skip
}

// DDL returns the statements creating the tables of the unpartitioned
// headings.
func (a *App) DDL() ([]string, error) {
	return table.DDL(a.schema.Registry, a.exec, a.partitioned())
}

// Migrate creates the tables of the unpartitioned headings and records the
// partition templates.
func (a *App) Migrate(ctx context.Context) error {
	if err := table.Migrate(ctx, a.schema.Registry, a.exec, a.partitioned()); err != nil {
		return err
	}
	for _, p := range a.schema.Partitions {
		if err := a.catalog.DefineTemplate(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Service returns the API service over every entity of the schema,
// building it on first use.
func (a *App) Service(ctx context.Context) (*api.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	svc := api.NewService(a.stats)
	for _, e := range a.schema.Registry.Ordered() {
		if e.Base() == nil {
			continue
		}
		t, err := table.New(a.schema.Registry, a.exec, e.Name())
		if err != nil {
			return nil, err
		}
		a.tables[e.Name()] = t

		cfg, ok := a.schema.Partition(e.Name())
		if !ok {
			svc.Register(t)
			continue
		}
		r, err := partition.FromConfig(ctx, t, cfg, a.catalog,
			partition.WithConcurrency(a.cfg.Query.Concurrency),
			partition.WithStats(a.stats),
			partition.WithEvents(a.events))
		if err != nil {
			return nil, err
		}
		svc.Register(r)
	}
	a.service = svc
	return svc, nil
}

// Storage returns the configured archive storage.
func (a *App) Storage(ctx context.Context) (storage.ObjectStorage, error) {
	a.storageOnce.Do(func() {
		switch a.cfg.Storage.Type {
		case "local":
			a.storage, a.storageErr = storage.NewLocalStorage(a.cfg.Storage.Path)
		case "s3":
			a.storage, a.storageErr = storage.NewS3Storage(ctx, a.cfg.Storage.S3)
		default:
			a.storageErr = fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
		}
		if a.storageErr == nil {
			log.Printf("app: storage initialized: type=%s", a.cfg.Storage.Type)
		}
	})
	return a.storage, a.storageErr
}

// Exporter returns an exporter writing to the configured storage.
func (a *App) Exporter(ctx context.Context) (*export.Exporter, error) {
	s, err := a.Storage(ctx)
	if err != nil {
		return nil, err
	}
	return export.New(s, export.WithWorkDir(a.cfg.Storage.WorkDir), export.WithEvents(a.events)), nil
}

// Partition returns the physical table of one partition of entity.
func (a *App) Partition(ctx context.Context, entity, name string) (*table.Table, error) {
	svc, err := a.Service(ctx)
	if err != nil {
		return nil, err
	}
	r, ok := svc.Router(entity)
	if !ok {
		if _, err := svc.Relation(entity); err != nil {
			return nil, err
		}
		return a.tables[entity], nil
	}
	parts, err := r.Partitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		if p.Name == name {
			return r.Template().WithName(name), nil
		}
	}
	return nil, relerr.Newf(relerr.ErrCategoryStorage, relerr.CodePartitionNotFound,
		"partition %q of %q not found", name, entity)
}

// Serve runs the HTTP server, and the gRPC server when enabled, until ctx
// is done or a termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Migrate(ctx); err != nil {
		return err
	}
	svc, err := a.Service(ctx)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      httpapi.NewHandler(svc, a.shutdown.Middleware),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.shutdown.ServeHTTP(httpServer) })
	if a.cfg.GRPC.Enabled {
		grpcServer := grpc.NewServer()
		grpcapi.Register(grpcServer, svc)
		g.Go(func() error { return a.shutdown.ServeGRPC(grpcServer, a.cfg.GRPC.Addr) })
	}
	g.Go(func() error { return a.shutdown.Wait(gctx) })

	sub := a.events.Subscribe()
	a.shutdown.RegisterCloser("events", server.CloserFunc(func() error {
		a.events.Unsubscribe(sub.ID)
		return nil
	}))
	go logEvents(sub)
	go a.stats.PruneEvery(a.shutdown.Done(), a.cfg.Query.StatsWindow/4)

	log.Printf("app: serving %d entities", len(svc.Entities()))
	return g.Wait()
}

func logEvents(sub *events.Subscription) {
	for ev := range sub.C() {
		log.Printf("app: %s %s (%s, %d rows)", ev.Kind, ev.Partition, ev.Key, ev.Rows)
	}
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.conn.Close()
}
