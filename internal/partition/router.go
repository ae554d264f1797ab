// Package partition spreads the rows of one entity over physical tables
// named by a partition function over one attribute. A Router decorates
// the entity's template table: writes go to the partition the row's value
// maps to, created on first use, and queries fan out to the partitions
// their predicates imply.
package partition

import (
	"context"
	"fmt"
	"iter"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/events"
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/manifest"
	"github.com/relmap/relmap/internal/observability"
	"github.com/relmap/relmap/internal/query/builder"
	"github.com/relmap/relmap/internal/table"
	"github.com/relmap/relmap/pkg/types"
)

// DefaultConcurrency is the number of partitions queried at once.
const DefaultConcurrency = 8

// Router routes reads and writes of a template table to its partitions.
type Router struct {
	template    *table.Table
	attr        *heading.Attribute
	fn          Function
	catalog     *manifest.Catalog
	config      types.PartitionConfig
	stats       *observability.QueryStats
	concurrency int

	mu      sync.Mutex
	created map[string]bool
	events  *events.Bus
}

var _ table.Relation = (*Router)(nil)

// Option configures a Router.
type Option func(*Router)

// WithConcurrency bounds the number of partitions queried at once.
func WithConcurrency(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithEvents publishes a PartitionCreated event for every partition this
// router creates.
func WithEvents(bus *events.Bus) Option {
	return func(r *Router) { r.events = bus }
}

// WithStats records the fan-out of every query.
func WithStats(stats *observability.QueryStats) Option {
	return func(r *Router) { r.stats = stats }
}

// New returns a router partitioning template by attribute with fn, and
// records the template in the catalog.
func New(ctx context.Context, template *table.Table, attribute string, fn Function, catalog *manifest.Catalog, opts ...Option) (*Router, error) {
	return newRouter(ctx, template, types.PartitionConfig{
		Entity:    template.Entity(),
		Attribute: attribute,
		Strategy:  types.StrategyCustom,
	}, fn, catalog, opts)
}

// FromConfig returns a router using the built-in function cfg names.
func FromConfig(ctx context.Context, template *table.Table, cfg types.PartitionConfig, catalog *manifest.Catalog, opts ...Option) (*Router, error) {
	fn, err := FunctionFor(cfg)
	if err != nil {
		return nil, err
	}
	cfg.Entity = template.Entity()
	return newRouter(ctx, template, cfg, fn, catalog, opts)
}

func newRouter(ctx context.Context, template *table.Table, cfg types.PartitionConfig, fn Function, catalog *manifest.Catalog, opts []Option) (*Router, error) {
	attr, err := template.Heading().Attribute(cfg.Attribute)
	if err != nil {
		return nil, err
	}
	if err := catalog.DefineTemplate(ctx, cfg); err != nil {
		return nil, err
	}
	r := &Router{
		template:    template,
		attr:        attr,
		fn:          fn,
		catalog:     catalog,
		config:      cfg,
		concurrency: DefaultConcurrency,
		created:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Entity returns the logical entity name.
func (r *Router) Entity() string { return r.template.Entity() }

// Heading returns the template heading.
func (r *Router) Heading() *heading.Heading { return r.template.Heading() }

// Template returns the template table.
func (r *Router) Template() *table.Table { return r.template }

// Config returns the partitioning of the router.
func (r *Router) Config() types.PartitionConfig { return r.config }

// Name returns the physical name of the partition holding value.
func (r *Router) Name(value any) (string, error) {
	enc, err := r.attr.Encode(value)
	if err != nil {
		return "", err
	}
	suffix, err := r.fn(enc)
	if err != nil {
		return "", relerr.InvalidValue(r.attr.Name(), value, err.Error())
	}
	return r.template.Name() + "_" + suffix, nil
}

// Partition returns the table of the partition holding value, creating it
// when it does not exist yet.
func (r *Router) Partition(ctx context.Context, value any) (*table.Table, error) {
	name, err := r.Name(value)
	if err != nil {
		return nil, err
	}
	t := r.template.WithName(name)
	if err := r.ensure(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ensure creates the partition table t once per router. Creation races
// with other processes are settled by the database: "already exists" is
// success.
func (r *Router) ensure(ctx context.Context, t *table.Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.created[t.Name()] {
		return nil
	}

	d := t.Executor().Dialect()
	fresh := false
	if err := t.Create(ctx); err != nil {
		if !d.IsAlreadyExists(err) {
			return fmt.Errorf("partition: create %s: %w", t.Name(), err)
		}
	} else {
		if err := t.CreateForeignKeys(ctx); err != nil && !d.IsAlreadyExists(err) {
			return fmt.Errorf("partition: foreign keys of %s: %w", t.Name(), err)
		}
		log.Printf("partition: created %s", t.Name())
		fresh = true
	}

	key := t.Name()[len(r.template.Name())+1:]
	if err := r.catalog.RegisterPartition(ctx, r.Entity(), t.Name(), key); err != nil {
		return fmt.Errorf("partition: register %s: %w", t.Name(), err)
	}
	r.created[t.Name()] = true
	if fresh {
		r.events.Publish(events.Event{Kind: events.PartitionCreated, Entity: r.Entity(), Partition: t.Name(), Key: key})
	}
	return nil
}

func (r *Router) target(ctx context.Context, attrs types.Row) (*table.Table, error) {
	v, ok := attrs[r.attr.Name()]
	if !ok || v == nil {
		return nil, relerr.MissingPartitionValue(r.template.Name(), r.attr.Name())
	}
	return r.Partition(ctx, v)
}

// Insert stores attrs in the partition its partition attribute maps to.
func (r *Router) Insert(ctx context.Context, attrs types.Row) (*types.Object, error) {
	t, err := r.target(ctx, attrs)
	if err != nil {
		return nil, err
	}
	return t.Insert(ctx, attrs)
}

// Upsert upserts attrs in the partition its partition attribute maps to.
func (r *Router) Upsert(ctx context.Context, attrs types.Row, opts table.UpsertOptions) error {
	t, err := r.target(ctx, attrs)
	if err != nil {
		return err
	}
	return t.Upsert(ctx, attrs, opts)
}

// Partitions returns the known partitions ordered by name.
func (r *Router) Partitions(ctx context.Context) ([]manifest.PartitionRecord, error) {
	return r.catalog.Partitions(ctx, r.Entity())
}

// Query runs script against every targeted partition and concatenates
// the results in partition name order. Rows are ordered within a
// partition only; sort with executor.SortObjects for a global order.
func (r *Router) Query(ctx context.Context, script builder.Script) ([]*types.Object, error) {
	plan, err := r.Targets(ctx, script)
	if err != nil {
		return nil, err
	}

	results := make([][]*types.Object, len(plan.Partitions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, name := range plan.Partitions {
		g.Go(func() error {
			objs, err := r.template.WithName(name).Query(gctx, script)
			if err != nil {
				return err
			}
			results[i] = objs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*types.Object
	for _, objs := range results {
		out = append(out, objs...)
	}
	return out, nil
}

// Count sums the rows matching script over the targeted partitions.
func (r *Router) Count(ctx context.Context, script builder.Script) (int64, error) {
	plan, err := r.Targets(ctx, script)
	if err != nil {
		return 0, err
	}

	counts := make([]int64, len(plan.Partitions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, name := range plan.Partitions {
		g.Go(func() error {
			n, err := r.template.WithName(name).Count(gctx, script)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Each yields the rows matching script partition by partition, each
// partition in primary key order.
func (r *Router) Each(ctx context.Context, script builder.Script, size int) iter.Seq2[*types.Object, error] {
	return func(yield func(*types.Object, error) bool) {
		plan, err := r.Targets(ctx, script)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, name := range plan.Partitions {
			for obj, err := range r.template.WithName(name).Each(ctx, script, size) {
				if !yield(obj, err) || err != nil {
					return
				}
			}
		}
	}
}
