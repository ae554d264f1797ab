package manifest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relmap/relmap/internal/dialect"
	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/store"
	"github.com/relmap/relmap/pkg/types"
)

// State is the lifecycle state of a logical table.
type State int

const (
	// Unregistered tables have no template.
	Unregistered State = iota
	// TemplateDefined tables have a template but no partition yet.
	TemplateDefined
	// PartitionCreated tables have at least one partition.
	PartitionCreated
)

func (s State) String() string {
	switch s {
	case TemplateDefined:
		return "template_defined"
	case PartitionCreated:
		return "partition_created"
	}
	return "unregistered"
}

// Template is the partitioning declared for one entity.
type Template struct {
	types.PartitionConfig
	CreatedAt time.Time `json:"created_at"`
}

// PartitionRecord is one physical partition.
type PartitionRecord struct {
	Name      string    `json:"name"`
	Entity    string    `json:"entity"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// partitionCountWarnThreshold is the partition count per entity above
// which registering a partition logs a warning.
const partitionCountWarnThreshold = 10000

// Catalog stores templates and partitions through a connection.
type Catalog struct {
	conn    store.Conn
	dialect dialect.Dialect
	mu      sync.Mutex // serializes writes
}

// NewCatalog opens the catalog on conn, creating its tables when missing.
func NewCatalog(ctx context.Context, conn store.Conn, d dialect.Dialect) (*Catalog, error) {
	c := &Catalog{conn: conn, dialect: d}
	for _, stmt := range AllSchemaSQL() {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
		}
	}
	return c, nil
}

// DefineTemplate records the partitioning of an entity. Defining the same
// template again is a no-op; redefining it differently is an error.
func (c *Catalog) DefineTemplate(ctx context.Context, cfg types.PartitionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stmt := &ast.UpsertStatement{
		Insert: &ast.InsertStatement{
			Table:   TemplatesTable,
			Columns: []string{"entity", "attribute", "function", "modulo", "created_at"},
			Values:  []any{cfg.Entity, cfg.Attribute, string(cfg.Strategy), int64(cfg.HashModulo), time.Now().UnixNano()},
		},
		ConflictColumns: []string{"entity"},
	}
	if err := c.exec(ctx, stmt); err != nil {
		return err
	}

	stored, ok, err := c.template(ctx, cfg.Entity)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("manifest: template for %s vanished", cfg.Entity)
	}
	if stored.PartitionConfig != cfg {
		return relerr.Newf(relerr.ErrCategorySchema, relerr.CodeInvalidSchema,
			"%s is already partitioned by %s(%s)", cfg.Entity, stored.Strategy, stored.Attribute)
	}
	return nil
}

// Template returns the template of entity. ok is false when the entity is
// not partitioned.
func (c *Catalog) Template(ctx context.Context, entity string) (tmpl Template, ok bool, err error) {
	return c.template(ctx, entity)
}

func (c *Catalog) template(ctx context.Context, entity string) (Template, bool, error) {
	tmpls, err := c.templates(ctx, eq("entity", entity))
	if err != nil || len(tmpls) == 0 {
		return Template{}, false, err
	}
	return tmpls[0], true, nil
}

// Templates returns every template ordered by entity.
func (c *Catalog) Templates(ctx context.Context) ([]Template, error) {
	return c.templates(ctx, nil)
}

func (c *Catalog) templates(ctx context.Context, where ast.Expression) ([]Template, error) {
	res, err := c.query(ctx, TemplatesTable, []string{"entity", "attribute", "function", "modulo", "created_at"}, where, "entity")
	if err != nil {
		return nil, err
	}
	out := make([]Template, 0, res.Len())
	for _, row := range res.Rows {
		out = append(out, Template{
			PartitionConfig: types.PartitionConfig{
				Entity:     asString(row[0]),
				Attribute:  asString(row[1]),
				Strategy:   types.PartitionStrategy(asString(row[2])),
				HashModulo: int(asInt64(row[3])),
			},
			CreatedAt: time.Unix(0, asInt64(row[4])).UTC(),
		})
	}
	return out, nil
}

// State returns the lifecycle state of entity.
func (c *Catalog) State(ctx context.Context, entity string) (State, error) {
	_, ok, err := c.template(ctx, entity)
	if err != nil || !ok {
		return Unregistered, err
	}
	parts, err := c.Partitions(ctx, entity)
	if err != nil {
		return Unregistered, err
	}
	if len(parts) == 0 {
		return TemplateDefined, nil
	}
	return PartitionCreated, nil
}

// RegisterPartition records a physical partition of entity. Registering a
// known partition again is a no-op.
func (c *Catalog) RegisterPartition(ctx context.Context, entity, name, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stmt := &ast.UpsertStatement{
		Insert: &ast.InsertStatement{
			Table:   PartitionsTable,
			Columns: []string{"name", "entity", "partition_key", "created_at"},
			Values:  []any{name, entity, key, time.Now().UnixNano()},
		},
		ConflictColumns: []string{"name"},
	}
	if err := c.exec(ctx, stmt); err != nil {
		return err
	}
	c.logPartitionCountThreshold(ctx, entity)
	return nil
}

// Partitions returns the partitions of entity ordered by name.
func (c *Catalog) Partitions(ctx context.Context, entity string) ([]PartitionRecord, error) {
	res, err := c.query(ctx, PartitionsTable, []string{"name", "entity", "partition_key", "created_at"}, eq("entity", entity), "name")
	if err != nil {
		return nil, err
	}
	out := make([]PartitionRecord, 0, res.Len())
	for _, row := range res.Rows {
		out = append(out, PartitionRecord{
			Name:      asString(row[0]),
			Entity:    asString(row[1]),
			Key:       asString(row[2]),
			CreatedAt: time.Unix(0, asInt64(row[3])).UTC(),
		})
	}
	return out, nil
}

// logPartitionCountThreshold warns when an entity accumulates many
// partitions. Must be called with c.mu held.
func (c *Catalog) logPartitionCountThreshold(ctx context.Context, entity string) {
	res, err := c.query(ctx, PartitionsTable, []string{"name"}, eq("entity", entity), "")
	if err != nil {
		return
	}
	if n := res.Len(); n > partitionCountWarnThreshold {
		log.Printf("manifest: [WARN] %s has %d partitions (threshold %d)", entity, n, partitionCountWarnThreshold)
	}
}

func (c *Catalog) exec(ctx context.Context, stmt *ast.UpsertStatement) error {
	query, args, err := c.dialect.Upsert(stmt)
	if err != nil {
		return fmt.Errorf("manifest: render insert: %w", err)
	}
	_, err = c.conn.Exec(ctx, query, args...)
	return err
}

func (c *Catalog) query(ctx context.Context, table string, columns []string, where ast.Expression, orderBy string) (*store.Result, error) {
	sel := &ast.SelectStatement{From: &ast.TableRef{Name: table}, Where: where}
	for _, col := range columns {
		sel.Columns = append(sel.Columns, ast.SelectColumn{Expr: &ast.ColumnRef{Column: col}})
	}
	if orderBy != "" {
		sel.OrderBy = []ast.OrderByClause{{Expr: &ast.ColumnRef{Column: orderBy}}}
	}
	query, args, err := c.dialect.Select(sel)
	if err != nil {
		return nil, fmt.Errorf("manifest: render select: %w", err)
	}
	return c.conn.Query(ctx, query, args...)
}

func eq(column string, value any) ast.Expression {
	return &ast.BinaryExpr{Left: &ast.ColumnRef{Column: column}, Operator: ast.OpEq, Right: &ast.Literal{Value: value}}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return ""
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	}
	return 0
}
