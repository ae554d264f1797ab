// Package api exposes the tables and partition routers of a schema to the
// HTTP and gRPC servers and the CLI through plain request types.
package api

import (
	"context"
	"sort"
	"sync"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/manifest"
	"github.com/relmap/relmap/internal/observability"
	"github.com/relmap/relmap/internal/partition"
	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/query/builder"
	"github.com/relmap/relmap/internal/query/executor"
	"github.com/relmap/relmap/internal/query/parser"
	"github.com/relmap/relmap/internal/table"
	"github.com/relmap/relmap/pkg/types"
)

// QueryRequest selects objects of one entity.
type QueryRequest struct {
	// Entity is the queried entity.
	Entity string `json:"entity"`
	// Where is a condition such as "day IN ('20120101') AND user.age > 30".
	Where string `json:"where,omitempty"`
	// Joins are association paths joined to restrict the result only.
	Joins []string `json:"joins,omitempty"`
	// Project are association paths whose objects are returned nested in
	// their owners.
	Project []string `json:"project,omitempty"`
	// OrderBy is an ordering such as "age DESC, last_name".
	OrderBy string `json:"order_by,omitempty"`
	Limit   int64  `json:"limit,omitempty"`
	Offset  int64  `json:"offset,omitempty"`
}

// QueryResponse carries the matching objects.
type QueryResponse struct {
	Entity  string          `json:"entity"`
	Objects []*types.Object `json:"objects"`
	Count   int             `json:"count"`
}

// WriteRequest inserts or, with Upsert set, upserts one object.
type WriteRequest struct {
	Entity     string               `json:"entity"`
	Attributes map[string]any       `json:"attributes"`
	Upsert     *table.UpsertOptions `json:"upsert,omitempty"`
}

// WriteResponse carries the written object with generated surrogates.
type WriteResponse struct {
	Object *types.Object `json:"object"`
}

// StatsResponse summarizes the recorded query statistics.
type StatsResponse struct {
	Predicates []observability.ColumnStats `json:"predicates"`
	FanOut     []observability.FanOutStats `json:"fan_out"`
}

// Service executes requests against registered relations.
type Service struct {
	mu        sync.RWMutex
	relations map[string]table.Relation
	routers   map[string]*partition.Router
	stats     *observability.QueryStats
}

// NewService returns an empty service. stats may be nil.
func NewService(stats *observability.QueryStats) *Service {
	return &Service{
		relations: make(map[string]table.Relation),
		routers:   make(map[string]*partition.Router),
		stats:     stats,
	}
}

// Register serves rel under its entity name. Partition routers also
// answer partition listings.
func (s *Service) Register(rel table.Relation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations[rel.Entity()] = rel
	if r, ok := rel.(*partition.Router); ok {
		s.routers[rel.Entity()] = r
	}
}

// Relation returns the relation serving entity.
func (s *Service) Relation(entity string) (table.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.relations[entity]
	if !ok {
		return nil, relerr.HeadingNotFound(entity, "")
	}
	return rel, nil
}

// Entities returns the served entity names, sorted.
func (s *Service) Entities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.relations))
	for name := range s.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query runs req. On a partitioned entity the ordering, limit and offset
// apply to the merged result.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	rel, err := s.Relation(req.Entity)
	if err != nil {
		return nil, err
	}
	where, err := parser.ParseCondition(req.Where)
	if err != nil {
		return nil, err
	}
	orderBy, err := parser.ParseOrderBy(req.OrderBy)
	if err != nil {
		return nil, err
	}

	_, routed := rel.(*partition.Router)
	objs, err := rel.Query(ctx, req.script(where, orderBy, routed))
	if err != nil {
		return nil, err
	}
	if routed {
		objs = window(objs, orderBy, req.Offset, req.Limit)
	}
	if objs == nil {
		objs = []*types.Object{}
	}
	return &QueryResponse{Entity: req.Entity, Objects: objs, Count: len(objs)}, nil
}

// script turns the request into a builder script. A routed query fetches
// offset+limit rows per partition and leaves the offset to window.
func (req QueryRequest) script(where ast.Expression, orderBy []ast.OrderByClause, routed bool) builder.Script {
	return func(c *builder.Conditions, t *builder.Table) {
		if where != nil {
			c.Where(t.Bind(where))
		}
		for _, path := range req.Joins {
			t.Path(path)
		}
		for _, path := range req.Project {
			c.Project(t.Path(path))
		}
		if len(orderBy) > 0 {
			c.OrderBy(t.BindOrderBy(orderBy)...)
		}
		switch {
		case routed && req.Limit > 0:
			c.Limit(req.Offset + req.Limit)
		case !routed:
			if req.Limit > 0 {
				c.Limit(req.Limit)
			}
			if req.Offset > 0 {
				c.Offset(req.Offset)
			}
		}
	}
}

func window(objs []*types.Object, orderBy []ast.OrderByClause, offset, limit int64) []*types.Object {
	if len(orderBy) > 0 {
		executor.SortObjects(objs, orderBy...)
	}
	if offset > 0 {
		if offset >= int64(len(objs)) {
			return nil
		}
		objs = objs[offset:]
	}
	if limit > 0 && limit < int64(len(objs)) {
		objs = objs[:limit]
	}
	return objs
}

// Count counts the objects matching req.Where and req.Joins.
func (s *Service) Count(ctx context.Context, req QueryRequest) (int64, error) {
	rel, err := s.Relation(req.Entity)
	if err != nil {
		return 0, err
	}
	where, err := parser.ParseCondition(req.Where)
	if err != nil {
		return 0, err
	}
	return rel.Count(ctx, func(c *builder.Conditions, t *builder.Table) {
		if where != nil {
			c.Where(t.Bind(where))
		}
		for _, path := range req.Joins {
			t.Path(path)
		}
	})
}

// Write inserts or upserts req.Attributes.
func (s *Service) Write(ctx context.Context, req WriteRequest) (*WriteResponse, error) {
	rel, err := s.Relation(req.Entity)
	if err != nil {
		return nil, err
	}
	row, err := table.RowFromJSON(rel.Heading(), req.Attributes)
	if err != nil {
		return nil, err
	}
	if req.Upsert != nil {
		if err := rel.Upsert(ctx, row, *req.Upsert); err != nil {
			return nil, err
		}
		return &WriteResponse{Object: types.NewObject(req.Entity, row)}, nil
	}
	obj, err := rel.Insert(ctx, row)
	if err != nil {
		return nil, err
	}
	return &WriteResponse{Object: obj}, nil
}

// Partitions lists the partitions of a partitioned entity.
func (s *Service) Partitions(ctx context.Context, entity string) ([]manifest.PartitionRecord, error) {
	s.mu.RLock()
	r, ok := s.routers[entity]
	s.mu.RUnlock()
	if !ok {
		if _, err := s.Relation(entity); err != nil {
			return nil, err
		}
		return nil, relerr.Newf(relerr.ErrCategoryStorage, relerr.CodePartitionNotFound, "entity %q is not partitioned", entity)
	}
	return r.Partitions(ctx)
}

// Router returns the partition router of entity, if it is partitioned.
func (s *Service) Router(entity string) (*partition.Router, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routers[entity]
	return r, ok
}

// Stats returns the top n predicate columns and the fan-out per entity.
func (s *Service) Stats(n int) StatsResponse {
	if s.stats == nil {
		return StatsResponse{Predicates: []observability.ColumnStats{}, FanOut: []observability.FanOutStats{}}
	}
	return StatsResponse{
		Predicates: s.stats.GetTopPredicates(n),
		FanOut:     s.stats.FanOut(),
	}
}
