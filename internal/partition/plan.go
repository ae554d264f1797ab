package partition

import (
	"context"
	"log"

	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/query/builder"
)

// Plan is the set of partitions a query runs against.
type Plan struct {
	// Entity is the partitioned entity.
	Entity string

	// Values are the literals compared with the partition attribute, in
	// the order they appear. Empty means every partition is targeted.
	Values []any

	// Partitions are the targeted partition names in name order.
	Partitions []string

	// PruningStats contains statistics about the targeting.
	PruningStats PruningStats
}

// PruningStats contains statistics about partition targeting.
type PruningStats struct {
	// TotalPartitions is the number of known partitions.
	TotalPartitions int

	// PrunedCount is the number of known partitions not targeted.
	PrunedCount int

	// PruningRatio is the ratio of pruned partitions (0.0 to 1.0).
	PruningRatio float64
}

// Targets builds script against the template and decides which partitions
// it must run against. When the restriction compares the partition
// attribute with literals, the partitions those literals map to are
// targeted, limited to known ones; otherwise every known partition is.
// A literal the partition function cannot map, such as a prefix compared
// with ">", targets every known partition.
func (r *Router) Targets(ctx context.Context, script builder.Script) (*Plan, error) {
	q, err := builder.New(r.template.Registry(), r.Entity(), script)
	if err != nil {
		return nil, err
	}
	stmt, err := q.Build(r.template.Name())
	if err != nil {
		return nil, err
	}

	known, err := r.catalog.Partitions(ctx, r.Entity())
	if err != nil {
		return nil, err
	}

	plan := &Plan{Entity: r.Entity(), Values: Accumulate(stmt.Where(), r.attr.Name())}
	implied, ok := r.implied(plan.Values)
	for _, p := range known {
		if !ok || implied[p.Name] {
			plan.Partitions = append(plan.Partitions, p.Name)
		}
	}

	plan.PruningStats.TotalPartitions = len(known)
	plan.PruningStats.PrunedCount = len(known) - len(plan.Partitions)
	if len(known) > 0 {
		plan.PruningStats.PruningRatio = float64(plan.PruningStats.PrunedCount) / float64(len(known))
	}
	r.stats.RecordFanOut(r.Entity(), len(plan.Partitions), len(known))
	return plan, nil
}

// implied maps values to partition names. The second result is false when
// there are no values or one of them has no partition.
func (r *Router) implied(values []any) (map[string]bool, bool) {
	if len(values) == 0 {
		return nil, false
	}
	names := make(map[string]bool, len(values))
	for _, v := range values {
		name, err := r.Name(v)
		if err != nil {
			log.Printf("partition: %s: targeting every partition: %v", r.Entity(), err)
			return nil, false
		}
		names[name] = true
	}
	return names, true
}

// Accumulate returns every literal compared with the root column
// attribute in where, whatever the operator, without duplicates. LIKE
// patterns are not values of the attribute and are skipped.
func Accumulate(where ast.Expression, attribute string) []any {
	var values []any
	seen := make(map[any]bool)
	for _, p := range ast.ExtractPredicates(where) {
		if p.Type == ast.PredicateLike || p.Column != attribute || (p.Table != "" && p.Table != builder.RootAlias) {
			continue
		}
		for _, v := range p.Literals() {
			if v == nil {
				continue
			}
			if k, ok := comparableKey(v); ok {
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			values = append(values, v)
		}
	}
	return values
}

func comparableKey(v any) (any, bool) {
	switch v.(type) {
	case []byte, map[string]any, []any:
		return nil, false
	}
	return v, true
}
