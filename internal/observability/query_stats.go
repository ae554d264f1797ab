// Package observability tracks which attributes queries restrict on and
// how many partitions each partitioned query fans out to.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats tracks predicate frequency per attribute and partition
// fan-out per entity.
type QueryStats struct {
	mu            sync.RWMutex
	predicateFreq map[string]*ColumnStats
	fanOut        map[string]*FanOutStats
	window        time.Duration
}

// ColumnStats holds statistics for one attribute.
type ColumnStats struct {
	Column    string         `json:"column"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Operators map[string]int `json:"operators"` // operator → count (e.g., "=" → 5, "IN" → 2)
}

// FanOutStats counts the partitions queried for one partitioned entity.
type FanOutStats struct {
	Entity string `json:"entity"`
	// Queries is the number of routed queries.
	Queries int64 `json:"queries"`
	// Targeted is the total number of partitions queried.
	Targeted int64 `json:"targeted"`
	// Pruned is the total number of known partitions skipped.
	Pruned   int64     `json:"pruned"`
	LastSeen time.Time `json:"last_seen"`
}

// PruningRatio returns the share of known partitions skipped, 0.0 to 1.0.
func (f FanOutStats) PruningRatio() float64 {
	total := f.Targeted + f.Pruned
	if total == 0 {
		return 0
	}
	return float64(f.Pruned) / float64(total)
}

// NewQueryStats creates a new query statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		predicateFreq: make(map[string]*ColumnStats),
		fanOut:        make(map[string]*FanOutStats),
		window:        window,
	}
}

// RecordPredicate records a predicate on column ("entity.attribute").
// This method is O(1) and thread-safe.
func (q *QueryStats) RecordPredicate(column, operator string) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	stats, exists := q.predicateFreq[column]
	if !exists {
		stats = &ColumnStats{
			Column:    column,
			Operators: make(map[string]int),
		}
		q.predicateFreq[column] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Operators[operator]++
}

// RecordFanOut records one routed query over entity that queried
// targeted of known partitions.
func (q *QueryStats) RecordFanOut(entity string, targeted, known int) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	stats, exists := q.fanOut[entity]
	if !exists {
		stats = &FanOutStats{Entity: entity}
		q.fanOut[entity] = stats
	}
	stats.Queries++
	stats.Targeted += int64(targeted)
	if known > targeted {
		stats.Pruned += int64(known - targeted)
	}
	stats.LastSeen = time.Now()
}

// GetTopPredicates returns the top N predicates by frequency.
// Returns a copy of the stats sorted by frequency (descending).
func (q *QueryStats) GetTopPredicates(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.predicateFreq) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(q.predicateFreq))
	for _, s := range q.predicateFreq {
		statsCopy := ColumnStats{
			Column:    s.Column,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Operators: make(map[string]int, len(s.Operators)),
		}
		for op, count := range s.Operators {
			statsCopy.Operators[op] = count
		}
		stats = append(stats, statsCopy)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Column < stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// FanOut returns the fan-out statistics per entity, sorted by entity.
func (q *QueryStats) FanOut() []FanOutStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]FanOutStats, 0, len(q.fanOut))
	for _, s := range q.fanOut {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

// Prune removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)

	for col, stats := range q.predicateFreq {
		if stats.LastSeen.Before(threshold) {
			delete(q.predicateFreq, col)
		}
	}
	for entity, stats := range q.fanOut {
		if stats.LastSeen.Before(threshold) {
			delete(q.fanOut, entity)
		}
	}
}

// PruneEvery calls Prune every interval until done is closed.
func (q *QueryStats) PruneEvery(done <-chan struct{}, interval time.Duration) {
	if q == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			q.Prune()
		}
	}
}
