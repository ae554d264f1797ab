package observability

import (
	"sync"
	"testing"
	"time"
)

func TestRecordPredicate_ConcurrentWriters(t *testing.T) {
	qs := NewQueryStats(time.Hour)
	columns := []string{"hit.day", "user.age", "user_addresses.city"}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				for _, c := range columns {
					qs.RecordPredicate(c, "=")
				}
			}
		}()
	}
	wg.Wait()

	top := qs.GetTopPredicates(len(columns))
	if len(top) != len(columns) {
		t.Fatalf("expected %d columns, got %d", len(columns), len(top))
	}
	for _, s := range top {
		if s.Frequency != 400 {
			t.Errorf("%s: expected 400 predicates, got %d", s.Column, s.Frequency)
		}
	}
	// Equal frequencies order by column.
	if top[0].Column != "hit.day" || top[2].Column != "user_addresses.city" {
		t.Errorf("unexpected order: %s, %s, %s", top[0].Column, top[1].Column, top[2].Column)
	}
}

func TestGetTopPredicates(t *testing.T) {
	qs := NewQueryStats(time.Hour)
	record := func(column, op string, n int) {
		for i := 0; i < n; i++ {
			qs.RecordPredicate(column, op)
		}
	}
	record("hit.day", "IN", 6)
	record("hit.day", "BETWEEN", 2)
	record("user.age", ">", 3)
	record("thing.name", "LIKE", 1)

	tests := []struct {
		n    int
		want []string
	}{
		{0, nil},
		{1, []string{"hit.day"}},
		{2, []string{"hit.day", "user.age"}},
		{10, []string{"hit.day", "user.age", "thing.name"}},
	}
	for _, tt := range tests {
		top := qs.GetTopPredicates(tt.n)
		if len(top) != len(tt.want) {
			t.Errorf("top %d: expected %d columns, got %d", tt.n, len(tt.want), len(top))
			continue
		}
		for i, col := range tt.want {
			if top[i].Column != col {
				t.Errorf("top %d: position %d is %s, want %s", tt.n, i, top[i].Column, col)
			}
		}
	}

	day := qs.GetTopPredicates(1)[0]
	if day.Frequency != 8 || day.Operators["IN"] != 6 || day.Operators["BETWEEN"] != 2 {
		t.Errorf("unexpected hit.day stats: %+v", day)
	}

	// Results are copies.
	day.Operators["IN"] = 0
	if qs.GetTopPredicates(1)[0].Operators["IN"] != 6 {
		t.Error("GetTopPredicates exposed internal operator counts")
	}
}

func TestPrune(t *testing.T) {
	window := 50 * time.Millisecond
	qs := NewQueryStats(window)
	qs.RecordPredicate("hit.day", "=")
	qs.RecordFanOut("hit", 1, 3)

	qs.Prune()
	if len(qs.GetTopPredicates(10)) != 1 || len(qs.FanOut()) != 1 {
		t.Fatal("fresh entries were pruned")
	}

	time.Sleep(window + 20*time.Millisecond)
	qs.RecordPredicate("user.age", ">")
	qs.Prune()

	top := qs.GetTopPredicates(10)
	if len(top) != 1 || top[0].Column != "user.age" {
		t.Errorf("expected only user.age to survive, got %+v", top)
	}
	if len(qs.FanOut()) != 0 {
		t.Errorf("expected fan-out to be pruned, got %+v", qs.FanOut())
	}
}

func TestPruneEvery(t *testing.T) {
	qs := NewQueryStats(time.Millisecond)
	qs.RecordPredicate("hit.day", "=")

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		qs.PruneEvery(done, 5*time.Millisecond)
		close(stopped)
	}()

	deadline := time.After(2 * time.Second)
	for len(qs.GetTopPredicates(1)) > 0 {
		select {
		case <-deadline:
			t.Fatal("stats were never pruned")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(done)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("PruneEvery did not stop")
	}
}

func TestRecordFanOut(t *testing.T) {
	qs := NewQueryStats(time.Hour)
	qs.RecordFanOut("hit", 2, 12)
	qs.RecordFanOut("hit", 12, 12)
	qs.RecordFanOut("audit", 1, 1)

	fan := qs.FanOut()
	if len(fan) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(fan))
	}
	if fan[0].Entity != "audit" || fan[1].Entity != "hit" {
		t.Errorf("expected entities sorted, got %s, %s", fan[0].Entity, fan[1].Entity)
	}
	hit := fan[1]
	if hit.Queries != 2 || hit.Targeted != 14 || hit.Pruned != 10 {
		t.Errorf("unexpected hit stats: %+v", hit)
	}
	if r := hit.PruningRatio(); r < 0.41 || r > 0.42 {
		t.Errorf("expected pruning ratio 10/24, got %f", r)
	}
	if r := fan[0].PruningRatio(); r != 0 {
		t.Errorf("expected no pruning for audit, got %f", r)
	}
}

func TestNilQueryStats(t *testing.T) {
	var qs *QueryStats
	qs.RecordPredicate("user.age", ">")
	qs.RecordFanOut("hit", 1, 2)
	qs.PruneEvery(nil, time.Millisecond)
}
