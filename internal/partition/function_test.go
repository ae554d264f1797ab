package partition

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/relmap/relmap/pkg/types"
)

func TestMonthly(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"20120115", "201201"},
		{"2012-02-29", "201202"},
		{int64(20121231), "201212"},
		{20130101, "201301"},
		{time.Date(2026, 2, 6, 12, 30, 0, 0, time.UTC), "202602"},
	}
	for _, tc := range cases {
		got, err := Monthly(tc.in)
		if err != nil {
			t.Fatalf("Monthly(%v): unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("Monthly(%v): expected %s, got %s", tc.in, tc.want, got)
		}
	}
}

func TestDaily(t *testing.T) {
	ts := time.Date(2026, 2, 6, 23, 30, 0, 0, time.FixedZone("X", -3*3600))
	got, err := Daily(ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Timestamps are routed by their UTC day.
	if got != "20260207" {
		t.Errorf("expected 20260207, got %s", got)
	}

	for _, bad := range []any{"2012", "20121301", "hello", 3.5, nil} {
		if _, err := Daily(bad); err == nil {
			t.Errorf("Daily(%v): expected error", bad)
		}
	}
}

func TestIdentity(t *testing.T) {
	got, err := Identity("Acme-Corp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme_corp" {
		t.Errorf("expected acme_corp, got %s", got)
	}

	if got, _ := Identity(int64(42)); got != "42" {
		t.Errorf("expected 42, got %s", got)
	}

	if _, err := Identity(""); err == nil {
		t.Error("expected error for empty value")
	}
	if _, err := Identity(nil); err == nil {
		t.Error("expected error for NULL")
	}
}

func TestHash(t *testing.T) {
	fn := Hash(8)
	a, err := fn("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := fn("user-1")
	if a != b {
		t.Errorf("hash is not deterministic: %s != %s", a, b)
	}
	if _, err := fn(nil); err == nil {
		t.Error("expected error for NULL")
	}
}

func TestFunctionFor(t *testing.T) {
	for _, s := range []types.PartitionStrategy{types.StrategyMonthly, types.StrategyDaily, types.StrategyIdentity} {
		if _, err := FunctionFor(types.PartitionConfig{Strategy: s}); err != nil {
			t.Errorf("%s: unexpected error: %v", s, err)
		}
	}
	if _, err := FunctionFor(types.PartitionConfig{Strategy: types.StrategyHash, HashModulo: 4}); err != nil {
		t.Errorf("hash: unexpected error: %v", err)
	}
	if _, err := FunctionFor(types.PartitionConfig{Strategy: types.StrategyHash}); err == nil {
		t.Error("expected error for hash without modulo")
	}
	if _, err := FunctionFor(types.PartitionConfig{Strategy: types.StrategyCustom}); err == nil {
		t.Error("expected error for custom strategy")
	}
	if _, err := FunctionFor(types.PartitionConfig{Strategy: "weekly"}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

// TestProperty_HashBuckets checks that every value lands in one of the
// modulo buckets.
func TestProperty_HashBuckets(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("hash suffix is within modulo", prop.ForAll(
		func(value string, modulo int) bool {
			got, err := Hash(modulo)(value)
			if err != nil {
				return false
			}
			var bucket int
			if _, err := fmt.Sscanf(got, "h%d", &bucket); err != nil {
				return false
			}
			return bucket >= 0 && bucket < modulo
		},
		gen.AnyString(),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}

// TestProperty_MonthlyPrefixOfDaily checks that the monthly partition of a
// day is the prefix of its daily partition.
func TestProperty_MonthlyPrefixOfDaily(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("monthly is a prefix of daily", prop.ForAll(
		func(days int) bool {
			day := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
			d, err := Daily(day)
			if err != nil {
				return false
			}
			m, err := Monthly(day.Format("2006-01-02"))
			return err == nil && d[:6] == m
		},
		gen.IntRange(0, 20000),
	))

	properties.TestingRun(t)
}
