package partition

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/relmap/relmap/pkg/types"
)

// Function maps a value of the partition attribute to the suffix of the
// physical table holding it. Functions must be pure and total over the
// attribute's domain.
type Function func(value any) (string, error)

// Monthly routes YYYYMMDD values and timestamps to YYYYMM partitions.
func Monthly(value any) (string, error) {
	day, err := Daily(value)
	if err != nil {
		return "", err
	}
	return day[:6], nil
}

// Daily routes YYYYMMDD values and timestamps to YYYYMMDD partitions.
// Dashes in textual days are ignored.
func Daily(value any) (string, error) {
	var s string
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format("20060102"), nil
	case string:
		s = strings.ReplaceAll(v, "-", "")
	case int64:
		s = strconv.FormatInt(v, 10)
	case int:
		s = strconv.Itoa(v)
	default:
		return "", fmt.Errorf("partition: cannot route %T by day", value)
	}
	if _, err := time.Parse("20060102", s); err != nil {
		return "", fmt.Errorf("partition: %q is not a YYYYMMDD day", s)
	}
	return s, nil
}

// Identity routes each distinct value to its own partition. Characters
// that cannot appear in a table name are replaced by underscores.
func Identity(value any) (string, error) {
	if value == nil {
		return "", fmt.Errorf("partition: cannot route NULL")
	}
	s := strings.ToLower(fmt.Sprintf("%v", value))
	if s == "" {
		return "", fmt.Errorf("partition: cannot route an empty value")
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s), nil
}

// Hash routes values to one of modulo buckets by the murmur3 hash of their
// text, producing suffixes h0 to h<modulo-1>.
func Hash(modulo int) Function {
	return func(value any) (string, error) {
		if value == nil {
			return "", fmt.Errorf("partition: cannot route NULL")
		}
		sum := murmur3.Sum32([]byte(fmt.Sprintf("%v", value)))
		return fmt.Sprintf("h%d", sum%uint32(modulo)), nil
	}
}

// FunctionFor returns the built-in function a partition config names.
func FunctionFor(cfg types.PartitionConfig) (Function, error) {
	switch cfg.Strategy {
	case types.StrategyMonthly:
		return Monthly, nil
	case types.StrategyDaily:
		return Daily, nil
	case types.StrategyIdentity:
		return Identity, nil
	case types.StrategyHash:
		if cfg.HashModulo <= 0 {
			return nil, fmt.Errorf("partition: hash modulo must be > 0, got %d", cfg.HashModulo)
		}
		return Hash(cfg.HashModulo), nil
	default:
		return nil, fmt.Errorf("partition: unsupported strategy %q", cfg.Strategy)
	}
}
