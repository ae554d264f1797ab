package heading

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// Domain is the value domain of an attribute.
type Domain int

const (
	// Integer holds 64-bit signed integers.
	Integer Domain = iota + 1
	// Serial is an auto-increment surrogate assigned by the database.
	Serial
	// UUID is a surrogate generated on insert when absent.
	UUID
	// Text holds strings.
	Text
	// Real holds 64-bit floats.
	Real
	// Boolean holds true/false.
	Boolean
	// Timestamp holds instants, stored in UTC.
	Timestamp
	// Blob holds raw bytes.
	Blob
	// Document holds an arbitrary JSON value stored snappy-compressed.
	Document
)

var domainNames = map[Domain]string{
	Integer:   "integer",
	Serial:    "serial",
	UUID:      "uuid",
	Text:      "text",
	Real:      "real",
	Boolean:   "boolean",
	Timestamp: "timestamp",
	Blob:      "blob",
	Document:  "document",
}

// String returns the lowercase domain name.
func (d Domain) String() string {
	if name, ok := domainNames[d]; ok {
		return name
	}
	return fmt.Sprintf("domain(%d)", int(d))
}

// ParseDomain maps a domain name (as written in schema files) to a Domain.
func ParseDomain(name string) (Domain, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "int", "bigint":
		return Integer, nil
	case "string", "varchar":
		return Text, nil
	case "float", "double":
		return Real, nil
	case "bool":
		return Boolean, nil
	case "json":
		return Document, nil
	}
	for d, dn := range domainNames {
		if dn == n {
			return d, nil
		}
	}
	return 0, fmt.Errorf("heading: unknown domain %q", name)
}

// Surrogate reports whether values of this domain are generated rather
// than supplied. Foreign attributes derived from a surrogate are prefixed
// with the parent heading name.
func (d Domain) Surrogate() bool {
	return d == Serial || d == UUID
}

// Numeric reports whether the domain supports arithmetic.
func (d Domain) Numeric() bool {
	return d == Integer || d == Serial || d == Real
}

// ForeignDomain returns the domain a referencing attribute takes. Blobs
// and documents cannot be referenced.
func (d Domain) ForeignDomain() (Domain, bool) {
	switch d {
	case Serial:
		return Integer, true
	case UUID:
		return Text, true
	case Integer, Text, Real, Boolean, Timestamp:
		return d, true
	default:
		return 0, false
	}
}

// Encode converts a Go value into the value handed to the driver. nil
// encodes to NULL for every domain.
func (d Domain) Encode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch d {
	case Integer, Serial:
		return toInt64(v)
	case Real:
		return toFloat64(v)
	case Text:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case fmt.Stringer:
			return x.String(), nil
		}
	case UUID:
		switch x := v.(type) {
		case string:
			id, err := uuid.Parse(x)
			if err != nil {
				return nil, err
			}
			return id.String(), nil
		case uuid.UUID:
			return x.String(), nil
		case [16]byte:
			return uuid.UUID(x).String(), nil
		}
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		}
	case Timestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			ts, err := time.Parse(time.RFC3339Nano, x)
			if err != nil {
				return nil, err
			}
			return ts.UTC(), nil
		}
	case Blob:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	case Document:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return snappy.Encode(nil, raw), nil
	}
	return nil, fmt.Errorf("not a %s value", d)
}

// Decode converts a driver value back into the Go value of this domain.
func (d Domain) Decode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch d {
	case Integer, Serial:
		return toInt64(v)
	case Real:
		return toFloat64(v)
	case Text:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case UUID:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			if len(x) == 16 {
				return uuid.UUID(x).String(), nil
			}
			return string(x), nil
		case [16]byte:
			return uuid.UUID(x).String(), nil
		}
	case Boolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		}
	case Timestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			return parseStoredTime(x)
		case []byte:
			return parseStoredTime(string(x))
		}
	case Blob:
		if x, ok := v.([]byte); ok {
			out := make([]byte, len(x))
			copy(out, x)
			return out, nil
		}
	case Document:
		x, ok := v.([]byte)
		if !ok {
			break
		}
		raw, err := snappy.Decode(nil, x)
		if err != nil {
			return nil, fmt.Errorf("decompress document: %w", err)
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot decode %T as %s", v, d)
}

// Parse converts textual input (CLI flags, query strings) into a value of
// this domain.
func (d Domain) Parse(s string) (any, error) {
	switch d {
	case Integer, Serial:
		return strconv.ParseInt(s, 10, 64)
	case Real:
		return strconv.ParseFloat(s, 64)
	case Boolean:
		return strconv.ParseBool(s)
	case Document:
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	case Blob:
		return []byte(s), nil
	default:
		return d.Encode(s)
	}
}

var storedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range storedTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not integral", x)
		}
		if x < -(1<<63) || x >= 1<<63 {
			return 0, fmt.Errorf("%v overflows int64", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	}
	return 0, fmt.Errorf("not an integer value")
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("not a real value")
	}
	return float64(n), nil
}
