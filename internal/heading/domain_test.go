package heading

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomain_EncodeInteger(t *testing.T) {
	for _, v := range []any{33, int32(33), int64(33), uint8(33), float64(33), json.Number("33")} {
		got, err := Integer.Encode(v)
		require.NoError(t, err, "%T", v)
		assert.Equal(t, int64(33), got)
	}
	_, err := Integer.Encode(33.5)
	assert.Error(t, err)
	_, err = Integer.Encode("33")
	assert.Error(t, err)
	for _, v := range []float64{1e19, -1e19, math.Inf(1), 1 << 63} {
		_, err = Integer.Encode(v)
		assert.Error(t, err, "%v", v)
	}
	got, err := Integer.Encode(float64(-(1 << 63)))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), got)
}

func TestDomain_NilIsNull(t *testing.T) {
	for d := range domainNames {
		got, err := d.Encode(nil)
		require.NoError(t, err)
		assert.Nil(t, got)
		got, err = d.Decode(nil)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestDomain_DocumentRoundTrip(t *testing.T) {
	doc := map[string]any{"tags": []any{"a", "b"}, "n": float64(2)}
	enc, err := Document.Encode(doc)
	require.NoError(t, err)
	_, isBytes := enc.([]byte)
	assert.True(t, isBytes)

	dec, err := Document.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, doc, dec)
}

func TestDomain_UUID(t *testing.T) {
	id := uuid.New()
	enc, err := UUID.Encode(id)
	require.NoError(t, err)
	assert.Equal(t, id.String(), enc)

	_, err = UUID.Encode("not-a-uuid")
	assert.Error(t, err)

	dec, err := UUID.Decode([16]byte(id))
	require.NoError(t, err)
	assert.Equal(t, id.String(), dec)
}

func TestDomain_Timestamp(t *testing.T) {
	ts := time.Date(2012, 1, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	enc, err := Timestamp.Encode(ts)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, enc.(time.Time).Location())

	dec, err := Timestamp.Decode("2012-01-01 09:00:00+00:00")
	require.NoError(t, err)
	assert.True(t, ts.Equal(dec.(time.Time)))
}

func TestDomain_Parse(t *testing.T) {
	v, err := Integer.Parse("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = Boolean.Parse("true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Text.Parse("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	_, err = Real.Parse("x")
	assert.Error(t, err)
}

func TestParseDomain(t *testing.T) {
	tests := map[string]Domain{
		"integer": Integer, "INT": Integer, "serial": Serial, "text": Text,
		"string": Text, "json": Document, "uuid": UUID, "timestamp": Timestamp,
	}
	for name, want := range tests {
		got, err := ParseDomain(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseDomain("money")
	assert.Error(t, err)
}

func TestDomain_ForeignDomain(t *testing.T) {
	d, ok := Serial.ForeignDomain()
	assert.True(t, ok)
	assert.Equal(t, Integer, d)

	d, ok = UUID.ForeignDomain()
	assert.True(t, ok)
	assert.Equal(t, Text, d)

	_, ok = Blob.ForeignDomain()
	assert.False(t, ok)
	_, ok = Document.ForeignDomain()
	assert.False(t, ok)
}
