package table

import (
	"encoding/base64"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/pkg/types"
)

// RowFromJSON converts attributes decoded from JSON (with UseNumber) into
// a row of h. Blobs arrive base64 encoded; every other domain encodes
// from the decoded value directly.
func RowFromJSON(h *heading.Heading, raw map[string]any) (types.Row, error) {
	row := make(types.Row, len(raw))
	for name, v := range raw {
		attr, err := h.Attribute(name)
		if err != nil {
			return nil, err
		}
		if s, ok := v.(string); ok && attr.Domain() == heading.Blob {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, relerr.InvalidValue(name, s, err.Error())
			}
			v = b
		}
		row[name] = v
	}
	return row, nil
}
