// Package export archives physical tables into object storage and
// restores them. An archive is one JSON object per row, snappy framed,
// stored under <entity>/<table>.jsonl.sz.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/golang/snappy"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/events"
	"github.com/relmap/relmap/internal/storage"
	"github.com/relmap/relmap/internal/table"
)

// Extension is the suffix of archive objects.
const Extension = ".jsonl.sz"

// DefaultBatchSize is the number of rows read per query while exporting.
const DefaultBatchSize = 1000

// Archive describes one exported table.
type Archive struct {
	Entity     string    `json:"entity"`
	Table      string    `json:"table"`
	Path       string    `json:"path"`
	ETag       string    `json:"etag"`
	Rows       int64     `json:"rows"`
	ExportedAt time.Time `json:"exported_at"`
}

// Exporter moves tables between the database and object storage.
type Exporter struct {
	storage   storage.ObjectStorage
	workDir   string
	batchSize int
	events    *events.Bus
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithWorkDir sets where archives are staged before upload.
func WithWorkDir(dir string) Option {
	return func(e *Exporter) { e.workDir = dir }
}

// WithBatchSize sets the number of rows read per query.
func WithBatchSize(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithEvents publishes PartitionArchived and PartitionRestored events.
func WithEvents(bus *events.Bus) Option {
	return func(e *Exporter) { e.events = bus }
}

// New returns an exporter writing to s.
func New(s storage.ObjectStorage, opts ...Option) *Exporter {
	e := &Exporter{storage: s, workDir: os.TempDir(), batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ObjectPath returns the archive path of a physical table.
func ObjectPath(entity, tableName string) string {
	return path.Join(entity, tableName+Extension)
}

// Export archives every row of t in primary key order.
func (e *Exporter) Export(ctx context.Context, t *table.Table) (*Archive, error) {
	f, err := os.CreateTemp(e.workDir, t.Name()+"-*"+Extension)
	if err != nil {
		return nil, fmt.Errorf("export: create staging file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(f.Name())
	}()

	w := snappy.NewBufferedWriter(f)
	enc := json.NewEncoder(w)
	var rows int64
	for obj, err := range t.Each(ctx, nil, e.batchSize) {
		if err != nil {
			return nil, fmt.Errorf("export: read %s: %w", t.Name(), err)
		}
		if err := enc.Encode(obj.Attributes); err != nil {
			return nil, fmt.Errorf("export: encode row of %s: %w", t.Name(), err)
		}
		rows++
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("export: flush %s: %w", t.Name(), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("export: rewind %s: %w", t.Name(), err)
	}

	archive := &Archive{
		Entity:     t.Entity(),
		Table:      t.Name(),
		Path:       ObjectPath(t.Entity(), t.Name()),
		Rows:       rows,
		ExportedAt: time.Now().UTC(),
	}
	archive.ETag, err = e.storage.Put(ctx, archive.Path, f)
	if err != nil {
		return nil, err
	}
	log.Printf("export: archived %s (%d rows) to %s", t.Name(), rows, archive.Path)
	e.events.Publish(events.Event{
		Kind: events.PartitionArchived, Entity: t.Entity(), Partition: t.Name(),
		Key: archive.Path, Rows: rows, Time: archive.ExportedAt,
	})
	return archive, nil
}

// Archives lists the archive paths of entity.
func (e *Exporter) Archives(ctx context.Context, entity string) ([]string, error) {
	objects, err := e.storage.ListObjects(ctx, entity+"/")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, o := range objects {
		if strings.HasSuffix(o, Extension) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Restore inserts every row of the archive at objectPath into rel. When
// rel is a partition router the rows land in the partitions their values
// map to. It returns the number of rows inserted.
func (e *Exporter) Restore(ctx context.Context, objectPath string, rel table.Relation) (int64, error) {
	body, err := e.storage.Get(ctx, objectPath)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	dec := json.NewDecoder(bufio.NewReader(snappy.NewReader(body)))
	dec.UseNumber()
	h := rel.Heading()

	var rows int64
	for {
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return rows, relerr.Wrap(relerr.ErrCategoryStorage, relerr.CodeDownloadFailed,
				fmt.Sprintf("corrupt archive %s after %d rows", objectPath, rows), err)
		}
		row, err := table.RowFromJSON(h, raw)
		if err != nil {
			return rows, err
		}
		if _, err := rel.Insert(ctx, row); err != nil {
			return rows, fmt.Errorf("export: restore row %d of %s: %w", rows+1, objectPath, err)
		}
		rows++
	}
	log.Printf("export: restored %d rows from %s into %s", rows, objectPath, rel.Entity())
	e.events.Publish(events.Event{
		Kind: events.PartitionRestored, Entity: rel.Entity(),
		Partition: strings.TrimSuffix(path.Base(objectPath), Extension), Key: objectPath, Rows: rows,
	})
	return rows, nil
}
