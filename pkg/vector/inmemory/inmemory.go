// Package inmemory provides a brute-force vector index with exact float64
// cosine distances. Collections are held in memory and optionally persisted
// as JSON snapshots, one file per collection, written atomically.
package inmemory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// Index implements vector.Index with in-memory collections.
type Index struct {
	dir    string
	logger *zap.Logger

	mu          sync.Mutex
	collections map[string]*Collection
}

// Config holds configuration for the in-memory index.
type Config struct {
	// Dir is the directory for collection snapshot files. When empty the
	// index is ephemeral and nothing is persisted.
	Dir string
}

// NewIndex creates an in-memory index. When cfg.Dir is set, existing
// collection snapshots under it are reopened lazily on first access.
func NewIndex(cfg Config, logger *zap.Logger) (*Index, error) {
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating snapshot dir: %w", err)
		}
	}

	return &Index{
		dir:         cfg.Dir,
		logger:      logger,
		collections: make(map[string]*Collection),
	}, nil
}

// snapshotFile is the on-disk JSON layout of a collection.
type snapshotFile struct {
	Name    string           `json:"name"`
	Dims    int              `json:"dims"`
	Records []snapshotRecord `json:"records"`
}

type snapshotRecord struct {
	ID       string         `json:"id"`
	Vector   []float64      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateOrOpenCollection opens the named collection, loading its snapshot if
// one exists. Reopening never re-inserts records.
func (ix *Index) CreateOrOpenCollection(_ context.Context, name string, dims int) (vector.Collection, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dimensionality must be positive, got %d", vector.ErrDimensionMismatch, dims)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if c, ok := ix.collections[name]; ok {
		if c.dims != dims {
			return nil, fmt.Errorf("%w: collection %q has dims %d, requested %d",
				vector.ErrDimensionMismatch, name, c.dims, dims)
		}
		return c, nil
	}

	c := &Collection{
		name:   name,
		dims:   dims,
		path:   ix.snapshotPath(name),
		byID:   make(map[string]int),
		logger: ix.logger,
	}

	if c.path != "" {
		if err := c.load(); err != nil {
			return nil, err
		}
	}

	ix.collections[name] = c

	ix.logger.Debug("opened collection",
		zap.String("name", name),
		zap.Int("dims", dims),
		zap.Int("records", len(c.records)),
	)

	return c, nil
}

// Close releases the index. In-memory state is dropped; snapshots remain.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.collections = make(map[string]*Collection)
	return nil
}

func (ix *Index) snapshotPath(name string) string {
	if ix.dir == "" {
		return ""
	}
	return filepath.Join(ix.dir, name+".json")
}

// Collection implements vector.Collection with exact brute-force search.
type Collection struct {
	name   string
	dims   int
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	records []vector.Record
	byID    map[string]int
}

func (c *Collection) Name() string { return c.name }
func (c *Collection) Dims() int    { return c.dims }

// Count returns the number of stored records.
func (c *Collection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records), nil
}

// Add stores a record and persists the snapshot before returning.
func (c *Collection) Add(_ context.Context, rec vector.Record) error {
	if len(rec.Vector) != c.dims {
		return fmt.Errorf("%w: record %q has %d dims, collection %q expects %d",
			vector.ErrDimensionMismatch, rec.ID, len(rec.Vector), c.name, c.dims)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[rec.ID]; exists {
		return fmt.Errorf("%w: %q in collection %q", vector.ErrDuplicateID, rec.ID, c.name)
	}

	c.byID[rec.ID] = len(c.records)
	c.records = append(c.records, rec)

	return c.save()
}

// Search returns the k nearest records by cosine distance, ascending, ties
// broken by ascending ID.
func (c *Collection) Search(_ context.Context, query []float64, k int, opts ...vector.SearchOption) ([]vector.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != c.dims {
		return nil, fmt.Errorf("%w: query has %d dims, collection %q expects %d",
			vector.ErrDimensionMismatch, len(query), c.name, c.dims)
	}

	o := vector.ApplyOptions(opts)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.records) == 0 {
		return nil, fmt.Errorf("%w: %q", vector.ErrEmptyCollection, c.name)
	}

	results := make([]vector.Result, 0, len(c.records))
	for _, rec := range c.records {
		if _, skip := o.ExcludeIDs[rec.ID]; skip {
			continue
		}

		dist, err := vector.CosineDistance(query, rec.Vector)
		if err != nil {
			if errors.Is(err, vector.ErrZeroVector) {
				return nil, fmt.Errorf("%w: record %q", vector.ErrZeroVector, rec.ID)
			}
			return nil, err
		}

		results = append(results, vector.Result{
			ID:       rec.ID,
			Distance: dist,
			Metadata: rec.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}

	return results, nil
}

// Snapshot returns all records in insertion order.
func (c *Collection) Snapshot(_ context.Context) ([]vector.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]vector.Record, len(c.records))
	copy(out, c.records)
	return out, nil
}

// load reads the snapshot file if present. Missing files mean a fresh
// collection.
func (c *Collection) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading snapshot %s: %w", c.path, err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing snapshot %s: %w", c.path, err)
	}

	if snap.Dims != c.dims {
		return fmt.Errorf("%w: snapshot %q has dims %d, requested %d",
			vector.ErrDimensionMismatch, c.name, snap.Dims, c.dims)
	}

	c.records = make([]vector.Record, 0, len(snap.Records))
	for i, r := range snap.Records {
		c.records = append(c.records, vector.Record{
			ID:       r.ID,
			Vector:   r.Vector,
			Metadata: r.Metadata,
		})
		c.byID[r.ID] = i
	}

	return nil
}

// save writes the snapshot to a temp file and renames it into place so a
// crash mid-write never leaves a truncated snapshot. Caller holds c.mu.
func (c *Collection) save() error {
	if c.path == "" {
		return nil
	}

	snap := snapshotFile{
		Name:    c.name,
		Dims:    c.dims,
		Records: make([]snapshotRecord, 0, len(c.records)),
	}
	for _, r := range c.records {
		snap.Records = append(snap.Records, snapshotRecord{
			ID:       r.ID,
			Vector:   r.Vector,
			Metadata: r.Metadata,
		})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	return nil
}
