// Package sqlitevec provides a SQLite-backed vector index using sqlite-vec.
// Each collection maps to a record table plus a vec0 virtual table configured
// for cosine distance, so collections persist across process restarts.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// collectionNameRe restricts collection names to identifier-safe characters
// because they become SQLite table names.
var collectionNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Index implements vector.Index backed by SQLite with sqlite-vec.
type Index struct {
	db     *sql.DB
	logger *zap.Logger

	mu          sync.Mutex
	collections map[string]*Collection
}

// Config holds configuration for the SQLite vec index.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// NewIndex opens (or creates) the SQLite database and verifies the
// sqlite-vec extension is available.
func NewIndex(c Config, logger *zap.Logger) (*Index, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// Registry of known collections and their fixed dimensionality.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dims INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collections table: %w", err)
	}

	logger.Info("sqlite-vec index initialized",
		zap.String("db_path", c.DBPath),
		zap.String("vec_version", vecVersion),
	)

	return &Index{
		db:          db,
		logger:      logger,
		collections: make(map[string]*Collection),
	}, nil
}

// CreateOrOpenCollection opens the named collection. Reopening an existing
// collection leaves its contents untouched and fails when the requested
// dimensionality disagrees with the stored one.
func (ix *Index) CreateOrOpenCollection(ctx context.Context, name string, dims int) (vector.Collection, error) {
	if !collectionNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid collection name %q", name)
	}
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

	var storedDims int
	err := ix.db.QueryRowContext(ctx,
		`SELECT dims FROM collections WHERE name = ?`, name,
	).Scan(&storedDims)

	switch {
	case err == nil:
		if storedDims != dims {
			return nil, fmt.Errorf("%w: collection %q has dims %d, requested %d",
				vector.ErrDimensionMismatch, name, storedDims, dims)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := ix.db.ExecContext(ctx,
			`INSERT INTO collections(name, dims) VALUES (?, ?)`, name, dims,
		); err != nil {
			return nil, fmt.Errorf("registering collection %q: %w", name, err)
		}

		recordsDDL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s_records (
				rowid INTEGER PRIMARY KEY AUTOINCREMENT,
				record_id TEXT NOT NULL UNIQUE,
				metadata TEXT NOT NULL DEFAULT '{}'
			)
		`, name)
		if _, err := ix.db.ExecContext(ctx, recordsDDL); err != nil {
			return nil, fmt.Errorf("creating records table for %q: %w", name, err)
		}

		vecDDL := fmt.Sprintf(
			`CREATE VIRTUAL TABLE IF NOT EXISTS %s_vec USING vec0(embedding float[%d] distance_metric=cosine)`,
			name, dims,
		)
		if _, err := ix.db.ExecContext(ctx, vecDDL); err != nil {
			return nil, fmt.Errorf("creating vec0 table for %q: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("looking up collection %q: %w", name, err)
	}

	c := &Collection{
		db:     ix.db,
		name:   name,
		dims:   dims,
		logger: ix.logger,
	}
	ix.collections[name] = c

	ix.logger.Debug("opened collection",
		zap.String("name", name),
		zap.Int("dims", dims),
	)

	return c, nil
}

// Close releases resources held by the index.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Collection implements vector.Collection over a pair of SQLite tables.
type Collection struct {
	db     *sql.DB
	name   string
	dims   int
	logger *zap.Logger
}

func (c *Collection) Name() string { return c.name }
func (c *Collection) Dims() int    { return c.dims }

// Count returns the number of stored records.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s_records`, c.name)
	if err := c.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Add stores one record. Duplicate IDs and mismatched dimensions are
// rejected; the insert commits before Add returns.
func (c *Collection) Add(ctx context.Context, rec vector.Record) error {
	if len(rec.Vector) != c.dims {
		return fmt.Errorf("%w: record %q has %d dims, collection %q expects %d",
			vector.ErrDimensionMismatch, rec.ID, len(rec.Vector), c.name, c.dims)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	lookup := fmt.Sprintf(`SELECT rowid FROM %s_records WHERE record_id = ?`, c.name)
	err = tx.QueryRowContext(ctx, lookup, rec.ID).Scan(&existing)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %q in collection %q", vector.ErrDuplicateID, rec.ID, c.name)
	case errors.Is(err, sql.ErrNoRows):
		// New record, proceed.
	default:
		return fmt.Errorf("checking for existing record %q: %w", rec.ID, err)
	}

	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata for record %q: %w", rec.ID, err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s_records(record_id, metadata) VALUES (?, ?)`, c.name)
	result, err := tx.ExecContext(ctx, insert, rec.ID, string(metaJSON))
	if err != nil {
		return fmt.Errorf("inserting record %q: %w", rec.ID, err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting rowid for record %q: %w", rec.ID, err)
	}

	embBlob := serializeFloat32(rec.Vector)
	insertVec := fmt.Sprintf(`INSERT INTO %s_vec(rowid, embedding) VALUES (?, ?)`, c.name)
	if _, err := tx.ExecContext(ctx, insertVec, rowID, embBlob); err != nil {
		return fmt.Errorf("inserting embedding for record %q: %w", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Search runs a KNN query via vec0 MATCH. vec0's cosine distance is already
// 1 - cosine_similarity. Excluded IDs are filtered after the KNN query, which
// over-fetches by the exclusion count so k is not shrunk.
func (c *Collection) Search(ctx context.Context, query []float64, k int, opts ...vector.SearchOption) ([]vector.Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != c.dims {
		return nil, fmt.Errorf("%w: query has %d dims, collection %q expects %d",
			vector.ErrDimensionMismatch, len(query), c.name, c.dims)
	}
	if isZero(query) {
		return nil, fmt.Errorf("%w: query", vector.ErrZeroVector)
	}

	n, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %q", vector.ErrEmptyCollection, c.name)
	}

	o := vector.ApplyOptions(opts)
	fetch := k + len(o.ExcludeIDs)

	stmt := fmt.Sprintf(`
		SELECT
			r.record_id,
			r.metadata,
			v.distance
		FROM %s_vec v
		INNER JOIN %s_records r ON r.rowid = v.rowid
		WHERE v.embedding MATCH ?
			AND v.k = ?
		ORDER BY v.distance, r.record_id
	`, c.name, c.name)

	rows, err := c.db.QueryContext(ctx, stmt, serializeFloat32(query), fetch)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.Result
	for rows.Next() {
		var recordID, metaJSON string
		var distance float64
		if err := rows.Scan(&recordID, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		if _, skip := o.ExcludeIDs[recordID]; skip {
			continue
		}

		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("parsing metadata for record %q: %w", recordID, err)
		}

		results = append(results, vector.Result{
			ID:       recordID,
			Distance: distance,
			Metadata: meta,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	// vec0 orders by distance alone; re-sort so equal distances tie-break
	// deterministically by id.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}

	c.logger.Debug("queried sqlite-vec",
		zap.String("collection", c.name),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Snapshot returns every record in insertion order, embeddings included.
func (c *Collection) Snapshot(ctx context.Context) ([]vector.Record, error) {
	stmt := fmt.Sprintf(`
		SELECT r.record_id, r.metadata, v.embedding
		FROM %s_records r
		INNER JOIN %s_vec v ON v.rowid = r.rowid
		ORDER BY r.rowid
	`, c.name, c.name)

	rows, err := c.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []vector.Record
	for rows.Next() {
		var recordID, metaJSON string
		var embBlob []byte
		if err := rows.Scan(&recordID, &metaJSON, &embBlob); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}

		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("parsing metadata for record %q: %w", recordID, err)
		}

		emb, err := deserializeFloat32(embBlob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for record %q: %w", recordID, err)
		}

		records = append(records, vector.Record{
			ID:       recordID,
			Vector:   emb,
			Metadata: meta,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

// serializeFloat32 converts a float64 slice to the little-endian float32
// BLOB format sqlite-vec expects.
func serializeFloat32(v []float64) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

// deserializeFloat32 converts a little-endian float32 BLOB back to float64s.
func deserializeFloat32(b []byte) ([]float64, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float64, len(b)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
	}
	return v, nil
}

func isZero(v []float64) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
