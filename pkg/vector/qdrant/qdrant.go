// Package qdrant provides a Qdrant-backed vector index over its gRPC client.
// Collections are created with cosine distance. Qdrant point IDs must be
// numeric or UUIDs, so record IDs are mapped to deterministic UUIDs and the
// original ID is carried in the point payload.
package qdrant

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// payloadIDKey is the payload field holding the original record ID.
const payloadIDKey = "record_id"

// idNamespace seeds the deterministic record-ID -> UUID mapping.
var idNamespace = uuid.MustParse("9a7312a6-47c9-4c5c-8df1-0d73f1b0a3e2")

// Index implements vector.Index using a Qdrant server.
type Index struct {
	client *qdrant.Client
	logger *zap.Logger
}

// Config holds configuration for the Qdrant index.
type Config struct {
	// Host is the Qdrant server host (e.g., "localhost").
	Host string

	// Port is the Qdrant gRPC port. Defaults to 6334 when zero.
	Port int

	// APIKey authenticates against managed Qdrant deployments. Optional.
	APIKey string
}

// NewIndex connects to the Qdrant server.
func NewIndex(c Config, logger *zap.Logger) (*Index, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}

	port := c.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   port,
		APIKey: c.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	logger.Info("connected to qdrant",
		zap.String("host", c.Host),
		zap.Int("port", port),
	)

	return &Index{client: client, logger: logger}, nil
}

// CreateOrOpenCollection opens the named collection, creating it with cosine
// distance when absent. Reopening verifies the stored vector size.
func (ix *Index) CreateOrOpenCollection(ctx context.Context, name string, dims int) (vector.Collection, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dimensionality must be positive, got %d", vector.ErrDimensionMismatch, dims)
	}

	exists, err := ix.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking collection %q: %w", name, err)
	}

	if exists {
		info, err := ix.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("inspecting collection %q: %w", name, err)
		}

		storedSize := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if storedSize != 0 && int(storedSize) != dims {
			return nil, fmt.Errorf("%w: collection %q has dims %d, requested %d",
				vector.ErrDimensionMismatch, name, storedSize, dims)
		}
	} else {
		err := ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("creating collection %q: %w", name, err)
		}

		ix.logger.Info("created qdrant collection",
			zap.String("name", name),
			zap.Int("dims", dims),
		)
	}

	return &Collection{
		client: ix.client,
		name:   name,
		dims:   dims,
		logger: ix.logger,
	}, nil
}

// Close terminates the client connection.
func (ix *Index) Close() error {
	return ix.client.Close()
}

// Collection implements vector.Collection over one Qdrant collection.
type Collection struct {
	client *qdrant.Client
	name   string
	dims   int
	logger *zap.Logger
}

func (c *Collection) Name() string { return c.name }
func (c *Collection) Dims() int    { return c.dims }

// Count returns the number of stored points.
func (c *Collection) Count(ctx context.Context) (int, error) {
	n, err := c.client.Count(ctx, &qdrant.CountPoints{CollectionName: c.name})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

// Add stores one record. Qdrant upserts silently, so point existence is
// checked first to honor the duplicate-rejection contract.
func (c *Collection) Add(ctx context.Context, rec vector.Record) error {
	if len(rec.Vector) != c.dims {
		return fmt.Errorf("%w: record %q has %d dims, collection %q expects %d",
			vector.ErrDimensionMismatch, rec.ID, len(rec.Vector), c.name, c.dims)
	}

	pointID := pointIDFor(rec.ID)

	existing, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.name,
		Ids:            []*qdrant.PointId{qdrant.NewID(pointID)},
	})
	if err != nil {
		return fmt.Errorf("checking for existing record %q: %w", rec.ID, err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %q in collection %q", vector.ErrDuplicateID, rec.ID, c.name)
	}

	payload := make(map[string]any, len(rec.Metadata)+1)
	for k, v := range rec.Metadata {
		payload[k] = v
	}
	payload[payloadIDKey] = rec.ID

	_, err = c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(pointID),
				Vectors: qdrant.NewVectors(toFloat32(rec.Vector)...),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upserting record %q: %w", rec.ID, err)
	}

	return nil
}

// Search runs a KNN query. Qdrant scores cosine collections by similarity
// (higher is closer), so distance is recovered as 1 - score.
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

	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(toFloat32(query)...),
		Limit:          qdrant.PtrOf(uint64(k + len(o.ExcludeIDs))),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	var results []vector.Result
	for _, p := range points {
		meta := payloadToMap(p.GetPayload())

		recordID, _ := meta[payloadIDKey].(string)
		delete(meta, payloadIDKey)

		if _, skip := o.ExcludeIDs[recordID]; skip {
			continue
		}

		results = append(results, vector.Result{
			ID:       recordID,
			Distance: 1 - float64(p.GetScore()),
			Metadata: meta,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}

	c.logger.Debug("queried qdrant",
		zap.String("collection", c.name),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// Snapshot scrolls all points with payloads and vectors.
func (c *Collection) Snapshot(ctx context.Context) ([]vector.Record, error) {
	n, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.name,
		Limit:          qdrant.PtrOf(uint32(n)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling points: %w", err)
	}

	records := make([]vector.Record, 0, len(points))
	for _, p := range points {
		meta := payloadToMap(p.GetPayload())
		recordID, _ := meta[payloadIDKey].(string)
		delete(meta, payloadIDKey)

		var vec []float64
		if data := p.GetVectors().GetVector().GetData(); len(data) > 0 {
			vec = make([]float64, len(data))
			for i, f := range data {
				vec[i] = float64(f)
			}
		}

		records = append(records, vector.Record{
			ID:       recordID,
			Vector:   vec,
			Metadata: meta,
		})
	}

	return records, nil
}

// pointIDFor maps an arbitrary record ID to a stable UUID accepted by Qdrant.
func pointIDFor(recordID string) string {
	return uuid.NewSHA1(idNamespace, []byte(recordID)).String()
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	meta := make(map[string]any, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			meta[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			meta[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			meta[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			meta[k] = kind.BoolValue
		}
	}
	return meta
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func isZero(v []float64) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
