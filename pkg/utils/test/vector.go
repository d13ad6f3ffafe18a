package testutils

import (
	"context"
	"sort"

	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// MockCollection is a test vector collection with scriptable failures.
type MockCollection struct {
	CollName string
	CollDims int
	Records  []vector.Record

	// SearchErr, when set, is returned by every Search call.
	SearchErr error
}

func NewMockCollection(name string, dims int) *MockCollection {
	return &MockCollection{CollName: name, CollDims: dims}
}

func (m *MockCollection) Name() string { return m.CollName }
func (m *MockCollection) Dims() int    { return m.CollDims }

func (m *MockCollection) Count(_ context.Context) (int, error) {
	return len(m.Records), nil
}

func (m *MockCollection) Add(_ context.Context, rec vector.Record) error {
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MockCollection) Search(_ context.Context, query []float64, k int, opts ...vector.SearchOption) ([]vector.Result, error) {
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}

	o := vector.ApplyOptions(opts)

	var results []vector.Result
	for _, rec := range m.Records {
		if _, skip := o.ExcludeIDs[rec.ID]; skip {
			continue
		}

		dist, err := vector.CosineDistance(query, rec.Vector)
		if err != nil {
			return nil, err
		}

		results = append(results, vector.Result{
			ID:       rec.ID,
			Distance: dist,
			Metadata: rec.Metadata,
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

	return results, nil
}

func (m *MockCollection) Snapshot(_ context.Context) ([]vector.Record, error) {
	out := make([]vector.Record, len(m.Records))
	copy(out, m.Records)
	return out, nil
}

// MockIndex hands out preregistered collections.
type MockIndex struct {
	Collections map[string]*MockCollection
}

func NewMockIndex() *MockIndex {
	return &MockIndex{Collections: make(map[string]*MockCollection)}
}

func (m *MockIndex) CreateOrOpenCollection(_ context.Context, name string, dims int) (vector.Collection, error) {
	if coll, ok := m.Collections[name]; ok {
		return coll, nil
	}

	coll := NewMockCollection(name, dims)
	m.Collections[name] = coll
	return coll, nil
}

func (m *MockIndex) Close() error {
	return nil
}
