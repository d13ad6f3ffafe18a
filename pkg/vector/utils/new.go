// Package vectorutils builds a vector index from configuration.
package vectorutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/vector"
	"github.com/sightlinelabs/vizbench/pkg/vector/chroma"
	"github.com/sightlinelabs/vizbench/pkg/vector/inmemory"
	"github.com/sightlinelabs/vizbench/pkg/vector/qdrant"
	"github.com/sightlinelabs/vizbench/pkg/vector/sqlitevec"
)

type NewIndexOpts struct {
	Backend    string
	SQLitePath string
	ChromaURL  string
	QdrantHost string
	QdrantPort int
	// SnapshotDir holds in-memory collection snapshots; empty means
	// ephemeral.
	SnapshotDir string
	Logger      *zap.Logger
}

func NewIndex(o *NewIndexOpts) (vector.Index, error) {
	switch o.Backend {
	case "inmemory":
		return inmemory.NewIndex(inmemory.Config{
			Dir: o.SnapshotDir,
		}, o.Logger)
	case "sqlitevec":
		return sqlitevec.NewIndex(sqlitevec.Config{
			DBPath: o.SQLitePath,
		}, o.Logger)
	case "chroma":
		return chroma.NewIndex(chroma.Config{
			URL: o.ChromaURL,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewIndex(qdrant.Config{
			Host: o.QdrantHost,
			Port: o.QdrantPort,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported retrieval backend: %s", o.Backend)
	}
}
