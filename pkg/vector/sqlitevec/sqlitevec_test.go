package sqlitevec_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/vector"
	"github.com/sightlinelabs/vizbench/pkg/vector/sqlitevec"
)

var _ = Describe("Index", func() {
	var (
		ix  *sqlitevec.Index
		ctx context.Context
	)

	BeforeEach(func() {
		var err error
		ix, err = sqlitevec.NewIndex(sqlitevec.Config{DBPath: ":memory:"}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(ix.Close()).To(Succeed())
	})

	Describe("NewIndex", func() {
		It("requires a database path", func() {
			_, err := sqlitevec.NewIndex(sqlitevec.Config{}, zap.NewNop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("implements vector.Index", func() {
			var _ vector.Index = (*sqlitevec.Index)(nil)
		})
	})

	Describe("CreateOrOpenCollection", func() {
		It("rejects invalid collection names", func() {
			_, err := ix.CreateOrOpenCollection(ctx, "bad name; drop", 4)
			Expect(err).To(HaveOccurred())
		})

		It("is idempotent for the same name and dims", func() {
			a, err := ix.CreateOrOpenCollection(ctx, "train", 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0, 0, 0}})).To(Succeed())

			b, err := ix.CreateOrOpenCollection(ctx, "train", 4)
			Expect(err).NotTo(HaveOccurred())

			n, err := b.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("rejects reopening with a different dimensionality", func() {
			_, err := ix.CreateOrOpenCollection(ctx, "train", 4)
			Expect(err).NotTo(HaveOccurred())

			_, err = ix.CreateOrOpenCollection(ctx, "train", 8)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})
	})

	Describe("Add", func() {
		var coll vector.Collection

		BeforeEach(func() {
			var err error
			coll, err = ix.CreateOrOpenCollection(ctx, "train", 4)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects duplicate record ids", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0, 0, 0}})).To(Succeed())
			err := coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{0, 1, 0, 0}})
			Expect(err).To(MatchError(vector.ErrDuplicateID))
		})

		It("rejects mismatched dimensions", func() {
			err := coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0}})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("stores metadata round-trip", func() {
			Expect(coll.Add(ctx, vector.Record{
				ID:       "r1",
				Vector:   []float64{1, 0, 0, 0},
				Metadata: map[string]any{"question": "what is this?", "image_url": "http://x/img.jpg"},
			})).To(Succeed())

			records, err := coll.Snapshot(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Metadata).To(HaveKeyWithValue("question", "what is this?"))
		})
	})

	Describe("Search", func() {
		var coll vector.Collection

		BeforeEach(func() {
			var err error
			coll, err = ix.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())
		})

		It("fails on an empty collection", func() {
			_, err := coll.Search(ctx, []float64{1, 0}, 3)
			Expect(err).To(MatchError(vector.ErrEmptyCollection))
		})

		It("rejects a zero-magnitude query", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0}})).To(Succeed())
			_, err := coll.Search(ctx, []float64{0, 0}, 1)
			Expect(err).To(MatchError(vector.ErrZeroVector))
		})

		It("returns nearest neighbors in ascending cosine distance", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "v1", Vector: []float64{1, 0}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v2", Vector: []float64{0, 1}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v3", Vector: []float64{0.9, 0.1}})).To(Succeed())

			results, err := coll.Search(ctx, []float64{1, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("v1"))
			Expect(results[0].Distance).To(BeNumerically("~", 0, 1e-6))
			Expect(results[1].ID).To(Equal("v3"))
			Expect(results[1].Distance).To(BeNumerically(">", 0))
		})

		It("excludes requested ids without shrinking k", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "self", Vector: []float64{1, 0}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v2", Vector: []float64{0, 1}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v3", Vector: []float64{0.9, 0.1}})).To(Succeed())

			results, err := coll.Search(ctx, []float64{1, 0}, 2, vector.ExcludeID("self"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, r := range results {
				Expect(r.ID).NotTo(Equal("self"))
			}
		})

		It("caps results at the collection size", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "v1", Vector: []float64{1, 0}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v2", Vector: []float64{0, 1}})).To(Succeed())

			results, err := coll.Search(ctx, []float64{1, 0}, 50)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})
	})

	Describe("persistence", func() {
		It("reopens a database file with identical content", func() {
			tmpDir, err := os.MkdirTemp("", "sqlitevec-test-*")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { os.RemoveAll(tmpDir) })

			dbPath := filepath.Join(tmpDir, "vectors.db")

			ix1, err := sqlitevec.NewIndex(sqlitevec.Config{DBPath: dbPath}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			coll, err := ix1.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0}})).To(Succeed())
			Expect(ix1.Close()).To(Succeed())

			ix2, err := sqlitevec.NewIndex(sqlitevec.Config{DBPath: dbPath}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { _ = ix2.Close() })

			reopened, err := ix2.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())

			n, err := reopened.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			err = reopened.Add(ctx, vector.Record{ID: "r1", Vector: []float64{0, 1}})
			Expect(err).To(MatchError(vector.ErrDuplicateID))
		})
	})
})
