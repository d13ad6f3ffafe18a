package inmemory_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/vector"
	"github.com/sightlinelabs/vizbench/pkg/vector/inmemory"
)

var _ = Describe("Index", func() {
	var (
		ix  *inmemory.Index
		ctx context.Context
	)

	BeforeEach(func() {
		var err error
		ix, err = inmemory.NewIndex(inmemory.Config{}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	Describe("CreateOrOpenCollection", func() {
		It("rejects non-positive dimensionality", func() {
			_, err := ix.CreateOrOpenCollection(ctx, "bad", 0)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("is idempotent for the same name and dims", func() {
			a, err := ix.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(a.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0}})).To(Succeed())

			b, err := ix.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())

			n, err := b.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("rejects reopening with a different dimensionality", func() {
			_, err := ix.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())

			_, err = ix.CreateOrOpenCollection(ctx, "train", 3)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})
	})

	Describe("Add", func() {
		var coll vector.Collection

		BeforeEach(func() {
			var err error
			coll, err = ix.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects duplicate ids", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0}})).To(Succeed())
			err := coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{0, 1}})
			Expect(err).To(MatchError(vector.ErrDuplicateID))
		})

		It("rejects mismatched dimensions", func() {
			err := coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0, 0}})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})
	})

	Describe("Search", func() {
		var coll vector.Collection

		BeforeEach(func() {
			var err error
			coll, err = ix.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())
		})

		It("fails with ErrEmptyCollection when no records exist", func() {
			_, err := coll.Search(ctx, []float64{1, 0}, 3)
			Expect(err).To(MatchError(vector.ErrEmptyCollection))
		})

		It("returns nothing for k <= 0", func() {
			results, err := coll.Search(ctx, []float64{1, 0}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("fails with ErrZeroVector for a zero-magnitude query", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0}})).To(Succeed())
			_, err := coll.Search(ctx, []float64{0, 0}, 1)
			Expect(err).To(MatchError(vector.ErrZeroVector))
		})

		It("orders results by ascending distance with varying vector lengths", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "v1", Vector: []float64{1, 0}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v2", Vector: []float64{0, 1}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v3", Vector: []float64{0.9, 0.1}})).To(Succeed())

			results, err := coll.Search(ctx, []float64{1, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))

			Expect(results[0].ID).To(Equal("v1"))
			Expect(results[0].Distance).To(BeNumerically("~", 0, 1e-12))
			Expect(results[1].ID).To(Equal("v3"))
			Expect(results[1].Distance).To(BeNumerically(">", 0))
		})

		It("returns the whole collection when k exceeds its size", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "v1", Vector: []float64{1, 0}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v2", Vector: []float64{0, 1}})).To(Succeed())

			results, err := coll.Search(ctx, []float64{1, 0}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))

			for i := 1; i < len(results); i++ {
				Expect(results[i].Distance).To(BeNumerically(">=", results[i-1].Distance))
			}
		})

		It("breaks distance ties by ascending id", func() {
			// Parallel vectors of different magnitude share distance 0.
			Expect(coll.Add(ctx, vector.Record{ID: "b", Vector: []float64{2, 0}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "a", Vector: []float64{1, 0}})).To(Succeed())

			results, err := coll.Search(ctx, []float64{1, 0}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].ID).To(Equal("a"))
			Expect(results[1].ID).To(Equal("b"))
		})

		It("never returns an excluded id and does not shrink k", func() {
			Expect(coll.Add(ctx, vector.Record{ID: "self", Vector: []float64{1, 0}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v2", Vector: []float64{0, 1}})).To(Succeed())
			Expect(coll.Add(ctx, vector.Record{ID: "v3", Vector: []float64{0.9, 0.1}})).To(Succeed())

			results, err := coll.Search(ctx, []float64{1, 0}, 2, vector.ExcludeID("self"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, r := range results {
				Expect(r.ID).NotTo(Equal("self"))
			}
			Expect(results[0].ID).To(Equal("v3"))
		})

		It("carries record metadata into results", func() {
			Expect(coll.Add(ctx, vector.Record{
				ID:       "v1",
				Vector:   []float64{1, 0},
				Metadata: map[string]any{"question": "what color is this?"},
			})).To(Succeed())

			results, err := coll.Search(ctx, []float64{1, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Metadata).To(HaveKeyWithValue("question", "what color is this?"))
		})
	})

	Describe("persistence", func() {
		var tmpDir string

		BeforeEach(func() {
			var err error
			tmpDir, err = os.MkdirTemp("", "inmemory-test-*")
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			os.RemoveAll(tmpDir)
		})

		It("survives reopening with identical content", func() {
			ix1, err := inmemory.NewIndex(inmemory.Config{Dir: tmpDir}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())

			coll, err := ix1.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(coll.Add(ctx, vector.Record{
				ID:       "r1",
				Vector:   []float64{1, 0},
				Metadata: map[string]any{"question": "q"},
			})).To(Succeed())
			Expect(ix1.Close()).To(Succeed())

			ix2, err := inmemory.NewIndex(inmemory.Config{Dir: tmpDir}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			reopened, err := ix2.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())

			n, err := reopened.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			// Reopen is a no-op, not an append: the same record is still
			// refused as a duplicate.
			err = reopened.Add(ctx, vector.Record{ID: "r1", Vector: []float64{0, 1}})
			Expect(err).To(MatchError(vector.ErrDuplicateID))

			Expect(filepath.Join(tmpDir, "train.json")).To(BeAnExistingFile())
		})

		It("rejects reopening a snapshot with different dims", func() {
			ix1, err := inmemory.NewIndex(inmemory.Config{Dir: tmpDir}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			coll, err := ix1.CreateOrOpenCollection(ctx, "train", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0}})).To(Succeed())
			Expect(ix1.Close()).To(Succeed())

			ix2, err := inmemory.NewIndex(inmemory.Config{Dir: tmpDir}, zap.NewNop())
			Expect(err).NotTo(HaveOccurred())
			_, err = ix2.CreateOrOpenCollection(ctx, "train", 3)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})
	})
})
