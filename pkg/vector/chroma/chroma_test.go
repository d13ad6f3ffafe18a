package chroma_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/vector"
	"github.com/sightlinelabs/vizbench/pkg/vector/chroma"
)

// fakeChroma is a minimal in-process stand-in for the Chroma v2 REST API,
// enough to exercise the driver's request/response handling.
type fakeChroma struct {
	ids       []string
	vectors   [][]float64
	metadatas []map[string]any
}

func (f *fakeChroma) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/collections/train"):
			http.Error(w, "not found", http.StatusNotFound)

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/collections"):
			json.NewEncoder(w).Encode(map[string]any{"id": "coll-1", "name": "train"})

		case strings.HasSuffix(r.URL.Path, "/count"):
			json.NewEncoder(w).Encode(len(f.ids))

		case strings.HasSuffix(r.URL.Path, "/get"):
			var req struct {
				IDs []string `json:"ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)

			resp := map[string]any{"ids": []string{}, "metadatas": []map[string]any{}, "embeddings": [][]float64{}}
			if len(req.IDs) == 0 {
				resp["ids"] = f.ids
				resp["metadatas"] = f.metadatas
				resp["embeddings"] = f.vectors
			} else {
				var hits []string
				for _, want := range req.IDs {
					for _, have := range f.ids {
						if want == have {
							hits = append(hits, have)
						}
					}
				}
				resp["ids"] = hits
			}
			json.NewEncoder(w).Encode(resp)

		case strings.HasSuffix(r.URL.Path, "/add"):
			var req struct {
				IDs        []string         `json:"ids"`
				Embeddings [][]float64      `json:"embeddings"`
				Metadatas  []map[string]any `json:"metadatas"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			f.ids = append(f.ids, req.IDs...)
			f.vectors = append(f.vectors, req.Embeddings...)
			f.metadatas = append(f.metadatas, req.Metadatas...)
			json.NewEncoder(w).Encode(map[string]any{})

		case strings.HasSuffix(r.URL.Path, "/query"):
			// Return stored order with synthetic ascending distances.
			distances := make([]float64, len(f.ids))
			for i := range distances {
				distances[i] = float64(i) * 0.1
			}
			json.NewEncoder(w).Encode(map[string]any{
				"ids":       [][]string{f.ids},
				"distances": [][]float64{distances},
				"metadatas": [][]map[string]any{f.metadatas},
			})

		default:
			http.Error(w, "unexpected route: "+r.URL.Path, http.StatusNotFound)
		}
	})
}

var _ = Describe("Index", func() {
	var (
		server *httptest.Server
		fake   *fakeChroma
		ix     *chroma.Index
		ctx    context.Context
	)

	BeforeEach(func() {
		fake = &fakeChroma{}
		server = httptest.NewServer(fake.handler())
		ctx = context.Background()

		var err error
		ix, err = chroma.NewIndex(chroma.Config{URL: server.URL}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires a URL", func() {
		_, err := chroma.NewIndex(chroma.Config{}, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("chroma URL is required"))
	})

	It("implements vector.Index", func() {
		var _ vector.Index = (*chroma.Index)(nil)
	})

	It("creates a collection when absent and round-trips records", func() {
		coll, err := ix.CreateOrOpenCollection(ctx, "train", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(coll.Name()).To(Equal("train"))
		Expect(coll.Dims()).To(Equal(2))

		Expect(coll.Add(ctx, vector.Record{
			ID:       "r1",
			Vector:   []float64{1, 0},
			Metadata: map[string]any{"question": "q1"},
		})).To(Succeed())

		n, err := coll.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("rejects duplicate ids", func() {
		coll, err := ix.CreateOrOpenCollection(ctx, "train", 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0}})).To(Succeed())
		err = coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{0, 1}})
		Expect(err).To(MatchError(vector.ErrDuplicateID))
	})

	It("rejects mismatched dimensions locally", func() {
		coll, err := ix.CreateOrOpenCollection(ctx, "train", 2)
		Expect(err).NotTo(HaveOccurred())

		err = coll.Add(ctx, vector.Record{ID: "r1", Vector: []float64{1, 0, 0}})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})

	It("searches with self-exclusion", func() {
		coll, err := ix.CreateOrOpenCollection(ctx, "train", 2)
		Expect(err).NotTo(HaveOccurred())

		Expect(coll.Add(ctx, vector.Record{ID: "self", Vector: []float64{1, 0}})).To(Succeed())
		Expect(coll.Add(ctx, vector.Record{ID: "v2", Vector: []float64{0.9, 0.1}})).To(Succeed())
		Expect(coll.Add(ctx, vector.Record{ID: "v3", Vector: []float64{0, 1}})).To(Succeed())

		results, err := coll.Search(ctx, []float64{1, 0}, 2, vector.ExcludeID("self"))
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		for _, r := range results {
			Expect(r.ID).NotTo(Equal("self"))
		}
	})

	It("fails searching an empty collection", func() {
		coll, err := ix.CreateOrOpenCollection(ctx, "train", 2)
		Expect(err).NotTo(HaveOccurred())

		_, err = coll.Search(ctx, []float64{1, 0}, 3)
		Expect(err).To(MatchError(vector.ErrEmptyCollection))
	})

	It("rejects a zero-magnitude query without a network call", func() {
		coll, err := ix.CreateOrOpenCollection(ctx, "train", 2)
		Expect(err).NotTo(HaveOccurred())

		_, err = coll.Search(ctx, []float64{0, 0}, 3)
		Expect(err).To(MatchError(vector.ErrZeroVector))
	})
})
