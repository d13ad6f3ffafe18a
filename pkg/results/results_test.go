package results_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/results"
	"github.com/sightlinelabs/vizbench/pkg/vector"
)

func record(id, model string, withContext bool) results.EvaluationRecord {
	return results.EvaluationRecord{
		ValidationID:          id,
		ModelName:             model,
		WithContext:           withContext,
		EmbeddingProvider:     "cohere",
		TopKSimilar:           3,
		ImageURL:              "https://e.com/" + id + ".jpg",
		RealQuestion:          "What is this?",
		CrowdMajority:         "soda can",
		PromptUsed:            "Question: What is this?",
		LLMResponse:           "a soda can",
		Timestamp:             time.Now().UTC(),
		ProcessingTimeSeconds: 1.25,
	}
}

var _ = Describe("Store", func() {
	var (
		path  string
		store *results.Store
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "results", "run.jsonl")

		var err error
		store, err = results.Open(path, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = store.Close() })
	})

	It("starts empty", func() {
		Expect(store.Count()).To(BeZero())
		Expect(store.Contains(results.Key{ValidationID: "v1", ModelName: "m", WithContext: true})).To(BeFalse())
	})

	It("appends and indexes records", func() {
		rec := record("v1", "gpt-4o", true)
		Expect(store.Append(rec)).To(Succeed())

		Expect(store.Contains(results.KeyOf(rec))).To(BeTrue())
		Expect(store.Count()).To(Equal(1))
	})

	It("treats the triple as the key, not just the id", func() {
		Expect(store.Append(record("v1", "gpt-4o", true))).To(Succeed())
		Expect(store.Append(record("v1", "gpt-4o", false))).To(Succeed())
		Expect(store.Append(record("v1", "claude", true))).To(Succeed())
		Expect(store.Count()).To(Equal(3))
	})

	It("rejects duplicate triples", func() {
		rec := record("v1", "gpt-4o", true)
		Expect(store.Append(rec)).To(Succeed())

		err := store.Append(rec)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("already persisted"))
	})

	It("serializes the snake_case field set", func() {
		rec := record("v1", "gpt-4o", true)
		rec.SimilarImages = []vector.Result{
			{ID: "t1", Distance: 0.05, Metadata: map[string]any{"question": "q"}},
		}
		Expect(store.Append(rec)).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		var parsed map[string]any
		Expect(json.Unmarshal(data, &parsed)).To(Succeed())

		for _, field := range []string{
			"validation_id", "model_name", "with_context", "embedding_provider",
			"top_k_similar", "image_url", "real_question", "crowd_majority",
			"similar_images", "prompt_used", "llm_response", "timestamp",
			"processing_time_seconds",
		} {
			Expect(parsed).To(HaveKey(field), field)
		}
		Expect(parsed).NotTo(HaveKey("error"))
	})

	It("reindexes existing records on reopen", func() {
		rec := record("v1", "gpt-4o", true)
		Expect(store.Append(rec)).To(Succeed())
		Expect(store.Close()).To(Succeed())

		reopened, err := results.Open(path, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		Expect(reopened.Contains(results.KeyOf(rec))).To(BeTrue())
		Expect(reopened.Append(rec)).NotTo(Succeed())
	})

	It("tolerates a torn final line on reopen", func() {
		Expect(store.Append(record("v1", "gpt-4o", true))).To(Succeed())
		Expect(store.Close()).To(Succeed())

		// Simulate a crash mid-append.
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		Expect(err).NotTo(HaveOccurred())
		_, err = f.WriteString(`{"validation_id": "v2", "model_na`)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		reopened, err := results.Open(path, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		Expect(reopened.Count()).To(Equal(1))

		// The torn triple is evaluated and appended again, intact.
		Expect(reopened.Append(record("v2", "gpt-4o", true))).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		var last map[string]any
		Expect(json.Unmarshal([]byte(lines[len(lines)-1]), &last)).To(Succeed())
		Expect(last["validation_id"]).To(Equal("v2"))
	})

	It("is safe under concurrent appenders", func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				defer GinkgoRecover()
				rec := record("v"+string(rune('a'+n)), "gpt-4o", true)
				Expect(store.Append(rec)).To(Succeed())
			}(i)
		}
		wg.Wait()

		Expect(store.Count()).To(Equal(10))
	})
})
