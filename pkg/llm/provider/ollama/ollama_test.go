package ollama_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/llm"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider/ollama"
)

type fakeOllama struct {
	requests []map[string]any
	status   int
	reply    string
}

func newFakeOllama() *fakeOllama {
	return &fakeOllama{
		status: http.StatusOK,
		reply:  "a red soda can",
	}
}

func (f *fakeOllama) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			var body map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			f.requests = append(f.requests, body)

			if f.status != http.StatusOK {
				http.Error(w, "upstream trouble", f.status)
				return
			}

			resp := map[string]any{
				"model":             body["model"],
				"message":           map[string]any{"role": "assistant", "content": f.reply},
				"done":              true,
				"prompt_eval_count": 42,
				"eval_count":        7,
			}
			Expect(json.NewEncoder(w).Encode(resp)).To(Succeed())

		case "/image.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpeg-bytes"))

		default:
			http.NotFound(w, r)
		}
	}
}

var _ = Describe("Client", func() {
	var (
		fake   *fakeOllama
		server *httptest.Server
		client *ollama.Client
	)

	BeforeEach(func() {
		fake = newFakeOllama()
		server = httptest.NewServer(fake.handler())
		DeferCleanup(server.Close)

		client = ollama.NewClient("llava", "llava:13b", server.URL, zap.NewNop())
	})

	It("sends the prompt and returns trimmed text with usage", func() {
		resp, err := client.Generate(context.Background(), llm.NewConversation(), llm.Request{
			Prompt: "What is this?",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Text).To(Equal("a red soda can"))
		Expect(resp.Usage.PromptTokens).To(Equal(42))
		Expect(resp.Usage.CompletionTokens).To(Equal(7))
		Expect(resp.Usage.TotalTokens).To(Equal(49))

		Expect(fake.requests).To(HaveLen(1))
		Expect(fake.requests[0]["model"]).To(Equal("llava:13b"))
		Expect(fake.requests[0]["stream"]).To(Equal(false))
	})

	It("fetches image URLs and inlines them as base64", func() {
		_, err := client.Generate(context.Background(), llm.NewConversation(), llm.Request{
			Prompt:    "What is this?",
			ImageURLs: []string{server.URL + "/image.jpg"},
		})
		Expect(err).NotTo(HaveOccurred())

		messages := fake.requests[0]["messages"].([]any)
		last := messages[len(messages)-1].(map[string]any)
		images := last["images"].([]any)
		Expect(images).To(HaveLen(1))
		Expect(images[0]).To(Equal(base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))))
	})

	It("includes the system prompt as a leading system message", func() {
		_, err := client.Generate(context.Background(), llm.NewConversation(), llm.Request{
			Prompt:       "q",
			SystemPrompt: "You answer briefly.",
		})
		Expect(err).NotTo(HaveOccurred())

		messages := fake.requests[0]["messages"].([]any)
		first := messages[0].(map[string]any)
		Expect(first["role"]).To(Equal("system"))
		Expect(first["content"]).To(Equal("You answer briefly."))
	})

	It("surfaces server errors with their status", func() {
		fake.status = http.StatusServiceUnavailable

		_, err := client.Generate(context.Background(), llm.NewConversation(), llm.Request{Prompt: "q"})
		Expect(err).To(HaveOccurred())

		var reqErr *llm.RequestError
		Expect(errors.As(err, &reqErr)).To(BeTrue())
		Expect(reqErr.Status).To(Equal(http.StatusServiceUnavailable))
	})

	It("rejects empty completions", func() {
		fake.reply = ""

		_, err := client.Generate(context.Background(), llm.NewConversation(), llm.Request{Prompt: "q"})
		Expect(err).To(HaveOccurred())
	})
})
