package provider_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/config"
	"github.com/sightlinelabs/vizbench/pkg/llm"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider"
)

var _ = Describe("New", func() {
	It("rejects unknown provider kinds", func() {
		_, err := provider.New(config.ModelConfig{
			Name: "m", Provider: "watsonx", Model: "granite",
		}, "key", zap.NewNop())
		Expect(errors.Is(err, provider.ErrUnknownProvider)).To(BeTrue())
	})

	It("requires a key for hosted providers", func() {
		for _, kind := range []string{"openai", "anthropic", "gemini"} {
			_, err := provider.New(config.ModelConfig{
				Name: "m", Provider: kind, Model: "x",
			}, "", zap.NewNop())
			Expect(errors.Is(err, provider.ErrMissingCredentials)).To(BeTrue(), kind)
		}
	})

	It("builds an ollama backend without a key", func() {
		p, err := provider.New(config.ModelConfig{
			Name: "llava", Provider: "ollama", Model: "llava:13b",
		}, "", zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name()).To(Equal("llava"))
	})

	It("builds hosted backends with a key", func() {
		p, err := provider.New(config.ModelConfig{
			Name: "gpt", Provider: "openai", Model: "gpt-4o",
		}, "sk-test", zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name()).To(Equal("gpt"))
	})
})

var _ = Describe("Transient", func() {
	It("treats throttling and server errors as transient", func() {
		for _, status := range []int{408, 429, 500, 502, 503} {
			err := &llm.RequestError{Status: status, Err: errors.New("boom")}
			Expect(provider.Transient(err)).To(BeTrue(), "status %d", status)
		}
	})

	It("treats connection failures as transient", func() {
		err := &llm.RequestError{Err: errors.New("connection refused")}
		Expect(provider.Transient(err)).To(BeTrue())
	})

	It("treats client errors as fatal", func() {
		for _, status := range []int{400, 401, 403, 404, 422} {
			err := &llm.RequestError{Status: status, Err: errors.New("nope")}
			Expect(provider.Transient(err)).To(BeFalse(), "status %d", status)
		}
	})

	It("treats plain errors as fatal", func() {
		Expect(provider.Transient(errors.New("logic bug"))).To(BeFalse())
	})

	It("treats nil as non-transient", func() {
		Expect(provider.Transient(nil)).To(BeFalse())
	})
})
