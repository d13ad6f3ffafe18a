package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sightlinelabs/vizbench/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		mgr    *credentials.Manager
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		var err error
		mgr, err = credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns empty credentials when no file exists", func() {
		creds, err := mgr.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(creds.Providers).To(BeEmpty())
	})

	It("round-trips a stored key", func() {
		Expect(mgr.SetKey("openai", "sk-test-123")).To(Succeed())

		key, err := mgr.GetKey("openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(Equal("sk-test-123"))
	})

	It("writes credentials.toml with owner-only permissions", func() {
		Expect(mgr.SetKey("anthropic", "sk-ant-test")).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, "credentials.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
	})

	It("returns empty string for providers without keys", func() {
		key, err := mgr.GetKey("gemini")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(BeEmpty())
	})

	It("removes stored keys", func() {
		Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())
		Expect(mgr.RemoveKey("openai")).To(Succeed())

		key, err := mgr.GetKey("openai")
		Expect(err).NotTo(HaveOccurred())
		Expect(key).To(BeEmpty())
	})

	It("lists providers sorted", func() {
		Expect(mgr.SetKey("openai", "a")).To(Succeed())
		Expect(mgr.SetKey("anthropic", "b")).To(Succeed())

		providers, err := mgr.ListProviders()
		Expect(err).NotTo(HaveOccurred())
		Expect(providers).To(Equal([]string{"anthropic", "openai"}))
	})

	Describe("Resolve", func() {
		It("prefers the stored key over the environment", func() {
			GinkgoT().Setenv("OPENAI_API_KEY", "sk-env")
			Expect(mgr.SetKey("openai", "sk-stored")).To(Succeed())

			key, err := mgr.Resolve("openai")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-stored"))
		})

		It("falls back to the environment variable", func() {
			GinkgoT().Setenv("GEMINI_API_KEY", "gm-env")

			key, err := mgr.Resolve("gemini")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("gm-env"))
		})

		It("returns empty for providers without an env mapping", func() {
			key, err := mgr.Resolve("ollama")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(BeEmpty())
		})
	})
})

var _ = Describe("EnvVarForProvider", func() {
	It("maps known providers", func() {
		Expect(credentials.EnvVarForProvider("openai")).To(Equal("OPENAI_API_KEY"))
		Expect(credentials.EnvVarForProvider("anthropic")).To(Equal("ANTHROPIC_API_KEY"))
		Expect(credentials.EnvVarForProvider("gemini")).To(Equal("GEMINI_API_KEY"))
	})

	It("returns empty for unknown providers", func() {
		Expect(credentials.EnvVarForProvider("ollama")).To(BeEmpty())
	})
})

var _ = Describe("IsSupportedProvider", func() {
	It("accepts hosted providers", func() {
		Expect(credentials.IsSupportedProvider("openai")).To(BeTrue())
		Expect(credentials.IsSupportedProvider("gemini")).To(BeTrue())
	})

	It("rejects local providers", func() {
		Expect(credentials.IsSupportedProvider("ollama")).To(BeFalse())
	})
})
