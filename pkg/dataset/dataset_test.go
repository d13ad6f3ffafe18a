package dataset_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/dataset"
)

func writeDump(dir, name, content string) string {
	path := filepath.Join(dir, name)
	Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
	return path
}

var _ = Describe("Load", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("loads samples preserving dump order", func() {
		path := writeDump(tmpDir, "val.json", `{"items": [
			{"id": "VizWiz_val_00000002", "embedding": [0.1, 0.2], "metadata": {"image_url": "https://e.com/2.jpg", "question": "What is this?", "crowd_majority": "soda can"}},
			{"id": "VizWiz_val_00000001", "embedding": [0.3, 0.4], "metadata": {"image_url": "https://e.com/1.jpg", "question": "What color?", "crowd_majority": "blue"}}
		]}`)

		samples, err := dataset.Load(path, 2, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(samples).To(HaveLen(2))
		Expect(samples[0].ID).To(Equal("VizWiz_val_00000002"))
		Expect(samples[1].ID).To(Equal("VizWiz_val_00000001"))
		Expect(samples[0].Metadata.Question).To(Equal("What is this?"))
		Expect(samples[0].Metadata.CrowdMajority).To(Equal("soda can"))
		Expect(samples[1].Embedding).To(Equal([]float64{0.3, 0.4}))
	})

	It("rejects dimension mismatches", func() {
		path := writeDump(tmpDir, "bad.json", `{"items": [
			{"id": "a", "embedding": [0.1], "metadata": {}}
		]}`)

		_, err := dataset.Load(path, 2, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("1 dims, expected 2"))
	})

	It("rejects duplicate ids", func() {
		path := writeDump(tmpDir, "dup.json", `{"items": [
			{"id": "a", "embedding": [0.1, 0.2], "metadata": {}},
			{"id": "a", "embedding": [0.3, 0.4], "metadata": {}}
		]}`)

		_, err := dataset.Load(path, 2, zap.NewNop())
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("duplicate id"))
	})

	It("rejects items without an id", func() {
		path := writeDump(tmpDir, "noid.json", `{"items": [
			{"embedding": [0.1, 0.2], "metadata": {}}
		]}`)

		_, err := dataset.Load(path, 2, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("fails cleanly on a missing file", func() {
		_, err := dataset.Load(filepath.Join(tmpDir, "absent.json"), 2, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("fails cleanly on malformed JSON", func() {
		path := writeDump(tmpDir, "garbage.json", `{"items": [`)
		_, err := dataset.Load(path, 2, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Filter", func() {
	samples := []dataset.Sample{
		{ID: "a"}, {ID: "b"}, {ID: "c"},
	}

	It("returns everything when unconstrained", func() {
		Expect(dataset.Filter(samples, "", 0)).To(HaveLen(3))
	})

	It("keeps only the named sample", func() {
		got := dataset.Filter(samples, "b", 0)
		Expect(got).To(HaveLen(1))
		Expect(got[0].ID).To(Equal("b"))
	})

	It("returns nil for an unknown id", func() {
		Expect(dataset.Filter(samples, "zzz", 0)).To(BeNil())
	})

	It("caps to maxSamples preserving the prefix", func() {
		got := dataset.Filter(samples, "", 2)
		Expect(got).To(HaveLen(2))
		Expect(got[0].ID).To(Equal("a"))
		Expect(got[1].ID).To(Equal("b"))
	})

	It("ignores caps larger than the list", func() {
		Expect(dataset.Filter(samples, "", 10)).To(HaveLen(3))
	})
})
