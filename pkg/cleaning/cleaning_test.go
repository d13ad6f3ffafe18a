package cleaning_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/cleaning"
	"github.com/sightlinelabs/vizbench/pkg/dataset"
	testutils "github.com/sightlinelabs/vizbench/pkg/utils/test"
	"github.com/sightlinelabs/vizbench/pkg/vector"
)

var _ = Describe("Collector", func() {
	var judge *testutils.MockProvider

	BeforeEach(func() {
		judge = testutils.NewMockProvider("gemini-2.5-pro")
	})

	newCollector := func() *cleaning.Collector {
		collector, err := cleaning.NewCollector(judge, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		return collector
	}

	validationSamples := func() []dataset.Sample {
		return []dataset.Sample{
			{
				ID: "VizWiz_val_00000001",
				Metadata: dataset.Metadata{
					ImageURL:      "https://example.com/1.jpg",
					Question:      "Thanks for your help",
					CrowdMajority: "unanswerable",
				},
			},
			{
				ID: "VizWiz_val_00000002",
				Metadata: dataset.Metadata{
					ImageURL:      "https://example.com/2.jpg",
					Question:      "What color is this shirt?",
					CrowdMajority: "blue",
				},
			},
		}
	}

	Describe("EvaluateQuestion", func() {
		It("sends a text-only request", func() {
			judge.Respond(`{"is_relevant": true, "reason": "clear visual question"}`)

			verdict, err := newCollector().EvaluateQuestion(context.Background(), "What color is this shirt?")
			Expect(err).NotTo(HaveOccurred())
			Expect(verdict.IsRelevant).To(BeTrue())

			calls := judge.Calls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].ImageURLs).To(BeEmpty())
			Expect(calls[0].Prompt).To(ContainSubstring("Question to evaluate: 'What color is this shirt?'"))
		})

		It("parses a fenced verdict", func() {
			judge.Respond("```json\n{\"is_relevant\": false, \"reason\": \"greeting\"}\n```")

			verdict, err := newCollector().EvaluateQuestion(context.Background(), "Hello there")
			Expect(err).NotTo(HaveOccurred())
			Expect(verdict.IsRelevant).To(BeFalse())
			Expect(verdict.Reason).To(Equal("greeting"))
		})

		It("falls back to the heuristic when the verdict is not JSON", func() {
			judge.Respond("I think this one is probably fine to keep.")

			verdict, err := newCollector().EvaluateQuestion(context.Background(), "Thanks for your help")
			Expect(err).NotTo(HaveOccurred())
			Expect(verdict.IsRelevant).To(BeFalse())
			Expect(verdict.Reason).To(ContainSubstring("heuristic"))
		})

		It("propagates generation failures", func() {
			judge.Fail(errors.New("quota exhausted"))

			_, err := newCollector().EvaluateQuestion(context.Background(), "What does this say?")
			Expect(err).To(MatchError(ContainSubstring("quota exhausted")))
		})
	})

	Describe("CollectValidation", func() {
		It("flags only irrelevant samples", func() {
			judge.
				Respond(`{"is_relevant": false, "reason": "thank you message"}`).
				Respond(`{"is_relevant": true, "reason": "clear visual question"}`)

			discards, err := newCollector().CollectValidation(context.Background(), validationSamples(), 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(discards).To(HaveLen(1))
			Expect(discards[0].ID).To(Equal("VizWiz_val_00000001"))
			Expect(discards[0].Question).To(Equal("Thanks for your help"))
			Expect(discards[0].CrowdMajority).To(Equal("unanswerable"))
			Expect(discards[0].Evaluation.IsRelevant).To(BeFalse())
			Expect(discards[0].Evaluation.Method).To(Equal(cleaning.MethodTextOnly))
		})

		It("skips samples missing a question without calling the judge", func() {
			samples := []dataset.Sample{
				{ID: "incomplete", Metadata: dataset.Metadata{ImageURL: "https://example.com/x.jpg"}},
			}

			discards, err := newCollector().CollectValidation(context.Background(), samples, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(discards).To(BeEmpty())
			Expect(judge.CallCount()).To(BeZero())
		})

		It("keeps a sample when the judge call fails", func() {
			judge.
				Fail(errors.New("transient")).
				Respond(`{"is_relevant": false, "reason": "greeting"}`)

			discards, err := newCollector().CollectValidation(context.Background(), validationSamples(), 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(discards).To(HaveLen(1))
			Expect(discards[0].ID).To(Equal("VizWiz_val_00000002"))
		})

		It("honors the sample cap", func() {
			judge.Respond(`{"is_relevant": false, "reason": "irrelevant"}`)

			discards, err := newCollector().CollectValidation(context.Background(), validationSamples(), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(discards).To(HaveLen(1))
			Expect(judge.CallCount()).To(Equal(1))
		})
	})

	Describe("CollectTrain", func() {
		It("walks the collection snapshot", func() {
			coll := testutils.NewMockCollection("train", 3)
			coll.Records = []vector.Record{
				{
					ID:     "VizWiz_train_00000001",
					Vector: []float64{1, 0, 0},
					Metadata: map[string]any{
						"image_url":      "https://example.com/t1.jpg",
						"question":       "Hello there",
						"crowd_majority": "unanswerable",
					},
				},
				{
					ID:     "VizWiz_train_00000002",
					Vector: []float64{0, 1, 0},
					Metadata: map[string]any{
						"image_url":      "https://example.com/t2.jpg",
						"question":       "What does the label say?",
						"crowd_majority": "aspirin",
					},
				},
			}
			judge.
				Respond(`{"is_relevant": false, "reason": "greeting"}`).
				Respond(`{"is_relevant": true, "reason": "readable label question"}`)

			discards, err := newCollector().CollectTrain(context.Background(), coll, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(discards).To(HaveLen(1))
			Expect(discards[0].ID).To(Equal("VizWiz_train_00000001"))
		})
	})
})
