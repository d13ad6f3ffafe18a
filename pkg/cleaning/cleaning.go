// Package cleaning implements the two-phase dataset cleaning workflow:
// collect relevance verdicts for every question (text-only, so the judge
// never sees the image), then scrub the discarded samples out of an
// evaluation results file.
package cleaning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/dataset"
	"github.com/sightlinelabs/vizbench/pkg/llm"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider"
	"github.com/sightlinelabs/vizbench/pkg/prompt"
	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// MethodTextOnly labels verdicts produced by the text-only judge, heuristic
// fallback included.
const MethodTextOnly = "text_only_evaluation"

const relevancePrompt = `Evaluate if this question is useful for training a vision-language model.

You will ONLY see the question text, not the image. Evaluate based on whether the question:

MARK AS NOT RELEVANT if the question:
- Is a thank you message ("Thanks", "Thank you", "Thanks for your help")
- Is a greeting ("Hello", "Hi")
- Is nonsensical text ("???", random letters, gibberish)
- Is just punctuation (".", "...", "!!!")
- Is a complaint about image quality instead of asking something useful
- Is a statement/comment rather than a question
- Is unclear, vague, or incomprehensible
- Expresses frustration without asking anything specific
- Is a test message or placeholder
- Uses ambiguous pronouns without clear referents ("it", "this", "that" without specifying what)
- Requires context from previous conversation ("Oh so...", "So then...", "But what about...")
- Is a conversational fragment rather than a standalone question
- Doesn't actually ask about visual content that could be seen in an image
- Is incomplete or requires external context to understand
- Asks for external knowledge not visible in images (e.g., "Where can I buy this?", "How many calories?")

MARK AS RELEVANT only if it:
- Asks something specific that would be useful to answer about visual content
- Is a clear, standalone, understandable question
- Could reasonably be answered by looking at an image
- Would help train a vision-language model
- Doesn't require additional context to understand what is being asked

EXAMPLES OF NOT RELEVANT:
- "Thanks for your help"
- "This image is blurry"
- "I can't see anything"
- "This image does not show who the mail is for"
- "Hello there"
- "???"
- "how do I need to do?"
- "What am I doing wrong?" (not about visual content)
- "So then what happens next?" (requires previous context)
- "Where can I buy this?" (requires external knowledge)
- "How many calories are in this?" (requires external knowledge)

EXAMPLES OF RELEVANT:
- "What color is this shirt?"
- "What does the label say?"
- "How many people are in this photo?"
- "What time does the clock show?"

Your response must be EXACTLY in this JSON format (no other text):
{"is_relevant": false, "reason": "explanation"}

Remember: Use true or false (not True/False), include all quotes, no extra formatting.`

// irrelevantPatterns feeds the heuristic fallback when the judge's answer is
// not parseable JSON.
var irrelevantPatterns = []string{
	"thank", "thanks", "hello", "hi there", "test", "???",
	".", "..", "...", "this image", "can't see", "blurry",
	"not clear", "poor quality", "doesn't show", "does not show",
	"oh so", "so then", "but what", "what am i doing",
	"am i doing wrong", "where can i buy", "how many calories",
}

// Verdict is one relevance decision.
type Verdict struct {
	IsRelevant bool   `json:"is_relevant"`
	Reason     string `json:"reason"`
}

// DiscardEntry is one sample flagged for removal, with enough context for a
// manual review pass.
type DiscardEntry struct {
	ID            string            `json:"id"`
	ImageURL      string            `json:"image_url"`
	Question      string            `json:"question"`
	CrowdMajority string            `json:"crowd_majority"`
	Evaluation    DiscardEvaluation `json:"evaluation"`
}

// DiscardEvaluation records why the entry was flagged.
type DiscardEvaluation struct {
	IsRelevant bool   `json:"is_relevant"`
	Reason     string `json:"reason"`
	Method     string `json:"method"`
}

// Collector asks a judge model whether questions are worth keeping.
type Collector struct {
	judge  provider.Provider
	logger *zap.Logger
}

func NewCollector(judge provider.Provider, logger *zap.Logger) (*Collector, error) {
	if judge == nil {
		return nil, fmt.Errorf("judge provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{judge: judge, logger: logger}, nil
}

// EvaluateQuestion runs one text-only relevance check. A response that is not
// parseable JSON falls back to a pattern heuristic; a failed generation is
// returned as an error and the caller decides whether to keep the sample.
func (c *Collector) EvaluateQuestion(ctx context.Context, question string) (Verdict, error) {
	req := llm.Request{
		Prompt:       fmt.Sprintf("%s\n\nQuestion to evaluate: '%s'", relevancePrompt, question),
		SystemPrompt: prompt.SystemPrompt(prompt.Template{}),
		Mode:         "relevance_check",
	}

	resp, err := c.judge.Generate(ctx, llm.NewConversation(), req)
	if err != nil {
		return Verdict{}, fmt.Errorf("evaluating question relevance: %w", err)
	}

	verdict, err := parseVerdict(resp.Text)
	if err != nil {
		c.logger.Debug("verdict parsing failed, using heuristic",
			zap.String("question", question),
			zap.Error(err))
		return heuristicVerdict(question, err), nil
	}
	return verdict, nil
}

// CollectTrain walks the training collection snapshot and returns the
// entries the judge flags as irrelevant. Records missing an image URL or a
// question are skipped; judge failures are logged and the sample is kept.
// max caps the number of records examined, 0 means all.
func (c *Collector) CollectTrain(ctx context.Context, coll vector.Collection, max int) ([]DiscardEntry, error) {
	records, err := coll.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshotting train collection: %w", err)
	}
	if max > 0 && len(records) > max {
		records = records[:max]
	}
	c.logger.Info("collecting train discards", zap.Int("records", len(records)))

	var discards []DiscardEntry
	for _, rec := range records {
		imageURL, _ := rec.Metadata["image_url"].(string)
		question, _ := rec.Metadata["question"].(string)
		crowd, _ := rec.Metadata["crowd_majority"].(string)

		entry, flagged := c.judgeOne(ctx, rec.ID, imageURL, question, crowd)
		if flagged {
			discards = append(discards, entry)
		}
		if ctx.Err() != nil {
			return discards, ctx.Err()
		}
	}
	return discards, nil
}

// CollectValidation does the same walk over validation samples.
func (c *Collector) CollectValidation(ctx context.Context, samples []dataset.Sample, max int) ([]DiscardEntry, error) {
	if max > 0 && len(samples) > max {
		samples = samples[:max]
	}
	c.logger.Info("collecting validation discards", zap.Int("samples", len(samples)))

	var discards []DiscardEntry
	for _, sample := range samples {
		entry, flagged := c.judgeOne(ctx, sample.ID, sample.Metadata.ImageURL, sample.Metadata.Question, sample.Metadata.CrowdMajority)
		if flagged {
			discards = append(discards, entry)
		}
		if ctx.Err() != nil {
			return discards, ctx.Err()
		}
	}
	return discards, nil
}

func (c *Collector) judgeOne(ctx context.Context, id, imageURL, question, crowd string) (DiscardEntry, bool) {
	if imageURL == "" || question == "" {
		c.logger.Warn("skipping sample without image_url or question", zap.String("id", id))
		return DiscardEntry{}, false
	}

	verdict, err := c.EvaluateQuestion(ctx, question)
	if err != nil {
		c.logger.Warn("relevance check failed, keeping sample",
			zap.String("id", id),
			zap.Error(err))
		return DiscardEntry{}, false
	}
	if verdict.IsRelevant {
		return DiscardEntry{}, false
	}

	return DiscardEntry{
		ID:            id,
		ImageURL:      imageURL,
		Question:      question,
		CrowdMajority: crowd,
		Evaluation: DiscardEvaluation{
			IsRelevant: verdict.IsRelevant,
			Reason:     verdict.Reason,
			Method:     MethodTextOnly,
		},
	}, true
}

// parseVerdict extracts the JSON verdict from a model response, tolerating
// markdown code fences and surrounding prose.
func parseVerdict(raw string) (Verdict, error) {
	s := extractJSON(raw)

	var parsed struct {
		IsRelevant *bool   `json:"is_relevant"`
		Reason     *string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return Verdict{}, fmt.Errorf("parsing verdict: %w", err)
	}
	if parsed.IsRelevant == nil || parsed.Reason == nil {
		return Verdict{}, fmt.Errorf("verdict missing required fields")
	}
	return Verdict{IsRelevant: *parsed.IsRelevant, Reason: *parsed.Reason}, nil
}

func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if i := strings.Index(s, "```json"); i != -1 {
		s = s[i+len("```json"):]
		if j := strings.Index(s, "```"); j != -1 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	} else if i := strings.Index(s, "```"); i != -1 {
		s = s[i+3:]
		if j := strings.Index(s, "```"); j != -1 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start != -1 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// heuristicVerdict is the last-resort decision when the judge's answer could
// not be parsed. It mirrors the manual triage rules used before the judge
// existed: known filler phrases, near-empty questions, and long statements
// that do not end in a question mark are all irrelevant.
func heuristicVerdict(question string, parseErr error) Verdict {
	lower := strings.ToLower(strings.TrimSpace(question))

	irrelevant := false
	for _, pattern := range irrelevantPatterns {
		if strings.Contains(lower, pattern) {
			irrelevant = true
			break
		}
	}
	if len(strings.TrimSpace(question)) < 3 {
		irrelevant = true
	}
	if !strings.HasSuffix(strings.TrimSpace(question), "?") && len(strings.Fields(question)) > 5 {
		irrelevant = true
	}

	return Verdict{
		IsRelevant: !irrelevant,
		Reason:     fmt.Sprintf("Fallback heuristic decision - parsing failed: %v", parseErr),
	}
}
