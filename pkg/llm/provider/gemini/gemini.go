// Package gemini implements the model backend for Google Gemini models.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sightlinelabs/vizbench/pkg/llm"
)

// Client talks to the Gemini API.
type Client struct {
	name   string
	model  string
	client *genai.Client
	logger *zap.Logger
}

// NewClient builds a Gemini-backed provider. The key stays inside the SDK
// client and is never logged.
func NewClient(name, model, key string, logger *zap.Logger) (*Client, error) {
	genaiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Client{
		name:   name,
		model:  model,
		client: genaiClient,
		logger: logger,
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Generate runs one content generation. Images are referenced by URI.
func (c *Client) Generate(ctx context.Context, conv *llm.Conversation, req llm.Request) (*llm.Response, error) {
	var contents []*genai.Content

	if conv != nil {
		for _, m := range conv.Messages {
			role := "user"
			if m.Role == "assistant" {
				role = "model"
			}
			contents = append(contents, &genai.Content{
				Role:  role,
				Parts: []*genai.Part{{Text: m.GetText()}},
			})
		}
	}

	parts := []*genai.Part{{Text: req.Prompt}}
	for _, url := range req.ImageURLs {
		parts = append(parts, genai.NewPartFromURI(url, "image/jpeg"))
	}
	contents = append(contents, &genai.Content{Role: "user", Parts: parts})

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, wrapError(err)
	}
	latency := time.Since(start)

	resp, err := toResponse(result, c.model, latency)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("gemini completion",
		zap.String("model", c.name),
		zap.Duration("latency", latency),
	)

	return resp, nil
}

// toResponse maps a generation result onto the neutral response type. The
// original payload is preserved in Raw for debugging, as the other backends do.
func toResponse(result *genai.GenerateContentResponse, model string, latency time.Duration) (*llm.Response, error) {
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, &llm.RequestError{Err: errors.New("no completions returned")}
	}

	raw, _ := json.Marshal(result)

	resp := &llm.Response{
		Text:      text,
		Model:     model,
		LatencyMs: latency.Milliseconds(),
		Raw:       raw,
	}

	if result.UsageMetadata != nil {
		resp.Usage = &llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}

	return resp, nil
}

func wrapError(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return &llm.RequestError{Status: apierr.Code, Err: err}
	}
	return &llm.RequestError{Err: err}
}
