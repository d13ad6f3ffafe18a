// Package openai implements the model backend for OpenAI chat models.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/llm"
)

// Client talks to the OpenAI chat completions API.
type Client struct {
	name   string
	model  string
	client openai.Client
	logger *zap.Logger
}

// NewClient builds an OpenAI-backed provider. The key stays inside the SDK
// client and is never logged.
func NewClient(name, model, key string, logger *zap.Logger) *Client {
	return &Client{
		name:   name,
		model:  model,
		client: openai.NewClient(option.WithAPIKey(key)),
		logger: logger,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Generate runs one chat completion. Conversation history is replayed before
// the request's prompt and images.
func (c *Client) Generate(ctx context.Context, conv *llm.Conversation, req llm.Request) (*llm.Response, error) {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	if conv != nil {
		for _, m := range conv.Messages {
			switch m.Role {
			case "assistant":
				messages = append(messages, openai.AssistantMessage(m.GetText()))
			default:
				messages = append(messages, openai.UserMessage(m.GetText()))
			}
		}
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
	}
	for _, url := range req.ImageURLs {
		parts = append(parts, openai.ImageContentPart(
			openai.ChatCompletionContentPartImageImageURLParam{URL: url},
		))
	}
	messages = append(messages, openai.UserMessage(parts))

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	latency := time.Since(start)

	if len(resp.Choices) == 0 {
		return nil, &llm.RequestError{Err: errors.New("no completions returned")}
	}

	c.logger.Debug("openai completion",
		zap.String("model", c.name),
		zap.Duration("latency", latency),
	)

	raw, _ := json.Marshal(resp)

	return &llm.Response{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:      resp.Model,
		StopReason: string(resp.Choices[0].FinishReason),
		Usage: &llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		LatencyMs: latency.Milliseconds(),
		Raw:       raw,
	}, nil
}

// wrapError lifts SDK errors into llm.RequestError so the retry layer can
// classify them by HTTP status.
func wrapError(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return &llm.RequestError{Status: apierr.StatusCode, Err: err}
	}
	return &llm.RequestError{Err: err}
}
