// Package anthropic implements the model backend for Anthropic Claude models.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/llm"
)

// defaultMaxTokens applies when the request does not set a cap; the
// Anthropic API requires one.
const defaultMaxTokens = 1024

// Client talks to the Anthropic messages API.
type Client struct {
	name   string
	model  string
	client anthropic.Client
	logger *zap.Logger
}

// NewClient builds an Anthropic-backed provider. The key stays inside the
// SDK client and is never logged.
func NewClient(name, model, key string, logger *zap.Logger) *Client {
	return &Client{
		name:   name,
		model:  model,
		client: anthropic.NewClient(option.WithAPIKey(key)),
		logger: logger,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Generate runs one message request. Images are passed as URL source blocks;
// the API fetches them server-side.
func (c *Client) Generate(ctx context.Context, conv *llm.Conversation, req llm.Request) (*llm.Response, error) {
	var messages []anthropic.MessageParam

	if conv != nil {
		for _, m := range conv.Messages {
			block := anthropic.NewTextBlock(m.GetText())
			if m.Role == "assistant" {
				messages = append(messages, anthropic.NewAssistantMessage(block))
			} else {
				messages = append(messages, anthropic.NewUserMessage(block))
			}
		}
	}

	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(req.Prompt),
	}
	for _, url := range req.ImageURLs {
		blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: url}))
	}
	messages = append(messages, anthropic.NewUserMessage(blocks...))

	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.SystemPrompt, Type: "text"},
		}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	latency := time.Since(start)

	var text string
	for _, content := range message.Content {
		if content.Type == "text" {
			text = content.Text
			break
		}
	}
	if text == "" {
		return nil, &llm.RequestError{Err: errors.New("no text content returned")}
	}

	c.logger.Debug("anthropic completion",
		zap.String("model", c.name),
		zap.Duration("latency", latency),
	)

	raw, _ := json.Marshal(message)

	return &llm.Response{
		Text:       strings.TrimSpace(text),
		Model:      string(message.Model),
		StopReason: string(message.StopReason),
		Usage: &llm.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
		LatencyMs: latency.Milliseconds(),
		Raw:       raw,
	}, nil
}

func wrapError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &llm.RequestError{Status: apierr.StatusCode, Err: err}
	}
	return &llm.RequestError{Err: err}
}
