// Package ollama implements the model backend for local Ollama servers.
// Ollama's chat API takes images as base64 payloads rather than URLs, so
// image URLs are fetched and encoded before dispatch.
package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/llm"
)

const defaultBaseURL = "http://localhost:11434"

// maxImageBytes caps a fetched image payload.
const maxImageBytes = 20 << 20

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

// Client talks to an Ollama server's chat API.
type Client struct {
	name       string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds an Ollama-backed provider. An empty baseURL targets the
// conventional localhost port.
func NewClient(name, model, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		name:       name,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 300 * time.Second},
		logger:     logger,
	}
}

func (c *Client) Name() string {
	return c.name
}

// Generate runs one non-streaming chat request.
func (c *Client) Generate(ctx context.Context, conv *llm.Conversation, req llm.Request) (*llm.Response, error) {
	var messages []chatMessage

	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}

	if conv != nil {
		for _, m := range conv.Messages {
			messages = append(messages, chatMessage{Role: m.Role, Content: m.GetText()})
		}
	}

	images, err := c.fetchImages(ctx, req.ImageURLs)
	if err != nil {
		return nil, err
	}

	messages = append(messages, chatMessage{
		Role:    "user",
		Content: req.Prompt,
		Images:  images,
	})

	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &llm.RequestError{Err: err}
	}
	defer httpResp.Body.Close()

	latency := time.Since(start)

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &llm.RequestError{Status: httpResp.StatusCode, Err: err}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &llm.RequestError{
			Status: httpResp.StatusCode,
			Err:    fmt.Errorf("ollama chat: %s", strings.TrimSpace(string(respBody))),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &llm.RequestError{Status: httpResp.StatusCode, Err: fmt.Errorf("parsing chat response: %w", err)}
	}

	if parsed.Message.Content == "" {
		return nil, &llm.RequestError{Err: errors.New("no completions returned")}
	}

	c.logger.Debug("ollama completion",
		zap.String("model", c.name),
		zap.Duration("latency", latency),
	)

	return &llm.Response{
		Text:  strings.TrimSpace(parsed.Message.Content),
		Model: parsed.Model,
		Usage: &llm.Usage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
		LatencyMs: latency.Milliseconds(),
		Raw:       respBody,
	}, nil
}

// fetchImages downloads each URL and returns base64 payloads.
func (c *Client) fetchImages(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	images := make([]string, 0, len(urls))
	for _, url := range urls {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building image request for %s: %w", url, err)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, &llm.RequestError{Err: fmt.Errorf("fetching image %s: %w", url, err)}
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
		resp.Body.Close()
		if err != nil {
			return nil, &llm.RequestError{Status: resp.StatusCode, Err: fmt.Errorf("reading image %s: %w", url, err)}
		}

		if resp.StatusCode != http.StatusOK {
			return nil, &llm.RequestError{
				Status: resp.StatusCode,
				Err:    fmt.Errorf("fetching image %s: status %d", url, resp.StatusCode),
			}
		}

		images = append(images, base64.StdEncoding.EncodeToString(data))
	}

	return images, nil
}
