// Package provider defines the model backend interface and the factory that
// maps configured provider kinds onto concrete clients. The retry adapter in
// this package wraps any backend with rate-limited, backoff-based retries.
package provider

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/config"
	"github.com/sightlinelabs/vizbench/pkg/llm"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider/anthropic"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider/gemini"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider/ollama"
	"github.com/sightlinelabs/vizbench/pkg/llm/provider/openai"
)

var (
	// ErrUnknownProvider means the configured provider kind has no backend.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingCredentials means a hosted provider was configured without
	// an API key.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrInvalidResponse means the provider answered but the response is
	// unusable (e.g. empty text). Not retried.
	ErrInvalidResponse = errors.New("invalid provider response")

	// ErrProviderUnavailable means every retry attempt failed transiently.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Provider generates a model response for one conversation.
type Provider interface {
	// Name returns the configured model name used for rate limiting
	// and result labeling.
	Name() string

	// Generate runs one request against the backend. The conversation
	// carries any prior turns; most evaluations use a fresh one.
	Generate(ctx context.Context, conv *llm.Conversation, req llm.Request) (*llm.Response, error)
}

// New builds the backend for one configured model. The key is the opaque
// provider credential; it is held by the client and never logged.
func New(cfg config.ModelConfig, key string, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		if key == "" {
			return nil, fmt.Errorf("%w: model %q needs an openai API key", ErrMissingCredentials, cfg.Name)
		}
		return openai.NewClient(cfg.Name, cfg.Model, key, logger), nil

	case "anthropic":
		if key == "" {
			return nil, fmt.Errorf("%w: model %q needs an anthropic API key", ErrMissingCredentials, cfg.Name)
		}
		return anthropic.NewClient(cfg.Name, cfg.Model, key, logger), nil

	case "gemini":
		if key == "" {
			return nil, fmt.Errorf("%w: model %q needs a gemini API key", ErrMissingCredentials, cfg.Name)
		}
		return gemini.NewClient(cfg.Name, cfg.Model, key, logger)

	case "ollama":
		return ollama.NewClient(cfg.Name, cfg.Model, cfg.Target, logger), nil

	default:
		return nil, fmt.Errorf("%w: %q (model %q)", ErrUnknownProvider, cfg.Provider, cfg.Name)
	}
}
