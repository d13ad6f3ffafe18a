// Package ratelimit provides per-model request throttling backed by
// token buckets. One limiter exists per configured model; every provider
// attempt must acquire a token before the network call goes out.
package ratelimit

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sightlinelabs/vizbench/pkg/config"
)

// Registry holds one token-bucket limiter per model name.
type Registry struct {
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// NewRegistry builds limiters for every configured model. The sustained rate
// is requests_per_minute spread evenly across the minute; the burst stays at
// one so request starts are spaced rather than front-loaded.
func NewRegistry(models []config.ModelConfig, logger *zap.Logger) (*Registry, error) {
	limiters := make(map[string]*rate.Limiter, len(models))

	for _, m := range models {
		if m.RequestsPerMinute < 1 {
			return nil, fmt.Errorf("model %q: requests_per_minute must be at least 1", m.Name)
		}
		if _, ok := limiters[m.Name]; ok {
			return nil, fmt.Errorf("duplicate model name %q", m.Name)
		}

		limiters[m.Name] = rate.NewLimiter(rate.Limit(float64(m.RequestsPerMinute)/60.0), 1)

		logger.Debug("registered rate limiter",
			zap.String("model", m.Name),
			zap.Uint("requests_per_minute", m.RequestsPerMinute),
		)
	}

	return &Registry{limiters: limiters, logger: logger}, nil
}

// Acquire blocks until the model's bucket grants a token or ctx is done.
// Asking for an unregistered model is a wiring bug and returns an error.
func (r *Registry) Acquire(ctx context.Context, model string) error {
	limiter, ok := r.limiters[model]
	if !ok {
		return fmt.Errorf("no rate limiter registered for model %q", model)
	}

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("acquiring rate token for %q: %w", model, err)
	}

	return nil
}

// Limit returns the configured sustained rate for a model in tokens per
// second. Zero for unregistered models.
func (r *Registry) Limit(model string) float64 {
	limiter, ok := r.limiters[model]
	if !ok {
		return 0
	}
	return float64(limiter.Limit())
}
