package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/llm"
	"github.com/sightlinelabs/vizbench/pkg/ratelimit"
)

// RetryPolicy bounds the retry adapter.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts uint

	// InitialInterval seeds the exponential backoff.
	InitialInterval time.Duration

	// MaxInterval caps the backoff growth.
	MaxInterval time.Duration

	// AttemptTimeout bounds each individual network call. Zero disables
	// the per-attempt deadline.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy mirrors the behavior of the original evaluation runs:
// up to five attempts with jittered exponential backoff capped at a minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     time.Minute,
		AttemptTimeout:  2 * time.Minute,
	}
}

// WithRetry wraps a provider with rate-limited retries. A rate token is
// acquired before every attempt, including retries, so backoff never lets a
// model exceed its configured budget. Transient failures are retried with
// jittered exponential backoff; fatal ones surface immediately.
func WithRetry(p Provider, limiter *ratelimit.Registry, policy RetryPolicy, logger *zap.Logger) Provider {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 1
	}

	return &retrying{
		inner:   p,
		limiter: limiter,
		policy:  policy,
		logger:  logger,
	}
}

type retrying struct {
	inner   Provider
	limiter *ratelimit.Registry
	policy  RetryPolicy
	logger  *zap.Logger
}

func (r *retrying) Name() string {
	return r.inner.Name()
}

func (r *retrying) Generate(ctx context.Context, conv *llm.Conversation, req llm.Request) (*llm.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.InitialInterval
	bo.MaxInterval = r.policy.MaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error

	for attempt := uint(1); attempt <= r.policy.MaxAttempts; attempt++ {
		if err := r.limiter.Acquire(ctx, r.inner.Name()); err != nil {
			return nil, err
		}

		resp, err := r.generateOnce(ctx, conv, req)
		if err == nil {
			if strings.TrimSpace(resp.Text) == "" {
				return nil, fmt.Errorf("%w: model %q returned empty text", ErrInvalidResponse, r.inner.Name())
			}
			return resp, nil
		}

		// A canceled parent context is a stop request, not a flaky call.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !Transient(err) {
			return nil, err
		}

		lastErr = err

		if attempt == r.policy.MaxAttempts {
			break
		}

		wait := bo.NextBackOff()
		r.logger.Warn("provider attempt failed, backing off",
			zap.String("model", r.inner.Name()),
			zap.Uint("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: model %q failed after %d attempts: %v",
		ErrProviderUnavailable, r.inner.Name(), r.policy.MaxAttempts, lastErr)
}

// generateOnce runs a single attempt under the per-attempt deadline.
func (r *retrying) generateOnce(ctx context.Context, conv *llm.Conversation, req llm.Request) (*llm.Response, error) {
	if r.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.AttemptTimeout)
		defer cancel()
	}

	return r.inner.Generate(ctx, conv, req)
}
