package provider

import (
	"context"
	"errors"
	"net"

	"github.com/sightlinelabs/vizbench/pkg/llm"
)

// Transient reports whether a provider failure is worth retrying.
// Throttling (429), request timeouts (408), and server-side errors (5xx)
// are transient, as are network failures and per-attempt deadline expiry.
// Everything else (auth failures, malformed requests) is fatal.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var reqErr *llm.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Status == 408, reqErr.Status == 429:
			return true
		case reqErr.Status >= 500:
			return true
		case reqErr.Status == 0:
			// No HTTP response at all: connection trouble.
			return true
		default:
			return false
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
