package reqx

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the rate limiter rejects an attempt in
// fail-fast mode.
var ErrRateLimited = errors.New("reqx: client-side rate limit exceeded")

// RateLimitConfig throttles attempts leaving the client. Every physical
// attempt consumes a token, so retries and redirect hops are throttled
// individually.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained token refill rate.
	RequestsPerSecond float64

	// Burst is the bucket size. Defaults to 1 when zero.
	Burst int

	// WaitOnLimit blocks for a token (honoring the request context)
	// instead of failing fast with ErrRateLimited.
	WaitOnLimit bool
}

type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
	wait    bool
}

func newRateLimitTransport(next http.RoundTripper, cfg RateLimitConfig) http.RoundTripper {
	if cfg.RequestsPerSecond <= 0 {
		return next
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitTransport{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		wait:    cfg.WaitOnLimit,
	}
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.wait {
		if err := t.limiter.Wait(req.Context()); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, ErrRateLimited
		}
	} else if !t.limiter.Allow() {
		return nil, ErrRateLimited
	}
	return t.next.RoundTrip(req)
}
