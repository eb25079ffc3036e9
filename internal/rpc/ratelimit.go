package rpc

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outgoing RPC requests of one poller.
// A nil *RateLimiter never blocks.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns a limiter allowing rps requests per second with the given burst.
// It returns nil when rps is not positive.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may be sent or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
