package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/prediction-market/callindexor/internal/common"
	"github.com/prediction-market/callindexor/internal/logger"
)

// RetryPolicy is a fixed-delay retry policy. A failing operation runs at most
// MaxRetries+1 times with Delay between attempts.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// retryableError reports whether an error looks transient (network, timeout,
// throttling or gateway failures).
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit") {
		return true
	}

	if strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}

	return false
}

// Retry runs fn until it succeeds or the policy is exhausted, in which case a
// *FetchError is returned. Context cancellation ends the loop immediately.
// A "too many results" error is returned as is, since repeating the same
// query cannot succeed.
func Retry(ctx context.Context, chain common.Chain, op string, policy RetryPolicy,
	log *logger.Logger, fn func(ctx context.Context) error) error {
	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled before attempt %d: %w", op, attempt, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s cancelled: %w", op, ctxErr)
		}
		if ok, _ := IsTooManyResultsError(err); ok {
			return err
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		log.Warnw("fetch failed, retrying",
			"chain", chain,
			"operation", op,
			"attempt", attempt,
			"max_retries", policy.MaxRetries,
			"retry_delay", policy.Delay,
			"transient", retryableError(err),
			"error", err)
		RPCRetryInc(chain, op)

		if policy.Delay > 0 {
			timer := time.NewTimer(policy.Delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s cancelled during retry delay: %w", op, ctx.Err())
			}
		}
	}

	return &FetchError{Chain: chain, Op: op, Attempts: attempts, Err: lastErr}
}
