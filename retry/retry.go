// Package retry provides generic retry logic with exponential backoff for the
// RPC-bound lookups the facilitator makes outside the Settlement Engine's own
// state machine: gas price reads, USD price feeds, and on-chain balance
// checks (internal/gasoracle, internal/priceoracle, internal/balance). It
// uses Go generics for type-safe retry operations and respects context
// cancellation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	x402f "github.com/x402labs/facilitator"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts  int           // Maximum number of attempts (including initial attempt)
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultConfig provides sensible defaults for retry operations.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// IsRetryable determines if an error should trigger a retry.
type IsRetryable func(error) bool

// WithRetry executes a function with retry logic using generics for type safety.
// It applies exponential backoff with configurable parameters and respects context cancellation.
func WithRetry[T any](
	ctx context.Context,
	config Config,
	isRetryable IsRetryable,
	fn func() (T, error),
) (T, error) {
	var zero T
	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		// Check context before attempt
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Check if error is retryable
		if !isRetryable(err) {
			return zero, err
		}

		// Don't sleep after last attempt
		if attempt < config.MaxAttempts-1 {
			// Apply exponential backoff
			select {
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * config.Multiplier)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// WithSimpleRetry uses default configuration for retry operations.
func WithSimpleRetry[T any](
	ctx context.Context,
	fn func() (T, error),
	isRetryable IsRetryable,
) (T, error) {
	return WithRetry(ctx, DefaultConfig, isRetryable, fn)
}

// IsInfraError is the IsRetryable the oracle and balance clients pass by
// default. It draws the line x402f.errors.go documents between infra
// sentinels (errors.go: "never surfaced as ErrorReason strings") and
// business-outcome errors: an RPC node dropping a connection or a signer
// pool running dry is worth retrying, but a *x402f.SettlementError will fail
// identically on the next attempt, so retrying it only burns the attempt
// budget. No other error is recognized as deliberate: a plain error from an
// upstream call (a 400 from a price feed, say) is retried like any other.
func IsInfraError(err error) bool {
	if err == nil {
		return false
	}
	var settleErr *x402f.SettlementError
	if errors.As(err, &settleErr) {
		return false
	}
	// Everything else — a dropped ethclient connection, a price feed's HTTP
	// client timing out, signerpool.Pool.Acquire's "no signer available" — is a
	// transport-level failure worth retrying.
	return true
}
