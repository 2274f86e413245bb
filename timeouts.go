package x402f

import (
	"fmt"
	"time"
)

// TimeoutConfig bounds the three deadlines spec §5 names explicitly:
// per-verify, per-settle, and the outer per-request budget a caller's own
// context should carry. internal/config seeds Config.Timeouts with
// DefaultTimeouts (no environment variable is bound to them);
// internal/httpapi applies VerifyTimeout/SettleTimeout around the
// corresponding engine calls.
type TimeoutConfig struct {
	VerifyTimeout  time.Duration
	SettleTimeout  time.Duration
	RequestTimeout time.Duration
}

// DefaultTimeouts matches the teacher's FacilitatorClient defaults (5s
// verify, 60s settle — a settlement waits on a mined transaction, a verify
// never touches the chain) plus a 120s outer request budget.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  5 * time.Second,
	SettleTimeout:  60 * time.Second,
	RequestTimeout: 120 * time.Second,
}

// Validate reports a malformed TimeoutConfig: any non-positive duration, or
// a settle timeout shorter than the verify timeout (settlement always does
// everything verification does, plus on-chain work).
func (c TimeoutConfig) Validate() error {
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("timeouts: verify timeout must be positive, got %s", c.VerifyTimeout)
	}
	if c.SettleTimeout <= 0 {
		return fmt.Errorf("timeouts: settle timeout must be positive, got %s", c.SettleTimeout)
	}
	if c.SettleTimeout < c.VerifyTimeout {
		return fmt.Errorf("timeouts: settle timeout (%s) must be >= verify timeout (%s)", c.SettleTimeout, c.VerifyTimeout)
	}
	return nil
}

// WithVerifyTimeout returns a copy of c with VerifyTimeout replaced.
func (c TimeoutConfig) WithVerifyTimeout(d time.Duration) TimeoutConfig {
	c.VerifyTimeout = d
	return c
}

// WithSettleTimeout returns a copy of c with SettleTimeout replaced.
func (c TimeoutConfig) WithSettleTimeout(d time.Duration) TimeoutConfig {
	c.SettleTimeout = d
	return c
}

// WithRequestTimeout returns a copy of c with RequestTimeout replaced.
func (c TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	c.RequestTimeout = d
	return c
}
