package types

import "errors"

// Recoverable evaluation errors. Per-trial and per-cycle failures are
// absorbed by the caller; none of these should reach process level.
var (
	// ErrDataUnavailable means a required pool state has not been
	// observed yet. The cycle is skipped, not retried.
	ErrDataUnavailable = errors.New("pool state unavailable")

	// ErrStaleState means the pool state is older than the configured
	// cutoff and cannot be priced against.
	ErrStaleState = errors.New("pool state stale")

	// ErrInsufficientLiquidity means a quote produced no output. The
	// trial loan is skipped; other loan sizes may still be viable.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrExternalCall wraps RPC/quoter timeouts and reverts.
	ErrExternalCall = errors.New("external call failed")
)
