package store

import "errors"

// Failure taxonomy for one polling cycle. None of these are fatal to the
// process; they decide whether a cycle aborts, skips a market, or skips a
// wallet.
var (
	// ErrSourceUnavailable means the market list itself could not be
	// fetched. The whole cycle aborts and retries next tick.
	ErrSourceUnavailable = errors.New("market source unavailable")

	// ErrTradeFetchFailed means a single market's trades could not be
	// fetched. That market is skipped; the cycle continues.
	ErrTradeFetchFailed = errors.New("trade fetch failed")

	// ErrProfileUnavailable means a wallet's history lookup failed. The
	// wallet is skipped for this cycle rather than scored as novel.
	ErrProfileUnavailable = errors.New("wallet profile unavailable")

	// ErrMalformedRecord means a trade or profile record was missing
	// required fields and was dropped.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrCycleRunning means a cycle was requested while the previous one
	// had not finished. Overlapping cycles are disallowed.
	ErrCycleRunning = errors.New("cycle already running")
)
