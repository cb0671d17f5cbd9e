package domain

import "errors"

// Validation errors: user input, never logged as server errors, surfaced
// verbatim to the API caller.
var (
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidExpiry   = errors.New("invalid expiry")
	ErrUnknownSide     = errors.New("unknown side")
)

// Conflict / not-found errors: state checks, surfaced as-is.
var (
	ErrDuplicateID     = errors.New("duplicate order id")
	ErrAlreadyTerminal = errors.New("order already terminal")
	ErrMarketPaused    = errors.New("market paused")
	ErrNotFound        = errors.New("order not found")
	ErrNotOwner        = errors.New("not order owner")
	ErrExpired         = errors.New("order already expired")
	ErrNoLiquidity     = errors.New("no liquidity for market order")
	ErrNoTrades        = errors.New("no trades yet")
)

// ErrFatal-class: the process must stop accepting writes and report
// unhealthy. ErrJournalWrite itself never reaches an API caller — it only
// annotates the underlying cause in logs and in the wrapped error an engine
// returns internally. Once a journal append fails, the engine trips into
// the halted state and every subsequent call (including the one that hit
// the failure) surfaces ErrEngineHalted instead.
var (
	ErrJournalWrite        = errors.New("journal write failed")
	ErrEngineHalted        = errors.New("engine halted after journal write failure")
	ErrBookInvariant       = errors.New("order book invariant violated")
	ErrReconciliationFault = errors.New("reconciliation mismatch after recovery")
)
