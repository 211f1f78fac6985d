package settlement

import "errors"

// Plain sentinel errors for conditions callers branch on
var (
	// ErrUnresolvablePrizeConfig indicates no active prize type exists for a bet type
	ErrUnresolvablePrizeConfig = errors.New("SETTLE_001: no active prize type for bet type")

	// ErrInvalidTier indicates a prize lookup was attempted for a non-winning tier
	ErrInvalidTier = errors.New("SETTLE_002: tier must be greater than 0")

	// ErrInvalidDateRange indicates start is after end or the window is too wide
	ErrInvalidDateRange = errors.New("SETTLE_003: invalid date range")

	// ErrInvalidDrawID indicates a non-positive draw id
	ErrInvalidDrawID = errors.New("SETTLE_004: invalid draw id")

	// ErrLineNotPending indicates a line is already terminal
	ErrLineNotPending = errors.New("SETTLE_005: line is not pending")

	// ErrMalformedLine indicates a line whose shape prevents settlement
	ErrMalformedLine = errors.New("SETTLE_006: malformed ticket line")

	// ErrTicketNotFound indicates a line references a ticket that could not be loaded
	ErrTicketNotFound = errors.New("SETTLE_007: ticket not found")

	// ErrNilStore indicates the engine was built without a store
	ErrNilStore = errors.New("SETTLE_008: store is required")
)
