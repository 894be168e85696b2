package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// Quote is an immutable priced trade intent. It is created once by the
// quoting step, may be executed at most once by its intended executor, and
// becomes permanently invalid after expiry or first successful execution.
type Quote struct {
	ID         uuid.UUID    `json:"id"`
	Instrument InstrumentID `json:"instrument"`

	Direction TradeDirection `json:"direction"`
	TokenIn   string         `json:"token_in"`
	TokenOut  string         `json:"token_out"`

	AmountIn     sdkmath.Int `json:"amount_in"`
	MinAmountOut sdkmath.Int `json:"min_amount_out"`

	// ExecutionPrice is the price agreed at quoting time (WAD, quote-per-base).
	ExecutionPrice sdkmath.Int `json:"execution_price"`

	// OraclePrice and OracleTimestamp snapshot the reference price the quote
	// was built against; drift is measured from this snapshot at execution.
	OraclePrice     sdkmath.Int `json:"oracle_price"`
	OracleTimestamp time.Time   `json:"oracle_timestamp"`

	ExpiryHeight uint64 `json:"expiry_height"`
	Executor     string `json:"executor"`

	// MaxDeviationBps bounds oracle drift and execution-price deviation.
	// Zero means "use the engine's configured default".
	MaxDeviationBps int64 `json:"max_deviation_bps"`
}

// Validation reason strings. These are part of the contract: callers match
// on them to tell the user why a quote was refused.
const (
	ReasonNotIntendedUser  = "Not intended user"
	ReasonQuoteAlreadyUsed = "Quote already used"
	ReasonQuoteExpired     = "Quote expired"
	ReasonOracleDrifted    = "Oracle drifted"
	ReasonPriceOutOfBounds = "Execution price out of bounds"
)

// ValidationResult is the structured outcome of a validate-only entry point.
// Execute paths re-run the same checks and abort instead.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

func Invalid(reason string) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason}
}
