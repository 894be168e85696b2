package ledger

import (
	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/types"
)

// Ledger abstracts the settlement layer that actually holds the pool
// reserves. The pricing core never takes custody: it reads reserve levels,
// asks for swaps to be realized, and requests deposits/withdrawals when
// capital moves between the pool and the external venue. Implementations
// must apply each call atomically: either the full effect or none of it.
type Ledger interface {
	// Reserves returns the current base and quote reserve of an instrument.
	Reserves(id types.InstrumentID) (base, quote sdkmath.Int, err error)

	// PreviewSwap computes the output a swap would realize right now without
	// settling anything. Used by the two-phase execute paths to validate the
	// intended effect before any state is touched.
	PreviewSwap(id types.InstrumentID, dir types.TradeDirection, amountIn sdkmath.Int) (sdkmath.Int, error)

	// ExecuteSwap realizes a swap against the liquidity curve and returns
	// the actual output amount after fees. The minimum-output bound is part
	// of the settlement itself: when the realized output would come in below
	// minOut the swap fails with ErrBelowMinimumOut and no reserve moves. A
	// nil minOut means no bound.
	ExecuteSwap(id types.InstrumentID, dir types.TradeDirection, amountIn, minOut sdkmath.Int) (sdkmath.Int, error)

	// Deposit adds capital to the instrument's reserves.
	Deposit(id types.InstrumentID, base, quote sdkmath.Int) error

	// Withdraw removes capital from the instrument's reserves, failing if
	// either side would go negative.
	Withdraw(id types.InstrumentID, base, quote sdkmath.Int) error
}
