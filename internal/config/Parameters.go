/*

This file contains the default parameters for the engine.

These values are used if no active parameter set is found in the database
during initialization. They are calibrated for a liquid major pair; thinner
instruments want a wider max spread and a higher volatility threshold.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

// wadFrac builds a WAD fraction num/denom for readable defaults.
func wadFrac(num, denom int64) sdkmath.Int {
	return wadmath.WAD.MulRaw(num).QuoRaw(denom)
}

// DefaultParameters provides a baseline parameter set for the engine.
var DefaultParameters = types.Parameters{
	// --- Spread ---
	KVol:      wadFrac(1, 1),   // pass variance through 1:1
	KImpact:   wadFrac(1, 1),   // spread grows linearly with size/reserve
	MaxSpread: wadFrac(1, 50),  // hard cap at 2%

	// --- Volatility ---
	FastDecay:              wadFrac(1, 10),  // fast line takes 10% of each new price
	SlowDecay:              wadFrac(1, 100), // slow line takes 1%
	VolatilityThresholdBps: 300,             // halt trading when the lines diverge 3%

	// --- Quote validation ---
	DefaultMaxDeviationBps: 100, // quotes without an own bound get 1%

	// --- Trade limits ---
	MinTradeSize:  wadmath.WAD, // 1.0 in WAD; dust trades are not worth a cycle
	TradeCooldown: 5 * time.Second,

	// --- Yield tracking ---
	MinTrackingPeriod: time.Hour, // annualized yield is noise below this
	MaxSaneYieldBps:   100_000,   // 1000% APR; anything above is bad data

	// --- Rebalance policy ---
	Rebalance: types.RebalancePolicy{
		ThresholdBps:  100,           // move only for a >1% yield edge
		MinInterval:   6 * time.Hour, // bridge moves are expensive, don't thrash
		MaxPortionBps: 1000,          // at most 10% of the losing side per move
	},
}
