/*

This file contains the tunable parameters for the engine's pricing and
capital-allocation behavior. Different sets can exist for different market
regimes; the active set is versioned and persisted.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// Parameters holds every operator-tunable knob of the engine. Mutations go
// through the authorized configuration surface only, and each setter
// validates its bound before committing.
type Parameters struct {
	// --- Spread ---
	KVol      sdkmath.Int `json:"k_vol"`      // WAD fraction, multiplier on max variance
	KImpact   sdkmath.Int `json:"k_impact"`   // WAD fraction, multiplier on size/reserve ratio
	MaxSpread sdkmath.Int `json:"max_spread"` // WAD fraction, hard ceiling on total spread

	// --- Volatility ---
	FastDecay              sdkmath.Int `json:"fast_decay"`               // WAD fraction in [MinDecay, MaxDecay)
	SlowDecay              sdkmath.Int `json:"slow_decay"`               // WAD fraction in [MinDecay, MaxDecay)
	VolatilityThresholdBps int64       `json:"volatility_threshold_bps"` // gate trips above this fast/slow divergence

	// --- Quote validation ---
	DefaultMaxDeviationBps int64 `json:"default_max_deviation_bps"` // used when a quote specifies none

	// --- Trade limits ---
	MinTradeSize  sdkmath.Int   `json:"min_trade_size"` // WAD
	TradeCooldown time.Duration `json:"trade_cooldown"` // between trade operations per instrument

	// --- Yield tracking ---
	MinTrackingPeriod time.Duration `json:"min_tracking_period"` // below this, annualized yield reads as zero
	MaxSaneYieldBps   int64         `json:"max_sane_yield_bps"`  // cap against pathological fee/liquidity inputs

	// --- Rebalance policy ---
	Rebalance RebalancePolicy `json:"rebalance"`
}
