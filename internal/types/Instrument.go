/*

Core domain types for the hybrid liquidity engine. One Instrument is one
trading pair backed by a base/quote reserve pair; all prices are WAD-scaled
and oriented as quote units per base unit throughout the engine.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type InstrumentID uint64

// TradeDirection is the side of the trade from the user's perspective.
type TradeDirection int

const (
	// DirectionBuy: the user gives the quote asset and receives the base asset.
	DirectionBuy TradeDirection = iota
	// DirectionSell: the user gives the base asset and receives the quote asset.
	DirectionSell
)

func (d TradeDirection) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return "unknown"
	}
}

// VolatilitySnapshot is a read-only view of the two-speed EWMA state after an
// update (or a preview of what an update would produce).
type VolatilitySnapshot struct {
	FastAverage  sdkmath.Int `json:"fast_average"`
	SlowAverage  sdkmath.Int `json:"slow_average"`
	FastVariance sdkmath.Int `json:"fast_variance"`
	SlowVariance sdkmath.Int `json:"slow_variance"`
	DeviationBps sdkmath.Int `json:"deviation_bps"` // between the two averages
	UpdatedAt    time.Time   `json:"updated_at"`
}

// SpreadConfig holds the spread coefficients as WAD fractions.
// Mutated only through the authorized configuration surface.
type SpreadConfig struct {
	KVol      sdkmath.Int `json:"k_vol"`      // multiplier on max(fastVar, slowVar)
	KImpact   sdkmath.Int `json:"k_impact"`   // multiplier on amountIn/reserveIn
	MaxSpread sdkmath.Int `json:"max_spread"` // hard ceiling on the total spread
}

// SpreadBreakdown reports the spread components separately so callers and
// tests can see where the total came from, not only the final number.
type SpreadBreakdown struct {
	VolSpread    sdkmath.Int `json:"vol_spread"`
	ImpactSpread sdkmath.Int `json:"impact_spread"`
	TotalSpread  sdkmath.Int `json:"total_spread"`
	Capped       bool        `json:"capped"`
}

// TradeQuote is the priced result of a spread computation applied to a
// reference price, before any settlement happens.
type TradeQuote struct {
	Direction      TradeDirection `json:"direction"`
	ReferencePrice sdkmath.Int    `json:"reference_price"`
	ExecutionPrice sdkmath.Int    `json:"execution_price"`
	AmountIn       sdkmath.Int    `json:"amount_in"`
	AmountOut      sdkmath.Int    `json:"amount_out"`
	Spread         SpreadBreakdown `json:"spread"`
}
