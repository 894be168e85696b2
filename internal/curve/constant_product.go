/*

Constant-product bonding curve math. The invariant x*y=k is the settlement
layer's pricing primitive; the spread engine quotes against the oracle price
and this curve only realizes the swap. Fees are taken from the input amount
in basis points before the invariant is applied.

*/

package curve

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/wadmath"
)

var (
	ErrEmptyReserve  = errors.New("pool reserve is empty")
	ErrInvalidFee    = errors.New("fee must be below 10000 bps")
	ErrInvalidAmount = errors.New("amount must be non-negative")
)

// AmountOut returns the output of swapping amountIn against reserves
// (reserveIn, reserveOut) under x*y=k with feeBps taken from the input.
// Truncation works in the pool's favor, so the invariant never decreases.
func AmountOut(amountIn, reserveIn, reserveOut sdkmath.Int, feeBps int64) (sdkmath.Int, error) {
	if feeBps < 0 || feeBps >= wadmath.BpsDenom {
		return sdkmath.Int{}, ErrInvalidFee
	}
	if amountIn.IsNil() || amountIn.IsNegative() {
		return sdkmath.Int{}, ErrInvalidAmount
	}
	if amountIn.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if reserveIn.IsNil() || reserveIn.IsZero() || reserveOut.IsNil() || reserveOut.IsZero() {
		return sdkmath.Int{}, ErrEmptyReserve
	}

	effectiveIn, err := wadmath.PortionBps(amountIn, int64(wadmath.BpsDenom)-feeBps)
	if err != nil {
		return sdkmath.Int{}, err
	}

	// out = reserveOut * effIn / (reserveIn + effIn)
	newReserveIn, err := wadmath.Add(reserveIn, effectiveIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return wadmath.MulDiv(reserveOut, effectiveIn, newReserveIn)
}

// SpotPrice returns reserveQuote/reserveBase in WAD, the curve's marginal
// price of the base asset.
func SpotPrice(reserveBase, reserveQuote sdkmath.Int) (sdkmath.Int, error) {
	if reserveBase.IsNil() || reserveBase.IsZero() {
		return sdkmath.Int{}, ErrEmptyReserve
	}
	if reserveQuote.IsNil() || reserveQuote.IsNegative() {
		return sdkmath.Int{}, ErrInvalidAmount
	}
	return wadmath.DivWad(reserveQuote, reserveBase)
}
