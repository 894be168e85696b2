/*

Spread calculator. Translates the volatility signal and the trade's size
relative to liquidity into a total execution spread, and applies it
directionally to the reference price. The reference price is always oriented
as quote units per base unit; widening the effective price works against the
trader in both directions.

*/

package spread

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

var (
	ErrZeroReferencePrice = errors.New("reference price cannot be zero")
	ErrNoLiquidity        = errors.New("no liquidity available to quote against")
	ErrInvalidConfig      = errors.New("spread config contains invalid values")
)

// MaxSpreadCeiling is the absolute cap any configured maxSpread must stay
// under: 50% in WAD fractional terms.
var MaxSpreadCeiling = wadmath.WadFromFraction(1, 2)

// Calculator computes spreads from a SpreadConfig. It holds no market state
// of its own; the variance and reserves are passed in per call.
type Calculator struct {
	cfg types.SpreadConfig
}

func NewCalculator(cfg types.SpreadConfig) (*Calculator, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg}, nil
}

// ValidateConfig checks the coefficient bounds common to construction and
// the authorized setter path.
func ValidateConfig(cfg types.SpreadConfig) error {
	if cfg.KVol.IsNil() || cfg.KImpact.IsNil() || cfg.MaxSpread.IsNil() {
		return ErrInvalidConfig
	}
	if cfg.KVol.IsNegative() || cfg.KImpact.IsNegative() {
		return ErrInvalidConfig
	}
	if cfg.MaxSpread.IsNegative() || cfg.MaxSpread.GT(MaxSpreadCeiling) {
		return ErrInvalidConfig
	}
	return nil
}

// Config returns the current coefficients.
func (c *Calculator) Config() types.SpreadConfig {
	return c.cfg
}

// Compute derives the total spread for a trade of amountIn against the given
// reserve of the input token. A zero reserve contributes no impact spread
// rather than dividing by zero. The total is clamped to maxSpread no matter
// how large the components grow.
func (c *Calculator) Compute(maxVariance, amountIn, reserveIn sdkmath.Int) (types.SpreadBreakdown, error) {
	if maxVariance.IsNil() || maxVariance.IsNegative() {
		return types.SpreadBreakdown{}, wadmath.ErrNegativeValue
	}

	volSpread, err := wadmath.MulWad(maxVariance, c.cfg.KVol)
	if err != nil {
		return types.SpreadBreakdown{}, err
	}

	impactSpread := sdkmath.ZeroInt()
	if !reserveIn.IsNil() && reserveIn.IsPositive() && !amountIn.IsNil() && amountIn.IsPositive() {
		sized, err := wadmath.MulWad(amountIn, c.cfg.KImpact)
		if err != nil {
			return types.SpreadBreakdown{}, err
		}
		impactSpread, err = wadmath.DivWad(sized, reserveIn)
		if err != nil {
			return types.SpreadBreakdown{}, err
		}
	}

	total, err := wadmath.Add(volSpread, impactSpread)
	if err != nil {
		return types.SpreadBreakdown{}, err
	}
	capped := false
	if total.GT(c.cfg.MaxSpread) {
		total = c.cfg.MaxSpread
		capped = true
	}

	return types.SpreadBreakdown{
		VolSpread:    volSpread,
		ImpactSpread: impactSpread,
		TotalSpread:  total,
		Capped:       capped,
	}, nil
}

// ExecutionPrice applies the spread to the reference price for the given
// direction: buys pay referencePrice*(1+spread), sells receive
// referencePrice*(1-spread).
func ExecutionPrice(referencePrice, totalSpread sdkmath.Int, dir types.TradeDirection) (sdkmath.Int, error) {
	if referencePrice.IsNil() || !referencePrice.IsPositive() {
		return sdkmath.Int{}, ErrZeroReferencePrice
	}
	var factor sdkmath.Int
	var err error
	switch dir {
	case types.DirectionBuy:
		factor, err = wadmath.Add(wadmath.WAD, totalSpread)
	case types.DirectionSell:
		factor, err = wadmath.Sub(wadmath.WAD, totalSpread)
	default:
		return sdkmath.Int{}, errors.New("unknown trade direction")
	}
	if err != nil {
		return sdkmath.Int{}, err
	}
	return wadmath.MulWad(referencePrice, factor)
}

// Quote produces the full priced result for a trade: spread breakdown,
// effective execution price, and the output amount. For a buy the input is
// quote-denominated and the output is amountIn/price; for a sell the input
// is base-denominated and the output is amountIn*price.
//
// A zero trade amount yields a zero output without error. A drained reserve
// on either side yields ErrNoLiquidity, never a division fault.
func (c *Calculator) Quote(
	referencePrice sdkmath.Int,
	dir types.TradeDirection,
	amountIn sdkmath.Int,
	reserveBase, reserveQuote sdkmath.Int,
) (types.TradeQuote, error) {
	if referencePrice.IsNil() || !referencePrice.IsPositive() {
		return types.TradeQuote{}, ErrZeroReferencePrice
	}
	if amountIn.IsNil() || amountIn.IsNegative() {
		return types.TradeQuote{}, wadmath.ErrNegativeValue
	}

	maxVariance := sdkmath.ZeroInt()
	return c.QuoteWithVariance(referencePrice, dir, amountIn, reserveBase, reserveQuote, maxVariance)
}

// QuoteWithVariance is Quote with an explicit volatility signal; Quote is the
// zero-variance convenience used by tests and preview paths.
func (c *Calculator) QuoteWithVariance(
	referencePrice sdkmath.Int,
	dir types.TradeDirection,
	amountIn sdkmath.Int,
	reserveBase, reserveQuote sdkmath.Int,
	maxVariance sdkmath.Int,
) (types.TradeQuote, error) {
	if referencePrice.IsNil() || !referencePrice.IsPositive() {
		return types.TradeQuote{}, ErrZeroReferencePrice
	}
	if amountIn.IsNil() || amountIn.IsNegative() {
		return types.TradeQuote{}, wadmath.ErrNegativeValue
	}

	// The reserve the trader pays into determines the impact spread; the one
	// they drain determines whether the pool can quote at all.
	var reserveIn, reserveOut sdkmath.Int
	switch dir {
	case types.DirectionBuy:
		reserveIn, reserveOut = reserveQuote, reserveBase
	case types.DirectionSell:
		reserveIn, reserveOut = reserveBase, reserveQuote
	default:
		return types.TradeQuote{}, errors.New("unknown trade direction")
	}

	breakdown, err := c.Compute(maxVariance, amountIn, reserveIn)
	if err != nil {
		return types.TradeQuote{}, err
	}
	execPrice, err := ExecutionPrice(referencePrice, breakdown.TotalSpread, dir)
	if err != nil {
		return types.TradeQuote{}, err
	}

	if amountIn.IsZero() {
		return types.TradeQuote{
			Direction:      dir,
			ReferencePrice: referencePrice,
			ExecutionPrice: execPrice,
			AmountIn:       amountIn,
			AmountOut:      sdkmath.ZeroInt(),
			Spread:         breakdown,
		}, nil
	}
	if reserveOut.IsNil() || reserveOut.IsZero() {
		return types.TradeQuote{}, ErrNoLiquidity
	}

	var amountOut sdkmath.Int
	switch dir {
	case types.DirectionBuy:
		amountOut, err = wadmath.DivWad(amountIn, execPrice)
	case types.DirectionSell:
		amountOut, err = wadmath.MulWad(amountIn, execPrice)
	}
	if err != nil {
		return types.TradeQuote{}, err
	}

	return types.TradeQuote{
		Direction:      dir,
		ReferencePrice: referencePrice,
		ExecutionPrice: execPrice,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		Spread:         breakdown,
	}, nil
}
