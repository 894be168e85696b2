package spread

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

func wad(n int64) sdkmath.Int {
	return wadmath.WAD.MulRaw(n)
}

func newCalc(t *testing.T, cfg types.SpreadConfig) *Calculator {
	t.Helper()
	c, err := NewCalculator(cfg)
	require.NoError(t, err)
	return c
}

func baseConfig() types.SpreadConfig {
	return types.SpreadConfig{
		KVol:      wadmath.WadFromFraction(1, 1),   // 1.0
		KImpact:   wadmath.WadFromFraction(1, 100), // 0.01
		MaxSpread: wadmath.WadFromFraction(1, 2),   // 50%
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxSpread = wadmath.WadFromFraction(3, 4) // above the 50% ceiling
	_, err := NewCalculator(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = baseConfig()
	cfg.KVol = sdkmath.NewInt(-1)
	assert.ErrorIs(t, ValidateConfig(cfg), ErrInvalidConfig)

	assert.NoError(t, ValidateConfig(baseConfig()))
}

// Reserves (100, 150), kVol=0, trade amount 10 on the 100-side, kImpact=1%:
// impactSpread = 10*0.01/100 = 0.001 (10 bps) and totalSpread = 10 bps.
func TestImpactSpreadScenario(t *testing.T) {
	cfg := baseConfig()
	cfg.KVol = sdkmath.ZeroInt()
	c := newCalc(t, cfg)

	breakdown, err := c.Compute(sdkmath.ZeroInt(), wad(10), wad(100))
	require.NoError(t, err)

	tenBps := wadmath.WadFromFraction(1, 1000)
	assert.True(t, breakdown.VolSpread.IsZero())
	assert.Equal(t, tenBps.String(), breakdown.ImpactSpread.String())
	assert.Equal(t, tenBps.String(), breakdown.TotalSpread.String())
	assert.False(t, breakdown.Capped)
}

func TestSpreadMonotonicInTradeSize(t *testing.T) {
	c := newCalc(t, baseConfig())

	prev := sdkmath.ZeroInt()
	for _, amount := range []int64{0, 1, 5, 20, 80} {
		b, err := c.Compute(wad(2), wad(amount), wad(100))
		require.NoError(t, err)
		assert.True(t, b.TotalSpread.GTE(prev), "spread must be non-decreasing in size")
		prev = b.TotalSpread
	}
}

func TestSpreadMonotonicInVariance(t *testing.T) {
	c := newCalc(t, baseConfig())

	prev := sdkmath.ZeroInt()
	for _, variance := range []int64{0, 1, 10, 100} {
		b, err := c.Compute(wadmath.WadFromFraction(variance, 1000), wad(1), wad(100))
		require.NoError(t, err)
		assert.True(t, b.TotalSpread.GTE(prev), "spread must be non-decreasing in variance")
		prev = b.TotalSpread
	}
}

func TestSpreadCap(t *testing.T) {
	c := newCalc(t, baseConfig())

	// pathological variance and size both blow past the ceiling
	b, err := c.Compute(wad(1_000_000), wad(1_000_000), wad(1))
	require.NoError(t, err)
	assert.Equal(t, c.Config().MaxSpread.String(), b.TotalSpread.String())
	assert.True(t, b.Capped)
}

// The impact formula is direction-agnostic given correct reserve selection:
// computing for one direction equals the opposite direction with reserves
// swapped.
func TestImpactSymmetry(t *testing.T) {
	cfg := baseConfig()
	cfg.KVol = sdkmath.ZeroInt()
	c := newCalc(t, cfg)

	buy, err := c.QuoteWithVariance(wad(2000), types.DirectionBuy, wad(10), wad(150), wad(100), sdkmath.ZeroInt())
	require.NoError(t, err)
	sell, err := c.QuoteWithVariance(wad(2000), types.DirectionSell, wad(10), wad(100), wad(150), sdkmath.ZeroInt())
	require.NoError(t, err)

	assert.Equal(t, buy.Spread.ImpactSpread.String(), sell.Spread.ImpactSpread.String())
}

func TestDirectionalPricingWorksAgainstTrader(t *testing.T) {
	c := newCalc(t, baseConfig())
	ref := wad(2000)

	buy, err := c.QuoteWithVariance(ref, types.DirectionBuy, wad(10), wad(100), wad(200_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.True(t, buy.ExecutionPrice.GT(ref), "buys pay above reference")

	sell, err := c.QuoteWithVariance(ref, types.DirectionSell, wad(10), wad(100), wad(200_000), sdkmath.ZeroInt())
	require.NoError(t, err)
	assert.True(t, sell.ExecutionPrice.LT(ref), "sells receive below reference")

	// buy output is input/price, sell output is input*price
	wantBuyOut, err := wadmath.DivWad(wad(10), buy.ExecutionPrice)
	require.NoError(t, err)
	assert.Equal(t, wantBuyOut.String(), buy.AmountOut.String())

	wantSellOut, err := wadmath.MulWad(wad(10), sell.ExecutionPrice)
	require.NoError(t, err)
	assert.Equal(t, wantSellOut.String(), sell.AmountOut.String())
}

func TestZeroAmountYieldsZeroOutput(t *testing.T) {
	c := newCalc(t, baseConfig())

	q, err := c.Quote(wad(2000), types.DirectionBuy, sdkmath.ZeroInt(), wad(100), wad(150))
	require.NoError(t, err)
	assert.True(t, q.AmountOut.IsZero())
}

func TestDrainedReserveCannotQuote(t *testing.T) {
	c := newCalc(t, baseConfig())

	// output side empty
	_, err := c.Quote(wad(2000), types.DirectionBuy, wad(1), sdkmath.ZeroInt(), wad(150))
	assert.ErrorIs(t, err, ErrNoLiquidity)

	// input side empty contributes no impact spread and does not fault
	q, err := c.Quote(wad(2000), types.DirectionSell, wad(1), sdkmath.ZeroInt(), wad(150))
	require.NoError(t, err)
	assert.True(t, q.Spread.ImpactSpread.IsZero())
}

func TestZeroReferencePriceRejected(t *testing.T) {
	c := newCalc(t, baseConfig())
	_, err := c.Quote(sdkmath.ZeroInt(), types.DirectionBuy, wad(1), wad(100), wad(150))
	assert.ErrorIs(t, err, ErrZeroReferencePrice)
}
