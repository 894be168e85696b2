package curve

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabikreal1/HLE/internal/wadmath"
)

func wad(n int64) sdkmath.Int {
	return wadmath.WAD.MulRaw(n)
}

func TestAmountOutPreservesInvariant(t *testing.T) {
	reserveIn, reserveOut := wad(100), wad(150)
	amountIn := wad(10)

	out, err := AmountOut(amountIn, reserveIn, reserveOut, 0)
	require.NoError(t, err)

	// out = 150*10/110
	want, err := wadmath.MulDiv(reserveOut, amountIn, wad(110))
	require.NoError(t, err)
	assert.Equal(t, want.String(), out.String())

	// k never decreases under truncation
	kBefore := reserveIn.Mul(reserveOut)
	kAfter := reserveIn.Add(amountIn).Mul(reserveOut.Sub(out))
	assert.True(t, kAfter.GTE(kBefore))
}

func TestAmountOutWithFee(t *testing.T) {
	noFee, err := AmountOut(wad(10), wad(100), wad(150), 0)
	require.NoError(t, err)
	withFee, err := AmountOut(wad(10), wad(100), wad(150), 30)
	require.NoError(t, err)
	assert.True(t, withFee.LT(noFee), "fee must reduce the output")
}

func TestAmountOutEdgeCases(t *testing.T) {
	out, err := AmountOut(sdkmath.ZeroInt(), wad(100), wad(150), 30)
	require.NoError(t, err)
	assert.True(t, out.IsZero())

	_, err = AmountOut(wad(1), sdkmath.ZeroInt(), wad(150), 30)
	assert.ErrorIs(t, err, ErrEmptyReserve)

	_, err = AmountOut(wad(1), wad(100), sdkmath.ZeroInt(), 30)
	assert.ErrorIs(t, err, ErrEmptyReserve)

	_, err = AmountOut(wad(1), wad(100), wad(150), 10_000)
	assert.ErrorIs(t, err, ErrInvalidFee)
}

func TestSpotPrice(t *testing.T) {
	price, err := SpotPrice(wad(100), wad(150))
	require.NoError(t, err)
	assert.Equal(t, wadmath.WadFromFraction(3, 2).String(), price.String())

	_, err = SpotPrice(sdkmath.ZeroInt(), wad(150))
	assert.ErrorIs(t, err, ErrEmptyReserve)
}
