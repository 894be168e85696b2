/*

Fixed-point arithmetic for the pricing core. All prices, ratios and spreads
are unsigned integers scaled by 10^18 (WAD); percentages additionally use a
basis-point scale of 10_000. Every operation truncates toward zero and fails
loudly on overflow instead of wrapping.

*/

package wadmath

import (
	"errors"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

const (
	// BpsDenom is the basis-point scale: 10_000 bps == 100%.
	BpsDenom = 10_000

	// SecondsPerYear is used for annualizing fee yield.
	SecondsPerYear = 365 * 24 * 60 * 60

	// maxBitLen is the capacity of sdkmath.Int. Anything wider is an
	// arithmetic fault, never a silent wrap.
	maxBitLen = 256
)

// Error definitions for zero-tolerance error handling.
var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrNegativeValue      = errors.New("value cannot be negative")
	ErrNilValue           = errors.New("value is nil")
)

// WAD is 10^18, the fixed-point unit.
var WAD = sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// MaxDeviationBps is returned by DeviationBps when the denominator is zero.
var MaxDeviationBps = sdkmath.NewInt(1_000_000_000)

// oracleScale rescales an 8-decimal oracle price into WAD.
var oracleScale = sdkmath.NewInt(10_000_000_000) // 10^10

func checkOperands(vals ...sdkmath.Int) error {
	for _, v := range vals {
		if v.IsNil() {
			return ErrNilValue
		}
		if v.IsNegative() {
			return ErrNegativeValue
		}
	}
	return nil
}

func checked(result *big.Int) (sdkmath.Int, error) {
	if result.BitLen() > maxBitLen {
		return sdkmath.Int{}, ErrArithmeticOverflow
	}
	return sdkmath.NewIntFromBigInt(result), nil
}

// Add returns a+b, failing on overflow instead of panicking.
func Add(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	return checked(new(big.Int).Add(a.BigInt(), b.BigInt()))
}

// Sub returns a-b, failing if the result would be negative.
func Sub(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	if b.GT(a) {
		return sdkmath.Int{}, ErrNegativeValue
	}
	return a.Sub(b), nil
}

// Mul returns a*b, failing on overflow instead of panicking.
func Mul(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	return checked(new(big.Int).Mul(a.BigInt(), b.BigInt()))
}

// MulWad returns a*b/WAD, truncated toward zero.
func MulWad(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	product := new(big.Int).Mul(a.BigInt(), b.BigInt())
	product.Quo(product, WAD.BigInt())
	return checked(product)
}

// DivWad returns a*WAD/b, truncated toward zero.
func DivWad(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	if b.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	scaled := new(big.Int).Mul(a.BigInt(), WAD.BigInt())
	scaled.Quo(scaled, b.BigInt())
	return checked(scaled)
}

// MulDiv returns a*b/denom with full intermediate precision.
func MulDiv(a, b, denom sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(a, b, denom); err != nil {
		return sdkmath.Int{}, err
	}
	if denom.IsZero() {
		return sdkmath.Int{}, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a.BigInt(), b.BigInt())
	product.Quo(product, denom.BigInt())
	return checked(product)
}

// AbsDiff returns |a-b|.
func AbsDiff(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	if a.GTE(b) {
		return a.Sub(b), nil
	}
	return b.Sub(a), nil
}

// Sqrt returns the integer floor of the square root of x (Newton's method).
func Sqrt(x sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(x); err != nil {
		return sdkmath.Int{}, err
	}
	if x.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	// big.Int.Sqrt already floors; iteration count is bounded by bit length.
	root := new(big.Int).Sqrt(x.BigInt())
	return sdkmath.NewIntFromBigInt(root), nil
}

// DeviationBps returns |a-b| * 10000 / b. A zero reference value b yields
// MaxDeviationBps rather than a division fault, so an uninitialized or empty
// reference is always treated as maximally deviated.
func DeviationBps(a, b sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(a, b); err != nil {
		return sdkmath.Int{}, err
	}
	if b.IsZero() {
		return MaxDeviationBps, nil
	}
	diff, err := AbsDiff(a, b)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return MulDiv(diff, sdkmath.NewInt(BpsDenom), b)
}

// PortionBps returns x * bps / 10000, truncated.
func PortionBps(x sdkmath.Int, bps int64) (sdkmath.Int, error) {
	if bps < 0 {
		return sdkmath.Int{}, ErrNegativeValue
	}
	return MulDiv(x, sdkmath.NewInt(bps), sdkmath.NewInt(BpsDenom))
}

// ScaleFromOracle converts an 8-decimal oracle price into WAD scale.
func ScaleFromOracle(price8 sdkmath.Int) (sdkmath.Int, error) {
	if err := checkOperands(price8); err != nil {
		return sdkmath.Int{}, err
	}
	return checked(new(big.Int).Mul(price8.BigInt(), oracleScale.BigInt()))
}

// WadFromFraction builds a WAD fraction from numerator/denominator,
// e.g. WadFromFraction(1, 10) == 0.1 WAD.
func WadFromFraction(num, denom int64) sdkmath.Int {
	return WAD.MulRaw(num).QuoRaw(denom)
}
