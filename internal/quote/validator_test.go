package quote

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabikreal1/HLE/internal/ledger"
	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

const instrument = types.InstrumentID(1)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func wad(n int64) sdkmath.Int {
	return wadmath.WAD.MulRaw(n)
}

func newFixture(t *testing.T) (*Validator, *ledger.Memory) {
	t.Helper()
	lgr := ledger.NewMemory(0)
	require.NoError(t, lgr.CreatePool(instrument, wad(1_000), wad(2_500_000)))
	v, err := NewValidator(NewMemoryUsedStore(), lgr, 100)
	require.NoError(t, err)
	return v, lgr
}

func validQuote() types.Quote {
	return types.Quote{
		ID:              uuid.New(),
		Instrument:      instrument,
		Direction:       types.DirectionBuy,
		TokenIn:         "USDC",
		TokenOut:        "ETH",
		AmountIn:        wad(2500),
		MinAmountOut:    wadmath.WadFromFraction(9, 10), // 0.9 base units
		ExecutionPrice:  wad(2500),
		OraclePrice:     wad(2500),
		OracleTimestamp: now,
		ExpiryHeight:    1_000,
		Executor:        "trader-1",
		MaxDeviationBps: 100,
	}
}

func TestValidateHappyPath(t *testing.T) {
	v, _ := newFixture(t)
	res, err := v.Validate(validQuote(), wad(2500), "trader-1", 500)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Reason)
}

func TestValidateWrongCaller(t *testing.T) {
	v, _ := newFixture(t)
	res, err := v.Validate(validQuote(), wad(2500), "someone-else", 500)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, types.ReasonNotIntendedUser, res.Reason)
}

func TestValidateExpired(t *testing.T) {
	v, _ := newFixture(t)
	q := validQuote()

	res, err := v.Validate(q, wad(2500), "trader-1", q.ExpiryHeight)
	require.NoError(t, err)
	assert.True(t, res.Valid, "expiry height itself is still valid")

	res, err = v.Validate(q, wad(2500), "trader-1", q.ExpiryHeight+1)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, types.ReasonQuoteExpired, res.Reason)
}

// Snapshot 2500e18, live 2625e18 (a 5% move) against maxDeviationBps=100
// must reject with "Oracle drifted".
func TestValidateOracleDriftScenario(t *testing.T) {
	v, _ := newFixture(t)
	res, err := v.Validate(validQuote(), wad(2625), "trader-1", 500)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, types.ReasonOracleDrifted, res.Reason)
}

// A live price exactly at the deviation bound is valid: the boundary is
// non-strict.
func TestValidateDeviationBoundaryInclusive(t *testing.T) {
	v, _ := newFixture(t)
	q := validQuote()

	// 1% of 2500 = 25: exactly 100 bps away from both snapshot and
	// execution price
	atBound := wad(2525)
	res, err := v.Validate(q, atBound, "trader-1", 500)
	require.NoError(t, err)
	assert.True(t, res.Valid, "exactly-at-threshold must pass")

	justPast := atBound.Add(wadmath.WAD)
	res, err = v.Validate(q, justPast, "trader-1", 500)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestValidateExecutionPriceOutOfBounds(t *testing.T) {
	v, _ := newFixture(t)
	q := validQuote()
	q.ExecutionPrice = wad(2600) // 4% off any live price near the snapshot

	res, err := v.Validate(q, wad(2500), "trader-1", 500)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, types.ReasonPriceOutOfBounds, res.Reason)
}

func TestValidateUsesGlobalDefaultBound(t *testing.T) {
	v, _ := newFixture(t)
	q := validQuote()
	q.MaxDeviationBps = 0 // fall back to the validator's 100 bps default

	res, err := v.Validate(q, wad(2625), "trader-1", 500)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, types.ReasonOracleDrifted, res.Reason)

	// widening the default admits the same quote
	require.NoError(t, v.SetDefaultMaxDeviationBps(600))
	res, err = v.Validate(q, wad(2625), "trader-1", 500)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestDefaultBoundUpdateDuringValidation(t *testing.T) {
	v, _ := newFixture(t)
	q := validQuote()
	q.MaxDeviationBps = 0

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(0); i < 200; i++ {
			assert.NoError(t, v.SetDefaultMaxDeviationBps(100+i))
		}
	}()
	for i := 0; i < 200; i++ {
		_, err := v.Validate(q, wad(2500), "trader-1", 500)
		assert.NoError(t, err)
	}
	<-done
}

func TestExecuteHappyPathAndReplay(t *testing.T) {
	v, lgr := newFixture(t)
	q := validQuote()

	baseBefore, quoteBefore, err := lgr.Reserves(instrument)
	require.NoError(t, err)

	out, err := v.Execute(q, wad(2500), "trader-1", 500, now)
	require.NoError(t, err)
	assert.True(t, out.GTE(q.MinAmountOut))

	baseAfter, quoteAfter, err := lgr.Reserves(instrument)
	require.NoError(t, err)
	assert.Equal(t, baseBefore.Sub(out).String(), baseAfter.String())
	assert.Equal(t, quoteBefore.Add(q.AmountIn).String(), quoteAfter.String())

	// second execution of the same identifier must reject, and the first
	// execution's effects must not be duplicated
	_, err = v.Execute(q, wad(2500), "trader-1", 500, now)
	require.ErrorIs(t, err, ErrQuoteRejected)
	assert.Contains(t, err.Error(), types.ReasonQuoteAlreadyUsed)

	baseFinal, quoteFinal, err := lgr.Reserves(instrument)
	require.NoError(t, err)
	assert.Equal(t, baseAfter.String(), baseFinal.String())
	assert.Equal(t, quoteAfter.String(), quoteFinal.String())
}

func TestExecuteMinOutputGuard(t *testing.T) {
	v, _ := newFixture(t)
	q := validQuote()
	q.MinAmountOut = wad(2) // impossible: 2500 quote at ~2500/base yields ~1 base

	_, err := v.Execute(q, wad(2500), "trader-1", 500, now)
	assert.ErrorIs(t, err, ErrOutputBelowMinimum)

	// refused before anything was committed: the identifier is still live
	res, err := v.Validate(q, wad(2500), "trader-1", 500)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

// optimisticPreviewLedger over-reports the preview, standing in for reserves
// that move between the preview read and the settle.
type optimisticPreviewLedger struct {
	*ledger.Memory
}

func (l optimisticPreviewLedger) PreviewSwap(id types.InstrumentID, dir types.TradeDirection, amountIn sdkmath.Int) (sdkmath.Int, error) {
	out, err := l.Memory.PreviewSwap(id, dir, amountIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return out.MulRaw(2), nil
}

func TestExecuteStaleLedgerCannotSettleBelowMinimum(t *testing.T) {
	lgr := ledger.NewMemory(0)
	require.NoError(t, lgr.CreatePool(instrument, wad(1_000), wad(2_500_000)))
	v, err := NewValidator(NewMemoryUsedStore(), optimisticPreviewLedger{lgr}, 100)
	require.NoError(t, err)

	baseBefore, quoteBefore, err := lgr.Reserves(instrument)
	require.NoError(t, err)

	q := validQuote()
	q.MinAmountOut = wad(1) // the doubled preview clears this, the settle cannot

	_, err = v.Execute(q, wad(2500), "trader-1", 500, now)
	require.ErrorIs(t, err, ErrOutputBelowMinimum)

	// the bound travels into the settlement, so nothing moved
	baseAfter, quoteAfter, err := lgr.Reserves(instrument)
	require.NoError(t, err)
	assert.Equal(t, baseBefore.String(), baseAfter.String(), "failed execution must not leave the swap settled")
	assert.Equal(t, quoteBefore.String(), quoteAfter.String(), "failed execution must not leave the swap settled")
}

func TestExecuteRejectedQuoteLeavesNoTrace(t *testing.T) {
	v, lgr := newFixture(t)
	q := validQuote()

	baseBefore, quoteBefore, err := lgr.Reserves(instrument)
	require.NoError(t, err)

	_, err = v.Execute(q, wad(2625), "trader-1", 500, now)
	require.ErrorIs(t, err, ErrQuoteRejected)

	// the identifier was not burned and the pool was not touched
	res, err := v.Validate(q, wad(2500), "trader-1", 500)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	baseAfter, quoteAfter, err := lgr.Reserves(instrument)
	require.NoError(t, err)
	assert.Equal(t, baseBefore.String(), baseAfter.String())
	assert.Equal(t, quoteBefore.String(), quoteAfter.String())
}

func TestValidateZeroLivePrice(t *testing.T) {
	v, _ := newFixture(t)
	_, err := v.Validate(validQuote(), sdkmath.ZeroInt(), "trader-1", 500)
	assert.ErrorIs(t, err, ErrZeroLivePrice)
}
