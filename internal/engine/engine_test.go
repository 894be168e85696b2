package engine

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabikreal1/HLE/internal/authz"
	"github.com/gabikreal1/HLE/internal/bridge"
	"github.com/gabikreal1/HLE/internal/ledger"
	"github.com/gabikreal1/HLE/internal/metrics"
	"github.com/gabikreal1/HLE/internal/oracle"
	"github.com/gabikreal1/HLE/internal/quote"
	"github.com/gabikreal1/HLE/internal/types"
)

const testInstrument types.InstrumentID = 1

func wad(n int64) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(sdkmath.NewInt(1_000_000_000_000_000_000))
}

func testParams() types.Parameters {
	return types.Parameters{
		KVol:                   wad(1),
		KImpact:                wad(1),
		MaxSpread:              wad(1).QuoRaw(20), // 5%
		VolatilityThresholdBps: 500,
		DefaultMaxDeviationBps: 100,
		MinTradeSize:           wad(1),
		TradeCooldown:          0,
		MinTrackingPeriod:      time.Hour,
		MaxSaneYieldBps:        100_000,
		Rebalance: types.RebalancePolicy{
			ThresholdBps:  50,
			MinInterval:   time.Hour,
			MaxPortionBps: 1000,
		},
	}
}

type fixture struct {
	engine    *Engine
	ledger    *ledger.Memory
	prices    *oracle.Static
	submitter *bridge.Recorder
	metrics   *metrics.Metrics
	start     time.Time
}

func newFixture(t *testing.T, params types.Parameters) *fixture {
	t.Helper()
	f, _ := newFixtureWithRecorder(t, params)
	return f
}

func newFixtureWithRecorder(t *testing.T, params types.Parameters) (*fixture, *bridge.Recorder) {
	t.Helper()

	mem := ledger.NewMemory(0)
	require.NoError(t, mem.CreatePool(testInstrument, wad(1000), wad(2_500_000)))

	static := oracle.NewStatic()
	static.SetPrice(testInstrument, wad(2500))
	static.SetYieldBps(testInstrument, 0)

	rec := bridge.NewRecorder()
	m := metrics.New()
	eng, err := New(Config{
		Instrument: testInstrument,
		AssetIndex: 7,
		Ledger:     mem,
		Prices:     static,
		Yields:     static,
		Submitter:  rec,
		Authorizer: authz.NewAllowList([]string{"admin"}),
		UsedQuotes: quote.NewMemoryUsedStore(),
		Metrics:    m,
		Params:     params,
	})
	require.NoError(t, err)

	start := time.Unix(1_000_000, 0)
	require.NoError(t, eng.Initialize(context.Background(), start))

	return &fixture{
		engine:    eng,
		ledger:    mem,
		prices:    static,
		submitter: rec,
		metrics:   m,
		start:     start,
	}, rec
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Config{Params: testParams()})
	assert.Error(t, err)
}

func TestTradeBuyAppliesSpreadAboveReference(t *testing.T) {
	f := newFixture(t, testParams())

	tq, err := f.engine.Trade(context.Background(), types.DirectionBuy, wad(2500), f.start.Add(time.Minute))
	require.NoError(t, err)

	// Flat price since initialization: no volatility spread, impact only.
	// 2500 into a 2.5M quote reserve is 10bps at kImpact=1.
	assert.True(t, tq.Spread.VolSpread.IsZero())
	assert.Equal(t, wad(1).QuoRaw(1000).String(), tq.Spread.ImpactSpread.String())
	assert.True(t, tq.ExecutionPrice.GT(tq.ReferencePrice), "buys execute above reference")
	assert.True(t, tq.AmountOut.IsPositive())
	assert.True(t, tq.AmountOut.LT(wad(1)), "spread makes the output worse than reference")

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TradesTotal))

	// Settlement moved both reserves.
	base, quoteReserve, err := f.ledger.Reserves(testInstrument)
	require.NoError(t, err)
	assert.Equal(t, wad(1000).Sub(tq.AmountOut).String(), base.String())
	assert.Equal(t, wad(2_502_500).String(), quoteReserve.String())
}

func TestTradeRejectsBelowMinimumSize(t *testing.T) {
	f := newFixture(t, testParams())

	_, err := f.engine.Trade(context.Background(), types.DirectionBuy, sdkmath.NewInt(100), f.start.Add(time.Minute))
	assert.ErrorIs(t, err, ErrTradeTooSmall)
}

func TestTradeCooldown(t *testing.T) {
	params := testParams()
	params.TradeCooldown = time.Minute
	f := newFixture(t, params)

	_, err := f.engine.Trade(context.Background(), types.DirectionBuy, wad(2500), f.start.Add(time.Minute))
	require.NoError(t, err)

	_, err = f.engine.Trade(context.Background(), types.DirectionBuy, wad(2500), f.start.Add(90*time.Second))
	assert.ErrorIs(t, err, ErrTradeCooldown)

	_, err = f.engine.Trade(context.Background(), types.DirectionBuy, wad(2500), f.start.Add(3*time.Minute))
	assert.NoError(t, err)
}

func TestTradeVolatilityGate(t *testing.T) {
	params := testParams()
	params.VolatilityThresholdBps = 100
	f := newFixture(t, params)

	// A 20% price jump pushes the fast line far from the slow one.
	f.prices.SetPrice(testInstrument, wad(3000))

	_, err := f.engine.Trade(context.Background(), types.DirectionBuy, wad(2500), f.start.Add(time.Minute))
	assert.ErrorIs(t, err, ErrMarketTooVolatile)
}

func TestTradeFailsClosedWithoutPrice(t *testing.T) {
	f := newFixture(t, testParams())

	f.prices.SetPrice(testInstrument, sdkmath.ZeroInt())
	_, err := f.engine.Trade(context.Background(), types.DirectionBuy, wad(2500), f.start.Add(time.Minute))
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.OracleErrorsTotal))
}

func TestSettersRequireAuthorization(t *testing.T) {
	f := newFixture(t, testParams())

	err := f.engine.UpdateVolatilityThreshold("stranger", 200)
	assert.ErrorIs(t, err, authz.ErrUnauthorized)

	require.NoError(t, f.engine.UpdateVolatilityThreshold("admin", 200))
	assert.Equal(t, int64(200), f.engine.Parameters().VolatilityThresholdBps)
}

func TestSettersValidateBounds(t *testing.T) {
	f := newFixture(t, testParams())

	err := f.engine.UpdateSpreadConfig("admin", types.SpreadConfig{
		KVol:      wad(1),
		KImpact:   wad(1),
		MaxSpread: wad(1), // above the 50% ceiling
	})
	assert.Error(t, err)

	err = f.engine.UpdateRebalancePolicy("admin", types.RebalancePolicy{
		ThresholdBps:  0,
		MinInterval:   time.Hour,
		MaxPortionBps: 1000,
	})
	assert.Error(t, err)

	err = f.engine.UpdateTradeLimits("admin", sdkmath.NewInt(-1), 0)
	assert.Error(t, err)

	// Rejected updates leave the previous values intact.
	assert.Equal(t, testParams().KVol.String(), f.engine.Parameters().KVol.String())
	assert.Equal(t, testParams().Rebalance.ThresholdBps, f.engine.Parameters().Rebalance.ThresholdBps)
}

func TestRunCycleSuppliesWhenExternalYieldDominates(t *testing.T) {
	f, rec := newFixtureWithRecorder(t, testParams())

	f.prices.SetYieldBps(testInstrument, 300)

	f.engine.runCycle(context.Background(), time.Minute, f.start.Add(time.Minute))

	deadline := time.Now().Add(2 * time.Second)
	var payloads [][]byte
	for time.Now().Before(deadline) {
		if payloads = rec.Payloads(); len(payloads) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, payloads, 1, "external yield above the band must trigger a supply")

	action, err := bridge.DecodeCapitalAction(payloads[0])
	require.NoError(t, err)
	assert.Equal(t, bridge.OpSupply, action.Op)

	// 10% of the 5M pool value (2.5M quote + 1000 base at 2500).
	assert.Equal(t, wad(500_000).String(), action.Amount.String())

	// The quote reserve mirrors the move.
	_, quoteReserve, err := f.ledger.Reserves(testInstrument)
	require.NoError(t, err)
	assert.Equal(t, wad(2_000_000).String(), quoteReserve.String())
}

func TestRunCycleWithinBandDoesNothing(t *testing.T) {
	f, rec := newFixtureWithRecorder(t, testParams())

	f.prices.SetYieldBps(testInstrument, 20) // inside the 50bps band

	f.engine.runCycle(context.Background(), time.Minute, f.start.Add(time.Minute))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.Payloads())
}

func TestRunCycleCooldownBlocksSecondMove(t *testing.T) {
	f, rec := newFixtureWithRecorder(t, testParams())
	f.prices.SetYieldBps(testInstrument, 300)

	f.engine.runCycle(context.Background(), time.Minute, f.start.Add(time.Minute))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.Payloads()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, rec.Payloads(), 1)

	f.engine.runCycle(context.Background(), time.Minute, f.start.Add(10*time.Minute))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.Payloads(), 1, "cooldown must suppress the second move")
}

func TestStatusSnapshot(t *testing.T) {
	f := newFixture(t, testParams())

	st, err := f.engine.Status()
	require.NoError(t, err)
	assert.Equal(t, testInstrument, st.Instrument)
	assert.Equal(t, wad(1000).String(), st.ReserveBase.String())
	assert.Equal(t, wad(2_500_000).String(), st.ReserveQuote.String())
	assert.True(t, st.TotalSupplied.IsZero())
}

func TestExecuteQuoteAccruesYield(t *testing.T) {
	f := newFixture(t, testParams())

	before, err := f.engine.yield.Snapshot()
	require.NoError(t, err)

	q := types.Quote{
		ID:              uuid.New(),
		Instrument:      testInstrument,
		Direction:       types.DirectionBuy,
		AmountIn:        wad(2500),
		MinAmountOut:    sdkmath.ZeroInt(),
		ExecutionPrice:  wad(2525), // 1% above the live reference
		OraclePrice:     wad(2500),
		ExpiryHeight:    1_000,
		Executor:        "trader-1",
		MaxDeviationBps: 200,
	}
	out, err := f.engine.ExecuteQuote(context.Background(), q, "trader-1", 500, f.start.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, out.IsPositive())

	after, err := f.engine.yield.Snapshot()
	require.NoError(t, err)

	// 2500 quote units at a 1% execution premium is 25 of revenue
	assert.Equal(t, wad(25).String(),
		after.CumulativeFeeIncome.Sub(before.CumulativeFeeIncome).String(),
		"quote flow must count toward pool yield")
	assert.True(t, after.LastLiquidityLevel.GT(before.LastLiquidityLevel),
		"liquidity level refreshed from post-settlement reserves")
}
