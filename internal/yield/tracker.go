/*

Realized trading-fee yield tracking. The tracker integrates liquidity over
time (level x duration) so the period average is correct no matter how
irregularly fee and liquidity events arrive, annualizes fee income against
that average, and smooths the resulting yield series with the slow line of
the same two-speed EWMA mechanism the volatility tracker uses on prices.
The smoothed number is what the capital-allocation policy compares against
the external venue's rate.

*/

package yield

import (
	"errors"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/volatility"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

var (
	ErrNotInitialized     = errors.New("yield tracker not initialized")
	ErrAlreadyInitialized = errors.New("yield tracker already initialized")
	ErrNegativeAmount     = errors.New("amount cannot be negative")
)

const (
	// DefaultMinTrackingPeriod guards the annualized figure against
	// divide-by-near-zero noise right after a period reset.
	DefaultMinTrackingPeriod = time.Hour

	// DefaultMaxSaneYieldBps caps pathological inputs (a huge fee landing on
	// tiny liquidity) at 1000% annualized.
	DefaultMaxSaneYieldBps = 100_000
)

// Tracker owns the yield state of one capital pool.
type Tracker struct {
	mu sync.Mutex

	cumulativeFeeIncome   sdkmath.Int
	timeWeightedLiquidity sdkmath.Int // sum of level * elapsed seconds
	lastLiquidityLevel    sdkmath.Int

	lastUpdate  time.Time
	periodStart time.Time

	// smoother runs the EWMA over the yield series. Observations are stored
	// as one-plus-yield-fraction in WAD so a zero-yield reading stays
	// representable as a positive value.
	smoother *volatility.Tracker

	minPeriod   time.Duration
	maxYieldBps int64

	initialized bool
}

func NewTracker(minPeriod time.Duration, maxYieldBps int64) *Tracker {
	if minPeriod <= 0 {
		minPeriod = DefaultMinTrackingPeriod
	}
	if maxYieldBps <= 0 {
		maxYieldBps = DefaultMaxSaneYieldBps
	}
	return &Tracker{
		minPeriod:   minPeriod,
		maxYieldBps: maxYieldBps,
	}
}

// Initialize seeds the tracker with the pool's starting liquidity level.
func (t *Tracker) Initialize(startingLiquidity sdkmath.Int, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return ErrAlreadyInitialized
	}
	if startingLiquidity.IsNil() || startingLiquidity.IsNegative() {
		return ErrNegativeAmount
	}

	t.cumulativeFeeIncome = sdkmath.ZeroInt()
	t.timeWeightedLiquidity = sdkmath.ZeroInt()
	t.lastLiquidityLevel = startingLiquidity
	t.lastUpdate = at
	t.periodStart = at

	t.smoother = volatility.NewTracker()
	if err := t.smoother.Initialize(oneBpsValue(0), sdkmath.Int{}, sdkmath.Int{}, at); err != nil {
		return err
	}

	t.initialized = true
	return nil
}

// oneBpsValue maps a yield in bps onto the smoother's WAD scale as
// 1 + yield/10000.
func oneBpsValue(yieldBps int64) sdkmath.Int {
	return wadmath.WAD.Add(wadmath.WAD.MulRaw(yieldBps).QuoRaw(wadmath.BpsDenom))
}

// flushLocked folds the elapsed time at the previous liquidity level into
// the time-weighted accumulator. Every mutation goes through here first so
// the accumulator is always a true time integral.
func (t *Tracker) flushLocked(at time.Time) error {
	elapsed := at.Sub(t.lastUpdate)
	if elapsed <= 0 {
		return nil
	}
	weighted, err := wadmath.Mul(t.lastLiquidityLevel,
		sdkmath.NewInt(int64(elapsed.Seconds())))
	if err != nil {
		return err
	}
	t.timeWeightedLiquidity, err = wadmath.Add(t.timeWeightedLiquidity, weighted)
	if err != nil {
		return err
	}
	t.lastUpdate = at
	return nil
}

// RecordFeeEvent adds a realized trading fee to the current period.
func (t *Tracker) RecordFeeEvent(feeAmount sdkmath.Int, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return ErrNotInitialized
	}
	if feeAmount.IsNil() || feeAmount.IsNegative() {
		return ErrNegativeAmount
	}
	if err := t.flushLocked(at); err != nil {
		return err
	}
	var err error
	t.cumulativeFeeIncome, err = wadmath.Add(t.cumulativeFeeIncome, feeAmount)
	return err
}

// UpdateLiquidityLevel records a change in the pool's liquidity level.
func (t *Tracker) UpdateLiquidityLevel(newLevel sdkmath.Int, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return ErrNotInitialized
	}
	if newLevel.IsNil() || newLevel.IsNegative() {
		return ErrNegativeAmount
	}
	if err := t.flushLocked(at); err != nil {
		return err
	}
	t.lastLiquidityLevel = newLevel
	return nil
}

// annualizedLocked computes the current-period annualized yield without
// mutating anything.
func (t *Tracker) annualizedLocked(at time.Time) (int64, error) {
	elapsed := at.Sub(t.periodStart)
	if elapsed < t.minPeriod {
		return 0, nil
	}

	// Include the un-flushed tail at the current level.
	twl := t.timeWeightedLiquidity
	if tail := at.Sub(t.lastUpdate); tail > 0 {
		tailWeighted, err := wadmath.Mul(t.lastLiquidityLevel,
			sdkmath.NewInt(int64(tail.Seconds())))
		if err != nil {
			return 0, err
		}
		twl, err = wadmath.Add(twl, tailWeighted)
		if err != nil {
			return 0, err
		}
	}
	if twl.IsZero() || t.cumulativeFeeIncome.IsZero() {
		return 0, nil
	}

	// yieldBps = fees * BPS * secondsPerYear / (avgLiquidity * elapsed)
	// where avgLiquidity*elapsed is exactly the time-weighted accumulator.
	numerator, err := wadmath.Mul(t.cumulativeFeeIncome,
		sdkmath.NewInt(wadmath.BpsDenom*int64(wadmath.SecondsPerYear)))
	if err != nil {
		return 0, err
	}
	yieldInt := numerator.Quo(twl)

	if yieldInt.GT(sdkmath.NewInt(t.maxYieldBps)) {
		return t.maxYieldBps, nil
	}
	return yieldInt.Int64(), nil
}

// CurrentAnnualizedYieldBps returns the raw period yield, zero before the
// minimum tracking period has elapsed.
func (t *Tracker) CurrentAnnualizedYieldBps(at time.Time) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return 0, ErrNotInitialized
	}
	return t.annualizedLocked(at)
}

// ObserveYield feeds the current annualized yield into the EWMA smoother
// and returns the raw reading. Call this on the rebalance cadence.
func (t *Tracker) ObserveYield(at time.Time) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return 0, ErrNotInitialized
	}
	raw, err := t.annualizedLocked(at)
	if err != nil {
		return 0, err
	}
	if _, err := t.smoother.Update(oneBpsValue(raw), at); err != nil {
		return 0, err
	}
	return raw, nil
}

// SmoothedYieldBps returns the slow EWMA line over the observed yield
// series, dampening bursty fee arrival.
func (t *Tracker) SmoothedYieldBps() (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return 0, ErrNotInitialized
	}
	snap, err := t.smoother.Snapshot()
	if err != nil {
		return 0, err
	}
	// invert oneBpsValue: (slowAverage - WAD) * 10000 / WAD
	if snap.SlowAverage.LTE(wadmath.WAD) {
		return 0, nil
	}
	return snap.SlowAverage.Sub(wadmath.WAD).MulRaw(wadmath.BpsDenom).Quo(wadmath.WAD).Int64(), nil
}

// CompareAgainst returns the signed difference between the smoothed pool
// yield and the external venue's rate, and whether the trading pool is the
// better home for capital.
func (t *Tracker) CompareAgainst(externalYieldBps int64) (diffBps int64, poolBetter bool, err error) {
	smoothed, err := t.SmoothedYieldBps()
	if err != nil {
		return 0, false, err
	}
	diff := smoothed - externalYieldBps
	return diff, diff > 0, nil
}

// ResetPeriod atomically zeroes the period accumulators after an executed
// rebalance. The liquidity level and the smoothed series carry over.
func (t *Tracker) ResetPeriod(at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return ErrNotInitialized
	}
	t.cumulativeFeeIncome = sdkmath.ZeroInt()
	t.timeWeightedLiquidity = sdkmath.ZeroInt()
	t.periodStart = at
	t.lastUpdate = at
	return nil
}

// Snapshot exposes the current accumulators for persistence and the status
// surface.
type Snapshot struct {
	CumulativeFeeIncome   sdkmath.Int `json:"cumulative_fee_income"`
	TimeWeightedLiquidity sdkmath.Int `json:"time_weighted_liquidity"`
	LastLiquidityLevel    sdkmath.Int `json:"last_liquidity_level"`
	LastUpdate            time.Time   `json:"last_update"`
	PeriodStart           time.Time   `json:"period_start"`
	Smoothed              types.VolatilitySnapshot
}

func (t *Tracker) Snapshot() (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return Snapshot{}, ErrNotInitialized
	}
	smooth, err := t.smoother.Snapshot()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		CumulativeFeeIncome:   t.cumulativeFeeIncome,
		TimeWeightedLiquidity: t.timeWeightedLiquidity,
		LastLiquidityLevel:    t.lastLiquidityLevel,
		LastUpdate:            t.lastUpdate,
		PeriodStart:           t.periodStart,
		Smoothed:              smooth,
	}, nil
}

// Initialized reports whether the tracker has been seeded.
func (t *Tracker) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// Restore rehydrates a tracker from a persisted snapshot, smoother state
// included, so an accumulation period survives a process restart.
func (t *Tracker) Restore(snap Snapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return ErrAlreadyInitialized
	}
	if snap.CumulativeFeeIncome.IsNil() || snap.CumulativeFeeIncome.IsNegative() ||
		snap.TimeWeightedLiquidity.IsNil() || snap.TimeWeightedLiquidity.IsNegative() ||
		snap.LastLiquidityLevel.IsNil() || snap.LastLiquidityLevel.IsNegative() {
		return ErrNegativeAmount
	}

	t.smoother = volatility.NewTracker()
	if err := t.smoother.Restore(snap.Smoothed, sdkmath.Int{}, sdkmath.Int{}); err != nil {
		return err
	}

	t.cumulativeFeeIncome = snap.CumulativeFeeIncome
	t.timeWeightedLiquidity = snap.TimeWeightedLiquidity
	t.lastLiquidityLevel = snap.LastLiquidityLevel
	t.lastUpdate = snap.LastUpdate
	t.periodStart = snap.PeriodStart
	t.initialized = true
	return nil
}
