/*

Two-speed EWMA volatility tracker. Maintains a fast and a slow exponentially
weighted average of the reference price plus their exponentially weighted
variances. The divergence between the two lines is the cheap, deterministic
volatility proxy this engine gates trading on: the fast line catches sudden
shocks, the slow line stays informative through sustained turbulence, and
downstream consumers take the maximum of the two variances as the
conservative signal.

*/

package volatility

import (
	"errors"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

// Error definitions for zero-tolerance error handling.
var (
	ErrAlreadyInitialized = errors.New("volatility tracker already initialized")
	ErrNotInitialized     = errors.New("volatility tracker not initialized")
	ErrZeroPrice          = errors.New("price cannot be zero")
	ErrInvalidDecay       = errors.New("decay outside allowed range")
	ErrInvalidInterval    = errors.New("expected interval must be positive")
)

// Decay bounds. MinDecay keeps the averages from freezing permanently;
// MaxDecay keeps the blend an average rather than a plain overwrite.
var (
	MinDecay = wadmath.WadFromFraction(1, 1000) // 0.001
	MaxDecay = wadmath.WadFromFraction(999, 1000)

	DefaultFastDecay = wadmath.WadFromFraction(1, 10)  // 0.10
	DefaultSlowDecay = wadmath.WadFromFraction(1, 100) // 0.01
)

// Tracker owns the volatility state of exactly one instrument. Calls are
// serialized by an internal mutex; there is no cross-instrument sharing.
type Tracker struct {
	mu sync.Mutex

	fastAverage  sdkmath.Int
	slowAverage  sdkmath.Int
	fastVariance sdkmath.Int
	slowVariance sdkmath.Int

	fastDecay sdkmath.Int
	slowDecay sdkmath.Int

	lastUpdate  time.Time
	initialized bool
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func validDecay(d sdkmath.Int) bool {
	return !d.IsNil() && d.GTE(MinDecay) && d.LT(MaxDecay)
}

// Initialize seeds both averages with the starting price and both variances
// with zero. A second call fails with ErrAlreadyInitialized; no update or
// read is valid before seeding. Nil decays select the defaults.
func (t *Tracker) Initialize(startPrice, fastDecay, slowDecay sdkmath.Int, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return ErrAlreadyInitialized
	}
	if startPrice.IsNil() || !startPrice.IsPositive() {
		return ErrZeroPrice
	}
	if fastDecay.IsNil() {
		fastDecay = DefaultFastDecay
	}
	if slowDecay.IsNil() {
		slowDecay = DefaultSlowDecay
	}
	if !validDecay(fastDecay) || !validDecay(slowDecay) {
		return ErrInvalidDecay
	}

	t.fastAverage = startPrice
	t.slowAverage = startPrice
	t.fastVariance = sdkmath.ZeroInt()
	t.slowVariance = sdkmath.ZeroInt()
	t.fastDecay = fastDecay
	t.slowDecay = slowDecay
	t.lastUpdate = at
	t.initialized = true
	return nil
}

// stepLine advances one EWMA line. The deviation is measured against the
// average *before* the blend, and the squared deviation is divided by WAD
// once so the variance stays in WAD scale rather than WAD^2.
func stepLine(avg, variance, decay, newPrice sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	dev, err := wadmath.AbsDiff(newPrice, avg)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	step, err := wadmath.MulWad(decay, dev)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	var newAvg sdkmath.Int
	if newPrice.GTE(avg) {
		newAvg, err = wadmath.Add(avg, step)
	} else {
		newAvg, err = wadmath.Sub(avg, step)
	}
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	devSq, err := wadmath.MulWad(dev, dev)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	shockTerm, err := wadmath.MulWad(decay, devSq)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	carryTerm, err := wadmath.MulWad(wadmath.WAD.Sub(decay), variance)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	newVar, err := wadmath.Add(shockTerm, carryTerm)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}

	return newAvg, newVar, nil
}

func (t *Tracker) snapshotLocked() (types.VolatilitySnapshot, error) {
	dev, err := wadmath.DeviationBps(t.fastAverage, t.slowAverage)
	if err != nil {
		return types.VolatilitySnapshot{}, err
	}
	return types.VolatilitySnapshot{
		FastAverage:  t.fastAverage,
		SlowAverage:  t.slowAverage,
		FastVariance: t.fastVariance,
		SlowVariance: t.slowVariance,
		DeviationBps: dev,
		UpdatedAt:    t.lastUpdate,
	}, nil
}

func (t *Tracker) updateLocked(newPrice, fastDecay, slowDecay sdkmath.Int, at time.Time) (types.VolatilitySnapshot, error) {
	fastAvg, fastVar, err := stepLine(t.fastAverage, t.fastVariance, fastDecay, newPrice)
	if err != nil {
		return types.VolatilitySnapshot{}, err
	}
	slowAvg, slowVar, err := stepLine(t.slowAverage, t.slowVariance, slowDecay, newPrice)
	if err != nil {
		return types.VolatilitySnapshot{}, err
	}

	// Both lines computed before either is committed; a failure above leaves
	// the tracker exactly as it was.
	t.fastAverage = fastAvg
	t.fastVariance = fastVar
	t.slowAverage = slowAvg
	t.slowVariance = slowVar
	t.lastUpdate = at

	return t.snapshotLocked()
}

// Update folds a new reference price observation into both lines and returns
// the resulting snapshot.
func (t *Tracker) Update(newPrice sdkmath.Int, at time.Time) (types.VolatilitySnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return types.VolatilitySnapshot{}, ErrNotInitialized
	}
	if newPrice.IsNil() || !newPrice.IsPositive() {
		return types.VolatilitySnapshot{}, ErrZeroPrice
	}
	return t.updateLocked(newPrice, t.fastDecay, t.slowDecay, at)
}

// UpdateTimeWeighted scales the effective decay by how much of the expected
// interval has actually elapsed since the last update: full decay once the
// interval has passed, proportionally less for early observations, floored
// at MinDecay. Used when price observations arrive sparsely or in bursts.
func (t *Tracker) UpdateTimeWeighted(newPrice sdkmath.Int, expectedInterval time.Duration, at time.Time) (types.VolatilitySnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return types.VolatilitySnapshot{}, ErrNotInitialized
	}
	if newPrice.IsNil() || !newPrice.IsPositive() {
		return types.VolatilitySnapshot{}, ErrZeroPrice
	}
	if expectedInterval <= 0 {
		return types.VolatilitySnapshot{}, ErrInvalidInterval
	}

	elapsed := at.Sub(t.lastUpdate)
	fastDecay, err := scaleDecay(t.fastDecay, elapsed, expectedInterval)
	if err != nil {
		return types.VolatilitySnapshot{}, err
	}
	slowDecay, err := scaleDecay(t.slowDecay, elapsed, expectedInterval)
	if err != nil {
		return types.VolatilitySnapshot{}, err
	}
	return t.updateLocked(newPrice, fastDecay, slowDecay, at)
}

func scaleDecay(decay sdkmath.Int, elapsed, expected time.Duration) (sdkmath.Int, error) {
	if elapsed >= expected {
		return decay, nil
	}
	if elapsed < 0 {
		elapsed = 0
	}
	scaled, err := wadmath.MulDiv(decay,
		sdkmath.NewInt(elapsed.Milliseconds()),
		sdkmath.NewInt(expected.Milliseconds()))
	if err != nil {
		return sdkmath.Int{}, err
	}
	if scaled.LT(MinDecay) {
		return MinDecay, nil
	}
	return scaled, nil
}

// PreviewUpdate computes what an update would produce without mutating any
// state. Used by quote-preview paths.
func (t *Tracker) PreviewUpdate(newPrice sdkmath.Int) (types.VolatilitySnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return types.VolatilitySnapshot{}, ErrNotInitialized
	}
	if newPrice.IsNil() || !newPrice.IsPositive() {
		return types.VolatilitySnapshot{}, ErrZeroPrice
	}

	fastAvg, fastVar, err := stepLine(t.fastAverage, t.fastVariance, t.fastDecay, newPrice)
	if err != nil {
		return types.VolatilitySnapshot{}, err
	}
	slowAvg, slowVar, err := stepLine(t.slowAverage, t.slowVariance, t.slowDecay, newPrice)
	if err != nil {
		return types.VolatilitySnapshot{}, err
	}
	dev, err := wadmath.DeviationBps(fastAvg, slowAvg)
	if err != nil {
		return types.VolatilitySnapshot{}, err
	}
	return types.VolatilitySnapshot{
		FastAverage:  fastAvg,
		SlowAverage:  slowAvg,
		FastVariance: fastVar,
		SlowVariance: slowVar,
		DeviationBps: dev,
		UpdatedAt:    t.lastUpdate,
	}, nil
}

// MaxVariance returns max(fastVariance, slowVariance), the conservative
// volatility signal fed into the spread calculation.
func (t *Tracker) MaxVariance() (sdkmath.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return sdkmath.Int{}, ErrNotInitialized
	}
	if t.fastVariance.GTE(t.slowVariance) {
		return t.fastVariance, nil
	}
	return t.slowVariance, nil
}

// IsVolatile reports whether the basis-point divergence between the fast and
// slow averages exceeds the threshold. An uninitialized tracker reads as
// volatile: the fail-safe default blocks trading rather than permitting it.
func (t *Tracker) IsVolatile(thresholdBps int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return true
	}
	dev, err := wadmath.DeviationBps(t.fastAverage, t.slowAverage)
	if err != nil {
		return true
	}
	return dev.GT(sdkmath.NewInt(thresholdBps))
}

// Snapshot returns the current state without advancing it.
func (t *Tracker) Snapshot() (types.VolatilitySnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return types.VolatilitySnapshot{}, ErrNotInitialized
	}
	return t.snapshotLocked()
}

// Initialized reports whether the tracker has been seeded.
func (t *Tracker) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

// Restore rehydrates a tracker from persisted state. It carries the same
// decay validation as Initialize so a corrupt row cannot resurrect an
// invalid tracker.
func (t *Tracker) Restore(snap types.VolatilitySnapshot, fastDecay, slowDecay sdkmath.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return ErrAlreadyInitialized
	}
	if snap.FastAverage.IsNil() || !snap.FastAverage.IsPositive() ||
		snap.SlowAverage.IsNil() || !snap.SlowAverage.IsPositive() {
		return ErrZeroPrice
	}
	if fastDecay.IsNil() {
		fastDecay = DefaultFastDecay
	}
	if slowDecay.IsNil() {
		slowDecay = DefaultSlowDecay
	}
	if !validDecay(fastDecay) || !validDecay(slowDecay) {
		return ErrInvalidDecay
	}
	if snap.FastVariance.IsNil() || snap.FastVariance.IsNegative() ||
		snap.SlowVariance.IsNil() || snap.SlowVariance.IsNegative() {
		return wadmath.ErrNegativeValue
	}

	t.fastAverage = snap.FastAverage
	t.slowAverage = snap.SlowAverage
	t.fastVariance = snap.FastVariance
	t.slowVariance = snap.SlowVariance
	t.fastDecay = fastDecay
	t.slowDecay = slowDecay
	t.lastUpdate = snap.UpdatedAt
	t.initialized = true
	return nil
}

// Decays returns the configured smoothing factors.
func (t *Tracker) Decays() (fast, slow sdkmath.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fastDecay, t.slowDecay
}
