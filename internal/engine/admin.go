package engine

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/rebalance"
	"github.com/gabikreal1/HLE/internal/spread"
	"github.com/gabikreal1/HLE/internal/types"
)

// Every mutating configuration operation checks the caller exactly once,
// here at the boundary. Bound validation happens before any field changes;
// a rejected update leaves the previous values fully intact.

func (e *Engine) authorize(caller string) error {
	if err := e.auth.Authorize(caller); err != nil {
		e.log.Warn().Str("caller", caller).Msg("Unauthorized configuration attempt")
		return err
	}
	return nil
}

// Parameters returns a copy of the active parameter set.
func (e *Engine) Parameters() types.Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// UpdateSpreadConfig replaces the spread coefficients.
func (e *Engine) UpdateSpreadConfig(caller string, cfg types.SpreadConfig) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	calc, err := spread.NewCalculator(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.spread = calc
	e.params.KVol = cfg.KVol
	e.params.KImpact = cfg.KImpact
	e.params.MaxSpread = cfg.MaxSpread

	e.log.Info().
		Str("k_vol", cfg.KVol.String()).
		Str("k_impact", cfg.KImpact.String()).
		Str("max_spread", cfg.MaxSpread.String()).
		Msg("Spread configuration updated")
	return nil
}

// UpdateRebalancePolicy replaces the capital-allocation policy.
func (e *Engine) UpdateRebalancePolicy(caller string, policy types.RebalancePolicy) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := rebalance.ValidatePolicy(policy); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.Rebalance = policy

	e.log.Info().
		Int64("threshold_bps", policy.ThresholdBps).
		Dur("min_interval", policy.MinInterval).
		Int64("max_portion_bps", policy.MaxPortionBps).
		Msg("Rebalance policy updated")
	return nil
}

// UpdateTradeLimits replaces the minimum trade size and trade cooldown.
func (e *Engine) UpdateTradeLimits(caller string, minTradeSize sdkmath.Int, cooldown time.Duration) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if minTradeSize.IsNil() || minTradeSize.IsNegative() {
		return fmt.Errorf("min trade size must be non-negative")
	}
	if cooldown < 0 {
		return fmt.Errorf("trade cooldown must be non-negative")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.MinTradeSize = minTradeSize
	e.params.TradeCooldown = cooldown
	return nil
}

// UpdateVolatilityThreshold replaces the trading gate's divergence threshold.
func (e *Engine) UpdateVolatilityThreshold(caller string, thresholdBps int64) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if thresholdBps <= 0 {
		return fmt.Errorf("volatility threshold must be positive, got %d", thresholdBps)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.VolatilityThresholdBps = thresholdBps
	return nil
}

// UpdateDefaultMaxDeviation replaces the fallback deviation bound applied to
// quotes that carry none of their own.
func (e *Engine) UpdateDefaultMaxDeviation(caller string, bps int64) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := e.validator.SetDefaultMaxDeviationBps(bps); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.params.DefaultMaxDeviationBps = bps
	return nil
}

// ResetYieldPeriod zeroes the yield accumulators, carrying the current
// liquidity level into the new period.
func (e *Engine) ResetYieldPeriod(caller string, at time.Time) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	return e.yield.ResetPeriod(at)
}
