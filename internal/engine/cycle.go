package engine

import (
	"context"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/gabikreal1/HLE/internal/rebalance"
	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/yield"
)

const defaultCycleInterval = time.Minute

// RunLoop drives the allocation cycle until the context is cancelled. The
// first cycle runs immediately, then once per interval.
func (e *Engine) RunLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultCycleInterval
	}
	e.log.Info().
		Dur("interval", interval).
		Msg("Starting allocation loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.runCycle(ctx, interval, time.Now())

	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("Allocation loop stopped due to context cancellation")
			return
		case <-ticker.C:
			e.runCycle(ctx, interval, time.Now())
		}
	}
}

// RunCycle executes a single allocation cycle at the current time.
func (e *Engine) RunCycle(ctx context.Context) {
	e.runCycle(ctx, defaultCycleInterval, time.Now())
}

// runCycle refreshes the trackers from a fresh price read, compares the
// pool's smoothed yield against the external venue, and executes at most one
// bounded capital move. Every step that fails downgrades to a log line; a
// cycle never panics the loop.
func (e *Engine) runCycle(ctx context.Context, interval time.Duration, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cycleCount++
	cycleLog := e.log.With().Int("cycle", e.cycleCount).Logger()

	if !e.volatility.Initialized() {
		cycleLog.Warn().Msg("Skipping cycle: engine not initialized")
		return
	}

	price, err := e.prices.Price(ctx, e.instrument)
	if err != nil {
		e.m.OracleErrorsTotal.Inc()
		cycleLog.Error().Err(err).Msg("Reference price read failed, skipping cycle")
		return
	}

	if _, err := e.volatility.UpdateTimeWeighted(price, interval, at); err != nil {
		cycleLog.Error().Err(err).Msg("Volatility update failed, skipping cycle")
		return
	}

	reserveBase, reserveQuote, err := e.ledger.Reserves(e.instrument)
	if err != nil {
		cycleLog.Error().Err(err).Msg("Reserve read failed, skipping cycle")
		return
	}
	value, err := poolValue(reserveBase, reserveQuote, price)
	if err != nil {
		cycleLog.Error().Err(err).Msg("Pool valuation failed, skipping cycle")
		return
	}
	if err := e.yield.UpdateLiquidityLevel(value, at); err != nil {
		cycleLog.Error().Err(err).Msg("Liquidity level update failed, skipping cycle")
		return
	}

	if _, err := e.yield.ObserveYield(at); err != nil {
		cycleLog.Error().Err(err).Msg("Yield observation failed, skipping cycle")
		return
	}
	smoothed, err := e.yield.SmoothedYieldBps()
	if err != nil {
		cycleLog.Error().Err(err).Msg("Smoothed yield unavailable, skipping cycle")
		return
	}
	e.m.SmoothedYieldBps.Set(float64(smoothed))

	external, err := e.yields.ExternalYieldBps(ctx, e.instrument)
	if err != nil {
		e.m.OracleErrorsTotal.Inc()
		cycleLog.Error().Err(err).Msg("External yield read failed, skipping cycle")
		return
	}

	decision, err := rebalance.Decide(rebalance.Input{
		PoolYieldBps:     smoothed,
		ExternalYieldBps: external,
		PoolCapital:      value,
		ExternalSupplied: e.executor.TotalSupplied(),
		LastAction:       e.executor.LastAction(),
		Now:              at,
	}, e.params.Rebalance)
	if err != nil {
		cycleLog.Error().Err(err).Msg("Rebalance decision failed, skipping cycle")
		return
	}

	if decision.Action == types.RebalanceNone {
		cycleLog.Debug().
			Int64("diff_bps", decision.DiffBps).
			Str("reason", decision.Reason).
			Msg("No rebalance this cycle")
	} else {
		e.executeRebalance(ctx, decision, at, cycleLog)
	}

	e.persistCycle(cycleLog)
}

func (e *Engine) executeRebalance(ctx context.Context, decision types.RebalanceDecision, at time.Time, cycleLog zerolog.Logger) {
	if _, err := e.executor.Execute(ctx, decision, e.params.Rebalance, at); err != nil {
		cycleLog.Warn().Err(err).
			Str("action", decision.Action.String()).
			Msg("Rebalance execution refused")
		return
	}
	e.m.RebalancesTotal.WithLabelValues(decision.Action.String()).Inc()

	// Mirror the move in the local reserve view. The on-wire action settles
	// asynchronously; any divergence is caught by reconciliation.
	var err error
	switch decision.Action {
	case types.RebalanceToExternal:
		err = e.ledger.Withdraw(e.instrument, sdkmath.ZeroInt(), decision.Amount)
	case types.RebalanceToPool:
		err = e.ledger.Deposit(e.instrument, sdkmath.ZeroInt(), decision.Amount)
	}
	if err != nil {
		cycleLog.Error().Err(err).Msg("Failed to mirror rebalance in reserves")
	}

	e.m.ExternalSuppliedWad.Set(intAsFloat(e.executor.TotalSupplied()))
}

func intAsFloat(x sdkmath.Int) float64 {
	f, _ := new(big.Float).SetInt(x.BigInt()).Float64()
	return f
}

func (e *Engine) persistCycle(cycleLog zerolog.Logger) {
	volSnap, err := e.volatility.Snapshot()
	if err != nil {
		cycleLog.Error().Err(err).Msg("Failed to snapshot volatility state")
		return
	}
	yieldSnap, err := e.yield.Snapshot()
	if err != nil {
		cycleLog.Error().Err(err).Msg("Failed to snapshot yield state")
		return
	}
	smoothed, _ := e.yield.SmoothedYieldBps()

	if e.store != nil {
		err := e.store.SaveInstrumentState(InstrumentState{
			Instrument:       e.instrument,
			Volatility:       volSnap,
			YieldSnapshot:    yieldSnap,
			SmoothedYieldBps: smoothed,
			TotalSupplied:    e.executor.TotalSupplied(),
			LastRebalance:    e.executor.LastAction(),
			Params:           e.params,
		})
		if err != nil {
			cycleLog.Error().Err(err).Msg("Failed to persist instrument state")
		}
	}
}

// Status is the JSON snapshot served by the web layer.
type Status struct {
	Instrument       types.InstrumentID       `json:"instrument"`
	ReserveBase      sdkmath.Int              `json:"reserve_base"`
	ReserveQuote     sdkmath.Int              `json:"reserve_quote"`
	Volatility       types.VolatilitySnapshot `json:"volatility"`
	Yield            yield.Snapshot           `json:"yield"`
	SmoothedYieldBps int64                    `json:"smoothed_yield_bps"`
	TotalSupplied    sdkmath.Int              `json:"total_supplied"`
	LastRebalance    time.Time                `json:"last_rebalance"`
	Params           types.Parameters         `json:"params"`
}

// Status assembles the current externally visible state.
func (e *Engine) Status() (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	reserveBase, reserveQuote, err := e.ledger.Reserves(e.instrument)
	if err != nil {
		return Status{}, err
	}
	volSnap, err := e.volatility.Snapshot()
	if err != nil {
		return Status{}, err
	}
	yieldSnap, err := e.yield.Snapshot()
	if err != nil {
		return Status{}, err
	}
	smoothed, err := e.yield.SmoothedYieldBps()
	if err != nil {
		return Status{}, err
	}

	return Status{
		Instrument:       e.instrument,
		ReserveBase:      reserveBase,
		ReserveQuote:     reserveQuote,
		Volatility:       volSnap,
		Yield:            yieldSnap,
		SmoothedYieldBps: smoothed,
		TotalSupplied:    e.executor.TotalSupplied(),
		LastRebalance:    e.executor.LastAction(),
		Params:           e.params,
	}, nil
}
