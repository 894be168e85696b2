// ./internal/state/instrument_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gabikreal1/HLE/internal/engine"
	"github.com/gabikreal1/HLE/internal/types"
)

// InstrumentStore persists per-instrument engine state. It satisfies
// engine.StateStore.
type InstrumentStore struct{}

// SaveInstrumentState upserts the full per-instrument state after a cycle.
func (InstrumentStore) SaveInstrumentState(st engine.InstrumentState) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	paramsJSON, err := json.Marshal(st.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	query := `
		INSERT INTO instrument_state (
			instrument_id, updated_at,
			fast_average, slow_average, fast_variance, slow_variance, volatility_updated_at,
			cumulative_fee_income, time_weighted_liquidity, last_liquidity_level,
			yield_period_start, yield_last_update, smoothed_yield_bps,
			total_supplied, last_rebalance, params
		) VALUES ($1, CURRENT_TIMESTAMP, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (instrument_id) DO UPDATE SET
			updated_at = CURRENT_TIMESTAMP,
			fast_average = EXCLUDED.fast_average,
			slow_average = EXCLUDED.slow_average,
			fast_variance = EXCLUDED.fast_variance,
			slow_variance = EXCLUDED.slow_variance,
			volatility_updated_at = EXCLUDED.volatility_updated_at,
			cumulative_fee_income = EXCLUDED.cumulative_fee_income,
			time_weighted_liquidity = EXCLUDED.time_weighted_liquidity,
			last_liquidity_level = EXCLUDED.last_liquidity_level,
			yield_period_start = EXCLUDED.yield_period_start,
			yield_last_update = EXCLUDED.yield_last_update,
			smoothed_yield_bps = EXCLUDED.smoothed_yield_bps,
			total_supplied = EXCLUDED.total_supplied,
			last_rebalance = EXCLUDED.last_rebalance,
			params = EXCLUDED.params;`

	_, err = DB.Exec(
		query,
		int64(st.Instrument),
		st.Volatility.FastAverage.String(), st.Volatility.SlowAverage.String(),
		st.Volatility.FastVariance.String(), st.Volatility.SlowVariance.String(),
		st.Volatility.UpdatedAt,
		st.YieldSnapshot.CumulativeFeeIncome.String(),
		st.YieldSnapshot.TimeWeightedLiquidity.String(),
		st.YieldSnapshot.LastLiquidityLevel.String(),
		st.YieldSnapshot.PeriodStart, st.YieldSnapshot.LastUpdate,
		st.SmoothedYieldBps,
		st.TotalSupplied.String(),
		nullableTime(st.LastRebalance),
		paramsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save instrument state: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// LoadInstrumentState returns the persisted state for an instrument, or
// sql.ErrNoRows wrapped when none exists.
func LoadInstrumentState(instrument types.InstrumentID) (engine.InstrumentState, error) {
	if DB == nil {
		return engine.InstrumentState{}, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT fast_average, slow_average, fast_variance, slow_variance, volatility_updated_at,
			cumulative_fee_income, time_weighted_liquidity, last_liquidity_level,
			yield_period_start, yield_last_update, smoothed_yield_bps,
			total_supplied, last_rebalance, params
		FROM instrument_state WHERE instrument_id = $1;`

	var (
		st                                    engine.InstrumentState
		fastAvg, slowAvg, fastVar, slowVar    string
		cumFee, twl, lastLevel, totalSupplied string
		lastRebalance                         sql.NullTime
		paramsJSON                            []byte
	)
	st.Instrument = instrument

	err := DB.QueryRow(query, int64(instrument)).Scan(
		&fastAvg, &slowAvg, &fastVar, &slowVar, &st.Volatility.UpdatedAt,
		&cumFee, &twl, &lastLevel,
		&st.YieldSnapshot.PeriodStart, &st.YieldSnapshot.LastUpdate, &st.SmoothedYieldBps,
		&totalSupplied, &lastRebalance, &paramsJSON,
	)
	if err == sql.ErrNoRows {
		return engine.InstrumentState{}, fmt.Errorf("no persisted state for instrument %d: %w", instrument, err)
	}
	if err != nil {
		return engine.InstrumentState{}, fmt.Errorf("failed to load instrument state: %w", err)
	}

	for _, col := range []struct {
		raw  string
		name string
		dst  func(v string) error
	}{
		{fastAvg, "fast_average", func(v string) error { x, e := scanInt(v, "fast_average"); st.Volatility.FastAverage = x; return e }},
		{slowAvg, "slow_average", func(v string) error { x, e := scanInt(v, "slow_average"); st.Volatility.SlowAverage = x; return e }},
		{fastVar, "fast_variance", func(v string) error { x, e := scanInt(v, "fast_variance"); st.Volatility.FastVariance = x; return e }},
		{slowVar, "slow_variance", func(v string) error { x, e := scanInt(v, "slow_variance"); st.Volatility.SlowVariance = x; return e }},
		{cumFee, "cumulative_fee_income", func(v string) error { x, e := scanInt(v, "cumulative_fee_income"); st.YieldSnapshot.CumulativeFeeIncome = x; return e }},
		{twl, "time_weighted_liquidity", func(v string) error { x, e := scanInt(v, "time_weighted_liquidity"); st.YieldSnapshot.TimeWeightedLiquidity = x; return e }},
		{lastLevel, "last_liquidity_level", func(v string) error { x, e := scanInt(v, "last_liquidity_level"); st.YieldSnapshot.LastLiquidityLevel = x; return e }},
		{totalSupplied, "total_supplied", func(v string) error { x, e := scanInt(v, "total_supplied"); st.TotalSupplied = x; return e }},
	} {
		if err := col.dst(col.raw); err != nil {
			return engine.InstrumentState{}, err
		}
	}
	if lastRebalance.Valid {
		st.LastRebalance = lastRebalance.Time
	}
	if err := json.Unmarshal(paramsJSON, &st.Params); err != nil {
		return engine.InstrumentState{}, fmt.Errorf("failed to parse persisted params: %w", err)
	}

	log.Debug().Uint64("instrument", uint64(instrument)).Msg("Loaded instrument state")
	return st, nil
}
