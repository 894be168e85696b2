// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/gabikreal1/HLE/internal/types"
)

// SaveParameters saves a new version of engine parameters.
func SaveParameters(params types.Parameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE engine_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO engine_parameters (
            version, config_name, is_active, activated_at, created_at,
            k_vol, k_impact, max_spread,
            fast_decay, slow_decay, volatility_threshold_bps,
            default_max_deviation_bps,
            min_trade_size, trade_cooldown_seconds,
            min_tracking_period_seconds, max_sane_yield_bps,
            rebalance_threshold_bps, rebalance_min_interval_seconds, rebalance_max_portion_bps
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8,
            $9, $10, $11,
            $12,
            $13, $14,
            $15, $16,
            $17, $18, $19
        ) RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.KVol.String(), params.KImpact.String(), params.MaxSpread.String(),
		params.FastDecay.String(), params.SlowDecay.String(), params.VolatilityThresholdBps,
		params.DefaultMaxDeviationBps,
		params.MinTradeSize.String(), int64(params.TradeCooldown.Seconds()),
		int64(params.MinTrackingPeriod.Seconds()), params.MaxSaneYieldBps,
		params.Rebalance.ThresholdBps, int64(params.Rebalance.MinInterval.Seconds()), params.Rebalance.MaxPortionBps,
	).Scan(&paramsID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert engine parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved engine parameters")
	return paramsID, nil
}

// scanInt parses a NUMERIC column scanned as string into an sdkmath.Int.
func scanInt(raw string, column string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("failed to parse %s value %q", column, raw)
	}
	return v, nil
}

// LoadActiveParameters loads the currently active parameter set for a config
// name. Returns sql.ErrNoRows wrapped when none is active.
func LoadActiveParameters(configName string) (*types.Parameters, int64, error) {
	if DB == nil {
		return nil, 0, fmt.Errorf("database not initialized")
	}

	query := `
        SELECT params_id,
            k_vol, k_impact, max_spread,
            fast_decay, slow_decay, volatility_threshold_bps,
            default_max_deviation_bps,
            min_trade_size, trade_cooldown_seconds,
            min_tracking_period_seconds, max_sane_yield_bps,
            rebalance_threshold_bps, rebalance_min_interval_seconds, rebalance_max_portion_bps
        FROM engine_parameters
        WHERE config_name = $1 AND is_active = TRUE
        ORDER BY activated_at DESC
        LIMIT 1;`

	var (
		paramsID                                                 int64
		kVol, kImpact, maxSpread, fastDecay, slowDecay, minTrade string
		cooldownSecs, trackingSecs, minIntervalSecs              int64
		p                                                        types.Parameters
	)
	err := DB.QueryRow(query, configName).Scan(
		&paramsID,
		&kVol, &kImpact, &maxSpread,
		&fastDecay, &slowDecay, &p.VolatilityThresholdBps,
		&p.DefaultMaxDeviationBps,
		&minTrade, &cooldownSecs,
		&trackingSecs, &p.MaxSaneYieldBps,
		&p.Rebalance.ThresholdBps, &minIntervalSecs, &p.Rebalance.MaxPortionBps,
	)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("no active parameters for config %q: %w", configName, err)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load active parameters: %w", err)
	}

	for _, col := range []struct {
		raw  string
		name string
		dst  *sdkmath.Int
	}{
		{kVol, "k_vol", &p.KVol},
		{kImpact, "k_impact", &p.KImpact},
		{maxSpread, "max_spread", &p.MaxSpread},
		{fastDecay, "fast_decay", &p.FastDecay},
		{slowDecay, "slow_decay", &p.SlowDecay},
		{minTrade, "min_trade_size", &p.MinTradeSize},
	} {
		v, err := scanInt(col.raw, col.name)
		if err != nil {
			return nil, 0, err
		}
		*col.dst = v
	}
	p.TradeCooldown = time.Duration(cooldownSecs) * time.Second
	p.MinTrackingPeriod = time.Duration(trackingSecs) * time.Second
	p.Rebalance.MinInterval = time.Duration(minIntervalSecs) * time.Second

	return &p, paramsID, nil
}
