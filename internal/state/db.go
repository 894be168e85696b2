// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	// WAD and fee amounts are stored as NUMERIC(78, 0): large enough for any
	// 256-bit integer, exact, and round-trippable through string scanning.
	schemaSQL := `
		CREATE TABLE IF NOT EXISTS engine_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			k_vol NUMERIC(78, 0) NOT NULL, k_impact NUMERIC(78, 0) NOT NULL, max_spread NUMERIC(78, 0) NOT NULL,
			fast_decay NUMERIC(78, 0) NOT NULL, slow_decay NUMERIC(78, 0) NOT NULL,
			volatility_threshold_bps BIGINT NOT NULL,
			default_max_deviation_bps BIGINT NOT NULL,
			min_trade_size NUMERIC(78, 0) NOT NULL,
			trade_cooldown_seconds BIGINT NOT NULL,
			min_tracking_period_seconds BIGINT NOT NULL,
			max_sane_yield_bps BIGINT NOT NULL,
			rebalance_threshold_bps BIGINT NOT NULL,
			rebalance_min_interval_seconds BIGINT NOT NULL,
			rebalance_max_portion_bps BIGINT NOT NULL,
			CONSTRAINT uq_engine_parameters_config_version UNIQUE (config_name, version)
		);
		CREATE INDEX IF NOT EXISTS idx_engine_parameters_config_active ON engine_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS instrument_state (
			instrument_id BIGINT PRIMARY KEY,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			fast_average NUMERIC(78, 0) NOT NULL,
			slow_average NUMERIC(78, 0) NOT NULL,
			fast_variance NUMERIC(78, 0) NOT NULL,
			slow_variance NUMERIC(78, 0) NOT NULL,
			volatility_updated_at TIMESTAMPTZ NOT NULL,
			cumulative_fee_income NUMERIC(78, 0) NOT NULL,
			time_weighted_liquidity NUMERIC(78, 0) NOT NULL,
			last_liquidity_level NUMERIC(78, 0) NOT NULL,
			yield_period_start TIMESTAMPTZ NOT NULL,
			yield_last_update TIMESTAMPTZ NOT NULL,
			smoothed_yield_bps BIGINT NOT NULL,
			total_supplied NUMERIC(78, 0) NOT NULL,
			last_rebalance TIMESTAMPTZ,
			params JSONB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS used_quotes (
			quote_id UUID PRIMARY KEY,
			used_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_used_quotes_used_at ON used_quotes(used_at DESC);

		CREATE TABLE IF NOT EXISTS rebalance_receipts (
			receipt_id SERIAL PRIMARY KEY,
			action_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			instrument_id BIGINT NOT NULL,
			action_type VARCHAR(50) NOT NULL,
			amount NUMERIC(78, 0) NOT NULL,
			diff_bps BIGINT NOT NULL,
			payload BYTEA,
			success BOOLEAN NOT NULL,
			message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_rebalance_receipts_timestamp ON rebalance_receipts(action_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_rebalance_receipts_instrument ON rebalance_receipts(instrument_id);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
