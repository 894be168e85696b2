package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// InstrumentID is the instrument this engine instance manages.
	InstrumentID uint64

	// AssetIndex is the wire index of the managed asset in capital payloads.
	AssetIndex uint32

	// LogLevel selects the zerolog level ("debug", "info", "warn", "error").
	LogLevel string

	// CycleInterval is the allocation loop period.
	CycleInterval time.Duration

	// WebListenAddr is the bind address of the status server.
	WebListenAddr string

	// Admins is the list of identities allowed to mutate configuration.
	Admins []string

	// ConfigName selects the named parameter set in the database.
	ConfigName string

	// InitialReserveBase and InitialReserveQuote seed the in-process pool at
	// startup, in WAD units.
	InitialReserveBase  sdkmath.Int
	InitialReserveQuote sdkmath.Int

	// PoolFeeBps is the flat fee the constant-product ledger charges on swaps.
	PoolFeeBps int64

	// Database connection parameters.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	InstrumentID, err = getEnvAsUint64("HLE_INSTRUMENT_ID")
	if err != nil {
		return err
	}

	assetIndex, err := getEnvAsUint64("HLE_ASSET_INDEX")
	if err != nil {
		return err
	}
	if assetIndex > 1<<32-1 {
		return errors.New("environment variable HLE_ASSET_INDEX must fit in uint32")
	}
	AssetIndex = uint32(assetIndex)

	LogLevel, err = getEnv("LOG_LEVEL")
	if err != nil {
		return err
	}

	intervalSecs, err := getEnvAsUint64("HLE_CYCLE_INTERVAL_SECONDS")
	if err != nil {
		return err
	}
	CycleInterval = time.Duration(intervalSecs) * time.Second

	WebListenAddr, err = getEnv("WEB_LISTEN_ADDR")
	if err != nil {
		return err
	}

	adminsRaw, err := getEnv("HLE_ADMINS")
	if err != nil {
		return err
	}
	Admins = nil
	for _, a := range strings.Split(adminsRaw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			Admins = append(Admins, a)
		}
	}
	if len(Admins) == 0 {
		return errors.New("environment variable HLE_ADMINS must list at least one identity")
	}

	ConfigName, err = getEnv("HLE_CONFIG_NAME")
	if err != nil {
		return err
	}

	InitialReserveBase, err = getEnvAsWad("HLE_INITIAL_RESERVE_BASE")
	if err != nil {
		return err
	}
	InitialReserveQuote, err = getEnvAsWad("HLE_INITIAL_RESERVE_QUOTE")
	if err != nil {
		return err
	}

	feeBps, err := getEnvAsUint64("HLE_POOL_FEE_BPS")
	if err != nil {
		return err
	}
	if feeBps >= 10_000 {
		return errors.New("environment variable HLE_POOL_FEE_BPS must be below 10000")
	}
	PoolFeeBps = int64(feeBps)

	if err := loadDatabaseConfig(); err != nil {
		return err
	}

	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Uint64("InstrumentID", InstrumentID).
		Uint32("AssetIndex", AssetIndex).
		Str("ConfigName", ConfigName).
		Msg("Configuration loaded successfully.")

	return nil
}

// loadDatabaseConfig loads postgres connection settings.
func loadDatabaseConfig() error {
	var err error

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}

	port, err := getEnvAsUint64("DB_PORT")
	if err != nil {
		return err
	}
	DBPort = int(port)

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode, err = getEnv("DB_SSLMODE")
	if err != nil {
		return err
	}

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsWad retrieves an environment variable as a non-negative WAD integer.
func getEnvAsWad(key string) (sdkmath.Int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return sdkmath.Int{}, err
	}
	value, ok := sdkmath.NewIntFromString(valueStr)
	if !ok || value.IsNegative() {
		return sdkmath.Int{}, errors.New("environment variable " + key + " must be a non-negative integer, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}
