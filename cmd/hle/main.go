package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/gabikreal1/HLE/internal/authz"
	"github.com/gabikreal1/HLE/internal/bridge"
	"github.com/gabikreal1/HLE/internal/config"
	"github.com/gabikreal1/HLE/internal/engine"
	"github.com/gabikreal1/HLE/internal/ledger"
	"github.com/gabikreal1/HLE/internal/logger"
	"github.com/gabikreal1/HLE/internal/metrics"
	"github.com/gabikreal1/HLE/internal/oracle"
	"github.com/gabikreal1/HLE/internal/state"
	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/web"
)

const CONFIG_VERSION = 1

// main is the entry point for the hybrid liquidity engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(config.LogLevel)
	log.Info().Msg("Hybrid Liquidity Engine starting...")

	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Load Parameters ---
	params, _, err := state.LoadActiveParameters(config.ConfigName)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active parameters, using defaults and saving.")
		defaults := config.DefaultParameters
		if _, err := state.SaveParameters(defaults, config.ConfigName, CONFIG_VERSION, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default parameters.")
		}
		params = &defaults
	}
	log.Info().Msg("Engine parameters loaded successfully.")

	// --- 3. Wire Dependencies ---
	prices, err := oracle.NewRPCClient(config.NodeRPC)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build oracle client")
	}

	submitter, err := bridge.NewHTTPSubmitter(config.BridgeRPC)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build bridge submitter")
	}

	m := metrics.New()
	instrument := types.InstrumentID(config.InstrumentID)

	pools := ledger.NewMemory(config.PoolFeeBps)
	if err := pools.CreatePool(instrument, config.InitialReserveBase, config.InitialReserveQuote); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed pool reserves")
	}

	eng, err := engine.New(engine.Config{
		Instrument: instrument,
		AssetIndex: config.AssetIndex,
		Ledger:     pools,
		Prices:     prices,
		Yields:     prices,
		Submitter:  submitter,
		Authorizer: authz.NewAllowList(config.Admins),
		UsedQuotes: state.UsedQuoteStore{},
		Receipts:   state.ReceiptStore{},
		Store:      state.InstrumentStore{},
		Metrics:    m,
		Params:     *params,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine instance")
	}

	// --- 4. Restore or Initialize ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if st, err := state.LoadInstrumentState(instrument); err == nil {
		if err := eng.Restore(st); err != nil {
			log.Fatal().Err(err).Msg("Failed to restore persisted state")
		}
		log.Info().Msg("Engine state restored from database.")
	} else {
		log.Warn().Err(err).Msg("No persisted state, initializing from live data.")
		initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
		defer initCancel()
		if err := eng.Initialize(initCtx, time.Now()); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize engine")
		}
	}

	// --- 5. Start Web Server ---
	webServer := web.NewWebServer(config.WebListenAddr, eng, m)
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	// --- 6. Run Allocation Loop ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	log.Info().Dur("interval", config.CycleInterval).Msg("Starting allocation loop")
	eng.RunLoop(ctx, config.CycleInterval)
}
