/*

The engine is the orchestrator: it owns one instrument's volatility tracker,
spread calculator, yield tracker, quote validator and rebalance executor, and
sequences every externally visible operation across them. Dependencies are
injected through Config; the engine itself holds no transport or storage
details.

Two mutation paths exist. The trade path prices a swap off the live reference
price plus spread and settles it through the ledger. The quote path executes
a pre-signed quote through the validator. Both re-read external state at the
moment of mutation and abort without partial effects.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/gabikreal1/HLE/internal/authz"
	"github.com/gabikreal1/HLE/internal/bridge"
	"github.com/gabikreal1/HLE/internal/ledger"
	"github.com/gabikreal1/HLE/internal/logger"
	"github.com/gabikreal1/HLE/internal/metrics"
	"github.com/gabikreal1/HLE/internal/oracle"
	"github.com/gabikreal1/HLE/internal/quote"
	"github.com/gabikreal1/HLE/internal/rebalance"
	"github.com/gabikreal1/HLE/internal/spread"
	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/volatility"
	"github.com/gabikreal1/HLE/internal/wadmath"
	"github.com/gabikreal1/HLE/internal/yield"
)

var (
	ErrTradeTooSmall     = errors.New("trade below minimum size")
	ErrTradeCooldown     = errors.New("trade cooldown active")
	ErrMarketTooVolatile = errors.New("market too volatile to trade")
	ErrNotInitialized    = errors.New("engine not initialized")
)

// Rejection reasons used as metric labels on the trade path.
const (
	rejectTooSmall = "too_small"
	rejectCooldown = "cooldown"
	rejectVolatile = "volatile"
	rejectNoPrice  = "no_price"
	rejectSettle   = "settlement"
)

// StateStore persists the engine's per-instrument state after each mutation
// cycle. The postgres implementation lives in internal/state.
type StateStore interface {
	SaveInstrumentState(st InstrumentState) error
}

// InstrumentState is the serializable view handed to persistence.
type InstrumentState struct {
	Instrument       types.InstrumentID       `json:"instrument"`
	Volatility       types.VolatilitySnapshot `json:"volatility"`
	YieldSnapshot    yield.Snapshot           `json:"yield"`
	SmoothedYieldBps int64                    `json:"smoothed_yield_bps"`
	TotalSupplied    sdkmath.Int              `json:"total_supplied"`
	LastRebalance    time.Time                `json:"last_rebalance"`
	Params           types.Parameters         `json:"params"`
}

// Config holds the dependencies for building an engine instance.
type Config struct {
	Instrument types.InstrumentID
	AssetIndex uint32

	Ledger     ledger.Ledger
	Prices     oracle.PriceSource
	Yields     oracle.YieldSource
	Submitter  bridge.Submitter
	Authorizer authz.Authorizer
	UsedQuotes quote.UsedStore
	Receipts   rebalance.ReceiptSink
	Store      StateStore
	Metrics    *metrics.Metrics

	Params types.Parameters
}

func validateConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Prices == nil {
		return fmt.Errorf("price source cannot be nil")
	}
	if cfg.Yields == nil {
		return fmt.Errorf("yield source cannot be nil")
	}
	if cfg.Submitter == nil {
		return fmt.Errorf("submitter cannot be nil")
	}
	if cfg.Authorizer == nil {
		return fmt.Errorf("authorizer cannot be nil")
	}
	if cfg.UsedQuotes == nil {
		return fmt.Errorf("used-quote store cannot be nil")
	}
	if cfg.Metrics == nil {
		return fmt.Errorf("metrics cannot be nil")
	}
	return ValidateParameters(cfg.Params)
}

// ValidateParameters bound-checks a full parameter set before it is accepted.
func ValidateParameters(p types.Parameters) error {
	if err := spread.ValidateConfig(types.SpreadConfig{KVol: p.KVol, KImpact: p.KImpact, MaxSpread: p.MaxSpread}); err != nil {
		return err
	}
	if err := rebalance.ValidatePolicy(p.Rebalance); err != nil {
		return err
	}
	if p.VolatilityThresholdBps <= 0 {
		return fmt.Errorf("volatility threshold must be positive, got %d", p.VolatilityThresholdBps)
	}
	if p.DefaultMaxDeviationBps <= 0 {
		return fmt.Errorf("default max deviation must be positive, got %d", p.DefaultMaxDeviationBps)
	}
	if p.MinTradeSize.IsNil() || p.MinTradeSize.IsNegative() {
		return fmt.Errorf("min trade size must be non-negative")
	}
	if p.TradeCooldown < 0 {
		return fmt.Errorf("trade cooldown must be non-negative")
	}
	if p.MinTrackingPeriod <= 0 {
		return fmt.Errorf("min tracking period must be positive")
	}
	if p.MaxSaneYieldBps <= 0 {
		return fmt.Errorf("max sane yield must be positive")
	}
	return nil
}

// Engine sequences all operations for a single instrument.
type Engine struct {
	mu sync.Mutex

	instrument types.InstrumentID

	ledger ledger.Ledger
	prices oracle.PriceSource
	yields oracle.YieldSource
	auth   authz.Authorizer
	store  StateStore
	m      *metrics.Metrics

	params     types.Parameters
	volatility *volatility.Tracker
	spread     *spread.Calculator
	yield      *yield.Tracker
	validator  *quote.Validator
	executor   *rebalance.Executor

	lastTrade  time.Time
	cycleCount int

	log zerolog.Logger
}

// New wires an engine from its dependencies. The engine starts uninitialized;
// call Initialize once a first reference price is available.
func New(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	calc, err := spread.NewCalculator(types.SpreadConfig{
		KVol:      cfg.Params.KVol,
		KImpact:   cfg.Params.KImpact,
		MaxSpread: cfg.Params.MaxSpread,
	})
	if err != nil {
		return nil, err
	}

	validator, err := quote.NewValidator(cfg.UsedQuotes, cfg.Ledger, cfg.Params.DefaultMaxDeviationBps)
	if err != nil {
		return nil, err
	}

	yt := yield.NewTracker(cfg.Params.MinTrackingPeriod, cfg.Params.MaxSaneYieldBps)

	executor, err := rebalance.NewExecutor(cfg.Instrument, cfg.AssetIndex, cfg.Submitter, yt, cfg.Receipts)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		instrument: cfg.Instrument,
		ledger:     cfg.Ledger,
		prices:     cfg.Prices,
		yields:     cfg.Yields,
		auth:       cfg.Authorizer,
		store:      cfg.Store,
		m:          cfg.Metrics,
		params:     cfg.Params,
		volatility: volatility.NewTracker(),
		spread:     calc,
		yield:      yt,
		validator:  validator,
		executor:   executor,
		log:        logger.GetForComponent("engine_core"),
	}

	e.log.Info().
		Uint64("instrument", uint64(cfg.Instrument)).
		Msg("Engine instance created")
	return e, nil
}

// poolValue prices the pool in quote terms: quote reserve plus base reserve
// at the reference price.
func poolValue(reserveBase, reserveQuote, price sdkmath.Int) (sdkmath.Int, error) {
	baseValue, err := wadmath.MulWad(reserveBase, price)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return wadmath.Add(reserveQuote, baseValue)
}

// Initialize seeds the volatility and yield trackers from the first
// reference price read. Idempotence is not offered: a second call fails the
// same way the trackers do.
func (e *Engine) Initialize(ctx context.Context, at time.Time) error {
	price, err := e.prices.Price(ctx, e.instrument)
	if err != nil {
		e.m.OracleErrorsTotal.Inc()
		return fmt.Errorf("initial price read failed: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.volatility.Initialize(price, e.params.FastDecay, e.params.SlowDecay, at); err != nil {
		return err
	}

	reserveBase, reserveQuote, err := e.ledger.Reserves(e.instrument)
	if err != nil {
		return fmt.Errorf("reserve read failed: %w", err)
	}
	value, err := poolValue(reserveBase, reserveQuote, price)
	if err != nil {
		return err
	}
	if err := e.yield.Initialize(value, at); err != nil {
		return err
	}

	e.log.Info().
		Str("price", price.String()).
		Str("pool_value", value.String()).
		Msg("Engine initialized")
	return nil
}

// Restore rehydrates trackers and bookkeeping from persisted state.
func (e *Engine) Restore(st InstrumentState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ValidateParameters(st.Params); err != nil {
		return fmt.Errorf("persisted parameters invalid: %w", err)
	}
	if err := e.volatility.Restore(st.Volatility, st.Params.FastDecay, st.Params.SlowDecay); err != nil {
		return err
	}
	if err := e.yield.Restore(st.YieldSnapshot); err != nil {
		return err
	}
	if err := e.executor.RestoreState(st.TotalSupplied, st.LastRebalance); err != nil {
		return err
	}
	e.params = st.Params
	return nil
}

func (e *Engine) rejectTrade(reason string, err error) (types.TradeQuote, error) {
	e.m.TradeRejections.WithLabelValues(reason).Inc()
	return types.TradeQuote{}, err
}

// Trade prices and settles a swap against the pool. The sequence is fixed:
// size and cooldown limits, reference price read, volatility tracker update,
// volatility gate, spread pricing, then settlement. Settlement withdraws the
// output side before depositing the input so a drained pool aborts the whole
// trade with no partial effect.
func (e *Engine) Trade(ctx context.Context, dir types.TradeDirection, amountIn sdkmath.Int, at time.Time) (types.TradeQuote, error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return types.TradeQuote{}, wadmath.ErrNegativeValue
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.volatility.Initialized() {
		return types.TradeQuote{}, ErrNotInitialized
	}
	if amountIn.LT(e.params.MinTradeSize) {
		return e.rejectTrade(rejectTooSmall, fmt.Errorf("%w: %s < %s", ErrTradeTooSmall, amountIn, e.params.MinTradeSize))
	}
	if e.params.TradeCooldown > 0 && !e.lastTrade.IsZero() && at.Sub(e.lastTrade) < e.params.TradeCooldown {
		return e.rejectTrade(rejectCooldown, ErrTradeCooldown)
	}

	price, err := e.prices.Price(ctx, e.instrument)
	if err != nil {
		e.m.OracleErrorsTotal.Inc()
		return e.rejectTrade(rejectNoPrice, fmt.Errorf("price read failed: %w", err))
	}

	if _, err := e.volatility.Update(price, at); err != nil {
		return types.TradeQuote{}, err
	}
	if e.volatility.IsVolatile(e.params.VolatilityThresholdBps) {
		return e.rejectTrade(rejectVolatile, ErrMarketTooVolatile)
	}

	reserveBase, reserveQuote, err := e.ledger.Reserves(e.instrument)
	if err != nil {
		return types.TradeQuote{}, fmt.Errorf("reserve read failed: %w", err)
	}
	maxVariance, err := e.volatility.MaxVariance()
	if err != nil {
		return types.TradeQuote{}, err
	}

	tq, err := e.spread.QuoteWithVariance(price, dir, amountIn, reserveBase, reserveQuote, maxVariance)
	if err != nil {
		return types.TradeQuote{}, err
	}

	// Output side first: if the pool cannot pay, nothing has moved yet.
	var settleErr error
	switch dir {
	case types.DirectionBuy:
		settleErr = e.ledger.Withdraw(e.instrument, tq.AmountOut, sdkmath.ZeroInt())
		if settleErr == nil {
			settleErr = e.ledger.Deposit(e.instrument, sdkmath.ZeroInt(), amountIn)
		}
	case types.DirectionSell:
		settleErr = e.ledger.Withdraw(e.instrument, sdkmath.ZeroInt(), tq.AmountOut)
		if settleErr == nil {
			settleErr = e.ledger.Deposit(e.instrument, amountIn, sdkmath.ZeroInt())
		}
	}
	if settleErr != nil {
		return e.rejectTrade(rejectSettle, fmt.Errorf("settlement failed: %w", settleErr))
	}

	// The spread is the pool's revenue on this trade, measured in quote
	// terms off the reference price.
	notional, err := quoteNotional(dir, amountIn, price)
	if err != nil {
		return types.TradeQuote{}, err
	}
	feeIncome, err := wadmath.MulWad(notional, tq.Spread.TotalSpread)
	if err != nil {
		return types.TradeQuote{}, err
	}
	e.accrueRevenueLocked(feeIncome, price, at)

	e.lastTrade = at
	e.m.TradesTotal.Inc()
	spreadBps := tq.Spread.TotalSpread.MulRaw(wadmath.BpsDenom).Quo(wadmath.WAD)
	e.m.CurrentSpreadBps.Set(float64(spreadBps.Int64()))

	e.log.Info().
		Str("direction", dir.String()).
		Str("amount_in", amountIn.String()).
		Str("amount_out", tq.AmountOut.String()).
		Int64("spread_bps", spreadBps.Int64()).
		Msg("Trade settled")

	return tq, nil
}

// quoteNotional expresses a trade's input in quote terms at the reference
// price.
func quoteNotional(dir types.TradeDirection, amountIn, price sdkmath.Int) (sdkmath.Int, error) {
	if dir == types.DirectionSell {
		return wadmath.MulWad(amountIn, price)
	}
	return amountIn, nil
}

// accrueRevenueLocked folds realized revenue into the yield tracker and
// refreshes the liquidity level from the post-settlement reserves. Failures
// here downgrade to warnings: the trade has already settled. Caller holds
// e.mu.
func (e *Engine) accrueRevenueLocked(feeIncome, price sdkmath.Int, at time.Time) {
	if feeIncome.IsPositive() {
		if err := e.yield.RecordFeeEvent(feeIncome, at); err != nil {
			e.log.Warn().Err(err).Msg("Failed to record fee income")
		}
	}

	newBase, newQuote, err := e.ledger.Reserves(e.instrument)
	if err == nil {
		if value, verr := poolValue(newBase, newQuote, price); verr == nil {
			if uerr := e.yield.UpdateLiquidityLevel(value, at); uerr != nil {
				e.log.Warn().Err(uerr).Msg("Failed to update liquidity level")
			}
		}
	}
}

// ValidateQuote checks a signed quote against the live reference price
// without mutating anything.
func (e *Engine) ValidateQuote(ctx context.Context, q types.Quote, caller string, height uint64) (types.ValidationResult, error) {
	price, err := e.prices.Price(ctx, e.instrument)
	if err != nil {
		e.m.OracleErrorsTotal.Inc()
		return types.ValidationResult{}, fmt.Errorf("price read failed: %w", err)
	}
	return e.validator.Validate(q, price, caller, height)
}

// ExecuteQuote re-validates and settles a signed quote. It holds the engine
// lock for the whole sequence so a concurrent Trade cannot move the reserves
// between the validator's preview and its settlement.
func (e *Engine) ExecuteQuote(ctx context.Context, q types.Quote, caller string, height uint64, at time.Time) (sdkmath.Int, error) {
	price, err := e.prices.Price(ctx, e.instrument)
	if err != nil {
		e.m.OracleErrorsTotal.Inc()
		return sdkmath.Int{}, fmt.Errorf("price read failed: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	realized, err := e.validator.Execute(q, price, caller, height, at)
	if err != nil {
		if errors.Is(err, quote.ErrQuoteRejected) {
			e.m.QuoteRejections.WithLabelValues(rejectionLabel(err)).Inc()
		}
		return sdkmath.Int{}, err
	}

	// Quote settlement generates pool revenue the same way a direct trade
	// does: the execution price's distance from the live reference, on the
	// input notional. Fold it into the yield state so quote flow counts
	// toward the pool's own yield.
	if feeIncome, ferr := quoteRevenue(q, price); ferr != nil {
		e.log.Warn().Err(ferr).Msg("Failed to compute quote revenue")
	} else {
		e.accrueRevenueLocked(feeIncome, price, at)
	}

	e.m.TradesTotal.Inc()
	return realized, nil
}

// quoteRevenue measures the pool's revenue on an executed quote in quote
// terms: the input notional times the spread between the quote's execution
// price and the live reference.
func quoteRevenue(q types.Quote, livePrice sdkmath.Int) (sdkmath.Int, error) {
	devBps, err := wadmath.DeviationBps(q.ExecutionPrice, livePrice)
	if err != nil {
		return sdkmath.Int{}, err
	}
	notional, err := quoteNotional(q.Direction, q.AmountIn, livePrice)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return wadmath.PortionBps(notional, devBps.Int64())
}

// rejectionLabel maps a rejection error to a compact metric label.
func rejectionLabel(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, types.ReasonNotIntendedUser):
		return "not_intended_user"
	case strings.Contains(msg, types.ReasonQuoteAlreadyUsed):
		return "already_used"
	case strings.Contains(msg, types.ReasonQuoteExpired):
		return "expired"
	case strings.Contains(msg, types.ReasonOracleDrifted):
		return "oracle_drifted"
	case strings.Contains(msg, types.ReasonPriceOutOfBounds):
		return "price_out_of_bounds"
	default:
		return "other"
	}
}
