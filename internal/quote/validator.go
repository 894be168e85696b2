/*

Quote/execution validator. A quote is a previously-issued priced trade
intent; at execution time the validator re-checks the caller, replay state,
expiry and the live reference price against the quote's snapshot, then
settles through the ledger. Validation-only calls return a structured
result with a machine-distinguishable reason; the execute path re-runs the
same checks at the moment of state mutation and aborts with no partial
effect.

This is the strict single-branch accept/reject design: there is no
"offer current price" middle branch.

*/

package quote

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gabikreal1/HLE/internal/ledger"
	"github.com/gabikreal1/HLE/internal/logger"
	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

var (
	ErrQuoteRejected      = errors.New("quote rejected")
	ErrOutputBelowMinimum = errors.New("realized output below quote minimum")
	ErrZeroLivePrice      = errors.New("live reference price cannot be zero")
)

// UsedStore is the append-only replay-protection set. MarkUsed must be
// durable before Execute reports success.
type UsedStore interface {
	IsUsed(id uuid.UUID) (bool, error)
	MarkUsed(id uuid.UUID, at time.Time) error
}

// MemoryUsedStore keeps the used set in process, for simulation and tests.
type MemoryUsedStore struct {
	mu   sync.Mutex
	used map[uuid.UUID]time.Time
}

func NewMemoryUsedStore() *MemoryUsedStore {
	return &MemoryUsedStore{used: make(map[uuid.UUID]time.Time)}
}

func (s *MemoryUsedStore) IsUsed(id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.used[id]
	return ok, nil
}

func (s *MemoryUsedStore) MarkUsed(id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[id] = at
	return nil
}

// Validator checks and executes quotes for the instruments it serves.
type Validator struct {
	mu sync.Mutex

	used   UsedStore
	ledger ledger.Ledger

	// defaultMaxDeviationBps applies when a quote specifies no bound of its
	// own. Atomic: Validate reads it without holding the execute mutex.
	defaultMaxDeviationBps atomic.Int64

	log zerolog.Logger
}

func NewValidator(used UsedStore, lgr ledger.Ledger, defaultMaxDeviationBps int64) (*Validator, error) {
	if used == nil || lgr == nil {
		return nil, errors.New("used store and ledger are required")
	}
	if defaultMaxDeviationBps <= 0 {
		return nil, errors.New("default max deviation must be positive")
	}
	v := &Validator{
		used:   used,
		ledger: lgr,
		log:    logger.GetForComponent("quote_validator"),
	}
	v.defaultMaxDeviationBps.Store(defaultMaxDeviationBps)
	return v, nil
}

// SetDefaultMaxDeviationBps replaces the fallback deviation bound. Quotes
// carrying their own bound are unaffected.
func (v *Validator) SetDefaultMaxDeviationBps(bps int64) error {
	if bps <= 0 {
		return errors.New("default max deviation must be positive")
	}
	v.defaultMaxDeviationBps.Store(bps)
	return nil
}

func (v *Validator) deviationBound(q types.Quote) sdkmath.Int {
	if q.MaxDeviationBps > 0 {
		return sdkmath.NewInt(q.MaxDeviationBps)
	}
	return sdkmath.NewInt(v.defaultMaxDeviationBps.Load())
}

// Validate runs the full check sequence against the live reference price.
// The returned error is reserved for infrastructure faults (store access,
// arithmetic); a refused quote is a Valid=false result, not an error.
//
// The deviation boundary is non-strict: a price exactly at the bound passes.
func (v *Validator) Validate(q types.Quote, livePrice sdkmath.Int, caller string, height uint64) (types.ValidationResult, error) {
	if livePrice.IsNil() || !livePrice.IsPositive() {
		return types.ValidationResult{}, ErrZeroLivePrice
	}

	if caller != q.Executor {
		return types.Invalid(types.ReasonNotIntendedUser), nil
	}

	used, err := v.used.IsUsed(q.ID)
	if err != nil {
		return types.ValidationResult{}, fmt.Errorf("replay store lookup failed: %w", err)
	}
	if used {
		return types.Invalid(types.ReasonQuoteAlreadyUsed), nil
	}

	if height > q.ExpiryHeight {
		return types.Invalid(types.ReasonQuoteExpired), nil
	}

	bound := v.deviationBound(q)

	oracleDrift, err := wadmath.DeviationBps(livePrice, q.OraclePrice)
	if err != nil {
		return types.ValidationResult{}, err
	}
	if oracleDrift.GT(bound) {
		return types.Invalid(types.ReasonOracleDrifted), nil
	}

	priceDev, err := wadmath.DeviationBps(q.ExecutionPrice, livePrice)
	if err != nil {
		return types.ValidationResult{}, err
	}
	if priceDev.GT(bound) {
		return types.Invalid(types.ReasonPriceOutOfBounds), nil
	}

	return types.Valid(), nil
}

// Execute re-validates at the moment of mutation, permanently marks the
// quote used, settles the swap through the ledger, and returns the realized
// output. The minimum-output bound travels into the ledger settlement, which
// refuses-or-commits in one step, so a refused settle never leaves reserves
// half-moved. A failure at any step leaves no observable partial effect
// except the burned quote identifier once settlement has begun.
func (v *Validator) Execute(q types.Quote, livePrice sdkmath.Int, caller string, height uint64, at time.Time) (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	result, err := v.Validate(q, livePrice, caller, height)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !result.Valid {
		return sdkmath.Int{}, fmt.Errorf("%w: %s", ErrQuoteRejected, result.Reason)
	}

	// Phase one: compute the intended effect from already-read state and
	// refuse before anything is committed, identifier included.
	expectedOut, err := v.ledger.PreviewSwap(q.Instrument, q.Direction, q.AmountIn)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("swap preview failed: %w", err)
	}
	if expectedOut.LT(q.MinAmountOut) {
		return sdkmath.Int{}, fmt.Errorf("%w: expected %s < min %s",
			ErrOutputBelowMinimum, expectedOut, q.MinAmountOut)
	}

	// Phase two: burn the identifier, then settle. The replay mark goes
	// first so an adversarially re-ordered duplicate can never settle twice.
	if err := v.used.MarkUsed(q.ID, at); err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to mark quote used: %w", err)
	}

	realized, err := v.ledger.ExecuteSwap(q.Instrument, q.Direction, q.AmountIn, q.MinAmountOut)
	if errors.Is(err, ledger.ErrBelowMinimumOut) {
		// Reserves moved between preview and settle. Nothing was committed;
		// only the identifier stays burned.
		v.log.Error().
			Str("quote_id", q.ID.String()).
			Str("minimum", q.MinAmountOut.String()).
			Msg("Realized output fell below minimum after validation")
		return sdkmath.Int{}, fmt.Errorf("%w: %v", ErrOutputBelowMinimum, err)
	}
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("swap settlement failed: %w", err)
	}

	v.log.Info().
		Str("quote_id", q.ID.String()).
		Str("direction", q.Direction.String()).
		Str("amount_in", q.AmountIn.String()).
		Str("amount_out", realized.String()).
		Msg("Quote executed")

	return realized, nil
}
