package rebalance

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/gabikreal1/HLE/internal/bridge"
	"github.com/gabikreal1/HLE/internal/logger"
	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/yield"
)

// ReceiptSink persists executed rebalance receipts for auditing. Sink
// failures are logged but never roll back the action: the payload is already
// on the wire by the time the receipt is written.
type ReceiptSink interface {
	SaveReceipt(receipt types.RebalanceReceipt) error
}

// Executor turns an approved decision into a submitted capital action and
// keeps the local allocation bookkeeping. One executor per instrument; at
// most one action can be in flight at a time and early retries are rejected,
// never queued.
type Executor struct {
	mu sync.Mutex

	instrument types.InstrumentID
	assetIndex uint32
	submitter  bridge.Submitter
	yields     *yield.Tracker
	receipts   ReceiptSink

	lastAction    time.Time
	totalSupplied sdkmath.Int
	inFlight      bool

	log zerolog.Logger
}

// NewExecutor wires an executor for one instrument. receipts may be nil when
// no persistence is attached (tests, dry runs).
func NewExecutor(instrument types.InstrumentID, assetIndex uint32, submitter bridge.Submitter, yields *yield.Tracker, receipts ReceiptSink) (*Executor, error) {
	if submitter == nil {
		return nil, fmt.Errorf("submitter cannot be nil")
	}
	if yields == nil {
		return nil, fmt.Errorf("yield tracker cannot be nil")
	}
	return &Executor{
		instrument:    instrument,
		assetIndex:    assetIndex,
		submitter:     submitter,
		yields:        yields,
		receipts:      receipts,
		totalSupplied: sdkmath.ZeroInt(),
		log:           logger.GetForComponent("rebalance_executor"),
	}, nil
}

// TotalSupplied reports the optimistic view of capital currently held at the
// external venue.
func (e *Executor) TotalSupplied() sdkmath.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalSupplied
}

// LastAction returns when the most recent action was executed (zero if none).
func (e *Executor) LastAction() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAction
}

// RestoreState rehydrates bookkeeping from persistence on startup.
func (e *Executor) RestoreState(totalSupplied sdkmath.Int, lastAction time.Time) error {
	if totalSupplied.IsNil() || totalSupplied.IsNegative() {
		return fmt.Errorf("total supplied must be non-negative")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.totalSupplied = totalSupplied
	e.lastAction = lastAction
	return nil
}

// Preview encodes the payload a decision would submit, without submitting it
// or touching any bookkeeping.
func (e *Executor) Preview(decision types.RebalanceDecision) ([]byte, error) {
	op, err := opcodeFor(decision.Action)
	if err != nil {
		return nil, err
	}
	return bridge.EncodeCapitalAction(op, e.assetIndex, decision.Amount)
}

func opcodeFor(action types.RebalanceAction) (bridge.Opcode, error) {
	switch action {
	case types.RebalanceToExternal:
		return bridge.OpSupply, nil
	case types.RebalanceToPool:
		return bridge.OpRecall, nil
	default:
		return 0, fmt.Errorf("action %q carries no capital", action)
	}
}

// Execute submits the decision's payload and commits the local bookkeeping.
// The cooldown is re-checked here under the lock: Decide may have run against
// a stale clock, and the mutation-time check is the one that counts. The
// submission itself is fire-and-forget; transport failures are logged and
// reconciled out-of-band, they do not unwind the optimistic bookkeeping.
func (e *Executor) Execute(ctx context.Context, decision types.RebalanceDecision, policy types.RebalancePolicy, now time.Time) (types.RebalanceReceipt, error) {
	if decision.Action == types.RebalanceNone {
		return types.RebalanceReceipt{}, fmt.Errorf("nothing to execute: %s", decision.Reason)
	}
	if decision.Amount.IsNil() || !decision.Amount.IsPositive() {
		return types.RebalanceReceipt{}, bridge.ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastAction.IsZero() && now.Sub(e.lastAction) < policy.MinInterval {
		return types.RebalanceReceipt{}, ErrCooldownActive
	}
	if e.inFlight {
		return types.RebalanceReceipt{}, ErrInFlight
	}
	if decision.Action == types.RebalanceToPool && decision.Amount.GT(e.totalSupplied) {
		return types.RebalanceReceipt{}, fmt.Errorf("cannot recall %s: only %s supplied", decision.Amount, e.totalSupplied)
	}

	op, err := opcodeFor(decision.Action)
	if err != nil {
		return types.RebalanceReceipt{}, err
	}
	payload, err := bridge.EncodeCapitalAction(op, e.assetIndex, decision.Amount)
	if err != nil {
		return types.RebalanceReceipt{}, err
	}

	e.inFlight = true
	go func() {
		defer func() {
			e.mu.Lock()
			e.inFlight = false
			e.mu.Unlock()
		}()
		if err := e.submitter.Submit(ctx, payload); err != nil {
			e.log.Error().Err(err).
				Uint64("instrument", uint64(e.instrument)).
				Str("action", decision.Action.String()).
				Msg("Capital action submission failed, pending out-of-band reconciliation")
		}
	}()

	// Optimistic bookkeeping: the action is assumed delivered. A failed
	// delivery is corrected by reconciliation, not by rolling back here.
	switch decision.Action {
	case types.RebalanceToExternal:
		e.totalSupplied = e.totalSupplied.Add(decision.Amount)
	case types.RebalanceToPool:
		e.totalSupplied = e.totalSupplied.Sub(decision.Amount)
	}
	e.lastAction = now

	// The move invalidates the yield sample the decision was based on.
	if err := e.yields.ResetPeriod(now); err != nil {
		e.log.Warn().Err(err).Msg("Failed to reset yield tracking period after rebalance")
	}

	receipt := types.RebalanceReceipt{
		Timestamp:  now,
		Instrument: e.instrument,
		Action:     decision.Action,
		Amount:     decision.Amount,
		DiffBps:    decision.DiffBps,
		Payload:    payload,
		Success:    true,
	}
	if e.receipts != nil {
		if err := e.receipts.SaveReceipt(receipt); err != nil {
			e.log.Error().Err(err).Msg("Failed to persist rebalance receipt")
		}
	}

	e.log.Info().
		Uint64("instrument", uint64(e.instrument)).
		Str("action", decision.Action.String()).
		Str("amount", decision.Amount.String()).
		Int64("diff_bps", decision.DiffBps).
		Str("total_supplied", e.totalSupplied.String()).
		Msg("Rebalance executed")

	return receipt, nil
}
