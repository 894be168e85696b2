/*

Capital-allocation policy. Compares the pool's smoothed fee yield against the
external venue's advertised yield and recommends a bounded move of capital
toward whichever side pays better. The policy itself is pure: it never touches
the bridge, the yield tracker, or any clock other than the inputs it is given.

*/

package rebalance

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

var (
	ErrInvalidPolicy  = errors.New("invalid rebalance policy")
	ErrCooldownActive = errors.New("rebalance cooldown active")
	ErrInFlight       = errors.New("rebalance already in flight")
)

// ValidatePolicy bound-checks a policy before it is accepted into the
// parameter set.
func ValidatePolicy(p types.RebalancePolicy) error {
	if p.ThresholdBps <= 0 {
		return fmt.Errorf("%w: threshold must be positive, got %d", ErrInvalidPolicy, p.ThresholdBps)
	}
	if p.MinInterval <= 0 {
		return fmt.Errorf("%w: min interval must be positive, got %s", ErrInvalidPolicy, p.MinInterval)
	}
	if p.MaxPortionBps <= 0 || p.MaxPortionBps > wadmath.BpsDenom {
		return fmt.Errorf("%w: max portion must be in (0, %d], got %d", ErrInvalidPolicy, wadmath.BpsDenom, p.MaxPortionBps)
	}
	return nil
}

// Input carries everything Decide needs. PoolCapital is the pool-side capital
// eligible to be supplied out; ExternalSupplied is what is currently held at
// the yield venue and eligible to be recalled.
type Input struct {
	PoolYieldBps     int64
	ExternalYieldBps int64
	PoolCapital      sdkmath.Int
	ExternalSupplied sdkmath.Int
	LastAction       time.Time
	Now              time.Time
}

// Decide recommends at most one capital move. The yield difference must leave
// the +/- threshold band, the cooldown must have elapsed, and the amount is
// capped to maxPortionBps of the losing side. Attempts inside the band or the
// cooldown produce RebalanceNone with a reason, never an error; errors are
// reserved for invalid inputs.
func Decide(in Input, policy types.RebalancePolicy) (types.RebalanceDecision, error) {
	if err := ValidatePolicy(policy); err != nil {
		return types.RebalanceDecision{}, err
	}
	if in.PoolCapital.IsNil() || in.PoolCapital.IsNegative() ||
		in.ExternalSupplied.IsNil() || in.ExternalSupplied.IsNegative() {
		return types.RebalanceDecision{}, wadmath.ErrNegativeValue
	}

	diff := in.PoolYieldBps - in.ExternalYieldBps
	none := func(reason string) types.RebalanceDecision {
		return types.RebalanceDecision{
			Action:  types.RebalanceNone,
			Amount:  sdkmath.ZeroInt(),
			DiffBps: diff,
			Reason:  reason,
		}
	}

	// Hysteresis: equality with the threshold stays inside the band.
	if diff >= -policy.ThresholdBps && diff <= policy.ThresholdBps {
		return none("yield difference within hysteresis band"), nil
	}

	if !in.LastAction.IsZero() && in.Now.Sub(in.LastAction) < policy.MinInterval {
		return none("cooldown active"), nil
	}

	var (
		action types.RebalanceAction
		side   sdkmath.Int
	)
	if diff > 0 {
		// Pool pays better: recall external capital.
		action = types.RebalanceToPool
		side = in.ExternalSupplied
	} else {
		action = types.RebalanceToExternal
		side = in.PoolCapital
	}

	amount, err := wadmath.PortionBps(side, policy.MaxPortionBps)
	if err != nil {
		return types.RebalanceDecision{}, err
	}
	if amount.IsZero() {
		return none("losing side has no movable capital"), nil
	}

	return types.RebalanceDecision{
		Action:  action,
		Amount:  amount,
		DiffBps: diff,
	}, nil
}
