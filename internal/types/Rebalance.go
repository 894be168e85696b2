package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RebalancePolicy bounds how and how often capital may move between the
// trading pool and the external yield venue.
type RebalancePolicy struct {
	// ThresholdBps is the hysteresis band: the smoothed yield difference must
	// exceed +/- this many bps before any move is recommended.
	ThresholdBps int64 `json:"threshold_bps"`
	// MinInterval is the cooldown between executed rebalances.
	MinInterval time.Duration `json:"min_interval"`
	// MaxPortionBps caps the fraction of the losing side's capital that may
	// move in a single action.
	MaxPortionBps int64 `json:"max_portion_bps"`
}

// RebalanceAction is the recommended direction of a capital move.
type RebalanceAction int

const (
	RebalanceNone RebalanceAction = iota
	// RebalanceToPool pulls externally-held capital back into the trading pool.
	RebalanceToPool
	// RebalanceToExternal moves trading-pool capital to the yield venue.
	RebalanceToExternal
)

func (a RebalanceAction) String() string {
	switch a {
	case RebalanceToPool:
		return "to_pool"
	case RebalanceToExternal:
		return "to_external"
	default:
		return "none"
	}
}

// RebalanceDecision is the pure output of the allocation policy. Amount is
// already capped to MaxPortionBps of the losing side.
type RebalanceDecision struct {
	Action  RebalanceAction `json:"action"`
	Amount  sdkmath.Int     `json:"amount"`
	DiffBps int64           `json:"diff_bps"` // smoothed pool yield minus external yield
	Reason  string          `json:"reason,omitempty"`
}

// RebalanceReceipt records an executed (or failed) rebalance for auditing.
type RebalanceReceipt struct {
	Timestamp  time.Time       `json:"timestamp"`
	Instrument InstrumentID    `json:"instrument"`
	Action     RebalanceAction `json:"action"`
	Amount     sdkmath.Int     `json:"amount"`
	DiffBps    int64           `json:"diff_bps"`
	Payload    []byte          `json:"payload"`
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
}
