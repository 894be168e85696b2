package rebalance

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabikreal1/HLE/internal/bridge"
	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/yield"
)

var testPolicy = types.RebalancePolicy{
	ThresholdBps:  50,
	MinInterval:   time.Hour,
	MaxPortionBps: 1000, // 10%
}

func decideInput(poolYield, externalYield int64) Input {
	return Input{
		PoolYieldBps:     poolYield,
		ExternalYieldBps: externalYield,
		PoolCapital:      sdkmath.NewInt(1_000_000),
		ExternalSupplied: sdkmath.NewInt(500_000),
		Now:              time.Unix(10_000, 0),
	}
}

func TestDecideWithinBandRecommendsNothing(t *testing.T) {
	cases := []struct {
		name         string
		pool, extern int64
	}{
		{"equal yields", 300, 300},
		{"pool slightly ahead", 340, 300},
		{"external slightly ahead", 300, 340},
		{"exactly at positive threshold", 350, 300},
		{"exactly at negative threshold", 300, 350},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Decide(decideInput(tc.pool, tc.extern), testPolicy)
			require.NoError(t, err)
			assert.Equal(t, types.RebalanceNone, d.Action)
			assert.True(t, d.Amount.IsZero())
			assert.Equal(t, "yield difference within hysteresis band", d.Reason)
		})
	}
}

func TestDecideMovesTowardBetterYield(t *testing.T) {
	// External pays 200bps more than the pool: supply out 10% of pool capital.
	d, err := Decide(decideInput(100, 300), testPolicy)
	require.NoError(t, err)
	assert.Equal(t, types.RebalanceToExternal, d.Action)
	assert.Equal(t, int64(100_000), d.Amount.Int64())
	assert.Equal(t, int64(-200), d.DiffBps)

	// Pool pays better: recall 10% of what is supplied externally.
	d, err = Decide(decideInput(500, 300), testPolicy)
	require.NoError(t, err)
	assert.Equal(t, types.RebalanceToPool, d.Action)
	assert.Equal(t, int64(50_000), d.Amount.Int64())
	assert.Equal(t, int64(200), d.DiffBps)
}

func TestDecideCooldownSuppressesMove(t *testing.T) {
	in := decideInput(500, 300)
	in.LastAction = in.Now.Add(-30 * time.Minute)

	d, err := Decide(in, testPolicy)
	require.NoError(t, err)
	assert.Equal(t, types.RebalanceNone, d.Action)
	assert.Equal(t, "cooldown active", d.Reason)

	// Once the interval has fully elapsed the move goes through.
	in.LastAction = in.Now.Add(-time.Hour)
	d, err = Decide(in, testPolicy)
	require.NoError(t, err)
	assert.Equal(t, types.RebalanceToPool, d.Action)
}

func TestDecideEmptyLosingSide(t *testing.T) {
	in := decideInput(500, 300)
	in.ExternalSupplied = sdkmath.ZeroInt()

	d, err := Decide(in, testPolicy)
	require.NoError(t, err)
	assert.Equal(t, types.RebalanceNone, d.Action)
	assert.Equal(t, "losing side has no movable capital", d.Reason)
}

func TestDecideRejectsInvalidPolicy(t *testing.T) {
	bad := testPolicy
	bad.MaxPortionBps = 10_001
	_, err := Decide(decideInput(500, 300), bad)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func newTestExecutor(t *testing.T) (*Executor, *bridge.Recorder, *yield.Tracker) {
	t.Helper()
	yt := yield.NewTracker(time.Hour, 100_000)
	require.NoError(t, yt.Initialize(sdkmath.NewInt(1_000_000), time.Unix(0, 0)))

	rec := bridge.NewRecorder()
	ex, err := NewExecutor(1, 7, rec, yt, nil)
	require.NoError(t, err)
	return ex, rec, yt
}

func waitForPayloads(t *testing.T, rec *bridge.Recorder, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := rec.Payloads(); len(p) >= n {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d submitted payloads", n)
	return nil
}

func waitForIdle(t *testing.T, ex *Executor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ex.mu.Lock()
		idle := !ex.inFlight
		ex.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("executor still in flight")
}

func TestExecuteSubmitsAndBooksSupply(t *testing.T) {
	ex, rec, _ := newTestExecutor(t)

	decision := types.RebalanceDecision{
		Action:  types.RebalanceToExternal,
		Amount:  sdkmath.NewInt(100_000),
		DiffBps: -200,
	}
	now := time.Unix(20_000, 0)

	receipt, err := ex.Execute(context.Background(), decision, testPolicy, now)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, int64(100_000), ex.TotalSupplied().Int64())
	assert.Equal(t, now, ex.LastAction())

	payloads := waitForPayloads(t, rec, 1)
	action, err := bridge.DecodeCapitalAction(payloads[0])
	require.NoError(t, err)
	assert.Equal(t, bridge.OpSupply, action.Op)
	assert.Equal(t, uint32(7), action.AssetIndex)
	assert.Equal(t, int64(100_000), action.Amount.Int64())
}

func TestExecuteRecallNeverOverdraws(t *testing.T) {
	ex, _, _ := newTestExecutor(t)

	decision := types.RebalanceDecision{
		Action: types.RebalanceToPool,
		Amount: sdkmath.NewInt(1),
	}
	_, err := ex.Execute(context.Background(), decision, testPolicy, time.Unix(20_000, 0))
	assert.Error(t, err, "recalling with nothing supplied must fail")
	assert.True(t, ex.TotalSupplied().IsZero())
}

func TestExecuteEnforcesCooldownAtMutationTime(t *testing.T) {
	ex, rec, _ := newTestExecutor(t)

	decision := types.RebalanceDecision{
		Action: types.RebalanceToExternal,
		Amount: sdkmath.NewInt(10_000),
	}
	first := time.Unix(20_000, 0)
	_, err := ex.Execute(context.Background(), decision, testPolicy, first)
	require.NoError(t, err)
	waitForPayloads(t, rec, 1)

	_, err = ex.Execute(context.Background(), decision, testPolicy, first.Add(10*time.Minute))
	assert.ErrorIs(t, err, ErrCooldownActive)
	assert.Equal(t, int64(10_000), ex.TotalSupplied().Int64(), "rejected retry must not touch bookkeeping")

	waitForIdle(t, ex)
	_, err = ex.Execute(context.Background(), decision, testPolicy, first.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), ex.TotalSupplied().Int64())
}

func TestExecuteBookkeepingSurvivesTransportFailure(t *testing.T) {
	ex, rec, _ := newTestExecutor(t)
	rec.FailWith(context.DeadlineExceeded)

	decision := types.RebalanceDecision{
		Action: types.RebalanceToExternal,
		Amount: sdkmath.NewInt(42),
	}
	_, err := ex.Execute(context.Background(), decision, testPolicy, time.Unix(20_000, 0))
	require.NoError(t, err, "fire-and-forget: transport errors are not surfaced")
	assert.Equal(t, int64(42), ex.TotalSupplied().Int64())
}

func TestExecuteRejectsNoneDecision(t *testing.T) {
	ex, _, _ := newTestExecutor(t)
	_, err := ex.Execute(context.Background(), types.RebalanceDecision{
		Action: types.RebalanceNone,
		Amount: sdkmath.ZeroInt(),
		Reason: "yield difference within hysteresis band",
	}, testPolicy, time.Unix(20_000, 0))
	assert.Error(t, err)
}

func TestPreviewDoesNotSubmit(t *testing.T) {
	ex, rec, _ := newTestExecutor(t)

	payload, err := ex.Preview(types.RebalanceDecision{
		Action: types.RebalanceToExternal,
		Amount: sdkmath.NewInt(5),
	})
	require.NoError(t, err)
	assert.Len(t, payload, 41)
	assert.Empty(t, rec.Payloads())
	assert.True(t, ex.TotalSupplied().IsZero())
	assert.True(t, ex.LastAction().IsZero())
}

func TestRestoreState(t *testing.T) {
	ex, _, _ := newTestExecutor(t)
	last := time.Unix(15_000, 0)
	require.NoError(t, ex.RestoreState(sdkmath.NewInt(777), last))
	assert.Equal(t, int64(777), ex.TotalSupplied().Int64())
	assert.Equal(t, last, ex.LastAction())

	err := ex.RestoreState(sdkmath.NewInt(-1), last)
	assert.Error(t, err)
}
