/*

Reference data sources. The pricing path needs two external reads: the
reference price of an instrument (an 8-decimal feed, scaled to WAD here) and
the external venue's advertised yield. Both are exposed as narrow interfaces
so the engine can be wired against the JSON-RPC client in production and a
static source in tests.

A missing or zero feed value is always an explicit ErrNoPriceData, never a
silent zero: a zero reference price flowing into the spread math would produce
quotes at garbage prices.

*/

package oracle

import (
	"context"
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/types"
)

var (
	ErrNoPriceData = errors.New("no price data for instrument")
	ErrNoYieldData = errors.New("no yield data for instrument")
)

// PriceSource returns the current reference price of an instrument in WAD,
// quote-per-base.
type PriceSource interface {
	Price(ctx context.Context, instrument types.InstrumentID) (sdkmath.Int, error)
}

// YieldSource returns the external venue's advertised annualized yield in bps.
type YieldSource interface {
	ExternalYieldBps(ctx context.Context, instrument types.InstrumentID) (int64, error)
}
