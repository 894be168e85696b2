package oracle

import (
	"context"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/types"
)

// Static serves fixed prices and yields set by the caller. Used in tests and
// for dry-run wiring; instruments without a value return the explicit
// no-data errors, same as the RPC client.
type Static struct {
	mu     sync.RWMutex
	prices map[types.InstrumentID]sdkmath.Int
	yields map[types.InstrumentID]int64
}

func NewStatic() *Static {
	return &Static{
		prices: make(map[types.InstrumentID]sdkmath.Int),
		yields: make(map[types.InstrumentID]int64),
	}
}

func (s *Static) SetPrice(instrument types.InstrumentID, priceWad sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[instrument] = priceWad
}

func (s *Static) SetYieldBps(instrument types.InstrumentID, yieldBps int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.yields[instrument] = yieldBps
}

func (s *Static) Price(_ context.Context, instrument types.InstrumentID) (sdkmath.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[instrument]
	if !ok || price.IsNil() || !price.IsPositive() {
		return sdkmath.Int{}, ErrNoPriceData
	}
	return price, nil
}

func (s *Static) ExternalYieldBps(_ context.Context, instrument types.InstrumentID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	yieldBps, ok := s.yields[instrument]
	if !ok {
		return 0, ErrNoYieldData
	}
	return yieldBps, nil
}
