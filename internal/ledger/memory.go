package ledger

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/gabikreal1/HLE/internal/curve"
	"github.com/gabikreal1/HLE/internal/types"
	"github.com/gabikreal1/HLE/internal/wadmath"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrPoolExists        = errors.New("pool already exists")
	ErrInsufficientFunds = errors.New("insufficient reserve for withdrawal")
	ErrBelowMinimumOut   = errors.New("swap output below minimum")
)

type pool struct {
	base  sdkmath.Int
	quote sdkmath.Int
}

// Memory is an in-process Ledger used by the engine in simulation and by
// tests. Swaps settle against the constant-product curve with a flat fee.
type Memory struct {
	mu     sync.Mutex
	pools  map[types.InstrumentID]*pool
	feeBps int64
}

func NewMemory(feeBps int64) *Memory {
	return &Memory{
		pools:  make(map[types.InstrumentID]*pool),
		feeBps: feeBps,
	}
}

// CreatePool seeds an instrument's reserves.
func (m *Memory) CreatePool(id types.InstrumentID, base, quote sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pools[id]; ok {
		return ErrPoolExists
	}
	if base.IsNil() || base.IsNegative() || quote.IsNil() || quote.IsNegative() {
		return wadmath.ErrNegativeValue
	}
	m.pools[id] = &pool{base: base, quote: quote}
	return nil
}

func (m *Memory) Reserves(id types.InstrumentID) (sdkmath.Int, sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[id]
	if !ok {
		return sdkmath.Int{}, sdkmath.Int{}, ErrUnknownInstrument
	}
	return p.base, p.quote, nil
}

func (m *Memory) swapOutLocked(p *pool, dir types.TradeDirection, amountIn sdkmath.Int) (sdkmath.Int, error) {
	var reserveIn, reserveOut sdkmath.Int
	switch dir {
	case types.DirectionBuy:
		reserveIn, reserveOut = p.quote, p.base
	case types.DirectionSell:
		reserveIn, reserveOut = p.base, p.quote
	default:
		return sdkmath.Int{}, errors.New("unknown trade direction")
	}
	return curve.AmountOut(amountIn, reserveIn, reserveOut, m.feeBps)
}

func (m *Memory) PreviewSwap(id types.InstrumentID, dir types.TradeDirection, amountIn sdkmath.Int) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[id]
	if !ok {
		return sdkmath.Int{}, ErrUnknownInstrument
	}
	return m.swapOutLocked(p, dir, amountIn)
}

func (m *Memory) ExecuteSwap(id types.InstrumentID, dir types.TradeDirection, amountIn, minOut sdkmath.Int) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[id]
	if !ok {
		return sdkmath.Int{}, ErrUnknownInstrument
	}

	out, err := m.swapOutLocked(p, dir, amountIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !minOut.IsNil() && out.LT(minOut) {
		return sdkmath.Int{}, fmt.Errorf("%w: %s < %s", ErrBelowMinimumOut, out, minOut)
	}

	// Commit both sides together only after the math and the bound passed.
	switch dir {
	case types.DirectionBuy:
		p.quote = p.quote.Add(amountIn)
		p.base = p.base.Sub(out)
	case types.DirectionSell:
		p.base = p.base.Add(amountIn)
		p.quote = p.quote.Sub(out)
	}
	return out, nil
}

func (m *Memory) Deposit(id types.InstrumentID, base, quote sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[id]
	if !ok {
		return ErrUnknownInstrument
	}
	if base.IsNil() || base.IsNegative() || quote.IsNil() || quote.IsNegative() {
		return wadmath.ErrNegativeValue
	}
	p.base = p.base.Add(base)
	p.quote = p.quote.Add(quote)
	return nil
}

func (m *Memory) Withdraw(id types.InstrumentID, base, quote sdkmath.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[id]
	if !ok {
		return ErrUnknownInstrument
	}
	if base.IsNil() || base.IsNegative() || quote.IsNil() || quote.IsNegative() {
		return wadmath.ErrNegativeValue
	}
	if base.GT(p.base) || quote.GT(p.quote) {
		return ErrInsufficientFunds
	}
	p.base = p.base.Sub(base)
	p.quote = p.quote.Sub(quote)
	return nil
}
