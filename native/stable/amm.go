package stable

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// PoolReader exposes the reserves of a constant-product pool. Reserve amounts
// are in each token's native decimals.
type PoolReader interface {
	Reserves() (reserve0, reserve1 *big.Int, err error)
	Token0() string
	Token1() string
}

// PoolMeta describes the decimal precision of a pool's tokens.
type PoolMeta struct {
	Decimals0 uint8
	Decimals1 uint8
}

// SpotPrice computes the instantaneous reserve-ratio price of base in quote
// terms at 18-decimal scale. The base token must be one side of the pool.
func SpotPrice(pool PoolReader, meta PoolMeta, base string) (*big.Int, error) {
	if pool == nil {
		return nil, fmt.Errorf("stable: pool reader not configured")
	}
	r0, r1, err := pool.Reserves()
	if err != nil {
		return nil, fmt.Errorf("stable: pool reserves: %w", err)
	}
	if r0 == nil || r0.Sign() <= 0 || r1 == nil || r1.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool reserves empty", ErrStalePrice)
	}
	baseSym := normaliseSymbol(base)
	var baseReserve, quoteReserve *big.Int
	var baseDec, quoteDec uint8
	switch {
	case normaliseSymbol(pool.Token0()) == baseSym:
		baseReserve, quoteReserve = r0, r1
		baseDec, quoteDec = meta.Decimals0, meta.Decimals1
	case normaliseSymbol(pool.Token1()) == baseSym:
		baseReserve, quoteReserve = r1, r0
		baseDec, quoteDec = meta.Decimals1, meta.Decimals0
	default:
		return nil, fmt.Errorf("stable: token %s not in pool %s/%s", base, pool.Token0(), pool.Token1())
	}
	// price = (quoteReserve / 10^quoteDec) / (baseReserve / 10^baseDec), at 1e18
	return mulDiv(normalize(quoteReserve, quoteDec), scaleOne, normalize(baseReserve, baseDec)), nil
}

type twapObservation struct {
	at         time.Time
	cumulative *big.Int // sum of spot * elapsed seconds
	spot       *big.Int
}

// TWAPAccumulator maintains a cumulative-price window over a pool so callers
// can prefer a time-weighted average over the manipulable spot reading. The
// window is ready once it holds two observations spaced at least the
// observation period apart.
type TWAPAccumulator struct {
	mu      sync.RWMutex
	pool    PoolReader
	meta    PoolMeta
	base    string
	period  time.Duration
	window  time.Duration
	history []twapObservation
	clock   func() time.Time
}

// NewTWAPAccumulator constructs an accumulator over the supplied pool for the
// base token. period is the minimum spacing that makes the window ready;
// window bounds how far back observations are retained.
func NewTWAPAccumulator(pool PoolReader, meta PoolMeta, base string, period, window time.Duration) *TWAPAccumulator {
	if window < period {
		window = period
	}
	return &TWAPAccumulator{
		pool:   pool,
		meta:   meta,
		base:   normaliseSymbol(base),
		period: period,
		window: window,
		clock:  time.Now,
	}
}

// SetClock overrides the time source for deterministic testing.
func (t *TWAPAccumulator) SetClock(clock func() time.Time) {
	if t == nil || clock == nil {
		return
	}
	t.mu.Lock()
	t.clock = clock
	t.mu.Unlock()
}

// Observe samples the pool's spot price and extends the cumulative window.
// Failures propagate so callers can decide whether the observation matters;
// the coordinator treats Observe as best-effort.
func (t *TWAPAccumulator) Observe() error {
	if t == nil || t.pool == nil {
		return fmt.Errorf("stable: twap accumulator not configured")
	}
	spot, err := SpotPrice(t.pool, t.meta, t.base)
	if err != nil {
		return err
	}
	now := t.clock().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	cumulative := big.NewInt(0)
	if n := len(t.history); n > 0 {
		prev := t.history[n-1]
		if !now.After(prev.at) {
			return nil
		}
		elapsed := int64(now.Sub(prev.at) / time.Second)
		cumulative = new(big.Int).Add(prev.cumulative, new(big.Int).Mul(prev.spot, big.NewInt(elapsed)))
	}
	t.history = append(t.history, twapObservation{at: now, cumulative: cumulative, spot: spot})
	if t.window > 0 {
		cutoff := now.Add(-t.window)
		trimmed := t.history[:0]
		for i, obs := range t.history {
			// keep one observation before the cutoff so the window spans it
			if obs.at.Before(cutoff) && i+1 < len(t.history) && !t.history[i+1].at.After(cutoff) {
				continue
			}
			trimmed = append(trimmed, obs)
		}
		t.history = trimmed
	}
	return nil
}

// Ready reports whether the window spans at least one full observation period.
func (t *TWAPAccumulator) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.history)
	if n < 2 {
		return false
	}
	return t.history[n-1].at.Sub(t.history[0].at) >= t.period
}

// TWAP returns the time-weighted average price across the retained window at
// 18-decimal scale.
func (t *TWAPAccumulator) TWAP() (*big.Int, error) {
	if t == nil {
		return nil, fmt.Errorf("stable: twap accumulator not configured")
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.history)
	if n < 2 {
		return nil, fmt.Errorf("%w: twap window not ready", ErrStalePrice)
	}
	first := t.history[0]
	last := t.history[n-1]
	elapsed := int64(last.at.Sub(first.at) / time.Second)
	if elapsed <= 0 {
		return nil, fmt.Errorf("%w: twap window not ready", ErrStalePrice)
	}
	delta := new(big.Int).Sub(last.cumulative, first.cumulative)
	return delta.Quo(delta, big.NewInt(elapsed)), nil
}

// StaticPool is an in-memory PoolReader used for tests and simulations.
type StaticPool struct {
	mu       sync.RWMutex
	token0   string
	token1   string
	reserve0 *big.Int
	reserve1 *big.Int
}

// NewStaticPool constructs a pool with fixed token symbols.
func NewStaticPool(token0, token1 string) *StaticPool {
	return &StaticPool{
		token0:   normaliseSymbol(token0),
		token1:   normaliseSymbol(token1),
		reserve0: big.NewInt(0),
		reserve1: big.NewInt(0),
	}
}

// SetReserves replaces the pool reserves.
func (p *StaticPool) SetReserves(reserve0, reserve1 *big.Int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	if reserve0 != nil {
		p.reserve0 = new(big.Int).Set(reserve0)
	}
	if reserve1 != nil {
		p.reserve1 = new(big.Int).Set(reserve1)
	}
	p.mu.Unlock()
}

// Reserves returns defensive copies of the current reserves.
func (p *StaticPool) Reserves() (*big.Int, *big.Int, error) {
	if p == nil {
		return nil, nil, fmt.Errorf("stable: pool not configured")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.reserve0), new(big.Int).Set(p.reserve1), nil
}

// Token0 returns the first token symbol.
func (p *StaticPool) Token0() string { return p.token0 }

// Token1 returns the second token symbol.
func (p *StaticPool) Token1() string { return p.token1 }

var _ PoolReader = (*StaticPool)(nil)
