package stable

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// CheckDeviation compares a candidate price against a reference price and
// returns ErrDeviationExceeded when the absolute relative difference is
// greater than boundBps. Both prices are 18-decimal. The check rejects rather
// than clamps: a price outside the bound must never flow downstream.
func CheckDeviation(price, reference *big.Int, boundBps uint64) error {
	if price == nil || price.Sign() <= 0 || reference == nil || reference.Sign() <= 0 {
		return ErrStalePrice
	}
	if boundBps == 0 {
		return nil
	}
	diff := new(big.Int).Sub(price, reference)
	if diff.Sign() < 0 {
		diff.Neg(diff)
	}
	// diff/reference > boundBps/10000  <=>  diff*10000 > reference*boundBps
	lhs := new(big.Int).Mul(diff, basisPoints)
	rhs := new(big.Int).Mul(reference, new(big.Int).SetUint64(boundBps))
	if lhs.Cmp(rhs) > 0 {
		return fmt.Errorf("%w: %s vs reference %s at %d bps", ErrDeviationExceeded, price.String(), reference.String(), boundBps)
	}
	return nil
}

// BoundChange records a single audited update to the deviation bound.
type BoundChange struct {
	OldBps uint64
	NewBps uint64
	At     time.Time
}

// DeviationPolicy governs the tolerance applied when cross-checking the AMM
// price against the multi-source reference. The bound only ever tightens,
// stays within [floorBps, ceilingBps], and changes are rate limited by a
// cooldown. Every accepted change is retained for audit.
type DeviationPolicy struct {
	mu         sync.RWMutex
	currentBps uint64
	floorBps   uint64
	ceilingBps uint64
	cooldown   time.Duration
	lastChange time.Time
	changes    []BoundChange
	clock      func() time.Time
}

// NewDeviationPolicy constructs a policy with the supplied initial bound.
func NewDeviationPolicy(initialBps, floorBps, ceilingBps uint64, cooldown time.Duration) (*DeviationPolicy, error) {
	if ceilingBps > 10_000 {
		return nil, fmt.Errorf("stable: deviation ceiling must not exceed 10000 bps")
	}
	if floorBps == 0 || floorBps > ceilingBps {
		return nil, fmt.Errorf("stable: deviation floor must be within (0, ceiling]")
	}
	if initialBps < floorBps || initialBps > ceilingBps {
		return nil, fmt.Errorf("%w: initial bound %d outside [%d, %d]", ErrBoundOutOfRange, initialBps, floorBps, ceilingBps)
	}
	if cooldown < 0 {
		cooldown = 0
	}
	return &DeviationPolicy{
		currentBps: initialBps,
		floorBps:   floorBps,
		ceilingBps: ceilingBps,
		cooldown:   cooldown,
		clock:      time.Now,
	}, nil
}

// SetClock overrides the wall clock, primarily for deterministic testing.
func (p *DeviationPolicy) SetClock(clock func() time.Time) {
	if p == nil || clock == nil {
		return
	}
	p.mu.Lock()
	p.clock = clock
	p.mu.Unlock()
}

// Bound returns the currently enforced deviation tolerance in basis points.
func (p *DeviationPolicy) Bound() uint64 {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentBps
}

// Tighten lowers the deviation bound. Updates that loosen the bound, fall
// outside the floor/ceiling range, or arrive before the cooldown elapsed are
// rejected without mutating state.
func (p *DeviationPolicy) Tighten(newBps uint64) (BoundChange, error) {
	if p == nil {
		return BoundChange{}, fmt.Errorf("stable: deviation policy not configured")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock().UTC()
	if p.cooldown > 0 && !p.lastChange.IsZero() && now.Sub(p.lastChange) < p.cooldown {
		return BoundChange{}, fmt.Errorf("%w: next update allowed at %s", ErrBoundCooldown, p.lastChange.Add(p.cooldown).Format(time.RFC3339))
	}
	if newBps >= p.currentBps {
		return BoundChange{}, fmt.Errorf("%w: %d -> %d", ErrBoundLoosened, p.currentBps, newBps)
	}
	if newBps < p.floorBps || newBps > p.ceilingBps {
		return BoundChange{}, fmt.Errorf("%w: %d outside [%d, %d]", ErrBoundOutOfRange, newBps, p.floorBps, p.ceilingBps)
	}
	change := BoundChange{OldBps: p.currentBps, NewBps: newBps, At: now}
	p.currentBps = newBps
	p.lastChange = now
	p.changes = append(p.changes, change)
	return change, nil
}

// History returns a defensive copy of the audited bound changes.
func (p *DeviationPolicy) History() []BoundChange {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]BoundChange{}, p.changes...)
}
