package stable

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// StaticPeg is a PegSource holding a governance-set target price. TryRefresh
// is a no-op; the peg moves only through Set.
type StaticPeg struct {
	mu    sync.RWMutex
	value *big.Int
}

// NewStaticPeg constructs a peg source at the supplied 18-decimal USD price.
// A nil value defaults to exactly one dollar.
func NewStaticPeg(value *big.Int) *StaticPeg {
	peg := &StaticPeg{value: new(big.Int).Set(scaleOne)}
	if value != nil && value.Sign() > 0 {
		peg.value = new(big.Int).Set(value)
	}
	return peg
}

// Set replaces the peg price.
func (p *StaticPeg) Set(value *big.Int) error {
	if p == nil {
		return fmt.Errorf("stable: peg not configured")
	}
	if value == nil || value.Sign() <= 0 {
		return fmt.Errorf("stable: peg price must be positive")
	}
	p.mu.Lock()
	p.value = new(big.Int).Set(value)
	p.mu.Unlock()
	return nil
}

// SetDecimal parses a decimal string into the 18-decimal peg price.
func (p *StaticPeg) SetDecimal(value string) error {
	if p == nil {
		return fmt.Errorf("stable: peg not configured")
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("stable: peg value required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok || rat.Sign() <= 0 {
		return fmt.Errorf("stable: invalid peg value %q", value)
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scaleOne))
	return p.Set(new(big.Int).Quo(scaled.Num(), scaled.Denom()))
}

// CurrentPeg implements the PegSource interface.
func (p *StaticPeg) CurrentPeg() (*big.Int, error) {
	if p == nil {
		return nil, fmt.Errorf("stable: peg not configured")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.value), nil
}

// TryRefresh implements the PegSource interface.
func (p *StaticPeg) TryRefresh() bool { return false }
