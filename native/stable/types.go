package stable

import (
	"math/big"
	"strings"
	"time"
)

// Token symbols used throughout the module. The stable unit and the claim
// tokens carry 18 decimals; the reserve asset keeps its native precision.
const (
	SymbolStable   = "PUSD"
	SymbolReserve  = "WBTC"
	SymbolBond     = "PBOND"
	SymbolBackstop = "PGOV"
)

// Address identifies an account within the ledger.
type Address = [20]byte

// PriceQuote captures a single observation from an upstream price source. The
// value is a fixed-point integer interpreted at Scale decimal places.
// Confidence, when non-nil, carries the source-reported uncertainty expressed
// in the same fixed-point representation as Value.
type PriceQuote struct {
	Value      *big.Int
	Scale      uint8
	Source     string
	ObservedAt time.Time
	Confidence *big.Int
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Scale: q.Scale, Source: q.Source, ObservedAt: q.ObservedAt}
	if q.Value != nil {
		clone.Value = new(big.Int).Set(q.Value)
	}
	if q.Confidence != nil {
		clone.Confidence = new(big.Int).Set(q.Confidence)
	}
	return clone
}

// Valid reports whether the quote carries a usable positive value. A zero
// value must never be used as a divisor downstream.
func (q PriceQuote) Valid() bool {
	return q.Value != nil && q.Value.Sign() > 0
}

// Normalized rescales the quote value to the canonical 18-decimal
// representation.
func (q PriceQuote) Normalized() *big.Int {
	if q.Value == nil {
		return big.NewInt(0)
	}
	return normalize(q.Value, q.Scale)
}

// ReserveState is a fresh read of the ledger quantities that determine
// solvency. ReserveBalance is denominated in the reserve asset's native
// decimals; the supplies are 18-decimal.
//
// WrappedLiabilitySupply counts vault shares whose underlying stable units
// were burned when the position was wrapped, so adding it on top of
// LiabilitySupply does not double-count. A vault that merely holds live
// stable units must report zero here.
type ReserveState struct {
	ReserveBalance         *big.Int
	LiabilitySupply        *big.Int
	WrappedLiabilitySupply *big.Int
}

// Clone returns a deep copy of the state.
func (s ReserveState) Clone() ReserveState {
	clone := ReserveState{}
	if s.ReserveBalance != nil {
		clone.ReserveBalance = new(big.Int).Set(s.ReserveBalance)
	}
	if s.LiabilitySupply != nil {
		clone.LiabilitySupply = new(big.Int).Set(s.LiabilitySupply)
	}
	if s.WrappedLiabilitySupply != nil {
		clone.WrappedLiabilitySupply = new(big.Int).Set(s.WrappedLiabilitySupply)
	}
	return clone
}

// TotalLiability returns the combined raw and wrapped stable-unit liability.
func (s ReserveState) TotalLiability() *big.Int {
	total := big.NewInt(0)
	if s.LiabilitySupply != nil {
		total.Add(total, s.LiabilitySupply)
	}
	if s.WrappedLiabilitySupply != nil {
		total.Add(total, s.WrappedLiabilitySupply)
	}
	return total
}

// MintRequest describes a reserve deposit to be converted into stable units.
type MintRequest struct {
	DepositAmount *big.Int
}

// MintResult carries the outcome of a mint evaluation. IssuedAmount and Fee
// are 18-decimal stable units; the fee is minted to the treasury.
type MintResult struct {
	IssuedAmount *big.Int
	Fee          *big.Int
}

// Copy returns a deep copy of the result.
func (r *MintResult) Copy() *MintResult {
	if r == nil {
		return nil
	}
	clone := &MintResult{}
	if r.IssuedAmount != nil {
		clone.IssuedAmount = new(big.Int).Set(r.IssuedAmount)
	}
	if r.Fee != nil {
		clone.Fee = new(big.Int).Set(r.Fee)
	}
	return clone
}

// RedeemRequest describes a stable-unit burn to be converted back into
// reserve assets.
type RedeemRequest struct {
	BurnAmount *big.Int
}

// RedeemResult carries the outcome of a redemption. ReservePayout is in the
// reserve asset's native decimals; the compensation amounts and fee are
// 18-decimal. BackstopShortfall records any entitlement the backstop reserve
// could not cover.
type RedeemResult struct {
	ReservePayout        *big.Int
	BondCompensation     *big.Int
	BackstopCompensation *big.Int
	BackstopShortfall    *big.Int
	Fee                  *big.Int
}

// Copy returns a deep copy of the result.
func (r *RedeemResult) Copy() *RedeemResult {
	if r == nil {
		return nil
	}
	clone := &RedeemResult{}
	for dst, src := range map[**big.Int]*big.Int{
		&clone.ReservePayout:        r.ReservePayout,
		&clone.BondCompensation:     r.BondCompensation,
		&clone.BackstopCompensation: r.BackstopCompensation,
		&clone.BackstopShortfall:    r.BackstopShortfall,
		&clone.Fee:                  r.Fee,
	} {
		if src != nil {
			*dst = new(big.Int).Set(src)
		}
	}
	return clone
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
