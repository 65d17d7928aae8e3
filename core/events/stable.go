package events

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	// TypeStableMinted is emitted whenever a reserve deposit mints stable units.
	TypeStableMinted = "stable.minted"
	// TypeStableRedeemed is emitted whenever stable units are burned for reserve assets.
	TypeStableRedeemed = "stable.redeemed"
	// TypeBondRedeemed is emitted whenever bond tokens convert back to stable units.
	TypeBondRedeemed = "stable.bond_redeemed"
	// TypeDeviationUpdated is emitted whenever the deviation bound tightens.
	TypeDeviationUpdated = "stable.deviation_updated"
)

// StableMinted reports a completed mint outcome.
type StableMinted struct {
	Account       [20]byte
	DepositAmount *big.Int
	IssuedAmount  *big.Int
	Fee           *big.Int
}

func (StableMinted) EventType() string { return TypeStableMinted }

func (e StableMinted) Event() *Record {
	return &Record{
		Type: TypeStableMinted,
		Attributes: map[string]string{
			"account": hex.EncodeToString(e.Account[:]),
			"deposit": amountString(e.DepositAmount),
			"issued":  amountString(e.IssuedAmount),
			"fee":     amountString(e.Fee),
		},
	}
}

// StableRedeemed reports a completed redemption, including the compensation
// split taken on the undercollateralized branch.
type StableRedeemed struct {
	Account              [20]byte
	BurnAmount           *big.Int
	ReservePayout        *big.Int
	BondCompensation     *big.Int
	BackstopCompensation *big.Int
	BackstopShortfall    *big.Int
	Fee                  *big.Int
	CollateralRatio      *big.Int
}

func (StableRedeemed) EventType() string { return TypeStableRedeemed }

func (e StableRedeemed) Event() *Record {
	return &Record{
		Type: TypeStableRedeemed,
		Attributes: map[string]string{
			"account":           hex.EncodeToString(e.Account[:]),
			"burned":            amountString(e.BurnAmount),
			"reservePayout":     amountString(e.ReservePayout),
			"bondComp":          amountString(e.BondCompensation),
			"backstopComp":      amountString(e.BackstopCompensation),
			"backstopShortfall": amountString(e.BackstopShortfall),
			"fee":               amountString(e.Fee),
			"collateralRatio":   amountString(e.CollateralRatio),
		},
	}
}

// BondRedeemed reports a bond-for-stable-unit conversion.
type BondRedeemed struct {
	Account      [20]byte
	BondAmount   *big.Int
	IssuedAmount *big.Int
}

func (BondRedeemed) EventType() string { return TypeBondRedeemed }

func (e BondRedeemed) Event() *Record {
	return &Record{
		Type: TypeBondRedeemed,
		Attributes: map[string]string{
			"account": hex.EncodeToString(e.Account[:]),
			"burned":  amountString(e.BondAmount),
			"issued":  amountString(e.IssuedAmount),
		},
	}
}

// DeviationUpdated reports an audited tightening of the deviation bound.
type DeviationUpdated struct {
	OldBps uint64
	NewBps uint64
	At     time.Time
}

func (DeviationUpdated) EventType() string { return TypeDeviationUpdated }

func (e DeviationUpdated) Event() *Record {
	return &Record{
		Type: TypeDeviationUpdated,
		Attributes: map[string]string{
			"oldBps": strconv.FormatUint(e.OldBps, 10),
			"newBps": strconv.FormatUint(e.NewBps, 10),
			"at":     strings.TrimSpace(e.At.UTC().Format(time.RFC3339)),
		},
	}
}

func amountString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
