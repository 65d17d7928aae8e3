package stable

import (
	"fmt"
	"math/big"
)

// RedeemPrices bundles the price snapshot a redemption evaluates against.
// ReservePrice and PegPrice are always required; the compensation prices are
// only consulted on the undercollateralized branch. BondFloorStable is the
// governance-set floor denominated in stable units per bond and is converted
// to USD through the peg price.
type RedeemPrices struct {
	ReservePrice    *big.Int
	PegPrice        *big.Int
	BondMarketPrice *big.Int
	BondFloorStable *big.Int
	BackstopPrice   *big.Int
}

// EvaluateRedeem converts a stable-unit burn into payouts. The branch is
// selected by the collateral ratio at evaluation time, which callers must
// recompute fresh for every call.
//
// Fully collateralized (CR >= 100%): the redeemer is paid entirely in the
// reserve asset, sized at the peg price, symmetric with minting.
//
// Undercollateralized (CR < 100%): a CR-proportional fraction of the value is
// paid in the reserve asset. The uncovered remainder is compensated in bond
// tokens valued at max(market, floor); a governance-routed share (and any
// value the bond leg cannot price) falls to the backstop token, whose payout
// is capped at backstopAvailable — a partial fill, never an abort.
func EvaluateRedeem(burnAmount *big.Int, reserveDecimals uint8, prices RedeemPrices, collateralRatio *big.Int, feeBps, backstopShareBps uint64, backstopAvailable *big.Int) (*RedeemResult, error) {
	if burnAmount == nil || burnAmount.Sign() <= 0 {
		return nil, fmt.Errorf("stable: burn amount must be positive")
	}
	if prices.ReservePrice == nil || prices.ReservePrice.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserve price non-positive", ErrStalePrice)
	}
	if prices.PegPrice == nil || prices.PegPrice.Sign() <= 0 {
		return nil, fmt.Errorf("%w: peg price non-positive", ErrStalePrice)
	}
	if collateralRatio == nil || collateralRatio.Sign() < 0 {
		return nil, fmt.Errorf("stable: collateral ratio required")
	}
	if feeBps > 10_000 || backstopShareBps > 10_000 {
		return nil, fmt.Errorf("stable: bps parameter must not exceed 10000")
	}

	fee := applyBps(burnAmount, feeBps)
	net := new(big.Int).Sub(burnAmount, fee)
	netValue := mulDiv(net, prices.PegPrice, scaleOne)

	result := &RedeemResult{
		Fee:                  fee,
		BondCompensation:     big.NewInt(0),
		BackstopCompensation: big.NewInt(0),
		BackstopShortfall:    big.NewInt(0),
	}

	if collateralRatio.Cmp(scaleOne) >= 0 {
		result.ReservePayout = denormalize(mulDiv(netValue, scaleOne, prices.ReservePrice), reserveDecimals)
		return result, nil
	}

	reserveValue := mulDiv(netValue, collateralRatio, scaleOne)
	remainder := new(big.Int).Sub(netValue, reserveValue)
	result.ReservePayout = denormalize(mulDiv(reserveValue, scaleOne, prices.ReservePrice), reserveDecimals)

	bondValue := mulDiv(remainder, new(big.Int).SetUint64(10_000-backstopShareBps), basisPoints)
	backstopValue := new(big.Int).Sub(remainder, bondValue)

	bondFloor := mulDiv(prices.BondFloorStable, prices.PegPrice, scaleOne)
	bondPrice := maxBig(prices.BondMarketPrice, bondFloor)
	if bondValue.Sign() > 0 {
		if bondPrice.Sign() > 0 {
			result.BondCompensation = mulDiv(bondValue, scaleOne, bondPrice)
		} else {
			// No way to price the bond leg: route its value to the backstop.
			backstopValue.Add(backstopValue, bondValue)
		}
	}

	if backstopValue.Sign() > 0 {
		if prices.BackstopPrice == nil || prices.BackstopPrice.Sign() <= 0 {
			return nil, fmt.Errorf("%w: backstop price non-positive", ErrStalePrice)
		}
		entitlement := mulDiv(backstopValue, scaleOne, prices.BackstopPrice)
		paid := entitlement
		if backstopAvailable != nil {
			paid = minBig(entitlement, backstopAvailable)
		}
		result.BackstopCompensation = paid
		result.BackstopShortfall = new(big.Int).Sub(entitlement, paid)
	}
	return result, nil
}

// EvaluateBondRedemption converts bond tokens back into stable units at 1:1.
// The swap is only open while the system is fully collateralized and is
// capped by the parity surplus so it can never itself push the collateral
// ratio below 100%.
func EvaluateBondRedemption(bondAmount, collateralRatio, maxRedeemable *big.Int) (*big.Int, error) {
	if bondAmount == nil || bondAmount.Sign() <= 0 {
		return nil, fmt.Errorf("stable: bond amount must be positive")
	}
	if collateralRatio == nil || collateralRatio.Cmp(scaleOne) < 0 {
		return nil, ErrUndercollateralized
	}
	if maxRedeemable == nil || bondAmount.Cmp(maxRedeemable) > 0 {
		return nil, fmt.Errorf("%w: bond redemption capped at parity surplus", ErrAmountAboveMaximum)
	}
	return new(big.Int).Set(bondAmount), nil
}
