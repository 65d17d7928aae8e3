package stable

import (
	"fmt"
	"math/big"
)

// CollateralValue computes the USD value of the reserve balance at 18-decimal
// scale. reserveBalance is in the asset's native decimals; reservePrice is a
// trusted 18-decimal USD price.
func CollateralValue(reserveBalance *big.Int, reserveDecimals uint8, reservePrice *big.Int) *big.Int {
	return mulDiv(normalize(reserveBalance, reserveDecimals), reservePrice, scaleOne)
}

// LiabilityValue computes the USD value of the outstanding stable-unit
// liability, including any vault-wrapped supply, at the peg price.
func LiabilityValue(state ReserveState, pegPrice *big.Int) *big.Int {
	return mulDiv(state.TotalLiability(), pegPrice, scaleOne)
}

// CollateralRatio returns collateralValue/liabilityValue at 18-decimal scale,
// where scaleOne means exactly 100%. A system with no liability is fully
// collateralized by definition.
func CollateralRatio(collateralValue, liabilityValue *big.Int) *big.Int {
	if liabilityValue == nil || liabilityValue.Sign() == 0 {
		return new(big.Int).Set(scaleOne)
	}
	return mulDiv(collateralValue, scaleOne, liabilityValue)
}

// MaxRedeemableAtParity returns the surplus collateral, expressed in stable
// units at the peg price, that can leave the system without pushing the
// collateral ratio below 100%. Zero when no surplus exists.
func MaxRedeemableAtParity(collateralValue, liabilityValue, pegPrice *big.Int) *big.Int {
	if pegPrice == nil || pegPrice.Sign() <= 0 {
		return big.NewInt(0)
	}
	if collateralValue == nil || liabilityValue == nil {
		return big.NewInt(0)
	}
	surplus := new(big.Int).Sub(collateralValue, liabilityValue)
	if surplus.Sign() <= 0 {
		return big.NewInt(0)
	}
	return mulDiv(surplus, scaleOne, pegPrice)
}

// CollateralSnapshot bundles the derived solvency quantities computed from a
// fresh ReserveState read. It is transient: recomputed on every evaluation,
// never cached across a mutating call.
type CollateralSnapshot struct {
	State           ReserveState
	CollateralValue *big.Int
	LiabilityValue  *big.Int
	Ratio           *big.Int
	MaxRedeemable   *big.Int
}

// EvaluateCollateral derives the full solvency snapshot for the supplied
// state and prices.
func EvaluateCollateral(state ReserveState, reserveDecimals uint8, reservePrice, pegPrice *big.Int) (CollateralSnapshot, error) {
	if reservePrice == nil || reservePrice.Sign() <= 0 {
		return CollateralSnapshot{}, fmt.Errorf("%w: reserve price non-positive", ErrStalePrice)
	}
	if pegPrice == nil || pegPrice.Sign() <= 0 {
		return CollateralSnapshot{}, fmt.Errorf("%w: peg price non-positive", ErrStalePrice)
	}
	collateral := CollateralValue(state.ReserveBalance, reserveDecimals, reservePrice)
	liability := LiabilityValue(state, pegPrice)
	return CollateralSnapshot{
		State:           state.Clone(),
		CollateralValue: collateral,
		LiabilityValue:  liability,
		Ratio:           CollateralRatio(collateral, liability),
		MaxRedeemable:   MaxRedeemableAtParity(collateral, liability, pegPrice),
	}, nil
}
