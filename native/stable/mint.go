package stable

import (
	"fmt"
	"math/big"
)

// EvaluateMint converts a reserve deposit into stable-unit issuance. The
// deposit is valued at the trusted reserve price and issuance is anchored to
// the peg price, so minting is always at par regardless of any secondary
// market premium or discount. The fee is charged in stable units; a dust
// deposit whose fee rounds to zero still issues.
//
// Amount bounds are a coordinator responsibility: this function assumes the
// deposit already passed the protocol minimum/maximum checks.
func EvaluateMint(depositAmount *big.Int, reserveDecimals uint8, reservePrice, pegPrice *big.Int, feeBps uint64) (*MintResult, error) {
	if depositAmount == nil || depositAmount.Sign() <= 0 {
		return nil, fmt.Errorf("stable: deposit amount must be positive")
	}
	if reservePrice == nil || reservePrice.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserve price non-positive", ErrStalePrice)
	}
	if pegPrice == nil || pegPrice.Sign() <= 0 {
		return nil, fmt.Errorf("%w: peg price non-positive", ErrStalePrice)
	}
	if feeBps > 10_000 {
		return nil, fmt.Errorf("stable: fee must not exceed 10000 bps")
	}
	depositValue := mulDiv(normalize(depositAmount, reserveDecimals), reservePrice, scaleOne)
	gross := mulDiv(depositValue, scaleOne, pegPrice)
	fee := applyBps(gross, feeBps)
	issued := new(big.Int).Sub(gross, fee)
	return &MintResult{IssuedAmount: issued, Fee: fee}, nil
}
