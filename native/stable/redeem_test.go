package stable

import (
	"errors"
	"math/big"
	"testing"
)

func TestEvaluateRedeemFullyCollateralized(t *testing.T) {
	// 100,000 stable units at CR 125%, $50,000 reserve price, $1 peg, 50 bps fee.
	prices := RedeemPrices{
		ReservePrice: usd18(50_000),
		PegPrice:     new(big.Int).Set(scaleOne),
	}
	ratio := bigFromString(t, "1250000000000000000")
	result, err := EvaluateRedeem(usd18(100_000), 8, prices, ratio, 50, 0, nil)
	if err != nil {
		t.Fatalf("EvaluateRedeem: %v", err)
	}
	if got, want := result.Fee, usd18(500); got.Cmp(want) != 0 {
		t.Fatalf("fee = %s, want %s", got, want)
	}
	// $99,500 at $50,000 per unit is 1.99 units, 199_000_000 raw at 8 decimals.
	if got, want := result.ReservePayout, big.NewInt(199_000_000); got.Cmp(want) != 0 {
		t.Fatalf("reserve payout = %s, want %s", got, want)
	}
	if result.BondCompensation.Sign() != 0 || result.BackstopCompensation.Sign() != 0 {
		t.Fatalf("full branch paid compensation: bond=%s backstop=%s", result.BondCompensation, result.BackstopCompensation)
	}
}

func TestEvaluateRedeemUndercollateralizedSplitsValue(t *testing.T) {
	// CR 60%: the reserve leg covers 60% of value, compensation the rest.
	prices := RedeemPrices{
		ReservePrice:    usd18(50_000),
		PegPrice:        new(big.Int).Set(scaleOne),
		BondMarketPrice: bigFromString(t, "500000000000000000"), // $0.50
		BackstopPrice:   usd18(2),
	}
	ratio := bigFromString(t, "600000000000000000")
	burn := usd18(100_000)
	result, err := EvaluateRedeem(burn, 8, prices, ratio, 0, 0, nil)
	if err != nil {
		t.Fatalf("EvaluateRedeem: %v", err)
	}
	// 60% of $100,000 at $50,000 per reserve unit = 1.2 units.
	if got, want := result.ReservePayout, big.NewInt(120_000_000); got.Cmp(want) != 0 {
		t.Fatalf("reserve payout = %s, want %s", got, want)
	}
	// Remaining $40,000 in bonds at $0.50 each.
	if got, want := result.BondCompensation, usd18(80_000); got.Cmp(want) != 0 {
		t.Fatalf("bond compensation = %s, want %s", got, want)
	}
	if result.BackstopCompensation.Sign() != 0 {
		t.Fatalf("backstop compensation = %s, want 0", result.BackstopCompensation)
	}

	// Compensation value must equal the uncovered remainder exactly.
	bondValue := mulDiv(result.BondCompensation, prices.BondMarketPrice, scaleOne)
	if got, want := bondValue, usd18(40_000); got.Cmp(want) != 0 {
		t.Fatalf("bond leg value = %s, want %s", got, want)
	}
}

func TestEvaluateRedeemBackstopRouting(t *testing.T) {
	// 40% of the remainder is routed to the backstop by governance share.
	prices := RedeemPrices{
		ReservePrice:    usd18(50_000),
		PegPrice:        new(big.Int).Set(scaleOne),
		BondMarketPrice: new(big.Int).Set(scaleOne),
		BackstopPrice:   usd18(2),
	}
	ratio := bigFromString(t, "600000000000000000")
	result, err := EvaluateRedeem(usd18(100_000), 8, prices, ratio, 0, 4_000, usd18(1_000_000))
	if err != nil {
		t.Fatalf("EvaluateRedeem: %v", err)
	}
	// Remainder $40,000: $24,000 in bonds at $1, $16,000 in backstop at $2.
	if got, want := result.BondCompensation, usd18(24_000); got.Cmp(want) != 0 {
		t.Fatalf("bond compensation = %s, want %s", got, want)
	}
	if got, want := result.BackstopCompensation, usd18(8_000); got.Cmp(want) != 0 {
		t.Fatalf("backstop compensation = %s, want %s", got, want)
	}
	if result.BackstopShortfall.Sign() != 0 {
		t.Fatalf("shortfall = %s, want 0", result.BackstopShortfall)
	}
}

func TestEvaluateRedeemBondFloorApplies(t *testing.T) {
	// Market price below the governance floor: the floor prices the bond leg.
	prices := RedeemPrices{
		ReservePrice:    usd18(50_000),
		PegPrice:        new(big.Int).Set(scaleOne),
		BondMarketPrice: bigFromString(t, "100000000000000000"), // $0.10
		BondFloorStable: bigFromString(t, "250000000000000000"), // 0.25 stable units
	}
	ratio := bigFromString(t, "600000000000000000")
	result, err := EvaluateRedeem(usd18(100_000), 8, prices, ratio, 0, 0, nil)
	if err != nil {
		t.Fatalf("EvaluateRedeem: %v", err)
	}
	// $40,000 at the $0.25 floor = 160,000 bonds.
	if got, want := result.BondCompensation, usd18(160_000); got.Cmp(want) != 0 {
		t.Fatalf("bond compensation = %s, want %s", got, want)
	}
}

func TestEvaluateRedeemBackstopPartialFill(t *testing.T) {
	prices := RedeemPrices{
		ReservePrice:  usd18(50_000),
		PegPrice:      new(big.Int).Set(scaleOne),
		BackstopPrice: new(big.Int).Set(scaleOne),
	}
	ratio := bigFromString(t, "600000000000000000")
	// No bond pricing at all: the whole remainder falls to the backstop,
	// which only holds 10,000 tokens.
	available := usd18(10_000)
	result, err := EvaluateRedeem(usd18(100_000), 8, prices, ratio, 0, 0, available)
	if err != nil {
		t.Fatalf("EvaluateRedeem: %v", err)
	}
	if got := result.BackstopCompensation; got.Cmp(available) != 0 {
		t.Fatalf("backstop compensation = %s, want %s", got, available)
	}
	if got, want := result.BackstopShortfall, usd18(30_000); got.Cmp(want) != 0 {
		t.Fatalf("backstop shortfall = %s, want %s", got, want)
	}
}

func TestEvaluateRedeemRequiresBackstopPrice(t *testing.T) {
	prices := RedeemPrices{
		ReservePrice: usd18(50_000),
		PegPrice:     new(big.Int).Set(scaleOne),
	}
	ratio := bigFromString(t, "600000000000000000")
	_, err := EvaluateRedeem(usd18(100_000), 8, prices, ratio, 0, 0, nil)
	if !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected stale price error, got %v", err)
	}
}

func TestEvaluateBondRedemption(t *testing.T) {
	issued, err := EvaluateBondRedemption(usd18(100), bigFromString(t, "1100000000000000000"), usd18(500))
	if err != nil {
		t.Fatalf("EvaluateBondRedemption: %v", err)
	}
	if issued.Cmp(usd18(100)) != 0 {
		t.Fatalf("issued = %s, want %s", issued, usd18(100))
	}

	if _, err := EvaluateBondRedemption(usd18(100), bigFromString(t, "900000000000000000"), usd18(500)); !errors.Is(err, ErrUndercollateralized) {
		t.Fatalf("expected undercollateralized error, got %v", err)
	}
	if _, err := EvaluateBondRedemption(usd18(600), bigFromString(t, "1100000000000000000"), usd18(500)); !errors.Is(err, ErrAmountAboveMaximum) {
		t.Fatalf("expected cap error, got %v", err)
	}
}

func TestEvaluateMintAtPar(t *testing.T) {
	// 1 reserve unit at $50,000, $1 peg, 50 bps fee.
	result, err := EvaluateMint(big.NewInt(100_000_000), 8, usd18(50_000), new(big.Int).Set(scaleOne), 50)
	if err != nil {
		t.Fatalf("EvaluateMint: %v", err)
	}
	if got, want := result.Fee, usd18(250); got.Cmp(want) != 0 {
		t.Fatalf("fee = %s, want %s", got, want)
	}
	if got, want := result.IssuedAmount, usd18(49_750); got.Cmp(want) != 0 {
		t.Fatalf("issued = %s, want %s", got, want)
	}
}

func TestEvaluateMintElevatedPeg(t *testing.T) {
	// Issuance anchors to the peg, not the market: $51,000 of value at a
	// $1.02 peg issues exactly 50,000 units gross.
	peg := bigFromString(t, "1020000000000000000")
	result, err := EvaluateMint(big.NewInt(100_000_000), 8, usd18(51_000), peg, 0)
	if err != nil {
		t.Fatalf("EvaluateMint: %v", err)
	}
	if got, want := result.IssuedAmount, usd18(50_000); got.Cmp(want) != 0 {
		t.Fatalf("issued = %s, want %s", got, want)
	}
}

func TestEvaluateMintDustFeeRoundsToZero(t *testing.T) {
	result, err := EvaluateMint(big.NewInt(1), 8, scaleOne, new(big.Int).Set(scaleOne), 1)
	if err != nil {
		t.Fatalf("EvaluateMint: %v", err)
	}
	if result.Fee.Sign() != 0 {
		t.Fatalf("dust fee = %s, want 0", result.Fee)
	}
	if result.IssuedAmount.Sign() <= 0 {
		t.Fatalf("dust issuance = %s, want positive", result.IssuedAmount)
	}
}

func TestMintRedeemRoundTripLosesOnlyFees(t *testing.T) {
	reservePrice := usd18(50_000)
	peg := new(big.Int).Set(scaleOne)
	deposit := big.NewInt(100_000_000) // 1 reserve unit
	const feeBps = 50

	minted, err := EvaluateMint(deposit, 8, reservePrice, peg, feeBps)
	if err != nil {
		t.Fatalf("EvaluateMint: %v", err)
	}
	redeemed, err := EvaluateRedeem(minted.IssuedAmount, 8, RedeemPrices{ReservePrice: reservePrice, PegPrice: peg}, new(big.Int).Set(scaleOne), feeBps, 0, nil)
	if err != nil {
		t.Fatalf("EvaluateRedeem: %v", err)
	}

	// Two 50 bps fees: expect 1 * (1 - 0.005)^2 units back, within one raw
	// unit of rounding.
	expected := new(big.Int).Mul(deposit, big.NewInt(9950))
	expected.Div(expected, big.NewInt(10_000))
	expected.Mul(expected, big.NewInt(9950))
	expected.Div(expected, big.NewInt(10_000))
	diff := new(big.Int).Sub(expected, redeemed.ReservePayout)
	if diff.CmpAbs(big.NewInt(1)) > 0 {
		t.Fatalf("round trip payout = %s, want %s (±1)", redeemed.ReservePayout, expected)
	}
	if redeemed.ReservePayout.Cmp(deposit) >= 0 {
		t.Fatalf("round trip must not profit: payout %s vs deposit %s", redeemed.ReservePayout, deposit)
	}
}
