package stable

import (
	"math/big"
	"testing"
)

func bigFromString(t *testing.T, value string) *big.Int {
	t.Helper()
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		t.Fatalf("invalid big integer %q", value)
	}
	return parsed
}

// usd18 builds an 18-decimal amount from whole units.
func usd18(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), scaleOne)
}

func TestCollateralRatioFullyBacked(t *testing.T) {
	// 10 reserve units at $50,000 against 400,000 stable units at a $1 peg.
	state := ReserveState{
		ReserveBalance:  big.NewInt(1_000_000_000),
		LiabilitySupply: usd18(400_000),
	}
	snapshot, err := EvaluateCollateral(state, 8, usd18(50_000), new(big.Int).Set(scaleOne))
	if err != nil {
		t.Fatalf("EvaluateCollateral: %v", err)
	}
	if got, want := snapshot.CollateralValue, usd18(500_000); got.Cmp(want) != 0 {
		t.Fatalf("collateral value = %s, want %s", got, want)
	}
	if got, want := snapshot.LiabilityValue, usd18(400_000); got.Cmp(want) != 0 {
		t.Fatalf("liability value = %s, want %s", got, want)
	}
	// 125% at 1e18 scale.
	if got, want := snapshot.Ratio, bigFromString(t, "1250000000000000000"); got.Cmp(want) != 0 {
		t.Fatalf("ratio = %s, want %s", got, want)
	}
	if got, want := snapshot.MaxRedeemable, usd18(100_000); got.Cmp(want) != 0 {
		t.Fatalf("max redeemable = %s, want %s", got, want)
	}
}

func TestCollateralRatioWithElevatedPeg(t *testing.T) {
	// 2.5 reserve units at $100,000 against 200,000 stable units pegged at $1.02.
	state := ReserveState{
		ReserveBalance:  big.NewInt(250_000_000),
		LiabilitySupply: usd18(200_000),
	}
	peg := bigFromString(t, "1020000000000000000")
	snapshot, err := EvaluateCollateral(state, 8, usd18(100_000), peg)
	if err != nil {
		t.Fatalf("EvaluateCollateral: %v", err)
	}
	if got, want := snapshot.CollateralValue, usd18(250_000); got.Cmp(want) != 0 {
		t.Fatalf("collateral value = %s, want %s", got, want)
	}
	if got, want := snapshot.LiabilityValue, usd18(204_000); got.Cmp(want) != 0 {
		t.Fatalf("liability value = %s, want %s", got, want)
	}
	if got, want := snapshot.Ratio, bigFromString(t, "1225490196078431372"); got.Cmp(want) != 0 {
		t.Fatalf("ratio = %s, want %s", got, want)
	}
	// Surplus $46,000 at a $1.02 peg is ~45,098.04 stable units, truncated.
	if got, want := snapshot.MaxRedeemable, bigFromString(t, "45098039215686274509803"); got.Cmp(want) != 0 {
		t.Fatalf("max redeemable = %s, want %s", got, want)
	}
}

func TestCollateralRatioMonotoneInPrice(t *testing.T) {
	state := ReserveState{
		ReserveBalance:  big.NewInt(1_000_000_000),
		LiabilitySupply: usd18(400_000),
	}
	prev := big.NewInt(-1)
	for _, price := range []int64{30_000, 40_000, 50_000, 80_000} {
		snapshot, err := EvaluateCollateral(state, 8, usd18(price), new(big.Int).Set(scaleOne))
		if err != nil {
			t.Fatalf("EvaluateCollateral at %d: %v", price, err)
		}
		if snapshot.Ratio.Cmp(prev) <= 0 {
			t.Fatalf("ratio %s not increasing past %s at price %d", snapshot.Ratio, prev, price)
		}
		prev = snapshot.Ratio
	}
}

func TestCollateralRatioZeroLiability(t *testing.T) {
	state := ReserveState{ReserveBalance: big.NewInt(100_000_000)}
	snapshot, err := EvaluateCollateral(state, 8, usd18(50_000), new(big.Int).Set(scaleOne))
	if err != nil {
		t.Fatalf("EvaluateCollateral: %v", err)
	}
	if snapshot.Ratio.Cmp(scaleOne) != 0 {
		t.Fatalf("ratio with zero liability = %s, want %s", snapshot.Ratio, scaleOne)
	}
}

func TestCollateralCountsWrappedLiability(t *testing.T) {
	state := ReserveState{
		ReserveBalance:         big.NewInt(1_000_000_000),
		LiabilitySupply:        usd18(300_000),
		WrappedLiabilitySupply: usd18(100_000),
	}
	snapshot, err := EvaluateCollateral(state, 8, usd18(50_000), new(big.Int).Set(scaleOne))
	if err != nil {
		t.Fatalf("EvaluateCollateral: %v", err)
	}
	if got, want := snapshot.LiabilityValue, usd18(400_000); got.Cmp(want) != 0 {
		t.Fatalf("liability value = %s, want %s", got, want)
	}
}

func TestEvaluateCollateralRejectsBadPrices(t *testing.T) {
	state := ReserveState{ReserveBalance: big.NewInt(1), LiabilitySupply: big.NewInt(1)}
	if _, err := EvaluateCollateral(state, 8, nil, scaleOne); err == nil {
		t.Fatal("expected error for nil reserve price")
	}
	if _, err := EvaluateCollateral(state, 8, scaleOne, big.NewInt(0)); err == nil {
		t.Fatal("expected error for zero peg price")
	}
}

func TestMaxRedeemableNoSurplus(t *testing.T) {
	if got := MaxRedeemableAtParity(usd18(100), usd18(100), scaleOne); got.Sign() != 0 {
		t.Fatalf("max redeemable at parity = %s, want 0", got)
	}
	if got := MaxRedeemableAtParity(usd18(90), usd18(100), scaleOne); got.Sign() != 0 {
		t.Fatalf("max redeemable under parity = %s, want 0", got)
	}
}
