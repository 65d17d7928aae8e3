package bank

import (
	"math/big"
	"testing"

	"stablecore/native/stable"
	"stablecore/storage"
)

func newTestStore() *storage.KVStore {
	return storage.NewKVStore(storage.NewMemDB())
}

func testAddr(b byte) stable.Address {
	var addr stable.Address
	addr[0] = b
	return addr
}

func TestTokenLedgerMintBurnSupply(t *testing.T) {
	store := newTestStore()
	ledger, err := NewTokenLedger(store, "pusd")
	if err != nil {
		t.Fatalf("NewTokenLedger: %v", err)
	}
	if ledger.Symbol() != "PUSD" {
		t.Fatalf("symbol = %q", ledger.Symbol())
	}
	alice := testAddr(1)
	bob := testAddr(2)

	if err := ledger.Mint(alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if err := ledger.Mint(bob, big.NewInt(500)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	supply, err := ledger.TotalSupply()
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	if supply.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("supply = %s", supply)
	}

	if err := ledger.BurnFrom(alice, big.NewInt(400)); err != nil {
		t.Fatalf("BurnFrom: %v", err)
	}
	balance, err := ledger.BalanceOf(alice)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if balance.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("balance = %s", balance)
	}
	supply, err = ledger.TotalSupply()
	if err != nil {
		t.Fatalf("TotalSupply: %v", err)
	}
	if supply.Cmp(big.NewInt(1_100)) != 0 {
		t.Fatalf("supply after burn = %s", supply)
	}
}

func TestTokenLedgerBurnRequiresBalance(t *testing.T) {
	ledger, err := NewTokenLedger(newTestStore(), "PUSD")
	if err != nil {
		t.Fatalf("NewTokenLedger: %v", err)
	}
	if err := ledger.BurnFrom(testAddr(1), big.NewInt(1)); err == nil {
		t.Fatal("expected error burning from empty account")
	}
}

func TestTokenLedgerRejectsNegativeAmounts(t *testing.T) {
	ledger, err := NewTokenLedger(newTestStore(), "PUSD")
	if err != nil {
		t.Fatalf("NewTokenLedger: %v", err)
	}
	if err := ledger.Mint(testAddr(1), big.NewInt(-1)); err == nil {
		t.Fatal("expected error minting negative amount")
	}
	if err := ledger.BurnFrom(testAddr(1), nil); err == nil {
		t.Fatal("expected error burning nil amount")
	}
}

func TestTokenLedgerPersistsAcrossInstances(t *testing.T) {
	store := newTestStore()
	first, err := NewTokenLedger(store, "PBOND")
	if err != nil {
		t.Fatalf("NewTokenLedger: %v", err)
	}
	if err := first.Mint(testAddr(3), big.NewInt(777)); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	second, err := NewTokenLedger(store, "PBOND")
	if err != nil {
		t.Fatalf("NewTokenLedger: %v", err)
	}
	balance, err := second.BalanceOf(testAddr(3))
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	if balance.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("balance = %s", balance)
	}
}

func TestCustodianDepositWithdraw(t *testing.T) {
	custodian, err := NewCustodian(newTestStore(), nil)
	if err != nil {
		t.Fatalf("NewCustodian: %v", err)
	}
	account := testAddr(4)
	if err := custodian.Deposit(account, big.NewInt(100_000_000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := custodian.Withdraw(account, big.NewInt(40_000_000)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	reserve, backstop, liability, err := custodian.Balances()
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if reserve.Cmp(big.NewInt(60_000_000)) != 0 {
		t.Fatalf("reserve = %s", reserve)
	}
	if backstop.Sign() != 0 || liability.Sign() != 0 {
		t.Fatalf("backstop = %s, liability = %s", backstop, liability)
	}

	if err := custodian.Withdraw(account, big.NewInt(70_000_000)); err == nil {
		t.Fatal("expected underflow error")
	}
}

func TestCustodianCompensateCapsAtAvailable(t *testing.T) {
	custodian, err := NewCustodian(newTestStore(), nil)
	if err != nil {
		t.Fatalf("NewCustodian: %v", err)
	}
	if err := custodian.FundBackstop(big.NewInt(500)); err != nil {
		t.Fatalf("FundBackstop: %v", err)
	}
	paid, err := custodian.Compensate(testAddr(5), big.NewInt(800))
	if err != nil {
		t.Fatalf("Compensate: %v", err)
	}
	if paid.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("paid = %s, want capped 500", paid)
	}
	_, backstop, _, err := custodian.Balances()
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if backstop.Sign() != 0 {
		t.Fatalf("backstop after compensation = %s", backstop)
	}
}

func TestCustodianLiabilityMirrorsSupply(t *testing.T) {
	store := newTestStore()
	ledger, err := NewTokenLedger(store, "PUSD")
	if err != nil {
		t.Fatalf("NewTokenLedger: %v", err)
	}
	custodian, err := NewCustodian(store, ledger.TotalSupply)
	if err != nil {
		t.Fatalf("NewCustodian: %v", err)
	}
	if err := ledger.Mint(testAddr(6), big.NewInt(123_456)); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	_, _, liability, err := custodian.Balances()
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if liability.Cmp(big.NewInt(123_456)) != 0 {
		t.Fatalf("liability = %s", liability)
	}
}
