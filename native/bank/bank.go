package bank

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"stablecore/native/stable"
)

// TokenLedger is a minimal mint/burn token ledger persisted through the KV
// storage surface. It implements the stable.Token interface.
type TokenLedger struct {
	mu     sync.Mutex
	store  stable.Storage
	symbol string
}

// NewTokenLedger constructs a ledger for the supplied token symbol.
func NewTokenLedger(store stable.Storage, symbol string) (*TokenLedger, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return nil, fmt.Errorf("bank: token symbol required")
	}
	if store == nil {
		return nil, fmt.Errorf("bank: storage required")
	}
	return &TokenLedger{store: store, symbol: trimmed}, nil
}

// Symbol returns the token symbol the ledger accounts for.
func (t *TokenLedger) Symbol() string {
	if t == nil {
		return ""
	}
	return t.symbol
}

func (t *TokenLedger) balanceKey(addr stable.Address) []byte {
	return []byte("bank/" + t.symbol + "/balance/" + addrHex(addr))
}

func (t *TokenLedger) supplyKey() []byte {
	return []byte("bank/" + t.symbol + "/supply")
}

// Mint credits the supplied account and grows the total supply.
func (t *TokenLedger) Mint(to stable.Address, amount *big.Int) error {
	if t == nil {
		return fmt.Errorf("bank: ledger not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: mint amount must not be negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	balance, err := t.load(t.balanceKey(to))
	if err != nil {
		return err
	}
	supply, err := t.load(t.supplyKey())
	if err != nil {
		return err
	}
	if err := t.save(t.balanceKey(to), new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return t.save(t.supplyKey(), new(big.Int).Add(supply, amount))
}

// BurnFrom debits the supplied account and shrinks the total supply.
func (t *TokenLedger) BurnFrom(from stable.Address, amount *big.Int) error {
	if t == nil {
		return fmt.Errorf("bank: ledger not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: burn amount must not be negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	balance, err := t.load(t.balanceKey(from))
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("bank: %s balance %s below burn amount %s", t.symbol, balance, amount)
	}
	supply, err := t.load(t.supplyKey())
	if err != nil {
		return err
	}
	if err := t.save(t.balanceKey(from), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return t.save(t.supplyKey(), new(big.Int).Sub(supply, amount))
}

// TotalSupply reports the outstanding token supply.
func (t *TokenLedger) TotalSupply() (*big.Int, error) {
	if t == nil {
		return nil, fmt.Errorf("bank: ledger not configured")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(t.supplyKey())
}

// BalanceOf reports the balance held by the supplied account.
func (t *TokenLedger) BalanceOf(addr stable.Address) (*big.Int, error) {
	if t == nil {
		return nil, fmt.Errorf("bank: ledger not configured")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(t.balanceKey(addr))
}

func (t *TokenLedger) load(key []byte) (*big.Int, error) {
	var stored string
	ok, err := t.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(stored) == "" {
		return big.NewInt(0), nil
	}
	value, parsed := new(big.Int).SetString(stored, 10)
	if !parsed || value.Sign() < 0 {
		return nil, fmt.Errorf("bank: corrupted amount %q under %s", stored, key)
	}
	return value, nil
}

func (t *TokenLedger) save(key []byte, value *big.Int) error {
	return t.store.KVPut(key, value.String())
}

func addrHex(addr stable.Address) string {
	return hex.EncodeToString(addr[:])
}
