package bank

import (
	"fmt"
	"math/big"
	"sync"

	"stablecore/native/stable"
)

// Custodian tracks the reserve and backstop balances held on behalf of the
// protocol. It implements the stable.ReserveCustodian interface. Deposits and
// withdrawals record custody changes; the liability figure mirrors the stable
// token's outstanding supply when a supply source is wired.
type Custodian struct {
	mu     sync.Mutex
	store  stable.Storage
	supply func() (*big.Int, error)
}

var (
	custodianReserveKey  = []byte("bank/custodian/reserve")
	custodianBackstopKey = []byte("bank/custodian/backstop")
)

// NewCustodian constructs a custodian over the supplied storage. The supply
// source is optional; without it the liability figure reads zero.
func NewCustodian(store stable.Storage, supply func() (*big.Int, error)) (*Custodian, error) {
	if store == nil {
		return nil, fmt.Errorf("bank: storage required")
	}
	return &Custodian{store: store, supply: supply}, nil
}

// Deposit records reserve assets taken into custody from the account.
func (c *Custodian) Deposit(from stable.Address, amount *big.Int) error {
	if c == nil {
		return fmt.Errorf("bank: custodian not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: deposit amount must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adjust(custodianReserveKey, amount)
}

// Withdraw releases reserve assets from custody to the account.
func (c *Custodian) Withdraw(to stable.Address, amount *big.Int) error {
	if c == nil {
		return fmt.Errorf("bank: custodian not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: withdraw amount must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	balance, err := c.load(custodianReserveKey)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("bank: reserve balance %s below withdrawal %s", balance, amount)
	}
	return c.adjust(custodianReserveKey, new(big.Int).Neg(amount))
}

// FundBackstop credits the backstop reserve.
func (c *Custodian) FundBackstop(amount *big.Int) error {
	if c == nil {
		return fmt.Errorf("bank: custodian not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: backstop funding must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adjust(custodianBackstopKey, amount)
}

// Compensate pays backstop tokens to the account, capped at the available
// backstop balance. The returned amount is what was actually paid.
func (c *Custodian) Compensate(to stable.Address, amount *big.Int) (*big.Int, error) {
	if c == nil {
		return nil, fmt.Errorf("bank: custodian not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	available, err := c.load(custodianBackstopKey)
	if err != nil {
		return nil, err
	}
	paid := new(big.Int).Set(amount)
	if paid.Cmp(available) > 0 {
		paid.Set(available)
	}
	if paid.Sign() > 0 {
		if err := c.adjust(custodianBackstopKey, new(big.Int).Neg(paid)); err != nil {
			return nil, err
		}
	}
	return paid, nil
}

// Balances reports the custodied reserve, the backstop reserve, and the
// mirrored stable-unit liability.
func (c *Custodian) Balances() (*big.Int, *big.Int, *big.Int, error) {
	if c == nil {
		return nil, nil, nil, fmt.Errorf("bank: custodian not configured")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	reserve, err := c.load(custodianReserveKey)
	if err != nil {
		return nil, nil, nil, err
	}
	backstop, err := c.load(custodianBackstopKey)
	if err != nil {
		return nil, nil, nil, err
	}
	liability := big.NewInt(0)
	if c.supply != nil {
		value, err := c.supply()
		if err != nil {
			return nil, nil, nil, err
		}
		if value != nil {
			liability = new(big.Int).Set(value)
		}
	}
	return reserve, backstop, liability, nil
}

func (c *Custodian) adjust(key []byte, delta *big.Int) error {
	balance, err := c.load(key)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(balance, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("bank: balance underflow under %s", key)
	}
	return c.store.KVPut(key, next.String())
}

func (c *Custodian) load(key []byte) (*big.Int, error) {
	var stored string
	ok, err := c.store.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !ok || stored == "" {
		return big.NewInt(0), nil
	}
	value, parsed := new(big.Int).SetString(stored, 10)
	if !parsed || value.Sign() < 0 {
		return nil, fmt.Errorf("bank: corrupted amount %q under %s", stored, key)
	}
	return value, nil
}
