package stable

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"stablecore/core/events"
	"stablecore/observability"
)

// Token exposes the mint/burn surface of a protocol token ledger.
type Token interface {
	Mint(to Address, amount *big.Int) error
	BurnFrom(from Address, amount *big.Int) error
	TotalSupply() (*big.Int, error)
	BalanceOf(addr Address) (*big.Int, error)
}

// ReserveCustodian moves reserve assets and pays backstop compensation.
// Compensate returns the amount actually paid, which may be less than
// requested when the backstop reserve is depleted.
type ReserveCustodian interface {
	Deposit(from Address, amount *big.Int) error
	Withdraw(to Address, amount *big.Int) error
	Compensate(to Address, amount *big.Int) (*big.Int, error)
	Balances() (reserve, backstop, liability *big.Int, err error)
}

// Collaborators bundles the external references the coordinator mutates.
// Constructed once at initialization and injected; no ambient lookup.
type Collaborators struct {
	StableToken Token
	BondToken   Token
	Custodian   ReserveCustodian
	Vault       VaultReader
}

func (c Collaborators) validate() error {
	if c.StableToken == nil {
		return fmt.Errorf("%w: stable token", ErrNotConfigured)
	}
	if c.BondToken == nil {
		return fmt.Errorf("%w: bond token", ErrNotConfigured)
	}
	if c.Custodian == nil {
		return fmt.Errorf("%w: reserve custodian", ErrNotConfigured)
	}
	return nil
}

// Coordinator orchestrates every mutating operation against the shared
// ledger. Operations are serialized by the operation lock; a call arriving
// while another is in flight — including a collaborator calling back in
// mid-operation — is rejected with ErrReentrancy. All internal bookkeeping
// mutations complete before the first external transfer, and a failed
// transfer unwinds the mutations already applied so a failed operation
// leaves no partial state behind.
type Coordinator struct {
	mu       sync.Mutex
	params   Parameters
	prices   *PriceAggregator
	collab   Collaborators
	treasury Address
	admin    Address
	ledger   *Ledger
	emitter  events.Emitter
	clock    func() time.Time
}

// NewCoordinator constructs a coordinator over the supplied collaborators.
func NewCoordinator(params Parameters, prices *PriceAggregator, collab Collaborators, treasury, admin Address) (*Coordinator, error) {
	if prices == nil {
		return nil, fmt.Errorf("%w: price aggregator", ErrNotConfigured)
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		params:   params.Clone(),
		prices:   prices,
		collab:   collab,
		treasury: treasury,
		admin:    admin,
		emitter:  events.NoopEmitter{},
		clock:    time.Now,
	}, nil
}

// SetLedger wires the optional receipt ledger recording operation outcomes.
func (c *Coordinator) SetLedger(ledger *Ledger) {
	if c == nil {
		return
	}
	c.ledger = ledger
}

// SetEmitter wires the event sink. A nil emitter restores the noop sink.
func (c *Coordinator) SetEmitter(emitter events.Emitter) {
	if c == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	c.emitter = emitter
}

// SetClock overrides the wall clock for deterministic testing.
func (c *Coordinator) SetClock(clock func() time.Time) {
	if c == nil || clock == nil {
		return
	}
	c.clock = clock
}

// attempt runs a best-effort refresh, reporting whether it landed. Callers
// decide whether to inspect or discard the result; the discard is explicit.
func attempt(fn func() error) bool {
	if fn == nil {
		return false
	}
	return fn() == nil
}

func (c *Coordinator) refresh() {
	_ = attempt(c.prices.ObserveTWAP)
	_ = c.prices.RefreshPeg()
}

// rollback accumulates compensating actions for mutations already applied.
// When a later step fails the recorded actions run in reverse, so the
// operation aborts without partial application.
type rollback struct {
	undos []func() error
}

func (r *rollback) record(undo func() error) {
	r.undos = append(r.undos, undo)
}

func (r *rollback) run(cause error) error {
	for i := len(r.undos) - 1; i >= 0; i-- {
		if err := r.undos[i](); err != nil {
			cause = errors.Join(cause, fmt.Errorf("stable: rollback: %w", err))
		}
	}
	return cause
}

// Mint converts a reserve deposit into stable-unit issuance. The issued
// amount and the fee are minted before the custodian pulls the deposit so no
// external call observes half-updated bookkeeping.
func (c *Coordinator) Mint(caller Address, deposit *big.Int) (*MintResult, error) {
	if c == nil {
		return nil, fmt.Errorf("stable: coordinator not configured")
	}
	if !c.mu.TryLock() {
		return nil, ErrReentrancy
	}
	defer c.mu.Unlock()

	c.refresh()

	if deposit == nil || deposit.Sign() <= 0 || (c.params.MinMintWei.Sign() > 0 && deposit.Cmp(c.params.MinMintWei) < 0) {
		return nil, ErrAmountBelowMinimum
	}
	if c.params.MaxMintWei.Sign() > 0 && deposit.Cmp(c.params.MaxMintWei) > 0 {
		return nil, ErrAmountAboveMaximum
	}

	reservePrice, err := c.guardedReservePrice()
	if err != nil {
		return nil, err
	}
	pegPrice, err := c.prices.PegPriceUSD()
	if err != nil {
		return nil, err
	}

	result, err := EvaluateMint(deposit, c.params.ReserveDecimals, reservePrice, pegPrice, c.params.FeeBps)
	if err != nil {
		observability.Stable().RecordMint("rejected")
		return nil, err
	}

	// Internal bookkeeping first; each landed mutation records its undo so a
	// later failure unwinds the whole operation.
	var undo rollback
	if err := c.collab.StableToken.Mint(caller, result.IssuedAmount); err != nil {
		return nil, err
	}
	undo.record(func() error { return c.collab.StableToken.BurnFrom(caller, result.IssuedAmount) })
	if result.Fee.Sign() > 0 {
		if err := c.collab.StableToken.Mint(c.treasury, result.Fee); err != nil {
			return nil, undo.run(err)
		}
		undo.record(func() error { return c.collab.StableToken.BurnFrom(c.treasury, result.Fee) })
	}
	// External transfer last.
	if err := c.collab.Custodian.Deposit(caller, deposit); err != nil {
		return nil, undo.run(err)
	}

	c.appendReceipt(ReceiptKindMint, caller, deposit, result.IssuedAmount, result.Fee, nil, nil)
	c.emitter.Emit(events.StableMinted{
		Account:       caller,
		DepositAmount: deposit,
		IssuedAmount:  result.IssuedAmount,
		Fee:           result.Fee,
	})
	observability.Stable().RecordMint("ok")
	return result.Copy(), nil
}

// Redeem burns stable units and pays the redeemer per the collateral-ratio
// state machine. The burn and the bond issuance are internal mutations and
// complete before any custodian transfer.
func (c *Coordinator) Redeem(caller Address, burn *big.Int) (*RedeemResult, error) {
	if c == nil {
		return nil, fmt.Errorf("stable: coordinator not configured")
	}
	if !c.mu.TryLock() {
		return nil, ErrReentrancy
	}
	defer c.mu.Unlock()

	c.refresh()

	if burn == nil || burn.Sign() <= 0 || (c.params.MinRedeemWei.Sign() > 0 && burn.Cmp(c.params.MinRedeemWei) < 0) {
		return nil, ErrAmountBelowMinimum
	}
	if c.params.MaxRedeemWei.Sign() > 0 && burn.Cmp(c.params.MaxRedeemWei) > 0 {
		return nil, ErrAmountAboveMaximum
	}
	balance, err := c.collab.StableToken.BalanceOf(caller)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Cmp(burn) < 0 {
		return nil, ErrInsufficientBalance
	}

	reservePrice, err := c.guardedReservePrice()
	if err != nil {
		return nil, err
	}
	pegPrice, err := c.prices.PegPriceUSD()
	if err != nil {
		return nil, err
	}
	state, backstopAvailable, err := c.reserveState()
	if err != nil {
		return nil, err
	}
	snapshot, err := EvaluateCollateral(state, c.params.ReserveDecimals, reservePrice, pegPrice)
	if err != nil {
		return nil, err
	}
	observability.Stable().SetCollateralRatio(snapshot.Ratio)

	prices := RedeemPrices{
		ReservePrice:    reservePrice,
		PegPrice:        pegPrice,
		BondFloorStable: c.params.BondFloorStable,
	}
	branch := "full"
	if snapshot.Ratio.Cmp(scaleOne) < 0 {
		branch = "partial"
		// The bond leg tolerates a missing market quote: the governance
		// floor still prices it, and a zero floor routes the value to the
		// backstop. The backstop price is a divisor and must be present.
		if bondMarket, bondErr := c.prices.BondMarketPriceUSD(); bondErr == nil {
			prices.BondMarketPrice = bondMarket
		} else {
			slog.Debug("Bond market price unavailable, falling back to floor", slog.Any("error", bondErr))
			observability.Stable().RecordPriceRejection("bond_market")
		}
		backstopPrice, err := c.prices.BackstopPriceUSD()
		if err != nil {
			return nil, err
		}
		prices.BackstopPrice = backstopPrice
	}

	result, err := EvaluateRedeem(burn, c.params.ReserveDecimals, prices, snapshot.Ratio, c.params.FeeBps, c.params.BackstopShareBps, backstopAvailable)
	if err != nil {
		observability.Stable().RecordRedeem(branch, "rejected")
		return nil, err
	}

	// Internal bookkeeping first: debit the redeemer, credit the treasury
	// fee, and issue the bond claim. Every landed mutation records its undo
	// so a later failure unwinds the whole operation.
	var undo rollback
	if err := c.collab.StableToken.BurnFrom(caller, burn); err != nil {
		return nil, err
	}
	undo.record(func() error { return c.collab.StableToken.Mint(caller, burn) })
	if result.Fee.Sign() > 0 {
		if err := c.collab.StableToken.Mint(c.treasury, result.Fee); err != nil {
			return nil, undo.run(err)
		}
		undo.record(func() error { return c.collab.StableToken.BurnFrom(c.treasury, result.Fee) })
	}
	if result.BondCompensation.Sign() > 0 {
		if err := c.collab.BondToken.Mint(caller, result.BondCompensation); err != nil {
			return nil, undo.run(err)
		}
		undo.record(func() error { return c.collab.BondToken.BurnFrom(caller, result.BondCompensation) })
	}
	// External transfers last.
	if result.ReservePayout.Sign() > 0 {
		if err := c.collab.Custodian.Withdraw(caller, result.ReservePayout); err != nil {
			return nil, undo.run(err)
		}
		undo.record(func() error { return c.collab.Custodian.Deposit(caller, result.ReservePayout) })
	}
	if result.BackstopCompensation.Sign() > 0 {
		paid, err := c.collab.Custodian.Compensate(caller, result.BackstopCompensation)
		if err != nil {
			return nil, undo.run(err)
		}
		if paid == nil {
			paid = big.NewInt(0)
		}
		if paid.Cmp(result.BackstopCompensation) < 0 {
			result.BackstopShortfall.Add(result.BackstopShortfall, new(big.Int).Sub(result.BackstopCompensation, paid))
			result.BackstopCompensation = paid
		}
	}
	if result.BackstopShortfall.Sign() > 0 {
		observability.Stable().RecordBackstopPartialFill()
	}

	c.appendReceipt(ReceiptKindRedeem, caller, burn, result.ReservePayout, result.Fee, result.BondCompensation, result.BackstopCompensation)
	c.emitter.Emit(events.StableRedeemed{
		Account:              caller,
		BurnAmount:           burn,
		ReservePayout:        result.ReservePayout,
		BondCompensation:     result.BondCompensation,
		BackstopCompensation: result.BackstopCompensation,
		BackstopShortfall:    result.BackstopShortfall,
		Fee:                  result.Fee,
		CollateralRatio:      snapshot.Ratio,
	})
	observability.Stable().RecordRedeem(branch, "ok")
	return result.Copy(), nil
}

// RedeemBond converts bond tokens back into stable units at 1:1, gated on
// full collateralization and capped by the parity surplus.
func (c *Coordinator) RedeemBond(caller Address, amount *big.Int) (*big.Int, error) {
	if c == nil {
		return nil, fmt.Errorf("stable: coordinator not configured")
	}
	if !c.mu.TryLock() {
		return nil, ErrReentrancy
	}
	defer c.mu.Unlock()

	c.refresh()

	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrAmountBelowMinimum
	}
	balance, err := c.collab.BondToken.BalanceOf(caller)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Cmp(amount) < 0 {
		return nil, ErrInsufficientBalance
	}

	reservePrice, err := c.guardedReservePrice()
	if err != nil {
		return nil, err
	}
	pegPrice, err := c.prices.PegPriceUSD()
	if err != nil {
		return nil, err
	}
	state, _, err := c.reserveState()
	if err != nil {
		return nil, err
	}
	snapshot, err := EvaluateCollateral(state, c.params.ReserveDecimals, reservePrice, pegPrice)
	if err != nil {
		return nil, err
	}

	issued, err := EvaluateBondRedemption(amount, snapshot.Ratio, snapshot.MaxRedeemable)
	if err != nil {
		return nil, err
	}

	var undo rollback
	if err := c.collab.BondToken.BurnFrom(caller, amount); err != nil {
		return nil, err
	}
	undo.record(func() error { return c.collab.BondToken.Mint(caller, amount) })
	if err := c.collab.StableToken.Mint(caller, issued); err != nil {
		return nil, undo.run(err)
	}

	c.appendReceipt(ReceiptKindBondRedeem, caller, amount, issued, nil, nil, nil)
	c.emitter.Emit(events.BondRedeemed{Account: caller, BondAmount: amount, IssuedAmount: issued})
	observability.Stable().RecordBondRedeem()
	return issued, nil
}

// TightenDeviationBound lowers the deviation tolerance. Admin only; the
// change is audited and emitted.
func (c *Coordinator) TightenDeviationBound(caller Address, newBps uint64) error {
	if c == nil {
		return fmt.Errorf("stable: coordinator not configured")
	}
	if caller != c.admin {
		return ErrPermission
	}
	change, err := c.prices.Policy().Tighten(newBps)
	if err != nil {
		return err
	}
	c.emitter.Emit(events.DeviationUpdated{OldBps: change.OldBps, NewBps: change.NewBps, At: change.At})
	observability.Stable().SetDeviationBound(change.NewBps)
	return nil
}

// Collateral returns a fresh solvency snapshot without mutating state.
func (c *Coordinator) Collateral() (CollateralSnapshot, error) {
	if c == nil {
		return CollateralSnapshot{}, fmt.Errorf("stable: coordinator not configured")
	}
	reservePrice, err := c.guardedReservePrice()
	if err != nil {
		return CollateralSnapshot{}, err
	}
	pegPrice, err := c.prices.PegPriceUSD()
	if err != nil {
		return CollateralSnapshot{}, err
	}
	state, _, err := c.reserveState()
	if err != nil {
		return CollateralSnapshot{}, err
	}
	return EvaluateCollateral(state, c.params.ReserveDecimals, reservePrice, pegPrice)
}

// reserveState reads the ledger quantities fresh; results are never cached
// across a mutating call.
func (c *Coordinator) reserveState() (ReserveState, *big.Int, error) {
	reserve, backstop, _, err := c.collab.Custodian.Balances()
	if err != nil {
		return ReserveState{}, nil, err
	}
	supply, err := c.collab.StableToken.TotalSupply()
	if err != nil {
		return ReserveState{}, nil, err
	}
	wrapped := big.NewInt(0)
	if c.collab.Vault != nil {
		held, err := c.collab.Vault.TotalUnderlying()
		if err != nil {
			return ReserveState{}, nil, err
		}
		if held != nil {
			wrapped = held
		}
	}
	state := ReserveState{
		ReserveBalance:         reserve,
		LiabilitySupply:        supply,
		WrappedLiabilitySupply: wrapped,
	}
	return state, backstop, nil
}

func (c *Coordinator) guardedReservePrice() (*big.Int, error) {
	price, err := c.prices.ReservePriceUSD()
	if err != nil {
		switch {
		case errors.Is(err, ErrDeviationExceeded):
			observability.Stable().RecordPriceRejection("deviation")
		case errors.Is(err, ErrStalePrice):
			observability.Stable().RecordPriceRejection("stale")
		}
		return nil, err
	}
	return price, nil
}

func (c *Coordinator) appendReceipt(kind ReceiptKind, account Address, amountIn, amountOut, fee, bondComp, backstopComp *big.Int) {
	if c.ledger == nil {
		return
	}
	receipt := &Receipt{
		Kind:         kind,
		Account:      account,
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		Fee:          fee,
		BondComp:     bondComp,
		BackstopComp: backstopComp,
		ObservedAt:   c.clock().UTC().Unix(),
	}
	// Receipts are an audit trail; a storage fault must not unwind a
	// completed operation.
	_ = attempt(func() error { return c.ledger.Append(receipt) })
}
