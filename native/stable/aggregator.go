package stable

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
)

// PegSource supplies the stable unit's target (peg) price. The peg is read
// from the inflation-index collaborator and treated as ground truth for
// valuation; it is distinct from the stable unit's market price.
type PegSource interface {
	CurrentPeg() (*big.Int, error)
	TryRefresh() bool
}

// VaultReader exposes the share accounting of a vault wrapping stable-unit
// positions.
type VaultReader interface {
	TotalShares() (*big.Int, error)
	TotalUnderlying() (*big.Int, error)
}

// FeedHealth captures metadata about an individual feed's observations.
type FeedHealth struct {
	Source       string
	LastObserved time.Time
	Observations int
}

// AggregatorHealth aggregates health information for all registered feeds.
type AggregatorHealth struct {
	Feeds []FeedHealth
}

// PriceAggregator produces manipulation-resistant USD prices. The reserve
// asset's reference price is the median of three independent feeds; the
// economically meaningful price is the AMM reading (TWAP when the window is
// ready, spot otherwise), which must sit within the deviation policy's bound
// of the reference or the query fails outright. Prices for tokens that trade
// only against the stable unit are chained through the stable pool.
type PriceAggregator struct {
	mu         sync.RWMutex
	feeds      []PriceFeed
	maxAge     time.Duration
	maxConfBps uint64
	policy     *DeviationPolicy

	reservePool PoolReader
	reserveMeta PoolMeta
	twap        *TWAPAccumulator

	stablePool   PoolReader
	stableMeta   PoolMeta
	bondPool     PoolReader
	bondMeta     PoolMeta
	backstopPool PoolReader
	backstopMeta PoolMeta

	peg   PegSource
	vault VaultReader

	health map[string]FeedHealth
	clock  func() time.Time
}

// NewPriceAggregator constructs an aggregator over exactly three independent
// reserve-asset feeds governed by the supplied deviation policy.
func NewPriceAggregator(feeds []PriceFeed, policy *DeviationPolicy, maxAge time.Duration, maxConfBps uint64) (*PriceAggregator, error) {
	if len(feeds) != 3 {
		return nil, fmt.Errorf("stable: aggregator requires exactly three feeds, got %d", len(feeds))
	}
	for i, feed := range feeds {
		if feed == nil {
			return nil, fmt.Errorf("stable: feed %d is nil", i)
		}
	}
	if policy == nil {
		return nil, fmt.Errorf("stable: deviation policy required")
	}
	if maxConfBps > 10_000 {
		return nil, fmt.Errorf("stable: confidence bound must not exceed 10000 bps")
	}
	return &PriceAggregator{
		feeds:      append([]PriceFeed{}, feeds...),
		policy:     policy,
		maxAge:     maxAge,
		maxConfBps: maxConfBps,
		health:     make(map[string]FeedHealth),
		clock:      time.Now,
	}, nil
}

// SetClock overrides the time source for deterministic testing.
func (a *PriceAggregator) SetClock(clock func() time.Time) {
	if a == nil || clock == nil {
		return
	}
	a.mu.Lock()
	a.clock = clock
	a.mu.Unlock()
}

// SetReservePool wires the reserve-asset AMM pool and its TWAP window.
func (a *PriceAggregator) SetReservePool(pool PoolReader, meta PoolMeta, twap *TWAPAccumulator) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.reservePool = pool
	a.reserveMeta = meta
	a.twap = twap
	a.mu.Unlock()
}

// SetStablePool wires the stable-unit/reserve pool used for chained prices.
func (a *PriceAggregator) SetStablePool(pool PoolReader, meta PoolMeta) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.stablePool = pool
	a.stableMeta = meta
	a.mu.Unlock()
}

// SetBondPool wires the bond/stable-unit pool.
func (a *PriceAggregator) SetBondPool(pool PoolReader, meta PoolMeta) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.bondPool = pool
	a.bondMeta = meta
	a.mu.Unlock()
}

// SetBackstopPool wires the backstop-token/stable-unit pool.
func (a *PriceAggregator) SetBackstopPool(pool PoolReader, meta PoolMeta) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.backstopPool = pool
	a.backstopMeta = meta
	a.mu.Unlock()
}

// SetPegSource wires the peg/index collaborator.
func (a *PriceAggregator) SetPegSource(peg PegSource) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.peg = peg
	a.mu.Unlock()
}

// SetVault wires the wrapped-liability vault reader.
func (a *PriceAggregator) SetVault(vault VaultReader) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.vault = vault
	a.mu.Unlock()
}

// Policy exposes the deviation policy for admin operations.
func (a *PriceAggregator) Policy() *DeviationPolicy {
	if a == nil {
		return nil
	}
	return a.policy
}

// ObserveTWAP samples the reserve pool into the TWAP window. Best-effort:
// the coordinator discards failures.
func (a *PriceAggregator) ObserveTWAP() error {
	if a == nil {
		return fmt.Errorf("stable: aggregator not configured")
	}
	a.mu.RLock()
	twap := a.twap
	a.mu.RUnlock()
	if twap == nil {
		return fmt.Errorf("stable: twap window not configured")
	}
	return twap.Observe()
}

// ReferencePriceUSD computes the median of the three feed quotes. All three
// must pass the freshness, positivity, and confidence guardrails: a frozen or
// unconfigured source trips the circuit breaker instead of being skipped.
func (a *PriceAggregator) ReferencePriceUSD() (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("stable: aggregator not configured")
	}
	a.mu.RLock()
	feeds := a.feeds
	maxAge := a.maxAge
	maxConfBps := a.maxConfBps
	now := a.clock().UTC()
	a.mu.RUnlock()

	values := make([]*big.Int, 0, len(feeds))
	for i, feed := range feeds {
		quote, err := feed.Read()
		if err != nil {
			return nil, fmt.Errorf("%w: feed %d: %v", ErrStalePrice, i, err)
		}
		if err := filterQuote(quote, now, maxAge, maxConfBps); err != nil {
			return nil, err
		}
		a.recordHealth(quote)
		values = append(values, quote.Normalized())
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Cmp(values[j]) < 0 })
	return values[len(values)/2], nil
}

// ReservePriceUSD returns the trusted USD price of the reserve asset: the AMM
// reading cross-checked against the multi-source reference. A deviation past
// the policy bound fails the query; nothing is clamped.
func (a *PriceAggregator) ReservePriceUSD() (*big.Int, error) {
	reference, err := a.ReferencePriceUSD()
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	pool := a.reservePool
	meta := a.reserveMeta
	twap := a.twap
	a.mu.RUnlock()
	if pool == nil {
		return nil, fmt.Errorf("%w: reserve pool", ErrNotConfigured)
	}
	var ammPrice *big.Int
	if twap != nil && twap.Ready() {
		ammPrice, err = twap.TWAP()
	} else {
		ammPrice, err = SpotPrice(pool, meta, SymbolReserve)
	}
	if err != nil {
		return nil, err
	}
	if err := CheckDeviation(ammPrice, reference, a.policy.Bound()); err != nil {
		return nil, err
	}
	return ammPrice, nil
}

// StableMarketPriceUSD derives the stable unit's market price by chaining the
// stable/reserve pool ratio with the reserve asset's trusted USD price.
func (a *PriceAggregator) StableMarketPriceUSD() (*big.Int, error) {
	a.mu.RLock()
	pool := a.stablePool
	meta := a.stableMeta
	a.mu.RUnlock()
	if pool == nil {
		return nil, fmt.Errorf("%w: stable pool", ErrNotConfigured)
	}
	ratio, err := SpotPrice(pool, meta, SymbolStable)
	if err != nil {
		return nil, err
	}
	reserveUSD, err := a.ReservePriceUSD()
	if err != nil {
		return nil, err
	}
	return mulDiv(ratio, reserveUSD, scaleOne), nil
}

// BondMarketPriceUSD derives the bond token's market price through the stable
// unit: price(PBOND/USD) = price(PBOND/PUSD) * price(PUSD/USD).
func (a *PriceAggregator) BondMarketPriceUSD() (*big.Int, error) {
	return a.chainedThroughStable(SymbolBond)
}

// BackstopPriceUSD derives the backstop token's market price through the
// stable unit.
func (a *PriceAggregator) BackstopPriceUSD() (*big.Int, error) {
	return a.chainedThroughStable(SymbolBackstop)
}

func (a *PriceAggregator) chainedThroughStable(symbol string) (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("stable: aggregator not configured")
	}
	a.mu.RLock()
	var pool PoolReader
	var meta PoolMeta
	switch normaliseSymbol(symbol) {
	case SymbolBond:
		pool, meta = a.bondPool, a.bondMeta
	case SymbolBackstop:
		pool, meta = a.backstopPool, a.backstopMeta
	}
	a.mu.RUnlock()
	if pool == nil {
		return nil, fmt.Errorf("%w: %s pool", ErrNotConfigured, strings.ToLower(symbol))
	}
	ratio, err := SpotPrice(pool, meta, symbol)
	if err != nil {
		return nil, err
	}
	stableUSD, err := a.StableMarketPriceUSD()
	if err != nil {
		return nil, err
	}
	return mulDiv(ratio, stableUSD, scaleOne), nil
}

// WrappedSharePriceUSD prices one vault share as underlyingPrice multiplied by
// the vault exchange rate. The rate is 1:1 while no shares are outstanding.
func (a *PriceAggregator) WrappedSharePriceUSD() (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("stable: aggregator not configured")
	}
	a.mu.RLock()
	vault := a.vault
	a.mu.RUnlock()
	if vault == nil {
		return nil, fmt.Errorf("%w: vault reader", ErrNotConfigured)
	}
	underlying, err := a.StableMarketPriceUSD()
	if err != nil {
		return nil, err
	}
	shares, err := vault.TotalShares()
	if err != nil {
		return nil, err
	}
	rate := new(big.Int).Set(scaleOne)
	if shares != nil && shares.Sign() > 0 {
		held, err := vault.TotalUnderlying()
		if err != nil {
			return nil, err
		}
		rate = mulDiv(held, scaleOne, shares)
	}
	return mulDiv(underlying, rate, scaleOne), nil
}

// PegPriceUSD reads the stable unit's target price from the peg collaborator.
func (a *PriceAggregator) PegPriceUSD() (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("stable: aggregator not configured")
	}
	a.mu.RLock()
	peg := a.peg
	a.mu.RUnlock()
	if peg == nil {
		return nil, fmt.Errorf("%w: peg source", ErrNotConfigured)
	}
	value, err := peg.CurrentPeg()
	if err != nil {
		return nil, err
	}
	if value == nil || value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: peg price non-positive", ErrStalePrice)
	}
	return new(big.Int).Set(value), nil
}

// RefreshPeg asks the peg collaborator for a best-effort update. Failures are
// the collaborator's to swallow; the boolean reports whether a refresh landed.
func (a *PriceAggregator) RefreshPeg() bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	peg := a.peg
	a.mu.RUnlock()
	if peg == nil {
		return false
	}
	return peg.TryRefresh()
}

func (a *PriceAggregator) recordHealth(quote PriceQuote) {
	source := strings.ToLower(strings.TrimSpace(quote.Source))
	if source == "" {
		return
	}
	a.mu.Lock()
	entry := a.health[source]
	entry.Source = source
	entry.LastObserved = quote.ObservedAt
	entry.Observations++
	a.health[source] = entry
	a.mu.Unlock()
}

// Health reports the last observation timestamp and sample count per feed.
func (a *PriceAggregator) Health() AggregatorHealth {
	if a == nil {
		return AggregatorHealth{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	feeds := make([]FeedHealth, 0, len(a.health))
	for _, entry := range a.health {
		feeds = append(feeds, entry)
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Source < feeds[j].Source })
	return AggregatorHealth{Feeds: feeds}
}
