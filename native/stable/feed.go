package stable

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// PriceFeed resolves a USD quote for a single asset. Implementations may fail
// when the upstream source is stale or unconfigured; filtering against the
// freshness and confidence guardrails happens in the aggregator.
type PriceFeed interface {
	Read() (PriceQuote, error)
}

// FeedFunc adapts a plain function into a PriceFeed.
type FeedFunc func() (PriceQuote, error)

// Read implements the PriceFeed interface.
func (f FeedFunc) Read() (PriceQuote, error) { return f() }

// ManualFeed provides an in-memory feed used for tests and manual overrides
// during incident response.
type ManualFeed struct {
	mu    sync.RWMutex
	quote PriceQuote
	set   bool
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{}
}

// Set stores the supplied quote. The value is interpreted at the given scale.
func (m *ManualFeed) Set(value *big.Int, scale uint8, observedAt time.Time) {
	if m == nil || value == nil {
		return
	}
	m.mu.Lock()
	m.quote = PriceQuote{
		Value:      new(big.Int).Set(value),
		Scale:      scale,
		Source:     "manual",
		ObservedAt: observedAt,
	}
	m.set = true
	m.mu.Unlock()
}

// SetDecimal parses a decimal string into an 18-scale quote.
func (m *ManualFeed) SetDecimal(value string, observedAt time.Time) error {
	if m == nil {
		return fmt.Errorf("stable: manual feed not configured")
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("stable: manual feed value required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok || rat.Sign() <= 0 {
		return fmt.Errorf("stable: invalid manual feed value %q", value)
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scaleOne))
	m.Set(new(big.Int).Quo(scaled.Num(), scaled.Denom()), stableDecimals, observedAt)
	return nil
}

// Read returns the stored quote.
func (m *ManualFeed) Read() (PriceQuote, error) {
	if m == nil {
		return PriceQuote{}, fmt.Errorf("stable: manual feed not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return PriceQuote{}, fmt.Errorf("stable: manual feed has no quote")
	}
	return m.quote.Clone(), nil
}

// ChainedFeed derives a quote by multiplying two independent feeds, e.g.
// WBTC/ETH * ETH/USD. The derived observation timestamp is the older of the
// two legs so staleness filtering sees the weakest link, and the combined
// confidence is the sum of both legs rescaled through the multiplication.
type ChainedFeed struct {
	first  PriceFeed
	second PriceFeed
	source string
}

// NewChainedFeed constructs a feed chaining first*second.
func NewChainedFeed(source string, first, second PriceFeed) *ChainedFeed {
	return &ChainedFeed{first: first, second: second, source: strings.ToLower(strings.TrimSpace(source))}
}

// Read resolves both legs and multiplies them at 18-decimal precision.
func (c *ChainedFeed) Read() (PriceQuote, error) {
	if c == nil || c.first == nil || c.second == nil {
		return PriceQuote{}, fmt.Errorf("stable: chained feed not configured")
	}
	a, err := c.first.Read()
	if err != nil {
		return PriceQuote{}, fmt.Errorf("stable: chained feed first leg: %w", err)
	}
	b, err := c.second.Read()
	if err != nil {
		return PriceQuote{}, fmt.Errorf("stable: chained feed second leg: %w", err)
	}
	if !a.Valid() || !b.Valid() {
		return PriceQuote{}, fmt.Errorf("stable: chained feed leg returned non-positive value")
	}
	aNorm := a.Normalized()
	bNorm := b.Normalized()
	value := mulDiv(aNorm, bNorm, scaleOne)
	observed := a.ObservedAt
	if b.ObservedAt.Before(observed) {
		observed = b.ObservedAt
	}
	quote := PriceQuote{Value: value, Scale: stableDecimals, Source: c.source, ObservedAt: observed}
	if a.Confidence != nil || b.Confidence != nil {
		confA := big.NewInt(0)
		if a.Confidence != nil {
			confA = mulDiv(normalize(a.Confidence, a.Scale), bNorm, scaleOne)
		}
		confB := big.NewInt(0)
		if b.Confidence != nil {
			confB = mulDiv(normalize(b.Confidence, b.Scale), aNorm, scaleOne)
		}
		quote.Confidence = new(big.Int).Add(confA, confB)
	}
	return quote, nil
}

// filterQuote applies the aggregator guardrails to a raw feed observation:
// non-positive values, observations older than maxAge, and confidence
// intervals wider than maxConfBps of the value are all rejected.
func filterQuote(quote PriceQuote, now time.Time, maxAge time.Duration, maxConfBps uint64) error {
	if !quote.Valid() {
		return fmt.Errorf("stable: feed %s returned non-positive value", quote.Source)
	}
	if maxAge > 0 {
		if quote.ObservedAt.IsZero() || now.Sub(quote.ObservedAt) > maxAge {
			return fmt.Errorf("%w: feed %s observed at %s", ErrStalePrice, quote.Source, quote.ObservedAt.Format(time.RFC3339))
		}
	}
	if maxConfBps > 0 && quote.Confidence != nil && quote.Confidence.Sign() > 0 {
		limit := applyBps(quote.Value, maxConfBps)
		if quote.Confidence.Cmp(limit) > 0 {
			return fmt.Errorf("%w: feed %s confidence too wide", ErrStalePrice, quote.Source)
		}
	}
	return nil
}
