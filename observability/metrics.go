package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type stableMetrics struct {
	mints                *prometheus.CounterVec
	redeems              *prometheus.CounterVec
	bondRedeems          prometheus.Counter
	priceRejections      *prometheus.CounterVec
	backstopPartialFills prometheus.Counter
	collateralRatio      prometheus.Gauge
	deviationBound       prometheus.Gauge
}

var (
	stableMetricsOnce sync.Once
	stableRegistry    *stableMetrics
)

// Stable returns the metrics registry tracking mint/redeem activity.
func Stable() *stableMetrics {
	stableMetricsOnce.Do(func() {
		stableRegistry = &stableMetrics{
			mints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "mints_total",
				Help:      "Count of mint operations segmented by outcome.",
			}, []string{"outcome"}),
			redeems: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "redeems_total",
				Help:      "Count of redemption operations segmented by branch and outcome.",
			}, []string{"branch", "outcome"}),
			bondRedeems: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "bond_redeems_total",
				Help:      "Count of bond-for-stable-unit conversions.",
			}),
			priceRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "oracle",
				Name:      "price_rejections_total",
				Help:      "Count of price queries rejected by the guardrails.",
			}, []string{"reason"}),
			backstopPartialFills: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "backstop_partial_fills_total",
				Help:      "Count of redemptions whose backstop compensation was capped by the reserve.",
			}),
			collateralRatio: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablecore",
				Subsystem: "engine",
				Name:      "collateral_ratio",
				Help:      "Last computed collateral ratio, 1.0 == 100%.",
			}),
			deviationBound: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablecore",
				Subsystem: "oracle",
				Name:      "deviation_bound_bps",
				Help:      "Currently enforced deviation bound in basis points.",
			}),
		}
		prometheus.MustRegister(
			stableRegistry.mints,
			stableRegistry.redeems,
			stableRegistry.bondRedeems,
			stableRegistry.priceRejections,
			stableRegistry.backstopPartialFills,
			stableRegistry.collateralRatio,
			stableRegistry.deviationBound,
		)
	})
	return stableRegistry
}

// RecordMint increments the mint counter for the supplied outcome label.
func (m *stableMetrics) RecordMint(outcome string) {
	if m == nil {
		return
	}
	m.mints.WithLabelValues(outcome).Inc()
}

// RecordRedeem increments the redemption counter for the branch/outcome pair.
func (m *stableMetrics) RecordRedeem(branch, outcome string) {
	if m == nil {
		return
	}
	m.redeems.WithLabelValues(branch, outcome).Inc()
}

// RecordBondRedeem increments the bond conversion counter.
func (m *stableMetrics) RecordBondRedeem() {
	if m == nil {
		return
	}
	m.bondRedeems.Inc()
}

// RecordPriceRejection increments the guardrail rejection counter.
func (m *stableMetrics) RecordPriceRejection(reason string) {
	if m == nil {
		return
	}
	m.priceRejections.WithLabelValues(reason).Inc()
}

// RecordBackstopPartialFill increments the partial fill counter.
func (m *stableMetrics) RecordBackstopPartialFill() {
	if m == nil {
		return
	}
	m.backstopPartialFills.Inc()
}

// SetCollateralRatio publishes the last computed ratio as a float gauge.
func (m *stableMetrics) SetCollateralRatio(ratio *big.Int) {
	if m == nil || ratio == nil {
		return
	}
	value, _ := new(big.Rat).SetFrac(ratio, big.NewInt(1e18)).Float64()
	m.collateralRatio.Set(value)
}

// SetDeviationBound publishes the enforced deviation bound.
func (m *stableMetrics) SetDeviationBound(bps uint64) {
	if m == nil {
		return
	}
	m.deviationBound.Set(float64(bps))
}
