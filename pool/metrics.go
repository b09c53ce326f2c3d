package pool

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics instruments a pool. A nil *metrics is a no-op so pools built
// without a Registerer pay nothing.
type metrics struct {
	operations  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	reentrant   prometheus.Counter
	reserves    *prometheus.GaugeVec
	totalShares prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, pool string) *metrics {
	if reg == nil {
		return nil
	}

	labels := prometheus.Labels{"pool": pool}
	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "amm_pool_operations_total",
			Help:        "Committed pool operations by kind.",
			ConstLabels: labels,
		}, []string{"op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "amm_pool_operation_failures_total",
			Help:        "Rolled-back pool operations by kind.",
			ConstLabels: labels,
		}, []string{"op"}),
		reentrant: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "amm_pool_reentrancy_rejections_total",
			Help:        "Calls rejected because the pool guard was already held.",
			ConstLabels: labels,
		}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "amm_pool_reserve",
			Help:        "Committed reserve per asset (float approximation).",
			ConstLabels: labels,
		}, []string{"token"}),
		totalShares: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "amm_pool_total_shares",
			Help:        "Outstanding liquidity shares (float approximation).",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(m.operations, m.failures, m.reentrant, m.reserves, m.totalShares)
	return m
}

func (m *metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.failures.WithLabelValues(op).Inc()
		return
	}
	m.operations.WithLabelValues(op).Inc()
}

func (m *metrics) rejectReentrant() {
	if m == nil {
		return
	}
	m.reentrant.Inc()
}

func (m *metrics) setReserves(token0, token1 string, reserve0, reserve1, shares *big.Int) {
	if m == nil {
		return
	}
	m.reserves.WithLabelValues(token0).Set(approx(reserve0))
	m.reserves.WithLabelValues(token1).Set(approx(reserve1))
	m.totalShares.Set(approx(shares))
}

// approx converts a big.Int to float64 for gauges; precision loss is fine
// for monitoring.
func approx(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
