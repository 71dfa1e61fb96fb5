package registry

import (
	"github.com/defistate/amm-pool-engine/pool"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opCreatePool      = "create_pool"
	opSwap            = "swap"
	opSwapExactOut    = "swap_exact_out"
	opAddLiquidity    = "add_liquidity"
	opRemoveLiquidity = "remove_liquidity"
	opApply           = "apply"

	outcomeOK = "ok"
)

// Metrics holds the Prometheus collectors for a Registry.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	pools      prometheus.Gauge
}

// NewMetrics creates the registry collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "amm",
				Subsystem: "registry",
				Name:      "operations_total",
				Help:      "Mutating registry operations by outcome. Failed outcomes are labelled with the error kind.",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "amm",
				Subsystem: "registry",
				Name:      "operation_duration_seconds",
				Help:      "Time spent computing and committing a registry operation.",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
			},
			[]string{"op"},
		),
		pools: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "amm",
				Subsystem: "registry",
				Name:      "pools",
				Help:      "Number of pools in the committed snapshot.",
			},
		),
	}
	reg.MustRegister(m.operations, m.duration, m.pools)
	return m
}

func outcome(err error) string {
	if err == nil {
		return outcomeOK
	}
	return pool.KindOf(err).String()
}
