package web

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OrionFinanceAI/orion-engine/internal/engine"
)

// RegisterMetrics wires the engine's live status into the default
// Prometheus registry. Call once at startup; a second call panics on
// duplicate registration, which is the failure mode we want for a
// misconfigured daemon.
func RegisterMetrics(eng *engine.Engine) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "orion",
			Name:      "epoch_number",
			Help:      "Number of completed epochs.",
		},
		func() float64 { return float64(eng.EpochNumber()) },
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "orion",
			Name:      "engine_idle",
			Help:      "1 when both machines are idle, 0 while an epoch is in flight.",
		},
		func() float64 {
			if eng.IsIdle() {
				return 1
			}
			return 0
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "orion",
			Name:      "buffer_balance_base_units",
			Help:      "Solvency buffer balance in base units.",
		},
		func() float64 { return intToFloat(eng.BufferBalance().String()) },
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "orion",
			Name:      "protocol_fees_base_units",
			Help:      "Accrued unclaimed protocol fees in base units.",
		},
		func() float64 { return intToFloat(eng.ProtocolFees().String()) },
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "orion",
			Name:      "registered_vaults",
			Help:      "Number of registered vaults.",
		},
		func() float64 { return float64(eng.Status().VaultCount) },
	))
}

// intToFloat renders a big integer string as a float64 gauge value.
// Precision loss past 2^53 is acceptable for monitoring.
func intToFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
