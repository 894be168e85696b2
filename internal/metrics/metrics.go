/*

Prometheus instrumentation. Counters and gauges are registered once on a
dedicated registry so tests can create isolated instances; the web server
exposes the registry on /metrics.

*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every engine-level collector.
type Metrics struct {
	registry *prometheus.Registry

	TradesTotal          prometheus.Counter
	TradeRejections      *prometheus.CounterVec
	QuoteRejections      *prometheus.CounterVec
	RebalancesTotal      *prometheus.CounterVec
	OracleErrorsTotal    prometheus.Counter
	CurrentSpreadBps     prometheus.Gauge
	SmoothedYieldBps     prometheus.Gauge
	ExternalSuppliedWad  prometheus.Gauge
}

// New builds and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hle_trades_total",
			Help: "Number of trades settled through the pool.",
		}),
		TradeRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hle_trade_rejections_total",
			Help: "Trades refused before settlement, by reason.",
		}, []string{"reason"}),
		QuoteRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hle_quote_rejections_total",
			Help: "Signed quotes rejected by validation, by reason.",
		}, []string{"reason"}),
		RebalancesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hle_rebalances_total",
			Help: "Executed capital rebalances, by direction.",
		}, []string{"direction"}),
		OracleErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hle_oracle_errors_total",
			Help: "Failed reference data reads.",
		}),
		CurrentSpreadBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hle_current_total_spread_bps",
			Help: "Total spread applied to the most recent trade, in bps.",
		}),
		SmoothedYieldBps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hle_smoothed_yield_bps",
			Help: "Smoothed annualized pool fee yield, in bps.",
		}),
		ExternalSuppliedWad: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hle_external_supplied_wad",
			Help: "Capital currently supplied to the external venue (WAD).",
		}),
	}

	reg.MustRegister(
		m.TradesTotal,
		m.TradeRejections,
		m.QuoteRejections,
		m.RebalancesTotal,
		m.OracleErrorsTotal,
		m.CurrentSpreadBps,
		m.SmoothedYieldBps,
		m.ExternalSuppliedWad,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
