// Package metrics is the runtime's Prometheus instrumentation. Grounded
// on chidi150c-coinbase's metrics.go — the same CounterVec/GaugeVec
// naming convention (snake_case, "_total" suffix on counters) — adapted
// from a single global bot's metrics to per-strategy labeled series so
// one process's dashboard can distinguish deployments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the runtime emits, registered against a
// private prometheus.Registry rather than the global default so tests
// can construct isolated instances.
type Registry struct {
	reg *prometheus.Registry

	ticks *prometheus.CounterVec
	orders *prometheus.CounterVec
	fills *prometheus.CounterVec
	rejects *prometheus.CounterVec
	equity *prometheus.GaugeVec
	drawdown *prometheus.GaugeVec
}

// New creates and registers the runtime's metric series.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strateq_ticks_total",
			Help: "Strategy tick loop iterations processed.",
		}, []string{"strategy_id"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strateq_orders_submitted_total",
			Help: "Orders submitted to a broker, by side.",
		}, []string{"strategy_id", "side"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strateq_fills_total",
			Help: "Fills applied to orders.",
		}, []string{"strategy_id"}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strateq_order_rejections_total",
			Help: "Orders rejected by a portfolio gate, by gate code.",
		}, []string{"strategy_id", "code"}),
		equity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strateq_equity_usd",
			Help: "Per-strategy sub-ledger equity.",
		}, []string{"strategy_id"}),
		drawdown: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strateq_drawdown_ratio",
			Help: "Per-strategy drawdown from peak equity, as a fraction.",
		}, []string{"strategy_id"}),
	}

	reg.MustRegister(r.ticks, r.orders, r.fills, r.rejects, r.equity, r.drawdown)

	return r
}

// Handler returns the /metrics HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveTick(strategyID string) {
	r.ticks.WithLabelValues(strategyID).Inc()
}

func (r *Registry) ObserveOrderSubmitted(strategyID, side string) {
	r.orders.WithLabelValues(strategyID, side).Inc()
}

func (r *Registry) ObserveFill(strategyID string) {
	r.fills.WithLabelValues(strategyID).Inc()
}

func (r *Registry) ObserveRejection(strategyID, code string) {
	r.rejects.WithLabelValues(strategyID, code).Inc()
}

func (r *Registry) SetEquity(strategyID string, equity float64) {
	r.equity.WithLabelValues(strategyID).Set(equity)
}

func (r *Registry) SetDrawdown(strategyID string, drawdown float64) {
	r.drawdown.WithLabelValues(strategyID).Set(drawdown)
}
