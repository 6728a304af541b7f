// Package metrics exposes Prometheus instrumentation for the engine:
//
//   - bot_entries_total{portfolio}            – positions opened
//   - bot_exits_total{portfolio,reason}       – exits fired, split by reason
//   - bot_rejections_total{portfolio,reason}  – signals rejected, split by reason
//   - bot_trailing_advances_total{portfolio}  – trailing-stop moves
//   - bot_portfolio_equity{portfolio}         – equity snapshot (gauge)
//   - bot_open_positions{portfolio}           – open position count (gauge)
//
// All collectors are registered in init() and served by the HTTP handler the
// driver mounts at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	entriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_entries_total",
			Help: "Positions opened",
		},
		[]string{"portfolio"},
	)

	exitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exits_total",
			Help: "Exits fired, split by reason",
		},
		[]string{"portfolio", "reason"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_rejections_total",
			Help: "Signals rejected, split by reason",
		},
		[]string{"portfolio", "reason"},
	)

	trailingAdvancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_trailing_advances_total",
			Help: "Trailing-stop advances",
		},
		[]string{"portfolio"},
	)

	portfolioEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_portfolio_equity",
			Help: "Portfolio equity snapshot",
		},
		[]string{"portfolio"},
	)

	openPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Open position count",
		},
		[]string{"portfolio"},
	)
)

func init() {
	prometheus.MustRegister(
		entriesTotal,
		exitsTotal,
		rejectionsTotal,
		trailingAdvancesTotal,
		portfolioEquity,
		openPositions,
	)
}

// IncEntry counts a position open.
func IncEntry(portfolio string) {
	entriesTotal.WithLabelValues(portfolio).Inc()
}

// IncExit counts an exit by reason.
func IncExit(portfolio, reason string) {
	exitsTotal.WithLabelValues(portfolio, reason).Inc()
}

// IncRejection counts a rejected signal by reason.
func IncRejection(portfolio, reason string) {
	rejectionsTotal.WithLabelValues(portfolio, reason).Inc()
}

// IncTrailingAdvance counts a trailing-stop move.
func IncTrailingAdvance(portfolio string) {
	trailingAdvancesTotal.WithLabelValues(portfolio).Inc()
}

// SetEquity records a portfolio equity snapshot.
func SetEquity(portfolio string, equity float64) {
	portfolioEquity.WithLabelValues(portfolio).Set(equity)
}

// SetOpenPositions records the current open position count.
func SetOpenPositions(portfolio string, count int) {
	openPositions.WithLabelValues(portfolio).Set(float64(count))
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
