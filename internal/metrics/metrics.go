package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_ticks_total", Help: "Market ticks received from the feed"},
		[]string{"instrument"},
	)
	FeedTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_feed_transitions_total", Help: "Feed state machine transitions by target state"},
		[]string{"state"},
	)
	CandlesSealed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_candles_sealed_total", Help: "Candles sealed by the aggregator"},
		[]string{"interval"},
	)
	TicksDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_ticks_dropped_total", Help: "Ticks ignored by the aggregator"},
		[]string{"reason"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_signals_total", Help: "Signals produced by pattern detection"},
		[]string{"pattern", "direction"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_signal_rejections_total", Help: "Signals rejected, by stage and checker"},
		[]string{"stage", "checker"},
	)
	FailSafePasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_failsafe_passes_total", Help: "Checker errors converted to passes by fail-safe mode"},
		[]string{"checker"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_orders_total", Help: "Orders submitted to the execution gateway"},
		[]string{"mode", "side", "result"},
	)
	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_position_exits_total", Help: "Position exits by reason"},
		[]string{"reason"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "agent_open_positions", Help: "Currently open positions"},
	)
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "agent_events_dropped_total", Help: "Events not delivered to the store"},
		[]string{"reason"},
	)
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "agent_scan_duration_seconds", Help: "Duration of one strategy scan", Buckets: prometheus.DefBuckets},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, FeedTransitions, CandlesSealed, TicksDropped,
		SignalsTotal, RejectionsTotal, FailSafePasses, OrdersTotal,
		ExitsTotal, OpenPositions, EventsDropped, ScanDuration,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
