// Package metrics collects Prometheus counters and gauges for the exchange:
// order intake, matching throughput, settlement state, and event bus health.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kwh-exchange/domain"
)

var (
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds every metric the exchange exposes.
type Collector struct {
	OrdersTotal        *prometheus.CounterVec
	OrdersRejectedTotal *prometheus.CounterVec
	OrdersActive       *prometheus.GaugeVec
	OrderLatency       *prometheus.HistogramVec

	TradesTotal  *prometheus.CounterVec
	TradeVolume  *prometheus.CounterVec
	TradeValue   *prometheus.CounterVec
	MatchLatency *prometheus.HistogramVec

	OrderbookDepth *prometheus.GaugeVec
	SpreadBps      *prometheus.GaugeVec

	SettlementsByState *prometheus.GaugeVec
	SettlementAttempts *prometheus.HistogramVec
	SettlementLatency  *prometheus.HistogramVec
	LedgerCallsTotal   *prometheus.CounterVec

	EventBusDropsTotal    *prometheus.CounterVec
	EventBusSubscribers   prometheus.Gauge
	JournalAppendLatency  prometheus.Histogram
	JournalQueueDepth     prometheus.Gauge

	WSConnectionsActive prometheus.Gauge
	APIRequestsTotal    *prometheus.CounterVec
	APIRequestLatency   *prometheus.HistogramVec
}

// GetCollector returns the process-wide singleton collector, creating and
// registering it with the default registry on first use.
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{}

	c.OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwhx",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of orders accepted into the book.",
		},
		[]string{"market", "side", "type"},
	)

	c.OrdersRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwhx",
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Total number of orders rejected before entering the book.",
		},
		[]string{"market", "reason"},
	)

	c.OrdersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kwhx",
			Subsystem: "orders",
			Name:      "active",
			Help:      "Number of resting orders in the book.",
		},
		[]string{"market", "side"},
	)

	c.OrderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kwhx",
			Subsystem: "orders",
			Name:      "submit_latency_ms",
			Help:      "Time from AddOrder call to return, in milliseconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"market"},
	)

	c.TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwhx",
			Subsystem: "trades",
			Name:      "total",
			Help:      "Total number of trades executed.",
		},
		[]string{"market"},
	)

	c.TradeVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwhx",
			Subsystem: "trades",
			Name:      "volume_kwh",
			Help:      "Total traded quantity in kWh.",
		},
		[]string{"market"},
	)

	c.TradeValue = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwhx",
			Subsystem: "trades",
			Name:      "notional_total",
			Help:      "Total traded notional value.",
		},
		[]string{"market"},
	)

	c.MatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kwhx",
			Subsystem: "matching",
			Name:      "latency_ms",
			Help:      "Time spent matching a single incoming order, in milliseconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 25},
		},
		[]string{"market"},
	)

	c.OrderbookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kwhx",
			Subsystem: "orderbook",
			Name:      "depth",
			Help:      "Number of distinct price levels on a side of the book.",
		},
		[]string{"market", "side"},
	)

	c.SpreadBps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kwhx",
			Subsystem: "orderbook",
			Name:      "spread_bps",
			Help:      "Bid-ask spread in basis points of mid price.",
		},
		[]string{"market"},
	)

	c.SettlementsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kwhx",
			Subsystem: "settlement",
			Name:      "by_state",
			Help:      "Number of settlements currently in each state.",
		},
		[]string{"state"},
	)

	c.SettlementAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kwhx",
			Subsystem: "settlement",
			Name:      "attempts",
			Help:      "Number of ledger submit attempts a settlement took to reach a terminal state.",
			Buckets:   []float64{1, 2, 3, 4, 5, 10},
		},
		[]string{"outcome"},
	)

	c.SettlementLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kwhx",
			Subsystem: "settlement",
			Name:      "ledger_call_latency_ms",
			Help:      "Latency of a single ledger Submit call, in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"outcome"},
	)

	c.LedgerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwhx",
			Subsystem: "settlement",
			Name:      "ledger_calls_total",
			Help:      "Total ledger Submit calls by resulting outcome kind.",
		},
		[]string{"outcome"},
	)

	c.EventBusDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwhx",
			Subsystem: "eventbus",
			Name:      "drops_total",
			Help:      "Total events dropped because a subscriber's queue was full.",
		},
		[]string{"kind"},
	)

	c.EventBusSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kwhx",
			Subsystem: "eventbus",
			Name:      "subscribers",
			Help:      "Current number of event bus subscribers.",
		},
	)

	c.JournalAppendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kwhx",
			Subsystem: "journal",
			Name:      "append_latency_ms",
			Help:      "Latency of a durable journal append, in milliseconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	c.JournalQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kwhx",
			Subsystem: "journal",
			Name:      "queue_depth",
			Help:      "Number of appends waiting on the next batched flush.",
		},
	)

	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kwhx",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwhx",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total REST API requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kwhx",
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "REST API request latency, in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "route"},
	)

	c.registerAll()
	return c
}

func (c *Collector) registerAll() {
	prometheus.MustRegister(
		c.OrdersTotal,
		c.OrdersRejectedTotal,
		c.OrdersActive,
		c.OrderLatency,
		c.TradesTotal,
		c.TradeVolume,
		c.TradeValue,
		c.MatchLatency,
		c.OrderbookDepth,
		c.SpreadBps,
		c.SettlementsByState,
		c.SettlementAttempts,
		c.SettlementLatency,
		c.LedgerCallsTotal,
		c.EventBusDropsTotal,
		c.EventBusSubscribers,
		c.JournalAppendLatency,
		c.JournalQueueDepth,
		c.WSConnectionsActive,
		c.APIRequestsTotal,
		c.APIRequestLatency,
	)
}

// RecordOrderAccepted records an order that entered the book.
func (c *Collector) RecordOrderAccepted(market string, side domain.Side, typ domain.OrderType) {
	c.OrdersTotal.WithLabelValues(market, side.String(), typ.String()).Inc()
}

// RecordOrderRejected records an order that failed validation or risk checks.
func (c *Collector) RecordOrderRejected(market, reason string) {
	c.OrdersRejectedTotal.WithLabelValues(market, reason).Inc()
}

// RecordOrderLatency records how long AddOrder took to return.
func (c *Collector) RecordOrderLatency(market string, latencyMs float64) {
	c.OrderLatency.WithLabelValues(market).Observe(latencyMs)
}

// RecordTrade records a single executed trade.
func (c *Collector) RecordTrade(market string, quantity domain.Quantity, notional float64) {
	c.TradesTotal.WithLabelValues(market).Inc()
	c.TradeVolume.WithLabelValues(market).Add(float64(quantity) / 1000) // milli-kWh to kWh
	c.TradeValue.WithLabelValues(market).Add(notional)
}

// RecordMatchLatency records matching engine processing time for one order.
func (c *Collector) RecordMatchLatency(market string, latencyMs float64) {
	c.MatchLatency.WithLabelValues(market).Observe(latencyMs)
}

// SetOrderbookDepth sets the current price-level count for a market side.
func (c *Collector) SetOrderbookDepth(market, side string, depth int) {
	c.OrderbookDepth.WithLabelValues(market, side).Set(float64(depth))
}

// SetSpreadBps sets the current bid-ask spread in basis points.
func (c *Collector) SetSpreadBps(market string, bps float64) {
	c.SpreadBps.WithLabelValues(market).Set(bps)
}

// SetSettlementsByState replaces the gauge for one settlement state.
func (c *Collector) SetSettlementsByState(state domain.SettlementState, count int) {
	c.SettlementsByState.WithLabelValues(state.String()).Set(float64(count))
}

// RecordSettlementTerminal records the attempt count a settlement took to
// reach Confirmed or Failed.
func (c *Collector) RecordSettlementTerminal(outcome string, attempts int) {
	c.SettlementAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// RecordLedgerCall records one ledger Submit round trip.
func (c *Collector) RecordLedgerCall(outcome string, latencyMs float64) {
	c.LedgerCallsTotal.WithLabelValues(outcome).Inc()
	c.SettlementLatency.WithLabelValues(outcome).Observe(latencyMs)
}

// RecordEventBusDrop records an event dropped for a slow subscriber.
func (c *Collector) RecordEventBusDrop(kind string) {
	c.EventBusDropsTotal.WithLabelValues(kind).Inc()
}

// SetEventBusSubscribers sets the current subscriber count.
func (c *Collector) SetEventBusSubscribers(n int) {
	c.EventBusSubscribers.Set(float64(n))
}

// RecordJournalAppend records the latency of one durable append.
func (c *Collector) RecordJournalAppend(latencyMs float64) {
	c.JournalAppendLatency.Observe(latencyMs)
}

// SetJournalQueueDepth sets the number of appends awaiting a batched flush.
func (c *Collector) SetJournalQueueDepth(depth int) {
	c.JournalQueueDepth.Set(float64(depth))
}

// RecordWSConnection adjusts the active WebSocket connection gauge by delta.
func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnectionsActive.Add(float64(delta))
}

// RecordAPIRequest records one REST API request.
func (c *Collector) RecordAPIRequest(method, route, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, route).Observe(latencyMs)
}

// Handler returns the HTTP handler that serves metrics in the Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for latency histograms.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds.
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
