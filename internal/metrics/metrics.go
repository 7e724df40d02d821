package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests and multiple daemons never collide on
// the global one.
type Metrics struct {
	reg *prometheus.Registry

	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	MarketErrors    *prometheus.CounterVec
	OffersPosted    *prometheus.CounterVec
	OffersCancelled *prometheus.CounterVec
	CoinOps         *prometheus.CounterVec
	FeeCommitted    prometheus.Gauge
	Reconcile       *prometheus.CounterVec
	ListenerEvents  *prometheus.CounterVec
	LastCycle       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenfloor_cycles_total",
			Help: "Daemon cycles by result",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "greenfloor_cycle_duration_seconds",
			Help:    "Wall time of one daemon cycle",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		MarketErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenfloor_market_errors_total",
			Help: "Per-market cycle failures",
		}, []string{"market"}),
		OffersPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenfloor_offers_posted_total",
			Help: "Offer post attempts by outcome",
		}, []string{"market", "outcome"}),
		OffersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenfloor_offers_cancelled_total",
			Help: "Offer cancel attempts by outcome",
		}, []string{"market", "outcome"}),
		CoinOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenfloor_coin_ops_total",
			Help: "Coin operations by type and ledger status",
		}, []string{"op_type", "status"}),
		FeeCommitted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "greenfloor_fee_committed_mojos",
			Help: "Fees executed or reserved today",
		}),
		Reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenfloor_reconcile_outcomes_total",
			Help: "Reconciliation outcomes",
		}, []string{"outcome"}),
		ListenerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenfloor_listener_events_total",
			Help: "Ledger listener events by kind",
		}, []string{"kind"}),
		LastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "greenfloor_last_cycle_timestamp_seconds",
			Help: "Unix time the last cycle finished",
		}),
	}
	m.reg.MustRegister(
		m.Cycles, m.CycleDuration, m.MarketErrors, m.OffersPosted, m.OffersCancelled,
		m.CoinOps, m.FeeCommitted, m.Reconcile, m.ListenerEvents, m.LastCycle,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Sample is the per-cycle view pushed to external sinks.
type Sample struct {
	MarketsProcessed int
	MarketsFailed    int
	OffersPosted     int
	OffersCancelled  int
	CoinOpsExecuted  int
	FeeCommitted     int64
	Duration         time.Duration
	Failed           bool
}

func (m *Metrics) ObserveCycle(s Sample) {
	if m == nil {
		return
	}
	result := "ok"
	if s.Failed {
		result = "error"
	}
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(s.Duration.Seconds())
	m.FeeCommitted.Set(float64(s.FeeCommitted))
	m.LastCycle.SetToCurrentTime()
}

func (m *Metrics) ObserveReconcile(outcomes map[string]int) {
	if m == nil {
		return
	}
	for k, v := range outcomes {
		if v > 0 {
			m.Reconcile.WithLabelValues(k).Add(float64(v))
		}
	}
}

func (m *Metrics) ListenerEvent(kind string) {
	if m == nil {
		return
	}
	m.ListenerEvents.WithLabelValues(kind).Inc()
}
