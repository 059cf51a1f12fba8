package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crn"

// Collector implements p2p.Metrics on top of Prometheus vectors.
type Collector struct {
	rpcTotal        *prometheus.CounterVec
	handledTotal    *prometheus.CounterVec
	droppedTotal    *prometheus.CounterVec
	migrationsTotal *prometheus.CounterVec
	lookupDuration  *prometheus.HistogramVec
	lookupQueries   prometheus.Histogram
	directorySize   prometheus.Gauge
	storeSize       prometheus.Gauge
}

// NewCollector registers the node metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		rpcTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_total",
				Help:      "Outbound requests by message type and outcome",
			},
			[]string{"kind", "status"},
		),
		handledTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handled_total",
				Help:      "Inbound datagrams handled by message type",
			},
			[]string{"kind"},
		),
		droppedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_total",
				Help:      "Inbound datagrams dropped by reason",
			},
			[]string{"reason"},
		),
		migrationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "migrations_total",
				Help:      "Values moved to their closest set",
			},
			[]string{"status"},
		),
		lookupDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lookup_duration_seconds",
				Help:      "Nearest-node lookup latency",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"status"},
		),
		lookupQueries: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lookup_queries",
				Help:      "Nearest queries sent per lookup",
				Buckets:   prometheus.LinearBuckets(0, 3, 8),
			},
		),
		directorySize: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "directory_entries",
				Help:      "Known peers, self included",
			},
		),
		storeSize: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "store_keys",
				Help:      "Data keys held locally",
			},
		),
	}
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}

func (c *Collector) IncRPC(kind string, ok bool) {
	c.rpcTotal.WithLabelValues(kind, status(ok)).Inc()
}

func (c *Collector) IncHandled(kind string) {
	c.handledTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) IncDropped(reason string) {
	c.droppedTotal.WithLabelValues(reason).Inc()
}

func (c *Collector) IncMigration(ok bool) {
	c.migrationsTotal.WithLabelValues(status(ok)).Inc()
}

func (c *Collector) ObserveLookup(queries int, duration time.Duration, ok bool) {
	c.lookupDuration.WithLabelValues(status(ok)).Observe(duration.Seconds())
	c.lookupQueries.Observe(float64(queries))
}

func (c *Collector) SetDirectorySize(n int) { c.directorySize.Set(float64(n)) }

func (c *Collector) SetStoreSize(n int) { c.storeSize.Set(float64(n)) }
