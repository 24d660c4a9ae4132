// Package metrics provides a Prometheus-backed implementation of the
// boothkit MetricsCollector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records sync activity into Prometheus metrics.
type Collector struct {
	drainsTotal     prometheus.Counter
	drainDispatched prometheus.Counter
	drainDuration   prometheus.Histogram
	reloadsTotal    prometheus.Counter
	reloadRecords   prometheus.Histogram
	reloadDuration  prometheus.Histogram
	queueDepth      prometheus.Gauge
	syncErrors      *prometheus.CounterVec
}

// NewCollector registers the boothkit metrics on reg. Pass
// prometheus.DefaultRegisterer for the default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		drainsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "boothkit",
			Name:      "drains_total",
			Help:      "Completed mutation queue drains.",
		}),
		drainDispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "boothkit",
			Name:      "drain_dispatched_total",
			Help:      "Mutations acknowledged by the remote store.",
		}),
		drainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boothkit",
			Name:      "drain_duration_seconds",
			Help:      "Time spent draining the mutation queue.",
			Buckets:   prometheus.DefBuckets,
		}),
		reloadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "boothkit",
			Name:      "reloads_total",
			Help:      "Full refreshes from the remote store.",
		}),
		reloadRecords: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boothkit",
			Name:      "reload_records",
			Help:      "Records fetched per reload.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		reloadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "boothkit",
			Name:      "reload_duration_seconds",
			Help:      "Time spent reloading from the remote store.",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "boothkit",
			Name:      "queue_depth",
			Help:      "Mutations awaiting dispatch.",
		}),
		syncErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boothkit",
			Name:      "sync_errors_total",
			Help:      "Sync failures by operation and reason.",
		}, []string{"op", "reason"}),
	}
}

func (c *Collector) RecordDrain(dispatched, remaining int, d time.Duration) {
	c.drainsTotal.Inc()
	c.drainDispatched.Add(float64(dispatched))
	c.drainDuration.Observe(d.Seconds())
	c.queueDepth.Set(float64(remaining))
}

func (c *Collector) RecordReload(records int, d time.Duration) {
	c.reloadsTotal.Inc()
	c.reloadRecords.Observe(float64(records))
	c.reloadDuration.Observe(d.Seconds())
}

func (c *Collector) RecordQueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

func (c *Collector) RecordSyncErrors(op, reason string) {
	c.syncErrors.WithLabelValues(op, reason).Inc()
}
