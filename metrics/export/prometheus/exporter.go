// Package prometheus exposes the engine's in-process counters and the
// authenticate latency histogram as Prometheus metrics. The collector
// reads a fresh snapshot per scrape; nothing is registered globally.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tunevault/authcore"
)

// Collector adapts engine metric snapshots to the Prometheus scrape
// model. It implements prometheus.Collector.
type Collector struct {
	engine *authcore.Engine

	counterDescs map[authcore.MetricID]*prometheus.Desc
	latencyDesc  *prometheus.Desc
	droppedDesc  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a Collector over the given engine.
func NewCollector(engine *authcore.Engine) *Collector {
	descs := make(map[authcore.MetricID]*prometheus.Desc)
	for _, def := range authcore.CounterDefs() {
		descs[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}

	latency := authcore.LatencyDef()
	return &Collector{
		engine:       engine,
		counterDescs: descs,
		latencyDesc:  prometheus.NewDesc(latency.Name, latency.Help, nil, nil),
		droppedDesc: prometheus.NewDesc(
			"authcore_audit_dropped_total",
			"Audit events dropped under backpressure.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.counterDescs {
		ch <- desc
	}
	ch <- c.latencyDesc
	ch <- c.droppedDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.engine.MetricsSnapshot()

	for id, desc := range c.counterDescs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snap.Counters[id]))
	}

	if buckets, ok := snap.Histograms[authcore.MetricAuthenticateLatency]; ok {
		ch <- c.constHistogram(buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(c.engine.AuditDropped()))
}

// constHistogram converts the per-bucket counts into the cumulative form
// Prometheus expects. The sum is reported as zero; only bucket counts
// are tracked internally.
func (c *Collector) constHistogram(buckets []uint64) prometheus.Metric {
	cumulative := make(map[float64]uint64, len(authcore.HistogramBounds)-1)
	var count uint64
	for i, bound := range authcore.HistogramBounds {
		if i >= len(buckets) {
			break
		}
		count += buckets[i]
		if bound > 0 {
			cumulative[bound] = count
		}
	}

	return prometheus.MustNewConstHistogram(c.latencyDesc, count, 0, cumulative)
}

// Handler registers the collector in a fresh registry and returns a
// scrape handler for it.
func Handler(engine *authcore.Engine) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(engine))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
