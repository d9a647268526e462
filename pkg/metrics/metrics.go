// Package metrics provides Prometheus metrics collection for meter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for meter.
// A nil *Collector is valid and records nothing.
type Collector struct {
	// Upstream metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	// Usage metrics
	Messages  *prometheus.CounterVec
	Credits   *prometheus.CounterVec
	UsageRuns *prometheus.CounterVec

	// Cache metrics
	ReportCache *prometheus.CounterVec
}

// New creates a collector with all metrics registered on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meter",
				Name:      "upstream_requests_total",
				Help:      "Total number of upstream requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "meter",
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),
		Messages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meter",
				Name:      "messages_total",
				Help:      "Messages processed by costing (report, text, skipped)",
			},
			[]string{"costing"},
		),
		Credits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meter",
				Name:      "credits_total",
				Help:      "Credits computed by costing",
			},
			[]string{"costing"},
		),
		UsageRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meter",
				Name:      "usage_runs_total",
				Help:      "Usage computations by status",
			},
			[]string{"status"},
		),
		ReportCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "meter",
				Name:      "report_cache_total",
				Help:      "Report cache lookups by result (hit, miss)",
			},
			[]string{"result"},
		),
	}
}

// ObserveUpstream records a single upstream request.
func (c *Collector) ObserveUpstream(endpoint, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	c.UpstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordMessage records one processed message and the credits it used.
func (c *Collector) RecordMessage(costing string, credits float64) {
	if c == nil {
		return
	}
	c.Messages.WithLabelValues(costing).Inc()
	if credits > 0 {
		c.Credits.WithLabelValues(costing).Add(credits)
	}
}

// RecordRun records the final status of a usage computation.
func (c *Collector) RecordRun(status string) {
	if c == nil {
		return
	}
	c.UsageRuns.WithLabelValues(status).Inc()
}

// RecordCache records a report cache lookup.
func (c *Collector) RecordCache(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.ReportCache.WithLabelValues(result).Inc()
}
