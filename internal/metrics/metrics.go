// Package metrics exposes router and pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidpipe/internal/progress"
	"vidpipe/internal/provider"
)

const namespace = "vidpipe"

// UsageSource reports per-backend quota usage at a point in time.
type UsageSource interface {
	Snapshot(now time.Time) map[string]provider.Usage
}

// Collector records router attempts, token usage, stage durations, and
// quota gauges on its own registry.
type Collector struct {
	registry *prometheus.Registry

	attempts     *prometheus.CounterVec
	attemptTime  *prometheus.HistogramVec
	tokens       *prometheus.CounterVec
	backendDown  *prometheus.CounterVec
	stageResults *prometheus.CounterVec
	stageTime    *prometheus.HistogramVec
	jobsActive   prometheus.GaugeFunc
}

// New builds a collector. usage may be nil; active may be nil.
func New(usage UsageSource, active func() int) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "attempts_total",
			Help:      "Backend completion attempts by outcome.",
		}, []string{"backend", "outcome"}),
		attemptTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "attempt_duration_seconds",
			Help:      "Latency of backend completion attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"backend"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "tokens_total",
			Help:      "Tokens recorded against each backend's quota.",
		}, []string{"backend"}),
		backendDown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "backend_down_total",
			Help:      "Times a backend was marked unavailable.",
		}, []string{"backend"}),
		stageResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stages_total",
			Help:      "Finished stages by status.",
		}, []string{"stage", "status"}),
		stageTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each stage.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.attempts, c.attemptTime, c.tokens, c.backendDown, c.stageResults, c.stageTime,
	)
	if usage != nil {
		c.registry.MustRegister(&quotaCollector{source: usage, now: time.Now})
	}
	if active != nil {
		c.jobsActive = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "active",
			Help:      "Jobs not yet in a terminal state.",
		}, func() float64 { return float64(active()) })
		c.registry.MustRegister(c.jobsActive)
	}
	return c
}

// Registry exposes the underlying registry for tests and custom handlers.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// AttemptFinished implements provider.Observer.
func (c *Collector) AttemptFinished(backendID string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.attempts.WithLabelValues(backendID, outcome).Inc()
	c.attemptTime.WithLabelValues(backendID).Observe(elapsed.Seconds())
}

// UsageRecorded implements provider.Observer.
func (c *Collector) UsageRecorded(backendID string, tokens int) {
	if tokens > 0 {
		c.tokens.WithLabelValues(backendID).Add(float64(tokens))
	}
}

// BackendDown implements provider.Observer.
func (c *Collector) BackendDown(backendID, _ string) {
	c.backendDown.WithLabelValues(backendID).Inc()
}

// StageFinished implements pipeline.StageObserver.
func (c *Collector) StageFinished(stage progress.Stage, status progress.Status, elapsed time.Duration) {
	c.stageResults.WithLabelValues(string(stage), string(status)).Inc()
	c.stageTime.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

var (
	dailyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "quota", "daily_tokens"),
		"Tokens used by a backend in the current day.",
		[]string{"backend"}, nil,
	)
	monthlyDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "quota", "monthly_tokens"),
		"Tokens used by a backend in the current billing window.",
		[]string{"backend"}, nil,
	)
)

// quotaCollector reads the ledger on every scrape so gauges follow window resets.
type quotaCollector struct {
	source UsageSource
	now    func() time.Time
}

func (q *quotaCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- dailyDesc
	ch <- monthlyDesc
}

func (q *quotaCollector) Collect(ch chan<- prometheus.Metric) {
	for id, usage := range q.source.Snapshot(q.now()) {
		ch <- prometheus.MustNewConstMetric(dailyDesc, prometheus.GaugeValue, float64(usage.Daily), id)
		ch <- prometheus.MustNewConstMetric(monthlyDesc, prometheus.GaugeValue, float64(usage.Monthly), id)
	}
}
