// Package metrics defines the record-keeper's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters and histograms exported on /metrics.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	submissions *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	processed   *prometheus.CounterVec
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "classcheck_requests_total",
			Help: "Record-keeper requests by action and status class.",
		}, []string{"action", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classcheck_request_duration_seconds",
			Help:    "Record-keeper request latency by action.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "classcheck_submissions_total",
			Help: "Attendance submissions by outcome.",
		}, []string{"outcome"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "classcheck_lookup_cache_hits_total",
			Help: "Roster lookups answered from cache.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "classcheck_lookup_cache_misses_total",
			Help: "Roster lookups that reached the database.",
		}),
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "classcheck_worker_events_total",
			Help: "Events post-processed by the worker, by verdict.",
		}, []string{"status"}),
	}
}

func (m *Metrics) ObserveRequest(action string, status int, d time.Duration) {
	m.requests.WithLabelValues(action, statusClass(status)).Inc()
	m.duration.WithLabelValues(action).Observe(d.Seconds())
}

// Submission counts one submit outcome: accepted, duplicate, or the
// rejection reason class.
func (m *Metrics) Submission(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheHit()  { m.cacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.cacheMisses.Inc() }

func (m *Metrics) Processed(status string) {
	m.processed.WithLabelValues(status).Inc()
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
