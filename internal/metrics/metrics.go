// Package metrics collects Prometheus metrics for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what workflows and handlers report to.
type Recorder interface {
	RecordItemReported(category string)
	RecordItemsDeleted(count int)
	RecordImageCleanupFailure()
	RecordStatusChange(status string)
	RecordLogin(success bool)
	RecordRequest(method string, status int, duration time.Duration)
}

// Collector is the Prometheus Recorder.
type Collector struct {
	itemsReported   *prometheus.CounterVec
	itemsDeleted    prometheus.Counter
	cleanupFailures prometheus.Counter
	statusChanges   *prometheus.CounterVec
	logins          *prometheus.CounterVec
	sessionEvents   *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestLatency  prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		itemsReported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lostfound_items_reported_total",
			Help: "Items reported, by category.",
		}, []string{"category"}),
		itemsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lostfound_items_deleted_total",
			Help: "Item rows deleted by single or bulk delete.",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lostfound_image_cleanup_failures_total",
			Help: "Image removals that failed and left objects orphaned.",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lostfound_status_changes_total",
			Help: "Item status updates, by new status.",
		}, []string{"status"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lostfound_logins_total",
			Help: "Login attempts, by result.",
		}, []string{"result"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lostfound_session_events_total",
			Help: "Account registrations, sign-ins and sign-outs, by kind.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lostfound_http_requests_total",
			Help: "HTTP requests, by method and status code.",
		}, []string{"method", "status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lostfound_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.itemsReported,
		c.itemsDeleted,
		c.cleanupFailures,
		c.statusChanges,
		c.logins,
		c.sessionEvents,
		c.requests,
		c.requestLatency,
	)

	return c
}

func (c *Collector) RecordItemReported(category string) {
	c.itemsReported.WithLabelValues(category).Inc()
}

func (c *Collector) RecordItemsDeleted(count int) {
	c.itemsDeleted.Add(float64(count))
}

func (c *Collector) RecordImageCleanupFailure() {
	c.cleanupFailures.Inc()
}

func (c *Collector) RecordStatusChange(status string) {
	c.statusChanges.WithLabelValues(status).Inc()
}

func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordSessionEvent counts a session change reported by the identity
// provider.
func (c *Collector) RecordSessionEvent(kind string) {
	c.sessionEvents.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordRequest(method string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.requestLatency.Observe(duration.Seconds())
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordItemReported(string)                {}
func (Nop) RecordItemsDeleted(int)                   {}
func (Nop) RecordImageCleanupFailure()               {}
func (Nop) RecordStatusChange(string)                {}
func (Nop) RecordLogin(bool)                         {}
func (Nop) RecordRequest(string, int, time.Duration) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
