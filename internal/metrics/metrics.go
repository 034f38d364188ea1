package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors.
type Metrics struct {
	OperationsTotal      *prometheus.CounterVec
	ItemsTotal           *prometheus.CounterVec
	ItemDuration         *prometheus.HistogramVec
	EnumerationPages     *prometheus.CounterVec
	CaptureSegmentsTotal *prometheus.CounterVec
	ActiveJobs           prometheus.Gauge
	RetryMessagesTotal   *prometheus.CounterVec
}

var (
	global *Metrics
	mu     sync.Mutex
)

// Get returns the process-wide metrics, registering them on first use.
func Get() *Metrics {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		return global
	}

	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dyvine_operations_total",
			Help: "Finished operations by kind and terminal status",
		}, []string{"kind", "status"}),

		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dyvine_items_total",
			Help: "Processed content items by category and outcome",
		}, []string{"category", "outcome"}),

		ItemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dyvine_item_duration_seconds",
			Help:    "Time spent downloading and storing one content item",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"outcome"}),

		EnumerationPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dyvine_enumeration_pages_total",
			Help: "Listing page fetches by outcome",
		}, []string{"outcome"}),

		CaptureSegmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dyvine_capture_segments_total",
			Help: "Livestream segments fetched by outcome",
		}, []string{"outcome"}),

		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dyvine_active_jobs",
			Help: "Background jobs currently running",
		}),

		RetryMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dyvine_retry_messages_total",
			Help: "Item retry messages handled by the worker, by outcome",
		}, []string{"outcome"}),
	}

	m.OperationsTotal = registerOrGet(m.OperationsTotal).(*prometheus.CounterVec)
	m.ItemsTotal = registerOrGet(m.ItemsTotal).(*prometheus.CounterVec)
	m.ItemDuration = registerOrGet(m.ItemDuration).(*prometheus.HistogramVec)
	m.EnumerationPages = registerOrGet(m.EnumerationPages).(*prometheus.CounterVec)
	m.CaptureSegmentsTotal = registerOrGet(m.CaptureSegmentsTotal).(*prometheus.CounterVec)
	m.ActiveJobs = registerOrGet(m.ActiveJobs).(prometheus.Gauge)
	m.RetryMessagesTotal = registerOrGet(m.RetryMessagesTotal).(*prometheus.CounterVec)

	global = m
	return m
}

// registerOrGet registers c, or returns the collector already registered under the same name.
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}
