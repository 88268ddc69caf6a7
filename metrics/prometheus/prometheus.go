// Package prometheus provides a Prometheus implementation of the
// metrics.Collector interface. This package is optional and only imported
// when Prometheus metrics are needed.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sandrolain/httpdispatch/metrics"
)

// Collector implements metrics.Collector for Prometheus.
type Collector struct {
	cacheLookups    *prometheus.CounterVec
	cacheDuration   *prometheus.HistogramVec
	networkRequests *prometheus.CounterVec
	networkDuration *prometheus.HistogramVec
	networkErrors   *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
}

// CollectorConfig provides configuration options for the Prometheus
// collector.
type CollectorConfig struct {
	// Registry is the Prometheus registry to use. If nil, uses
	// prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace for metrics (default: "httpdispatch").
	Namespace string

	// Subsystem for metrics (optional).
	Subsystem string

	// ConstLabels are labels added to all metrics.
	ConstLabels prometheus.Labels
}

// NewCollector creates a new Prometheus collector with the default registry
// and configuration.
func NewCollector() *Collector {
	return NewCollectorWithConfig(CollectorConfig{})
}

// NewCollectorWithRegistry creates a new Prometheus collector registered on
// reg.
func NewCollectorWithRegistry(reg prometheus.Registerer) *Collector {
	return NewCollectorWithConfig(CollectorConfig{Registry: reg})
}

// NewCollectorWithConfig creates a new Prometheus collector with custom
// configuration.
func NewCollectorWithConfig(config CollectorConfig) *Collector {
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Namespace == "" {
		config.Namespace = "httpdispatch"
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "cache_lookups_total",
				Help:        "Total number of cache-queue lookups by outcome",
				ConstLabels: config.ConstLabels,
			},
			[]string{"outcome"},
		),
		cacheDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "cache_lookup_duration_seconds",
				Help:        "Duration of cache-queue lookups in seconds",
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
				ConstLabels: config.ConstLabels,
			},
			[]string{"outcome"},
		),
		networkRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "network_requests_total",
				Help:        "Total number of completed network exchanges",
				ConstLabels: config.ConstLabels,
			},
			[]string{"method", "status_code"},
		),
		networkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "network_request_duration_seconds",
				Help:        "Duration of network exchanges in seconds, including retries",
				Buckets:     []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
				ConstLabels: config.ConstLabels,
			},
			[]string{"method"},
		),
		networkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "network_errors_total",
				Help:        "Total number of failed network exchanges by error kind",
				ConstLabels: config.ConstLabels,
			},
			[]string{"kind"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "deliveries_total",
				Help:        "Total number of posted callbacks by kind",
				ConstLabels: config.ConstLabels,
			},
			[]string{"kind"},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "queue_depth",
				Help:        "Instantaneous depth of the dispatch queues",
				ConstLabels: config.ConstLabels,
			},
			[]string{"queue"},
		),
	}
}

// RecordCacheLookup implements metrics.Collector.
func (c *Collector) RecordCacheLookup(outcome string, duration time.Duration) {
	c.cacheLookups.WithLabelValues(outcome).Inc()
	c.cacheDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordNetworkRequest implements metrics.Collector.
func (c *Collector) RecordNetworkRequest(method string, statusCode int, duration time.Duration) {
	c.networkRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.networkDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordNetworkError implements metrics.Collector.
func (c *Collector) RecordNetworkError(kind string) {
	c.networkErrors.WithLabelValues(kind).Inc()
}

// RecordDelivery implements metrics.Collector.
func (c *Collector) RecordDelivery(kind string) {
	c.deliveries.WithLabelValues(kind).Inc()
}

// RecordQueueDepth implements metrics.Collector.
func (c *Collector) RecordQueueDepth(queue string, depth int) {
	c.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

var _ metrics.Collector = (*Collector)(nil)
