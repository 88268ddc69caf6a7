// Package metrics provides an interface for collecting request dispatch
// metrics. It defines a generic interface that can be implemented by various
// metrics systems (Prometheus, OpenTelemetry, Datadog, etc.) without adding
// dependencies to the core httpdispatch package.
package metrics

import "time"

// Collector receives dispatch engine events. Implementations must be safe
// for concurrent use: the cache dispatcher, every network dispatcher and the
// queue all report through the same collector.
type Collector interface {
	// RecordCacheLookup records the outcome of a cache-queue lookup.
	// Outcomes: "hit", "miss", "expired", "refresh-needed", "error".
	RecordCacheLookup(outcome string, duration time.Duration)

	// RecordNetworkRequest records one completed network exchange.
	RecordNetworkRequest(method string, statusCode int, duration time.Duration)

	// RecordNetworkError records a failed network exchange by error kind
	// (e.g. "timeout", "no-connection", "server").
	RecordNetworkError(kind string)

	// RecordDelivery records a posted callback.
	// Kinds: "success", "intermediate", "error".
	RecordDelivery(kind string)

	// RecordQueueDepth records the instantaneous depth of a dispatch queue
	// ("cache" or "network") after an enqueue.
	RecordQueueDepth(queue string, depth int)
}

// NoOpCollector implements Collector with no-op operations. It is the
// default collector, ensuring zero overhead when metrics are not enabled.
type NoOpCollector struct{}

// RecordCacheLookup does nothing.
func (NoOpCollector) RecordCacheLookup(outcome string, duration time.Duration) {}

// RecordNetworkRequest does nothing.
func (NoOpCollector) RecordNetworkRequest(method string, statusCode int, duration time.Duration) {}

// RecordNetworkError does nothing.
func (NoOpCollector) RecordNetworkError(kind string) {}

// RecordDelivery does nothing.
func (NoOpCollector) RecordDelivery(kind string) {}

// RecordQueueDepth does nothing.
func (NoOpCollector) RecordQueueDepth(queue string, depth int) {}

// DefaultCollector is the default no-op collector used when metrics are not
// enabled.
var DefaultCollector Collector = NoOpCollector{}

var _ Collector = (*NoOpCollector)(nil)
