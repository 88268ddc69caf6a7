// Package httpdispatch schedules asynchronous HTTP requests through a pair
// of cooperating dispatcher pools, serving responses from a local cache when
// possible and refreshing stale entries over the network with conditional
// requests (If-None-Match / If-Modified-Since).
package httpdispatch

import "time"

// timer abstracts wall-clock access so freshness checks and request event
// timestamps can be driven deterministically in tests.
type timer interface {
	now() time.Time
	since(t time.Time) time.Duration
}

type realClock struct{}

func (realClock) now() time.Time { return time.Now() }

func (realClock) since(t time.Time) time.Duration { return time.Since(t) }

var clock timer = realClock{}

// nowMillis returns the current wall time in milliseconds since the Unix
// epoch, the unit used by Entry expiry fields.
func nowMillis() int64 {
	return clock.now().UnixMilli()
}
