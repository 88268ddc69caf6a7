package httpdispatch

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable clock shared by the freshness and marker
// tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) since(t time.Time) time.Duration {
	return c.now().Sub(t)
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// installFakeClock swaps the package clock for the test's lifetime.
func installFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	fc := newFakeClock()
	prev := clock
	clock = fc
	t.Cleanup(func() { clock = prev })
	return fc
}
