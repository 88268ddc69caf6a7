// Package prewarmer warms an httpdispatch cache at startup by scheduling
// low-priority requests for a known set of URLs through a RequestQueue. The
// responses land in the cache through the normal dispatch path, so later
// requests for the same resources are served locally.
package prewarmer

import (
	"context"
	"sync"

	"github.com/sandrolain/httpdispatch"
)

// Result summarizes one warming pass.
type Result struct {
	// Succeeded is the number of success callbacks received. Responses that
	// produce no cache entry (no-cache, no-store) are counted too.
	Succeeded int
	// Failed is the number of URLs whose request errored.
	Failed int
}

// Prewarmer schedules warming requests on a RequestQueue.
type Prewarmer struct {
	queue *httpdispatch.RequestQueue
}

// New creates a Prewarmer over a started RequestQueue.
func New(queue *httpdispatch.RequestQueue) *Prewarmer {
	return &Prewarmer{queue: queue}
}

// passthroughParse stores the raw body and derives the cache entry from the
// standard HTTP cache headers.
func passthroughParse(resp *httpdispatch.NetworkResponse) ([]byte, *httpdispatch.Entry, error) {
	return resp.Data, httpdispatch.ParseCacheHeaders(resp), nil
}

// Warm issues one GET per URL at low priority and blocks until every request
// completed or ctx is done. Failures are counted, not fatal: a cold cache is
// not worth failing startup over.
func (p *Prewarmer) Warm(ctx context.Context, urls []string) Result {
	var mu sync.Mutex
	var result Result
	var wg sync.WaitGroup

	for _, url := range urls {
		wg.Add(1)
		req := httpdispatch.NewRequest(
			"GET", url,
			passthroughParse,
			func([]byte) {
				mu.Lock()
				result.Succeeded++
				mu.Unlock()
				wg.Done()
			},
			func(err error) {
				httpdispatch.GetLogger().Debug("prewarm request failed", "url", url, "error", err)
				mu.Lock()
				result.Failed++
				mu.Unlock()
				wg.Done()
			},
			httpdispatch.WithPriority(httpdispatch.PriorityLow),
		)
		p.queue.Add(req)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	return result
}
