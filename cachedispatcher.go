package httpdispatch

import (
	"context"
	"net/http"

	"github.com/sandrolain/httpdispatch/metrics"
)

// cacheDispatcher is the single worker draining the cache queue. It resolves
// requests from the cache and forwards misses and hard-expired entries to
// the network queue, attaching the stale entry so the network layer can
// revalidate instead of refetching.
type cacheDispatcher struct {
	cacheQueue   *blockingQueue
	networkQueue *blockingQueue
	cache        Cache
	delivery     ResponseDelivery
	collector    metrics.Collector
	done         chan struct{}
}

func newCacheDispatcher(cacheQueue, networkQueue *blockingQueue, cache Cache, delivery ResponseDelivery, collector metrics.Collector) *cacheDispatcher {
	return &cacheDispatcher{
		cacheQueue:   cacheQueue,
		networkQueue: networkQueue,
		cache:        cache,
		delivery:     delivery,
		collector:    collector,
		done:         make(chan struct{}),
	}
}

func (d *cacheDispatcher) run() {
	defer close(d.done)

	if err := d.cache.Initialize(context.Background()); err != nil {
		GetLogger().Warn("cache initialization failed", "error", err)
	}

	for {
		req, ok := d.cacheQueue.take()
		if !ok {
			return
		}
		d.process(req)
	}
}

func (d *cacheDispatcher) process(req Requester) {
	start := clock.now()
	req.addMarker("cache-queue-take")

	if req.IsCanceled() {
		req.finish("cache-discard-canceled")
		return
	}

	entry, err := d.cache.Get(context.Background(), req.CacheKey())
	if err != nil {
		// Cache I/O failures demote to a miss: the request is promoted to a
		// network fetch rather than dropped.
		GetLogger().Warn("cache lookup failed, forwarding to network",
			"cacheKey", req.CacheKey(),
			"error", err)
		d.collector.RecordCacheLookup("error", clock.since(start))
		entry = nil
	}

	if entry == nil {
		req.addMarker("cache-miss")
		if err == nil {
			d.collector.RecordCacheLookup("miss", clock.since(start))
		}
		d.networkQueue.put(req)
		return
	}

	if entry.IsExpired() {
		req.addMarker("cache-hit-expired")
		d.collector.RecordCacheLookup("expired", clock.since(start))
		req.setCacheEntry(entry)
		d.networkQueue.put(req)
		return
	}

	req.addMarker("cache-hit")
	resp, perr := req.parseNetworkResponse(&NetworkResponse{
		StatusCode: http.StatusOK,
		Data:       entry.Data,
		Headers:    copyHeaders(entry.ResponseHeaders),
	})
	if perr != nil {
		GetLogger().Warn("failed to parse cached entry",
			"cacheKey", req.CacheKey(),
			"error", perr)
		d.collector.RecordCacheLookup("error", clock.since(start))
		d.collector.RecordDelivery("error")
		d.delivery.PostError(req, perr)
		return
	}
	req.addMarker("cache-hit-parsed")

	if !entry.RefreshNeeded() {
		d.collector.RecordCacheLookup("hit", clock.since(start))
		d.collector.RecordDelivery("success")
		d.delivery.PostResponse(req, resp, nil)
		return
	}

	// Soft-expired: deliver the cached result immediately and refresh over
	// the network. The refresh is enqueued from the delivery executor, after
	// the intermediate callback, which is what orders the terminal delivery
	// strictly behind the intermediate one.
	req.addMarker("cache-hit-refresh-needed")
	d.collector.RecordCacheLookup("refresh-needed", clock.since(start))
	req.setCacheEntry(entry)
	resp.intermediate = true
	networkQueue := d.networkQueue
	d.collector.RecordDelivery("intermediate")
	d.delivery.PostResponse(req, resp, func() {
		networkQueue.put(req)
	})
}
