package httpdispatch

import (
	"context"
	"time"

	"github.com/sandrolain/httpdispatch/metrics"
)

// networkDispatcher is one worker of the network pool. It performs the HTTP
// exchange, parses the result, writes it back to the cache and posts the
// delivery.
type networkDispatcher struct {
	queue     *blockingQueue
	network   Network
	cache     Cache
	delivery  ResponseDelivery
	collector metrics.Collector
	done      chan struct{}
}

func newNetworkDispatcher(queue *blockingQueue, network Network, cache Cache, delivery ResponseDelivery, collector metrics.Collector) *networkDispatcher {
	return &networkDispatcher{
		queue:     queue,
		network:   network,
		cache:     cache,
		delivery:  delivery,
		collector: collector,
		done:      make(chan struct{}),
	}
}

func (d *networkDispatcher) run() {
	defer close(d.done)
	for {
		req, ok := d.queue.take()
		if !ok {
			return
		}
		d.process(req)
	}
}

func (d *networkDispatcher) process(req Requester) {
	start := clock.now()
	req.addMarker("network-queue-take")

	if req.IsCanceled() {
		req.finish("network-discard-canceled")
		return
	}

	networkResponse, err := d.network.PerformRequest(req)
	if err != nil {
		d.postError(req, err, start)
		return
	}
	req.addMarker("network-http-complete")
	d.collector.RecordNetworkRequest(req.Method(), networkResponse.StatusCode, clock.since(start))

	// A 304 for a request that already delivered its intermediate cached
	// response needs no second identical delivery.
	if networkResponse.NotModified && req.responseDelivered() {
		req.finish("not-modified")
		return
	}

	resp, perr := req.parseNetworkResponse(networkResponse)
	if perr != nil {
		d.postError(req, perr, start)
		return
	}
	req.addMarker("network-parse-complete")

	if req.ShouldCache() && resp.Entry() != nil {
		if err := d.cache.Put(context.Background(), req.CacheKey(), resp.Entry()); err != nil {
			GetLogger().Warn("failed to write cache entry",
				"cacheKey", req.CacheKey(),
				"error", err)
		}
		req.addMarker("network-cache-written")
	}

	req.markDelivered()
	d.collector.RecordDelivery("success")
	d.delivery.PostResponse(req, resp, nil)
}

func (d *networkDispatcher) postError(req Requester, err error, start time.Time) {
	dispatchErr := asError(err)
	dispatchErr.NetworkTimeMs = clock.since(start).Milliseconds()
	dispatchErr = req.parseNetworkError(dispatchErr)
	d.collector.RecordNetworkError(dispatchErr.Kind.String())
	d.collector.RecordDelivery("error")
	d.delivery.PostError(req, dispatchErr)
}
