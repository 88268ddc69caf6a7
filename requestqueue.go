package httpdispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sandrolain/httpdispatch/metrics"
)

// DefaultNetworkPoolSize is the number of network dispatcher goroutines
// started when none is configured.
const DefaultNetworkPoolSize = 4

// RequestQueue coordinates the dispatch engine: it owns the cache and
// network priority queues, the registry of in-flight requests, and the
// waiting list that collapses duplicate in-flight requests onto a single
// network exchange.
type RequestQueue struct {
	cache     Cache
	network   Network
	delivery  ResponseDelivery
	collector metrics.Collector
	poolSize  int

	cacheQueue   *blockingQueue
	networkQueue *blockingQueue
	seq          atomic.Uint64

	mu      sync.Mutex
	current map[Requester]struct{}
	waiting map[string][]Requester
	running bool

	cacheDispatcher    *cacheDispatcher
	networkDispatchers []*networkDispatcher
}

// QueueOption configures a RequestQueue.
type QueueOption func(*RequestQueue) error

// WithCache injects the cache backend. Default: an in-memory cache; use the
// diskcache package for the usual disk-backed LRU store.
func WithCache(cache Cache) QueueOption {
	return func(q *RequestQueue) error {
		if cache == nil {
			return fmt.Errorf("cache cannot be nil")
		}
		q.cache = cache
		return nil
	}
}

// WithDelivery injects the response delivery. Default: an ExecutorDelivery
// over a dedicated SerialExecutor.
func WithDelivery(delivery ResponseDelivery) QueueOption {
	return func(q *RequestQueue) error {
		if delivery == nil {
			return fmt.Errorf("delivery cannot be nil")
		}
		q.delivery = delivery
		return nil
	}
}

// WithNetworkPoolSize sets the number of network dispatcher goroutines.
// Default: DefaultNetworkPoolSize.
func WithNetworkPoolSize(size int) QueueOption {
	return func(q *RequestQueue) error {
		if size < 1 {
			return fmt.Errorf("network pool size must be at least 1, got %d", size)
		}
		q.poolSize = size
		return nil
	}
}

// WithCollector injects a metrics collector. Default: a no-op collector.
func WithCollector(collector metrics.Collector) QueueOption {
	return func(q *RequestQueue) error {
		if collector == nil {
			return fmt.Errorf("collector cannot be nil")
		}
		q.collector = collector
		return nil
	}
}

// NewRequestQueue creates a stopped RequestQueue over the given network.
// Call Start to spawn the dispatchers.
func NewRequestQueue(network Network, opts ...QueueOption) (*RequestQueue, error) {
	if network == nil {
		return nil, fmt.Errorf("network cannot be nil")
	}
	q := &RequestQueue{
		network:      network,
		poolSize:     DefaultNetworkPoolSize,
		collector:    metrics.DefaultCollector,
		cacheQueue:   newBlockingQueue(),
		networkQueue: newBlockingQueue(),
		current:      map[Requester]struct{}{},
		waiting:      map[string][]Requester{},
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	if q.cache == nil {
		q.cache = NewMemoryCache()
	}
	if q.delivery == nil {
		q.delivery = NewExecutorDelivery(NewSerialExecutor())
	}
	return q, nil
}

// Start spawns the cache dispatcher and the network dispatcher pool. It is
// idempotent while running and may be called again after a matching Stop.
func (q *RequestQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true

	q.cacheQueue.open()
	q.networkQueue.open()

	q.cacheDispatcher = newCacheDispatcher(q.cacheQueue, q.networkQueue, q.cache, q.delivery, q.collector)
	go q.cacheDispatcher.run()

	q.networkDispatchers = make([]*networkDispatcher, q.poolSize)
	for i := range q.networkDispatchers {
		d := newNetworkDispatcher(q.networkQueue, q.network, q.cache, q.delivery, q.collector)
		q.networkDispatchers[i] = d
		go d.run()
	}
}

// Stop signals every dispatcher to quit, waking any blocked queue take, and
// waits for them to exit. Stop is non-draining: requests still queued are
// not dispatched (they are retained and will be dispatched by a subsequent
// Start). Deliveries already posted still run on the delivery executor.
func (q *RequestQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	cacheDisp := q.cacheDispatcher
	netDisps := q.networkDispatchers
	q.cacheDispatcher = nil
	q.networkDispatchers = nil
	q.mu.Unlock()

	q.cacheQueue.close()
	q.networkQueue.close()

	<-cacheDisp.done
	for _, d := range netDisps {
		<-d.done
	}
}

// Add schedules a request: it assigns the sequence number, registers the
// request as in flight, and routes it to the cache queue — or directly to
// the network queue when the request opted out of caching. A request whose
// cache key already has an equivalent request in flight is parked on the
// waiting list instead and replayed when the leader finishes.
func (q *RequestQueue) Add(req Requester) Requester {
	req.prepare(q.seq.Add(1), q)
	req.addMarker("add-to-queue")

	q.mu.Lock()
	q.current[req] = struct{}{}
	q.mu.Unlock()

	if !req.ShouldCache() {
		q.networkQueue.put(req)
		q.collector.RecordQueueDepth("network", q.networkQueue.size())
		return req
	}

	key := req.CacheKey()
	q.mu.Lock()
	if followers, inFlight := q.waiting[key]; inFlight {
		q.waiting[key] = append(followers, req)
		q.mu.Unlock()
		GetLogger().Debug("request joined waiting list", "cacheKey", key)
		return req
	}
	q.waiting[key] = nil
	req.setWaitingLeader()
	q.mu.Unlock()

	q.cacheQueue.put(req)
	q.collector.RecordQueueDepth("cache", q.cacheQueue.size())
	return req
}

// RequestFilter selects requests for bulk cancellation.
type RequestFilter func(Requester) bool

// CancelAll flips the cancellation flag on every in-flight request matching
// the filter. Work already inside the transport is not interrupted; the
// result is dropped at the next checkpoint and no listener fires.
func (q *RequestQueue) CancelAll(filter RequestFilter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for req := range q.current {
		if filter(req) {
			req.Cancel()
		}
	}
}

// CancelByTag cancels every in-flight request carrying the given tag. A nil
// tag matches nothing.
func (q *RequestQueue) CancelByTag(tag any) {
	if tag == nil {
		return
	}
	q.CancelAll(func(req Requester) bool {
		return req.Tag() == tag
	})
}

// Invalidate expires the cached entry under key; with fullExpire the entry
// can no longer be served without revalidation.
func (q *RequestQueue) Invalidate(ctx context.Context, key string, fullExpire bool) error {
	return q.cache.Invalidate(ctx, key, fullExpire)
}

// ClearCache removes every cached entry.
func (q *RequestQueue) ClearCache(ctx context.Context) error {
	return q.cache.Clear(ctx)
}

// finish removes the request from the in-flight registry. When the request
// led a waiting list, its followers are replayed onto the cache queue, where
// they will usually hit the entry the leader just wrote.
func (q *RequestQueue) finish(req Requester) {
	var followers []Requester
	key := req.CacheKey()

	q.mu.Lock()
	delete(q.current, req)
	if req.isWaitingLeader() {
		followers = q.waiting[key]
		delete(q.waiting, key)
	}
	q.mu.Unlock()

	if len(followers) > 0 {
		GetLogger().Debug("releasing waiting requests",
			"cacheKey", key,
			"count", len(followers))
		for _, follower := range followers {
			q.cacheQueue.put(follower)
		}
	}
}
