package httpdispatch

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Priority orders requests within the dispatch queues. Higher priorities are
// taken first; within a priority class requests are FIFO by sequence number.
type Priority int

const (
	// PriorityLow is for background work such as prefetching.
	PriorityLow Priority = iota
	// PriorityNormal is the default.
	PriorityNormal
	// PriorityHigh is for user-visible content.
	PriorityHigh
	// PriorityImmediate preempts everything else in the queue.
	PriorityImmediate
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParseFunc converts a raw network response into a typed result and the cache
// entry to store alongside it. Returning a nil entry disables caching for
// that response; ParseCacheHeaders produces an entry from standard HTTP
// cache headers.
type ParseFunc[T any] func(*NetworkResponse) (T, *Entry, error)

// slowRequestThreshold is the total request duration past which the
// accumulated event log is dumped on finish.
const slowRequestThreshold = 3 * time.Second

// Requester is the type-erased view of a Request shared by the queue, the
// dispatchers, the delivery layer and Network implementations. It is
// implemented only by *Request[T]; the typed result never crosses this
// interface.
type Requester interface {
	// Method returns the HTTP method.
	Method() string
	// URL returns the request URL.
	URL() string
	// Headers returns the extra request headers, possibly nil.
	Headers() map[string]string
	// Body returns the request body, possibly nil.
	Body() []byte
	// CacheKey identifies the cacheable resource; it defaults to the URL.
	CacheKey() string
	// ShouldCache reports whether responses may be served from and written to
	// the cache.
	ShouldCache() bool
	// Priority returns the dispatch priority.
	Priority() Priority
	// Sequence returns the number assigned on Add; it breaks priority ties
	// FIFO.
	Sequence() uint64
	// Tag returns the cancellation tag, possibly nil.
	Tag() any
	// RetryPolicy returns the retry policy executed by the network layer.
	RetryPolicy() RetryPolicy
	// CachedEntry returns the stale entry attached by the cache dispatcher,
	// if any. Network implementations derive revalidation headers from it.
	CachedEntry() *Entry
	// Cancel marks the request canceled. Dispatch and delivery short-circuit
	// at their next check; no listener fires afterwards.
	Cancel()
	// IsCanceled reports whether Cancel was called.
	IsCanceled() bool
	// IsFinished reports whether the request has reached the end of its
	// lifecycle.
	IsFinished() bool

	prepare(seq uint64, q *RequestQueue)
	setCacheEntry(e *Entry)
	markDelivered()
	responseDelivered() bool
	addMarker(name string)
	finish(marker string)
	setWaitingLeader()
	isWaitingLeader() bool
	parseNetworkResponse(nr *NetworkResponse) (*Response, *Error)
	parseNetworkError(e *Error) *Error
	deliverError(err error)
}

type marker struct {
	name string
	at   time.Time
}

// requestState carries the untyped per-request state the dispatchers operate
// on. It is embedded by Request[T] so that the engine never depends on the
// result type.
type requestState struct {
	method      string
	url         string
	cacheKey    string
	priority    Priority
	headers     map[string]string
	body        []byte
	tag         any
	retry       RetryPolicy
	shouldCache bool
	errParser   func(*Error) *Error

	// self is the full request, used to identify it in the queue's registry.
	self Requester

	seq      uint64
	queue    *RequestQueue
	canceled atomic.Bool

	mu        sync.Mutex
	entry     *Entry
	delivered bool
	finished  bool
	leader    bool
	markers   []marker
}

func (r *requestState) Method() string             { return r.method }
func (r *requestState) URL() string                { return r.url }
func (r *requestState) Headers() map[string]string { return r.headers }
func (r *requestState) Body() []byte               { return r.body }
func (r *requestState) ShouldCache() bool          { return r.shouldCache }
func (r *requestState) Priority() Priority         { return r.priority }
func (r *requestState) Sequence() uint64           { return r.seq }
func (r *requestState) Tag() any                   { return r.tag }
func (r *requestState) RetryPolicy() RetryPolicy   { return r.retry }

// CacheKey returns the explicit cache key when one was set, the URL otherwise.
func (r *requestState) CacheKey() string {
	if r.cacheKey != "" {
		return r.cacheKey
	}
	return r.url
}

// Cancel marks the request canceled. Safe to call from any goroutine, any
// number of times; once canceled a request stays canceled.
func (r *requestState) Cancel() {
	r.canceled.Store(true)
}

// IsCanceled reports whether Cancel was called.
func (r *requestState) IsCanceled() bool {
	return r.canceled.Load()
}

// IsFinished reports whether the request reached the end of its lifecycle.
func (r *requestState) IsFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// CachedEntry returns the stale entry attached by the cache dispatcher.
func (r *requestState) CachedEntry() *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entry
}

func (r *requestState) prepare(seq uint64, q *RequestQueue) {
	r.seq = seq
	r.queue = q
}

func (r *requestState) setCacheEntry(e *Entry) {
	r.mu.Lock()
	r.entry = e
	r.mu.Unlock()
}

func (r *requestState) markDelivered() {
	r.mu.Lock()
	r.delivered = true
	r.mu.Unlock()
}

func (r *requestState) responseDelivered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered
}

func (r *requestState) setWaitingLeader() {
	r.mu.Lock()
	r.leader = true
	r.mu.Unlock()
}

func (r *requestState) isWaitingLeader() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leader
}

func (r *requestState) addMarker(name string) {
	r.mu.Lock()
	r.markers = append(r.markers, marker{name: name, at: clock.now()})
	r.mu.Unlock()
}

func (r *requestState) parseNetworkError(e *Error) *Error {
	if r.errParser != nil {
		return r.errParser(e)
	}
	return e
}

// finish terminates the request exactly once: it seals the event log, dumps
// it when the request was slow, and releases the request from the queue's
// registry (which replays any waiting-list followers).
func (r *requestState) finish(name string) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	r.markers = append(r.markers, marker{name: name, at: clock.now()})
	markers := r.markers
	q := r.queue
	r.mu.Unlock()

	if total := markers[len(markers)-1].at.Sub(markers[0].at); total > slowRequestThreshold {
		events := make([]string, len(markers))
		for i, m := range markers {
			events[i] = fmt.Sprintf("%s@+%dms", m.name, m.at.Sub(markers[0].at).Milliseconds())
		}
		GetLogger().Warn("slow request",
			"url", r.url,
			"duration", total,
			"events", events)
	}

	if q != nil {
		q.finish(r.self)
	}
}

// Request is one schedulable HTTP exchange. T is the parsed result type
// delivered to the response listener.
type Request[T any] struct {
	requestState

	parse      ParseFunc[T]
	onResponse func(T)
	onError    func(error)
}

// RequestOption configures a Request at construction time.
type RequestOption func(*requestState)

// WithPriority sets the dispatch priority. Default: PriorityNormal.
func WithPriority(p Priority) RequestOption {
	return func(r *requestState) {
		r.priority = p
	}
}

// WithCacheKey overrides the cache key, which defaults to the request URL.
func WithCacheKey(key string) RequestOption {
	return func(r *requestState) {
		r.cacheKey = key
	}
}

// WithShouldCache controls cache participation. When false the request skips
// the cache queue entirely and its response is never stored. Default: true.
func WithShouldCache(shouldCache bool) RequestOption {
	return func(r *requestState) {
		r.shouldCache = shouldCache
	}
}

// WithTag attaches an opaque tag used by RequestQueue.CancelByTag.
func WithTag(tag any) RequestOption {
	return func(r *requestState) {
		r.tag = tag
	}
}

// WithHeader adds an extra request header.
func WithHeader(name, value string) RequestOption {
	return func(r *requestState) {
		if r.headers == nil {
			r.headers = map[string]string{}
		}
		r.headers[name] = value
	}
}

// WithBody sets the request body.
func WithBody(body []byte) RequestOption {
	return func(r *requestState) {
		r.body = body
	}
}

// WithRetryPolicy overrides the retry policy executed by the network layer.
func WithRetryPolicy(p RetryPolicy) RequestOption {
	return func(r *requestState) {
		r.retry = p
	}
}

// WithErrorParser installs a hook that can refine a network error before it
// reaches the error listener, e.g. to extract details from an error body.
func WithErrorParser(fn func(*Error) *Error) RequestOption {
	return func(r *requestState) {
		r.errParser = fn
	}
}

// NewRequest creates a request. parse converts raw network responses (and,
// on cache hits, cached entries replayed as synthetic responses) into the
// typed result; onResponse and onError are invoked on the delivery executor
// and may be nil.
func NewRequest[T any](method, url string, parse ParseFunc[T], onResponse func(T), onError func(error), opts ...RequestOption) *Request[T] {
	r := &Request[T]{
		requestState: requestState{
			method:      method,
			url:         url,
			priority:    PriorityNormal,
			shouldCache: true,
			retry:       DefaultRetryPolicy(),
		},
		parse:      parse,
		onResponse: onResponse,
		onError:    onError,
	}
	r.self = r
	for _, opt := range opts {
		opt(&r.requestState)
	}
	return r
}

// parseNetworkResponse runs the caller-supplied parser and wraps the typed
// result into a type-erased Response whose deliver hook recovers T.
func (r *Request[T]) parseNetworkResponse(nr *NetworkResponse) (*Response, *Error) {
	result, entry, err := r.parse(nr)
	if err != nil {
		perr := NewParseError(err)
		perr.Response = nr
		return nil, perr
	}
	return &Response{
		entry: entry,
		deliver: func() {
			if r.onResponse != nil {
				r.onResponse(result)
			}
		},
	}, nil
}

func (r *Request[T]) deliverError(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}
