package httpdispatch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// NetworkResponse is the raw result of one HTTP round trip, before parsing.
type NetworkResponse struct {
	// StatusCode is the HTTP status.
	StatusCode int
	// Data is the response body. On a 304 it is synthesized from the stale
	// cache entry so parsing succeeds normally.
	Data []byte
	// Headers are the response headers, first value per name.
	Headers map[string]string
	// NotModified reports a 304 revalidation result.
	NotModified bool
	// NetworkTimeMs is the round-trip duration including retries.
	NetworkTimeMs int64
}

// Network performs a single HTTP exchange for a request. Implementations
// must inject If-None-Match / If-Modified-Since from the request's cached
// entry, execute the request's retry policy, and map transport failures onto
// the Error taxonomy.
type Network interface {
	PerformRequest(req Requester) (*NetworkResponse, error)
}

// maxRetryBackoff caps the delay between network attempts.
const maxRetryBackoff = 30 * time.Second

// BasicNetwork is the stock Network over an http.RoundTripper. Retries are
// executed with failsafe per the request's RetryPolicy; an optional circuit
// breaker sits inside the retry policy, so it sees every single attempt.
type BasicNetwork struct {
	transport http.RoundTripper
	breaker   circuitbreaker.CircuitBreaker[*NetworkResponse]
}

// NetworkOption configures a BasicNetwork.
type NetworkOption func(*BasicNetwork)

// WithTransport sets the underlying http.RoundTripper. If nil,
// http.DefaultTransport is used.
func WithTransport(rt http.RoundTripper) NetworkOption {
	return func(n *BasicNetwork) {
		n.transport = rt
	}
}

// WithCircuitBreaker guards the transport with the given circuit breaker.
func WithCircuitBreaker(cb circuitbreaker.CircuitBreaker[*NetworkResponse]) NetworkOption {
	return func(n *BasicNetwork) {
		n.breaker = cb
	}
}

// CircuitBreakerBuilder creates a pre-configured circuit breaker builder for
// the network layer: it opens after 5 consecutive failed exchanges, closes
// again after 2 successes in half-open state, and waits 60 seconds before
// probing.
func CircuitBreakerBuilder() circuitbreaker.Builder[*NetworkResponse] {
	return circuitbreaker.NewBuilder[*NetworkResponse]().
		HandleIf(func(r *NetworkResponse, err error) bool {
			return err != nil
		}).
		WithFailureThreshold(5).
		WithSuccessThreshold(2).
		WithDelay(60 * time.Second)
}

// NewBasicNetwork returns a Network over http.DefaultTransport unless
// overridden by options.
func NewBasicNetwork(opts ...NetworkOption) *BasicNetwork {
	n := &BasicNetwork{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// PerformRequest implements Network.
func (n *BasicNetwork) PerformRequest(req Requester) (*NetworkResponse, error) {
	start := clock.now()
	policy := req.RetryPolicy()

	retry := retrypolicy.NewBuilder[*NetworkResponse]().
		HandleIf(func(r *NetworkResponse, err error) bool {
			return isRetryable(err)
		}).
		WithMaxRetries(policy.MaxRetries).
		WithBackoff(policy.backoffDelay(), maxRetryBackoff).
		Build()

	policies := []failsafe.Policy[*NetworkResponse]{retry}
	if n.breaker != nil {
		policies = append(policies, n.breaker)
	}

	resp, err := failsafe.With(policies...).Get(func() (*NetworkResponse, error) {
		return n.performOnce(req, policy)
	})
	if err != nil {
		return nil, asError(err)
	}
	resp.NetworkTimeMs = clock.since(start).Milliseconds()
	return resp, nil
}

// performOnce executes one attempt, bounded by the policy's per-attempt
// timeout.
func (n *BasicNetwork) performOnce(req Requester, policy RetryPolicy) (*NetworkResponse, error) {
	ctx := context.Background()
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	var body io.Reader
	if b := req.Body(); len(b) > 0 {
		body = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL(), body)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	for name, value := range req.Headers() {
		httpReq.Header.Set(name, value)
	}
	addValidators(httpReq, req.CachedEntry())

	transport := n.transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	httpResp, err := transport.RoundTrip(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			GetLogger().Warn("failed to close response body", "url", req.URL(), "error", closeErr)
		}
	}()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	headers := make(map[string]string, len(httpResp.Header))
	for name := range httpResp.Header {
		headers[name] = httpResp.Header.Get(name)
	}

	resp := &NetworkResponse{
		StatusCode: httpResp.StatusCode,
		Data:       data,
		Headers:    headers,
	}

	switch {
	case httpResp.StatusCode == http.StatusNotModified:
		resp.NotModified = true
		if entry := req.CachedEntry(); entry != nil {
			// Revalidated: the body and any header not overridden by the 304
			// come from the stale entry.
			resp.Data = entry.Data
			merged := copyHeaders(entry.ResponseHeaders)
			for name, value := range headers {
				merged[name] = value
			}
			resp.Headers = merged
		}
		return resp, nil
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		return resp, nil
	case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
		return nil, NewAuthFailureError(resp)
	default:
		return nil, NewServerError(resp)
	}
}

// addValidators sets the conditional request headers derived from a stale
// cache entry.
func addValidators(httpReq *http.Request, entry *Entry) {
	if entry == nil {
		return
	}
	if entry.ETag != "" {
		httpReq.Header.Set(headerIfNoneMatch, entry.ETag)
	}
	if entry.LastModified > 0 {
		httpReq.Header.Set(headerIfModifiedSince, formatHTTPDate(entry.LastModified))
	}
}

// classifyTransportError maps low-level round-trip failures onto the error
// taxonomy.
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return NewNoConnectionError(err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewNoConnectionError(err)
	}
	return NewNetworkError(err)
}

// isRetryable reports whether a failed attempt may be retried: timeouts,
// unreachable servers and 5xx responses are; auth, parse and 4xx failures
// are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	switch de.Kind {
	case KindTimeout, KindNoConnection:
		return true
	case KindServer:
		return de.Response != nil && de.Response.StatusCode >= 500
	default:
		return false
	}
}
