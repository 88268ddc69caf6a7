package httpdispatch

import (
	"errors"
	"testing"
	"time"
)

func (r *requestState) hasMarker(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.markers {
		if m.name == name {
			return true
		}
	}
	return false
}

func (r *requestState) lastMarker() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.markers) == 0 {
		return ""
	}
	return r.markers[len(r.markers)-1].name
}

func TestRequestDefaults(t *testing.T) {
	req := NewRequest("GET", "http://example.com/a", discardParse, nil, nil)
	if req.Priority() != PriorityNormal {
		t.Fatalf("default priority mismatch: got %s", req.Priority())
	}
	if !req.ShouldCache() {
		t.Fatal("requests should cache by default")
	}
	if req.CacheKey() != "http://example.com/a" {
		t.Fatalf("cache key should default to the URL, got %q", req.CacheKey())
	}
	if req.RetryPolicy() != DefaultRetryPolicy() {
		t.Fatal("default retry policy not applied")
	}
}

func TestRequestOptions(t *testing.T) {
	policy := RetryPolicy{Timeout: time.Second, MaxRetries: 3, BackoffMultiplier: 2}
	req := NewRequest("POST", "http://example.com/a", discardParse, nil, nil,
		WithPriority(PriorityImmediate),
		WithCacheKey("user:42"),
		WithShouldCache(false),
		WithTag("screen-1"),
		WithHeader("Accept", "application/json"),
		WithBody([]byte(`{"q":1}`)),
		WithRetryPolicy(policy),
	)
	if req.Priority() != PriorityImmediate {
		t.Fatal("priority option not applied")
	}
	if req.CacheKey() != "user:42" {
		t.Fatal("cache key option not applied")
	}
	if req.ShouldCache() {
		t.Fatal("should-cache option not applied")
	}
	if req.Tag() != "screen-1" {
		t.Fatal("tag option not applied")
	}
	if req.Headers()["Accept"] != "application/json" {
		t.Fatal("header option not applied")
	}
	if string(req.Body()) != `{"q":1}` {
		t.Fatal("body option not applied")
	}
	if req.RetryPolicy() != policy {
		t.Fatal("retry policy option not applied")
	}
}

func TestRequestCancelIsSticky(t *testing.T) {
	req := NewRequest("GET", "http://example.com/a", discardParse, nil, nil)
	if req.IsCanceled() {
		t.Fatal("new request must not be canceled")
	}
	req.Cancel()
	req.Cancel()
	if !req.IsCanceled() {
		t.Fatal("canceled flag lost")
	}
}

func TestRequestFinishIsIdempotent(t *testing.T) {
	installFakeClock(t)
	req := NewRequest("GET", "http://example.com/a", discardParse, nil, nil)
	req.addMarker("add-to-queue")
	req.finish("done")
	req.finish("done-again")

	if !req.IsFinished() {
		t.Fatal("request not finished")
	}
	if req.hasMarker("done-again") {
		t.Fatal("second finish must be a no-op")
	}
	if req.lastMarker() != "done" {
		t.Fatalf("terminal marker mismatch: got %q", req.lastMarker())
	}
}

func TestRequestParseNetworkResponse(t *testing.T) {
	var delivered string
	req := NewRequest("GET", "http://example.com/a",
		func(resp *NetworkResponse) (string, *Entry, error) {
			return string(resp.Data), &Entry{Data: resp.Data}, nil
		},
		func(result string) { delivered = result },
		nil,
	)

	resp, perr := req.parseNetworkResponse(&NetworkResponse{Data: []byte("hello")})
	if perr != nil {
		t.Fatalf("unexpected parse error: %v", perr)
	}
	if resp.Entry() == nil {
		t.Fatal("entry lost in type erasure")
	}
	resp.deliver()
	if delivered != "hello" {
		t.Fatalf("typed result not recovered: got %q", delivered)
	}
}

func TestRequestParseErrorCarriesResponse(t *testing.T) {
	parseFailure := errors.New("bad payload")
	req := NewRequest("GET", "http://example.com/a",
		func(*NetworkResponse) (string, *Entry, error) {
			return "", nil, parseFailure
		},
		nil, nil,
	)

	nr := &NetworkResponse{StatusCode: 200, Data: []byte("junk")}
	_, perr := req.parseNetworkResponse(nr)
	if perr == nil {
		t.Fatal("expected a parse error")
	}
	if perr.Kind != KindParse {
		t.Fatalf("kind mismatch: got %s", perr.Kind)
	}
	if perr.Response != nr {
		t.Fatal("parse error lost the originating response")
	}
	if !errors.Is(perr, parseFailure) {
		t.Fatal("parse error must wrap the parser's failure")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	nr := &NetworkResponse{StatusCode: 503}
	serverErr := NewServerError(nr)
	if serverErr.Kind != KindServer || serverErr.Response != nr {
		t.Fatal("server error malformed")
	}

	wrapped := asError(errors.New("socket closed"))
	if wrapped.Kind != KindNetwork {
		t.Fatalf("unclassified failures must become network errors, got %s", wrapped.Kind)
	}

	var de *Error
	if !errors.As(error(serverErr), &de) {
		t.Fatal("errors.As must recover *Error")
	}

	passthrough := asError(serverErr)
	if passthrough != serverErr {
		t.Fatal("asError must not re-wrap an existing *Error")
	}
}
