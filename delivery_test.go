package httpdispatch

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// immediateExecutor runs delivery tasks inline on the posting goroutine.
var immediateExecutor = ExecutorFunc(func(task func()) { task() })

// stepExecutor parks delivery tasks until the test drains them, exposing the
// window between enqueue and execution.
type stepExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (e *stepExecutor) Execute(task func()) {
	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()
}

func (e *stepExecutor) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

func (e *stepExecutor) drain() {
	for {
		e.mu.Lock()
		if len(e.tasks) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		e.mu.Unlock()
		task()
	}
}

func TestExecutorDeliverySuccess(t *testing.T) {
	installFakeClock(t)
	var delivered string
	req := NewRequest("GET", "http://example.com/a", discardParse,
		func(result string) { delivered = result },
		nil,
	)
	delivery := NewExecutorDelivery(immediateExecutor)

	resp, _ := req.parseNetworkResponse(&NetworkResponse{Data: []byte("payload")})
	delivery.PostResponse(req, resp, nil)

	if delivered != "payload" {
		t.Fatalf("listener not invoked: got %q", delivered)
	}
	if !req.IsFinished() {
		t.Fatal("terminal delivery must finish the request")
	}
	if !req.responseDelivered() {
		t.Fatal("delivered flag not set")
	}
}

func TestExecutorDeliveryError(t *testing.T) {
	installFakeClock(t)
	var got error
	req := NewRequest("GET", "http://example.com/a", discardParse,
		func(string) { t.Fatal("success listener must not fire on error") },
		func(err error) { got = err },
	)
	delivery := NewExecutorDelivery(immediateExecutor)

	want := NewServerError(&NetworkResponse{StatusCode: 500})
	delivery.PostError(req, want)

	if !errors.Is(got, error(want)) {
		t.Fatalf("error listener got %v, want %v", got, want)
	}
	if !req.IsFinished() {
		t.Fatal("error delivery must finish the request")
	}
	if req.responseDelivered() {
		t.Fatal("error delivery must not set the delivered flag")
	}
}

func TestExecutorDeliveryCanceledAtDelivery(t *testing.T) {
	installFakeClock(t)
	exec := &stepExecutor{}
	req := NewRequest("GET", "http://example.com/a", discardParse,
		func(string) { t.Fatal("listener fired for a canceled request") },
		func(error) { t.Fatal("error listener fired for a canceled request") },
	)
	delivery := NewExecutorDelivery(exec)

	resp, _ := req.parseNetworkResponse(&NetworkResponse{Data: []byte("x")})
	delivery.PostResponse(req, resp, nil)

	// Cancel in the window between enqueue and execution.
	req.Cancel()
	exec.drain()

	if !req.IsFinished() {
		t.Fatal("canceled delivery must still finish the request")
	}
	if req.lastMarker() != "canceled-at-delivery" {
		t.Fatalf("terminal marker mismatch: got %q", req.lastMarker())
	}
}

func TestExecutorDeliveryIntermediateDoesNotFinish(t *testing.T) {
	installFakeClock(t)
	calls := 0
	req := NewRequest("GET", "http://example.com/a", discardParse,
		func(string) { calls++ },
		nil,
	)
	delivery := NewExecutorDelivery(immediateExecutor)

	resp, _ := req.parseNetworkResponse(&NetworkResponse{Data: []byte("stale")})
	resp.intermediate = true

	completed := false
	delivery.PostResponse(req, resp, func() { completed = true })

	if calls != 1 {
		t.Fatalf("intermediate listener calls: got %d, want 1", calls)
	}
	if req.IsFinished() {
		t.Fatal("intermediate delivery must not finish the request")
	}
	if !req.responseDelivered() {
		t.Fatal("intermediate delivery must mark the response delivered")
	}
	if !completed {
		t.Fatal("onComplete must run after the intermediate callback")
	}
	if !req.hasMarker("intermediate-response") {
		t.Fatal("intermediate marker missing")
	}
}

func TestExecutorDeliveryOnCompleteRunsAfterListener(t *testing.T) {
	installFakeClock(t)
	var order []string
	req := NewRequest("GET", "http://example.com/a", discardParse,
		func(string) { order = append(order, "listener") },
		nil,
	)
	delivery := NewExecutorDelivery(immediateExecutor)

	resp, _ := req.parseNetworkResponse(&NetworkResponse{Data: []byte("x")})
	resp.intermediate = true
	delivery.PostResponse(req, resp, func() { order = append(order, "on-complete") })

	if len(order) != 2 || order[0] != "listener" || order[1] != "on-complete" {
		t.Fatalf("ordering violated: %v", order)
	}
}

func TestSerialExecutorRunsTasksInOrder(t *testing.T) {
	exec := NewSerialExecutor()
	defer exec.Stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 100; i++ {
		exec.Execute(func() {
			mu.Lock()
			order = append(order, i)
			if len(order) == 100 {
				close(done)
			}
			mu.Unlock()
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("executor did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("submission order violated at %d: got %d", i, got)
		}
	}
}
