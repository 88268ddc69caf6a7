package httpdispatch

import "sync"

// Executor runs delivery tasks, typically serially on the goroutine that
// owns the application's callbacks.
type Executor interface {
	Execute(task func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(task func())

// Execute calls f(task).
func (f ExecutorFunc) Execute(task func()) {
	f(task)
}

// SerialExecutor runs tasks one at a time, in submission order, on a single
// dedicated goroutine. It is the default delivery context when none is
// injected into the RequestQueue.
type SerialExecutor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	stopped bool
}

// NewSerialExecutor returns a started SerialExecutor.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Execute enqueues task. Tasks submitted after Stop are dropped.
func (e *SerialExecutor) Execute(task func()) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		GetLogger().Debug("delivery task dropped, executor stopped")
		return
	}
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()
	e.cond.Signal()
}

// Stop terminates the executor goroutine after the queued tasks have run.
func (e *SerialExecutor) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.cond.Signal()
}

func (e *SerialExecutor) run() {
	for {
		e.mu.Lock()
		for len(e.tasks) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if len(e.tasks) == 0 && e.stopped {
			e.mu.Unlock()
			return
		}
		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		e.mu.Unlock()
		task()
	}
}

// ResponseDelivery marshals parsed responses and errors onto the callback
// executor, re-checking cancellation at execution time and terminating the
// request unless the delivery is intermediate.
type ResponseDelivery interface {
	// PostResponse delivers a parsed response. onComplete, when non-nil,
	// runs on the delivery executor after the listener callback returns.
	PostResponse(req Requester, resp *Response, onComplete func())
	// PostError converts err to an error-flavored response and submits it
	// through the same channel.
	PostError(req Requester, err error)
}

// ExecutorDelivery delivers callbacks through an injected Executor.
type ExecutorDelivery struct {
	exec Executor
}

// NewExecutorDelivery returns a ResponseDelivery that submits every delivery
// as one task on exec.
func NewExecutorDelivery(exec Executor) *ExecutorDelivery {
	return &ExecutorDelivery{exec: exec}
}

// PostResponse implements ResponseDelivery.
func (d *ExecutorDelivery) PostResponse(req Requester, resp *Response, onComplete func()) {
	req.addMarker("post-response")
	d.exec.Execute(deliveryTask(req, resp, onComplete))
}

// PostError implements ResponseDelivery.
func (d *ExecutorDelivery) PostError(req Requester, err error) {
	req.addMarker("post-error")
	d.exec.Execute(deliveryTask(req, errorResponse(err), nil))
}

// deliveryTask builds the task that runs on the delivery executor. The
// cancellation re-check here is what guarantees that no listener fires for a
// request canceled between enqueue and execution.
func deliveryTask(req Requester, resp *Response, onComplete func()) func() {
	return func() {
		if req.IsCanceled() {
			req.finish("canceled-at-delivery")
			return
		}

		if resp.IsSuccess() {
			req.markDelivered()
			resp.deliver()
		} else {
			req.deliverError(resp.Err())
		}

		if resp.Intermediate() {
			req.addMarker("intermediate-response")
		} else {
			req.finish("done")
		}

		if onComplete != nil {
			onComplete()
		}
	}
}
