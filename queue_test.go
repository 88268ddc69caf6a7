package httpdispatch

import (
	"testing"
	"time"
)

func discardParse(resp *NetworkResponse) (string, *Entry, error) {
	return string(resp.Data), nil, nil
}

func queuedRequest(seq uint64, priority Priority) Requester {
	req := NewRequest("GET", "http://example.com/q", discardParse, nil, nil, WithPriority(priority))
	req.prepare(seq, nil)
	return req
}

func TestBlockingQueuePriorityOrdering(t *testing.T) {
	q := newBlockingQueue()
	low := queuedRequest(1, PriorityLow)
	normal := queuedRequest(2, PriorityNormal)
	high := queuedRequest(3, PriorityHigh)

	q.put(low)
	q.put(normal)
	q.put(high)

	for _, want := range []Requester{high, normal, low} {
		got, ok := q.take()
		if !ok {
			t.Fatal("queue unexpectedly closed")
		}
		if got != want {
			t.Fatalf("take order mismatch: got seq %d priority %s, want seq %d priority %s",
				got.Sequence(), got.Priority(), want.Sequence(), want.Priority())
		}
	}
}

func TestBlockingQueueFIFOWithinPriority(t *testing.T) {
	q := newBlockingQueue()
	first := queuedRequest(1, PriorityNormal)
	second := queuedRequest(2, PriorityNormal)
	third := queuedRequest(3, PriorityNormal)

	// Insertion order deliberately scrambled: sequence, not arrival, breaks ties.
	q.put(second)
	q.put(third)
	q.put(first)

	for _, want := range []Requester{first, second, third} {
		got, _ := q.take()
		if got != want {
			t.Fatalf("FIFO violated: got seq %d, want seq %d", got.Sequence(), want.Sequence())
		}
	}
}

func TestBlockingQueueImmediatePreemptsBacklog(t *testing.T) {
	q := newBlockingQueue()
	for i := uint64(1); i <= 10; i++ {
		q.put(queuedRequest(i, PriorityNormal))
	}
	urgent := queuedRequest(11, PriorityImmediate)
	q.put(urgent)

	got, _ := q.take()
	if got != urgent {
		t.Fatalf("expected the immediate request first, got seq %d", got.Sequence())
	}
}

func TestBlockingQueueBlockingTake(t *testing.T) {
	q := newBlockingQueue()
	taken := make(chan Requester)

	go func() {
		req, ok := q.take()
		if !ok {
			close(taken)
			return
		}
		taken <- req
	}()

	select {
	case <-taken:
		t.Fatal("take returned before anything was queued")
	case <-time.After(20 * time.Millisecond):
	}

	want := queuedRequest(1, PriorityNormal)
	q.put(want)

	select {
	case got := <-taken:
		if got != want {
			t.Fatal("take returned the wrong request")
		}
	case <-time.After(time.Second):
		t.Fatal("take did not wake after put")
	}
}

func TestBlockingQueueCloseWakesTakers(t *testing.T) {
	q := newBlockingQueue()
	done := make(chan bool)

	for i := 0; i < 3; i++ {
		go func() {
			_, ok := q.take()
			done <- ok
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.close()

	for i := 0; i < 3; i++ {
		select {
		case ok := <-done:
			if ok {
				t.Fatal("take on a closed queue reported success")
			}
		case <-time.After(time.Second):
			t.Fatal("blocked taker was not woken by close")
		}
	}
}

func TestBlockingQueueRetainsItemsAcrossCloseOpen(t *testing.T) {
	q := newBlockingQueue()
	req := queuedRequest(1, PriorityNormal)
	q.put(req)
	q.close()

	if _, ok := q.take(); ok {
		t.Fatal("closed queue must not hand out items")
	}

	q.open()
	got, ok := q.take()
	if !ok || got != req {
		t.Fatal("reopened queue lost a retained item")
	}
}
