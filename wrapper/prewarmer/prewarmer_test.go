package prewarmer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandrolain/httpdispatch"
)

func TestPrewarmerFillsCache(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "max-age=3600")
		_, _ = w.Write([]byte("warmed " + r.URL.Path))
	}))
	defer server.Close()

	cache := httpdispatch.NewMemoryCache()
	queue, err := httpdispatch.NewRequestQueue(httpdispatch.NewBasicNetwork(),
		httpdispatch.WithCache(cache))
	if err != nil {
		t.Fatal(err)
	}
	queue.Start()
	defer queue.Stop()

	urls := []string{server.URL + "/a", server.URL + "/b", server.URL + "/c"}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result := New(queue).Warm(ctx, urls)

	if result.Succeeded != len(urls) || result.Failed != 0 {
		t.Fatalf("warm result: %+v", result)
	}
	if hits.Load() != int64(len(urls)) {
		t.Fatalf("server hits: got %d, want %d", hits.Load(), len(urls))
	}
	for _, url := range urls {
		entry, err := cache.Get(context.Background(), url)
		if err != nil || entry == nil {
			t.Fatalf("url %s was not warmed", url)
		}
	}
}

func TestPrewarmerCountsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	queue, err := httpdispatch.NewRequestQueue(httpdispatch.NewBasicNetwork())
	if err != nil {
		t.Fatal(err)
	}
	queue.Start()
	defer queue.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result := New(queue).Warm(ctx, []string{server.URL + "/broken"})

	if result.Failed != 1 || result.Succeeded != 0 {
		t.Fatalf("warm result: %+v", result)
	}
}
