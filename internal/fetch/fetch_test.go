package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"geneingest/pkg/cache"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc) (*Engine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := cache.NewMemoryCache(nil)
	t.Cleanup(func() { c.Close() })

	return New(srv.Client(), c, nil), srv
}

func TestEngine_GET_Success(t *testing.T) {
	engine, srv := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})

	data, err := engine.GET(context.Background(), Profile{Source: "panelapp"}, srv.URL, Options{})
	if err != nil {
		t.Fatalf("GET() error = %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("GET() = %s, want {\"ok\":true}", data)
	}
}

func TestEngine_GET_CacheShortCircuit(t *testing.T) {
	var calls int32
	engine, srv := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("fresh"))
	})

	opts := Options{CacheKey: "gene:PKD1", TTL: time.Minute}

	first, err := engine.GET(context.Background(), Profile{Source: "panelapp"}, srv.URL, opts)
	if err != nil {
		t.Fatalf("first GET() error = %v", err)
	}
	second, err := engine.GET(context.Background(), Profile{Source: "panelapp"}, srv.URL, opts)
	if err != nil {
		t.Fatalf("second GET() error = %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("first = %s, second = %s, want equal", first, second)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server called %d times, want 1 (second call should hit cache)", calls)
	}
}

func TestEngine_GET_InvalidNotCached(t *testing.T) {
	var calls int32
	engine, srv := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("bad"))
	})

	opts := Options{
		CacheKey: "gene:PKD1",
		TTL:      time.Minute,
		Validate: func(b []byte) bool { return false },
	}

	engine.GET(context.Background(), Profile{Source: "panelapp"}, srv.URL, opts)
	engine.GET(context.Background(), Profile{Source: "panelapp"}, srv.URL, opts)

	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("server called %d times, want 2 (invalid responses must not be cached)", calls)
	}
}

func TestEngine_GET_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	engine, srv := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	data, err := engine.GET(context.Background(), Profile{Source: "panelapp", MaxRetries: 5}, srv.URL, Options{})
	if err != nil {
		t.Fatalf("GET() error = %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("GET() = %s, want ok", data)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("server called %d times, want 3", calls)
	}
}

func TestEngine_GET_PermanentOn4xx(t *testing.T) {
	var calls int32
	engine, srv := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := engine.GET(context.Background(), Profile{Source: "panelapp", MaxRetries: 5}, srv.URL, Options{})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("server called %d times, want 1 (4xx other than 429 must not retry)", calls)
	}
}

func TestEngine_GET_ExhaustedAfterMaxRetries(t *testing.T) {
	engine, srv := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := engine.GET(context.Background(), Profile{Source: "panelapp", MaxRetries: 2}, srv.URL, Options{})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
}

func TestEngine_GET_HonorsRetryAfter(t *testing.T) {
	var calls int32
	start := time.Now()
	engine, srv := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	})

	data, err := engine.GET(context.Background(), Profile{Source: "panelapp", MaxRetries: 3}, srv.URL, Options{})
	if err != nil {
		t.Fatalf("GET() error = %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("GET() = %s, want ok", data)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("elapsed = %v, want >= ~1s honoring Retry-After", elapsed)
	}
}

func TestEngine_POST_SendsBody(t *testing.T) {
	var received string
	engine, srv := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		received = string(buf[:n])
		w.Write([]byte("ack"))
	})

	_, err := engine.POST(context.Background(), Profile{Source: "panelapp"}, srv.URL, []byte("payload"), Options{})
	if err != nil {
		t.Fatalf("POST() error = %v", err)
	}
	if received != "payload" {
		t.Errorf("server received %q, want payload", received)
	}
}
