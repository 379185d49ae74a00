package ingress

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimbusedge/edgehost/pkg/isolate"
	"github.com/nimbusedge/edgehost/pkg/registry"
	"github.com/nimbusedge/edgehost/pkg/types"
)

// fakeBackend starts a real loopback HTTP server standing in for a
// worker's wrapper listener, avoiding a dependency on a real V8 isolate
// in these router-level tests.
func fakeBackend(t *testing.T, port uint16, handler http.HandlerFunc) func() {
	t.Helper()
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("listening on %d: %v", port, err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return func() { srv.Close() }
}

func newTestRouter(start StartFunc) (*Router, *registry.Registry, *isolate.Manager) {
	reg := registry.New()
	isolates := isolate.New([]uint16{18081})
	rt := &Router{Registry: reg, Isolates: isolates, Start: start, ProbeDeadline: time.Second}
	return rt, reg, isolates
}

func doRequest(rt *Router, host string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "http://"+host+"/", nil)
	req.Host = host
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	return rec
}

// TestColdStartHappyPath covers S1: a fresh registry entry, a free port,
// and a 200 response, after which the port is gone from the free pool
// and the slug is running on it.
func TestColdStartHappyPath(t *testing.T) {
	var started int32
	rt, reg, isolates := newTestRouter(func(slug types.Slug, locator types.Locator, port uint16) error {
		atomic.AddInt32(&started, 1)
		fakeBackend(t, port, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "hi lhr")
		})
		return nil
	})
	reg.Register("hello", "file:///hello.js")

	rec := doRequest(rt, "hello.example")
	if rec.Code != http.StatusOK || rec.Body.String() != "hi lhr" {
		t.Fatalf("got (%d, %q), want (200, %q)", rec.Code, rec.Body.String(), "hi lhr")
	}
	if started != 1 {
		t.Fatalf("Start called %d times, want 1", started)
	}
	if _, free, _ := isolates.Counts(); free != 0 {
		t.Fatalf("free ports = %d, want 0", free)
	}
	if rec2, ok := isolates.GetRunningPort("hello"); !ok || rec2.Port != 18081 {
		t.Fatalf("GetRunningPort(hello) = (%v, %v), want (18081, true)", rec2, ok)
	}
}

// TestWarmHit covers S2: a second request for the same slug reuses the
// isolate without a second cold start.
func TestWarmHit(t *testing.T) {
	var started int32
	rt, reg, _ := newTestRouter(func(slug types.Slug, locator types.Locator, port uint16) error {
		atomic.AddInt32(&started, 1)
		fakeBackend(t, port, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "hi lhr")
		})
		return nil
	})
	reg.Register("hello", "file:///hello.js")

	doRequest(rt, "hello.example")
	rec := doRequest(rt, "hello.example")

	if rec.Code != http.StatusOK || rec.Body.String() != "hi lhr" {
		t.Fatalf("got (%d, %q), want (200, %q)", rec.Code, rec.Body.String(), "hi lhr")
	}
	if started != 1 {
		t.Fatalf("Start called %d times, want 1 (warm hit must not cold-start again)", started)
	}
}

// TestUnknownTenant covers S3.
func TestUnknownTenant(t *testing.T) {
	rt, _, isolates := newTestRouter(func(types.Slug, types.Locator, uint16) error { return nil })

	rec := doRequest(rt, "ghost.example")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if _, free, _ := isolates.Counts(); free != 1 {
		t.Fatalf("free ports = %d, want unchanged 1", free)
	}
}

// TestPortExhaustion covers S4.
func TestPortExhaustion(t *testing.T) {
	reg := registry.New()
	reg.Register("hello", "file:///hello.js")
	isolates := isolate.New(nil)
	rt := &Router{Registry: reg, Isolates: isolates, Start: func(types.Slug, types.Locator, uint16) error { return nil }, ProbeDeadline: time.Second}

	rec := doRequest(rt, "hello.example")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

// TestBadHost covers the missing/empty-authority edge case of spec.md
// §4.5 steps 1-2.
func TestBadHost(t *testing.T) {
	rt, _, _ := newTestRouter(func(types.Slug, types.Locator, uint16) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "http://placeholder/", nil)
	req.Host = ""
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// TestStartupFailedDeregisters verifies a failed Worker Factory call
// returns 502 and returns the port to the free pool instead of leaking
// it, per spec.md §4.7's Starting -> Failed transition.
func TestStartupFailedDeregisters(t *testing.T) {
	rt, reg, isolates := newTestRouter(func(types.Slug, types.Locator, uint16) error {
		return fmt.Errorf("boom")
	})
	reg.Register("hello", "file:///hello.js")

	rec := doRequest(rt, "hello.example")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if _, free, _ := isolates.Counts(); free != 1 {
		t.Fatalf("free ports = %d, want 1 (port must be returned to the pool)", free)
	}
}

// TestColdStartCoalescing covers S7: many concurrent requests for the
// same never-seen slug must share exactly one cold start.
func TestColdStartCoalescing(t *testing.T) {
	var started int32
	rt, reg, _ := newTestRouter(func(slug types.Slug, locator types.Locator, port uint16) error {
		atomic.AddInt32(&started, 1)
		time.Sleep(20 * time.Millisecond) // simulate a slow cold start
		fakeBackend(t, port, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "hi lhr")
		})
		return nil
	})
	reg.Register("hello", "file:///hello.js")

	const n = 50
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = doRequest(rt, "hello.example").Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, code)
		}
	}
	if started != 1 {
		t.Fatalf("Start called %d times, want exactly 1", started)
	}
}

