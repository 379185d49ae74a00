package isolate

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/nimbusedge/edgehost/pkg/metrics"
	"github.com/nimbusedge/edgehost/pkg/types"
)

// portHeap is a min-heap of free ports, giving take() its "removes the
// least element" determinism (spec.md §3: "the pool is totally ordered").
type portHeap []uint16

func (h portHeap) Len() int            { return len(h) }
func (h portHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h portHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *portHeap) Push(x interface{}) { *h = append(*h, x.(uint16)) }
func (h *portHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Manager owns the port pool and the tenant -> isolate-record table. Both
// are guarded by the same mutex so that a take+register pair and a
// deregister+return pair are each observed atomically (spec.md §5: "the
// (running, ports) pair is the only shared mutable state").
type Manager struct {
	mu      sync.Mutex
	running map[types.Slug]*types.Isolate
	ports   portHeap
	total   int
}

// New creates a Manager whose port pool starts with exactly the given
// ports, each of which must be unique.
func New(initialPorts []uint16) *Manager {
	m := &Manager{
		running: make(map[types.Slug]*types.Isolate),
		ports:   append(portHeap(nil), initialPorts...),
		total:   len(initialPorts),
	}
	heap.Init(&m.ports)
	return m
}

// GetRunningPort returns the record (carrying its Port) of a live or
// starting isolate for slug, or ok=false if none exists. Non-blocking.
func (m *Manager) GetRunningPort(slug types.Slug) (isolate *types.Isolate, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.running[slug]
	return rec, ok
}

// TakePort removes and returns the least free port, or
// types.ErrNoPortsAvailable if the pool is empty.
func (m *Manager) TakePort() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ports.Len() == 0 {
		return 0, types.ErrNoPortsAvailable
	}
	return heap.Pop(&m.ports).(uint16), nil
}

// RegisterStarting inserts a Starting isolate record for slug bound to
// port. It is the caller's responsibility to have called TakePort first
// and to call this before awaiting readiness, so that concurrent
// requests for the same slug coalesce (spec.md §5). Returns an error if a
// record for slug already exists — the manager enforces at most one live
// record per slug (spec.md §3).
func (m *Manager) RegisterStarting(slug types.Slug, port uint16) (*types.Isolate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.running[slug]; exists {
		return nil, fmt.Errorf("isolate already registered for slug %q", slug)
	}
	rec := &types.Isolate{
		Slug:      slug,
		Port:      port,
		State:     types.StateStarting,
		StartedAt: time.Now(),
		Ready:     make(chan struct{}),
	}
	m.running[slug] = rec
	metrics.IsolatesRunning.WithLabelValues("starting").Inc()
	metrics.PortsFree.Set(float64(m.ports.Len()))
	return rec, nil
}

// Acquire atomically does what a GetRunningPort + TakePort +
// RegisterStarting sequence would do, but without the race window
// between those three separate lock acquisitions: if a record for slug
// already exists it is returned with owner=false (the caller should wait
// on its Ready channel); otherwise a port is taken and a Starting record
// is registered for slug in the same critical section, returned with
// owner=true (the caller must drive that record to Ready or Failed).
// This is the Router's entry point into the manager (spec.md §4.5 steps
// 4-6); TakePort/RegisterStarting remain exposed separately for callers
// (and tests) that need the two steps apart.
func (m *Manager) Acquire(slug types.Slug) (rec *types.Isolate, owner bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.running[slug]; ok {
		return existing, false, nil
	}
	if m.ports.Len() == 0 {
		return nil, false, types.ErrNoPortsAvailable
	}
	port := heap.Pop(&m.ports).(uint16)
	rec = &types.Isolate{
		Slug:      slug,
		Port:      port,
		State:     types.StateStarting,
		StartedAt: time.Now(),
		Ready:     make(chan struct{}),
	}
	m.running[slug] = rec
	metrics.IsolatesRunning.WithLabelValues("starting").Inc()
	metrics.PortsFree.Set(float64(m.ports.Len()))
	return rec, true, nil
}

// MarkReady transitions the record for slug from Starting to Ready,
// closing its Ready channel, and moves its IsolatesRunning gauge count
// from the "starting" label to the "ready" label. No-op if slug has no
// record (the isolate was deregistered out from under the caller).
func (m *Manager) MarkReady(slug types.Slug) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.running[slug]
	if !ok {
		return
	}
	rec.MarkReady()
	metrics.IsolatesRunning.WithLabelValues("starting").Dec()
	metrics.IsolatesRunning.WithLabelValues("ready").Inc()
}

// MarkFailed transitions the record for slug from Starting to Failed,
// recording err and decrementing its IsolatesRunning "starting" count.
// No-op if slug has no record.
func (m *Manager) MarkFailed(slug types.Slug, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.running[slug]
	if !ok {
		return
	}
	rec.MarkFailed(err)
	metrics.IsolatesRunning.WithLabelValues("starting").Dec()
}

// Deregister removes the record for slug, if any, and returns its port to
// the pool. Idempotent — deregistering a slug with no record is a no-op.
func (m *Manager) Deregister(slug types.Slug) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.running[slug]
	if !ok {
		return
	}
	delete(m.running, slug)
	heap.Push(&m.ports, rec.Port)
	metrics.PortsFree.Set(float64(m.ports.Len()))

	// MarkFailed already decremented "starting" for a Failed record; only
	// decrement here for states MarkFailed never touches.
	switch rec.State {
	case types.StateReady:
		metrics.IsolatesRunning.WithLabelValues("ready").Dec()
	case types.StateStarting:
		metrics.IsolatesRunning.WithLabelValues("starting").Dec()
	}
}

// Counts returns the current size of the running table and the free-port
// pool, for the property test in spec.md §8.1:
// |running| + |free-ports| == |initial-port-pool| (in-flight starts are
// counted as part of |running| — they occupy a record, just not yet
// Ready).
func (m *Manager) Counts() (running, free, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running), m.ports.Len(), m.total
}
