package worker

import (
	"fmt"
	"time"

	v8 "github.com/tommie/v8go"
)

// reactor pins one isolate+context pair to a single goroutine, since V8
// isolates are not safe to touch from multiple goroutines concurrently
// (spec.md §5 / SPEC_FULL.md's concurrency model expansion: "one
// dedicated goroutine per isolate").
type reactor struct {
	iso   *v8.Isolate
	ctx   *v8.Context
	tasks chan func()
	done  chan struct{}
}

func newReactor(iso *v8.Isolate, ctx *v8.Context) *reactor {
	r := &reactor{iso: iso, ctx: ctx, tasks: make(chan func(), 64), done: make(chan struct{})}
	go r.loop()
	return r
}

func (r *reactor) loop() {
	defer close(r.done)
	for task := range r.tasks {
		task()
		r.iso.PerformMicrotaskCheckpoint()
	}
}

// run submits fn to the reactor goroutine and blocks until it returns,
// giving the caller a synchronous call into the isolate from any
// goroutine (e.g. an http.Server handler goroutine).
func (r *reactor) run(fn func()) {
	done := make(chan struct{})
	r.tasks <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// drainPending runs any tasks already queued (e.g. fired timer
// callbacks) without blocking. Only safe to call from inside the reactor
// goroutine itself, which is exactly where awaitResult calls it from.
func (r *reactor) drainPending() {
	for {
		select {
		case task := <-r.tasks:
			task()
		default:
			return
		}
	}
}

// close stops accepting new work. Pending tasks already queued still
// run; close(r.tasks) lets loop's range exit once drained.
func (r *reactor) close() {
	close(r.tasks)
	<-r.done
}

// awaitResult spins the microtask queue (and any timer callbacks queued
// behind it) until val settles, or returns an error once spinDeadline
// elapses. Must be called from inside the reactor goroutine, i.e. from
// within a fn passed to run.
func awaitResult(r *reactor, val *v8.Value, spinDeadline time.Duration) (*v8.Value, error) {
	if !val.IsPromise() {
		return val, nil
	}
	prom, err := val.AsPromise()
	if err != nil {
		return nil, fmt.Errorf("not a promise: %w", err)
	}

	deadline := time.Now().Add(spinDeadline)
	for prom.State() == v8.Pending {
		r.drainPending()
		r.iso.PerformMicrotaskCheckpoint()
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("handler did not settle its response promise within %s", spinDeadline)
		}
		time.Sleep(time.Millisecond)
	}

	switch prom.State() {
	case v8.Fulfilled:
		return prom.Result(), nil
	case v8.Rejected:
		return nil, fmt.Errorf("handler rejected: %s", prom.Result().String())
	default:
		return nil, fmt.Errorf("unexpected promise state %v", prom.State())
	}
}
