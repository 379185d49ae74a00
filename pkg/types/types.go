// Package types holds the data model shared across the edge host: the
// tenant identifier, module locator, and isolate bookkeeping record.
package types

import "time"

// Slug is a tenant identifier derived from a request's authority: the
// characters up to the first dot. Slugs are opaque to the core.
type Slug string

// Locator is an absolute file-scheme URI pointing at a tenant's JavaScript
// source file. Locators are immutable once registered.
type Locator string

// WrapperLocator is the fixed, synthetic locator of the per-isolate wrapper
// module. It never resolves to a file on disk; the Worker Factory supplies
// its source in memory.
const WrapperLocator Locator = "file:///wrapper.js"

// IsolateState is the lifecycle state of a single isolate record.
type IsolateState string

const (
	// StateStarting means a port has been reserved and the worker factory
	// has been asked to boot an isolate, but the readiness probe has not
	// yet observed the wrapper's listener accepting connections.
	StateStarting IsolateState = "starting"
	// StateReady means the readiness probe succeeded; the isolate is
	// eligible to receive proxied requests.
	StateReady IsolateState = "ready"
	// StateFailed is terminal: the port has been (or is about to be)
	// returned to the pool and the record removed.
	StateFailed IsolateState = "failed"
)

// Isolate is the bookkeeping record the Isolate Manager owns for one live
// (or starting) tenant worker. There is at most one Isolate per Slug.
type Isolate struct {
	Slug      Slug
	Port      uint16
	State     IsolateState
	StartedAt time.Time
	// Ready is closed when the isolate transitions out of Starting,
	// letting concurrent requests for the same slug wait on readiness
	// instead of busy-probing the port themselves (see §5 "coalescing
	// cold starts" — either approach is spec-conformant; this repo uses
	// this channel rather than a second probe loop per request).
	Ready chan struct{}
	// err is set before Ready is closed when the isolate failed to start.
	err error
}

// MarkReady transitions the record to Ready and releases any requests
// waiting on it. Safe to call at most once.
func (i *Isolate) MarkReady() {
	i.State = StateReady
	close(i.Ready)
}

// MarkFailed transitions the record to Failed, recording the cause, and
// releases any requests waiting on it. Safe to call at most once.
func (i *Isolate) MarkFailed(err error) {
	i.State = StateFailed
	i.err = err
	close(i.Ready)
}

// Err returns the startup error recorded by MarkFailed, if any.
func (i *Isolate) Err() error {
	return i.err
}

// Env is the synthetic environment-variable map injected into a tenant's
// handler as its second argument. Keys are fixed per cold start.
type Env map[string]string
