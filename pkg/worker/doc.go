// Package worker implements the Worker Factory (spec.md §4.6): given a
// module locator and an assigned port, it builds a V8 isolate configured
// with the permission policy, bundles the synthetic wrapper module
// together with the tenant's one allowed import via pkg/loader, installs
// the synthetic environment, and drives the isolate's event loop from a
// single dedicated goroutine.
//
// Grounded on other_examples/ff60718d_cryguy-worker__internal-v8engine-pool.go.go's
// one-isolate-per-worker shape and on pkg/worker/worker.go's lifecycle
// naming (Start/Stop, structured log fields); the Web API surface and the
// permission-checked globals are new, grounded on
// original_source/src/runtime/runtime.rs's op registration.
package worker
