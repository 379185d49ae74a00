// Package probe implements the readiness probe described in spec.md §9:
// a busy-retry TCP connect loop used to learn that a cold-starting
// isolate's wrapper listener has come up, with no in-band "ready" signal
// from the isolate itself.
//
// Grounded on pkg/health's TCPChecker (original_source's TCPChecker.Check
// one-shot dial), generalized into a bounded retry loop with backoff.
package probe
