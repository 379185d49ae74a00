// Package isolate implements the Isolate Manager: the port pool and the
// tenant-to-live-isolate table described in spec.md §4.4.
//
// The manager owns bookkeeping only — it does not construct engines or
// run event loops (that is the Worker Factory's job, pkg/worker). Its one
// invariant, checked by TestPortAccounting, is that every port is in
// exactly one of {pool, assigned-to-live-isolate, assigned-to-pending}.
package isolate
