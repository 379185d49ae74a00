// Package registry implements the Module Registry: the startup-populated,
// read-only mapping from tenant host slug to module locator.
//
// The registry has no concurrency concerns of its own — it is built once
// at startup (optionally from a YAML seed and a bbolt file, see
// pkg/config and pkg/storage) and never mutated again while the host is
// serving traffic.
package registry
