// Package storage implements optional persistence for the Module
// Registry's startup seed. The core registry (pkg/registry) is an
// in-memory map per spec.md §3; this package lets an operator persist
// tenant registrations across restarts in a BoltDB file layered on top
// of (or instead of) a YAML seed, an operator convenience the spec
// itself does not require.
//
// Grounded on pkg/storage/boltdb.go's bucket-per-collection BoltStore
// shape, reduced to the one bucket this domain needs.
package storage
