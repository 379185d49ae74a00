package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/nimbusedge/edgehost/pkg/registry"
	"github.com/nimbusedge/edgehost/pkg/types"
)

var bucketRegistrations = []byte("registrations")

// RegistrationStore persists slug -> locator registrations in a BoltDB
// file, grounded on pkg/storage/boltdb.go's BoltStore: one bucket, one
// JSON value per key, opened and closed around the process lifetime.
type RegistrationStore struct {
	db *bolt.DB
}

// record is the JSON value stored per slug, mirroring the one field the
// teacher's per-entity structs store alongside their key.
type record struct {
	Locator types.Locator `json:"locator"`
}

// Open opens (creating if absent) the BoltDB file at path and ensures the
// registrations bucket exists.
func Open(path string) (*RegistrationStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening registration store %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRegistrations)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing registration store %q: %w", path, err)
	}
	return &RegistrationStore{db: db}, nil
}

// Close releases the underlying BoltDB file handle.
func (s *RegistrationStore) Close() error {
	return s.db.Close()
}

// Put persists the locator for slug, overwriting any prior value.
func (s *RegistrationStore) Put(slug types.Slug, locator types.Locator) error {
	data, err := json.Marshal(record{Locator: locator})
	if err != nil {
		return fmt.Errorf("marshaling registration for %q: %w", slug, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRegistrations).Put([]byte(slug), data)
	})
}

// LoadInto reads every persisted registration and calls reg.Register for
// each, layering persisted state on top of (and after) any YAML seed
// already loaded into reg, so a BoltDB-persisted entry wins over a YAML
// default for the same slug.
func (s *RegistrationStore) LoadInto(reg *registry.Registry) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRegistrations)
		return b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling registration for %q: %w", k, err)
			}
			reg.Register(types.Slug(k), rec.Locator)
			n++
			return nil
		})
	})
	if err != nil {
		return n, fmt.Errorf("loading registrations: %w", err)
	}
	return n, nil
}
