// Package settings persists device settings in a badger key/value store.
// Keys live in flat namespaces ("monitoring", "sms", ...); values are JSON.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Namespaces used by the daemon.
const (
	Monitoring = "monitoring"
	Uploader   = "uploader"
	SMS        = "sms"
	Storage    = "storage"
	Sensors    = "sensors"
)

// Keys shared between the orchestrator and the provisioning surface.
const (
	KeyProvisioned    = "provisioned"     // Monitoring, bool
	KeyEnabled        = "enabled"         // Monitoring, bool
	KeyDisabledAt     = "disabled_at"     // Monitoring, time
	KeyConfiguredAt   = "configured_at"   // Uploader, time
	KeyBaseFilename   = "base_filename"   // Storage, string
	KeyLightThreshold = "light_threshold" // Sensors, int 0-100
)

// FactoryNamespaces are cleared by a factory reset.
var FactoryNamespaces = []string{Monitoring, Uploader, SMS, Storage, Sensors}

// Store is a namespaced settings store.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store in dir.
func Open(dir string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open settings %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that is never written to disk.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open in-memory settings: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the store.
func (s *Store) Close() error { return s.db.Close() }

func key(ns, k string) []byte { return []byte(ns + "/" + k) }

// Get decodes ns/k into v. It reports false when the key is absent.
func (s *Store) Get(ns, k string, v any) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(ns, k))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s/%s: %w", ns, k, err)
	}
	return true, nil
}

// Put encodes v under ns/k.
func (s *Store) Put(ns, k string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", ns, k, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(ns, k), buf)
	}); err != nil {
		return fmt.Errorf("put %s/%s: %w", ns, k, err)
	}
	return nil
}

// Delete removes ns/k. Deleting an absent key is not an error.
func (s *Store) Delete(ns, k string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(ns, k))
	})
}

// Clear removes every key in ns.
func (s *Store) Clear(ns string) error {
	keys, err := s.Keys(ns)
	if err != nil {
		return fmt.Errorf("clear %s: %w", ns, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(key(ns, k)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("clear %s: %w", ns, err)
	}
	return nil
}

// Keys lists the keys present in ns.
func (s *Store) Keys(ns string) ([]string, error) {
	prefix := []byte(ns + "/")
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return out, err
}

// String returns ns/k or def when absent or unreadable.
func (s *Store) String(ns, k, def string) string {
	var v string
	if ok, err := s.Get(ns, k, &v); !ok || err != nil {
		return def
	}
	return v
}

// Bool returns ns/k or def when absent or unreadable.
func (s *Store) Bool(ns, k string, def bool) bool {
	var v bool
	if ok, err := s.Get(ns, k, &v); !ok || err != nil {
		return def
	}
	return v
}

// Int returns ns/k or def when absent or unreadable.
func (s *Store) Int(ns, k string, def int) int {
	var v int
	if ok, err := s.Get(ns, k, &v); !ok || err != nil {
		return def
	}
	return v
}

// Time returns ns/k or the zero time when absent or unreadable.
func (s *Store) Time(ns, k string) time.Time {
	var v time.Time
	if ok, err := s.Get(ns, k, &v); !ok || err != nil {
		return time.Time{}
	}
	return v
}
