package kvstore

import (
	"bytes"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/meridian/pkg/log"
)

// MetadataAddress is the reserved address backing the schema-version check
// (spec.md §6).
var MetadataAddress = []byte("__DB_METADATA__")

var versionKey = []byte("version")

// CurrentVersion is the on-disk schema version this build understands.
const CurrentVersion byte = 1

// BoltBackend implements Backend on top of go.etcd.io/bbolt, one bucket per
// address.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBolt opens (creating if absent) a bbolt-backed store at
// dataDir/meridian.db and validates its schema version.
func OpenBolt(dataDir string) (*BoltBackend, error) {
	path := filepath.Join(dataDir, "meridian.db")

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt backend: %w", err)
	}

	b := &BoltBackend{db: db}
	if err := b.checkVersion(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *BoltBackend) checkVersion() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(MetadataAddress)
		if err != nil {
			return fmt.Errorf("create metadata bucket: %w", err)
		}

		existing := bucket.Get(versionKey)
		if existing == nil {
			log.Logger.Info().Uint8("version", CurrentVersion).Msg("initializing database version")
			return bucket.Put(versionKey, []byte{CurrentVersion})
		}
		if len(existing) != 1 || existing[0] != CurrentVersion {
			return fmt.Errorf("database version mismatch: on-disk %v, binary supports %d", existing, CurrentVersion)
		}
		return nil
	})
}

// Close closes the underlying bbolt database.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}

// Get returns the value stored under (address, key), or ok=false if absent.
func (b *BoltBackend) Get(address, key []byte) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(address)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(key); v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	return value, found, err
}

// Contains reports whether (address, key) is present.
func (b *BoltBackend) Contains(address, key []byte) (bool, error) {
	_, found, err := b.Get(address, key)
	return found, err
}

// Iterator returns an ascending iterator over an address's keyspace,
// starting at the first key >= from.
func (b *BoltBackend) Iterator(address, from []byte) (Iterator, error) {
	tx, err := b.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("begin iterator transaction: %w", err)
	}

	bucket := tx.Bucket(address)
	return &boltIterator{tx: tx, bucket: bucket, from: from}, nil
}

type boltIterator struct {
	tx      *bolt.Tx
	bucket  *bolt.Bucket
	from    []byte
	started bool
	key     []byte
	value   []byte
	closed  bool
}

func (it *boltIterator) Next() bool {
	if it.bucket == nil {
		return false
	}

	c := it.bucket.Cursor()
	var k, v []byte
	if !it.started {
		it.started = true
		if len(it.from) > 0 {
			k, v = c.Seek(it.from)
		} else {
			k, v = c.First()
		}
	} else {
		c.Seek(it.key)
		k, v = c.Next()
	}

	if k == nil {
		it.key, it.value = nil, nil
		return false
	}
	it.key = append([]byte(nil), k...)
	it.value = append([]byte(nil), v...)
	return true
}

func (it *boltIterator) Key() []byte   { return it.key }
func (it *boltIterator) Value() []byte { return it.value }
func (it *boltIterator) Err() error    { return nil }

// Close rolls back the iterator's own transaction. Iterators vended from a
// Snapshot do not own a transaction (the Snapshot does) and simply mark
// themselves closed.
func (it *boltIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.tx == nil {
		return nil
	}
	return it.tx.Rollback()
}

// Snapshot opens a long-lived read-only bbolt transaction, giving callers a
// consistent view of the store that does not shift under concurrent Merge
// calls until Close is invoked.
func (b *BoltBackend) Snapshot() (Snapshot, error) {
	tx, err := b.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("begin snapshot transaction: %w", err)
	}
	return &boltSnapshot{tx: tx}, nil
}

type boltSnapshot struct {
	tx     *bolt.Tx
	closed bool
}

func (s *boltSnapshot) Get(address, key []byte) ([]byte, bool, error) {
	bucket := s.tx.Bucket(address)
	if bucket == nil {
		return nil, false, nil
	}
	v := bucket.Get(key)
	if v == nil {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *boltSnapshot) Contains(address, key []byte) (bool, error) {
	_, found, err := s.Get(address, key)
	return found, err
}

func (s *boltSnapshot) Iterator(address, from []byte) (Iterator, error) {
	return &boltIterator{bucket: s.tx.Bucket(address), from: from}, nil
}

func (s *boltSnapshot) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.tx.Rollback()
}

// Merge atomically applies changes across all addresses in one transaction.
func (b *BoltBackend) Merge(changes Changes) error {
	return b.apply(changes)
}

// MergeSync additionally forces an fsync of the data file once the
// transaction commits, for callers that need durability before
// acknowledging the write (spec.md §6 "merge_sync additionally fsync").
func (b *BoltBackend) MergeSync(changes Changes) error {
	if err := b.apply(changes); err != nil {
		return err
	}
	return b.db.Sync()
}

func (b *BoltBackend) apply(changes Changes) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, ac := range changes {
			if bytes.Equal(ac.Address, MetadataAddress) {
				return fmt.Errorf("merge: %s is a reserved address", MetadataAddress)
			}

			if ac.Cleared {
				if err := tx.DeleteBucket(ac.Address); err != nil && err != bolt.ErrBucketNotFound {
					return fmt.Errorf("clear address %q: %w", ac.Address, err)
				}
			}

			bucket, err := tx.CreateBucketIfNotExists(ac.Address)
			if err != nil {
				return fmt.Errorf("open bucket %q: %w", ac.Address, err)
			}

			for _, e := range ac.Entries {
				if e.Deleted {
					if err := bucket.Delete(e.Key); err != nil {
						return fmt.Errorf("delete %q/%x: %w", ac.Address, e.Key, err)
					}
					continue
				}
				if err := bucket.Put(e.Key, e.Value); err != nil {
					return fmt.Errorf("put %q/%x: %w", ac.Address, e.Key, err)
				}
			}
		}
		return nil
	})
}
