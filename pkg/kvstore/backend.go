package kvstore

// Entry is a single key mutation within an address's change set.
type Entry struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

// AddressChanges is the per-address portion of a Merge call. When Cleared
// is true, every existing key under Address is removed before Entries are
// applied, matching patch.ViewChanges.IsCleared semantics.
type AddressChanges struct {
	Address []byte
	Cleared bool
	Entries []Entry
}

// Changes is the full atomically-applied payload of one Merge call.
type Changes []AddressChanges

// Iterator walks ascending (key, value) pairs under one address, starting
// at the first key >= from (or the first key overall, if from is empty).
type Iterator interface {
	// Next advances the iterator and reports whether a pair is available.
	Next() bool
	Key() []byte
	Value() []byte
	// Err returns any error encountered during iteration.
	Err() error
	// Close releases resources held by the iterator. It is safe to call
	// multiple times.
	Close() error
}

// Snapshot is a read-only, point-in-time view of the backend: repeated
// reads through the same Snapshot observe the state as of the moment it
// was taken, regardless of concurrent Merge calls against the backend.
type Snapshot interface {
	Get(address, key []byte) ([]byte, bool, error)
	Contains(address, key []byte) (bool, error)
	Iterator(address, from []byte) (Iterator, error)

	// Close releases the underlying read transaction. It is safe to call
	// multiple times.
	Close() error
}

// Backend is the ordered KV contract the core consumes (spec.md §6).
// Implementations must provide ascending byte-lexicographic iteration and
// all-or-nothing Merge semantics.
type Backend interface {
	Get(address, key []byte) ([]byte, bool, error)
	Contains(address, key []byte) (bool, error)
	Iterator(address, from []byte) (Iterator, error)

	// Snapshot opens an isolated read-only view of the backend's current
	// state.
	Snapshot() (Snapshot, error)

	// Merge atomically applies changes; either all entries across all
	// addresses apply, or none do.
	Merge(changes Changes) error

	// MergeSync additionally fsyncs before returning.
	MergeSync(changes Changes) error

	Close() error
}
