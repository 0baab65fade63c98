package patch

import (
	"fmt"

	"github.com/cuemby/meridian/pkg/kvstore"
)

// Database is the top-level handle applications hold: it turns a
// kvstore.Backend into the Fork/Patch/Snapshot vocabulary the rest of the
// core programs against (spec.md §4.1 "Database").
//
// Reads performed through Snapshot or Fork are defined to never fail; any
// I/O error surfacing from the backend at that point indicates a corrupt
// or vanished store and is treated as unrecoverable, matching
// original_source/components/merkledb/src/db.rs's Snapshot trait, whose
// get/contains/iter methods carry no error channel at all.
type Database struct {
	backend kvstore.Backend
}

// NewDatabase wraps an already-open kvstore.Backend.
func NewDatabase(backend kvstore.Backend) *Database {
	return &Database{backend: backend}
}

// Snapshot returns a point-in-time, read-only view of the database.
func (d *Database) Snapshot() Snapshot {
	snap, err := d.backend.Snapshot()
	if err != nil {
		panic(fmt.Sprintf("patch: opening snapshot: %v", err))
	}
	return &backendSnapshot{snap: snap}
}

// Fork returns a new Fork built on top of a fresh snapshot of the current
// database state.
func (d *Database) Fork() *Fork {
	return newFork(d.Snapshot())
}

// ForkFrom rebuilds a Fork on top of a Patch that has not yet (or will
// never) be merged, letting callers chain speculative work without
// touching the backend. Writes made through the new Fork only ever affect
// its own Patch, layered on top of the given one.
func ForkFrom(p *Patch) *Fork {
	return forkFromPatch(p)
}

// Merge atomically applies p to the backend.
func (d *Database) Merge(p *Patch) error {
	return d.backend.Merge(toKVChanges(p))
}

// MergeSync atomically applies p to the backend and fsyncs before
// returning.
func (d *Database) MergeSync(p *Patch) error {
	return d.backend.MergeSync(toKVChanges(p))
}

// MergeWithBackup merges p into the backend and returns a Patch that, if
// merged later, exactly reverses p's effect. Grounded on
// DatabaseExt::merge_with_backup in
// original_source/components/merkledb/src/db.rs: for every changed key,
// the backup records whatever value (or absence) preceded the merge; for
// a cleared address, every key the snapshot held before the clear is
// recorded too, so reapplying the backup restores them.
//
// It is unsound to merge unrelated patches between this call and later
// applying the backup; backups from a sequence of merges must themselves
// be applied in reverse order.
func (d *Database) MergeWithBackup(p *Patch) (*Patch, error) {
	pre := d.Snapshot()
	defer pre.Close()
	changedAggregated := p.ChangedAggregatedAddrs()

	reverse := make(map[ResolvedAddress]*ViewChanges, len(p.changes))
	for addr, changes := range p.changes {
		revChanges := newViewChanges()
		for k, c := range changes.data {
			key := []byte(k)
			if v, ok := pre.Get(addr, key); ok {
				revChanges.data[k] = Change{Kind: Put, Value: v}
			} else {
				revChanges.data[k] = Change{Kind: Delete}
			}
		}

		if changes.IsCleared() {
			it := pre.Iterator(addr, nil)
			for it.Next() {
				revChanges.data[string(it.Key())] = Change{Kind: Put, Value: append([]byte(nil), it.Value()...)}
			}
			_ = it.Close()
		}
		revChanges.aggregated = changes.aggregated
		revChanges.namespace = changes.namespace
		reverse[addr] = revChanges
	}

	if err := d.Merge(p); err != nil {
		return nil, err
	}

	backup := newPatch(d.Snapshot())
	backup.changes = reverse
	backup.changedAggregatedAddrs = changedAggregated
	return backup, nil
}

func toKVChanges(p *Patch) kvstore.Changes {
	out := make(kvstore.Changes, 0, len(p.changes))
	for addr, vc := range p.changes {
		entries := make([]kvstore.Entry, 0, len(vc.data))
		for k, c := range vc.data {
			entries = append(entries, kvstore.Entry{
				Key:     []byte(k),
				Value:   c.Value,
				Deleted: c.Kind == Delete,
			})
		}
		out = append(out, kvstore.AddressChanges{
			Address: addr.Bytes(),
			Cleared: vc.IsCleared(),
			Entries: entries,
		})
	}
	return out
}

type backendSnapshot struct {
	snap kvstore.Snapshot
}

func (s *backendSnapshot) Get(addr ResolvedAddress, key []byte) ([]byte, bool) {
	v, ok, err := s.snap.Get(addr.Bytes(), key)
	if err != nil {
		panic(fmt.Sprintf("patch: reading %q: %v", addr.Name, err))
	}
	return v, ok
}

func (s *backendSnapshot) Contains(addr ResolvedAddress, key []byte) bool {
	ok, err := s.snap.Contains(addr.Bytes(), key)
	if err != nil {
		panic(fmt.Sprintf("patch: reading %q: %v", addr.Name, err))
	}
	return ok
}

func (s *backendSnapshot) Iterator(addr ResolvedAddress, from []byte) Iterator {
	it, err := s.snap.Iterator(addr.Bytes(), from)
	if err != nil {
		panic(fmt.Sprintf("patch: iterating %q: %v", addr.Name, err))
	}
	return &backendIterator{it: it}
}

func (s *backendSnapshot) Close() error {
	return s.snap.Close()
}

type backendIterator struct {
	it kvstore.Iterator
}

func (i *backendIterator) Next() bool {
	ok := i.it.Next()
	if err := i.it.Err(); err != nil {
		panic(fmt.Sprintf("patch: iteration error: %v", err))
	}
	return ok
}

func (i *backendIterator) Key() []byte   { return i.it.Key() }
func (i *backendIterator) Value() []byte { return i.it.Value() }
func (i *backendIterator) Close() error  { return i.it.Close() }
