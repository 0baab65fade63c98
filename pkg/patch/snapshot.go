package patch

// Iterator walks ascending (key, value) pairs for one address, merging
// buffered changes over whatever the underlying snapshot holds.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Close() error
}

// Snapshot is a read-only, point-in-time view over every address. Reads
// are infallible by contract (the storage substrate is assumed durable);
// only Database.Merge and friends can fail. Close releases whatever
// backend resource (e.g. a pinned bbolt read transaction) pins the
// snapshot's point in time; callers must call it once they are done
// reading.
type Snapshot interface {
	Get(addr ResolvedAddress, key []byte) ([]byte, bool)
	Contains(addr ResolvedAddress, key []byte) bool
	Iterator(addr ResolvedAddress, from []byte) Iterator
	Close() error
}

// changesOnlyIterator walks a sorted change set with no underlying
// snapshot data behind it (the view was cleared, so the snapshot is
// irrelevant), skipping tombstones.
type changesOnlyIterator struct {
	entries []changeEntry
	idx     int
	key     []byte
	value   []byte
}

func (it *changesOnlyIterator) Next() bool {
	for it.idx < len(it.entries) {
		e := it.entries[it.idx]
		it.idx++
		if e.change.Kind == Delete {
			continue
		}
		it.key, it.value = e.key, e.change.Value
		return true
	}
	return false
}

func (it *changesOnlyIterator) Key() []byte   { return it.key }
func (it *changesOnlyIterator) Value() []byte { return it.value }
func (it *changesOnlyIterator) Close() error  { return nil }

// mergeIterator reimplements ForkIter from
// original_source/components/merkledb/src/db.rs: it walks the snapshot
// iterator and the sorted change list in lockstep, letting buffered
// changes shadow, insert before, or delete entries from the snapshot.
type mergeIterator struct {
	snapshot  Iterator
	snapDone  bool
	snapKey   []byte
	snapValue []byte

	entries []changeEntry
	idx     int

	key   []byte
	value []byte
}

func newMergeIterator(snapshot Iterator, entries []changeEntry) *mergeIterator {
	it := &mergeIterator{snapshot: snapshot, entries: entries}
	it.advanceSnapshot()
	return it
}

func (it *mergeIterator) advanceSnapshot() {
	if it.snapshot.Next() {
		it.snapKey, it.snapValue = it.snapshot.Key(), it.snapshot.Value()
	} else {
		it.snapDone = true
		it.snapKey, it.snapValue = nil, nil
	}
}

func (it *mergeIterator) peekChange() (changeEntry, bool) {
	if it.idx >= len(it.entries) {
		return changeEntry{}, false
	}
	return it.entries[it.idx], true
}

func (it *mergeIterator) Next() bool {
	for {
		change, hasChange := it.peekChange()

		if !hasChange {
			if it.snapDone {
				return false
			}
			it.key, it.value = it.snapKey, it.snapValue
			it.advanceSnapshot()
			return true
		}

		if it.snapDone {
			it.idx++
			if change.change.Kind == Delete {
				continue
			}
			it.key, it.value = change.key, change.change.Value
			return true
		}

		cmp := compareBytes(change.key, it.snapKey)
		switch change.change.Kind {
		case Put:
			switch {
			case cmp == 0:
				it.idx++
				it.advanceSnapshot()
				it.key, it.value = change.key, change.change.Value
				return true
			case cmp < 0:
				it.idx++
				it.key, it.value = change.key, change.change.Value
				return true
			default:
				it.key, it.value = it.snapKey, it.snapValue
				it.advanceSnapshot()
				return true
			}
		default: // Delete
			switch {
			case cmp == 0:
				it.idx++
				it.advanceSnapshot()
				continue
			case cmp < 0:
				it.idx++
				continue
			default:
				it.key, it.value = it.snapKey, it.snapValue
				it.advanceSnapshot()
				return true
			}
		}
	}
}

func (it *mergeIterator) Key() []byte   { return it.key }
func (it *mergeIterator) Value() []byte { return it.value }
func (it *mergeIterator) Close() error  { return it.snapshot.Close() }

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}
