package patch

// View is a borrow-checked handle onto one address's data: buffered
// changes layered over a Snapshot. A View returned by Fork.View is
// exclusive (read-write); one returned by Fork.ReadonlyView is shared
// (read-only, and any number of readonly Views may coexist). Close must
// be called to release the borrow; calls after the first are no-ops.
type View struct {
	addr    ResolvedAddress
	changes *ViewChanges
	wp      *WorkingPatch
	snap    Snapshot
	shared  bool
	closed  bool
}

func newView(wp *WorkingPatch, snap Snapshot, addr ResolvedAddress) *View {
	return &View{addr: addr, changes: wp.takeExclusive(addr), wp: wp, snap: snap}
}

func newReadonlyView(wp *WorkingPatch, snap Snapshot, addr ResolvedAddress) *View {
	return &View{addr: addr, changes: wp.takeShared(addr), wp: wp, snap: snap, shared: true}
}

// Close releases this View's borrow. Safe to call multiple times.
func (v *View) Close() {
	if v.closed {
		return
	}
	v.closed = true
	if v.shared {
		v.wp.releaseShared(v.addr)
	} else {
		v.wp.returnExclusive(v.addr, v.changes)
	}
}

// Address returns the address this View is scoped to.
func (v *View) Address() ResolvedAddress {
	return v.addr
}

// Get returns the value at key, checking buffered changes before falling
// back to the underlying snapshot.
func (v *View) Get(key []byte) ([]byte, bool) {
	if c, ok := v.changes.get(key); ok {
		if c.Kind == Delete {
			return nil, false
		}
		return c.Value, true
	}
	if v.changes.IsCleared() {
		return nil, false
	}
	return v.snap.Get(v.addr, key)
}

// Contains reports whether key is present.
func (v *View) Contains(key []byte) bool {
	_, ok := v.Get(key)
	return ok
}

func (v *View) requireMutable() {
	if v.shared {
		panic("patch: write attempted on a readonly view")
	}
}

// Put buffers a write.
func (v *View) Put(key, value []byte) {
	v.requireMutable()
	v.changes.put(key, value)
}

// Delete buffers a tombstone.
func (v *View) Delete(key []byte) {
	v.requireMutable()
	v.changes.delete(key)
}

// Clear buffers removal of every key under this address, snapshot
// included.
func (v *View) Clear() {
	v.requireMutable()
	v.changes.clear()
}

// MarkAggregated tags this View's address so the aggregator package picks
// it up via Fork.ChangedAggregatedAddrs, routing its object hash into the
// state aggregator under namespace ("" for the top-level aggregator).
func (v *View) MarkAggregated(namespace string) {
	v.requireMutable()
	v.changes.setAggregation(true, namespace)
}

// Iterator returns an ascending iterator over keys >= from, merging
// buffered changes with the underlying snapshot.
func (v *View) Iterator(from []byte) Iterator {
	entries := v.changes.sortedFrom(from)
	if v.changes.IsCleared() {
		return &changesOnlyIterator{entries: entries}
	}
	return newMergeIterator(v.snap.Iterator(v.addr, from), entries)
}
