package patch

// Patch is an immutable set of changes built from a Fork. It implements
// Snapshot, so a merged-but-not-yet-applied Patch can be read exactly like
// a committed snapshot (spec.md §4.1 "Patch ... implements the Snapshot
// contract").
type Patch struct {
	base                   Snapshot
	changes                map[ResolvedAddress]*ViewChanges
	changedAggregatedAddrs map[ResolvedAddress]string
}

func newPatch(base Snapshot) *Patch {
	return &Patch{
		base:                   base,
		changes:                make(map[ResolvedAddress]*ViewChanges),
		changedAggregatedAddrs: make(map[ResolvedAddress]string),
	}
}

// Get implements Snapshot.
func (p *Patch) Get(addr ResolvedAddress, key []byte) ([]byte, bool) {
	if vc, ok := p.changes[addr]; ok {
		if c, ok2 := vc.get(key); ok2 {
			if c.Kind == Delete {
				return nil, false
			}
			return c.Value, true
		}
		if vc.IsCleared() {
			return nil, false
		}
	}
	return p.base.Get(addr, key)
}

// Contains implements Snapshot.
func (p *Patch) Contains(addr ResolvedAddress, key []byte) bool {
	_, ok := p.Get(addr, key)
	return ok
}

// Iterator implements Snapshot.
func (p *Patch) Iterator(addr ResolvedAddress, from []byte) Iterator {
	vc, ok := p.changes[addr]
	if !ok {
		return p.base.Iterator(addr, from)
	}
	entries := vc.sortedFrom(from)
	if vc.IsCleared() {
		return &changesOnlyIterator{entries: entries}
	}
	return newMergeIterator(p.base.Iterator(addr, from), entries)
}

// ChangedAggregatedAddrs returns the addresses whose ViewChanges were
// tagged aggregated since this Patch's last consumption by the aggregator
// package, keyed to their namespace ("" for the top-level aggregator).
// The aggregator package calls this, then Clear, as part of the
// flush-aggregate-flush sequence Fork.IntoPatch callers are expected to
// run (see pkg/aggregator).
func (p *Patch) ChangedAggregatedAddrs() map[ResolvedAddress]string {
	out := make(map[ResolvedAddress]string, len(p.changedAggregatedAddrs))
	for k, v := range p.changedAggregatedAddrs {
		out[k] = v
	}
	return out
}

// ClearChangedAggregatedAddrs empties the changed-address set, called
// after the aggregator package has consumed it so a later IntoPatch on the
// same Fork doesn't redundantly rehash unchanged indexes.
func (p *Patch) ClearChangedAggregatedAddrs() {
	p.changedAggregatedAddrs = make(map[ResolvedAddress]string)
}

// rawChanges exposes the underlying change map; it is intentionally
// unexported.
func (p *Patch) rawChanges() map[ResolvedAddress]*ViewChanges {
	return p.changes
}

// Close releases the snapshot this Patch was built on.
func (p *Patch) Close() error {
	return p.base.Close()
}
