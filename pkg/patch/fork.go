package patch

import "fmt"

// Fork is a snapshot plus an in-memory working patch of buffered writes
// (spec.md §4.1). Obtain one from Database.Fork, mutate it through View /
// ReadonlyView, then call IntoPatch and Database.Merge to commit.
type Fork struct {
	patch   *Patch
	working *WorkingPatch
}

func newFork(base Snapshot) *Fork {
	return &Fork{patch: newPatch(base), working: newWorkingPatch()}
}

// forkFromPatch rebuilds a Fork on top of an existing Patch, used by
// ForkFrom when chaining uncommitted state (e.g. speculative execution
// during consensus propose handling).
func forkFromPatch(p *Patch) *Fork {
	return &Fork{patch: newPatch(p), working: newWorkingPatch()}
}

// View returns an exclusive, read-write handle to name's data.
func (f *Fork) View(name string) *View {
	return newView(f.working, f.patch, Address(name))
}

// ReadonlyView returns a shared, read-only handle to name's data. Any
// number of readonly Views on the same address may coexist, and coexist
// with nothing else.
func (f *Fork) ReadonlyView(name string) *View {
	return newReadonlyView(f.working, f.patch, Address(name))
}

// Flush finalizes every change made since the Fork was created or last
// flushed, folding the working patch into f's Patch. It is a checkpoint:
// a later Rollback cannot undo anything flushed.
func (f *Fork) Flush() {
	f.working.mergeInto(f.patch)
	f.working = newWorkingPatch()
}

// Rollback discards every change made since the Fork was created or last
// flushed.
func (f *Fork) Rollback() {
	f.working = newWorkingPatch()
}

// IntoPatch flushes and returns the accumulated Patch. The Fork must not
// be used afterwards.
func (f *Fork) IntoPatch() *Patch {
	f.Flush()
	return f.patch
}

// ChangedAggregatedAddrs reports every address tagged aggregated via
// View.MarkAggregated since the last ClearChangedAggregatedAddrs, after
// flushing pending changes in. See Patch.ChangedAggregatedAddrs.
func (f *Fork) ChangedAggregatedAddrs() map[ResolvedAddress]string {
	f.Flush()
	return f.patch.ChangedAggregatedAddrs()
}

// ClearChangedAggregatedAddrs delegates to the underlying Patch.
func (f *Fork) ClearChangedAggregatedAddrs() {
	f.patch.ClearChangedAggregatedAddrs()
}

// FlushMigration promotes every index under the given namespace to the
// default namespace: their ViewChanges keep their data but their
// aggregation attribution moves from namespace to "" (spec.md §4.2
// "Migration ... flushed (promoted to permanent, moving its aggregation
// attribution into the default namespace)").
func (f *Fork) FlushMigration(namespace string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	f.Flush()

	for addr, ns := range f.patch.changedAggregatedAddrs {
		if ns == namespace {
			f.patch.changedAggregatedAddrs[addr] = ""
			if vc, ok := f.patch.changes[addr]; ok {
				vc.setAggregation(true, "")
			}
		}
	}
	return nil
}

// RollbackMigration clears every index under the given namespace (spec.md
// §4.2 "rolled back (every index under the prefix cleared)").
func (f *Fork) RollbackMigration(namespace string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	f.Flush()

	for addr, ns := range f.patch.changedAggregatedAddrs {
		if ns == namespace {
			delete(f.patch.changedAggregatedAddrs, addr)
			if vc, ok := f.patch.changes[addr]; ok {
				vc.clear()
			}
		}
	}
	return nil
}

func validateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("patch: migration namespace must not be empty")
	}
	return nil
}
