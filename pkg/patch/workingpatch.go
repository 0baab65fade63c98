package patch

import (
	"fmt"
	"sync"
)

// cellState tracks how a single address's ViewChanges is currently
// borrowed: free (nobody holds it), exclusive (one mutable View), or
// shared (one or more readonly Views).
type cellState int

const (
	cellFree cellState = iota
	cellExclusive
	cellShared
)

type cell struct {
	state   cellState
	sharedN int
	changes *ViewChanges
}

// WorkingPatch is the runtime borrow checker for a single Fork's
// in-progress changes, reimplementing Rc<RefCell<ViewChanges>> (see
// original_source/components/merkledb/src/db.rs WorkingPatch) as an
// explicit state machine since Go has no RefCell.
type WorkingPatch struct {
	mu    sync.Mutex
	cells map[string]*cell
}

func newWorkingPatch() *WorkingPatch {
	return &WorkingPatch{cells: make(map[string]*cell)}
}

// cellFor returns the cell for addr, creating an empty free one if this is
// its first mention. Callers must hold wp.mu.
func (wp *WorkingPatch) cellFor(addr ResolvedAddress) *cell {
	c, ok := wp.cells[addr.Name]
	if !ok {
		c = &cell{state: cellFree, changes: newViewChanges()}
		wp.cells[addr.Name] = c
	}
	return c
}

// takeExclusive hands out sole ownership of addr's changes. It panics if
// addr is already exclusively or shared-borrowed, the same runtime
// contract as obtaining a second live index at the same address.
func (wp *WorkingPatch) takeExclusive(addr ResolvedAddress) *ViewChanges {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	c := wp.cellFor(addr)
	switch c.state {
	case cellFree:
		c.state = cellExclusive
		return c.changes
	case cellExclusive:
		panic(fmt.Sprintf("patch: multiple mutable borrows of index at %q", addr.Name))
	default:
		panic(fmt.Sprintf("patch: attempting to borrow %q mutably while it's borrowed immutably", addr.Name))
	}
}

// returnExclusive releases a View obtained via takeExclusive.
func (wp *WorkingPatch) returnExclusive(addr ResolvedAddress, changes *ViewChanges) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	c := wp.cells[addr.Name]
	if c == nil || c.state != cellExclusive {
		panic(fmt.Sprintf("patch: insertion point for changes disappeared at %q", addr.Name))
	}
	c.changes = changes
	c.state = cellFree
}

// takeShared hands out a shared reference to addr's changes, incrementing
// the reference count. It panics if addr is exclusively borrowed.
func (wp *WorkingPatch) takeShared(addr ResolvedAddress) *ViewChanges {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	c := wp.cellFor(addr)
	if c.state == cellExclusive {
		panic(fmt.Sprintf("patch: attempting to borrow %q immutably while it's borrowed mutably", addr.Name))
	}
	c.state = cellShared
	c.sharedN++
	return c.changes
}

// releaseShared drops one shared reference to addr.
func (wp *WorkingPatch) releaseShared(addr ResolvedAddress) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	c := wp.cells[addr.Name]
	if c == nil || c.sharedN == 0 {
		return
	}
	c.sharedN--
	if c.sharedN == 0 {
		c.state = cellFree
	}
}

// mergeInto drains every cell into p.changes, panicking if any address is
// still borrowed (a View on the Fork that has not been closed).
func (wp *WorkingPatch) mergeInto(p *Patch) {
	wp.mu.Lock()
	cells := wp.cells
	wp.cells = make(map[string]*cell)
	wp.mu.Unlock()

	for name, c := range cells {
		if c.state != cellFree {
			panic(fmt.Sprintf("patch: changes still borrowed at %q during flush", name))
		}
		addr := ResolvedAddress{Name: name}
		changes := c.changes

		if changes.aggregated {
			p.changedAggregatedAddrs[addr] = changes.namespace
		}

		existing, ok := p.changes[addr]
		if !ok || changes.isCleared {
			p.changes[addr] = changes
		} else {
			existing.extend(changes)
		}
	}
}
