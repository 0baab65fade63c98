package prooflist

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
)

// List is a thin layer over a patch.View, the same way proofmap.Map is:
// every element is a (key -> value) pair written through View.Put/Get, so
// the list participates in the same Fork/Snapshot/merge lifecycle as any
// other index.
type List struct {
	view *patch.View
}

// New wraps view as a proof list.
func New(view *patch.View) *List {
	return &List{view: view}
}

// Name returns the index's address name, satisfying metrics.IndexStats.
func (l *List) Name() string { return l.view.Address().Name }

// lengthKey is a single reserved byte; every element key is 9 bytes
// (1-byte tag + 8-byte big-endian index), so it can never collide.
var lengthKey = []byte{0xFF}

func elementKey(index uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = 0x00
	binary.BigEndian.PutUint64(buf[1:], index)
	return buf
}

// Len reports the number of elements pushed so far.
func (l *List) Len() int {
	raw, ok := l.view.Get(lengthKey)
	if !ok {
		return 0
	}
	return int(binary.BigEndian.Uint64(raw))
}

func (l *List) setLen(n int) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	l.view.Put(lengthKey, buf)
}

// Push appends value as the new last element.
func (l *List) Push(value []byte) {
	n := l.Len()
	l.view.Put(elementKey(uint64(n)), value)
	l.setLen(n + 1)
}

// Get returns the element at index, or ok=false if index is out of range.
func (l *List) Get(index int) (value []byte, ok bool) {
	if index < 0 || index >= l.Len() {
		return nil, false
	}
	return l.view.Get(elementKey(uint64(index)))
}

// Truncate drops every element at or beyond newLen, used by the consensus
// message cache on epoch advance (spec.md §4.4 "Restart recovery").
// newLen must not exceed the current length.
func (l *List) Truncate(newLen int) error {
	n := l.Len()
	if newLen < 0 || newLen > n {
		return fmt.Errorf("prooflist: truncate length %d out of range [0,%d]", newLen, n)
	}
	for i := newLen; i < n; i++ {
		l.view.Delete(elementKey(uint64(i)))
	}
	l.setLen(newLen)
	return nil
}

// Clear empties the list.
func (l *List) Clear() {
	_ = l.Truncate(0)
}

// Iter returns every element in index order.
func (l *List) Iter() [][]byte {
	n := l.Len()
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		v, _ := l.Get(i)
		out = append(out, v)
	}
	return out
}

// leafHashes reads every element and hashes it, in index order.
func (l *List) leafHashes() []objecthash.Hash {
	n := l.Len()
	out := make([]objecthash.Hash, n)
	for i := 0; i < n; i++ {
		v, _ := l.Get(i)
		out[i] = objecthash.LeafValueHash(v)
	}
	return out
}

// nextLevel folds a level's hashes into the level above it, substituting
// the zero hash for a missing right sibling (spec.md §3).
func nextLevel(level []objecthash.Hash) []objecthash.Hash {
	out := make([]objecthash.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		var right objecthash.Hash
		if i+1 < len(level) {
			right = level[i+1]
		}
		out = append(out, objecthash.ListNodeHash(level[i], right))
	}
	return out
}

// ObjectHash recomputes the list's root hash from its current elements.
func (l *List) ObjectHash() objecthash.Hash {
	level := l.leafHashes()
	if len(level) == 0 {
		return objecthash.ListRootHash(objecthash.EmptyListInner)
	}
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return objecthash.ListRootHash(level[0])
}
