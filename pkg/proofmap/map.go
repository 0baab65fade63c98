package proofmap

import (
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
)

// Mode selects how a Map turns caller-supplied keys into 256-bit tree
// paths.
type Mode int

const (
	// Hashed paths keys through sha3-256 before walking the tree, so no
	// adversarial key sequence can unbalance it. This is the default for
	// New.
	Hashed Mode = iota
	// Raw uses the key's own bytes (which must be exactly 32 bytes long)
	// as the path. An adversary who controls keys directly can degenerate
	// the tree into a linked list; only use Raw for keys that are already
	// uniformly distributed (e.g. other hashes).
	Raw
)

// Map is a Merkle Patricia proof map: a binary radix tree over 256-bit
// paths, persisted through a patch.View so its contents participate in
// the same Fork/Snapshot lifecycle as any other index.
type Map struct {
	view *patch.View
	mode Mode
}

// New wraps view as a Hashed-mode proof map.
func New(view *patch.View) *Map {
	return &Map{view: view, mode: Hashed}
}

// NewRaw wraps view as a Raw-mode proof map. Only use this for keys that
// are already uniformly distributed 32-byte values; an adversary who
// controls raw keys directly can degenerate the tree's depth.
func NewRaw(view *patch.View) *Map {
	return &Map{view: view, mode: Raw}
}

// Name returns the index's address name, satisfying metrics.IndexStats.
func (m *Map) Name() string { return m.view.Address().Name }

// Len reports the number of entries currently in the map, satisfying
// metrics.IndexStats. It walks the tree via Iter, so it is O(n); callers
// sampling this periodically (e.g. the metrics collector) should not call
// it on a hot path.
func (m *Map) Len() int { return len(m.Iter()) }

func (m *Map) pathFor(key []byte) (ProofPath, error) {
	switch m.mode {
	case Raw:
		if len(key) != keySize {
			return ProofPath{}, fmt.Errorf("proofmap: raw-mode key must be %d bytes, got %d", keySize, len(key))
		}
		var b [keySize]byte
		copy(b[:], key)
		return fullPath(b), nil
	default:
		return fullPath(sha3.Sum256(key)), nil
	}
}

func (m *Map) loadRoot() (ProofPath, bool) {
	raw, ok := m.view.Get(rootPointerKey)
	if !ok {
		return ProofPath{}, false
	}
	return decodeRootPointer(raw), true
}

func (m *Map) storeRoot(p ProofPath) {
	m.view.Put(rootPointerKey, encodeRootPointer(p))
}

func (m *Map) getNode(label ProofPath) (node, bool) {
	raw, ok := m.view.Get(nodeKey(label))
	if !ok {
		return node{}, false
	}
	n, err := decodeNode(raw)
	if err != nil {
		panic(err)
	}
	return n, true
}

func (m *Map) putNode(label ProofPath, n node) {
	m.view.Put(nodeKey(label), encodeNode(n))
}

func (m *Map) deleteNode(label ProofPath) {
	m.view.Delete(nodeKey(label))
}

// Put inserts or overwrites the value at key.
func (m *Map) Put(key, value []byte) error {
	path, err := m.pathFor(key)
	if err != nil {
		return err
	}

	root, ok := m.loadRoot()
	if !ok {
		m.putNode(path, node{isLeaf: true, value: value})
		m.storeRoot(path)
		return nil
	}

	newRoot, _ := m.insertAt(root, path, value)
	if !newRoot.Equal(root) {
		m.storeRoot(newRoot)
	}
	return nil
}

// insertAt inserts value at fullPath into the subtree currently addressed
// by nodeLabel, returning the (possibly different) label and hash the
// caller should now use to reference this subtree. Ported from the put
// algorithm in spec.md §4.3: a branch whose child fully contains fullPath
// as a prefix is descended into; one that only partially matches is split
// at the point of divergence.
func (m *Map) insertAt(nodeLabel, fullPath ProofPath, value []byte) (ProofPath, objecthash.Hash) {
	n, ok := m.getNode(nodeLabel)
	if !ok {
		panic(fmt.Sprintf("proofmap: dangling node reference at %s", nodeLabel))
	}

	cpl := commonPrefixLen(nodeLabel, fullPath)

	if cpl == nodeLabel.bitLen {
		if n.isLeaf {
			n.value = value
			m.putNode(nodeLabel, n)
			return nodeLabel, objecthash.LeafValueHash(value)
		}

		depth := nodeLabel.bitLen
		if fullPath.Bit(depth) == 0 {
			newLabel, newHash := m.insertAt(n.leftLabel, fullPath, value)
			n.leftLabel, n.leftHash = newLabel, newHash
		} else {
			newLabel, newHash := m.insertAt(n.rightLabel, fullPath, value)
			n.rightLabel, n.rightHash = newLabel, newHash
		}
		m.putNode(nodeLabel, n)
		return nodeLabel, branchHash(n)
	}

	// nodeLabel does not fully prefix fullPath: split at their divergence.
	newBranchLabel := nodeLabel.Prefix(cpl)
	existingHash := hashOfNode(n)
	m.putNode(fullPath, node{isLeaf: true, value: value})

	var branch node
	if fullPath.Bit(cpl) == 0 {
		branch.leftLabel, branch.leftHash = fullPath, objecthash.LeafValueHash(value)
		branch.rightLabel, branch.rightHash = nodeLabel, existingHash
	} else {
		branch.rightLabel, branch.rightHash = fullPath, objecthash.LeafValueHash(value)
		branch.leftLabel, branch.leftHash = nodeLabel, existingHash
	}
	m.putNode(newBranchLabel, branch)
	return newBranchLabel, branchHash(branch)
}

// Get returns the value stored at key, if any.
func (m *Map) Get(key []byte) ([]byte, bool, error) {
	path, err := m.pathFor(key)
	if err != nil {
		return nil, false, err
	}
	root, ok := m.loadRoot()
	if !ok {
		return nil, false, nil
	}
	v, found := m.getAt(root, path)
	return v, found, nil
}

func (m *Map) getAt(nodeLabel, fullPath ProofPath) ([]byte, bool) {
	n, ok := m.getNode(nodeLabel)
	if !ok {
		return nil, false
	}
	if n.isLeaf {
		if nodeLabel.Equal(fullPath) {
			return n.value, true
		}
		return nil, false
	}
	depth := nodeLabel.bitLen
	if fullPath.bitLen <= depth {
		return nil, false
	}
	if fullPath.Bit(depth) == 0 {
		return m.getAt(n.leftLabel, fullPath)
	}
	return m.getAt(n.rightLabel, fullPath)
}

// Contains reports whether key is present.
func (m *Map) Contains(key []byte) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

// Remove deletes key, if present, promoting its sibling to take the
// removed branch's place so the tree never holds a unary branch (spec.md
// §4.3 invariant 1).
func (m *Map) Remove(key []byte) error {
	path, err := m.pathFor(key)
	if err != nil {
		return err
	}
	root, ok := m.loadRoot()
	if !ok {
		return nil
	}

	n, ok := m.getNode(root)
	if !ok {
		return nil
	}

	if n.isLeaf {
		if root.Equal(path) {
			m.deleteNode(root)
			m.view.Delete(rootPointerKey)
		}
		return nil
	}

	newRoot, _, found := m.removeAt(root, path)
	if found {
		m.storeRoot(newRoot)
	}
	return nil
}

// removeAt assumes nodeLabel is a branch. It returns the label and hash
// that should now occupy this slot, and whether fullPath was actually
// found and removed.
func (m *Map) removeAt(nodeLabel, fullPath ProofPath) (ProofPath, objecthash.Hash, bool) {
	n, _ := m.getNode(nodeLabel)
	depth := nodeLabel.bitLen
	goLeft := fullPath.Bit(depth) == 0

	var childLabel ProofPath
	if goLeft {
		childLabel = n.leftLabel
	} else {
		childLabel = n.rightLabel
	}

	if !fullPath.StartsWith(childLabel) {
		return nodeLabel, branchHash(n), false
	}

	child, _ := m.getNode(childLabel)
	if child.isLeaf {
		if !childLabel.Equal(fullPath) {
			return nodeLabel, branchHash(n), false
		}
		m.deleteNode(childLabel)
		m.deleteNode(nodeLabel)
		var siblingLabel ProofPath
		var siblingHash objecthash.Hash
		if goLeft {
			siblingLabel, siblingHash = n.rightLabel, n.rightHash
		} else {
			siblingLabel, siblingHash = n.leftLabel, n.leftHash
		}
		return siblingLabel, siblingHash, true
	}

	newChildLabel, newChildHash, found := m.removeAt(childLabel, fullPath)
	if !found {
		return nodeLabel, branchHash(n), false
	}
	if goLeft {
		n.leftLabel, n.leftHash = newChildLabel, newChildHash
	} else {
		n.rightLabel, n.rightHash = newChildLabel, newChildHash
	}
	m.putNode(nodeLabel, n)
	return nodeLabel, branchHash(n), true
}

// Clear removes every entry.
func (m *Map) Clear() {
	root, ok := m.loadRoot()
	if !ok {
		return
	}
	m.clearSubtree(root)
	m.view.Delete(rootPointerKey)
}

func (m *Map) clearSubtree(label ProofPath) {
	n, ok := m.getNode(label)
	if !ok {
		return
	}
	if !n.isLeaf {
		m.clearSubtree(n.leftLabel)
		m.clearSubtree(n.rightLabel)
	}
	m.deleteNode(label)
}

// ObjectHash returns the map's canonical root hash (spec.md §4.3 "Index
// root hash"), the empty-map constant when there are no entries.
func (m *Map) ObjectHash() objecthash.Hash {
	root, ok := m.loadRoot()
	if !ok {
		return objecthash.MapRootHash(objecthash.EmptyMapInner)
	}
	n, ok := m.getNode(root)
	if !ok {
		return objecthash.MapRootHash(objecthash.EmptyMapInner)
	}
	if n.isLeaf {
		return objecthash.MapRootHash(objecthash.SingleEntryHash(encodeLabel(root), objecthash.LeafValueHash(n.value)))
	}
	return objecthash.MapRootHash(branchHash(n))
}

// Entry is one (key path, value) pair yielded by Iter, carrying the
// tree path rather than the original key since Hashed-mode maps do not
// retain the pre-image.
type Entry struct {
	Path  ProofPath
	Value []byte
}

// Iter returns every entry in ascending path order. Proof maps have no
// notion of "all keys from X" over the original key space once hashed, so
// iteration is always a full walk, and Raw mode offers no range scan
// either.
func (m *Map) Iter() []Entry {
	root, ok := m.loadRoot()
	if !ok {
		return nil
	}
	var out []Entry
	m.collect(root, &out)
	return out
}

func (m *Map) collect(label ProofPath, out *[]Entry) {
	n, ok := m.getNode(label)
	if !ok {
		return
	}
	if n.isLeaf {
		*out = append(*out, Entry{Path: label, Value: n.value})
		return
	}
	m.collect(n.leftLabel, out)
	m.collect(n.rightLabel, out)
}
