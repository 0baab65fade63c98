package proofmap

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/cuemby/meridian/pkg/objecthash"
)

// multiproofCacheSize bounds the node-decode cache used while building a
// MultiProof for many keys at once; sized for a single call's worth of
// shared-ancestor branches, not a long-lived cache.
const multiproofCacheSize = 4096

// MultiProof is a batch of individual key proofs against the same root.
// Keys that share ancestor branches still re-derive those branches' hashes
// independently per entry (each ProofEntry is self-contained and
// verifiable on its own), but construction memoizes decoded nodes so a
// shared ancestor is only read and decoded from the backing store once
// per GetMultiProof call.
type MultiProof struct {
	Entries []KeyProof
}

// KeyProof pairs a queried key with its individual proof.
type KeyProof struct {
	Key   []byte
	Proof ProofEntry
}

// GetMultiProof builds a MultiProof for keys, in the order given.
// Duplicate keys are rejected (spec.md §4.3 "Multiproof ... no duplicate
// path").
func (m *Map) GetMultiProof(keys [][]byte) (MultiProof, error) {
	cache, err := lru.New(multiproofCacheSize)
	if err != nil {
		return MultiProof{}, err
	}

	seen := make(map[string]struct{}, len(keys))
	out := MultiProof{Entries: make([]KeyProof, 0, len(keys))}

	root, hasRoot := m.loadRoot()

	for _, key := range keys {
		if _, dup := seen[string(key)]; dup {
			return MultiProof{}, ErrDuplicatePath
		}
		seen[string(key)] = struct{}{}

		path, err := m.pathFor(key)
		if err != nil {
			return MultiProof{}, err
		}

		var entry ProofEntry
		if !hasRoot {
			entry = EmptyTree{}
		} else {
			n := m.getNodeCached(cache, root)
			if n.isLeaf {
				if root.Equal(path) {
					entry = LeafRootInclusive{Path: root, Value: n.value}
				} else {
					entry = LeafRootExclusive{Path: root, ValueHash: objecthash.LeafValueHash(n.value)}
				}
			} else {
				entry = m.proofAtCached(cache, root, n, path)
			}
		}

		out.Entries = append(out.Entries, KeyProof{Key: key, Proof: entry})
	}

	return out, nil
}

func (m *Map) getNodeCached(cache *lru.Cache, label ProofPath) node {
	if v, ok := cache.Get(label); ok {
		return v.(node)
	}
	n, _ := m.getNode(label)
	cache.Add(label, n)
	return n
}

func (m *Map) proofAtCached(cache *lru.Cache, nodeLabel ProofPath, n node, fullPath ProofPath) ProofEntry {
	depth := nodeLabel.bitLen
	goLeft := fullPath.Bit(depth) == 0

	var chosen ProofPath
	if goLeft {
		chosen = n.leftLabel
	} else {
		chosen = n.rightLabel
	}

	if !fullPath.StartsWith(chosen) {
		return BranchKeyNotFound{LeftHash: n.leftHash, RightHash: n.rightHash, LeftLabel: n.leftLabel, RightLabel: n.rightLabel}
	}

	child := m.getNodeCached(cache, chosen)
	var sub ProofEntry
	if child.isLeaf {
		sub = Leaf{Value: child.value}
	} else {
		sub = m.proofAtCached(cache, chosen, child, fullPath)
	}

	if goLeft {
		return LeftBranch{Sub: sub, RightHash: n.rightHash, LeftLabel: n.leftLabel, RightLabel: n.rightLabel}
	}
	return RightBranch{LeftHash: n.leftHash, Sub: sub, LeftLabel: n.leftLabel, RightLabel: n.rightLabel}
}

// VerifyMultiProof checks every entry in proof against rootHash and
// returns the subset found to be present, keyed by their position in
// proof.Entries.
func VerifyMultiProof(proof MultiProof, mode Mode, rootHash objecthash.Hash) ([][]byte, error) {
	values := make([][]byte, len(proof.Entries))
	for i, kp := range proof.Entries {
		value, found, err := Verify(kp.Proof, kp.Key, mode, rootHash)
		if err != nil {
			return nil, err
		}
		if found {
			values[i] = value
		}
	}
	return values, nil
}
