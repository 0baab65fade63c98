package proofmap

import (
	"errors"

	"github.com/cuemby/meridian/pkg/objecthash"
)

// Verification errors, spec.md §4.3 "Verification".
var (
	// ErrNonTerminalNode is returned when a proof's shape doesn't match
	// the query (e.g. a Leaf entry appears somewhere other than the exact
	// end of the traversal implied by the queried key).
	ErrNonTerminalNode = errors.New("proofmap: non-terminal node in proof")
	// ErrInvalidOrdering is returned when a branch's two child labels
	// don't start with distinct first bits (Left=0, Right=1), or a
	// branch's labels don't agree with the direction the query key says
	// to descend.
	ErrInvalidOrdering = errors.New("proofmap: invalid branch ordering")
	// ErrEmbeddedPaths is returned when one child label is itself a
	// prefix of the other, which can never happen in a well-formed tree.
	ErrEmbeddedPaths = errors.New("proofmap: one branch label embeds the other")
	// ErrDuplicatePath is returned when a multiproof names the same key
	// more than once.
	ErrDuplicatePath = errors.New("proofmap: duplicate path in proof")
	// ErrRootMismatch is returned when the proof's recomputed root hash
	// does not equal the expected object hash.
	ErrRootMismatch = errors.New("proofmap: recomputed root hash does not match")
)

// ProofEntry is the sealed sum type of spec.md §4.3 "MapProof shape": a
// proof of inclusion or exclusion for one key. Implementations are
// exhaustive; callers type-switch over the concrete variants.
type ProofEntry interface {
	isProofEntry()
}

// EmptyTree proves that the map has no entries at all.
type EmptyTree struct{}

// LeafRootInclusive proves a key's presence when the entire map is one
// leaf that is the root.
type LeafRootInclusive struct {
	Path  ProofPath
	Value []byte
}

// LeafRootExclusive proves a key's absence when the entire map is one
// leaf that is the root and does not match the queried path.
type LeafRootExclusive struct {
	Path      ProofPath
	ValueHash objecthash.Hash
}

// LeftBranch is a branch proof whose query descends into the left child;
// Sub proves (or disproves) the key within that child, RightHash is the
// untouched sibling's cached hash.
type LeftBranch struct {
	Sub                  ProofEntry
	RightHash            objecthash.Hash
	LeftLabel, RightLabel ProofPath
}

// RightBranch mirrors LeftBranch for a query descending right.
type RightBranch struct {
	LeftHash              objecthash.Hash
	Sub                   ProofEntry
	LeftLabel, RightLabel ProofPath
}

// BranchKeyNotFound proves a key's absence at a branch whose two children
// both diverge from the queried path before either is fully matched.
type BranchKeyNotFound struct {
	LeftHash, RightHash   objecthash.Hash
	LeftLabel, RightLabel ProofPath
}

// Leaf is the terminal inclusion case nested inside a branch proof: the
// queried path led all the way down to a leaf whose own label equals it.
type Leaf struct {
	Value []byte
}

func (EmptyTree) isProofEntry()         {}
func (LeafRootInclusive) isProofEntry() {}
func (LeafRootExclusive) isProofEntry() {}
func (LeftBranch) isProofEntry()        {}
func (RightBranch) isProofEntry()       {}
func (BranchKeyNotFound) isProofEntry() {}
func (Leaf) isProofEntry()              {}

// GetProof builds a MapProof for key: either its value together with
// enough sibling hashes to recompute the root, or enough structure to
// prove its absence.
func (m *Map) GetProof(key []byte) (ProofEntry, error) {
	path, err := m.pathFor(key)
	if err != nil {
		return nil, err
	}

	root, ok := m.loadRoot()
	if !ok {
		return EmptyTree{}, nil
	}

	n, _ := m.getNode(root)
	if n.isLeaf {
		if root.Equal(path) {
			return LeafRootInclusive{Path: root, Value: n.value}, nil
		}
		return LeafRootExclusive{Path: root, ValueHash: objecthash.LeafValueHash(n.value)}, nil
	}
	return m.proofAt(root, n, path), nil
}

func (m *Map) proofAt(nodeLabel ProofPath, n node, fullPath ProofPath) ProofEntry {
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

	child, _ := m.getNode(chosen)
	var sub ProofEntry
	if child.isLeaf {
		sub = Leaf{Value: child.value}
	} else {
		sub = m.proofAt(chosen, child, fullPath)
	}

	if goLeft {
		return LeftBranch{Sub: sub, RightHash: n.rightHash, LeftLabel: n.leftLabel, RightLabel: n.rightLabel}
	}
	return RightBranch{LeftHash: n.leftHash, Sub: sub, LeftLabel: n.leftLabel, RightLabel: n.rightLabel}
}

// Verify checks proof against key under mode, and returns the value it
// proves inclusion of (if any) once its recomputed root hash matches
// rootHash.
func Verify(proof ProofEntry, key []byte, mode Mode, rootHash objecthash.Hash) ([]byte, bool, error) {
	path, err := pathForVerify(key, mode)
	if err != nil {
		return nil, false, err
	}

	switch p := proof.(type) {
	case EmptyTree:
		if objecthash.MapRootHash(objecthash.EmptyMapInner) != rootHash {
			return nil, false, ErrRootMismatch
		}
		return nil, false, nil

	case LeafRootInclusive:
		if !p.Path.Equal(path) {
			return nil, false, ErrNonTerminalNode
		}
		h := objecthash.SingleEntryHash(encodeLabel(p.Path), objecthash.LeafValueHash(p.Value))
		if objecthash.MapRootHash(h) != rootHash {
			return nil, false, ErrRootMismatch
		}
		return p.Value, true, nil

	case LeafRootExclusive:
		if p.Path.Equal(path) {
			return nil, false, ErrNonTerminalNode
		}
		h := objecthash.SingleEntryHash(encodeLabel(p.Path), p.ValueHash)
		if objecthash.MapRootHash(h) != rootHash {
			return nil, false, ErrRootMismatch
		}
		return nil, false, nil

	default:
		h, value, found, err := verifyBranch(proof, path)
		if err != nil {
			return nil, false, err
		}
		if objecthash.MapRootHash(h) != rootHash {
			return nil, false, ErrRootMismatch
		}
		return value, found, nil
	}
}

func pathForVerify(key []byte, mode Mode) (ProofPath, error) {
	m := &Map{mode: mode}
	return m.pathFor(key)
}

// branchDepth derives the bit position a branch splits at directly from
// its two children's labels, which always share every bit up to that
// position and then diverge (left=0, right=1) at it. The proof never
// carries the branch's own label explicitly, so this is the only source
// of truth for where in the query path this branch decides.
func branchDepth(left, right ProofPath) int {
	return commonPrefixLen(left, right)
}

func validateLabels(left, right ProofPath, queryPath ProofPath) (int, error) {
	depth := branchDepth(left, right)
	if left.Equal(right) {
		return 0, ErrDuplicatePath
	}
	if left.StartsWith(right) || right.StartsWith(left) {
		return 0, ErrEmbeddedPaths
	}
	if left.bitLen <= depth || right.bitLen <= depth {
		return 0, ErrNonTerminalNode
	}
	if left.Bit(depth) != 0 || right.Bit(depth) != 1 {
		return 0, ErrInvalidOrdering
	}
	if queryPath.bitLen < depth || !queryPath.StartsWith(left.Prefix(depth)) {
		return 0, ErrInvalidOrdering
	}
	return depth, nil
}

func verifyBranch(entry ProofEntry, queryPath ProofPath) (objecthash.Hash, []byte, bool, error) {
	var zero objecthash.Hash

	switch e := entry.(type) {
	case LeftBranch:
		depth, err := validateLabels(e.LeftLabel, e.RightLabel, queryPath)
		if err != nil {
			return zero, nil, false, err
		}
		if queryPath.bitLen <= depth || queryPath.Bit(depth) != 0 {
			return zero, nil, false, ErrInvalidOrdering
		}
		subHash, value, found, err := verifySub(e.Sub, queryPath, e.LeftLabel)
		if err != nil {
			return zero, nil, false, err
		}
		return objecthash.BranchHash(encodeLabel(e.LeftLabel), encodeLabel(e.RightLabel), subHash, e.RightHash), value, found, nil

	case RightBranch:
		depth, err := validateLabels(e.LeftLabel, e.RightLabel, queryPath)
		if err != nil {
			return zero, nil, false, err
		}
		if queryPath.bitLen <= depth || queryPath.Bit(depth) != 1 {
			return zero, nil, false, ErrInvalidOrdering
		}
		subHash, value, found, err := verifySub(e.Sub, queryPath, e.RightLabel)
		if err != nil {
			return zero, nil, false, err
		}
		return objecthash.BranchHash(encodeLabel(e.LeftLabel), encodeLabel(e.RightLabel), e.LeftHash, subHash), value, found, nil

	case BranchKeyNotFound:
		if _, err := validateLabels(e.LeftLabel, e.RightLabel, queryPath); err != nil {
			return zero, nil, false, err
		}
		if queryPath.StartsWith(e.LeftLabel) || queryPath.StartsWith(e.RightLabel) {
			return zero, nil, false, ErrInvalidOrdering
		}
		return objecthash.BranchHash(encodeLabel(e.LeftLabel), encodeLabel(e.RightLabel), e.LeftHash, e.RightHash), nil, false, nil

	default:
		return zero, nil, false, ErrNonTerminalNode
	}
}

func verifySub(sub ProofEntry, queryPath, label ProofPath) (objecthash.Hash, []byte, bool, error) {
	switch s := sub.(type) {
	case Leaf:
		if !label.Equal(queryPath) {
			return objecthash.Hash{}, nil, false, ErrNonTerminalNode
		}
		return objecthash.LeafValueHash(s.Value), s.Value, true, nil
	case LeftBranch, RightBranch, BranchKeyNotFound:
		return verifyBranch(sub, queryPath)
	default:
		return objecthash.Hash{}, nil, false, ErrNonTerminalNode
	}
}
