package prooflist

import (
	"errors"

	"github.com/cuemby/meridian/pkg/objecthash"
)

// Verification errors, mirroring proofmap's typed-result contract (spec.md
// §4.3 / §7 "Proof verification errors ... never panics").
var (
	ErrIndexOutOfRange = errors.New("prooflist: index out of range")
	ErrRootMismatch    = errors.New("prooflist: recomputed root hash does not match")
)

// ListProof is the minimal sibling-hash path from one element up to the
// list's root, together with the list length at proof time. A missing
// right sibling travels as the zero hash; VerifyListProof uses Length only
// to range-check Index.
type ListProof struct {
	Index    int
	Value    []byte
	Length   int
	Siblings []objecthash.Hash
}

// GetProof builds a ListProof for the element at index.
func (l *List) GetProof(index int) (ListProof, error) {
	length := l.Len()
	if index < 0 || index >= length {
		return ListProof{}, ErrIndexOutOfRange
	}
	value, _ := l.Get(index)

	level := l.leafHashes()
	idx := index
	var siblings []objecthash.Hash
	for len(level) > 1 {
		var sib objecthash.Hash
		if idx^1 < len(level) {
			sib = level[idx^1]
		}
		siblings = append(siblings, sib)
		level = nextLevel(level)
		idx /= 2
	}

	return ListProof{Index: index, Value: value, Length: length, Siblings: siblings}, nil
}

// VerifyListProof recomputes the root hash implied by proof and compares it
// against rootHash, returning the proven value once they match.
func VerifyListProof(proof ListProof, rootHash objecthash.Hash) ([]byte, bool, error) {
	if proof.Index < 0 || proof.Index >= proof.Length {
		return nil, false, ErrIndexOutOfRange
	}

	node := objecthash.LeafValueHash(proof.Value)
	idx := proof.Index
	for _, sib := range proof.Siblings {
		if idx%2 == 0 {
			node = objecthash.ListNodeHash(node, sib)
		} else {
			node = objecthash.ListNodeHash(sib, node)
		}
		idx /= 2
	}

	if objecthash.ListRootHash(node) != rootHash {
		return nil, false, ErrRootMismatch
	}
	return proof.Value, true, nil
}
