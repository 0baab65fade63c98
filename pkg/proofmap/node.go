package proofmap

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/meridian/pkg/objecthash"
)

// node is the on-disk representation of one tree node: either a leaf
// carrying a user value, or a branch carrying its two children's labels
// and cached hashes.
type node struct {
	isLeaf bool
	value  []byte

	leftLabel, rightLabel ProofPath
	leftHash, rightHash   objecthash.Hash
}

const (
	nodeTagLeaf   byte = 0
	nodeTagBranch byte = 1
)

// nodeKey returns the storage key a node is addressed by: its own absolute
// path, canonically encoded. Every node (leaf or branch) is keyed by its
// own label, never by a relative offset from its parent, so a child
// pointer inside a branch is just the child's own storage key.
func nodeKey(p ProofPath) []byte {
	b := p.bytes
	return objecthash.EncodePath(b[:], p.bitLen)
}

func encodeLabel(p ProofPath) []byte {
	return nodeKey(p)
}

func encodeNode(n node) []byte {
	if n.isLeaf {
		buf := make([]byte, 1+len(n.value))
		buf[0] = nodeTagLeaf
		copy(buf[1:], n.value)
		return buf
	}
	buf := make([]byte, 1+2*(keySize+2)+2*objecthash.Size)
	buf[0] = nodeTagBranch
	off := 1
	off += encodeLabelInto(buf[off:], n.leftLabel)
	off += encodeLabelInto(buf[off:], n.rightLabel)
	copy(buf[off:], n.leftHash[:])
	off += objecthash.Size
	copy(buf[off:], n.rightHash[:])
	return buf
}

// encodeLabelInto writes a fixed-width label (32 raw bytes + 2-byte bit
// length) so branch records have a constant size regardless of label
// length, keeping decode simple.
func encodeLabelInto(buf []byte, p ProofPath) int {
	b := p.bytes
	copy(buf, b[:])
	binary.BigEndian.PutUint16(buf[keySize:], uint16(p.bitLen))
	return keySize + 2
}

func decodeLabelFrom(buf []byte) (ProofPath, int) {
	var p ProofPath
	copy(p.bytes[:], buf[:keySize])
	p.bitLen = int(binary.BigEndian.Uint16(buf[keySize : keySize+2]))
	return p, keySize + 2
}

func decodeNode(raw []byte) (node, error) {
	if len(raw) == 0 {
		return node{}, fmt.Errorf("proofmap: empty node record")
	}
	switch raw[0] {
	case nodeTagLeaf:
		return node{isLeaf: true, value: append([]byte(nil), raw[1:]...)}, nil
	case nodeTagBranch:
		var n node
		off := 1
		var consumed int
		n.leftLabel, consumed = decodeLabelFrom(raw[off:])
		off += consumed
		n.rightLabel, consumed = decodeLabelFrom(raw[off:])
		off += consumed
		copy(n.leftHash[:], raw[off:off+objecthash.Size])
		off += objecthash.Size
		copy(n.rightHash[:], raw[off:off+objecthash.Size])
		return n, nil
	default:
		return node{}, fmt.Errorf("proofmap: unknown node tag %d", raw[0])
	}
}

func hashOfNode(n node) objecthash.Hash {
	if n.isLeaf {
		return objecthash.LeafValueHash(n.value)
	}
	return branchHash(n)
}

func branchHash(n node) objecthash.Hash {
	return objecthash.BranchHash(encodeLabel(n.leftLabel), encodeLabel(n.rightLabel), n.leftHash, n.rightHash)
}

// rootPointerKey is a single byte, shorter than any nodeKey (whose minimum
// encoded length is 2, for the zero-length path), so it can never collide
// with a real node's storage key.
var rootPointerKey = []byte{0xFF}

func encodeRootPointer(p ProofPath) []byte {
	buf := make([]byte, keySize+2)
	encodeLabelInto(buf, p)
	return buf
}

func decodeRootPointer(raw []byte) ProofPath {
	p, _ := decodeLabelFrom(raw)
	return p
}
