package objecthash

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Size is the length in bytes of a canonical hash.
const Size = 32

// Hash is the canonical output of H, used as the key space for Hashed-mode
// proof maps and as the value carried on every branch/root.
type Hash [Size]byte

// IsZero reports whether h is the all-zero hash, used as the deterministic
// default for a proof-list's missing right sibling.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Tags distinguish structurally different inputs to H so that a leaf value,
// a branch encoding, and an empty-collection marker can never collide.
const (
	tagLeafValue  byte = 0x00
	tagMapBranch  byte = 0x01
	tagMapSingle  byte = 0x02
	tagMapRoot    byte = 0x03
	tagListNode   byte = 0x04
	tagListRoot   byte = 0x05
	tagEmptyCoder byte = 0x06
)

// Sum hashes the tag followed by every part, in order. It is the one place
// in this module where H is invoked directly; every other hashing helper in
// this package is built on top of it so the tag scheme stays centralized.
func Sum(tag byte, parts ...[]byte) Hash {
	h := sha3.New256()
	h.Write([]byte{tag})
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	h.Sum(out[:0])
	return out
}

// LeafValueHash is H(LEAF_TAG ∥ value), the hash stored as a leaf's payload
// commitment (spec §4.3 "Leaf hash").
func LeafValueHash(value []byte) Hash {
	return Sum(tagLeafValue, value)
}

// BranchHash is H(BRANCH_TAG ∥ encode_path(left) ∥ encode_path(right) ∥
// left_hash ∥ right_hash), spec §4.3 "Branch hash".
func BranchHash(leftPathEncoded, rightPathEncoded []byte, leftHash, rightHash Hash) Hash {
	return Sum(tagMapBranch, leftPathEncoded, rightPathEncoded, leftHash[:], rightHash[:])
}

// SingleEntryHash is the inner form of a one-leaf proof map: the root path
// together with the leaf's value hash. It uses a tag distinct from both
// LeafValueHash and BranchHash so a single-entry map can never be mistaken
// for a branch or for a raw value (spec §4.3 "single_entry_hash").
func SingleEntryHash(rootPathEncoded []byte, leafHash Hash) Hash {
	return Sum(tagMapSingle, rootPathEncoded, leafHash[:])
}

// EmptyMapInner is the canonical "inner" value of an empty proof map, used
// as the input to MapRootHash when the map has no entries.
var EmptyMapInner = Sum(tagEmptyCoder, []byte("map"))

// EmptyListInner is the canonical "inner" value of an empty proof list.
var EmptyListInner = Sum(tagEmptyCoder, []byte("list"))

// MapRootHash wraps a map's inner form (empty constant, single-entry hash,
// or branch hash) to produce the index's object_hash (spec §4.3 "Index root
// hash").
func MapRootHash(inner Hash) Hash {
	return Sum(tagMapRoot, inner[:])
}

// ListNodeHash combines a proof-list internal node's children. right may be
// the zero hash, which stands in for a missing right sibling at any level
// (spec §3 "Proof-list").
func ListNodeHash(left, right Hash) Hash {
	return Sum(tagListNode, left[:], right[:])
}

// ListRootHash wraps a proof-list's root node hash (or EmptyListInner) to
// produce the index's object_hash.
func ListRootHash(inner Hash) Hash {
	return Sum(tagListRoot, inner[:])
}

// EncodePath serializes a bit-string prefix for hashing: the path bytes
// (with any bits beyond bitLen masked to zero) followed by a two-byte
// big-endian bit length. Without the length suffix, the 3-bit prefix "101"
// and the 8-bit prefix "10100000" would encode identically; the suffix
// makes every distinct (bytes, length) pair hash distinctly (spec §3
// "ProofPath ... canonical form").
func EncodePath(data []byte, bitLen int) []byte {
	nBytes := (bitLen + 7) / 8
	buf := make([]byte, nBytes+2)
	copy(buf, data[:nBytes])
	if rem := bitLen % 8; rem != 0 {
		mask := byte(0xFF) << uint(8-rem)
		buf[nBytes-1] &= mask
	}
	binary.BigEndian.PutUint16(buf[nBytes:], uint16(bitLen))
	return buf
}
