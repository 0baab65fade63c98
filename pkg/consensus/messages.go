package consensus

import (
	"encoding/binary"

	"github.com/cuemby/meridian/pkg/objecthash"
)

// Message tags distinguish the encodings fed to objecthash.Sum for each
// consensus message kind, kept in a range disjoint from the tags objecthash
// itself reserves for index hashing.
const (
	tagPropose   byte = 0x10
	tagPrevote   byte = 0x11
	tagPrecommit byte = 0x12
	tagBlock     byte = 0x13
)

func encodeU64(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func encodeU32(n uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, n)
	return buf
}

func encodeI32(n int32) []byte {
	return encodeU32(uint32(n))
}

func encodeBool(b bool) []byte {
	if b {
		return []byte{1}
	}
	return []byte{0}
}

// Propose is a leader's proposal for the next block: the previous block's
// hash plus an ordered list of pooled transaction hashes, or Skip set when
// the leader proposes advancing the epoch without producing a block
// (spec.md §4.4 "Propose").
type Propose struct {
	Validator ValidatorID
	Epoch     Epoch
	Round     Round
	PrevHash  objecthash.Hash
	TxHashes  []objecthash.Hash
	Skip      bool
}

// Hash is the canonical identity of a propose, used as the key in every
// round's propose/prevote/precommit bookkeeping.
func (p Propose) Hash() objecthash.Hash {
	parts := [][]byte{
		encodeU64(uint64(p.Validator)),
		encodeU64(uint64(p.Epoch)),
		encodeU32(uint32(p.Round)),
		p.PrevHash[:],
		encodeBool(p.Skip),
	}
	for _, h := range p.TxHashes {
		parts = append(parts, h[:])
	}
	return objecthash.Sum(tagPropose, parts...)
}

// Prevote carries a validator's vote that a given propose is complete and
// valid. LockedRound is -1 when the voter holds no lock, or the round it
// last locked at otherwise, letting other validators learn about locks
// they might not have observed directly (spec.md §4.4 "Prevote").
type Prevote struct {
	Validator   ValidatorID
	Epoch       Epoch
	Round       Round
	ProposeHash objecthash.Hash
	LockedRound int32
}

// Precommit carries a validator's commitment to a block once it has seen
// +2/3 prevotes for the underlying propose at some round (spec.md §4.4
// "Precommit").
type Precommit struct {
	Validator   ValidatorID
	Epoch       Epoch
	Round       Round
	ProposeHash objecthash.Hash
	BlockHash   objecthash.Hash
	Time        int64
}

// Status is the periodic heartbeat validators exchange to learn peers'
// height/epoch and pool size, driving Block/BlockOrEpoch catch-up requests
// (spec.md §4.4 "Status").
type Status struct {
	Validator ValidatorID
	Epoch     Epoch
	Height    Height
	LastHash  objecthash.Hash
	PoolSize  int
}

// blockHash identifies a committed or locked block: the propose it executed
// plus the resulting state and error commitments (spec.md §4.2 "block
// header").
func blockHash(epoch Epoch, height Height, round Round, proposeHash, stateHash, errorHash objecthash.Hash) objecthash.Hash {
	return objecthash.Sum(tagBlock,
		encodeU64(uint64(epoch)),
		encodeU64(uint64(height)),
		encodeU32(uint32(round)),
		proposeHash[:],
		stateHash[:],
		errorHash[:],
	)
}
