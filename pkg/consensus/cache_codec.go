package consensus

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/meridian/pkg/objecthash"
)

// encodeProposeForCache/decodeProposeFromCache and their Prevote/Precommit
// counterparts are MessageCache's own on-disk format, independent of the
// objecthash encoding Propose.Hash uses for message identity.

func encodeProposeForCache(p Propose) []byte {
	buf := make([]byte, 0, 8+8+4+objecthash.Size+1+4+len(p.TxHashes)*objecthash.Size)
	buf = append(buf, encodeU64(uint64(p.Validator))...)
	buf = append(buf, encodeU64(uint64(p.Epoch))...)
	buf = append(buf, encodeU32(uint32(p.Round))...)
	buf = append(buf, p.PrevHash[:]...)
	buf = append(buf, encodeBool(p.Skip)...)
	buf = append(buf, encodeU32(uint32(len(p.TxHashes)))...)
	for _, h := range p.TxHashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

func decodeProposeFromCache(buf []byte) (Propose, error) {
	const fixed = 8 + 8 + 4 + objecthash.Size + 1 + 4
	if len(buf) < fixed {
		return Propose{}, fmt.Errorf("consensus: propose cache entry too short: %d bytes", len(buf))
	}
	p := Propose{
		Validator: ValidatorID(binary.BigEndian.Uint64(buf[0:8])),
		Epoch:     Epoch(binary.BigEndian.Uint64(buf[8:16])),
		Round:     Round(binary.BigEndian.Uint32(buf[16:20])),
		Skip:      buf[20+objecthash.Size] != 0,
	}
	copy(p.PrevHash[:], buf[20:20+objecthash.Size])
	off := 20 + objecthash.Size + 1
	n := int(binary.BigEndian.Uint32(buf[off : off+4]))
	off += 4
	if len(buf) < off+n*objecthash.Size {
		return Propose{}, fmt.Errorf("consensus: propose cache entry truncated transaction list")
	}
	if n == 0 {
		return p, nil
	}
	p.TxHashes = make([]objecthash.Hash, n)
	for i := 0; i < n; i++ {
		copy(p.TxHashes[i][:], buf[off+i*objecthash.Size:off+(i+1)*objecthash.Size])
	}
	return p, nil
}

func encodePrevoteForCache(v Prevote) []byte {
	buf := make([]byte, 0, 8+8+4+objecthash.Size+4)
	buf = append(buf, encodeU64(uint64(v.Validator))...)
	buf = append(buf, encodeU64(uint64(v.Epoch))...)
	buf = append(buf, encodeU32(uint32(v.Round))...)
	buf = append(buf, v.ProposeHash[:]...)
	buf = append(buf, encodeI32(v.LockedRound)...)
	return buf
}

func decodePrevoteFromCache(buf []byte) (Prevote, error) {
	const want = 8 + 8 + 4 + objecthash.Size + 4
	if len(buf) != want {
		return Prevote{}, fmt.Errorf("consensus: prevote cache entry has wrong length: %d bytes", len(buf))
	}
	v := Prevote{
		Validator: ValidatorID(binary.BigEndian.Uint64(buf[0:8])),
		Epoch:     Epoch(binary.BigEndian.Uint64(buf[8:16])),
		Round:     Round(binary.BigEndian.Uint32(buf[16:20])),
	}
	copy(v.ProposeHash[:], buf[20:20+objecthash.Size])
	v.LockedRound = int32(binary.BigEndian.Uint32(buf[20+objecthash.Size:]))
	return v, nil
}

func encodePrecommitForCache(c Precommit) []byte {
	buf := make([]byte, 0, 8+8+4+objecthash.Size*2+8)
	buf = append(buf, encodeU64(uint64(c.Validator))...)
	buf = append(buf, encodeU64(uint64(c.Epoch))...)
	buf = append(buf, encodeU32(uint32(c.Round))...)
	buf = append(buf, c.ProposeHash[:]...)
	buf = append(buf, c.BlockHash[:]...)
	buf = append(buf, encodeU64(uint64(c.Time))...)
	return buf
}

func decodePrecommitFromCache(buf []byte) (Precommit, error) {
	const want = 8 + 8 + 4 + objecthash.Size*2 + 8
	if len(buf) != want {
		return Precommit{}, fmt.Errorf("consensus: precommit cache entry has wrong length: %d bytes", len(buf))
	}
	c := Precommit{
		Validator: ValidatorID(binary.BigEndian.Uint64(buf[0:8])),
		Epoch:     Epoch(binary.BigEndian.Uint64(buf[8:16])),
		Round:     Round(binary.BigEndian.Uint32(buf[16:20])),
	}
	off := 20
	copy(c.ProposeHash[:], buf[off:off+objecthash.Size])
	off += objecthash.Size
	copy(c.BlockHash[:], buf[off:off+objecthash.Size])
	off += objecthash.Size
	c.Time = int64(binary.BigEndian.Uint64(buf[off:]))
	return c, nil
}
