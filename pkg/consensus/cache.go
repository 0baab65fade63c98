package consensus

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/meridian/pkg/patch"
	"github.com/cuemby/meridian/pkg/prooflist"
)

// cacheAddress is the reserved address the message cache persists to,
// distinct from application and aggregator addresses.
const cacheAddress = "__CONSENSUS_CACHE__"

const (
	cacheKindPropose byte = iota
	cacheKindPrevote
	cacheKindPrecommit
)

// CacheEntry is one decoded record from the message cache.
type CacheEntry struct {
	Kind  byte
	Epoch Epoch
	Round Round
	Raw   []byte
}

// MessageCache persistently logs every outgoing propose/prevote/precommit
// and every incoming vote that contributes to the current lock, so a
// restarted validator can reconstruct its round state without re-running
// consensus from genesis (spec.md §4.4 "restart recovery"). It is backed
// by pkg/prooflist's append-only list, truncated whenever the epoch
// advances since nothing from a finished epoch is needed for recovery.
type MessageCache struct {
	db *patch.Database
}

func NewMessageCache(db *patch.Database) *MessageCache {
	return &MessageCache{db: db}
}

func encodeCacheEntry(kind byte, epoch Epoch, round Round, raw []byte) []byte {
	buf := make([]byte, 1+8+4+len(raw))
	buf[0] = kind
	binary.BigEndian.PutUint64(buf[1:9], uint64(epoch))
	binary.BigEndian.PutUint32(buf[9:13], uint32(round))
	copy(buf[13:], raw)
	return buf
}

func decodeCacheEntry(buf []byte) (CacheEntry, error) {
	if len(buf) < 13 {
		return CacheEntry{}, fmt.Errorf("consensus: cache entry too short: %d bytes", len(buf))
	}
	return CacheEntry{
		Kind:  buf[0],
		Epoch: Epoch(binary.BigEndian.Uint64(buf[1:9])),
		Round: Round(binary.BigEndian.Uint32(buf[9:13])),
		Raw:   append([]byte(nil), buf[13:]...),
	}, nil
}

// Append persists one message to the cache.
func (c *MessageCache) Append(kind byte, epoch Epoch, round Round, raw []byte) error {
	fork := c.db.Fork()
	view := fork.View(cacheAddress)
	prooflist.New(view).Push(encodeCacheEntry(kind, epoch, round, raw))
	view.Close()
	return c.db.Merge(fork.IntoPatch())
}

// Truncate clears every cached message, called on epoch advance.
func (c *MessageCache) Truncate() error {
	fork := c.db.Fork()
	view := fork.View(cacheAddress)
	prooflist.New(view).Clear()
	view.Close()
	return c.db.Merge(fork.IntoPatch())
}

// Replay returns every cached entry in append order, for use at startup.
func (c *MessageCache) Replay() ([]CacheEntry, error) {
	fork := c.db.Fork()
	view := fork.ReadonlyView(cacheAddress)
	raws := prooflist.New(view).Iter()
	view.Close()

	entries := make([]CacheEntry, 0, len(raws))
	for _, raw := range raws {
		e, err := decodeCacheEntry(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
