package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/meridian/pkg/kvstore"
	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
)

func newTestCache(t *testing.T) (*MessageCache, func()) {
	t.Helper()
	backend, err := kvstore.OpenBolt(t.TempDir())
	require.NoError(t, err)
	db := patch.NewDatabase(backend)
	return NewMessageCache(db), func() { _ = backend.Close() }
}

func TestMessageCacheAppendAndReplay(t *testing.T) {
	c, cleanup := newTestCache(t)
	defer cleanup()

	p := Propose{Validator: 1, Epoch: 0, Round: 1, PrevHash: objecthash.Sum(0x01, []byte("a"))}
	require.NoError(t, c.Append(cacheKindPropose, p.Epoch, p.Round, encodeProposeForCache(p)))

	v := Prevote{Validator: 1, Epoch: 0, Round: 1, ProposeHash: p.Hash(), LockedRound: -1}
	require.NoError(t, c.Append(cacheKindPrevote, v.Epoch, v.Round, encodePrevoteForCache(v)))

	entries, err := c.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	gotPropose, err := decodeProposeFromCache(entries[0].Raw)
	require.NoError(t, err)
	assert.Equal(t, p, gotPropose)

	gotPrevote, err := decodePrevoteFromCache(entries[1].Raw)
	require.NoError(t, err)
	assert.Equal(t, v, gotPrevote)
}

func TestMessageCacheTruncateClearsEverything(t *testing.T) {
	c, cleanup := newTestCache(t)
	defer cleanup()

	p := Propose{Validator: 2, Epoch: 0, Round: 1}
	require.NoError(t, c.Append(cacheKindPropose, p.Epoch, p.Round, encodeProposeForCache(p)))

	entries, err := c.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, c.Truncate())

	entries, err = c.Replay()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrecommitCacheRoundTrip(t *testing.T) {
	c, cleanup := newTestCache(t)
	defer cleanup()

	cm := Precommit{Validator: 3, Epoch: 1, Round: 2, ProposeHash: objecthash.Sum(0x02, []byte("p")), BlockHash: objecthash.Sum(0x03, []byte("b")), Time: 1234}
	require.NoError(t, c.Append(cacheKindPrecommit, cm.Epoch, cm.Round, encodePrecommitForCache(cm)))

	entries, err := c.Replay()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, err := decodePrecommitFromCache(entries[0].Raw)
	require.NoError(t, err)
	assert.Equal(t, cm, got)
}
