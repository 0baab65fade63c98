package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/meridian/pkg/events"
	"github.com/cuemby/meridian/pkg/kvstore"
	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
)

// noopDispatcher executes no transactions and aggregates nothing, enough
// to exercise the consensus pipeline without any application logic.
type noopDispatcher struct{}

func (noopDispatcher) PreCheck([]byte) error { return nil }

func (noopDispatcher) Execute(fork *patch.Fork, txs [][]byte) (objecthash.Hash, error) {
	return objecthash.Sum(0xEE, encodeU32(uint32(len(txs)))), nil
}

func (noopDispatcher) HashOf(patch.ResolvedAddress) (objecthash.Hash, bool) {
	return objecthash.Hash{}, false
}

type testHarness struct {
	states   []*State
	sandbox  *Sandbox
	closeFns []func()
}

func newTestHarness(t *testing.T, n int) *testHarness {
	t.Helper()
	h := &testHarness{sandbox: NewSandbox()}
	for i := 0; i < n; i++ {
		backend, err := kvstore.OpenBolt(t.TempDir())
		require.NoError(t, err)
		db := patch.NewDatabase(backend)
		cache := NewMessageCache(db)
		id := ValidatorID(i)
		st := NewState(id, n, DefaultConfig(), db, noopDispatcher{}, h.sandbox.Transport(id), events.NewBroker(), cache)
		h.sandbox.Register(id, st)
		h.states = append(h.states, st)
		h.closeFns = append(h.closeFns, func() { _ = backend.Close() })
	}
	return h
}

func (h *testHarness) cleanup() {
	for _, fn := range h.closeFns {
		fn()
	}
}

func TestByzantineQuorumAndMaxFaulty(t *testing.T) {
	cases := []struct{ n, quorum, faulty int }{
		{4, 3, 1},
		{7, 5, 2},
		{10, 7, 3},
		{1, 1, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.quorum, ByzantineQuorum(c.n), "n=%d", c.n)
		assert.Equal(t, c.faulty, MaxFaulty(c.n), "n=%d", c.n)
	}
}

func TestLeaderRotatesRoundRobinAndReseedsPerEpoch(t *testing.T) {
	assert.Equal(t, ValidatorID(1), Leader(0, 1, 4))
	assert.Equal(t, ValidatorID(2), Leader(0, 2, 4))
	assert.Equal(t, ValidatorID(3), Leader(0, 3, 4))
	assert.Equal(t, ValidatorID(0), Leader(0, 4, 4))
	// A new epoch reseeds the rotation rather than continuing it.
	assert.Equal(t, ValidatorID(2), Leader(1, 1, 4))
}

func TestRoundTimeoutGrowsWithRound(t *testing.T) {
	h := newTestHarness(t, 4)
	defer h.cleanup()
	s := h.states[0]

	t1 := s.roundTimeout(1)
	t2 := s.roundTimeout(2)
	t3 := s.roundTimeout(3)
	assert.True(t, t2 > t1)
	assert.True(t, t3 > t2)
}

// TestSandboxCommitsBlockViaMajority reproduces a four-validator cluster
// agreeing on and committing an empty block through the full
// propose/prevote/precommit cascade.
func TestSandboxCommitsBlockViaMajority(t *testing.T) {
	h := newTestHarness(t, 4)
	defer h.cleanup()

	leader := Leader(0, 1, 4)
	require.NoError(t, h.states[leader].BuildOwnPropose())
	require.NoError(t, h.sandbox.Drain())

	for i, st := range h.states {
		assert.Equal(t, Height(1), st.height, "validator %d", i)
		assert.Equal(t, Epoch(1), st.epoch, "validator %d", i)
		assert.Equal(t, Round(1), st.round, "validator %d", i)
		assert.Equal(t, int32(-1), st.lockedRound, "validator %d", i)
	}
}

// TestSandboxSkipProposeAdvancesEpochNotHeight exercises the Skip path: a
// leader with nothing to propose still drives the epoch forward without
// producing a block.
func TestSandboxSkipProposeAdvancesEpochNotHeight(t *testing.T) {
	h := newTestHarness(t, 4)
	defer h.cleanup()

	leader := Leader(0, 1, 4)
	require.NoError(t, h.states[leader].BuildSkipPropose())
	require.NoError(t, h.sandbox.Drain())

	for i, st := range h.states {
		assert.Equal(t, Height(0), st.height, "validator %d", i)
		assert.Equal(t, Epoch(1), st.epoch, "validator %d", i)
	}
}

// TestOnlyOnePrevotePerRoundUnderEquivocation reproduces a leader
// equivocating within one round: two distinct, individually complete
// proposes both claiming to be the round's leader proposal. No lock is
// involved; the per-round voted guard lets the validator vote for at most
// one.
func TestOnlyOnePrevotePerRoundUnderEquivocation(t *testing.T) {
	h := newTestHarness(t, 4)
	defer h.cleanup()
	target := h.states[0]
	leader := Leader(0, 1, 4)

	p1 := Propose{Validator: leader, Epoch: 0, Round: 1, PrevHash: objecthash.Sum(0x01, []byte("a"))}
	p2 := Propose{Validator: leader, Epoch: 0, Round: 1, PrevHash: objecthash.Sum(0x01, []byte("b"))}
	require.NotEqual(t, p1.Hash(), p2.Hash())

	require.NoError(t, target.HandlePropose(p1))
	require.NoError(t, target.HandlePropose(p2))

	assert.True(t, target.votedRounds[1])
	assert.Len(t, target.proposes, 2, "both proposes are tracked even though only one gets a vote")

	// Broadcast fans out to the other three validators, so one logical
	// prevote yields three queued entries; what matters is that every one
	// of them carries the same propose hash, i.e. only one distinct
	// prevote was ever emitted.
	var prevoteHashes []objecthash.Hash
	for _, m := range h.sandbox.queue {
		if v, ok := m.msg.(Prevote); ok {
			prevoteHashes = append(prevoteHashes, v.ProposeHash)
		}
	}
	require.Len(t, prevoteHashes, 3, "one broadcast prevote, fanned out to the other three validators")
	for _, ph := range prevoteHashes {
		assert.Equal(t, prevoteHashes[0], ph, "every queued prevote came from the same single vote")
	}
}

// TestCommitPanicsOnBlockHashMismatch reproduces a byzantine quorum
// agreeing (via a forged Precommit) on a block hash that does not match
// what this validator's own execution of the referenced propose produces —
// an invariant violation that must panic rather than silently commit the
// wrong state.
func TestCommitPanicsOnBlockHashMismatch(t *testing.T) {
	h := newTestHarness(t, 4)
	defer h.cleanup()
	target := h.states[3]
	leader := Leader(0, 1, 4)

	p := Propose{Validator: leader, Epoch: 0, Round: 1}
	require.NoError(t, target.HandlePropose(p))

	forged := objecthash.Sum(0x99, []byte("forged-block"))
	for _, voter := range []ValidatorID{0, 1, 2} {
		c := Precommit{Validator: voter, Epoch: 0, Round: 1, ProposeHash: p.Hash(), BlockHash: forged, Time: 1}
		if voter == 2 {
			assert.Panics(t, func() { _ = target.HandlePrecommit(c) })
			return
		}
		require.NoError(t, target.HandlePrecommit(c))
	}
}

func TestRecoverRebuildsLockAndReturnsOwnOutgoingExactlyOnce(t *testing.T) {
	h := newTestHarness(t, 4)
	defer h.cleanup()
	self := h.states[0]

	p := Propose{Validator: 0, Epoch: 0, Round: 1}
	v0 := Prevote{Validator: 0, Epoch: 0, Round: 1, ProposeHash: p.Hash(), LockedRound: -1}
	v1 := Prevote{Validator: 1, Epoch: 0, Round: 1, ProposeHash: p.Hash(), LockedRound: -1}
	v2 := Prevote{Validator: 2, Epoch: 0, Round: 1, ProposeHash: p.Hash(), LockedRound: -1}
	c0 := Precommit{Validator: 0, Epoch: 0, Round: 1, ProposeHash: p.Hash(), BlockHash: objecthash.Sum(0x42, []byte("block")), Time: 1}

	entries := []CacheEntry{
		{Kind: cacheKindPropose, Epoch: 0, Round: 1, Raw: encodeProposeForCache(p)},
		{Kind: cacheKindPrevote, Epoch: 0, Round: 1, Raw: encodePrevoteForCache(v0)},
		{Kind: cacheKindPrevote, Epoch: 0, Round: 1, Raw: encodePrevoteForCache(v1)},
		{Kind: cacheKindPrevote, Epoch: 0, Round: 1, Raw: encodePrevoteForCache(v2)},
		{Kind: cacheKindPrecommit, Epoch: 0, Round: 1, Raw: encodePrecommitForCache(c0)},
	}

	owned, err := self.Recover(entries)
	require.NoError(t, err)
	require.Len(t, owned, 3, "own propose, own prevote, own precommit")
	assert.Equal(t, int32(1), self.lockedRound)
	require.NotNil(t, self.lockedHash)
	assert.Equal(t, p.Hash(), *self.lockedHash)
}
