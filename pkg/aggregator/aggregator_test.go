package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/meridian/pkg/kvstore"
	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
	"github.com/cuemby/meridian/pkg/proofmap"
)

func newTestFork(t *testing.T) (*patch.Database, *patch.Fork, func()) {
	t.Helper()
	backend, err := kvstore.OpenBolt(t.TempDir())
	require.NoError(t, err)
	db := patch.NewDatabase(backend)
	fork := db.Fork()
	return db, fork, func() { _ = backend.Close() }
}

// proofMapHashOf is a HashProvider reading back the live object hash of a
// proofmap index at addr, simulating what application wiring would do.
func proofMapHashOf(fork *patch.Fork) HashProvider {
	return func(addr patch.ResolvedAddress) (objHash objecthash.Hash, ok bool) {
		v := fork.ReadonlyView(addr.Name)
		defer v.Close()
		return proofmap.New(v).ObjectHash(), true
	}
}

func TestSyncRecordsChangedIndexHash(t *testing.T) {
	_, fork, cleanup := newTestFork(t)
	defer cleanup()

	view := fork.View("accounts")
	m := proofmap.New(view)
	require.NoError(t, m.Put([]byte("alice"), []byte("100")))
	expected := m.ObjectHash()
	view.MarkAggregated("")
	view.Close()

	require.NoError(t, Sync(fork, proofMapHashOf(fork)))

	got, ok, err := Get(fork, "accounts")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, expected, got)
}

func TestStateHashChangesWithAggregatedContent(t *testing.T) {
	_, fork, cleanup := newTestFork(t)
	defer cleanup()

	before := StateHash(fork)

	view := fork.View("accounts")
	m := proofmap.New(view)
	require.NoError(t, m.Put([]byte("alice"), []byte("100")))
	view.MarkAggregated("")
	view.Close()
	require.NoError(t, Sync(fork, proofMapHashOf(fork)))

	after := StateHash(fork)
	assert.NotEqual(t, before, after)
}

func TestSyncIsNamespaceScoped(t *testing.T) {
	_, fork, cleanup := newTestFork(t)
	defer cleanup()

	view := fork.View("migration_idx")
	m := proofmap.New(view)
	require.NoError(t, m.Put([]byte("k"), []byte("v")))
	view.MarkAggregated("mig1")
	view.Close()

	require.NoError(t, Sync(fork, proofMapHashOf(fork)))

	// Not visible in the default namespace's aggregator.
	_, ok, err := Get(fork, "migration_idx")
	require.NoError(t, err)
	assert.False(t, ok)

	// Visible under its own namespace aggregator.
	nsHash := NamespaceHash(fork, "mig1")
	assert.NotEqual(t, objecthash.Hash{}, nsHash)
}

func TestSyncRemovesIndexWhenHashProviderReportsGone(t *testing.T) {
	_, fork, cleanup := newTestFork(t)
	defer cleanup()

	view := fork.View("accounts")
	m := proofmap.New(view)
	require.NoError(t, m.Put([]byte("alice"), []byte("100")))
	view.MarkAggregated("")
	view.Close()
	require.NoError(t, Sync(fork, proofMapHashOf(fork)))

	_, ok, err := Get(fork, "accounts")
	require.NoError(t, err)
	require.True(t, ok)

	// Clear the index and report it gone.
	view = fork.View("accounts")
	view.Clear()
	view.MarkAggregated("")
	view.Close()

	gone := func(patch.ResolvedAddress) (objecthash.Hash, bool) { return objecthash.Hash{}, false }
	require.NoError(t, Sync(fork, gone))

	_, ok, err = Get(fork, "accounts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncWithNoChangesIsNoOp(t *testing.T) {
	_, fork, cleanup := newTestFork(t)
	defer cleanup()

	before := StateHash(fork)
	require.NoError(t, Sync(fork, proofMapHashOf(fork)))
	assert.Equal(t, before, StateHash(fork))
}
