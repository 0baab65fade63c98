package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBackend(t *testing.T) *BoltBackend {
	t.Helper()
	b, err := OpenBolt(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	b := openTestBackend(t)

	_, found, err := b.Get([]byte("addr"), []byte("k"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMergeThenGetRoundTrips(t *testing.T) {
	b := openTestBackend(t)

	err := b.Merge(Changes{{
		Address: []byte("addr"),
		Entries: []Entry{{Key: []byte("k"), Value: []byte("v")}},
	}})
	require.NoError(t, err)

	v, found, err := b.Get([]byte("addr"), []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), v)
}

func TestMergeDeleteRemovesKey(t *testing.T) {
	b := openTestBackend(t)

	require.NoError(t, b.Merge(Changes{{
		Address: []byte("addr"),
		Entries: []Entry{{Key: []byte("k"), Value: []byte("v")}},
	}}))
	require.NoError(t, b.Merge(Changes{{
		Address: []byte("addr"),
		Entries: []Entry{{Key: []byte("k"), Deleted: true}},
	}}))

	_, found, err := b.Get([]byte("addr"), []byte("k"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMergeClearedWipesAddress(t *testing.T) {
	b := openTestBackend(t)

	require.NoError(t, b.Merge(Changes{{
		Address: []byte("addr"),
		Entries: []Entry{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
		},
	}}))
	require.NoError(t, b.Merge(Changes{{
		Address: []byte("addr"),
		Cleared: true,
		Entries: []Entry{{Key: []byte("c"), Value: []byte("3")}},
	}}))

	_, found, err := b.Get([]byte("addr"), []byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := b.Get([]byte("addr"), []byte("c"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("3"), v)
}

func TestIteratorWalksAscending(t *testing.T) {
	b := openTestBackend(t)

	require.NoError(t, b.Merge(Changes{{
		Address: []byte("addr"),
		Entries: []Entry{
			{Key: []byte("b"), Value: []byte("2")},
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("c"), Value: []byte("3")},
		},
	}}))

	it, err := b.Iterator([]byte("addr"), nil)
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestIteratorFromSkipsLowerKeys(t *testing.T) {
	b := openTestBackend(t)

	require.NoError(t, b.Merge(Changes{{
		Address: []byte("addr"),
		Entries: []Entry{
			{Key: []byte("a"), Value: []byte("1")},
			{Key: []byte("b"), Value: []byte("2")},
			{Key: []byte("c"), Value: []byte("3")},
		},
	}}))

	it, err := b.Iterator([]byte("addr"), []byte("b"))
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"b", "c"}, keys)
}

func TestIteratorOverUnknownAddressIsEmpty(t *testing.T) {
	b := openTestBackend(t)

	it, err := b.Iterator([]byte("missing"), nil)
	require.NoError(t, err)
	defer it.Close()

	assert.False(t, it.Next())
}

func TestReopenAcceptsMatchingVersion(t *testing.T) {
	dir := t.TempDir()

	first, err := OpenBolt(dir)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenBolt(dir)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestSnapshotIsolatedFromLaterMerges(t *testing.T) {
	b := openTestBackend(t)

	require.NoError(t, b.Merge(Changes{{
		Address: []byte("addr"),
		Entries: []Entry{{Key: []byte("k"), Value: []byte("1")}},
	}}))

	snap, err := b.Snapshot()
	require.NoError(t, err)
	defer snap.Close()

	require.NoError(t, b.Merge(Changes{{
		Address: []byte("addr"),
		Entries: []Entry{{Key: []byte("k"), Value: []byte("2")}},
	}}))

	v, found, err := snap.Get([]byte("addr"), []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("1"), v, "snapshot must not observe merges committed after it was taken")

	v, found, err = b.Get([]byte("addr"), []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("2"), v)
}

func TestMergeRejectsReservedAddress(t *testing.T) {
	b := openTestBackend(t)

	err := b.Merge(Changes{{
		Address: MetadataAddress,
		Entries: []Entry{{Key: []byte("k"), Value: []byte("v")}},
	}})
	assert.Error(t, err)
}
