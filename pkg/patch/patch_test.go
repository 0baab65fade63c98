package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/meridian/pkg/kvstore"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	backend, err := kvstore.OpenBolt(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return NewDatabase(backend)
}

func TestViewPutGetRoundTrips(t *testing.T) {
	db := newTestDatabase(t)
	fork := db.Fork()

	v := fork.View("foo")
	v.Put([]byte("k"), []byte("v"))
	val, ok := v.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
	v.Close()
}

func TestViewReadsThroughToSnapshotAfterMerge(t *testing.T) {
	db := newTestDatabase(t)

	fork := db.Fork()
	v := fork.View("foo")
	v.Put([]byte("k"), []byte("1"))
	v.Close()
	p := fork.IntoPatch()
	require.NoError(t, db.Merge(p))
	_ = p.Close()

	fork2 := db.Fork()
	v2 := fork2.View("foo")
	val, ok := v2.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("1"), val)
	v2.Close()
}

func TestViewDeleteHidesSnapshotValue(t *testing.T) {
	db := newTestDatabase(t)

	fork := db.Fork()
	v := fork.View("foo")
	v.Put([]byte("k"), []byte("1"))
	v.Close()
	p := fork.IntoPatch()
	require.NoError(t, db.Merge(p))
	_ = p.Close()

	fork2 := db.Fork()
	v2 := fork2.View("foo")
	v2.Delete([]byte("k"))
	_, ok := v2.Get([]byte("k"))
	assert.False(t, ok)
	v2.Close()
}

func TestViewClearIgnoresSnapshot(t *testing.T) {
	db := newTestDatabase(t)

	fork := db.Fork()
	v := fork.View("foo")
	v.Put([]byte("a"), []byte("1"))
	v.Put([]byte("b"), []byte("2"))
	v.Close()
	p := fork.IntoPatch()
	require.NoError(t, db.Merge(p))
	_ = p.Close()

	fork2 := db.Fork()
	v2 := fork2.View("foo")
	v2.Clear()
	v2.Put([]byte("c"), []byte("3"))
	_, ok := v2.Get([]byte("a"))
	assert.False(t, ok)
	val, ok := v2.Get([]byte("c"))
	require.True(t, ok)
	assert.Equal(t, []byte("3"), val)
	v2.Close()
}

func TestSecondExclusiveViewPanics(t *testing.T) {
	db := newTestDatabase(t)
	fork := db.Fork()
	v1 := fork.View("foo")
	defer v1.Close()

	assert.Panics(t, func() {
		fork.View("foo")
	})
}

func TestReadonlyViewsCanCoexist(t *testing.T) {
	db := newTestDatabase(t)
	fork := db.Fork()

	r1 := fork.ReadonlyView("foo")
	r2 := fork.ReadonlyView("foo")
	defer r1.Close()
	defer r2.Close()

	assert.NotPanics(t, func() {
		r1.Get([]byte("k"))
		r2.Get([]byte("k"))
	})
}

func TestExclusiveViewPanicsWhileSharedHeld(t *testing.T) {
	db := newTestDatabase(t)
	fork := db.Fork()

	r := fork.ReadonlyView("foo")
	defer r.Close()

	assert.Panics(t, func() {
		fork.View("foo")
	})
}

func TestReadonlyViewPanicsOnWrite(t *testing.T) {
	db := newTestDatabase(t)
	fork := db.Fork()
	r := fork.ReadonlyView("foo")
	defer r.Close()

	assert.Panics(t, func() {
		r.Put([]byte("k"), []byte("v"))
	})
}

func TestFlushCheckpointSurvivesRollback(t *testing.T) {
	db := newTestDatabase(t)
	fork := db.Fork()

	v := fork.View("list")
	v.Put([]byte("1"), []byte("a"))
	v.Close()
	fork.Flush()

	v = fork.View("list")
	v.Put([]byte("2"), []byte("b"))
	v.Close()
	fork.Rollback()

	p := fork.IntoPatch()
	defer p.Close()

	_, ok := p.Get(Address("list"), []byte("1"))
	assert.True(t, ok, "changes flushed before rollback must survive")
	_, ok = p.Get(Address("list"), []byte("2"))
	assert.False(t, ok, "changes made after the last flush must be discarded by rollback")
}

func TestIteratorMergesInsertDeleteAndShadow(t *testing.T) {
	db := newTestDatabase(t)

	fork := db.Fork()
	v := fork.View("foo")
	v.Put([]byte("a"), []byte("1"))
	v.Put([]byte("c"), []byte("3"))
	v.Put([]byte("e"), []byte("5"))
	v.Close()
	p := fork.IntoPatch()
	require.NoError(t, db.Merge(p))
	_ = p.Close()

	fork2 := db.Fork()
	v2 := fork2.View("foo")
	v2.Put([]byte("b"), []byte("2"))  // insert before an existing key
	v2.Put([]byte("c"), []byte("33")) // shadow an existing key
	v2.Delete([]byte("e"))            // delete an existing key

	var got []string
	it := v2.Iterator(nil)
	for it.Next() {
		got = append(got, string(it.Key())+"="+string(it.Value()))
	}
	_ = it.Close()
	v2.Close()

	assert.Equal(t, []string{"a=1", "b=2", "c=33"}, got)
}

func TestMergeWithBackupReversesChanges(t *testing.T) {
	db := newTestDatabase(t)

	fork := db.Fork()
	v := fork.View("foo")
	v.Put([]byte{}, []byte{2})
	v.Close()
	p := fork.IntoPatch()
	backup, err := db.MergeWithBackup(p)
	require.NoError(t, err)
	defer backup.Close()
	_ = p.Close()

	snap := db.Snapshot()
	val, ok := snap.Get(Address("foo"), []byte{})
	require.True(t, ok)
	assert.Equal(t, []byte{2}, val)
	_ = snap.Close()

	require.NoError(t, db.Merge(backup))
	snap2 := db.Snapshot()
	defer snap2.Close()
	_, ok = snap2.Get(Address("foo"), []byte{})
	assert.False(t, ok, "reapplying the backup must undo the original put")
}

func TestMergeWithBackupRemembersClearedEntries(t *testing.T) {
	db := newTestDatabase(t)

	fork := db.Fork()
	v := fork.View("foo")
	v.Put([]byte{1}, []byte{2})
	v.Close()
	p := fork.IntoPatch()
	require.NoError(t, db.Merge(p))
	_ = p.Close()

	fork2 := db.Fork()
	v2 := fork2.View("foo")
	v2.Clear()
	v2.Put([]byte{3}, []byte{4})
	v2.Close()
	p2 := fork2.IntoPatch()
	backup, err := db.MergeWithBackup(p2)
	require.NoError(t, err)
	defer backup.Close()
	_ = p2.Close()

	require.NoError(t, db.Merge(backup))
	snap := db.Snapshot()
	defer snap.Close()
	val, ok := snap.Get(Address("foo"), []byte{1})
	require.True(t, ok, "clearing then backing-up-and-reverting must restore the cleared entry")
	assert.Equal(t, []byte{2}, val)
}

func TestFlushMigrationPromotesToDefaultNamespace(t *testing.T) {
	db := newTestDatabase(t)
	fork := db.Fork()

	v := fork.View("migrated_index")
	v.Put([]byte("k"), []byte("v"))
	v.MarkAggregated("my_migration")
	v.Close()

	require.NoError(t, fork.FlushMigration("my_migration"))

	changed := fork.ChangedAggregatedAddrs()
	assert.Equal(t, "", changed[Address("migrated_index")])
}

func TestRollbackMigrationClearsIndexes(t *testing.T) {
	db := newTestDatabase(t)
	fork := db.Fork()

	v := fork.View("migrated_index")
	v.Put([]byte("k"), []byte("v"))
	v.MarkAggregated("my_migration")
	v.Close()

	require.NoError(t, fork.RollbackMigration("my_migration"))

	p := fork.IntoPatch()
	defer p.Close()
	_, ok := p.Get(Address("migrated_index"), []byte("k"))
	assert.False(t, ok)
}
