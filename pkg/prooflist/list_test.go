package prooflist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/meridian/pkg/kvstore"
	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
)

func newTestList(t *testing.T) (*List, func()) {
	t.Helper()
	backend, err := kvstore.OpenBolt(t.TempDir())
	require.NoError(t, err)
	db := patch.NewDatabase(backend)
	fork := db.Fork()
	v := fork.View("list")
	l := New(v)
	return l, func() {
		v.Close()
		_ = backend.Close()
	}
}

func TestPushAndGetRoundTrip(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	l.Push([]byte("a"))
	l.Push([]byte("b"))
	l.Push([]byte("c"))

	require.Equal(t, 3, l.Len())

	v, ok := l.Get(0)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), v)

	v, ok = l.Get(2)
	require.True(t, ok)
	assert.Equal(t, []byte("c"), v)

	_, ok = l.Get(3)
	assert.False(t, ok)
}

func TestEmptyListHasCanonicalHash(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	assert.Equal(t, objecthash.ListRootHash(objecthash.EmptyListInner), l.ObjectHash())
}

func TestObjectHashDependsOnlyOnContent(t *testing.T) {
	l1, cleanup1 := newTestList(t)
	defer cleanup1()
	l2, cleanup2 := newTestList(t)
	defer cleanup2()

	for _, v := range []string{"x", "y", "z"} {
		l1.Push([]byte(v))
	}
	for _, v := range []string{"x", "y", "z"} {
		l2.Push([]byte(v))
	}

	assert.Equal(t, l1.ObjectHash(), l2.ObjectHash())
}

func TestObjectHashChangesWithContent(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	empty := l.ObjectHash()
	l.Push([]byte("one"))
	one := l.ObjectHash()
	assert.NotEqual(t, empty, one)

	l.Push([]byte("two"))
	two := l.ObjectHash()
	assert.NotEqual(t, one, two)
}

func TestTruncateDropsTrailingElements(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		l.Push([]byte{byte(i)})
	}
	require.NoError(t, l.Truncate(2))

	assert.Equal(t, 2, l.Len())
	_, ok := l.Get(2)
	assert.False(t, ok)

	v, ok := l.Get(1)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, v)
}

func TestTruncateRejectsGrowth(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	l.Push([]byte("a"))
	assert.Error(t, l.Truncate(5))
}

func TestClearEmptiesTheList(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	for i := 0; i < 4; i++ {
		l.Push([]byte{byte(i)})
	}
	l.Clear()

	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Iter())
	assert.Equal(t, objecthash.ListRootHash(objecthash.EmptyListInner), l.ObjectHash())
}

func TestIterReturnsElementsInOrder(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	values := []string{"one", "two", "three", "four", "five"}
	for _, v := range values {
		l.Push([]byte(v))
	}

	got := l.Iter()
	require.Len(t, got, len(values))
	for i, v := range values {
		assert.Equal(t, []byte(v), got[i])
	}
}

// TestProofSingleElement covers a one-element list: no siblings needed,
// the leaf hash itself is the tree's only node.
func TestProofSingleElement(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	l.Push([]byte("only"))
	root := l.ObjectHash()

	proof, err := l.GetProof(0)
	require.NoError(t, err)
	assert.Empty(t, proof.Siblings)

	value, found, err := VerifyListProof(proof, root)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("only"), value)
}

// TestProofOddLengthUsesZeroSibling covers a list whose size is odd, so
// the last element's path includes at least one missing-sibling level.
func TestProofOddLengthUsesZeroSibling(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	for _, v := range []string{"a", "b", "c"} {
		l.Push([]byte(v))
	}
	root := l.ObjectHash()

	proof, err := l.GetProof(2)
	require.NoError(t, err)

	value, found, err := VerifyListProof(proof, root)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("c"), value)
}

func TestProofVerifiesEveryElementInLargerList(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	n := 13
	for i := 0; i < n; i++ {
		l.Push([]byte{byte(i)})
	}
	root := l.ObjectHash()

	for i := 0; i < n; i++ {
		proof, err := l.GetProof(i)
		require.NoError(t, err)

		value, found, err := VerifyListProof(proof, root)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte{byte(i)}, value)
	}
}

func TestVerifyRejectsWrongRoot(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	l.Push([]byte("a"))
	l.Push([]byte("b"))

	proof, err := l.GetProof(0)
	require.NoError(t, err)

	var wrongRoot objecthash.Hash
	wrongRoot[0] = 0xFF

	_, _, err = VerifyListProof(proof, wrongRoot)
	assert.ErrorIs(t, err, ErrRootMismatch)
}

func TestVerifyRejectsTamperedValue(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	l.Push([]byte("a"))
	l.Push([]byte("b"))
	root := l.ObjectHash()

	proof, err := l.GetProof(0)
	require.NoError(t, err)
	proof.Value = []byte("tampered")

	_, _, err = VerifyListProof(proof, root)
	assert.ErrorIs(t, err, ErrRootMismatch)
}

func TestGetProofRejectsOutOfRangeIndex(t *testing.T) {
	l, cleanup := newTestList(t)
	defer cleanup()

	l.Push([]byte("a"))

	_, err := l.GetProof(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}
