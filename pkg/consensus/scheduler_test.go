package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestSchedulerNotDueYetFiresNothing(t *testing.T) {
	s := NewRequestScheduler()
	now := time.Unix(1000, 0)
	s.Request(RequestKey{Kind: RequestBlock, Height: 5}, ValidatorID(1), 2*time.Second, now)

	retries := s.Fire(now.Add(1*time.Second), 2*time.Second)
	assert.Empty(t, retries)
	assert.Equal(t, 1, s.Len())
}

func TestRequestSchedulerRetriesThenDrops(t *testing.T) {
	s := NewRequestScheduler()
	now := time.Unix(1000, 0)
	key := RequestKey{Kind: RequestBlock, Height: 5}
	s.Request(key, ValidatorID(1), time.Second, now)
	s.Inform(key, ValidatorID(2))

	retries := s.Fire(now.Add(time.Second), time.Second)
	require.Len(t, retries, 1)
	assert.Equal(t, ValidatorID(2), retries[0].Peer)
	assert.Equal(t, 1, s.Len())

	// No more known peers: the second timeout drops the request entirely.
	retries = s.Fire(now.Add(2*time.Second), time.Second)
	assert.Empty(t, retries)
	assert.Equal(t, 0, s.Len())
}

func TestRequestSchedulerCancelRemovesPendingEntry(t *testing.T) {
	s := NewRequestScheduler()
	now := time.Unix(1000, 0)
	key := RequestKey{Kind: RequestPropose}
	s.Request(key, ValidatorID(1), time.Second, now)
	require.Equal(t, 1, s.Len())

	s.Cancel(key)
	assert.Equal(t, 0, s.Len())

	retries := s.Fire(now.Add(time.Hour), time.Second)
	assert.Empty(t, retries)
}

func TestRequestSchedulerPendingByKindGroupsCorrectly(t *testing.T) {
	s := NewRequestScheduler()
	now := time.Unix(1000, 0)
	s.Request(RequestKey{Kind: RequestBlock, Height: 1}, ValidatorID(0), time.Second, now)
	s.Request(RequestKey{Kind: RequestBlock, Height: 2}, ValidatorID(0), time.Second, now)
	s.Request(RequestKey{Kind: RequestPropose}, ValidatorID(0), time.Second, now)

	byKind := s.PendingByKind()
	assert.Equal(t, 2, byKind["block"])
	assert.Equal(t, 1, byKind["propose"])
}

func TestRequestSchedulerFiresMultipleDueEntriesInOneCall(t *testing.T) {
	s := NewRequestScheduler()
	now := time.Unix(1000, 0)
	k1 := RequestKey{Kind: RequestBlock, Height: 1}
	k2 := RequestKey{Kind: RequestBlock, Height: 2}
	s.Request(k1, ValidatorID(0), time.Second, now)
	s.Inform(k1, ValidatorID(1))
	s.Request(k2, ValidatorID(0), time.Second, now)
	s.Inform(k2, ValidatorID(1))

	retries := s.Fire(now.Add(time.Second), time.Second)
	assert.Len(t, retries, 2)
}
