package consensus

import "time"

// FlushPoolStrategy names when a leader's locally received transactions
// become eligible for inclusion in a Propose it builds (spec.md §6
// "flush_pool_strategy"). State does not read this setting: under every
// strategy, a transaction is proposable as soon as it passes the service
// dispatcher's pre-check.
type FlushPoolStrategy int

const (
	// FlushImmediate makes every transaction eligible as soon as it passes
	// the service dispatcher's pre-check.
	FlushImmediate FlushPoolStrategy = iota
	// FlushOnTimeout names batching transactions and flushing them to the
	// pool on a fixed interval; State does not perform this batching.
	FlushOnTimeout
	// FlushOnMajority names withholding a transaction until a majority of
	// peers are also known to have it; State does not perform this
	// withholding.
	FlushOnMajority
)

// Config holds the per-node consensus tunables of spec.md §6.
type Config struct {
	// FirstRoundTimeout is the round timeout used at round 1 of an epoch.
	FirstRoundTimeout time.Duration
	// RoundTimeoutIncreasePct grows the round timeout by this percentage for
	// every round past the first within the same epoch.
	RoundTimeoutIncreasePct float64
	// ProposeTimeout delays a leader's own Propose after becoming leader, to
	// let a few more pool transactions arrive.
	ProposeTimeout time.Duration
	// StatusTimeout is the interval between Status broadcasts.
	StatusTimeout time.Duration
	// PeersTimeout is how long the request scheduler waits for a peer to
	// answer before moving on to the next known informant.
	PeersTimeout time.Duration
	// TxsBlockLimit caps the number of transactions a Propose may include.
	TxsBlockLimit int
	// MaxMessageLen caps the serialized size of any single consensus
	// message a Codec will accept.
	MaxMessageLen int
	// FlushPoolStrategy records the configured pool strategy; State does
	// not act on it (see FlushPoolStrategy).
	FlushPoolStrategy FlushPoolStrategy
	// FlushTimeout is the interval paired with FlushOnTimeout; State does
	// not read it.
	FlushTimeout time.Duration

	// StrictProposeOrdering forces sortCompleteProposes to always sort
	// (the "debug" ordering of spec.md §4.4's multi-propose note), rather
	// than only sorting below SmallBatchThreshold.
	StrictProposeOrdering bool
	// SmallBatchThreshold is the largest batch of newly-completed proposes
	// sortCompleteProposes will sort when StrictProposeOrdering is false.
	SmallBatchThreshold int
}

// DefaultConfig returns reasonable tunables for a four-validator sandbox.
func DefaultConfig() Config {
	return Config{
		FirstRoundTimeout:       1 * time.Second,
		RoundTimeoutIncreasePct: 10,
		ProposeTimeout:          50 * time.Millisecond,
		StatusTimeout:           5 * time.Second,
		PeersTimeout:            2 * time.Second,
		TxsBlockLimit:           1000,
		MaxMessageLen:           1 << 20,
		FlushPoolStrategy:       FlushImmediate,
		FlushTimeout:            250 * time.Millisecond,
		StrictProposeOrdering:   false,
		SmallBatchThreshold:     8,
	}
}
