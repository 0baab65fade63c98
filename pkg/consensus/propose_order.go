package consensus

import (
	"bytes"
	"sort"
)

// sortCompleteProposes orders a batch of proposes that all became complete
// in the same event-loop turn before State reacts to them one at a time.
// Receiving transactions out of order can complete several proposes from
// different rounds at once; voting for more than one in the same round is
// unsafe, and the order in which ties are broken must be deterministic
// across validators for the "prevote for exactly one per round" invariant
// to hold everywhere. Highest round first (a later round supersedes an
// earlier one's propose), then propose hash ascending for a stable
// tiebreak (spec.md §4.4 "multi-propose").
//
// Sorting every batch is O(n log n) per turn; under normal load batches are
// tiny, so StrictProposeOrdering (or falling under SmallBatchThreshold)
// always sorts. Above the threshold without strict ordering, arrival order
// is kept instead to avoid a needless sort of a large burst — correctness
// doesn't require the sort, only the single-vote-per-round guard does the
// safety work, so this is purely a cost/determinism trade-off.
func sortCompleteProposes(proposes []*ProposeState, cfg Config) []*ProposeState {
	if !cfg.StrictProposeOrdering && len(proposes) > cfg.SmallBatchThreshold {
		return proposes
	}
	sorted := append([]*ProposeState(nil), proposes...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Propose.Round != sorted[j].Propose.Round {
			return sorted[i].Propose.Round > sorted[j].Propose.Round
		}
		return bytes.Compare(sorted[i].Hash[:], sorted[j].Hash[:]) < 0
	})
	return sorted
}
