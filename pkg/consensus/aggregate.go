package consensus

import (
	"github.com/cuemby/meridian/pkg/aggregator"
	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
)

// syncAggregator folds every index the dispatcher touched during Execute
// into the state aggregator, using the dispatcher itself as the
// HashProvider since only it knows each index's concrete type.
func syncAggregator(fork *patch.Fork, dispatcher ServiceDispatcher) error {
	return aggregator.Sync(fork, dispatcher.HashOf)
}

// aggregatorStateHash returns the block's state_hash: the aggregator's own
// object hash after syncAggregator has run.
func aggregatorStateHash(fork *patch.Fork) objecthash.Hash {
	return aggregator.StateHash(fork)
}
