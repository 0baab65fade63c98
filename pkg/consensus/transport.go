package consensus

import (
	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
)

// Transport delivers consensus messages to peers. Wiring an actual network
// transport (gossip, direct TCP, whatever) is out of scope (spec.md §1);
// this package only defines the shape State needs and exercises it through
// the in-memory Sandbox in this package's own tests.
type Transport interface {
	SendTo(peer ValidatorID, msg any)
	Broadcast(msg any)
}

// ServiceDispatcher executes transactions against a Fork on behalf of
// whatever application is built on top of consensus. It owns the
// transaction pre-check, block execution, and state aggregation for every
// index it touches; consensus.State treats it as an opaque collaborator
// and never inspects a Fork's contents itself (spec.md §1, "service-runtime
// dispatch implementation" out of scope).
type ServiceDispatcher interface {
	// PreCheck reports whether raw is well-formed enough to enter the pool.
	// It must not mutate any persistent state.
	PreCheck(raw []byte) error
	// Execute applies txs, in order, to fork and returns the block's error
	// commitment (e.g. a proof list of per-tx outcomes' hash). It must mark
	// every index it wants reflected in the block's state hash via
	// View.MarkAggregated before returning.
	Execute(fork *patch.Fork, txs [][]byte) (errorHash objecthash.Hash, err error)
	// HashOf supplies aggregator.Sync's HashProvider: the current object
	// hash of one of the dispatcher's own indexes, or ok=false if it no
	// longer exists.
	HashOf(addr patch.ResolvedAddress) (hash objecthash.Hash, ok bool)
}

// Codec serializes and deserializes consensus messages for a Transport.
// Out of scope beyond this interface; Sandbox exchanges Go values directly
// and never invokes a Codec.
type Codec interface {
	Encode(msg any) ([]byte, error)
	Decode(raw []byte) (any, error)
}
