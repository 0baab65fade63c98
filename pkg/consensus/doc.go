// Package consensus implements the round state machine that drives
// propose/prevote/precommit with byzantine quorum, round/epoch
// progression, locking, request scheduling against peers, and
// restart-from-cache recovery (spec.md §4.4).
//
// State is owned by a single validator process and touched only from its
// event loop goroutine (spec.md §5: "no re-entrant callbacks into the
// state machine"). It consumes three external collaborators through
// narrow interfaces — Transport, ServiceDispatcher, Codec — none of which
// this package implements beyond the deterministic in-memory Sandbox used
// by its own tests; wiring a real network transport or service runtime is
// explicitly out of scope (spec.md §1).
//
// Grounded on original_source/exonum-node/src/state.rs for state shape
// and transition semantics, and exonum/src/sandbox/consensus.rs plus
// exonum-node/src/sandbox/mod.rs for the S5-S7 scenario behavior this
// package's tests reproduce.
package consensus
