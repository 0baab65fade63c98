// Package aggregator implements the state aggregator: a reserved proof
// map mapping index_name -> object_hash for every index an application
// has opted into aggregation on (spec.md §3 "state aggregator", §4.2
// "into_patch", §6 "Aggregator index").
//
// Unlike proofmap and prooflist, which only ever see raw bytes, the
// aggregator must compute the object_hash of indexes whose concrete type
// (proof map vs proof list, and the service-specific encoding of their
// values) only application code knows. Sync therefore takes a
// HashProvider callback rather than hard-coding a lookup; it owns nothing
// beyond the bookkeeping of where each namespace's aggregator map lives
// and which addresses changed since it last ran.
package aggregator
