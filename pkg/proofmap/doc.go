// Package proofmap implements the Merkle Patricia proof map: a binary
// radix tree over 256-bit paths whose root hash commits to every entry,
// and whose proofs let a remote party verify a single key's value (or
// absence) against that root hash without holding the whole tree.
//
// A Map is a thin layer over a patch.View: every node is just a (path ->
// node) pair written through View.Put/Get/Delete, so the tree participates
// in the same Fork/Snapshot/merge lifecycle as any other index. Two keying
// modes are supported: Hashed (the default, safe against adversarial
// key sequences) and Raw (opt-in, for keys already uniformly distributed).
//
// Ported from the bit-slice/branch-split algorithm in
// original_source/exonum/src/storage/merkle_patricia_table.rs, with the
// canonical hashing scheme supplied by package objecthash.
package proofmap
