// Package prooflist implements the Merkle Proof List: an append-only
// ordered sequence whose root hash commits to every element, with compact
// inclusion proofs against that root.
//
// Internally the list is a conceptual complete binary tree over the
// element array (spec.md §9: "prefer storing the array ... no pointer
// graph is needed"). A missing right sibling at any level — which happens
// whenever the element count at that level is odd — is substituted with
// the zero hash, per spec.md §3.
package prooflist
