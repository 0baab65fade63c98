/*
Package objecthash defines the canonical hashing contract shared by every
authenticated index (proofmap, prooflist, aggregator).

H is sha3-256. Every hashed structure is built by concatenating a one-byte
tag with the structure's canonical byte encoding and hashing the result, so
that a leaf, a branch, and an empty map can never collide even if their raw
payloads happen to share bytes.
*/
package objecthash
