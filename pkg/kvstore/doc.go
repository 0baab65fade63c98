/*
Package kvstore adapts an embedded ordered byte-keyed store to the contract
spec.md §6 requires of the core's storage substrate: Get, Contains, an
ascending Iterator, and an all-or-nothing Merge/MergeSync.

BoltBackend is the only implementation, grounded on the teacher repository's
pkg/storage BoltDB wrapper. Where the teacher allocates one bucket per
resource type (nodes, services, ...), BoltBackend allocates one bucket per
ResolvedAddress: this is the idiomatic bbolt realization of spec.md §3's "a
byte-level DB key is formed by the pair (address, user-key)" — bbolt's named
buckets already give every address its own ordered keyspace, so there is no
need to hand-concatenate an address prefix onto every key the way a flat
LSM keyspace would require.

A reserved bucket, __DB_METADATA__, stores a one-byte schema version under
the key "version". OpenBolt writes it on first use and refuses to open a store
whose recorded version disagrees with CurrentVersion.

Snapshot pins a long-lived bbolt read transaction so the patch package's
snapshot isolation guarantee (spec.md §4.1 "a Snapshot provides read
isolation ... even if the data changes between reads") holds across
multiple calls, not just within a single Get.
*/
package kvstore
