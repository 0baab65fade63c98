/*
Package patch implements the fork/patch/snapshot lifecycle that sits
between the core's indexes and the kvstore backend (spec.md §4.1-§4.2).

A Database wraps a kvstore.Backend. Snapshot gives a point-in-time,
read-only view; Fork additionally buffers writes in memory until they are
merged back. Fork.View hands out a *View scoped to one ResolvedAddress;
obtaining a second exclusive View for the same address before the first is
Closed panics, mirroring Rust's RefCell::borrow_mut semantics (the teacher
corpus has no equivalent primitive, since nothing else in the pack embeds
a single-writer-checked-at-runtime index cache - this is a direct,
idiomatic-Go reimplementation of the working-patch borrow tracking
described in original_source/components/merkledb/src/db.rs).

Fork.Flush folds the working patch into the Fork's Patch and starts a new
working patch; Fork.Rollback discards the working patch outright. Both are
checkpoints a caller can use mid-block. Fork.IntoPatch flushes once more
and hands back an immutable Patch, which itself implements Snapshot.

Database.Merge and Database.MergeSync apply a Patch to the backend
atomically; MergeWithBackup additionally returns a Patch that, if merged
later, reverses exactly the changes just applied.
*/
package patch
