/*
Package events provides an in-memory event broker used to notify observers of
storage and consensus state transitions.

The broker is deliberately topic-agnostic: every subscriber receives every
event and filters by EventType itself. This keeps the publish side
(consensus.State) free of subscriber bookkeeping.

# Event types

  - fork.merged: a Fork's patch was applied to the Database.
  - block.committed: a block reached precommit quorum and was applied.
  - epoch.advanced: the epoch counter advanced (via commit or skip).
  - round.advanced: the round counter advanced within an epoch.
  - propose.locked: a validator locked onto a propose after +2/3 prevotes.
  - migration.flushed: a migration namespace was promoted or rolled back.

fork.merged and migration.flushed are defined, but nothing in this module
publishes them.

# Delivery semantics

Publish hands the event to the broker's internal queue (100 events) and
blocks only while that queue is full, or until Stop is called. The broker
loop then delivers without blocking: if a subscriber's buffered channel (50
events) is full, the event is dropped for that subscriber rather than
stalling delivery. This matters because Publish is called from the
single-threaded consensus event loop (spec §5) — a slow subscriber must
never back-pressure the core.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&events.Event{Type: events.EventBlockCommitted, Message: "height=42"})
*/
package events
