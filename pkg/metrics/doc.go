/*
Package metrics provides Prometheus metrics collection and exposition for the
storage and consensus core.

All metrics are registered at package init via prometheus.MustRegister and
exposed through Handler() for scraping.

# Metrics catalog

Storage / patch:

  - meridian_merge_duration_seconds (histogram): Database.Merge/MergeSync latency.
  - meridian_patch_entries_total (counter): per-address entries applied across merges.
  - meridian_borrow_conflicts_total{address} (counter): fatal working-patch borrow conflicts.

Authenticated indexes:

  - meridian_proofmap_nodes{index} (gauge): set by Collector to Len() of every
    registered index (entry count for a proof map, element count for a proof list).
  - meridian_prooflist_length{index} (gauge): entry count per proof list; Collector
    does not set it.
  - meridian_proof_verifications_total{kind,outcome} (counter).

Consensus:

  - meridian_round_duration_seconds (histogram)
  - meridian_height, meridian_epoch, meridian_round, meridian_locked_round (gauges)
  - meridian_pending_requests{kind} (gauge)
  - meridian_request_retries_total{kind} (counter)
  - meridian_protocol_errors_total{reason} (counter)
  - meridian_invalid_txs_total (counter)

# Usage

	timer := metrics.NewTimer()
	err := db.Merge(patch)
	timer.ObserveDuration(metrics.MergeDuration)

Timer.ObserveDurationVec supports label values for vector histograms.

# Design patterns

All metrics are package-level variables registered once at init; there is no
runtime registration and no global mutable state beyond the Prometheus
registry itself, matching the rest of this module's "no global mutable state
in the core" rule (the registry is ambient infrastructure, not core state).
*/
package metrics
