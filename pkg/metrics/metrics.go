package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage / patch metrics

	MergeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_merge_duration_seconds",
			Help:    "Duration of Database.Merge and MergeSync calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	PatchEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_patch_entries_total",
			Help: "Total number of per-address entries applied across all merges",
		},
	)

	BorrowConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_borrow_conflicts_total",
			Help: "Total number of fatal working-patch borrow conflicts, by address",
		},
		[]string{"address"},
	)

	// Authenticated index metrics

	ProofMapNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meridian_proofmap_nodes",
			Help: "Len() of each index sampled by the collector, by index",
		},
		[]string{"index"},
	)

	ProofListLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meridian_prooflist_length",
			Help: "Number of entries appended to a proof list, by index",
		},
		[]string{"index"},
	)

	ProofVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_proof_verifications_total",
			Help: "Total proof verifications, by index kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Consensus metrics

	RoundDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_round_duration_seconds",
			Help:    "Wall-clock duration of a consensus round",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	CurrentHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_height",
			Help: "Current committed blockchain height",
		},
	)

	CurrentEpoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_epoch",
			Help: "Current consensus epoch",
		},
	)

	CurrentRound = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_round",
			Help: "Current consensus round within the epoch",
		},
	)

	LockedRound = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_locked_round",
			Help: "Highest round locked by this validator in the current epoch, -1 if unlocked",
		},
	)

	PendingRequestsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "meridian_pending_requests",
			Help: "Outstanding request-scheduler entries, by kind",
		},
		[]string{"kind"},
	)

	RequestRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_request_retries_total",
			Help: "Total request-scheduler retries, by kind",
		},
		[]string{"kind"},
	)

	ProtocolErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_protocol_errors_total",
			Help: "Total dropped protocol messages, by reason",
		},
		[]string{"reason"},
	)

	InvalidTxsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_invalid_txs_total",
			Help: "Total transactions rejected by the service dispatcher's pre-check",
		},
	)
)

func init() {
	prometheus.MustRegister(
		MergeDuration,
		PatchEntriesTotal,
		BorrowConflictsTotal,
		ProofMapNodes,
		ProofListLength,
		ProofVerificationsTotal,
		RoundDuration,
		CurrentHeight,
		CurrentEpoch,
		CurrentRound,
		LockedRound,
		PendingRequestsTotal,
		RequestRetriesTotal,
		ProtocolErrorsTotal,
		InvalidTxsTotal,
	)
}

// Handler returns the HTTP handler that exposes all registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
