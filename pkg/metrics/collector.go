package metrics

import (
	"time"
)

// IndexStats is implemented by authenticated indexes that can report their
// own size on demand: proofmap.Map and prooflist.List both satisfy it.
type IndexStats interface {
	// Name identifies the index for the "index" metric label.
	Name() string
	// Len reports the index's current entry (or node) count.
	Len() int
}

// ConsensusStats is implemented by consensus.State, letting the collector
// sample round bookkeeping without importing pkg/consensus directly (which
// itself depends on this package's gauges).
type ConsensusStats interface {
	Height() uint64
	Epoch() uint64
	Round() uint32
	LockedRound() int32
	PendingRequests() map[string]int
}

// Collector periodically samples registered indexes and the consensus
// state machine into the package's gauges. It does not touch the
// event-driven metrics (merge durations, patch entries, borrow conflicts,
// proof verifications, round durations, request retries), and no other
// code in this module updates those either; Collector only covers metrics
// that are cheapest to read by polling current state.
type Collector struct {
	indexes   []IndexStats
	consensus ConsensusStats
	stopCh    chan struct{}
}

// NewCollector builds a Collector over the given indexes. consensus may be
// nil for programs that only care about storage metrics (e.g. an offline
// database inspection tool with no round state to report).
func NewCollector(consensus ConsensusStats, indexes ...IndexStats) *Collector {
	return &Collector{
		indexes:   indexes,
		consensus: consensus,
		stopCh:    make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval, sampling
// immediately before the first tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectIndexMetrics()
	c.collectConsensusMetrics()
}

func (c *Collector) collectIndexMetrics() {
	for _, idx := range c.indexes {
		ProofMapNodes.WithLabelValues(idx.Name()).Set(float64(idx.Len()))
	}
}

func (c *Collector) collectConsensusMetrics() {
	if c.consensus == nil {
		return
	}

	CurrentHeight.Set(float64(c.consensus.Height()))
	CurrentEpoch.Set(float64(c.consensus.Epoch()))
	CurrentRound.Set(float64(c.consensus.Round()))
	LockedRound.Set(float64(c.consensus.LockedRound()))

	for kind, n := range c.consensus.PendingRequests() {
		PendingRequestsTotal.WithLabelValues(kind).Set(float64(n))
	}
}
