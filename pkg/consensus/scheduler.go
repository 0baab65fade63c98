package consensus

import (
	"container/heap"
	"time"

	"github.com/cuemby/meridian/pkg/objecthash"
)

// RequestKind enumerates the data a validator can be missing and request
// from peers (spec.md §4.4 "request scheduler").
type RequestKind int

const (
	RequestPropose RequestKind = iota
	RequestProposeTransactions
	RequestPoolTransactions
	RequestBlockTransactions
	RequestPrevotes
	RequestBlock
	RequestBlockOrEpoch
)

func (k RequestKind) String() string {
	switch k {
	case RequestPropose:
		return "propose"
	case RequestProposeTransactions:
		return "propose_transactions"
	case RequestPoolTransactions:
		return "pool_transactions"
	case RequestBlockTransactions:
		return "block_transactions"
	case RequestPrevotes:
		return "prevotes"
	case RequestBlock:
		return "block"
	case RequestBlockOrEpoch:
		return "block_or_epoch"
	default:
		return "unknown"
	}
}

// RequestKey identifies one outstanding request. Only the fields relevant
// to Kind are meaningful; the rest are left zero.
type RequestKey struct {
	Kind        RequestKind
	ProposeHash objecthash.Hash
	Round       Round
	Height      Height
	Epoch       Epoch
}

// RetryRequest is returned by Fire for every request whose timeout elapsed
// and that still has a peer left to try.
type RetryRequest struct {
	Key     RequestKey
	Peer    ValidatorID
	Retries int
}

type pendingRequest struct {
	key    RequestKey
	peers  []ValidatorID
	fireAt time.Time
	index  int
}

// RequestScheduler tracks outstanding requests and, on timeout, rotates to
// the next known informant, dropping the request once every known peer has
// been tried (spec.md §4.4: "On each retry the current peer is removed;
// if the known-peers set empties, the request is dropped").
type RequestScheduler struct {
	pending map[RequestKey]*pendingRequest
	heap    requestHeap
}

func NewRequestScheduler() *RequestScheduler {
	return &RequestScheduler{pending: make(map[RequestKey]*pendingRequest)}
}

// Request registers peer as a candidate to ask for key's data, due back in
// timeout. If key is already pending, peer is appended as a fallback
// informant without resetting the existing timer.
func (s *RequestScheduler) Request(key RequestKey, peer ValidatorID, timeout time.Duration, now time.Time) {
	if pr, ok := s.pending[key]; ok {
		pr.peers = append(pr.peers, peer)
		return
	}
	pr := &pendingRequest{key: key, peers: []ValidatorID{peer}, fireAt: now.Add(timeout)}
	s.pending[key] = pr
	heap.Push(&s.heap, pr)
}

// Inform records peer as a known informant for key without starting a new
// request, used when a peer is observed to have the data before there is a
// reason to ask for it.
func (s *RequestScheduler) Inform(key RequestKey, peer ValidatorID) {
	if pr, ok := s.pending[key]; ok {
		pr.peers = append(pr.peers, peer)
	}
}

// Cancel removes key's pending request: its data has been received.
func (s *RequestScheduler) Cancel(key RequestKey) {
	pr, ok := s.pending[key]
	if !ok {
		return
	}
	delete(s.pending, key)
	if pr.index >= 0 && pr.index < len(s.heap) {
		heap.Remove(&s.heap, pr.index)
	}
}

// Fire pops every request due by now and, for each, drops the peer just
// tried and either reschedules against the next known peer or drops the
// request entirely if none remain.
func (s *RequestScheduler) Fire(now time.Time, timeout time.Duration) []RetryRequest {
	var retries []RetryRequest
	for len(s.heap) > 0 && !s.heap[0].fireAt.After(now) {
		pr := heap.Pop(&s.heap).(*pendingRequest)
		if len(pr.peers) == 0 {
			delete(s.pending, pr.key)
			continue
		}
		pr.peers = pr.peers[1:]
		if len(pr.peers) == 0 {
			delete(s.pending, pr.key)
			continue
		}
		pr.fireAt = now.Add(timeout)
		heap.Push(&s.heap, pr)
		retries = append(retries, RetryRequest{Key: pr.key, Peer: pr.peers[0], Retries: len(pr.peers)})
	}
	return retries
}

// Len reports the number of distinct outstanding requests.
func (s *RequestScheduler) Len() int { return len(s.pending) }

// PendingByKind groups the outstanding request count by kind, for
// metrics.ConsensusStats.PendingRequests.
func (s *RequestScheduler) PendingByKind() map[string]int {
	out := make(map[string]int)
	for key := range s.pending {
		out[key.Kind.String()]++
	}
	return out
}

type requestHeap []*pendingRequest

func (h requestHeap) Len() int            { return len(h) }
func (h requestHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h requestHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *requestHeap) Push(x interface{}) {
	pr := x.(*pendingRequest)
	pr.index = len(*h)
	*h = append(*h, pr)
}
func (h *requestHeap) Pop() interface{} {
	old := *h
	n := len(old)
	pr := old[n-1]
	old[n-1] = nil
	pr.index = -1
	*h = old[:n-1]
	return pr
}
