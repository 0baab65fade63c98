package consensus

import (
	"time"

	"github.com/cuemby/meridian/pkg/objecthash"
)

// EventLoop is the single goroutine that owns a State and serializes every
// source of input into it: inbound network messages, API calls (e.g. "get
// current height"), submitted transactions, and the round timer. No other
// goroutine may touch State directly, matching spec.md §5's single-writer
// requirement; grounded on pkg/events.Broker.run's single-select consumer
// loop.
type EventLoop struct {
	state   *State
	network <-chan any
	api     <-chan func(*State)
	tx      <-chan []byte
	stopCh  chan struct{}
	timer   *time.Timer
}

// NewEventLoop wires state to its three external input channels. api
// carries closures so callers can both read and act on State without a
// bespoke request/response message for every query.
func NewEventLoop(state *State, network <-chan any, api <-chan func(*State), tx <-chan []byte) *EventLoop {
	return &EventLoop{state: state, network: network, api: api, tx: tx, stopCh: make(chan struct{})}
}

// Run blocks, processing input until Stop is called.
func (l *EventLoop) Run() {
	l.timer = time.NewTimer(l.state.roundTimeout(l.state.round))
	defer l.timer.Stop()

	for {
		select {
		case msg := <-l.network:
			if err := l.state.Deliver(msg); err != nil {
				l.state.log.Error().Err(err).Msg("delivering consensus message")
			}
		case fn := <-l.api:
			fn(l.state)
		case raw := <-l.tx:
			hash := objecthash.LeafValueHash(raw)
			if err := l.state.AddTransaction(hash, raw); err != nil {
				l.state.log.Warn().Err(err).Msg("rejecting transaction")
			}
		case <-l.timer.C:
			next := l.state.HandleRoundTimeout()
			l.timer.Reset(next)
		case <-l.stopCh:
			return
		}
	}
}

// Stop ends Run's loop.
func (l *EventLoop) Stop() { close(l.stopCh) }
