package consensus

import "sort"

// Sandbox is a deterministic, single-threaded stand-in for a network
// transport, used only by this package's own tests. It delivers every
// broadcast/send to its recipients' State.Deliver synchronously, so a test
// can drive an N-validator cluster without goroutines or real sockets.
// Grounded on original_source/exonum-node/src/sandbox/mod.rs, whose
// TestSandbox plays the identical role for the Rust node's own test suite.
type Sandbox struct {
	nodes map[ValidatorID]*State
	queue []sandboxMessage
}

type sandboxMessage struct {
	to  ValidatorID
	msg any
}

// NewSandbox builds an empty sandbox; register validators with Register.
func NewSandbox() *Sandbox {
	return &Sandbox{nodes: make(map[ValidatorID]*State)}
}

// Register associates id with the State a SandboxTransport built for it
// will deliver to.
func (sb *Sandbox) Register(id ValidatorID, s *State) {
	sb.nodes[id] = s
}

// Transport returns a Transport a State constructed with id should use;
// every message it sends or broadcasts is queued for later delivery via
// Drain.
func (sb *Sandbox) Transport(id ValidatorID) Transport {
	return &sandboxTransport{self: id, sb: sb}
}

// Drain delivers every queued message to its recipient, repeating until
// no new messages are produced (a delivered message can itself cause
// further broadcasts).
func (sb *Sandbox) Drain() error {
	for len(sb.queue) > 0 {
		m := sb.queue[0]
		sb.queue = sb.queue[1:]
		node, ok := sb.nodes[m.to]
		if !ok {
			continue
		}
		if err := node.Deliver(m.msg); err != nil {
			return err
		}
	}
	return nil
}

type sandboxTransport struct {
	self ValidatorID
	sb   *Sandbox
}

func (t *sandboxTransport) SendTo(peer ValidatorID, msg any) {
	t.sb.queue = append(t.sb.queue, sandboxMessage{to: peer, msg: msg})
}

func (t *sandboxTransport) Broadcast(msg any) {
	ids := make([]ValidatorID, 0, len(t.sb.nodes))
	for id := range t.sb.nodes {
		if id != t.self {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t.sb.queue = append(t.sb.queue, sandboxMessage{to: id, msg: msg})
	}
}
