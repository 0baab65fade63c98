package consensus

import "fmt"

// Deliver routes an inbound consensus message to the matching ingest
// method. It is the single entry point EventLoop and Sandbox use so that
// adding a message type only ever needs a change here.
func (s *State) Deliver(msg any) error {
	switch m := msg.(type) {
	case Propose:
		return s.HandlePropose(m)
	case Prevote:
		return s.HandlePrevote(m)
	case Precommit:
		return s.HandlePrecommit(m)
	case Status:
		s.HandleStatus(m)
		return nil
	default:
		return fmt.Errorf("consensus: unrecognized message type %T", msg)
	}
}
