package consensus

// Epoch counts consensus rounds-to-agreement attempts that do not
// necessarily produce a new block (a Skip propose advances the epoch
// without advancing Height). Height counts committed blocks. Round resets
// to 1 on every epoch advance (spec.md §4.4).
type Epoch uint64
type Height uint64
type Round uint32

// ValidatorID indexes into the validator set, 0-based.
type ValidatorID int

// ByzantineQuorum returns the minimum number of validators, out of n, that
// must agree for the agreement to be safe against up to f = (n-1)/3
// byzantine validators: n - f (spec.md §4.4 "quorum").
func ByzantineQuorum(n int) int {
	return n - (n-1)/3
}

// MaxFaulty returns f, the maximum number of byzantine validators tolerated
// among n.
func MaxFaulty(n int) int {
	return (n - 1) / 3
}

// Leader returns the validator responsible for proposing at (epoch, round):
// round-robin over the validator set, reseeded every epoch so a validator
// that repeatedly fails to propose does not monopolize every round
// (spec.md §4.4 "leader selection").
func Leader(epoch Epoch, round Round, numValidators int) ValidatorID {
	return ValidatorID((uint64(epoch) + uint64(round)) % uint64(numValidators))
}
