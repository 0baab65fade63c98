package consensus

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/meridian/pkg/events"
	"github.com/cuemby/meridian/pkg/log"
	"github.com/cuemby/meridian/pkg/metrics"
	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
)

// ProposeState tracks one propose's completeness: whether every referenced
// transaction is known locally, and whether it is still eligible for a
// vote (a propose referencing an already-known-invalid transaction is
// never voted for, but is kept around so precommits that reference it can
// still be recognized).
type ProposeState struct {
	Propose    Propose
	Hash       objecthash.Hash
	UnknownTxs map[objecthash.Hash]struct{}
	Valid      bool
	BlockHash  *objecthash.Hash
}

// Complete reports whether every transaction the propose references is
// known locally.
func (ps *ProposeState) Complete() bool { return len(ps.UnknownTxs) == 0 }

// BlockState holds an executed-but-not-yet-merged block's patch, kept
// around so that reaching precommit quorum can merge it without
// re-executing when this validator is the one who originally locked it.
type BlockState struct {
	BlockHash objecthash.Hash
	StateHash objecthash.Hash
	ErrorHash objecthash.Hash
	Patch     *patch.Patch
}

// IncompleteBlock tracks a block this validator saw +2/3 precommits for
// before it had the underlying propose, so it can finish committing once
// the propose (and its transactions) arrive (spec.md §4.4 "precommit
// before propose").
type IncompleteBlock struct {
	ProposeHash objecthash.Hash
	BlockHash   objecthash.Hash
}

type roundProposeKey struct {
	Round       Round
	ProposeHash objecthash.Hash
}

type roundBlockKey struct {
	Round     Round
	BlockHash objecthash.Hash
}

// State is one validator's consensus round state machine. It is not safe
// for concurrent use: every method is meant to be called from a single
// event-loop goroutine (spec.md §5).
type State struct {
	id            ValidatorID
	numValidators int
	cfg           Config

	epoch       Epoch
	height      Height
	round       Round
	lockedRound int32
	lockedHash  *objecthash.Hash
	lastHash    objecthash.Hash

	votedRounds map[Round]bool

	proposes   map[objecthash.Hash]*ProposeState
	prevotes   map[roundProposeKey]map[ValidatorID]Prevote
	precommits map[roundBlockKey]map[ValidatorID]Precommit
	blocks     map[objecthash.Hash]*BlockState
	incomplete map[objecthash.Hash]*IncompleteBlock

	pool       map[objecthash.Hash][]byte
	invalidTxs map[objecthash.Hash]struct{}

	peerStatus map[ValidatorID]Status

	requests *RequestScheduler

	db         *patch.Database
	dispatcher ServiceDispatcher
	transport  Transport
	broker     *events.Broker
	cache      *MessageCache

	log zerolog.Logger
}

// NewState constructs a validator's round state machine at genesis (height
// 0, epoch 0, round 1, unlocked).
func NewState(id ValidatorID, numValidators int, cfg Config, db *patch.Database, dispatcher ServiceDispatcher, transport Transport, broker *events.Broker, cache *MessageCache) *State {
	return &State{
		id:            id,
		numValidators: numValidators,
		cfg:           cfg,
		round:         1,
		lockedRound:   -1,
		votedRounds:   make(map[Round]bool),
		proposes:      make(map[objecthash.Hash]*ProposeState),
		prevotes:      make(map[roundProposeKey]map[ValidatorID]Prevote),
		precommits:    make(map[roundBlockKey]map[ValidatorID]Precommit),
		blocks:        make(map[objecthash.Hash]*BlockState),
		incomplete:    make(map[objecthash.Hash]*IncompleteBlock),
		pool:          make(map[objecthash.Hash][]byte),
		invalidTxs:    make(map[objecthash.Hash]struct{}),
		peerStatus:    make(map[ValidatorID]Status),
		requests:      NewRequestScheduler(),
		db:            db,
		dispatcher:    dispatcher,
		transport:     transport,
		broker:        broker,
		cache:         cache,
		log:           log.WithValidator(int(id)),
	}
}

// Accessor methods satisfying metrics.ConsensusStats.
func (s *State) Height() uint64           { return uint64(s.height) }
func (s *State) Epoch() uint64            { return uint64(s.epoch) }
func (s *State) Round() uint32            { return uint32(s.round) }
func (s *State) LockedRound() int32       { return s.lockedRound }
func (s *State) PendingRequests() map[string]int {
	return s.requests.PendingByKind()
}

// IsLeader reports whether this validator leads round at the current
// epoch.
func (s *State) IsLeader(round Round) bool {
	return Leader(s.epoch, round, s.numValidators) == s.id
}

func (s *State) quorum() int { return ByzantineQuorum(s.numValidators) }

// AddTransaction admits raw into the pool after the dispatcher's
// pre-check, rejecting it otherwise (spec.md §4.4 "transaction pool").
func (s *State) AddTransaction(hash objecthash.Hash, raw []byte) error {
	if _, ok := s.pool[hash]; ok {
		return nil
	}
	if err := s.dispatcher.PreCheck(raw); err != nil {
		s.invalidTxs[hash] = struct{}{}
		metrics.InvalidTxsTotal.Inc()
		return fmt.Errorf("consensus: transaction rejected: %w", err)
	}
	s.pool[hash] = raw
	s.requests.Cancel(RequestKey{Kind: RequestPoolTransactions, ProposeHash: hash})
	s.resolveUnknownTx(hash)
	return nil
}

func (s *State) haveTx(hash objecthash.Hash) bool {
	_, ok := s.pool[hash]
	return ok
}

// resolveUnknownTx marks hash known in every propose still waiting on it
// and reacts to any that became complete as a result.
func (s *State) resolveUnknownTx(hash objecthash.Hash) {
	var completed []*ProposeState
	for _, ps := range s.proposes {
		if _, waiting := ps.UnknownTxs[hash]; waiting {
			delete(ps.UnknownTxs, hash)
			if ps.Complete() {
				completed = append(completed, ps)
			}
		}
	}
	s.reactToCompletedProposes(completed)
}

// HandlePropose ingests an incoming propose, requesting any transactions
// it references that are not yet known, and reacts immediately if it is
// already complete.
func (s *State) HandlePropose(p Propose) error {
	if p.Epoch != s.epoch {
		metrics.ProtocolErrorsTotal.WithLabelValues("stale_epoch").Inc()
		return nil
	}
	if p.Validator != Leader(p.Epoch, p.Round, s.numValidators) {
		metrics.ProtocolErrorsTotal.WithLabelValues("wrong_leader").Inc()
		return nil
	}
	hash := p.Hash()
	if _, exists := s.proposes[hash]; exists {
		return nil
	}

	ps := s.ingestPropose(p, hash)
	if err := s.cache.Append(cacheKindPropose, p.Epoch, p.Round, encodeProposeForCache(p)); err != nil {
		return err
	}
	if ps.Complete() {
		s.reactToCompletedProposes([]*ProposeState{ps})
	}
	return nil
}

// ingestPropose records a propose's bookkeeping without voting for it.
func (s *State) ingestPropose(p Propose, hash objecthash.Hash) *ProposeState {
	ps := &ProposeState{Propose: p, Hash: hash, UnknownTxs: make(map[objecthash.Hash]struct{}), Valid: true}
	for _, txh := range p.TxHashes {
		if _, invalid := s.invalidTxs[txh]; invalid {
			ps.Valid = false
			continue
		}
		if !s.haveTx(txh) {
			ps.UnknownTxs[txh] = struct{}{}
			s.requests.Request(RequestKey{Kind: RequestProposeTransactions, ProposeHash: hash}, p.Validator, s.cfg.PeersTimeout, time.Now())
		}
	}
	s.proposes[hash] = ps
	return ps
}

// reactToCompletedProposes votes for at most one newly-completed propose
// per round, in the deterministic order sortCompleteProposes establishes.
func (s *State) reactToCompletedProposes(completed []*ProposeState) {
	for _, ps := range sortCompleteProposes(completed, s.cfg) {
		if !ps.Valid {
			continue
		}
		if s.votedRounds[ps.Propose.Round] {
			continue
		}
		s.emitPrevote(ps)
		s.tryCompleteIncomplete(ps)
	}
}

func (s *State) emitPrevote(ps *ProposeState) {
	v := Prevote{Validator: s.id, Epoch: s.epoch, Round: ps.Propose.Round, ProposeHash: ps.Hash, LockedRound: s.lockedRound}
	s.votedRounds[v.Round] = true
	if err := s.cache.Append(cacheKindPrevote, v.Epoch, v.Round, encodePrevoteForCache(v)); err != nil {
		s.log.Error().Err(err).Msg("persisting prevote to cache")
	}
	s.transport.Broadcast(v)
	s.HandlePrevote(v)
}

// HandlePrevote ingests a prevote and locks the underlying propose once
// +2/3 of the validator set has prevoted for it at a round strictly above
// the current lock.
func (s *State) HandlePrevote(v Prevote) error {
	if v.Epoch != s.epoch {
		metrics.ProtocolErrorsTotal.WithLabelValues("stale_epoch").Inc()
		return nil
	}
	key := roundProposeKey{v.Round, v.ProposeHash}
	bag := s.prevotes[key]
	if bag == nil {
		bag = make(map[ValidatorID]Prevote)
		s.prevotes[key] = bag
	}
	bag[v.Validator] = v

	if len(bag) < s.quorum() {
		return nil
	}
	if int32(v.Round) <= s.lockedRound {
		return nil
	}
	ps, ok := s.proposes[v.ProposeHash]
	if !ok || !ps.Complete() || !ps.Valid {
		s.requests.Request(RequestKey{Kind: RequestPropose, ProposeHash: v.ProposeHash}, v.Validator, s.cfg.PeersTimeout, time.Now())
		return nil
	}
	return s.lock(v.Round, ps)
}

func (s *State) lock(round Round, ps *ProposeState) error {
	bs, err := s.executeBlock(ps)
	if err != nil {
		return err
	}
	ps.BlockHash = &bs.BlockHash
	s.blocks[bs.BlockHash] = bs

	s.lockedRound = int32(round)
	h := ps.Hash
	s.lockedHash = &h

	for voter, pv := range s.prevotes[roundProposeKey{round, ps.Hash}] {
		if voter == s.id {
			continue
		}
		if err := s.cache.Append(cacheKindPrevote, pv.Epoch, pv.Round, encodePrevoteForCache(pv)); err != nil {
			return err
		}
	}

	c := Precommit{Validator: s.id, Epoch: s.epoch, Round: round, ProposeHash: ps.Hash, BlockHash: bs.BlockHash, Time: time.Now().Unix()}
	if err := s.cache.Append(cacheKindPrecommit, c.Epoch, c.Round, encodePrecommitForCache(c)); err != nil {
		return err
	}
	s.transport.Broadcast(c)

	metrics.LockedRound.Set(float64(s.lockedRound))
	s.broker.Publish(&events.Event{Type: events.EventProposeLocked, Message: fmt.Sprintf("locked round %d", round)})

	return s.HandlePrecommit(c)
}

// executeBlock runs ps's transactions through the service dispatcher and
// aggregates the resulting state hash, without merging the patch.
func (s *State) executeBlock(ps *ProposeState) (*BlockState, error) {
	fork := s.db.Fork()
	txs := make([][]byte, 0, len(ps.Propose.TxHashes))
	for _, h := range ps.Propose.TxHashes {
		txs = append(txs, s.pool[h])
	}

	errorHash, err := s.dispatcher.Execute(fork, txs)
	if err != nil {
		return nil, fmt.Errorf("consensus: service dispatcher execute: %w", err)
	}
	if err := syncAggregator(fork, s.dispatcher); err != nil {
		return nil, err
	}
	stateHash := aggregatorStateHash(fork)
	p := fork.IntoPatch()

	bh := blockHash(ps.Propose.Epoch, s.height, ps.Propose.Round, ps.Hash, stateHash, errorHash)
	return &BlockState{BlockHash: bh, StateHash: stateHash, ErrorHash: errorHash, Patch: p}, nil
}

// HandlePrecommit ingests a precommit and commits once +2/3 of the
// validator set has precommitted the same block.
func (s *State) HandlePrecommit(c Precommit) error {
	if c.Epoch != s.epoch {
		metrics.ProtocolErrorsTotal.WithLabelValues("stale_epoch").Inc()
		return nil
	}
	key := roundBlockKey{c.Round, c.BlockHash}
	bag := s.precommits[key]
	if bag == nil {
		bag = make(map[ValidatorID]Precommit)
		s.precommits[key] = bag
	}
	bag[c.Validator] = c

	if len(bag) < s.quorum() {
		return nil
	}

	ps, ok := s.proposes[c.ProposeHash]
	if !ok || !ps.Complete() {
		s.incomplete[c.BlockHash] = &IncompleteBlock{ProposeHash: c.ProposeHash, BlockHash: c.BlockHash}
		s.requests.Request(RequestKey{Kind: RequestPropose, ProposeHash: c.ProposeHash}, c.Validator, s.cfg.PeersTimeout, time.Now())
		return nil
	}
	return s.commit(ps, c.BlockHash)
}

// tryCompleteIncomplete finishes committing a block that reached precommit
// quorum before its propose was locally complete.
func (s *State) tryCompleteIncomplete(ps *ProposeState) {
	for bh, ib := range s.incomplete {
		if ib.ProposeHash != ps.Hash {
			continue
		}
		delete(s.incomplete, bh)
		if err := s.commit(ps, bh); err != nil {
			s.log.Error().Err(err).Msg("completing precommit-before-propose block")
		}
	}
}

// commit merges the agreed block's patch and advances height/epoch/round.
func (s *State) commit(ps *ProposeState, agreedBlockHash objecthash.Hash) error {
	bs, ok := s.blocks[agreedBlockHash]
	if !ok {
		computed, err := s.executeBlock(ps)
		if err != nil {
			return err
		}
		if computed.BlockHash != agreedBlockHash {
			panic(fmt.Sprintf("consensus: locally computed block hash %x disagrees with quorum-agreed hash %x", computed.BlockHash, agreedBlockHash))
		}
		bs = computed
	}

	if err := s.db.Merge(bs.Patch); err != nil {
		return fmt.Errorf("consensus: merging committed block: %w", err)
	}

	if !ps.Propose.Skip {
		s.height++
		s.lastHash = agreedBlockHash
	}
	s.epoch++
	s.round = 1
	s.lockedRound = -1
	s.lockedHash = nil
	s.votedRounds = make(map[Round]bool)
	s.proposes = make(map[objecthash.Hash]*ProposeState)
	s.prevotes = make(map[roundProposeKey]map[ValidatorID]Prevote)
	s.precommits = make(map[roundBlockKey]map[ValidatorID]Precommit)
	s.blocks = make(map[objecthash.Hash]*BlockState)
	s.invalidTxs = make(map[objecthash.Hash]struct{})
	for _, h := range ps.Propose.TxHashes {
		delete(s.pool, h)
	}

	metrics.CurrentHeight.Set(float64(s.height))
	metrics.CurrentEpoch.Set(float64(s.epoch))
	metrics.CurrentRound.Set(float64(s.round))
	metrics.LockedRound.Set(-1)
	if !ps.Propose.Skip {
		s.broker.Publish(&events.Event{Type: events.EventBlockCommitted, Message: fmt.Sprintf("height %d", s.height)})
	}
	s.broker.Publish(&events.Event{Type: events.EventEpochAdvanced, Message: fmt.Sprintf("epoch %d", s.epoch)})

	if err := s.cache.Truncate(); err != nil {
		return fmt.Errorf("consensus: truncating message cache: %w", err)
	}

	status := Status{Validator: s.id, Epoch: s.epoch, Height: s.height, LastHash: s.lastHash, PoolSize: len(s.pool)}
	s.transport.Broadcast(status)
	return nil
}

// HandleStatus ingests a peer's heartbeat, triggering catch-up requests
// when the peer is ahead.
func (s *State) HandleStatus(st Status) {
	s.peerStatus[st.Validator] = st
	if st.Height > s.height {
		s.requests.Request(RequestKey{Kind: RequestBlockOrEpoch, Height: s.height, Epoch: s.epoch}, st.Validator, s.cfg.PeersTimeout, time.Now())
	}
}

// HandleRoundTimeout advances to the next round, re-broadcasting a locked
// prevote if this validator holds a lock, and returns the timeout to use
// for the new round (spec.md §4.4 "round timeout").
func (s *State) HandleRoundTimeout() time.Duration {
	s.round++
	metrics.CurrentRound.Set(float64(s.round))
	s.broker.Publish(&events.Event{Type: events.EventRoundAdvanced, Message: fmt.Sprintf("round %d", s.round)})

	if s.lockedHash != nil {
		ps := s.proposes[*s.lockedHash]
		if ps != nil && !s.votedRounds[s.round] {
			v := Prevote{Validator: s.id, Epoch: s.epoch, Round: s.round, ProposeHash: *s.lockedHash, LockedRound: s.lockedRound}
			s.votedRounds[s.round] = true
			s.transport.Broadcast(v)
			_ = s.HandlePrevote(v)
		}
	}
	return s.roundTimeout(s.round)
}

func (s *State) roundTimeout(round Round) time.Duration {
	if round <= 1 {
		return s.cfg.FirstRoundTimeout
	}
	growth := 1.0 + float64(round-1)*s.cfg.RoundTimeoutIncreasePct/100.0
	return time.Duration(float64(s.cfg.FirstRoundTimeout) * growth)
}

// BuildOwnPropose assembles and broadcasts a propose for the current round
// when this validator is its leader.
func (s *State) BuildOwnPropose() error {
	if !s.IsLeader(s.round) {
		return fmt.Errorf("consensus: validator %d is not leader of round %d", s.id, s.round)
	}
	txHashes := s.selectPoolTxs(s.cfg.TxsBlockLimit)
	p := Propose{Validator: s.id, Epoch: s.epoch, Round: s.round, PrevHash: s.lastHash, TxHashes: txHashes}
	if err := s.cache.Append(cacheKindPropose, p.Epoch, p.Round, encodeProposeForCache(p)); err != nil {
		return err
	}
	s.transport.Broadcast(p)
	return s.HandlePropose(p)
}

// BuildSkipPropose assembles a propose that advances the epoch without
// producing a block, used when this leader has nothing eligible to
// propose (spec.md §4.4 "Skip").
func (s *State) BuildSkipPropose() error {
	if !s.IsLeader(s.round) {
		return fmt.Errorf("consensus: validator %d is not leader of round %d", s.id, s.round)
	}
	p := Propose{Validator: s.id, Epoch: s.epoch, Round: s.round, PrevHash: s.lastHash, Skip: true}
	if err := s.cache.Append(cacheKindPropose, p.Epoch, p.Round, encodeProposeForCache(p)); err != nil {
		return err
	}
	s.transport.Broadcast(p)
	return s.HandlePropose(p)
}

// selectPoolTxs returns up to limit transaction hashes currently in the
// pool. Order is insertion-independent (map iteration), which is fine:
// every validator builds its own propose from its own pool and the
// propose's TxHashes order, not the pool's, is what other validators
// agree on.
func (s *State) selectPoolTxs(limit int) []objecthash.Hash {
	out := make([]objecthash.Hash, 0, limit)
	for h := range s.pool {
		if len(out) >= limit {
			break
		}
		out = append(out, h)
	}
	return out
}

// Recover replays the message cache, rebuilding propose/prevote/precommit
// bookkeeping and this validator's lock, and returns this validator's own
// previously-broadcast messages so the caller can rebroadcast them exactly
// once (spec.md §4.4 "restart recovery").
func (s *State) Recover(entries []CacheEntry) ([]any, error) {
	var ownOutgoing []any
	for _, e := range entries {
		switch e.Kind {
		case cacheKindPropose:
			p, err := decodeProposeFromCache(e.Raw)
			if err != nil {
				return nil, err
			}
			s.ingestPropose(p, p.Hash())
			if p.Validator == s.id {
				ownOutgoing = append(ownOutgoing, p)
			}
		case cacheKindPrevote:
			v, err := decodePrevoteFromCache(e.Raw)
			if err != nil {
				return nil, err
			}
			key := roundProposeKey{v.Round, v.ProposeHash}
			bag := s.prevotes[key]
			if bag == nil {
				bag = make(map[ValidatorID]Prevote)
				s.prevotes[key] = bag
			}
			bag[v.Validator] = v
			if v.Validator == s.id {
				s.votedRounds[v.Round] = true
				ownOutgoing = append(ownOutgoing, v)
			}
		case cacheKindPrecommit:
			c, err := decodePrecommitFromCache(e.Raw)
			if err != nil {
				return nil, err
			}
			key := roundBlockKey{c.Round, c.BlockHash}
			bag := s.precommits[key]
			if bag == nil {
				bag = make(map[ValidatorID]Precommit)
				s.precommits[key] = bag
			}
			bag[c.Validator] = c
			if c.Validator == s.id && int32(c.Round) > s.lockedRound {
				s.lockedRound = int32(c.Round)
				h := c.ProposeHash
				s.lockedHash = &h
				ownOutgoing = append(ownOutgoing, c)
			}
		}
	}
	return ownOutgoing, nil
}
