package continuity

import (
	"strconv"

	cm "github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/common"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

// InmemStore implements the Store interface with in-memory caches. When the
// caches are full, older items are evicted, so InmemStore is not suitable
// for long running deployments where joining nodes expect to sync from the
// beginning of the ledger.
type InmemStore struct {
	cacheSize              int
	participants           *peers.PeerSet
	eventCache             *cm.LRU          //hash => *Event
	blockCache             *cm.LRU          //index => *Block
	consensusCache         *cm.RollingIndex //consensus index => hash
	totConsensusEvents     int
	participantEventsCache *ParticipantEventsCache //creator => event hashes
	recentHistory          *recentHistoryCache     //non-consensus merge events
	lastConsensusEvents    map[string]string       //[participant] => hex of last consensus event
	lastBlock              int
	topologicalIndex       int
}

// NewInmemStore creates an InmemStore for the given participants. The event
// and block caches hold at most cacheSize items and the rolling indexes at
// most 2*cacheSize items each; the recent-history cache is not bounded and
// only shrinks as events reach consensus.
func NewInmemStore(participants *peers.PeerSet, cacheSize int) *InmemStore {
	store := &InmemStore{
		cacheSize:              cacheSize,
		participants:           participants,
		eventCache:             cm.NewLRU(cacheSize, nil),
		blockCache:             cm.NewLRU(cacheSize, nil),
		consensusCache:         cm.NewRollingIndex("ConsensusCache", cacheSize),
		participantEventsCache: NewParticipantEventsCache(cacheSize),
		recentHistory:          newRecentHistoryCache(),
		lastConsensusEvents:    map[string]string{},
		lastBlock:              -1,
	}

	for _, p := range participants.Peers {
		store.participantEventsCache.AddPeer(p)
	}

	return store
}

// CacheSize implements the Store interface.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// Participants returns the store's peer set.
func (s *InmemStore) Participants() *peers.PeerSet {
	return s.participants
}

// AddParticipant registers a peer that joined after the store was created.
func (s *InmemStore) AddParticipant(p *peers.Peer) error {
	if _, ok := s.participantEventsCache.participants.ByID[p.ID()]; !ok {
		if err := s.participantEventsCache.AddPeer(p); err != nil {
			return err
		}
	}
	s.participants = s.participants.WithNewPeer(p)
	return nil
}

// GetEvent implements the Store interface.
func (s *InmemStore) GetEvent(hash string) (*Event, error) {
	res, ok := s.eventCache.Get(hash)
	if !ok {
		return nil, cm.NewStoreErr("EventCache", cm.KeyNotFound, hash)
	}
	return res.(*Event), nil
}

// SetEvent implements the Store interface.
func (s *InmemStore) SetEvent(event *Event) error {
	hash := event.Hex()
	_, err := s.GetEvent(hash)
	if err != nil && !cm.IsStore(err, cm.KeyNotFound) {
		return err
	}
	if cm.IsStore(err, cm.KeyNotFound) {
		if err := s.participantEventsCache.Set(event.Creator(), hash, event.Index()); err != nil {
			return err
		}
		event.topologicalIndex = s.topologicalIndex
		s.topologicalIndex++
		if event.IsMerge() {
			s.recentHistory.add(event)
		}
	}
	s.eventCache.Add(hash, event)
	return nil
}

// ParticipantEvents implements the Store interface.
func (s *InmemStore) ParticipantEvents(participant string, skip int) ([]string, error) {
	return s.participantEventsCache.Get(participant, skip)
}

// ParticipantEvent implements the Store interface.
func (s *InmemStore) ParticipantEvent(participant string, index int) (string, error) {
	return s.participantEventsCache.GetItem(participant, index)
}

// LastEventFrom implements the Store interface.
func (s *InmemStore) LastEventFrom(participant string) (string, error) {
	return s.participantEventsCache.GetLast(participant)
}

// KnownEvents implements the Store interface.
func (s *InmemStore) KnownEvents() map[uint32]int {
	return s.participantEventsCache.Known()
}

// LoadRecentHistory implements the Store interface.
func (s *InmemStore) LoadRecentHistory() ([]*Event, error) {
	return s.recentHistory.snapshot(), nil
}

// LoadAncestors implements the Store interface. Hashes that are not in the
// store refer to events that were trimmed or never received; they are
// skipped.
func (s *InmemStore) LoadAncestors(hashes []string) ([]*Event, error) {
	res := []*Event{}
	for _, h := range hashes {
		ev, err := s.GetEvent(h)
		if err != nil {
			if cm.IsStore(err, cm.KeyNotFound) {
				continue
			}
			return nil, err
		}
		res = append(res, ev)
	}
	return res, nil
}

// AddConsensusEvent implements the Store interface.
func (s *InmemStore) AddConsensusEvent(event *Event) error {
	hash := event.Hex()
	s.consensusCache.Set(hash, s.totConsensusEvents)
	s.totConsensusEvents++
	s.lastConsensusEvents[event.Creator()] = hash
	s.recentHistory.retract(hash)
	return nil
}

// ConsensusEvents implements the Store interface.
func (s *InmemStore) ConsensusEvents() []string {
	lastWindow, _ := s.consensusCache.GetLastWindow()
	res := make([]string, len(lastWindow))
	for i, item := range lastWindow {
		res[i] = item.(string)
	}
	return res
}

// ConsensusEventsCount implements the Store interface.
func (s *InmemStore) ConsensusEventsCount() int {
	return s.totConsensusEvents
}

// LastConsensusEventFrom returns the hash of a participant's latest
// consensus event.
func (s *InmemStore) LastConsensusEventFrom(participant string) (string, error) {
	last, ok := s.lastConsensusEvents[participant]
	if !ok {
		return "", cm.NewStoreErr("LastConsensusEvents", cm.KeyNotFound, participant)
	}
	return last, nil
}

// PendingMergeEvents returns the number of merge events that have not reached
// consensus yet.
func (s *InmemStore) PendingMergeEvents() int {
	return s.recentHistory.len()
}

// GetBlock implements the Store interface.
func (s *InmemStore) GetBlock(index int) (*Block, error) {
	res, ok := s.blockCache.Get(index)
	if !ok {
		return nil, cm.NewStoreErr("BlockCache", cm.KeyNotFound, strconv.Itoa(index))
	}
	return res.(*Block), nil
}

// SetBlock implements the Store interface.
func (s *InmemStore) SetBlock(block *Block) error {
	index := block.Index()
	_, err := s.GetBlock(index)
	if err != nil && !cm.IsStore(err, cm.KeyNotFound) {
		return err
	}
	s.blockCache.Add(index, block)
	if index > s.lastBlock {
		s.lastBlock = index
	}
	return nil
}

// LastBlockIndex implements the Store interface.
func (s *InmemStore) LastBlockIndex() int {
	return s.lastBlock
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
