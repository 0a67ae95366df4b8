package continuity

import (
	cm "github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/common"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

/*******************************************************************************
ParticipantEventsCache
*******************************************************************************/

// ParticipantEventsCache is a rolling window over the event hashes created by
// each participant, ordered by creator index. Gossip uses it to answer "what
// do you have after index k" queries.
type ParticipantEventsCache struct {
	participants *peers.PeerSet
	rim          *cm.RollingIndexMap
}

// NewParticipantEventsCache creates a ParticipantEventsCache whose windows
// hold up to 2*size items.
func NewParticipantEventsCache(size int) *ParticipantEventsCache {
	return &ParticipantEventsCache{
		participants: peers.NewPeerSet([]*peers.Peer{}),
		rim:          cm.NewRollingIndexMap("ParticipantEvents", size),
	}
}

// AddPeer registers a new participant.
func (pec *ParticipantEventsCache) AddPeer(peer *peers.Peer) error {
	pec.participants = pec.participants.WithNewPeer(peer)
	return pec.rim.AddKey(peer.ID())
}

func (pec *ParticipantEventsCache) participantID(participant string) (uint32, error) {
	peer, ok := pec.participants.ByPubKey[participant]
	if !ok {
		return 0, cm.NewStoreErr("ParticipantEvents", cm.UnknownParticipant, participant)
	}
	return peer.ID(), nil
}

// Get returns a participant's event hashes with index greater than skipIndex.
func (pec *ParticipantEventsCache) Get(participant string, skipIndex int) ([]string, error) {
	id, err := pec.participantID(participant)
	if err != nil {
		return []string{}, err
	}

	pe, err := pec.rim.Get(id, skipIndex)
	if err != nil {
		return []string{}, err
	}

	res := make([]string, len(pe))
	for k := 0; k < len(pe); k++ {
		res[k] = pe[k].(string)
	}
	return res, nil
}

// GetItem returns a participant's event hash at a given index.
func (pec *ParticipantEventsCache) GetItem(participant string, index int) (string, error) {
	id, err := pec.participantID(participant)
	if err != nil {
		return "", err
	}

	item, err := pec.rim.GetItem(id, index)
	if err != nil {
		return "", err
	}
	return item.(string), nil
}

// GetLast returns a participant's latest event hash.
func (pec *ParticipantEventsCache) GetLast(participant string) (string, error) {
	id, err := pec.participantID(participant)
	if err != nil {
		return "", err
	}

	last, err := pec.rim.GetLast(id)
	if err != nil {
		return "", err
	}
	return last.(string), nil
}

// Set records a participant's event hash at a given index.
func (pec *ParticipantEventsCache) Set(participant string, hash string, index int) error {
	id, err := pec.participantID(participant)
	if err != nil {
		return err
	}
	return pec.rim.Set(id, hash, index)
}

// Known returns the map of participant ID to last known index: the
// creator-head map exchanged by gossip.
func (pec *ParticipantEventsCache) Known() map[uint32]int {
	return pec.rim.Known()
}

/*******************************************************************************
recentHistoryCache
*******************************************************************************/

// recentHistoryCache holds the non-consensus merge events, in insertion
// order. It is the snapshot source for Decide; committed events are
// retracted after each block.
type recentHistoryCache struct {
	order  []string
	events map[string]*Event
}

func newRecentHistoryCache() *recentHistoryCache {
	return &recentHistoryCache{
		events: map[string]*Event{},
	}
}

func (rh *recentHistoryCache) add(event *Event) {
	hash := event.Hex()
	if _, ok := rh.events[hash]; ok {
		return
	}
	rh.events[hash] = event
	rh.order = append(rh.order, hash)
}

func (rh *recentHistoryCache) retract(hash string) {
	if _, ok := rh.events[hash]; !ok {
		return
	}
	delete(rh.events, hash)
	for i, h := range rh.order {
		if h == hash {
			rh.order = append(rh.order[:i], rh.order[i+1:]...)
			break
		}
	}
}

func (rh *recentHistoryCache) snapshot() []*Event {
	res := make([]*Event, 0, len(rh.order))
	for _, h := range rh.order {
		res = append(res, rh.events[h])
	}
	return res
}

func (rh *recentHistoryCache) len() int {
	return len(rh.events)
}
