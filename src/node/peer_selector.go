package node

import (
	"math/rand"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

// PeerSelector decides which peer to gossip with next.
type PeerSelector interface {
	Peers() *peers.PeerSet
	UpdateLast(peerID uint32)
	Next() *peers.Peer
}

// RandomPeerSelector selects peers at random, avoiding itself and the last
// selected peer.
type RandomPeerSelector struct {
	peers           *peers.PeerSet
	selfID          uint32
	selectablePeers []*peers.Peer
	last            uint32
}

// NewRandomPeerSelector creates a RandomPeerSelector.
func NewRandomPeerSelector(peerSet *peers.PeerSet, selfID uint32) *RandomPeerSelector {
	selectablePeers := excludePeerByID(peerSet.Peers, selfID)
	return &RandomPeerSelector{
		peers:           peerSet,
		selfID:          selfID,
		selectablePeers: selectablePeers,
	}
}

// Peers implements the PeerSelector interface.
func (ps *RandomPeerSelector) Peers() *peers.PeerSet {
	return ps.peers
}

// UpdateLast implements the PeerSelector interface.
func (ps *RandomPeerSelector) UpdateLast(peerID uint32) {
	ps.last = peerID
}

// Next implements the PeerSelector interface.
func (ps *RandomPeerSelector) Next() *peers.Peer {
	selectablePeers := ps.selectablePeers

	if len(selectablePeers) == 0 {
		return nil
	}

	if len(selectablePeers) > 1 {
		selectablePeers = excludePeerByID(selectablePeers, ps.last)
	}

	return selectablePeers[rand.Intn(len(selectablePeers))]
}

func excludePeerByID(peerList []*peers.Peer, id uint32) []*peers.Peer {
	res := make([]*peers.Peer, 0, len(peerList))
	for _, p := range peerList {
		if p.ID() != id {
			res = append(res, p)
		}
	}
	return res
}
