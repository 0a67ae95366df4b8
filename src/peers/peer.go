package peers

import (
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/common"
)

// Peer is a participant of the ledger network.
type Peer struct {
	NetAddr   string `json:"NetAddr"`
	PubKeyHex string `json:"PubKeyHex"`
	Moniker   string `json:"Moniker,omitempty"`

	id uint32
}

// NewPeer instantiates a new Peer.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}

	return peer
}

// ID returns a unique numeric ID for the peer, derived from its public key.
// It is used in gossip creator-head maps where full public keys would be
// wasteful.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		pubKeyBytes, err := p.PubKeyBytes()
		if err != nil {
			return 0
		}
		p.id = common.Hash32(pubKeyBytes)
	}
	return p.id
}

// PubKeyString returns the hex string representation of the peer's public
// key, as used to name event creators.
func (p *Peer) PubKeyString() string {
	return p.PubKeyHex
}

// PubKeyBytes returns the byte representation of the peer's public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

// ExcludePeer returns the list of peers with the peer at the given net
// address removed, along with its position in the original list.
func ExcludePeer(peers []*Peer, netAddr string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NetAddr != netAddr {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
