package electors

import (
	"encoding/binary"
	"sort"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

// Selector supplies the elector set for a block height. Implementations must
// be deterministic: a pure function of the block height and the ledger's
// cryptographic state, returning the same list on every honest node.
type Selector interface {
	ElectorsForBlock(blockHeight uint64) []string
}

// HashSortSelector selects all peers as electors, ordered by the hash of
// their public key mixed with the block height. The mixing rotates the
// nominal order every block while remaining identical on all nodes.
type HashSortSelector struct {
	peerSet *peers.PeerSet
}

// NewHashSortSelector creates a HashSortSelector over a peer set.
func NewHashSortSelector(peerSet *peers.PeerSet) *HashSortSelector {
	return &HashSortSelector{peerSet: peerSet}
}

// ElectorsForBlock implements the Selector interface.
func (s *HashSortSelector) ElectorsForBlock(blockHeight uint64) []string {
	heightBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(heightBytes, blockHeight)

	type ranked struct {
		pubKey string
		rank   string
	}

	rankedPeers := make([]ranked, 0, s.peerSet.Len())
	for _, pubKey := range s.peerSet.SortedPubKeys() {
		keyBytes, err := s.peerSet.ByPubKey[pubKey].PubKeyBytes()
		if err != nil {
			continue
		}
		rank := crypto.SHA256(append(keyBytes, heightBytes...))
		rankedPeers = append(rankedPeers, ranked{pubKey: pubKey, rank: string(rank)})
	}

	sort.Slice(rankedPeers, func(i, j int) bool {
		return rankedPeers[i].rank < rankedPeers[j].rank
	})

	res := make([]string, len(rankedPeers))
	for i, r := range rankedPeers {
		res[i] = r.pubKey
	}
	return res
}
