package electors

import (
	"reflect"
	"testing"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto/keys"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

func newTestPeerSet(t *testing.T, n int) *peers.PeerSet {
	peerList := []*peers.Peer{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		peerList = append(peerList, peers.NewPeer(keys.PublicKeyHex(&key.PublicKey), "", ""))
	}
	return peers.NewPeerSet(peerList)
}

func TestHashSortSelectorDeterminism(t *testing.T) {
	peerSet := newTestPeerSet(t, 4)

	s1 := NewHashSortSelector(peerSet)
	s2 := NewHashSortSelector(peers.NewPeerSet(peerSet.Peers))

	for height := uint64(0); height < 5; height++ {
		e1 := s1.ElectorsForBlock(height)
		e2 := s2.ElectorsForBlock(height)
		if !reflect.DeepEqual(e1, e2) {
			t.Fatalf("selectors disagree at height %d:\n%v\n%v", height, e1, e2)
		}
		if len(e1) != 4 {
			t.Fatalf("expected 4 electors, got %d", len(e1))
		}
	}
}

func TestHashSortSelectorCoversAllPeers(t *testing.T) {
	peerSet := newTestPeerSet(t, 5)
	selector := NewHashSortSelector(peerSet)

	electorSet := map[string]bool{}
	for _, el := range selector.ElectorsForBlock(7) {
		electorSet[el] = true
	}

	for _, p := range peerSet.Peers {
		if !electorSet[p.PubKeyString()] {
			t.Fatalf("peer %s missing from elector list", p.PubKeyString())
		}
	}
}

// The rotation mixes the block height into the order, so at least one pair
// of heights should produce different orders with several peers.
func TestHashSortSelectorRotation(t *testing.T) {
	peerSet := newTestPeerSet(t, 8)
	selector := NewHashSortSelector(peerSet)

	base := selector.ElectorsForBlock(0)
	for height := uint64(1); height < 16; height++ {
		if !reflect.DeepEqual(base, selector.ElectorsForBlock(height)) {
			return
		}
	}
	t.Fatal("elector order never rotated across 16 heights")
}
