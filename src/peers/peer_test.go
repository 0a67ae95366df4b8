package peers

import (
	"testing"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto/keys"
)

func newTestPeers(t *testing.T, n int) []*Peer {
	res := []*Peer{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		res = append(res, NewPeer(keys.PublicKeyHex(&key.PublicKey), "addr", ""))
	}
	return res
}

func TestPeerID(t *testing.T) {
	peerList := newTestPeers(t, 2)

	if peerList[0].ID() == 0 {
		t.Fatal("peer ID should not be zero")
	}
	if peerList[0].ID() == peerList[1].ID() {
		t.Fatal("distinct peers should have distinct IDs")
	}
	if peerList[0].ID() != peerList[0].ID() {
		t.Fatal("peer ID should be stable")
	}
}

func TestPeerSetMaps(t *testing.T) {
	peerList := newTestPeers(t, 3)
	peerSet := NewPeerSet(peerList)

	if peerSet.Len() != 3 {
		t.Fatalf("peer set length = %d, want 3", peerSet.Len())
	}

	for _, p := range peerList {
		if peerSet.ByPubKey[p.PubKeyString()] != p {
			t.Fatalf("ByPubKey missing %s", p.PubKeyString())
		}
		if peerSet.ByID[p.ID()] != p {
			t.Fatalf("ByID missing %d", p.ID())
		}
	}
}

func TestPeerSetWithNewPeer(t *testing.T) {
	peerList := newTestPeers(t, 2)
	peerSet := NewPeerSet(peerList[:1])

	augmented := peerSet.WithNewPeer(peerList[1])
	if augmented.Len() != 2 {
		t.Fatalf("augmented length = %d, want 2", augmented.Len())
	}

	//adding an existing peer is a no-op
	same := augmented.WithNewPeer(peerList[0])
	if same.Len() != 2 {
		t.Fatalf("length after duplicate add = %d, want 2", same.Len())
	}

	removed := augmented.WithRemovedPeer(peerList[0])
	if removed.Len() != 1 {
		t.Fatalf("length after removal = %d, want 1", removed.Len())
	}
}

// The peer-set hash folds keys in lexicographic order, so it must not depend
// on the order peers were discovered in.
func TestPeerSetHashOrderIndependence(t *testing.T) {
	peerList := newTestPeers(t, 3)

	s1 := NewPeerSet(peerList)
	s2 := NewPeerSet([]*Peer{peerList[2], peerList[0], peerList[1]})

	if s1.Hex() != s2.Hex() {
		t.Fatalf("peer-set hash depends on ordering: %s != %s", s1.Hex(), s2.Hex())
	}
}
