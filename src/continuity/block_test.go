package continuity

import (
	"testing"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto/keys"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

func initBlock(t *testing.T) (*Block, []*TestNode) {
	nodes := initTestNodes(t, 3)

	peerList := []*peers.Peer{}
	for _, n := range nodes {
		peerList = append(peerList, peers.NewPeer(n.PubHex, "", ""))
	}

	decision := &Decision{
		EventHashes:          []string{"e1", "e2", "e3"},
		ConsensusProofHashes: []string{"p1", "p2"},
		MergeEventHashes:     []string{"m1", "m2", "m3"},
	}

	block, err := NewBlockFromDecision(0, peers.NewPeerSet(peerList), decision, [][]byte{[]byte("op1"), []byte("op2")})
	if err != nil {
		t.Fatal(err)
	}
	return block, nodes
}

func TestBlockSignVerify(t *testing.T) {
	block, nodes := initBlock(t)

	sig, err := block.Sign(nodes[0].Key)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := block.Verify(sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("block signature did not verify")
	}

	//a signature from a different key must not verify as the first
	//validator's
	sig2, err := block.Sign(nodes[1].Key)
	if err != nil {
		t.Fatal(err)
	}
	if sig2.ValidatorHex() == sig.ValidatorHex() {
		t.Fatal("different validators produced the same identity")
	}
}

func TestBlockSignatures(t *testing.T) {
	block, nodes := initBlock(t)

	for _, n := range nodes {
		sig, err := block.Sign(n.Key)
		if err != nil {
			t.Fatal(err)
		}
		if err := block.SetSignature(sig); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(block.GetSignatures()); got != 3 {
		t.Fatalf("block has %d signatures, want 3", got)
	}

	sig, err := block.GetSignature(keys.PublicKeyHex(&nodes[1].Key.PublicKey))
	if err != nil {
		t.Fatal(err)
	}

	ok, err := block.Verify(sig)
	if err != nil || !ok {
		t.Fatalf("retrieved signature does not verify: %v", err)
	}
}

func TestBlockBodyHashStability(t *testing.T) {
	block, _ := initBlock(t)

	h1, err := block.Body.Hash()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := block.Body.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if string(h1) != string(h2) {
		t.Fatal("canonical block body hash is not stable")
	}
}
