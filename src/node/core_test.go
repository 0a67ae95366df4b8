package node

import (
	"testing"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/common"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/continuity"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto/keys"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

func initCores(t *testing.T, n int) []*Core {
	validators := []*Validator{}
	peerList := []*peers.Peer{}

	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		v := NewValidator(key, "")
		validators = append(validators, v)
		peerList = append(peerList, peers.NewPeer(v.PublicKeyHex(), "", ""))
	}

	peerSet := peers.NewPeerSet(peerList)

	cores := []*Core{}
	for i := 0; i < n; i++ {
		store := continuity.NewInmemStore(peerSet, 1000)
		core := NewCore(validators[i], peerSet, store, common.NewTestEntry(t))
		if err := core.RecordMergeEvent(); err != nil {
			t.Fatal(err)
		}
		cores = append(cores, core)
	}

	return cores
}

// syncCores pulls the events `to` lacks from `from` and feeds them through
// the wire representation, the way a gossip round would.
func syncCores(t *testing.T, from, to *Core) {
	t.Helper()

	diff, _, err := from.EventDiff(to.KnownEvents(), 1000)
	if err != nil {
		t.Fatal(err)
	}

	wireEvents := make([]continuity.WireEvent, len(diff))
	for i, ev := range diff {
		wireEvents[i] = ev.ToWire()
	}

	if err := to.Sync(wireEvents); err != nil {
		t.Fatal(err)
	}
}

func TestCoreInitialEvent(t *testing.T) {
	cores := initCores(t, 2)

	if cores[0].Seq() != 0 {
		t.Fatalf("seq = %d, want 0", cores[0].Seq())
	}
	if cores[0].Head() == "" {
		t.Fatal("empty head after initial merge event")
	}

	head, err := cores[0].store.GetEvent(cores[0].Head())
	if err != nil {
		t.Fatal(err)
	}
	if !head.IsMerge() {
		t.Fatal("initial event is not a merge event")
	}
	if head.TreeParent() != "" {
		t.Fatal("initial merge event should be a branch tail")
	}
}

func TestCoreSyncCreatesMergeEvent(t *testing.T) {
	cores := initCores(t, 2)

	syncCores(t, cores[1], cores[0])

	//core 0 should now hold its own tail, core 1's tail, and a new merge
	//event on top of both
	if cores[0].Seq() != 1 {
		t.Fatalf("seq = %d, want 1", cores[0].Seq())
	}

	head, err := cores[0].store.GetEvent(cores[0].Head())
	if err != nil {
		t.Fatal(err)
	}
	if !head.IsMerge() {
		t.Fatal("head is not a merge event")
	}

	foundOther := false
	for _, p := range head.Parents() {
		if p == cores[1].Head() {
			foundOther = true
		}
	}
	if !foundOther {
		t.Fatal("merge event does not reference the other core's head")
	}
}

func TestCoreOperationsEnterLedger(t *testing.T) {
	cores := initCores(t, 2)

	cores[0].AddOperations([][]byte{[]byte("op0"), []byte("op1")})
	if cores[0].OperationPoolCount() != 2 {
		t.Fatalf("pool count = %d, want 2", cores[0].OperationPoolCount())
	}

	syncCores(t, cores[1], cores[0])

	if cores[0].OperationPoolCount() != 0 {
		t.Fatal("operation pool not drained by merge round")
	}

	//the head merge event must pull the regular event into the DAG
	head, err := cores[0].store.GetEvent(cores[0].Head())
	if err != nil {
		t.Fatal(err)
	}

	foundRegular := false
	for _, p := range head.Parents() {
		ev, err := cores[0].store.GetEvent(p)
		if err != nil {
			continue
		}
		if ev.Type() == continuity.EventTypeRegular {
			foundRegular = true
			if len(ev.Operations()) != 2 {
				t.Fatalf("regular event carries %d operations, want 2", len(ev.Operations()))
			}
		}
	}
	if !foundRegular {
		t.Fatal("no regular event among the merge event's parents")
	}
}

func TestCoreConsensus(t *testing.T) {
	cores := initCores(t, 2)

	cores[0].AddOperations([][]byte{[]byte("genesis-op")})

	var block *continuity.Block
	for round := 0; round < 30; round++ {
		syncCores(t, cores[1], cores[0])
		syncCores(t, cores[0], cores[1])

		var err error
		block, err = cores[0].RunConsensus()
		if err != nil {
			t.Fatal(err)
		}
		if block != nil {
			break
		}
	}

	if block == nil {
		t.Fatal("no consensus after 30 gossip rounds")
	}

	if block.Index() != 0 {
		t.Fatalf("block index = %d, want 0", block.Index())
	}
	if len(block.EventHashes()) == 0 {
		t.Fatal("block commits no events")
	}
	if cores[0].store.LastBlockIndex() != 0 {
		t.Fatal("block not persisted")
	}
}
