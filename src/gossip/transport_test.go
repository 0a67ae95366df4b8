package gossip

import (
	"reflect"
	"testing"
	"time"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/continuity"
)

func TestInmemTransportSync(t *testing.T) {
	addr1, trans1 := NewInmemTransport("")
	defer trans1.Close()
	addr2, trans2 := NewInmemTransport("")
	defer trans2.Close()

	trans1.Connect(addr2, trans2)
	trans2.Connect(addr1, trans1)

	args := SyncRequest{
		FromID: 1,
		Heads:  map[uint32]int{1: 5, 2: -1},
		Limit:  100,
	}
	expectedResp := SyncResponse{
		FromID: 2,
		Events: []continuity.WireEvent{
			{
				Body: WireTestBody(),
			},
		},
		Heads:     map[uint32]int{1: 5, 2: 10},
		Truncated: false,
	}

	//listen for the request on transport 2
	go func() {
		select {
		case rpc := <-trans2.Consumer():
			req, ok := rpc.Command.(*SyncRequest)
			if !ok {
				t.Errorf("command is not a SyncRequest: %v", rpc.Command)
				return
			}
			if !reflect.DeepEqual(req, &args) {
				t.Errorf("request mismatch: %v", req)
				return
			}
			rpc.Respond(&expectedResp, nil)
		case <-time.After(200 * time.Millisecond):
			t.Error("timeout waiting for sync request")
		}
	}()

	var resp SyncResponse
	if err := trans1.Sync(addr2, &args, &resp); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(resp, expectedResp) {
		t.Fatalf("response mismatch: %v", resp)
	}
}

func WireTestBody() continuity.WireBody {
	return continuity.WireBody{
		Type:       continuity.EventTypeMerge,
		Parents:    []string{"p1", "p2"},
		TreeParent: "p1",
		CreatorID:  2,
		Index:      11,
	}
}

func TestInmemTransportDisconnect(t *testing.T) {
	addr1, trans1 := NewInmemTransport("")
	defer trans1.Close()
	addr2, trans2 := NewInmemTransport("")
	defer trans2.Close()

	trans1.Connect(addr2, trans2)

	trans1.Disconnect(addr2)

	var resp SyncResponse
	if err := trans1.Sync(addr2, &SyncRequest{FromID: 1}, &resp); err == nil {
		t.Fatal("expected an error after disconnect")
	}

	_ = addr1
}
