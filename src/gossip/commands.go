package gossip

import (
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/continuity"
)

// SyncRequest is the pull half of the gossip protocol. Heads represents how
// much the requester knows about each creator's branch: a map of creator ID
// to last known index. Limit bounds the number of events in the response.
type SyncRequest struct {
	FromID uint32
	Heads  map[uint32]int
	Limit  int
}

// SyncResponse returns the events the requester lacks, in topological order
// and light-weight wire format, together with the responder's own creator
// heads. Truncated indicates that the sync limit cut the response short and
// another round is needed to converge.
type SyncResponse struct {
	FromID    uint32
	Events    []continuity.WireEvent
	Heads     map[uint32]int
	Truncated bool
}

// EagerSyncRequest is the push half of the gossip protocol, used to actively
// offer events to a peer.
type EagerSyncRequest struct {
	FromID uint32
	Events []continuity.WireEvent
}

// EagerSyncResponse indicates the success or failure of an EagerSyncRequest.
type EagerSyncResponse struct {
	FromID  uint32
	Success bool
}
