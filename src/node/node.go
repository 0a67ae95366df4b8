package node

import (
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/config"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/continuity"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/gossip"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

// Node is the top-level object of a ledger node. It runs the worker loop:
// gossip on heartbeat, process incoming sync requests, and run consensus
// after each gossip round it initiates.
type Node struct {
	conf *config.Config

	logger *logrus.Entry

	core     *Core
	coreLock sync.Mutex

	trans gossip.Transport

	peerSelector PeerSelector
	selectorLock sync.Mutex

	controlTimer *ControlTimer

	state stateManager

	shutdownCh chan struct{}

	submitCh chan []byte
}

// NewNode instantiates a new Node.
func NewNode(conf *config.Config,
	validator *Validator,
	peerSet *peers.PeerSet,
	store continuity.Store,
	trans gossip.Transport,
) *Node {

	logger := conf.Logger().WithField("this_id", validator.ID())

	core := NewCore(validator, peerSet, store, logger)

	return &Node{
		conf:         conf,
		logger:       logger,
		core:         core,
		trans:        trans,
		peerSelector: NewRandomPeerSelector(peerSet, validator.ID()),
		controlTimer: NewRandomControlTimer(),
		shutdownCh:   make(chan struct{}),
		submitCh:     make(chan []byte, 64),
	}
}

// Init records the node's first merge event so that its branch exists before
// the first gossip round.
func (n *Node) Init() error {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.RecordMergeEvent()
}

// Run starts the node's worker loop. When gossip is false, the node only
// responds to requests, which is useful in tests.
func (n *Node) Run(gossip bool) {
	//the ControlTimer allows the background routines to control the
	//heartbeat timer
	go n.controlTimer.Run(n.conf.HeartbeatTimeout)

	//execute the transport's Listen routine
	go n.trans.Listen()

	n.state.setState(Gossiping)

	for n.state.getState() != Shutdown {
		select {
		case <-n.controlTimer.tickCh:
			if gossip && n.state.getState() == Gossiping {
				n.gossipRound()
			}
			n.resetTimer()
		case op := <-n.submitCh:
			n.coreLock.Lock()
			n.core.AddOperations([][]byte{op})
			n.coreLock.Unlock()
		case rpc := <-n.trans.Consumer():
			n.state.goFunc(func() { n.processRPC(rpc) })
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) resetTimer() {
	if !n.controlTimer.set {
		n.controlTimer.resetCh <- n.conf.HeartbeatTimeout
	}
}

// Submit queues an operation for inclusion in the ledger.
func (n *Node) Submit(op []byte) {
	select {
	case n.submitCh <- op:
	case <-n.shutdownCh:
	}
}

// Shutdown stops the node, waits for background routines, and closes the
// transport.
func (n *Node) Shutdown() {
	if n.state.getState() == Shutdown {
		return
	}

	n.logger.Debug("shutdown")

	n.state.setState(Shutdown)

	close(n.shutdownCh)

	n.controlTimer.Shutdown()

	n.state.waitRoutines()

	n.trans.Close()
}

// Suspend pauses event creation and consensus while still responding to sync
// requests.
func (n *Node) Suspend() {
	n.state.setState(Suspended)
}

// GetState returns the node's current state.
func (n *Node) GetState() State {
	return n.state.getState()
}

/*******************************************************************************
Gossip
*******************************************************************************/

// gossipRound performs one pull-push gossip exchange with a random peer,
// then runs consensus.
func (n *Node) gossipRound() {
	n.selectorLock.Lock()
	peer := n.peerSelector.Next()
	n.selectorLock.Unlock()

	if peer == nil {
		return
	}

	if err := n.pullPush(peer); err != nil {
		n.logger.WithFields(logrus.Fields{
			"target": peer.NetAddr,
			"error":  err,
		}).Debug("gossip failed")
		return
	}

	n.selectorLock.Lock()
	n.peerSelector.UpdateLast(peer.ID())
	n.selectorLock.Unlock()

	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if _, err := n.core.RunConsensus(); err != nil {
		n.logger.WithField("error", err).Error("consensus failed")
	}
}

// pullPush requests the events we lack from a peer, feeds them to the core,
// then pushes back the events the peer lacks.
func (n *Node) pullPush(peer *peers.Peer) error {
	n.coreLock.Lock()
	known := n.core.KnownEvents()
	n.coreLock.Unlock()

	args := gossip.SyncRequest{
		FromID: n.core.Validator().ID(),
		Heads:  known,
		Limit:  n.conf.SyncLimit,
	}

	var resp gossip.SyncResponse
	if err := n.trans.Sync(peer.NetAddr, &args, &resp); err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"from":      resp.FromID,
		"events":    len(resp.Events),
		"truncated": resp.Truncated,
	}).Debug("sync response")

	n.coreLock.Lock()
	err := n.core.Sync(resp.Events)
	n.coreLock.Unlock()
	if err != nil {
		return err
	}

	return n.push(peer, resp.Heads)
}

// push offers the peer the events it lacks, according to the heads it
// returned during the pull.
func (n *Node) push(peer *peers.Peer, theirHeads map[uint32]int) error {
	n.coreLock.Lock()
	diff, _, err := n.core.EventDiff(theirHeads, n.conf.SyncLimit)
	n.coreLock.Unlock()
	if err != nil {
		return err
	}

	if len(diff) == 0 {
		return nil
	}

	wireEvents := make([]continuity.WireEvent, len(diff))
	for i, ev := range diff {
		wireEvents[i] = ev.ToWire()
	}

	args := gossip.EagerSyncRequest{
		FromID: n.core.Validator().ID(),
		Events: wireEvents,
	}

	var resp gossip.EagerSyncResponse
	if err := n.trans.EagerSync(peer.NetAddr, &args, &resp); err != nil {
		return err
	}

	if !resp.Success {
		n.logger.WithField("target", peer.NetAddr).Debug("eager sync rejected")
	}

	return nil
}

/*******************************************************************************
RPC handling
*******************************************************************************/

func (n *Node) processRPC(rpc gossip.RPC) {
	switch cmd := rpc.Command.(type) {
	case *gossip.SyncRequest:
		n.processSyncRequest(rpc, cmd)
	case *gossip.EagerSyncRequest:
		n.processEagerSyncRequest(rpc, cmd)
	default:
		n.logger.WithField("command", rpc.Command).Error("unexpected RPC command")
	}
}

func (n *Node) processSyncRequest(rpc gossip.RPC, cmd *gossip.SyncRequest) {
	n.coreLock.Lock()
	diff, truncated, err := n.core.EventDiff(cmd.Heads, cmd.Limit)
	known := n.core.KnownEvents()
	n.coreLock.Unlock()

	if err != nil {
		rpc.Respond(nil, err)
		return
	}

	wireEvents := make([]continuity.WireEvent, len(diff))
	for i, ev := range diff {
		wireEvents[i] = ev.ToWire()
	}

	resp := &gossip.SyncResponse{
		FromID:    n.core.Validator().ID(),
		Events:    wireEvents,
		Heads:     known,
		Truncated: truncated,
	}
	rpc.Respond(resp, nil)
}

func (n *Node) processEagerSyncRequest(rpc gossip.RPC, cmd *gossip.EagerSyncRequest) {
	success := true

	//a suspended node creates no events, so it declines pushed events that
	//would be merged into a new local merge event
	if n.state.getState() == Suspended {
		rpc.Respond(&gossip.EagerSyncResponse{
			FromID:  n.core.Validator().ID(),
			Success: false,
		}, nil)
		return
	}

	n.coreLock.Lock()
	err := n.core.Sync(cmd.Events)
	n.coreLock.Unlock()

	if err != nil {
		n.logger.WithField("error", err).Error("eager sync failed")
		success = false
	}

	resp := &gossip.EagerSyncResponse{
		FromID:  n.core.Validator().ID(),
		Success: success,
	}
	rpc.Respond(resp, nil)
}

/*******************************************************************************
Accessors
*******************************************************************************/

// GetBlock returns a block by index.
func (n *Node) GetBlock(index int) (*continuity.Block, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.store.GetBlock(index)
}

// GetLastBlockIndex returns the index of the last committed block.
func (n *Node) GetLastBlockIndex() int {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.store.LastBlockIndex()
}

// GetPeers returns the node's peer set.
func (n *Node) GetPeers() []*peers.Peer {
	return n.peerSelector.Peers().Peers
}

// GetStats returns operational statistics for the HTTP service.
func (n *Node) GetStats() map[string]string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	return map[string]string{
		"state":            n.state.getState().String(),
		"moniker":          n.core.Validator().Moniker,
		"id":               strconv.FormatUint(uint64(n.core.Validator().ID()), 10),
		"last_block_index": strconv.Itoa(n.core.store.LastBlockIndex()),
		"consensus_events": strconv.Itoa(n.core.store.ConsensusEventsCount()),
		"pending_merges":   strconv.Itoa(n.core.store.PendingMergeEvents()),
		"pending_ops":      strconv.Itoa(n.core.OperationPoolCount()),
		"num_peers":        strconv.Itoa(n.peerSelector.Peers().Len()),
	}
}
