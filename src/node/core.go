package node

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/continuity"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/electors"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

// Core wraps the store and the consensus engine for one ledger node. It owns
// the node's DAG head, creates and inserts events, answers sync requests,
// and drives Decide / block assembly. Core is not thread-safe; the Node
// serializes access to it.
type Core struct {
	// validator is a wrapper around the private key controlling this node.
	validator *Validator

	store continuity.Store

	// peers is the current peer set; the elector selector derives the
	// elector list for each block height from it.
	peers    *peers.PeerSet
	selector electors.Selector

	// head is the hash of this node's latest own event; seq is its index.
	head string
	seq  int

	// treeHead is the hash of this node's latest own merge event: the tree
	// parent of the next one.
	treeHead string

	// otherHeads collects the latest merge events received from other
	// creators since the last local merge, keyed by creator. They become the
	// parents of the next local merge event.
	otherHeads map[string]string

	// selfLoaded collects this node's own regular events created since the
	// last local merge; the next merge event pulls them into the DAG.
	selfLoaded []string

	// operationPool contains operations submitted by the application that
	// have not yet been wrapped in a regular event.
	operationPool [][]byte

	logger *logrus.Entry
}

// NewCore is a factory method that returns a new Core object.
func NewCore(
	validator *Validator,
	peerSet *peers.PeerSet,
	store continuity.Store,
	logger *logrus.Entry) *Core {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	logger = logger.WithField("id", validator.ID())

	return &Core{
		validator:     validator,
		store:         store,
		peers:         peerSet,
		selector:      electors.NewHashSortSelector(peerSet),
		head:          "",
		seq:           -1,
		otherHeads:    map[string]string{},
		operationPool: [][]byte{},
		logger:        logger,
	}
}

// Validator returns the node's validator.
func (c *Core) Validator() *Validator {
	return c.validator
}

// Head returns the hash of the node's latest own event.
func (c *Core) Head() string {
	return c.head
}

// Seq returns the index of the node's latest own event.
func (c *Core) Seq() int {
	return c.seq
}

// AddOperations appends operations to the pool. They are wrapped in a
// regular event on the next merge round.
func (c *Core) AddOperations(ops [][]byte) {
	c.operationPool = append(c.operationPool, ops...)
}

// OperationPoolCount returns the number of pending operations.
func (c *Core) OperationPoolCount() int {
	return len(c.operationPool)
}

// KnownEvents returns the creator-head map to send in sync requests.
func (c *Core) KnownEvents() map[uint32]int {
	return c.store.KnownEvents()
}

// InsertEvent verifies an event and adds it to the store. Merge events from
// other creators become candidate parents for the next local merge event.
func (c *Core) InsertEvent(event *continuity.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	if ok, err := event.Verify(); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("invalid signature on event %s", event.Hex())
	}

	if err := c.store.SetEvent(event); err != nil {
		return err
	}

	if event.IsMerge() && event.Creator() != c.validator.PublicKeyHex() {
		c.otherHeads[event.Creator()] = event.Hex()
	}

	return nil
}

// ReadWireInfo converts a WireEvent to an Event, resolving the creator ID
// against the peer repertoire.
func (c *Core) ReadWireInfo(wevent continuity.WireEvent) (*continuity.Event, error) {
	peer, ok := c.peers.ByID[wevent.Body.CreatorID]
	if !ok {
		return nil, fmt.Errorf("unknown creator id %d", wevent.Body.CreatorID)
	}

	creatorBytes, err := peer.PubKeyBytes()
	if err != nil {
		return nil, err
	}

	event := continuity.NewEvent(
		wevent.Body.Type,
		wevent.Body.Operations,
		wevent.Body.Parents,
		wevent.Body.TreeParent,
		creatorBytes,
		wevent.Body.Index,
	)
	event.Signature = wevent.Signature
	event.SetWireInfo(wevent.Body.CreatorID)

	return event, nil
}

// EventDiff returns the events that a peer with the given creator-head map
// lacks, in topological order, bounded by limit. The boolean result reports
// whether the response was truncated.
func (c *Core) EventDiff(heads map[uint32]int, limit int) ([]*continuity.Event, bool, error) {
	unknown := []*continuity.Event{}

	//known maps each participant to the index of its last known event;
	//compare with the requester's to figure out what to send
	for id, ct := range c.store.KnownEvents() {
		peer, ok := c.peers.ByID[id]
		if !ok {
			continue
		}
		theirCt, ok := heads[id]
		if !ok {
			theirCt = -1
		}
		if ct <= theirCt {
			continue
		}

		participantEvents, err := c.store.ParticipantEvents(peer.PubKeyString(), theirCt)
		if err != nil {
			return nil, false, err
		}
		for _, h := range participantEvents {
			ev, err := c.store.GetEvent(h)
			if err != nil {
				return nil, false, err
			}
			unknown = append(unknown, ev)
		}
	}

	sort.Sort(continuity.ByTopologicalOrder(unknown))

	if limit > 0 && len(unknown) > limit {
		return unknown[:limit], true, nil
	}

	return unknown, false, nil
}

// Sync inserts a batch of wire events received from a peer, in topological
// order, then records a new local merge event over the new heads.
func (c *Core) Sync(wireEvents []continuity.WireEvent) error {
	c.logger.WithField("unknown_events", len(wireEvents)).Debug("sync")

	for _, we := range wireEvents {
		ev, err := c.ReadWireInfo(we)
		if err != nil {
			return err
		}
		if err := c.InsertEvent(ev); err != nil {
			return err
		}
	}

	return c.RecordMergeEvent()
}

// RecordMergeEvent wraps pending operations in a regular event and records a
// merge event over the heads received since the last one. Once the node has
// recorded its first event, it is a no-op when there is nothing to merge and
// no operations are pending.
func (c *Core) RecordMergeEvent() error {
	if len(c.otherHeads) == 0 && len(c.operationPool) == 0 && c.seq >= 0 {
		return nil
	}

	//wrap pending operations in a regular event first
	if len(c.operationPool) > 0 {
		var parents []string
		if c.head != "" {
			parents = []string{c.head}
		}
		regular := continuity.NewEvent(
			continuity.EventTypeRegular,
			c.operationPool,
			parents,
			"",
			c.validator.PublicKeyBytes(),
			c.seq+1,
		)
		if err := c.signAndInsertSelfEvent(regular); err != nil {
			return err
		}
		c.selfLoaded = append(c.selfLoaded, regular.Hex())
		c.operationPool = [][]byte{}
	}

	//merge the other creators' heads and our own loaded events
	otherParents := append([]string{}, c.selfLoaded...)
	for _, creator := range sortedKeys(c.otherHeads) {
		otherParents = append(otherParents, c.otherHeads[creator])
	}

	merge := continuity.NewMergeEvent(
		c.treeHead,
		otherParents,
		c.validator.PublicKeyBytes(),
		c.seq+1,
	)
	if err := c.signAndInsertSelfEvent(merge); err != nil {
		return err
	}

	c.treeHead = merge.Hex()
	c.selfLoaded = nil
	c.otherHeads = map[string]string{}

	return nil
}

func (c *Core) signAndInsertSelfEvent(event *continuity.Event) error {
	if err := event.Sign(c.validator.Key); err != nil {
		return err
	}
	event.SetWireInfo(c.validator.ID())

	if err := c.InsertEvent(event); err != nil {
		return err
	}

	c.head = event.Hex()
	c.seq = event.Index()

	return nil
}

// RunConsensus invokes the decision algorithm on the recent history and, on
// a decision, assembles, signs and persists the next block, then retracts
// the committed events from the recent-history cache. It returns the new
// block, or nil when no consensus was reached.
func (c *Core) RunConsensus() (*continuity.Block, error) {
	blockIndex := c.store.LastBlockIndex() + 1
	blockHeight := uint64(blockIndex)

	electorList := c.selector.ElectorsForBlock(blockHeight)

	cons := continuity.NewConsensus(electorList, blockHeight, c.logger)

	history, err := c.store.LoadRecentHistory()
	if err != nil {
		return nil, err
	}

	decision, err := cons.Decide(history)
	if err != nil {
		return nil, err
	}
	if byz := cons.ByzantineElectors(); len(byz) > 0 {
		c.logger.WithField("electors", byz).Warn("byzantine electors excluded")
	}
	if decision == nil {
		return nil, nil
	}

	committed, err := c.store.LoadAncestors(decision.EventHashes)
	if err != nil {
		return nil, err
	}

	//operations of committed regular events, in committed hash order
	operations := [][]byte{}
	for _, ev := range committed {
		if !ev.IsMerge() {
			operations = append(operations, ev.Operations()...)
		}
	}

	block, err := continuity.NewBlockFromDecision(blockIndex, c.peers, decision, operations)
	if err != nil {
		return nil, err
	}

	sig, err := block.Sign(c.validator.Key)
	if err != nil {
		return nil, err
	}
	if err := block.SetSignature(sig); err != nil {
		return nil, err
	}

	if err := c.store.SetBlock(block); err != nil {
		return nil, err
	}

	for _, ev := range committed {
		if err := c.store.AddConsensusEvent(ev); err != nil {
			return nil, err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"block_index": blockIndex,
		"events":      len(decision.EventHashes),
	}).Debug("block committed")

	return block, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
