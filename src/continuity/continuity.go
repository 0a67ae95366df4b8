package continuity

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

/*
Consensus is the decision engine for one block height. Given any node's view
of the recent non-consensus merge events, Decide deterministically selects
the merge events that have reached consensus and derives the committed event
set and consensus proof. Decide is a pure function of its input: two nodes
with hash-equal snapshots, electors, and block height produce bitwise
identical decisions.
*/

// Decision is the outcome of a successful consensus round.
type Decision struct {
	//EventHashes are the hashes of all committed events, including the
	//regular events referenced by committed merge events, in lexicographic
	//order.
	EventHashes []string
	//ConsensusProofHashes are the hashes of the merge events that establish
	//the supermajority endorsement of each candidate, in lexicographic
	//order.
	ConsensusProofHashes []string
	//MergeEventHashes are the hashes of the decided Ys, in lexicographic
	//order.
	MergeEventHashes []string
}

// Consensus computes decisions for one ledger node at one block height. It is
// single-threaded: the caller owns the history snapshot for the duration of
// a Decide call and no other goroutine may touch it.
type Consensus struct {
	blockHeight   uint64
	electorList   []string //lexicographic order
	electorSet    map[string]bool
	supermajority int

	//electors detected as byzantine during the last Decide call, with the
	//first reason observed; reported for telemetry
	byzantine map[string]string

	logger *logrus.Entry
}

// NewConsensus creates a Consensus for the given elector set and block
// height.
func NewConsensus(electors []string, blockHeight uint64, logger *logrus.Entry) *Consensus {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	electorSet := make(map[string]bool, len(electors))
	electorList := []string{}
	for _, el := range electors {
		if !electorSet[el] {
			electorSet[el] = true
			electorList = append(electorList, el)
		}
	}
	sort.Strings(electorList)

	return &Consensus{
		blockHeight:   blockHeight,
		electorList:   electorList,
		electorSet:    electorSet,
		supermajority: TwoThirdsMajority(len(electorList)),
		byzantine:     map[string]string{},
		logger:        logger.WithField("block_height", blockHeight),
	}
}

// TwoThirdsMajority returns the supermajority threshold for n electors: n
// itself when n is at most 3, otherwise 2*(n/3)+1.
func TwoThirdsMajority(n int) int {
	if n <= 3 {
		return n
	}
	return 2*(n/3) + 1
}

// SuperMajority returns the supermajority threshold of this Consensus.
func (c *Consensus) SuperMajority() int {
	return c.supermajority
}

// ByzantineElectors returns the electors detected as byzantine during the
// last Decide call, in lexicographic order.
func (c *Consensus) ByzantineElectors() []string {
	res := make([]string, 0, len(c.byzantine))
	for el := range c.byzantine {
		res = append(res, el)
	}
	sort.Strings(res)
	return res
}

// Decide runs the decision algorithm on a history snapshot: the non-consensus
// merge events of the DAG, closed under the parent relation. It returns the
// Decision when consensus is reached, nil when no decision is possible yet
// (the caller gossips and retries later), or a MalformedHistoryError when
// the snapshot violates a structural invariant.
func (c *Consensus) Decide(history []*Event) (*Decision, error) {
	c.byzantine = map[string]string{}

	if len(history) == 0 {
		return nil, nil
	}

	s, err := newScratch(history)
	if err != nil {
		return nil, err
	}

	tails := c.buildBranches(s)

	cand := c.findCandidates(tails)
	if cand == nil {
		c.logger.WithFields(logrus.Fields{
			"events":   len(s.infos),
			"electors": len(c.electorList),
		}).Debug("no consensus: insufficient candidates")
		return nil, nil
	}

	decided, err := c.runProofProtocol(cand)
	if err != nil {
		return nil, err
	}
	if decided == nil {
		c.logger.WithField("candidates", len(cand.yByElector)).Debug("no consensus: no confirm point reached")
		return nil, nil
	}

	decision := c.buildDecision(decided, cand)

	c.logger.WithFields(logrus.Fields{
		"merge_events": len(decision.MergeEventHashes),
		"events":       len(decision.EventHashes),
		"proof":        len(decision.ConsensusProofHashes),
	}).Debug("consensus reached")

	return decision, nil
}

// markByzantine records an elector as byzantine with the first reason
// observed. Non-electors are ignored.
func (c *Consensus) markByzantine(creator string, format string, args ...interface{}) {
	if !c.electorSet[creator] {
		return
	}
	if _, ok := c.byzantine[creator]; ok {
		return
	}
	reason := fmt.Sprintf(format, args...)
	c.byzantine[creator] = reason
	c.logger.WithFields(logrus.Fields{
		"elector": creator,
		"reason":  reason,
	}).Warn("byzantine elector detected")
}
