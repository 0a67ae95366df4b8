package continuity

import "sort"

/*
The proof protocol is the voting state machine that converges on a single set
of Ys committed to by a supermajority of electors. Walking forward along each
elector's branch from its Y, every merge event tallies the votes observable
in its ancestry, chooses the Y-set to support, and may create a precommit for
that set. A precommit whose confirm point is reached with a supermajority
still supporting the same set decides consensus.

Safety rests on the overlap of concurrent precommits: the earliest and the
largest must intersect, and containment ensures the union of concurrent
precommits equals the largest. At most f precommits can fail before every
correct branch converges on the union.
*/

type proofProtocol struct {
	c    *Consensus
	cand *candidates

	//closed ancestry of each elector's Y; halting set for path searches
	yAncestry map[string]map[*eventInfo]bool

	//electors that produced a Y, in lexicographic order
	electorsWithY []string

	//events currently being resolved; a revisit means the snapshot has a
	//cycle that survived the structural check
	inProgress map[*eventInfo]bool
}

// tallyEntry counts the votes for one Y-set.
type tallyEntry struct {
	set   []*eventInfo
	count int
}

// runProofProtocol executes the protocol and returns the decided Y-set, or
// nil when no branch reaches a confirm point within the snapshot.
func (c *Consensus) runProofProtocol(cand *candidates) ([]*eventInfo, error) {
	p := &proofProtocol{
		c:          c,
		cand:       cand,
		yAncestry:  map[string]map[*eventInfo]bool{},
		inProgress: map[*eventInfo]bool{},
	}

	for el := range cand.yByElector {
		p.electorsWithY = append(p.electorsWithY, el)
		p.yAncestry[el] = buildAncestryMap(cand.yByElector[el])
	}
	sort.Strings(p.electorsWithY)

	p.initSupport()

	//walk each elector's branch forward from its Y; a fork or the end of
	//the snapshot terminates the branch
	for _, el := range p.electorsWithY {
		cur := p.cand.yByElector[el]
		for len(cur.treeChildren) == 1 {
			child := cur.treeChildren[0]
			decided, err := p.resolve(child)
			if decided != nil || err != nil {
				return decided, err
			}
			cur = child
		}
	}

	return nil, nil
}

// initSupport initializes every Y with the set of Ys in its own ancestry,
// itself included, and the corresponding votes.
func (p *proofProtocol) initSupport() {
	for _, el := range p.electorsWithY {
		y := p.cand.yByElector[el]

		supporting := []*eventInfo{y}
		for _, other := range p.electorsWithY {
			yOther := p.cand.yByElector[other]
			if yOther != y && p.yAncestry[el][yOther] {
				supporting = append(supporting, yOther)
			}
		}
		y.supporting = canonicalSet(supporting)

		y.votes = map[string]vote{}
		for _, yv := range y.supporting {
			y.votes[yv.creator] = vote{event: yv}
		}
		y.y = y
	}
}

// resolve computes the support of one branch event, recursively resolving the
// voting events it depends on first. It returns the decided Y-set if this
// event, or any event resolved on its behalf, fires a confirm point.
func (p *proofProtocol) resolve(e *eventInfo) ([]*eventInfo, error) {
	if e.supporting != nil {
		return nil, nil
	}
	if p.inProgress[e] {
		return nil, NewMalformedHistoryError("vote dependency cycle through event %s", e.hash)
	}
	p.inProgress[e] = true
	defer delete(p.inProgress, e)

	//only events above their creator's Y can publish support; events on a
	//forked arm that does not pass through the Y bottom out here and stay
	//unresolved
	ownBranchY := p.cand.yByElector[e.creator]
	if ownBranchY == nil || e.generation <= ownBranchY.generation || e.treeParent == nil {
		return nil, nil
	}

	if e.treeParent.supporting == nil {
		if decided, err := p.resolve(e.treeParent); decided != nil || err != nil {
			return decided, err
		}
		if e.treeParent.supporting == nil {
			return nil, nil
		}
	}

	//1. collect votes: inherit from the tree parent, then extend with the
	//voting events on the paths from each elector's Y to this event
	votes := make(map[string]vote, len(e.treeParent.votes))
	for k, v := range e.treeParent.votes {
		votes[k] = v
	}

	for _, el := range p.electorsWithY {
		yEl := p.cand.yByElector[el]
		desc := p.descendantsFor(e, el)
		findDescendantsInPath(yEl, e, desc, p.yAncestry[el])
		//every event visited between the Y and this event is a potential
		//voting event, including those on sibling branches that merge in
		for _, pe := range desc.pathEvents() {
			if pe == e {
				continue
			}
			ownY, ok := p.cand.yByElector[pe.creator]
			if !ok || pe.generation < ownY.generation {
				continue
			}
			if pe.supporting == nil {
				if decided, err := p.resolve(pe); decided != nil || err != nil {
					return decided, err
				}
				if pe.supporting == nil {
					continue
				}
			}
			p.updateVote(votes, pe)
		}
	}

	//2. tally votes by identical supporting set
	entries := p.tally(votes)

	//3. choose the next supported set: the precommit union when an
	//observable precommit exists and the union was actually voted for,
	//otherwise the union of the voters' Ys
	next := p.choose(e, votes, entries)

	//4. a support change counts as a new vote for the chosen set
	if !sameSet(e.treeParent.supporting, next.set) {
		next.count++
	}

	//5. precommit logic
	pc := e.treeParent.preCommit
	if pc != nil && !sameSet(next.set, pc.supporting) {
		//the branch abandoned the precommitted set
		if pc.confirmPoint != nil {
			pc.confirmPoint.toConfirm = nil
		}
		pc = nil
	}

	if e.toConfirm != nil && sameSet(next.set, e.toConfirm.supporting) && next.count >= p.c.supermajority {
		//this event is the confirm point of a still-valid precommit
		p.publish(e, next, votes, pc)
		return e.toConfirm.supporting, nil
	}

	if pc == nil && next.count >= p.c.supermajority {
		pc = e
		e.supporting = next.set
		cp, _ := findDiversePedigreeMergeEvent(e, p.c.electorSet, p.c.supermajority,
			newPathDescendants(), buildAncestryMap(e))
		if cp != nil {
			e.confirmPoint = cp
			cp.toConfirm = e
		}
		if cp == e {
			//with a supermajority of one the precommit confirms itself
			p.publish(e, next, votes, pc)
			return next.set, nil
		}
	}

	//6. publish
	p.publish(e, next, votes, pc)
	return nil, nil
}

// publish records the event's chosen support and registers it as its
// creator's latest vote.
func (p *proofProtocol) publish(e *eventInfo, next *tallyEntry, votes map[string]vote, pc *eventInfo) {
	e.supporting = next.set
	e.preCommit = pc
	e.y = e.treeParent.y
	votes[e.creator] = vote{event: e}
	e.votes = votes
}

// descendantsFor returns the event's memoized descendants-in-path map for one
// elector's Y, seeding it from the tree parent's map: everything recorded for
// an ancestor is on a path to this event too.
func (p *proofProtocol) descendantsFor(e *eventInfo, elector string) *pathDescendants {
	if e.yDesc == nil {
		e.yDesc = map[string]*pathDescendants{}
	}
	if desc, ok := e.yDesc[elector]; ok {
		return desc
	}
	var desc *pathDescendants
	if e.treeParent != nil && e.treeParent.yDesc != nil && e.treeParent.yDesc[elector] != nil {
		desc = e.treeParent.yDesc[elector].clone()
	} else {
		desc = newPathDescendants()
	}
	e.yDesc[elector] = desc
	return desc
}

// updateVote folds a voting event into the vote map. A newer voting event
// from the same creator replaces an older one; two distinct voting events at
// the same generation mark the creator's vote as byzantine permanently.
func (p *proofProtocol) updateVote(votes map[string]vote, pe *eventInfo) {
	cur := votes[pe.creator]
	if cur.byzantine {
		return
	}
	if cur.event == nil {
		votes[pe.creator] = vote{event: pe}
		return
	}
	if cur.event == pe {
		return
	}
	if pe.generation > cur.event.generation {
		votes[pe.creator] = vote{event: pe}
		return
	}
	if pe.generation == cur.event.generation {
		votes[pe.creator] = vote{byzantine: true}
		p.c.markByzantine(pe.creator, "two voting events at generation %d", pe.generation)
	}
}

// tally groups the resolved, non-byzantine votes by identical supporting set.
func (p *proofProtocol) tally(votes map[string]vote) []*tallyEntry {
	entries := []*tallyEntry{}
	for _, el := range sortedVoteKeys(votes) {
		v := votes[el]
		if v.byzantine || v.event == nil {
			continue
		}
		found := false
		for _, t := range entries {
			if sameSet(t.set, v.event.supporting) {
				t.count++
				found = true
				break
			}
		}
		if !found {
			entries = append(entries, &tallyEntry{set: v.event.supporting, count: 1})
		}
	}
	return entries
}

// choose picks the next supported set. When the branch carries a precommit,
// the longest supporting set among the observable precommits is preferred;
// by construction the largest precommit equals the union of all earlier
// ones. Otherwise the event supports the union of the Ys of every voter it
// observes.
func (p *proofProtocol) choose(e *eventInfo, votes map[string]vote, entries []*tallyEntry) *tallyEntry {
	if pc := e.treeParent.preCommit; pc != nil {
		union := pc.supporting
		for _, el := range sortedVoteKeys(votes) {
			v := votes[el]
			if v.event != nil && v.event.preCommit != nil && len(v.event.preCommit.supporting) > len(union) {
				union = v.event.preCommit.supporting
			}
		}
		for _, t := range entries {
			if sameSet(t.set, union) {
				return t
			}
		}
	}

	ys := []*eventInfo{}
	for _, el := range sortedVoteKeys(votes) {
		v := votes[el]
		if v.event != nil && v.event.y != nil {
			ys = append(ys, v.event.y)
		}
	}
	union := canonicalSet(ys)
	for _, t := range entries {
		if sameSet(t.set, union) {
			return t
		}
	}
	return &tallyEntry{set: union, count: 0}
}

func sortedVoteKeys(votes map[string]vote) []string {
	keys := make([]string, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
