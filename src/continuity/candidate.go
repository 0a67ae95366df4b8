package continuity

/*
The candidate finder locates, for each correct elector, the pair of proof
events (X, Y) that the proof protocol votes over. X is the elector's branch
tail: the earliest of its merge events in the non-consensus history. Y is the
earliest tree descendant of X whose descendants-in-path endorse X from a
supermajority of electors. The search gives up early as soon as it can prove
that no decision is possible this round.
*/

// candidates holds the X and Y proof events keyed by elector.
type candidates struct {
	xByElector map[string]*eventInfo
	yByElector map[string]*eventInfo
}

// findCandidates selects X and Y for every correct elector. It returns nil
// when fewer than a supermajority of electors have tails, Xs, or Ys.
func (c *Consensus) findCandidates(tails branches) *candidates {
	withTails := 0
	for _, el := range c.electorList {
		if len(tails[el]) > 0 {
			withTails++
		}
	}
	if withTails < c.supermajority {
		return nil
	}

	cand := &candidates{
		xByElector: map[string]*eventInfo{},
		yByElector: map[string]*eventInfo{},
	}

	for _, el := range c.electorList {
		if _, byz := c.byzantine[el]; byz {
			continue
		}
		if len(tails[el]) != 1 {
			continue
		}

		//the tail itself is X: generation 1 of the non-consensus history
		x := tails[el][0]
		x.xAncestry = buildAncestryMap(x)
		x.xDesc = newPathDescendants()

		y, forked := findDiversePedigreeMergeEvent(x, c.electorSet, c.supermajority, x.xDesc, x.xAncestry)
		if forked {
			c.markByzantine(el, "branch fork below Y")
			continue
		}
		if y == nil {
			//the branch never accumulates a supermajority of distinct
			//creators before the snapshot ends
			continue
		}

		cand.xByElector[el] = x
		cand.yByElector[el] = y
	}

	if len(cand.xByElector) < c.supermajority || len(cand.yByElector) < c.supermajority {
		return nil
	}

	return cand
}
