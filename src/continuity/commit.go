package continuity

import "sort"

/*
The committer turns a decided Y-set into a Decision. Each Y is paired with
its elector's X; the committed event hashes are the closed ancestries of the
paired Xs plus every hash those ancestors list as a parent, which sweeps in
the regular events that are not present in the merge-event snapshot. The
consensus proof is the set of merge events between each X and its Y: the
endorsements that made X a candidate.
*/

// buildDecision derives the committed event hashes and the consensus proof
// hashes from the decided Y-set.
func (c *Consensus) buildDecision(decided []*eventInfo, cand *candidates) *Decision {
	committed := map[string]bool{}
	proof := map[string]bool{}

	for _, y := range decided {
		x := cand.xByElector[y.creator]
		if x == nil {
			continue
		}

		//committed: the closed ancestry of X through the snapshot's parent
		//links, plus everything those events list as parents
		for a := range buildAncestryMap(x) {
			committed[a.hash] = true
			for _, ph := range a.ev.Parents() {
				committed[ph] = true
			}
		}

		//proof: the flattened descendants-in-path from X to Y, accumulated
		//during the Y search; with a supermajority of one the proof is X
		//itself, preserving the continuity of a single elector into the
		//next block
		if c.supermajority == 1 {
			proof[x.hash] = true
			continue
		}
		for _, e := range flattenDescendants(x, x.xDesc) {
			proof[e.hash] = true
		}
	}

	return &Decision{
		EventHashes:          sortedHashes(committed),
		ConsensusProofHashes: sortedHashes(proof),
		MergeEventHashes:     hashesOf(decided),
	}
}

func sortedHashes(set map[string]bool) []string {
	res := make([]string, 0, len(set))
	for h := range set {
		res = append(res, h)
	}
	sort.Strings(res)
	return res
}

func hashesOf(events []*eventInfo) []string {
	res := make([]string, 0, len(events))
	for _, e := range events {
		res = append(res, e.hash)
	}
	sort.Strings(res)
	return res
}
