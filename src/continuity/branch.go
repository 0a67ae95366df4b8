package continuity

import "sort"

/*
The branch builder organizes the unordered history snapshot into per-elector
branches: for every event it resolves the tree parent (the creator's previous
merge event), links the reciprocal tree children, and assigns 1-based
generations along each branch. Events whose tree parent is absent from the
snapshot are branch tails; a correct elector has exactly one tail and a
linear branch.
*/

// branches maps each elector to the tails of its branch within the snapshot.
type branches map[string][]*eventInfo

// buildBranches resolves tree links and generations for every event in the
// snapshot and returns the branch tails of each elector. Tree links are
// resolved for all creators, elector or not, because non-elector events still
// contribute to descendant maps; only electors get a tails entry.
func (c *Consensus) buildBranches(s *scratch) branches {
	tails := branches{}
	for _, el := range c.electorList {
		tails[el] = []*eventInfo{}
	}

	//resolve tree parents and children
	for _, info := range s.sortedByHash() {
		tp := info.ev.TreeParent()
		if tp != "" {
			if parent, ok := s.byHash[tp]; ok && parent.creator == info.creator {
				info.treeParent = parent
				parent.treeChildren = append(parent.treeChildren, info)
				continue
			}
		}
		//no tree parent in the snapshot: branch tail
		if _, ok := tails[info.creator]; ok {
			tails[info.creator] = append(tails[info.creator], info)
		}
	}

	//deterministic order for tree children; more than one marks the branch
	//as forked
	for _, info := range s.infos {
		if len(info.treeChildren) > 1 {
			sort.Slice(info.treeChildren, func(i, j int) bool {
				return info.treeChildren[i].hash < info.treeChildren[j].hash
			})
			c.markByzantine(info.creator, "multiple tree children on %s", info.hash)
		}
	}

	//assign generations forward from the tails
	for _, info := range s.infos {
		if info.treeParent == nil {
			gen := 1
			for queue := []*eventInfo{info}; len(queue) > 0; {
				level := queue
				queue = nil
				for _, e := range level {
					e.generation = gen
					queue = append(queue, e.treeChildren...)
				}
				gen++
			}
		}
	}

	//multiple tails also mark an elector as byzantine
	for _, el := range c.electorList {
		if len(tails[el]) > 1 {
			c.markByzantine(el, "multiple branch tails")
		}
	}

	return tails
}
