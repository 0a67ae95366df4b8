package continuity

/*
Shared graph utilities of the decision algorithm. They all operate on the
scratch state of a single Decide call.

The central structure is the descendants-in-path map: given a source event x
and a later event y on some branch, it records, for every event on any path
from x (exclusive) to y (inclusive), the event's immediate
descendants-in-path. The map is built backward from y through the parent
links, halting at the ancestry of x, and is memoized: repeated calls with
progressively later y events enlarge the map monotonically, so walking a
branch upward never re-traverses the portion of the DAG it has already seen.
*/

// pathDescendants is a memoized descendants-in-path map.
type pathDescendants struct {
	//edges maps an ancestor to its immediate descendants on the recorded
	//paths, in recording order
	edges map[*eventInfo][]*eventInfo
	//seen contains the events whose parent edges are fully recorded
	seen map[*eventInfo]bool
	//order lists the seen events in visiting order, so iterating the path
	//region is deterministic
	order []*eventInfo
}

func newPathDescendants() *pathDescendants {
	return &pathDescendants{
		edges: make(map[*eventInfo][]*eventInfo),
		seen:  make(map[*eventInfo]bool),
	}
}

// pathEvents returns every event recorded between the source and the queried
// events: the region a branch event collects votes from.
func (d *pathDescendants) pathEvents() []*eventInfo {
	return d.order
}

func (d *pathDescendants) markSeen(e *eventInfo) {
	d.seen[e] = true
	d.order = append(d.order, e)
}

// clone returns an independent copy of the map. The proof protocol seeds an
// event's map from its tree parent's, since every recorded path to an
// ancestor is also a path to the event.
func (d *pathDescendants) clone() *pathDescendants {
	res := &pathDescendants{
		edges: make(map[*eventInfo][]*eventInfo, len(d.edges)),
		seen:  make(map[*eventInfo]bool, len(d.seen)),
		order: append([]*eventInfo{}, d.order...),
	}
	for k, v := range d.edges {
		res.edges[k] = append([]*eventInfo{}, v...)
	}
	for k := range d.seen {
		res.seen[k] = true
	}
	return res
}

func (d *pathDescendants) addEdge(ancestor, descendant *eventInfo) {
	for _, e := range d.edges[ancestor] {
		if e == descendant {
			return
		}
	}
	d.edges[ancestor] = append(d.edges[ancestor], descendant)
}

// buildAncestryMap returns the closed ancestry of e: e itself and every event
// reachable from e through the snapshot's parent links.
func buildAncestryMap(e *eventInfo) map[*eventInfo]bool {
	ancestry := map[*eventInfo]bool{e: true}
	stack := []*eventInfo{e}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range cur.parents {
			if !ancestry[p] {
				ancestry[p] = true
				stack = append(stack, p)
			}
		}
	}
	return ancestry
}

// findDescendantsInPath extends descendants with entries for every event on
// any path from x (exclusive) to y (inclusive). It traverses from y backward
// through the parent links, halting at events found in ancestry (the closed
// ancestry of x).
func findDescendantsInPath(x, y *eventInfo, descendants *pathDescendants, ancestry map[*eventInfo]bool) {
	if x == y || ancestry[y] || descendants.seen[y] {
		return
	}
	stack := []*eventInfo{y}
	descendants.markSeen(y)
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range e.parents {
			descendants.addEdge(p, e)
			if !ancestry[p] && !descendants.seen[p] {
				descendants.markSeen(p)
				stack = append(stack, p)
			}
		}
	}
}

// flattenDescendants forward-walks from x using the descendants map and
// returns the deduplicated set of events reached, excluding x itself. The
// walk order is deterministic for a given snapshot.
func flattenDescendants(x *eventInfo, descendants *pathDescendants) []*eventInfo {
	res := []*eventInfo{}
	visited := map[*eventInfo]bool{x: true}
	stack := []*eventInfo{x}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range descendants.edges[cur] {
			if !visited[d] {
				visited[d] = true
				res = append(res, d)
				stack = append(stack, d)
			}
		}
	}
	return res
}

// hasSufficientEndorsements counts the distinct elector creators observed
// while forward-walking from x, including x's own creator, and reports
// whether the count reaches the supermajority.
func hasSufficientEndorsements(x *eventInfo, descendants *pathDescendants, electors map[string]bool, supermajority int) bool {
	creators := map[string]bool{}
	if electors[x.creator] {
		creators[x.creator] = true
	}
	if len(creators) >= supermajority {
		return true
	}
	visited := map[*eventInfo]bool{x: true}
	stack := []*eventInfo{x}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range descendants.edges[cur] {
			if visited[d] {
				continue
			}
			visited[d] = true
			if electors[d.creator] {
				creators[d.creator] = true
				if len(creators) >= supermajority {
					return true
				}
			}
			stack = append(stack, d)
		}
	}
	return false
}

// findDiversePedigreeMergeEvent finds the earliest tree descendant of x whose
// accumulated descendants-in-path contain merge events from a supermajority
// of electors. With a supermajority of one, x endorses itself and is
// returned directly. The search accumulates into descendants, which callers
// may retain; ancestry must be the closed ancestry of x. The boolean result
// reports whether the search stopped on a branch fork, which marks x's
// creator as byzantine.
func findDiversePedigreeMergeEvent(x *eventInfo, electors map[string]bool, supermajority int,
	descendants *pathDescendants, ancestry map[*eventInfo]bool) (*eventInfo, bool) {

	if supermajority == 1 {
		return x, false
	}

	cur := x
	for {
		if len(cur.treeChildren) > 1 {
			return nil, true
		}
		if len(cur.treeChildren) == 0 {
			return nil, false
		}
		next := cur.treeChildren[0]
		findDescendantsInPath(x, next, descendants, ancestry)
		if hasSufficientEndorsements(x, descendants, electors, supermajority) {
			return next, false
		}
		cur = next
	}
}
