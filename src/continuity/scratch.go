package continuity

import (
	"sort"
)

/*
All the state in this file is scratch state: it is created at the start of a
Decide call and dropped at the end. Events themselves are immutable facts;
everything the decision algorithm derives about them lives here.
*/

// eventInfo carries the per-event derived state of a single decision attempt.
type eventInfo struct {
	ev      *Event
	hash    string
	creator string

	//graph links, restricted to merge events present in the snapshot,
	//sorted by hash for deterministic traversal
	parents []*eventInfo

	//branch links and 1-based position on the creator's branch within the
	//snapshot
	treeParent   *eventInfo
	treeChildren []*eventInfo
	generation   int

	//candidate state: the ancestry set and descendants-in-path map of an X,
	//populated by the candidate finder and reused by the committer
	xAncestry map[*eventInfo]bool
	xDesc     *pathDescendants

	//proof protocol state
	supporting   []*eventInfo               //the Y-set this event supports, canonical order
	votes        map[string]vote            //elector -> latest voting event observable here
	preCommit    *eventInfo                 //this branch's current precommit
	confirmPoint *eventInfo                 //on a precommit: its confirm point
	toConfirm    *eventInfo                 //on a confirm point: back-reference to its precommit
	y            *eventInfo                 //the branch's Y, propagated along tree edges
	yDesc        map[string]*pathDescendants //per elector, the memoized paths from its Y to this event
}

// vote is the tagged variant for an elector's vote: a voting event, the
// byzantine sentinel, or unresolved (the zero value).
type vote struct {
	event     *eventInfo
	byzantine bool
}

func (v vote) resolved() bool {
	return v.byzantine || v.event != nil
}

// scratch indexes the eventInfo records of one decision attempt.
type scratch struct {
	byHash map[string]*eventInfo
	infos  []*eventInfo //insertion order; traversals sort explicitly
}

// newScratch builds the scratch state for a history snapshot and verifies its
// structural invariants. The snapshot must contain only merge events; parent
// hashes that are absent from the snapshot refer to regular events, genesis
// events, or events that already reached consensus, and are simply not
// linked.
func newScratch(history []*Event) (*scratch, error) {
	s := &scratch{
		byHash: make(map[string]*eventInfo, len(history)),
	}

	for _, ev := range history {
		if err := ev.Validate(); err != nil {
			return nil, NewMalformedHistoryError("%s", err)
		}
		hash := ev.Hex()
		if _, ok := s.byHash[hash]; ok {
			continue
		}
		info := &eventInfo{
			ev:      ev,
			hash:    hash,
			creator: ev.Creator(),
		}
		s.byHash[hash] = info
		s.infos = append(s.infos, info)
	}

	//link parents, restricted to snapshot members
	for _, info := range s.infos {
		for _, ph := range info.ev.Parents() {
			if p, ok := s.byHash[ph]; ok {
				info.parents = append(info.parents, p)
			}
		}
		sort.Slice(info.parents, func(i, j int) bool {
			return info.parents[i].hash < info.parents[j].hash
		})
	}

	if err := s.checkAcyclic(); err != nil {
		return nil, err
	}

	return s, nil
}

// checkAcyclic verifies that the snapshot's parent relation is acyclic using
// an iterative three-color depth-first search.
func (s *scratch) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[*eventInfo]int, len(s.infos))

	for _, root := range s.infos {
		if color[root] != white {
			continue
		}
		type frame struct {
			info *eventInfo
			next int
		}
		stack := []frame{{info: root}}
		color[root] = gray
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next < len(f.info.parents) {
				p := f.info.parents[f.next]
				f.next++
				switch color[p] {
				case white:
					color[p] = gray
					stack = append(stack, frame{info: p})
				case gray:
					return NewMalformedHistoryError("cycle through event %s", p.hash)
				}
			} else {
				color[f.info] = black
				stack = stack[:len(stack)-1]
			}
		}
	}
	return nil
}

// sortedByHash returns the scratch events in lexicographic hash order.
func (s *scratch) sortedByHash() []*eventInfo {
	res := make([]*eventInfo, len(s.infos))
	copy(res, s.infos)
	sort.Slice(res, func(i, j int) bool { return res[i].hash < res[j].hash })
	return res
}

/*******************************************************************************
Y-set utilities

Y-sets are small (at most one Y per elector). They are represented as slices
of eventInfo pointers kept in lexicographic hash order, so equality and union
are linear scans.
*******************************************************************************/

// canonicalSet sorts a Y-set by hash and removes duplicates.
func canonicalSet(events []*eventInfo) []*eventInfo {
	res := make([]*eventInfo, 0, len(events))
	seen := make(map[*eventInfo]bool, len(events))
	for _, e := range events {
		if !seen[e] {
			seen[e] = true
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].hash < res[j].hash })
	return res
}

// sameSet reports whether two canonical Y-sets are equal.
func sameSet(a, b []*eventInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
