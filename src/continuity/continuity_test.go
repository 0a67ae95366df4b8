package continuity

import (
	"crypto/ecdsa"
	"fmt"
	"reflect"
	"testing"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/common"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto/keys"
	"github.com/sirupsen/logrus"
)

var letters = []string{"a", "b", "c", "d"}

type TestNode struct {
	Key      *ecdsa.PrivateKey
	PubBytes []byte
	PubHex   string
	NextIdx  int
}

func NewTestNode(key *ecdsa.PrivateKey) *TestNode {
	return &TestNode{
		Key:      key,
		PubBytes: keys.FromPublicKey(&key.PublicKey),
		PubHex:   keys.PublicKeyHex(&key.PublicKey),
	}
}

func initTestNodes(t testing.TB, n int) []*TestNode {
	nodes := []*TestNode{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		nodes = append(nodes, NewTestNode(key))
	}
	return nodes
}

func electorList(nodes []*TestNode) []string {
	res := []string{}
	for _, n := range nodes {
		res = append(res, n.PubHex)
	}
	return res
}

// play describes one merge event: the node that creates it, its name, the
// name of its tree parent ("" for a branch tail), and the names of the other
// parents.
type play struct {
	to         int
	name       string
	treeParent string
	parents    []string
}

// playEvents builds and signs the events described by plays, resolving names
// through the index map.
func playEvents(t testing.TB, plays []play, nodes []*TestNode, index map[string]string, history *[]*Event) {
	for _, p := range plays {
		node := nodes[p.to]

		treeParentHash := ""
		if p.treeParent != "" {
			h, ok := index[p.treeParent]
			if !ok {
				t.Fatalf("unknown tree parent %s in play %s", p.treeParent, p.name)
			}
			treeParentHash = h
		}

		otherParents := []string{}
		for _, par := range p.parents {
			h, ok := index[par]
			if !ok {
				t.Fatalf("unknown parent %s in play %s", par, p.name)
			}
			otherParents = append(otherParents, h)
		}

		ev := NewMergeEvent(treeParentHash, otherParents, node.PubBytes, node.NextIdx)
		if err := ev.Sign(node.Key); err != nil {
			t.Fatal(err)
		}
		node.NextIdx++

		index[p.name] = ev.Hex()
		*history = append(*history, ev)
	}
}

// tailsRound returns the plays for every node's branch tail.
func tailsRound(members []int) []play {
	plays := []play{}
	for _, m := range members {
		plays = append(plays, play{to: m, name: fmt.Sprintf("%s1", letters[m])})
	}
	return plays
}

// meshRound returns the plays of one gossip round: each member's gen event
// merges every member's gen-1 event.
func meshRound(gen int, members []int) []play {
	plays := []play{}
	for _, m := range members {
		p := play{
			to:         m,
			name:       fmt.Sprintf("%s%d", letters[m], gen),
			treeParent: fmt.Sprintf("%s%d", letters[m], gen-1),
		}
		for _, o := range members {
			if o != m {
				p.parents = append(p.parents, fmt.Sprintf("%s%d", letters[o], gen-1))
			}
		}
		plays = append(plays, p)
	}
	return plays
}

func testLogger(t testing.TB) *logrus.Entry {
	return common.NewTestEntry(t)
}

func hashesByName(index map[string]string, names ...string) map[string]bool {
	res := map[string]bool{}
	for _, n := range names {
		res[index[n]] = true
	}
	return res
}

func assertSameHashes(t *testing.T, got []string, want map[string]bool, label string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d hashes, want %d", label, len(got), len(want))
	}
	for _, h := range got {
		if !want[h] {
			t.Fatalf("%s: unexpected hash %s", label, h)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("%s: hashes not in lexicographic order", label)
		}
	}
}

/*
Single elector. The elector's tail is both X and Y; the committed set is the
closure of the branch tail and the proof is the tail itself.

a3
|
a2
|
a1
*/
func TestDecideSingleElector(t *testing.T) {
	nodes := initTestNodes(t, 1)
	index := map[string]string{}
	history := []*Event{}

	plays := []play{
		{to: 0, name: "a1"},
		{to: 0, name: "a2", treeParent: "a1"},
		{to: 0, name: "a3", treeParent: "a2"},
	}
	playEvents(t, plays, nodes, index, &history)

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))

	decision, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}
	if decision == nil {
		t.Fatal("expected a decision")
	}

	assertSameHashes(t, decision.MergeEventHashes, hashesByName(index, "a1"), "merge events")
	assertSameHashes(t, decision.EventHashes, hashesByName(index, "a1"), "committed events")
	assertSameHashes(t, decision.ConsensusProofHashes, hashesByName(index, "a1"), "proof")
}

// cleanRoundHistory builds the four-elector full-mesh DAG: tails at
// generation 1, then full gossip rounds up to maxGen.
func cleanRoundHistory(t testing.TB, maxGen int) ([]*TestNode, map[string]string, []*Event) {
	nodes := initTestNodes(t, 4)
	index := map[string]string{}
	history := []*Event{}

	all := []int{0, 1, 2, 3}
	playEvents(t, tailsRound(all), nodes, index, &history)
	for gen := 2; gen <= maxGen; gen++ {
		playEvents(t, meshRound(gen, all), nodes, index, &history)
	}

	return nodes, index, history
}

/*
Four electors, clean round. With a full gossip mesh, every elector's X is its
tail, its Y lands at generation 3, support converges on the union of the four
Ys, a precommit forms at generation 5, and the confirm point fires at
generation 7.
*/
func TestDecideCleanRound(t *testing.T) {
	nodes, index, history := cleanRoundHistory(t, 7)

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))

	decision, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}
	if decision == nil {
		t.Fatal("expected a decision")
	}

	assertSameHashes(t, decision.MergeEventHashes,
		hashesByName(index, "a3", "b3", "c3", "d3"), "merge events")

	assertSameHashes(t, decision.EventHashes,
		hashesByName(index, "a1", "b1", "c1", "d1"), "committed events")

	assertSameHashes(t, decision.ConsensusProofHashes,
		hashesByName(index, "a2", "b2", "c2", "d2", "a3", "b3", "c3", "d3"), "proof")

	if byz := cons.ByzantineElectors(); len(byz) != 0 {
		t.Fatalf("expected no byzantine electors, got %v", byz)
	}
}

// Determinism: hash-equal histories produce bitwise identical decisions,
// whatever the iteration order of the input slice.
func TestDecideDeterminism(t *testing.T) {
	nodes, _, history := cleanRoundHistory(t, 7)

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))
	d1, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}

	reversed := make([]*Event, len(history))
	for i, ev := range history {
		reversed[len(history)-1-i] = ev
	}

	cons2 := NewConsensus(electorList(nodes), 0, testLogger(t))
	d2, err := cons2.Decide(reversed)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(d1, d2) {
		t.Fatalf("decisions differ across iteration orders:\n%v\n%v", d1, d2)
	}

	//re-invoking with the same snapshot yields the same result
	d3, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(d1, d3) {
		t.Fatalf("decision not idempotent:\n%v\n%v", d1, d3)
	}
}

// Safety: a node with a superset of the snapshot decides the same block.
func TestDecideSupersetSafety(t *testing.T) {
	nodes, index, history := cleanRoundHistory(t, 7)

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))
	d1, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}
	if d1 == nil {
		t.Fatal("expected a decision")
	}

	//extend the history with another gossip round
	superset := append([]*Event{}, history...)
	playEvents(t, meshRound(8, []int{0, 1, 2, 3}), nodes, index, &superset)

	cons2 := NewConsensus(electorList(nodes), 0, testLogger(t))
	d2, err := cons2.Decide(superset)
	if err != nil {
		t.Fatal(err)
	}
	if d2 == nil {
		t.Fatal("expected a decision on the superset")
	}

	if !reflect.DeepEqual(d1, d2) {
		t.Fatalf("superset decision differs:\n%v\n%v", d1, d2)
	}
}

/*
Byzantine fork. Creator D publishes two tree children from d1. D is excluded
from candidate selection and the three honest electors decide without it.
*/
func TestDecideByzantineFork(t *testing.T) {
	nodes := initTestNodes(t, 4)
	index := map[string]string{}
	history := []*Event{}

	honest := []int{0, 1, 2}
	playEvents(t, tailsRound([]int{0, 1, 2, 3}), nodes, index, &history)

	//the honest generation-2 events merge d1 as well
	gen2 := meshRound(2, honest)
	for i := range gen2 {
		gen2[i].parents = append(gen2[i].parents, "d1")
	}
	playEvents(t, gen2, nodes, index, &history)

	//D forks: two tree children from d1
	playEvents(t, []play{
		{to: 3, name: "d2", treeParent: "d1", parents: []string{"a1"}},
		{to: 3, name: "d2b", treeParent: "d1", parents: []string{"b1"}},
	}, nodes, index, &history)

	for gen := 3; gen <= 7; gen++ {
		playEvents(t, meshRound(gen, honest), nodes, index, &history)
	}

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))

	decision, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}
	if decision == nil {
		t.Fatal("expected a decision")
	}

	assertSameHashes(t, decision.MergeEventHashes,
		hashesByName(index, "a3", "b3", "c3"), "merge events")

	byz := cons.ByzantineElectors()
	if len(byz) != 1 || byz[0] != nodes[3].PubHex {
		t.Fatalf("expected byzantine elector %s, got %v", nodes[3].PubHex, byz)
	}
}

/*
Split support resolved by union. After the Ys form, the network splits into
two pairs which support their pair's Ys. Neither pair reaches a supermajority
so no precommit forms; when the partition heals, every branch unions to the
full Y-set and decides on it.
*/
func TestDecideSplitSupport(t *testing.T) {
	nodes := initTestNodes(t, 4)
	index := map[string]string{}
	history := []*Event{}

	all := []int{0, 1, 2, 3}
	playEvents(t, tailsRound(all), nodes, index, &history)
	for gen := 2; gen <= 3; gen++ {
		playEvents(t, meshRound(gen, all), nodes, index, &history)
	}

	//partition into pairs {A,B} and {C,D}
	for gen := 4; gen <= 5; gen++ {
		playEvents(t, meshRound(gen, []int{0, 1}), nodes, index, &history)
		playEvents(t, meshRound(gen, []int{2, 3}), nodes, index, &history)
	}

	//heal and run enough rounds for a precommit and its confirm point
	for gen := 6; gen <= 9; gen++ {
		playEvents(t, meshRound(gen, all), nodes, index, &history)
	}

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))

	decision, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}
	if decision == nil {
		t.Fatal("expected a decision")
	}

	assertSameHashes(t, decision.MergeEventHashes,
		hashesByName(index, "a3", "b3", "c3", "d3"), "merge events")
}

/*
Insufficient history. Three electors out of four have tails and none of the
branches extends far enough to produce a Y.
*/
func TestDecideInsufficientHistory(t *testing.T) {
	nodes := initTestNodes(t, 4)
	index := map[string]string{}
	history := []*Event{}

	playEvents(t, tailsRound([]int{0, 1, 2}), nodes, index, &history)

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))

	decision, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}
	if decision != nil {
		t.Fatalf("expected no consensus, got %v", decision)
	}
}

/*
Precommit rejected. A, B and C run ahead of D: A precommits {Ya,Yb,Yc} while
B and C, having seen D's branch, union to all four Ys and precommit the
union. When A observes the larger concurrent precommit it rejects its own,
clears the confirm point, and converges on the union; the decision commits
all four Ys.
*/
func TestDecidePrecommitRejected(t *testing.T) {
	nodes := initTestNodes(t, 4)
	index := map[string]string{}
	history := []*Event{}

	all := []int{0, 1, 2, 3}
	trio := []int{0, 1, 2}
	playEvents(t, tailsRound(all), nodes, index, &history)
	for gen := 2; gen <= 3; gen++ {
		playEvents(t, meshRound(gen, all), nodes, index, &history)
	}

	//generation 4: the trio gossips among itself; D falls behind alone
	playEvents(t, meshRound(4, trio), nodes, index, &history)
	playEvents(t, []play{{to: 3, name: "d4", treeParent: "d3"}}, nodes, index, &history)

	//generation 5: A sees only the trio and will precommit {Ya,Yb,Yc};
	//B and C see d4 and union to all four Ys; D catches up on the trio
	playEvents(t, []play{
		{to: 0, name: "a5", treeParent: "a4", parents: []string{"b4", "c4"}},
		{to: 1, name: "b5", treeParent: "b4", parents: []string{"a4", "c4", "d4"}},
		{to: 2, name: "c5", treeParent: "c4", parents: []string{"a4", "b4", "d4"}},
		{to: 3, name: "d5", treeParent: "d4", parents: []string{"a4", "b4", "c4"}},
	}, nodes, index, &history)

	//full mesh again; B and C precommit the union at generation 6, A
	//observes the larger precommit at generation 7 and rejects its own
	for gen := 6; gen <= 9; gen++ {
		playEvents(t, meshRound(gen, all), nodes, index, &history)
	}

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))

	decision, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}
	if decision == nil {
		t.Fatal("expected a decision")
	}

	assertSameHashes(t, decision.MergeEventHashes,
		hashesByName(index, "a3", "b3", "c3", "d3"), "merge events")
}

// Every hash appearing in the parents of a committed merge event appears in
// the committed event hashes, sweeping in regular events that are not part
// of the merge-event snapshot.
func TestDecideSweepsRegularEvents(t *testing.T) {
	nodes := initTestNodes(t, 1)
	node := nodes[0]
	index := map[string]string{}
	history := []*Event{}

	regular := NewEvent(EventTypeRegular, [][]byte{[]byte("op1")}, nil, "", node.PubBytes, 0)
	if err := regular.Sign(node.Key); err != nil {
		t.Fatal(err)
	}
	node.NextIdx = 1

	a1 := NewEvent(EventTypeMerge, nil, []string{regular.Hex()}, "", node.PubBytes, 1)
	if err := a1.Sign(node.Key); err != nil {
		t.Fatal(err)
	}
	node.NextIdx = 2
	index["a1"] = a1.Hex()
	history = append(history, a1)

	playEvents(t, []play{
		{to: 0, name: "a2", treeParent: "a1"},
		{to: 0, name: "a3", treeParent: "a2"},
	}, nodes, index, &history)

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))

	decision, err := cons.Decide(history)
	if err != nil {
		t.Fatal(err)
	}
	if decision == nil {
		t.Fatal("expected a decision")
	}

	found := false
	for _, h := range decision.EventHashes {
		if h == regular.Hex() {
			found = true
		}
	}
	if !found {
		t.Fatalf("regular event %s missing from committed events", regular.Hex())
	}
}

func TestDecideMalformedHistory(t *testing.T) {
	nodes := initTestNodes(t, 2)
	index := map[string]string{}
	history := []*Event{}

	playEvents(t, tailsRound([]int{0, 1}), nodes, index, &history)

	//a merge event whose tree parent is not among its parents
	bad := NewEvent(EventTypeMerge, nil, []string{index["b1"]}, index["a1"], nodes[0].PubBytes, 1)
	if err := bad.Sign(nodes[0].Key); err != nil {
		t.Fatal(err)
	}
	history = append(history, bad)

	cons := NewConsensus(electorList(nodes), 0, testLogger(t))

	_, err := cons.Decide(history)
	if err == nil {
		t.Fatal("expected a MalformedHistoryError")
	}
	if !IsMalformedHistory(err) {
		t.Fatalf("expected a MalformedHistoryError, got %v", err)
	}
}

func TestTwoThirdsMajority(t *testing.T) {
	expected := map[int]int{
		1:  1,
		2:  2,
		3:  3,
		4:  3,
		7:  5,
		10: 7,
		13: 9,
	}
	for n, s := range expected {
		if got := TwoThirdsMajority(n); got != s {
			t.Errorf("TwoThirdsMajority(%d) = %d, want %d", n, got, s)
		}
	}
}
