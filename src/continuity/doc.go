// Package continuity implements a byzantine-fault-tolerant consensus engine
// for an append-only distributed ledger.
//
// Every node maintains a local DAG of signed events: regular events carrying
// user operations, and merge events merging the heads of other branches.
// Events spread by gossip. Given a node's view of the recent non-consensus
// merge events, the Consensus engine deterministically decides which merge
// events have reached consensus and derives the set of events included in
// the next block, together with a proof of the supermajority endorsement
// that produced the decision.
//
// The decision algorithm runs in four stages. The branch builder organizes
// the snapshot into per-elector branches and assigns generations. The
// candidate finder selects each elector's proof events X and Y. The proof
// protocol walks each branch forward from its Y, tallying votes and creating
// precommits, until a confirm point fires with supermajority support. The
// committer derives the committed event hashes and consensus proof from the
// decided Y-set. With n electors, the protocol tolerates up to f byzantine
// electors where n = 3f+1.
//
// The package also provides the Event and Block models and the Store
// backends (in-memory and Badger) that the node's worker loop builds on.
package continuity
