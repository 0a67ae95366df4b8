// Package node implements the worker loop of a ledger node. The node drains
// peer events from the gossip transport into the store, creates and merges
// local events, invokes the consensus engine when new merge events are
// available, and assembles and persists a block on every decision. All calls
// into the consensus core are serialized per node.
package node
