// Package gossip provides the transports that ledger nodes use to exchange
// events. The protocol is pull-based anti-entropy: a node sends the map of
// creator heads it knows about, and the responder returns the events the
// caller lacks, in topological order, up to a sync limit. Transports only
// move messages; convergence is the node's job, and is guaranteed when a
// supermajority of electors is honest and reachable.
package gossip
