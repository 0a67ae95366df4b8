// Package peers defines the Peer and PeerSet objects that identify the
// participants of a ledger network. Peers are identified by the hex encoding
// of their secp256k1 public key, which is also how event creators are named
// in the consensus core.
package peers
