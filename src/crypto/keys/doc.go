// Package keys implements the public key cryptography used throughout the
// ledger node.
//
// Every ledger node, also referred to as a peer or elector, owns a
// cryptographic key-pair that it uses to sign the events it creates and to
// verify events received from other nodes. The private key is secret but the
// public key doubles as the node's identity; event creators are identified by
// the hex encoding of their public key.
//
// Signing uses ECDSA on the secp256k1 curve, so Bitcoin and Ethereum keys can
// be used to operate a ledger node.
package keys
