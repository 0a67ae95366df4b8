package gossip

// Transport provides an interface for network transports to allow a ledger
// node to communicate with its peers.
type Transport interface {
	// Listen starts the transport listening.
	Listen()

	// Consumer returns a channel that can be used to consume and respond to
	// RPC requests.
	Consumer() <-chan RPC

	// LocalAddr returns our local address.
	LocalAddr() string

	// AdvertiseAddr returns the address where other peers can reach us.
	AdvertiseAddr() string

	// Sync sends a SyncRequest to the target node.
	Sync(target string, args *SyncRequest, resp *SyncResponse) error

	// EagerSync sends an EagerSyncRequest to the target node.
	EagerSync(target string, args *EagerSyncRequest, resp *EagerSyncResponse) error

	// Close permanently closes the transport, stopping any associated
	// goroutines and freeing resources.
	Close() error
}
