package node

import (
	"sync"
	"sync/atomic"
)

// State captures the operating state of a ledger node.
type State uint32

const (
	// Gossiping is the state in which a node gossips regularly with other
	// nodes and runs the consensus algorithm.
	Gossiping State = iota

	// Suspended is the state in which a node responds to sync requests but
	// does not create events or run consensus.
	Suspended

	// Shutdown is the state in which a node stops responding to external
	// events and closes its transport.
	Shutdown
)

// wgLimit is the maximum number of goroutines that can be launched through
// stateManager.goFunc.
const wgLimit = 20

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case Gossiping:
		return "Gossiping"
	case Suspended:
		return "Suspended"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// stateManager wraps a State with atomic get and set methods. It also limits
// the number of goroutines launched by the node and waits for all of them to
// complete on shutdown.
type stateManager struct {
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

func (m *stateManager) getState() State {
	stateAddr := (*uint32)(&m.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (m *stateManager) setState(s State) {
	stateAddr := (*uint32)(&m.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

func (m *stateManager) goFunc(f func()) {
	tempWgCount := atomic.LoadInt32(&m.wgCount)
	if tempWgCount < wgLimit {
		m.wg.Add(1)
		atomic.AddInt32(&m.wgCount, 1)
		go func() {
			defer m.wg.Done()
			defer atomic.AddInt32(&m.wgCount, -1)
			f()
		}()
	}
}

func (m *stateManager) waitRoutines() {
	m.wg.Wait()
}
