package continuity

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
	cm "github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/common"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
)

const (
	eventPrefix       = "ev"
	topoPrefix        = "topo"
	participantPrefix = "pev"
	blockPrefix       = "block"
	consensusPrefix   = "consensus"
)

// BadgerStore is a write-through wrapper around an InmemStore backed by a
// Badger database. Every write goes to both layers; reads are served from
// the in-memory caches and fall back to the database for evicted items.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

// NewBadgerStore creates a brand new store with a new database.
func NewBadgerStore(participants *peers.PeerSet, cacheSize int, path string) (*BadgerStore, error) {
	inmemStore := NewInmemStore(participants, cacheSize)

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		inmemStore: inmemStore,
		db:         handle,
		path:       path,
	}, nil
}

// LoadBadgerStore creates a store from an existing database, replaying all
// events in topological order so that the in-memory layer, including the
// recent-history cache, is rebuilt exactly as it was.
func LoadBadgerStore(participants *peers.PeerSet, cacheSize int, path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(participants, cacheSize),
		db:         handle,
		path:       path,
	}

	if err := store.bootstrap(); err != nil {
		store.Close()
		return nil, err
	}

	return store, nil
}

func eventKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s:%s", eventPrefix, hash))
}

func topoKey(index int) []byte {
	return []byte(fmt.Sprintf("%s:%012d", topoPrefix, index))
}

func participantEventKey(participant string, index int) []byte {
	return []byte(fmt.Sprintf("%s:%s_%012d", participantPrefix, participant, index))
}

func blockKey(index int) []byte {
	return []byte(fmt.Sprintf("%s:%012d", blockPrefix, index))
}

func consensusKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s:%s", consensusPrefix, hash))
}

// bootstrap replays the database into the in-memory layer.
func (s *BadgerStore) bootstrap() error {
	//events, in topological order
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(topoPrefix + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			hashBytes, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			ev, err := s.dbGetEvent(string(hashBytes))
			if err != nil {
				return err
			}

			if err := s.inmemStore.SetEvent(ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	//consensus markers retract events from the recent history
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(consensusPrefix + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			hash := string(it.Item().Key()[len(prefix):])
			ev, err := s.inmemStore.GetEvent(hash)
			if err != nil {
				return err
			}
			if err := s.inmemStore.AddConsensusEvent(ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	//blocks
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(blockPrefix + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			blockBytes, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			block := new(Block)
			if err := block.Unmarshal(blockBytes); err != nil {
				return err
			}
			if err := s.inmemStore.SetBlock(block); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) dbGetEvent(hash string) (*Event, error) {
	var eventBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(hash))
		if err != nil {
			return err
		}
		eventBytes, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, cm.NewStoreErr("BadgerDB", cm.KeyNotFound, hash)
	}
	if err != nil {
		return nil, err
	}

	event := new(Event)
	if err := event.UnmarshalDB(eventBytes); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *BadgerStore) dbSetEvent(event *Event) error {
	eventBytes, err := event.MarshalDB()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(eventKey(event.Hex()), eventBytes); err != nil {
			return err
		}
		if err := txn.Set(topoKey(event.topologicalIndex), []byte(event.Hex())); err != nil {
			return err
		}
		return txn.Set(participantEventKey(event.Creator(), event.Index()), []byte(event.Hex()))
	})
}

// CacheSize implements the Store interface.
func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

// Participants returns the store's peer set.
func (s *BadgerStore) Participants() *peers.PeerSet {
	return s.inmemStore.Participants()
}

// GetEvent implements the Store interface.
func (s *BadgerStore) GetEvent(hash string) (*Event, error) {
	ev, err := s.inmemStore.GetEvent(hash)
	if err != nil {
		ev, err = s.dbGetEvent(hash)
	}
	return ev, err
}

// SetEvent implements the Store interface.
func (s *BadgerStore) SetEvent(event *Event) error {
	if err := s.inmemStore.SetEvent(event); err != nil {
		return err
	}
	return s.dbSetEvent(event)
}

// ParticipantEvents implements the Store interface.
func (s *BadgerStore) ParticipantEvents(participant string, skip int) ([]string, error) {
	return s.inmemStore.ParticipantEvents(participant, skip)
}

// ParticipantEvent implements the Store interface.
func (s *BadgerStore) ParticipantEvent(participant string, index int) (string, error) {
	res, err := s.inmemStore.ParticipantEvent(participant, index)
	if err != nil {
		res, err = s.dbGetParticipantEvent(participant, index)
	}
	return res, err
}

func (s *BadgerStore) dbGetParticipantEvent(participant string, index int) (string, error) {
	var hash []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(participantEventKey(participant, index))
		if err != nil {
			return err
		}
		hash, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return "", cm.NewStoreErr("BadgerDB", cm.KeyNotFound, participant)
	}
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// LastEventFrom implements the Store interface.
func (s *BadgerStore) LastEventFrom(participant string) (string, error) {
	return s.inmemStore.LastEventFrom(participant)
}

// KnownEvents implements the Store interface.
func (s *BadgerStore) KnownEvents() map[uint32]int {
	return s.inmemStore.KnownEvents()
}

// LoadRecentHistory implements the Store interface.
func (s *BadgerStore) LoadRecentHistory() ([]*Event, error) {
	return s.inmemStore.LoadRecentHistory()
}

// LoadAncestors implements the Store interface. Unlike the in-memory store,
// it falls back to the database for evicted events.
func (s *BadgerStore) LoadAncestors(hashes []string) ([]*Event, error) {
	res := []*Event{}
	for _, h := range hashes {
		ev, err := s.GetEvent(h)
		if err != nil {
			if cm.IsStore(err, cm.KeyNotFound) {
				continue
			}
			return nil, err
		}
		res = append(res, ev)
	}
	return res, nil
}

// AddConsensusEvent implements the Store interface.
func (s *BadgerStore) AddConsensusEvent(event *Event) error {
	if err := s.inmemStore.AddConsensusEvent(event); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(consensusKey(event.Hex()), []byte{})
	})
}

// ConsensusEvents implements the Store interface.
func (s *BadgerStore) ConsensusEvents() []string {
	return s.inmemStore.ConsensusEvents()
}

// ConsensusEventsCount implements the Store interface.
func (s *BadgerStore) ConsensusEventsCount() int {
	return s.inmemStore.ConsensusEventsCount()
}

// PendingMergeEvents returns the number of merge events that have not
// reached consensus yet.
func (s *BadgerStore) PendingMergeEvents() int {
	return s.inmemStore.PendingMergeEvents()
}

// GetBlock implements the Store interface.
func (s *BadgerStore) GetBlock(index int) (*Block, error) {
	res, err := s.inmemStore.GetBlock(index)
	if err != nil {
		res, err = s.dbGetBlock(index)
	}
	return res, err
}

func (s *BadgerStore) dbGetBlock(index int) (*Block, error) {
	var blockBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(index))
		if err != nil {
			return err
		}
		blockBytes, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, cm.NewStoreErr("BadgerDB", cm.KeyNotFound, fmt.Sprint(index))
	}
	if err != nil {
		return nil, err
	}

	block := new(Block)
	if err := block.Unmarshal(blockBytes); err != nil {
		return nil, err
	}
	return block, nil
}

// SetBlock implements the Store interface.
func (s *BadgerStore) SetBlock(block *Block) error {
	if err := s.inmemStore.SetBlock(block); err != nil {
		return err
	}

	blockBytes, err := block.Marshal()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(blockKey(block.Index()), blockBytes)
	})
}

// LastBlockIndex implements the Store interface.
func (s *BadgerStore) LastBlockIndex() int {
	return s.inmemStore.LastBlockIndex()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}
