package ledger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/config"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/continuity"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/crypto/keys"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/gossip"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/node"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/peers"
	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/service"
)

// Ledger assembles the components of a ledger node from a config object:
// peers, store, transport, key, node, and HTTP service.
type Ledger struct {
	Config    *config.Config
	Node      *node.Node
	Transport gossip.Transport
	Store     continuity.Store
	Peers     *peers.PeerSet
	Service   *service.Service

	logger *logrus.Entry
}

// NewLedger instantiates a Ledger with a config object. Call Init before
// Run.
func NewLedger(conf *config.Config) *Ledger {
	return &Ledger{
		Config: conf,
		logger: conf.Logger(),
	}
}

func (l *Ledger) initPeers() error {
	peerStore := peers.NewJSONPeerSet(l.Config.DataDir)

	participants, err := peerStore.PeerSet()
	if err != nil {
		return err
	}

	if participants.Len() < 1 {
		return fmt.Errorf("peers.json should define at least one peer")
	}

	l.Peers = participants

	return nil
}

func (l *Ledger) initStore() error {
	if !l.Config.Store && !l.Config.Bootstrap {
		l.Store = continuity.NewInmemStore(l.Peers, l.Config.CacheSize)
		l.logger.Debug("created new in-mem store")
		return nil
	}

	l.logger.WithField("path", l.Config.DatabaseDir).Debug("loading or creating database")

	if _, err := os.Stat(l.Config.DatabaseDir); err == nil && l.Config.Bootstrap {
		store, err := continuity.LoadBadgerStore(l.Peers, l.Config.CacheSize, l.Config.DatabaseDir)
		if err != nil {
			return err
		}
		l.Store = store
		l.logger.Debug("loaded badger store from existing database")
		return nil
	}

	store, err := continuity.NewBadgerStore(l.Peers, l.Config.CacheSize, l.Config.DatabaseDir)
	if err != nil {
		return err
	}
	l.Store = store
	l.logger.Debug("created new badger store from fresh database")

	return nil
}

func (l *Ledger) initTransport() error {
	transport, err := gossip.NewTCPTransport(
		l.Config.BindAddr,
		l.Config.AdvertiseAddr,
		l.Config.MaxPool,
		l.Config.TCPTimeout,
		l.logger,
	)
	if err != nil {
		return err
	}

	l.Transport = transport

	return nil
}

func (l *Ledger) initKey() error {
	if l.Config.Key == nil {
		simpleKeyfile := keys.NewSimpleKeyfile(l.Config.Keyfile())

		privKey, err := simpleKeyfile.ReadKey()
		if err != nil {
			return fmt.Errorf("cannot read private key from file: %v", err)
		}

		l.Config.Key = privKey
	}
	return nil
}

func (l *Ledger) initNode() error {
	key := l.Config.Key

	nodePub := keys.PublicKeyHex(&key.PublicKey)
	p, ok := l.Peers.ByPubKey[nodePub]
	if !ok {
		return fmt.Errorf("cannot find self pubkey in peers.json")
	}

	l.logger.WithFields(logrus.Fields{
		"id":      p.ID(),
		"moniker": l.Config.Moniker,
	}).Debug("initializing node")

	validator := node.NewValidator(key, l.Config.Moniker)

	l.Node = node.NewNode(
		l.Config,
		validator,
		l.Peers,
		l.Store,
		l.Transport,
	)

	if err := l.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (l *Ledger) initService() error {
	if !l.Config.NoService && l.Config.ServiceAddr != "" {
		l.Service = service.NewService(l.Config.ServiceAddr, l.Node, l.logger)
	}
	return nil
}

// Init builds all the components in dependency order.
func (l *Ledger) Init() error {
	if err := l.initPeers(); err != nil {
		return err
	}

	if err := l.initStore(); err != nil {
		return err
	}

	if err := l.initTransport(); err != nil {
		return err
	}

	if err := l.initKey(); err != nil {
		return err
	}

	if err := l.initNode(); err != nil {
		return err
	}

	return l.initService()
}

// Run starts the HTTP service and the node's worker loop. It blocks until
// the node shuts down.
func (l *Ledger) Run() {
	if l.Service != nil {
		go l.Service.Serve()
	}

	l.Node.Run(true)
}
