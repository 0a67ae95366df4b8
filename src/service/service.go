package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dogwoodlogic/bedrock-ledger-consensus-continuity/src/node"
)

// Service exposes operational information about a ledger node over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService creates a Service and registers its handlers with the
// DefaultServeMux of the http package.
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServeMux. When
// another server in the same process uses the DefaultServeMux, the handlers
// are accessible from both servers.
func (s *Service) registerHandlers() {
	s.logger.Debug("registering API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/block/", s.makeHandler(s.GetBlock))
	http.HandleFunc("/peers", s.makeHandler(s.GetPeers))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("serving API")

	if err := http.ListenAndServe(s.bindAddress, nil); err != nil {
		s.logger.Error(err)
	}
}

// GetStats returns the node's operational statistics.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetBlock returns a block by index. The index is the path element after
// /block/.
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimPrefix(r.URL.Path, "/block/")

	blockIndex, err := strconv.Atoi(param)
	if err != nil {
		http.Error(w, "parsing block index parameter", http.StatusBadRequest)
		return
	}

	block, err := s.node.GetBlock(blockIndex)
	if err != nil {
		http.Error(w, "retrieving block", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(block)
}

// GetPeers returns the node's peer set.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.node.GetPeers())
}
