package apiserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/nipsysdev/logos-storage-go/pkg/logging"
)

var errNoPeerInfo = "peer-to-peer transport not configured on this node"

func (s *Server) requirePeers(w http.ResponseWriter) (PeerInfo, bool) {
	if s.peers == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: errNoPeerInfo})
		return nil, false
	}
	return s.peers, true
}

// handleSPR implements GET /spr.
func (s *Server) handleSPR(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requirePeers(w)
	if !ok {
		return
	}
	spr, err := p.SPR()
	if err != nil {
		s.writeError(w, "apiserver.handleSPR", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"spr": spr})
}

// handlePeerID implements GET /peerid.
func (s *Server) handlePeerID(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requirePeers(w)
	if !ok {
		return
	}
	id, err := p.PeerID()
	if err != nil {
		s.writeError(w, "apiserver.handlePeerID", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"peerId": id})
}

// handleConnect implements GET /connect/{peerId}?addr=... (repeatable).
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requirePeers(w)
	if !ok {
		return
	}
	peerID := r.PathValue("peerId")
	if peerID == "" {
		http.Error(w, "missing peerId", http.StatusBadRequest)
		return
	}
	addrs := r.URL.Query()["addr"]
	if err := p.Connect(peerID, addrs); err != nil {
		s.writeError(w, "apiserver.handleConnect", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"connected": true})
}

// handleDebugInfo implements GET /debug/info.
func (s *Server) handleDebugInfo(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requirePeers(w)
	if !ok {
		return
	}
	info, err := p.DebugInfo()
	if err != nil {
		s.writeError(w, "apiserver.handleDebugInfo", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type logLevelRequest struct {
	Level string `json:"level"`
}

// handleSetLogLevel implements POST /debug/chronicles/loglevel.
func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	if s.nodeLog == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "node logger not configured on this server"})
		return
	}

	var req logLevelRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	level, err := logging.ParseLevel(strings.TrimSpace(req.Level))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.nodeLog.SetLevel(level)
	writeJSON(w, http.StatusOK, map[string]string{"level": req.Level})
}
