// Package apiserver exposes the node engine and its upload/download
// sessions over JSON-over-HTTP, mirroring the FFI surface for callers
// that would rather speak REST than link against the C ABI.
package apiserver

import (
	"log/slog"
	"net/http"

	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/logging"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
	"github.com/nipsysdev/logos-storage-go/pkg/session"
)

// PeerInfo is the narrow slice of peer-to-peer transport state the
// REST surface's debug/identity endpoints need. A nil PeerInfo makes
// those endpoints report 501 Not Implemented rather than the server
// requiring a transport to exist just to serve data.
type PeerInfo interface {
	SPR() (string, error)
	PeerID() (string, error)
	Connect(peerID string, addrs []string) error
	DebugInfo() (map[string]any, error)
}

// Option configures a Server at construction.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithPeerInfo wires a peer-to-peer transport's identity/debug surface
// into the /spr, /peerid, /connect, and /debug/info endpoints.
func WithPeerInfo(p PeerInfo) Option {
	return func(s *Server) { s.peers = p }
}

// WithCORSOrigin overrides the default "*" Access-Control-Allow-Origin
// value, matching the origin the node's config names.
func WithCORSOrigin(origin string) Option {
	return func(s *Server) {
		if origin != "" {
			s.corsOrigin = origin
		}
	}
}

// WithNodeLogger lets /debug/chronicles/loglevel reach into the node's
// own runtime-adjustable logger rather than only affecting the
// server's request log.
func WithNodeLogger(l *logging.Logger) Option {
	return func(s *Server) { s.nodeLog = l }
}

// Server is the REST front end over a single node engine.
type Server struct {
	mux        *http.ServeMux
	engine     *node.Engine
	store      blockstore.Store
	uploads    *session.UploadManager
	downloads  *session.DownloadManager
	peers      PeerInfo
	log        *slog.Logger
	nodeLog    *logging.Logger
	corsOrigin string
}

// New builds a Server wrapping engine and store, applying opts in
// order.
func New(engine *node.Engine, store blockstore.Store, opts ...Option) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		engine:     engine,
		store:      store,
		uploads:    session.NewUploadManager(engine),
		downloads:  session.NewDownloadManager(engine),
		log:        slog.Default(),
		corsOrigin: "*",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /data", s.handleStore)
	s.mux.HandleFunc("GET /data", s.handleList)
	s.mux.HandleFunc("GET /data/{cid}", s.handleGet)
	s.mux.HandleFunc("DELETE /data/{cid}", s.handleDelete)
	s.mux.HandleFunc("POST /data/{cid}/network", s.handleNetworkFetch)
	s.mux.HandleFunc("GET /data/{cid}/network/stream", s.handleNetworkStream)
	s.mux.HandleFunc("GET /data/{cid}/network/manifest", s.handleNetworkManifest)
	s.mux.HandleFunc("GET /data/{cid}/exists", s.handleExists)
	s.mux.HandleFunc("GET /space", s.handleSpace)
	s.mux.HandleFunc("GET /spr", s.handleSPR)
	s.mux.HandleFunc("GET /peerid", s.handlePeerID)
	s.mux.HandleFunc("GET /connect/{peerId}", s.handleConnect)
	s.mux.HandleFunc("GET /debug/info", s.handleDebugInfo)
	s.mux.HandleFunc("POST /debug/chronicles/loglevel", s.handleSetLogLevel)
}

// ServeHTTP applies CORS headers, then dispatches to the route mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	if s.corsOrigin != "*" {
		w.Header().Set("Vary", "Origin")
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mux.ServeHTTP(w, r)
}
