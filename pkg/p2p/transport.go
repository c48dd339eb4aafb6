// Package p2p implements the node's peer-to-peer block exchange over
// QUIC: dialing and accepting connections, and serving block/index
// fetches to whichever side of a connection asks first.
package p2p

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
)

const (
	alpnProtocol     = "logos-storage/1"
	handshakeTimeout = 10 * time.Second
	idleTimeout      = 30 * time.Second
	certValidityDays = 365
)

// Transport is a QUIC-backed peer connection pool over a node's local
// block store: incoming streams are served block/index fetch requests,
// outgoing streams issue them against a remote peer.
type Transport struct {
	mu          sync.RWMutex
	listener    *quic.Listener
	connections map[string]*quic.Conn
	store       blockstore.Store
	tlsCert     tls.Certificate
	peerID      string
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// Listen builds a Transport bound to listenAddr, serving fetches
// against store. The peer ID is derived from the transport's
// self-signed certificate's public key, the same way the node
// derives IDs for the peers it dials. A fresh identity key is
// generated for the lifetime of the transport.
func Listen(listenAddr string, store blockstore.Store, log *slog.Logger) (*Transport, error) {
	return ListenWithKey(listenAddr, nil, store, log)
}

// ListenWithKey is Listen but with a caller-supplied identity key,
// letting a peer ID survive process restarts when the caller persists
// and reloads the same key. A nil key generates a fresh one.
func ListenWithKey(listenAddr string, key *ecdsa.PrivateKey, store blockstore.Store, log *slog.Logger) (*Transport, error) {
	if log == nil {
		log = slog.Default()
	}
	cert, err := generateSelfSignedCert(key)
	if err != nil {
		return nil, fmt.Errorf("p2p: generate TLS cert: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		connections: make(map[string]*quic.Conn),
		store:       store,
		tlsCert:     cert,
		peerID:      certPeerID(cert),
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}

	listener, err := quic.ListenAddr(listenAddr, t.serverTLSConfig(), t.quicConfig())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("p2p: listen %s: %w", listenAddr, err)
	}
	t.listener = listener

	t.wg.Add(1)
	go t.acceptLoop()

	return t, nil
}

// ListenAddr reports the transport's actual bound address.
func (t *Transport) ListenAddr() string {
	return t.listener.Addr().String()
}

// PeerID returns this node's own peer identifier.
func (t *Transport) PeerID() (string, error) {
	return t.peerID, nil
}

func (t *Transport) acceptLoop() {
	defer t.wg.Done()
	for {
		conn, err := t.listener.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.log.Warn("p2p: accept failed", "error", err)
			continue
		}
		id := connPeerID(conn)
		t.mu.Lock()
		t.connections[id] = conn
		t.mu.Unlock()
		t.wg.Add(1)
		go t.serveConn(conn)
	}
}

func (t *Transport) serveConn(conn *quic.Conn) {
	defer t.wg.Done()
	for {
		stream, err := conn.AcceptStream(t.ctx)
		if err != nil {
			return
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.serveStream(stream)
		}()
	}
}

// dial opens (or reuses) a connection to a peer at addr and returns
// it, keyed by the peer's certificate-derived ID once known.
func (t *Transport) dial(ctx context.Context, addr string) (*quic.Conn, error) {
	conn, err := quic.DialAddr(ctx, addr, t.clientTLSConfig(), t.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("p2p: dial %s: %w", addr, err)
	}
	id := connPeerID(conn)
	t.mu.Lock()
	t.connections[id] = conn
	t.mu.Unlock()
	return conn, nil
}

// Connect dials every address in addrs until one succeeds, registering
// the resulting connection under peerID for subsequent fetches.
func (t *Transport) Connect(peerID string, addrs []string) error {
	if len(addrs) == 0 {
		return fmt.Errorf("p2p: no addresses given for peer %s", peerID)
	}
	var lastErr error
	for _, addr := range addrs {
		conn, err := t.dial(t.ctx, addr)
		if err != nil {
			lastErr = err
			continue
		}
		t.mu.Lock()
		t.connections[peerID] = conn
		t.mu.Unlock()
		return nil
	}
	return lastErr
}

// DebugInfo reports a minimal snapshot of the transport's state for
// the /debug/info endpoint.
func (t *Transport) DebugInfo() (map[string]any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	peers := make([]string, 0, len(t.connections))
	for id := range t.connections {
		peers = append(peers, id)
	}
	return map[string]any{
		"peerId":      t.peerID,
		"listenAddr":  t.listener.Addr().String(),
		"connections": peers,
	}, nil
}

// PeerDebug reports whether peerID is currently connected, matching
// the shape of a peer-specific debug lookup: an unknown or
// disconnected peer is not an error, just an empty/false record.
func (t *Transport) PeerDebug(peerID string) (map[string]any, error) {
	t.mu.RLock()
	_, connected := t.connections[peerID]
	t.mu.RUnlock()
	return map[string]any{
		"peerId":    peerID,
		"connected": connected,
	}, nil
}

// Close shuts down the listener and every open connection.
func (t *Transport) Close() error {
	t.cancel()
	t.mu.Lock()
	conns := make([]*quic.Conn, 0, len(t.connections))
	for _, c := range t.connections {
		conns = append(conns, c)
	}
	t.connections = make(map[string]*quic.Conn)
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.CloseWithError(0, "closing")
	}
	err := t.listener.Close()
	t.wg.Wait()
	return err
}

func (t *Transport) serverTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{t.tlsCert},
		ClientAuth:   tls.RequireAnyClientCert,
		NextProtos:   []string{alpnProtocol},
		MinVersion:   tls.VersionTLS13,
	}
}

func (t *Transport) clientTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{t.tlsCert},
		// Peer identity is derived from the certificate itself once
		// connected, not validated against a CA: this transport trusts
		// whoever the bootstrap/discovery layer told it to dial.
		InsecureSkipVerify: true,
		NextProtos:         []string{alpnProtocol},
		MinVersion:         tls.VersionTLS13,
	}
}

func (t *Transport) quicConfig() *quic.Config {
	return &quic.Config{
		HandshakeIdleTimeout: handshakeTimeout,
		MaxIdleTimeout:       idleTimeout,
	}
}

func connPeerID(conn *quic.Conn) string {
	state := conn.ConnectionState()
	certs := state.TLS.PeerCertificates
	if len(certs) == 0 {
		return ""
	}
	h := sha256.Sum256(certs[0].RawSubjectPublicKeyInfo)
	return hex.EncodeToString(h[:])
}

func certPeerID(cert tls.Certificate) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return ""
	}
	h := sha256.Sum256(leaf.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(h[:])
}

func generateSelfSignedCert(key *ecdsa.PrivateKey) (tls.Certificate, error) {
	if key == nil {
		var err error
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
		}
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject:      pkix.Name{Organization: []string{"logos-storage"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(certValidityDays * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create cert: %w", err)
	}

	return tls.Certificate{Certificate: [][]byte{certDER}, PrivateKey: key}, nil
}
