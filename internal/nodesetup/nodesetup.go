// Package nodesetup builds the storage/network stack shared by every
// entry point this module ships: the plain daemon and the cgo-exported
// FFI shim both need the same store, engine and transport wiring.
package nodesetup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/config"
	"github.com/nipsysdev/logos-storage-go/pkg/merkle"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
	"github.com/nipsysdev/logos-storage-go/pkg/p2p"
)

// Node bundles the pieces a running storage node is built from, so
// callers can shut them down in the right order.
type Node struct {
	Store     blockstore.Store
	Engine    *node.Engine
	Transport *p2p.Transport
}

// Build opens the configured block store, starts the P2P transport
// under a persisted identity key, and wires both into a node engine.
func Build(cfg config.Config, log *slog.Logger) (*Node, error) {
	if err := EnsureDataDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("prepare data directory: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open block store: %w", err)
	}

	pool := merkle.NewWorkerPool(cfg.NumThreads)

	keyPath := filepath.Join(cfg.DataDir, "node.key")
	identityKey, err := p2p.LoadOrCreateKey(keyPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load node identity: %w", err)
	}

	listenAddr := ":0"
	if len(cfg.ListenAddrs) > 0 {
		listenAddr = cfg.ListenAddrs[0]
	}
	transport, err := p2p.ListenWithKey(listenAddr, identityKey, store, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("start p2p transport: %w", err)
	}

	if cfg.BootstrapNode != "" {
		if err := transport.Connect("bootstrap", []string{cfg.BootstrapNode}); err != nil {
			log.Warn("failed to connect to bootstrap node", "addr", cfg.BootstrapNode, "error", err)
		}
	}

	engine, err := node.New(store,
		node.WithNetwork(transport),
		node.WithWorkerPool(pool),
		node.WithLogger(log))
	if err != nil {
		transport.Close()
		store.Close()
		return nil, fmt.Errorf("build node engine: %w", err)
	}

	return &Node{Store: store, Engine: engine, Transport: transport}, nil
}

// Close shuts the transport and store down, in that order so no
// in-flight fetch reaches a closed store.
func (n *Node) Close() error {
	if err := n.Transport.Close(); err != nil {
		return err
	}
	return n.Store.Close()
}

// EnsureDataDir creates the node's persisted state directory if
// missing and rejects one that already exists with looser than
// owner-only permissions, since it holds the node's identity key and
// block store.
func EnsureDataDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o700)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", dir)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return fmt.Errorf("%s has group/world permissions %o, refusing to use it", dir, info.Mode().Perm())
	}
	return nil
}

func openStore(cfg config.Config) (blockstore.Store, error) {
	switch cfg.StorageBackend {
	case "badger", "":
		return blockstore.OpenBadgerStore(filepath.Join(cfg.DataDir, "badger"), cfg.StorageQuota)
	case "leveldb":
		return blockstore.OpenLevelDBStore(filepath.Join(cfg.DataDir, "leveldb"), cfg.StorageQuota)
	case "filetree":
		return blockstore.OpenFileTreeStore(filepath.Join(cfg.DataDir, "blocks"), cfg.StorageQuota)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
