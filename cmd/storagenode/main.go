package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nipsysdev/logos-storage-go/internal/nodesetup"
	"github.com/nipsysdev/logos-storage-go/pkg/apiserver"
	"github.com/nipsysdev/logos-storage-go/pkg/config"
	"github.com/nipsysdev/logos-storage-go/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logos-storage-go:", err)
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logos-storage-go:", err)
		os.Exit(1)
	}
	nodeLog := logging.NewWithFormat(level, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		nodeLog.InfoContext(ctx, "received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, nodeLog); err != nil {
		nodeLog.ErrorContext(context.Background(), "daemon error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Parse("{}")
	}
	f, err := os.Open(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	return config.Load(f)
}

// run wires the storage, engine, transport and API layers together
// and blocks until ctx is cancelled. It is separated from main so it
// can be exercised without a real process signal.
func run(ctx context.Context, cfg config.Config, nodeLog *logging.Logger) error {
	n, err := nodesetup.Build(cfg, nodeLog.Logger)
	if err != nil {
		return err
	}
	defer n.Close()

	peerID, _ := n.Transport.PeerID()
	nodeLog.InfoContext(ctx, "p2p transport listening",
		"listenAddr", n.Transport.ListenAddr(),
		"peerId", peerID)

	server := apiserver.New(n.Engine, n.Store,
		apiserver.WithLogger(nodeLog.Logger),
		apiserver.WithNodeLogger(nodeLog),
		apiserver.WithPeerInfo(n.Transport),
		apiserver.WithCORSOrigin(cfg.APICorsAllowedOrigin))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		nodeLog.InfoContext(ctx, "api server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			nodeLog.WarnContext(ctx, "api server did not shut down cleanly", "error", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}
}
