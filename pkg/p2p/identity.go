package p2p

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
)

// LoadOrCreateKey reads an ECDSA identity key from path, creating and
// persisting a new one if the file does not exist yet. Keeping the
// same key across restarts keeps a node's peer ID and SPR stable.
func LoadOrCreateKey(path string) (*ecdsa.PrivateKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		return decodeKey(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("p2p: read identity key %s: %w", path, err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("p2p: generate identity key: %w", err)
	}
	if err := saveKey(path, key); err != nil {
		return nil, err
	}
	return key, nil
}

func decodeKey(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("p2p: identity key is not PEM-encoded")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("p2p: parse identity key: %w", err)
	}
	return key, nil
}

func saveKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("p2p: marshal identity key: %w", err)
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("p2p: write identity key %s: %w", path, err)
	}
	return nil
}

// KeyFingerprint is a short hex label for logs, distinct from the
// peer ID (which is derived from the certificate, not the raw key).
func KeyFingerprint(key *ecdsa.PrivateKey) string {
	return hex.EncodeToString(key.PublicKey.X.Bytes())[:16]
}
