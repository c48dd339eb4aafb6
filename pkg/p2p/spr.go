package p2p

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// SPR returns this node's signed peer record: its peer ID and listen
// address, signed with the transport's own certificate key so a
// receiving peer can verify the record came from whoever holds that
// key without a separate identity handshake.
func (t *Transport) SPR() (string, error) {
	addr := t.listener.Addr().String()
	payload := sprPayload(t.peerID, addr)

	key, ok := t.tlsCert.PrivateKey.(*ecdsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("p2p: transport key is not ECDSA")
	}
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", fmt.Errorf("p2p: sign SPR: %w", err)
	}

	record := make([]byte, 0, 4+len(payload)+len(sig))
	var sigLen [4]byte
	binary.BigEndian.PutUint32(sigLen[:], uint32(len(payload)))
	record = append(record, sigLen[:]...)
	record = append(record, payload...)
	record = append(record, sig...)

	return base64.RawURLEncoding.EncodeToString(record), nil
}

func sprPayload(peerID, addr string) []byte {
	return []byte(peerID + "@" + addr)
}
