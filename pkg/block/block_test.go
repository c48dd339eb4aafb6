package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

func TestNewComputesCid(t *testing.T) {
	b, err := New([]byte("hello world"))
	require.NoError(t, err)
	assert.False(t, b.CID().IsZero())
	assert.False(t, b.CID().IsManifest())
}

func TestVerifiedBlockRoundTrip(t *testing.T) {
	b, err := New([]byte("payload"))
	require.NoError(t, err)

	verified, err := NewVerified(b.CID(), b.RawData())
	require.NoError(t, err)
	assert.Equal(t, b.RawData(), verified.RawData())
}

func TestVerifiedBlockRejectsTamperedBytes(t *testing.T) {
	b, err := New([]byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte{}, b.RawData()...)
	tampered[0] ^= 0xFF

	_, err = NewVerified(b.CID(), tampered)
	require.Error(t, err)
	assert.True(t, storageerr.Matches(err, storageerr.InvalidBlock))
}

func TestTrustedBlockSkipsVerification(t *testing.T) {
	b, err := New([]byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte{}, b.RawData()...)
	tampered[0] ^= 0xFF

	trusted := NewTrusted(b.CID(), tampered)
	assert.Equal(t, tampered, trusted.RawData())
}
