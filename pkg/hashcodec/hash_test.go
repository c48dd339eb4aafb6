package hashcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashDeterminism(t *testing.T) {
	data := []byte("hello world")
	a, err := ComputeHash(SHA2_256, data)
	require.NoError(t, err)
	b, err := ComputeHash(SHA2_256, data)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestHashCodecsDiffer(t *testing.T) {
	data := []byte("hello world")
	sha, err := ComputeHash(SHA2_256, data)
	require.NoError(t, err)
	pos, err := ComputeHash(Poseidon2, data)
	require.NoError(t, err)
	assert.False(t, sha.Equal(pos))
}

func TestZeroHashSizes(t *testing.T) {
	z, err := ZeroHash(SHA2_256)
	require.NoError(t, err)
	digest, err := z.Digest()
	require.NoError(t, err)
	assert.Len(t, digest, 32)

	zp, err := ZeroHash(Poseidon2)
	require.NoError(t, err)
	digestP, err := zp.Digest()
	require.NoError(t, err)
	assert.Len(t, digestP, 32)
}

func TestHashRoundTrip(t *testing.T) {
	h, err := ComputeHash(SHA2_256, []byte("payload"))
	require.NoError(t, err)
	decoded, err := DecodeHash(h.Bytes())
	require.NoError(t, err)
	assert.True(t, h.Equal(decoded))
	codec, err := decoded.Codec()
	require.NoError(t, err)
	assert.Equal(t, SHA2_256, codec)
}

func TestCidRoundTrip(t *testing.T) {
	h, err := ComputeHash(SHA2_256, []byte("payload"))
	require.NoError(t, err)
	c, err := NewCID(CidVersion, BlockCodec, h)
	require.NoError(t, err)

	parsed, err := ParseCID(c.String())
	require.NoError(t, err)
	assert.True(t, c.Equals(parsed))
	assert.False(t, c.IsManifest())
}

func TestCidIsManifest(t *testing.T) {
	h, err := ComputeHash(SHA2_256, []byte("manifest bytes"))
	require.NoError(t, err)
	c, err := NewCID(CidVersion, ManifestCodec, h)
	require.NoError(t, err)
	assert.True(t, c.IsManifest())
}

func TestCidBytesRoundTrip(t *testing.T) {
	h, err := ComputeHash(SHA2_256, []byte("x"))
	require.NoError(t, err)
	c, err := NewCID(CidVersion, DatasetRootCodec, h)
	require.NoError(t, err)

	decoded, err := DecodeCIDBytes(c.Bytes())
	require.NoError(t, err)
	assert.True(t, c.Equals(decoded))
}

func TestUnsupportedCidVersion(t *testing.T) {
	h, err := ComputeHash(SHA2_256, []byte("x"))
	require.NoError(t, err)
	_, err = NewCID(2, BlockCodec, h)
	assert.Error(t, err)
}
