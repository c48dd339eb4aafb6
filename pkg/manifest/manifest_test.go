package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

func sampleTreeCid(t *testing.T) hashcodec.CID {
	t.Helper()
	h, err := hashcodec.ComputeHash(hashcodec.SHA2_256, []byte("dataset-root"))
	require.NoError(t, err)
	c, err := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.DatasetRootCodec, h)
	require.NoError(t, err)
	return c
}

func TestRoundTripWithFilenameAndMimetype(t *testing.T) {
	m := Manifest{
		TreeCid:     sampleTreeCid(t),
		BlockSize:   65536,
		DatasetSize: 12,
		Codec:       hashcodec.BlockCodec,
		HashCodec:   hashcodec.SHA2_256,
		CidVersion:  hashcodec.CidVersion,
		Filename:    "hello_world.txt",
		HasFilename: true,
		Mimetype:    "text/plain",
		HasMimetype: true,
	}

	decoded, err := Decode(Encode(m))
	require.NoError(t, err)
	require.True(t, m.Equal(decoded))
}

func TestRoundTripWithoutOptionalFields(t *testing.T) {
	m := Manifest{
		TreeCid:     sampleTreeCid(t),
		BlockSize:   1024,
		DatasetSize: 4096,
		Codec:       hashcodec.BlockCodec,
		HashCodec:   hashcodec.SHA2_256,
		CidVersion:  hashcodec.CidVersion,
	}

	decoded, err := Decode(Encode(m))
	require.NoError(t, err)
	require.True(t, m.Equal(decoded))
	require.False(t, decoded.HasFilename)
	require.False(t, decoded.HasMimetype)
}

func TestDecodeRejectsMissingRequiredField(t *testing.T) {
	m := Manifest{
		TreeCid:     sampleTreeCid(t),
		BlockSize:   1024,
		DatasetSize: 4096,
		Codec:       hashcodec.BlockCodec,
		HashCodec:   hashcodec.SHA2_256,
		CidVersion:  hashcodec.CidVersion,
	}
	encoded := Encode(m)

	_, err := Decode(encoded[:0])
	require.Error(t, err)
	require.Equal(t, storageerr.MalformedManifest, storageerr.KindOf(err))
}

func TestBlocksCount(t *testing.T) {
	m := Manifest{BlockSize: 10, DatasetSize: 25}
	require.Equal(t, uint64(3), m.BlocksCount())

	m = Manifest{BlockSize: 10, DatasetSize: 30}
	require.Equal(t, uint64(3), m.BlocksCount())
}

func TestJSONProjectionRoundTrip(t *testing.T) {
	m := Manifest{
		TreeCid:     sampleTreeCid(t),
		BlockSize:   65536,
		DatasetSize: 12,
		Codec:       hashcodec.BlockCodec,
		HashCodec:   hashcodec.SHA2_256,
		CidVersion:  hashcodec.CidVersion,
		Filename:    "hello_world.txt",
		HasFilename: true,
		Mimetype:    "text/plain",
		HasMimetype: true,
	}

	j := m.ToJSON()
	require.False(t, j.Protected)
	require.Equal(t, "hello_world.txt", j.Filename)

	back, err := FromJSON(j, hashcodec.BlockCodec, hashcodec.SHA2_256)
	require.NoError(t, err)
	require.True(t, back.TreeCid.Equals(m.TreeCid))
	require.Equal(t, m.DatasetSize, back.DatasetSize)
}
