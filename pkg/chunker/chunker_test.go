package chunker

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextYieldsFixedSizeChunksAndShortFinal(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 25)
	c, err := New(bytes.NewReader(data), 10)
	require.NoError(t, err)

	var chunks [][]byte
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}

	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 10)
	require.Len(t, chunks[1], 10)
	require.Len(t, chunks[2], 5)
	require.Equal(t, uint64(25), c.Offset())
}

func TestNextOnEmptyStream(t *testing.T) {
	c, err := New(bytes.NewReader(nil), 10)
	require.NoError(t, err)

	_, err = c.Next()
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, uint64(0), c.Offset())
}

func TestNewRejectsZeroBlockSize(t *testing.T) {
	_, err := New(bytes.NewReader(nil), 0)
	require.Error(t, err)
}
