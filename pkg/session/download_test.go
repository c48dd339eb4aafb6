package session

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
)

func newTestDownloadManager(t *testing.T) (*DownloadManager, *node.Engine) {
	t.Helper()
	store := blockstore.NewMemoryStore(0)
	e, err := node.New(store)
	require.NoError(t, err)
	return NewDownloadManager(e), e
}

func TestDownloadChunkStepsThroughDataset(t *testing.T) {
	dm, e := newTestDownloadManager(t)
	ctx := context.Background()

	data := []byte("0123456789")
	cid, err := e.Store(ctx, bytes.NewReader(data), "", "", 4, nil)
	require.NoError(t, err)

	id := dm.Init(cid, 4, true, "")

	var got []byte
	for {
		chunk, err := dm.Chunk(ctx, id)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	require.Equal(t, data, got)

	state, err := dm.State(id)
	require.NoError(t, err)
	require.Equal(t, DownloadCompleted, state)
}

func TestDownloadChunkAfterCompletedIsInvalidState(t *testing.T) {
	dm, e := newTestDownloadManager(t)
	ctx := context.Background()

	cid, err := e.Store(ctx, bytes.NewReader([]byte("x")), "", "", 4, nil)
	require.NoError(t, err)

	id := dm.Init(cid, 4, true, "")
	chunk, err := dm.Chunk(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("x"), chunk)

	_, err = dm.Chunk(ctx, id)
	require.ErrorIs(t, err, io.EOF)

	_, err = dm.Chunk(ctx, id)
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
}

func TestDownloadStreamWritesToFile(t *testing.T) {
	dm, e := newTestDownloadManager(t)
	ctx := context.Background()

	data := []byte("the quick brown fox")
	cid, err := e.Store(ctx, bytes.NewReader(data), "", "", 5, nil)
	require.NoError(t, err)

	out := t.TempDir() + "/out.bin"
	id := dm.Init(cid, 5, true, out)

	var delivered []byte
	err = dm.Stream(ctx, id, func(chunk []byte) error {
		delivered = append(delivered, chunk...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, data, delivered)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, data, written)
}

func TestDownloadCancelStopsFurtherChunks(t *testing.T) {
	dm, e := newTestDownloadManager(t)
	ctx := context.Background()

	cid, err := e.Store(ctx, bytes.NewReader([]byte("some bytes here")), "", "", 4, nil)
	require.NoError(t, err)

	id := dm.Init(cid, 4, true, "")
	_, err = dm.Chunk(ctx, id)
	require.NoError(t, err)

	require.NoError(t, dm.Cancel(id))
	require.Error(t, dm.Cancel(id))

	_, err = dm.Chunk(ctx, id)
	require.Error(t, err)
}

func TestDownloadManifestIndependentOfCursor(t *testing.T) {
	dm, e := newTestDownloadManager(t)
	ctx := context.Background()

	cid, err := e.Store(ctx, bytes.NewReader([]byte("payload")), "f.bin", "application/x-test", 4, nil)
	require.NoError(t, err)

	id := dm.Init(cid, 4, true, "")
	j, err := dm.Manifest(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "f.bin", j.Filename)
	require.False(t, j.Protected)

	state, err := dm.State(id)
	require.NoError(t, err)
	require.Equal(t, DownloadInitialized, state)
}
