package session

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
)

func newTestUploadManager(t *testing.T) (*UploadManager, *node.Engine) {
	t.Helper()
	store := blockstore.NewMemoryStore(0)
	e, err := node.New(store)
	require.NoError(t, err)
	return NewUploadManager(e), e
}

func TestUploadChunkThenFinalizeProducesCid(t *testing.T) {
	m, e := newTestUploadManager(t)
	ctx := context.Background()

	id := m.Init("hello.txt", 11)
	require.NoError(t, m.Chunk(id, []byte("hello world")))

	cid, err := m.Finalize(ctx, id, "text/plain")
	require.NoError(t, err)

	state, err := m.State(id)
	require.NoError(t, err)
	require.Equal(t, UploadCompleted, state)

	want, err := e.Store(ctx, bytes.NewReader([]byte("hello world")), "hello.txt", "text/plain", 11, nil)
	require.NoError(t, err)
	require.True(t, cid.Equals(want))
}

func TestUploadChunkAfterFinalizeIsInvalidState(t *testing.T) {
	m, _ := newTestUploadManager(t)
	ctx := context.Background()

	id := m.Init("hello.txt", 11)
	_, err := m.Finalize(ctx, id, "")
	require.NoError(t, err)

	err = m.Chunk(id, []byte("more"))
	require.Error(t, err)
}

func TestUploadCancelDiscardsBuffer(t *testing.T) {
	m, _ := newTestUploadManager(t)

	id := m.Init("hello.txt", 11)
	require.NoError(t, m.Chunk(id, []byte("hello world")))
	require.NoError(t, m.Cancel(id))

	state, err := m.State(id)
	require.NoError(t, err)
	require.Equal(t, UploadCancelled, state)

	err = m.Chunk(id, []byte("more"))
	require.Error(t, err)
}

func TestUploadFileEmitsProgressPerBlock(t *testing.T) {
	m, _ := newTestUploadManager(t)
	ctx := context.Background()

	f, err := os.CreateTemp(t.TempDir(), "upload-*.bin")
	require.NoError(t, err)
	_, err = f.Write([]byte("abcdefghij"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	id := m.Init(f.Name(), 4)
	var blocks int
	cid, err := m.UploadFile(ctx, id, "application/octet-stream", func(index int, block []byte) {
		blocks++
	})
	require.NoError(t, err)
	require.False(t, cid.IsZero())
	require.Equal(t, 3, blocks)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	m, _ := newTestUploadManager(t)
	require.Error(t, m.Chunk("does-not-exist", nil))
}
