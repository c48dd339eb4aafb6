package node

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/block"
	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/manifest"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

func newTestEngine(t *testing.T) (*Engine, blockstore.Store) {
	t.Helper()
	store := blockstore.NewMemoryStore(0)
	e, err := New(store)
	require.NoError(t, err)
	return e, store
}

func TestStoreThenRetrieveRoundTrips(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	data := []byte("Hello World!")
	cid, err := e.Store(ctx, bytes.NewReader(data), "hello_world.txt", "text/plain", 65536, nil)
	require.NoError(t, err)
	require.True(t, cid.IsManifest())

	m, err := e.FetchManifest(ctx, cid)
	require.NoError(t, err)
	require.Equal(t, uint64(len(data)), m.DatasetSize)
	require.Equal(t, "hello_world.txt", m.Filename)
	require.Equal(t, "text/plain", m.Mimetype)

	r, err := e.Retrieve(ctx, cid, true)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestStoreThenRetrieveMultipleBlocks(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	data := bytes.Repeat([]byte{0x42}, 1000)
	cid, err := e.Store(ctx, bytes.NewReader(data), "", "", 100, nil)
	require.NoError(t, err)

	r, err := e.Retrieve(ctx, cid, true)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDeleteRemovesManifestAndBlocks(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	data := []byte("delete me please")
	cid, err := e.Store(ctx, bytes.NewReader(data), "", "", 4, nil)
	require.NoError(t, err)

	require.NoError(t, e.Delete(ctx, cid))

	has, err := store.Has(ctx, cid)
	require.NoError(t, err)
	require.False(t, has)

	_, err = e.FetchManifest(ctx, cid)
	require.Equal(t, storageerr.NotFound, storageerr.KindOf(err))
}

func TestDeleteOfAbsentManifestIsNoop(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	empty, err := e.Store(ctx, bytes.NewReader(nil), "", "", 4, nil)
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, empty))
	require.NoError(t, e.Delete(ctx, empty))
}

func TestFetchBatchedReportsFailureCount(t *testing.T) {
	e, store := newTestEngine(t)
	memStore := store.(*blockstore.MemoryStore)
	ctx := context.Background()

	data := bytes.Repeat([]byte{0x01}, 64*1024)
	cid, err := e.Store(ctx, bytes.NewReader(data), "", "", 65536, nil)
	require.NoError(t, err)

	m, err := e.FetchManifest(ctx, cid)
	require.NoError(t, err)

	blk, err := block.NewWithHashCodec(data, hashcodec.SHA2_256)
	require.NoError(t, err)
	mutated := append([]byte(nil), data...)
	mutated[0] ^= 0xFF
	memStore.CorruptForTest(blk.CID(), mutated)

	called := false
	result, err := e.FetchBatched(ctx, FetchBatchedRequest{
		Manifest:  &m,
		BatchSize: 1,
		OnBatch: func([]FetchedBlock) error {
			called = true
			return nil
		},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "1")
	require.Len(t, result.FailedIndices, 1)
	require.False(t, called)
}

func TestFetchBatchedOnBatchNeverExceedsCap(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	data := bytes.Repeat([]byte{0x02}, 500)
	cid, err := e.Store(ctx, bytes.NewReader(data), "", "", 10, nil)
	require.NoError(t, err)

	m, err := e.FetchManifest(ctx, cid)
	require.NoError(t, err)

	var totalDelivered int
	result, err := e.FetchBatched(ctx, FetchBatchedRequest{
		Manifest:  &m,
		BatchSize: 8,
		OnBatch: func(blocks []FetchedBlock) error {
			require.LessOrEqual(t, len(blocks), 8)
			totalDelivered += len(blocks)
			return nil
		},
		FetchLocal: true,
	})
	require.NoError(t, err)
	require.Equal(t, result.Succeeded, totalDelivered)
}

func TestIterateManifestsVisitsEveryManifest(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	cidA, err := e.Store(ctx, bytes.NewReader([]byte("dataset A")), "a.txt", "", 8, nil)
	require.NoError(t, err)
	cidB, err := e.Store(ctx, bytes.NewReader([]byte("dataset B")), "b.txt", "", 8, nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	err = e.IterateManifests(ctx, func(cid hashcodec.CID, m manifest.Manifest) error {
		seen[cid.String()] = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, seen[cidA.String()])
	require.True(t, seen[cidB.String()])
}
