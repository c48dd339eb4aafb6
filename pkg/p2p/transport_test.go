package p2p

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/block"
	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

func newTestTransport(t *testing.T, store blockstore.Store) *Transport {
	t.Helper()
	tr, err := Listen("127.0.0.1:0", store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestConnectThenFetchBlockRoundTrips(t *testing.T) {
	storeA := blockstore.NewMemoryStore(0)
	storeB := blockstore.NewMemoryStore(0)
	nodeA := newTestTransport(t, storeA)
	nodeB := newTestTransport(t, storeB)

	blk, err := block.New([]byte("hello from A"))
	require.NoError(t, err)
	require.NoError(t, storeA.Put(context.Background(), blk.CID(), blk.RawData()))

	require.NoError(t, nodeB.Connect("nodeA", []string{nodeA.ListenAddr()}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := nodeB.FetchBlock(ctx, blk.CID())
	require.NoError(t, err)
	require.Equal(t, []byte("hello from A"), data)
}

func TestFetchBlockNotFoundReportsNotFoundKind(t *testing.T) {
	storeA := blockstore.NewMemoryStore(0)
	storeB := blockstore.NewMemoryStore(0)
	nodeA := newTestTransport(t, storeA)
	nodeB := newTestTransport(t, storeB)

	require.NoError(t, nodeB.Connect("nodeA", []string{nodeA.ListenAddr()}))

	blk, err := block.New([]byte("never stored on A"))
	require.NoError(t, err)
	missing := blk.CID()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = nodeB.FetchBlock(ctx, missing)
	require.Error(t, err)
	require.Equal(t, storageerr.NotFound, storageerr.KindOf(err))
}

func TestFetchBlockWithNoConnectionsFails(t *testing.T) {
	store := blockstore.NewMemoryStore(0)
	node := newTestTransport(t, store)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := node.FetchBlock(ctx, hashcodec.CID{})
	require.Error(t, err)
}

func TestPeerIDIsStableAndSPREncodesIt(t *testing.T) {
	store := blockstore.NewMemoryStore(0)
	node := newTestTransport(t, store)

	id, err := node.PeerID()
	require.NoError(t, err)
	require.NotEmpty(t, id)
	again, err := node.PeerID()
	require.NoError(t, err)
	require.Equal(t, id, again)

	spr, err := node.SPR()
	require.NoError(t, err)
	require.NotEmpty(t, spr)
	record, err := base64.RawURLEncoding.DecodeString(spr)
	require.NoError(t, err)
	require.Contains(t, string(record), id)
}
