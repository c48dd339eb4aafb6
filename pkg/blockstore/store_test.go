package blockstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/merkle"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

type storeCtor struct {
	name string
	new  func(t *testing.T, quota uint64) Store
}

func storeCtors() []storeCtor {
	return []storeCtor{
		{"memory", func(t *testing.T, quota uint64) Store {
			return NewMemoryStore(quota)
		}},
		{"filetree", func(t *testing.T, quota uint64) Store {
			s, err := OpenFileTreeStore(t.TempDir(), quota)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
		{"badger", func(t *testing.T, quota uint64) Store {
			s, err := OpenBadgerStore(t.TempDir(), quota)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
		{"leveldb", func(t *testing.T, quota uint64) Store {
			s, err := OpenLevelDBStore(t.TempDir(), quota)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

func testBlock(t *testing.T, content string) (hashcodec.CID, []byte) {
	t.Helper()
	data := []byte(content)
	h, err := hashcodec.ComputeHash(hashcodec.SHA2_256, data)
	require.NoError(t, err)
	cid, err := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.BlockCodec, h)
	require.NoError(t, err)
	return cid, data
}

func TestPutIdempotence(t *testing.T) {
	ctx := context.Background()
	for _, c := range storeCtors() {
		t.Run(c.name, func(t *testing.T) {
			store := c.new(t, 0)
			cid, data := testBlock(t, "idempotent block")

			require.NoError(t, store.Put(ctx, cid, data))
			require.NoError(t, store.Put(ctx, cid, data))

			total, err := store.TotalBlocks(ctx)
			require.NoError(t, err)
			require.Equal(t, uint64(1), total)

			used, err := store.QuotaUsedBytes(ctx)
			require.NoError(t, err)
			require.Equal(t, uint64(len(data)), used)
		})
	}
}

func TestGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, c := range storeCtors() {
		t.Run(c.name, func(t *testing.T) {
			store := c.new(t, 0)
			cid, data := testBlock(t, "round trip")
			require.NoError(t, store.Put(ctx, cid, data))

			got, err := store.Get(ctx, cid)
			require.NoError(t, err)
			require.Equal(t, data, got)

			has, err := store.Has(ctx, cid)
			require.NoError(t, err)
			require.True(t, has)
		})
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	for _, c := range storeCtors() {
		t.Run(c.name, func(t *testing.T) {
			store := c.new(t, 0)
			cid, _ := testBlock(t, "never stored")

			_, err := store.Get(ctx, cid)
			require.Equal(t, storageerr.NotFound, storageerr.KindOf(err))
		})
	}
}

func TestDeleteOfAbsentIsOK(t *testing.T) {
	ctx := context.Background()
	for _, c := range storeCtors() {
		t.Run(c.name, func(t *testing.T) {
			store := c.new(t, 0)
			cid, _ := testBlock(t, "never stored")
			require.NoError(t, store.Delete(ctx, cid))
		})
	}
}

func TestPutRejectsOverQuota(t *testing.T) {
	ctx := context.Background()
	for _, c := range storeCtors() {
		t.Run(c.name, func(t *testing.T) {
			store := c.new(t, 4)
			cid, data := testBlock(t, "too big for quota")

			err := store.Put(ctx, cid, data)
			require.Equal(t, storageerr.QuotaExceeded, storageerr.KindOf(err))
		})
	}
}

func TestListBlocksFiltersManifests(t *testing.T) {
	ctx := context.Background()
	for _, c := range storeCtors() {
		t.Run(c.name, func(t *testing.T) {
			store := c.new(t, 0)

			blockCid, blockData := testBlock(t, "leaf block")
			require.NoError(t, store.Put(ctx, blockCid, blockData))

			mh, err := hashcodec.ComputeHash(hashcodec.SHA2_256, []byte("a manifest"))
			require.NoError(t, err)
			manifestCid, err := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.ManifestCodec, mh)
			require.NoError(t, err)
			require.NoError(t, store.Put(ctx, manifestCid, []byte("a manifest")))

			all, err := store.ListBlocks(ctx, ListAll)
			require.NoError(t, err)
			require.Len(t, all, 2)

			manifests, err := store.ListBlocks(ctx, ListManifests)
			require.NoError(t, err)
			require.Len(t, manifests, 1)
			require.True(t, manifests[0].Equals(manifestCid))
		})
	}
}

func TestPutCidAndProofRoundTripsThroughGetByIndex(t *testing.T) {
	ctx := context.Background()
	for _, c := range storeCtors() {
		t.Run(c.name, func(t *testing.T) {
			store := c.new(t, 0)

			leafCid, leafData := testBlock(t, "leaf 0")
			require.NoError(t, store.Put(ctx, leafCid, leafData))

			leafHash, err := hashcodec.ComputeHash(hashcodec.SHA2_256, leafData)
			require.NoError(t, err)
			tree, err := merkle.Build(hashcodec.SHA2_256, []hashcodec.Hash{leafHash})
			require.NoError(t, err)
			proof, err := tree.GetProof(0)
			require.NoError(t, err)

			rootHash, err := hashcodec.ComputeHash(hashcodec.SHA2_256, []byte("tree root"))
			require.NoError(t, err)
			treeCid, err := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.DatasetRootCodec, rootHash)
			require.NoError(t, err)

			require.NoError(t, store.PutCidAndProof(ctx, treeCid, 0, leafCid, proof))

			got, err := store.GetByIndex(ctx, treeCid, 0)
			require.NoError(t, err)
			require.Equal(t, leafData, got)

			require.NoError(t, store.DeleteByIndex(ctx, treeCid, 0))
			_, err = store.GetByIndex(ctx, treeCid, 0)
			require.Equal(t, storageerr.NotFound, storageerr.KindOf(err))
		})
	}
}
