// Package node implements the storage node's engine: turning a byte
// stream into a dataset (chunk, hash, build a Merkle tree, write a
// manifest), and turning a dataset CID back into bytes, with local
// storage and peer-to-peer fallback.
package node

import (
	"context"
	"io"
	"log/slog"

	"github.com/nipsysdev/logos-storage-go/pkg/block"
	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/chunker"
	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/manifest"
	"github.com/nipsysdev/logos-storage-go/pkg/merkle"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Engine drives the store/retrieve/delete operations of a single
// storage node. It owns no goroutines of its own beyond the ones
// FetchBatched and background prefetch spawn per call.
type Engine struct {
	store     blockstore.Store
	network   Network
	pool      *merkle.WorkerPool
	hashCodec hashcodec.HashCodec
	log       *slog.Logger
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithNetwork supplies the peer-to-peer fallback used when a block is
// not present locally.
func WithNetwork(n Network) Option {
	return func(e *Engine) { e.network = n }
}

// WithWorkerPool supplies a shared pool for Merkle construction
// offload; without it every Store call builds its tree synchronously.
func WithWorkerPool(pool *merkle.WorkerPool) Option {
	return func(e *Engine) { e.pool = pool }
}

// WithHashCodec overrides the default leaf/tree hash codec
// (hashcodec.SHA2_256).
func WithHashCodec(codec hashcodec.HashCodec) Option {
	return func(e *Engine) { e.hashCodec = codec }
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.log = logger }
}

// New builds an Engine over store, applying opts in order.
func New(store blockstore.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, storageerr.Newf(storageerr.InvalidArgument, "node.New", "store must not be nil")
	}
	e := &Engine{
		store:     store,
		network:   noNetwork{},
		hashCodec: hashcodec.SHA2_256,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func errBlockUnavailable(cid hashcodec.CID) error {
	return storageerr.Newf(storageerr.NotFound, "node.getBlock", "block %s not available locally or on the network", cid.String())
}

// getBlock fetches a block's bytes, preferring the local store and
// falling back to the network. A network hit is written back to the
// local store so subsequent gets are local.
func (e *Engine) getBlock(ctx context.Context, cid hashcodec.CID) ([]byte, error) {
	data, err := e.store.Get(ctx, cid)
	if err == nil {
		return data, nil
	}
	if storageerr.KindOf(err) != storageerr.NotFound {
		return nil, err
	}

	data, err = e.network.FetchBlock(ctx, cid)
	if err != nil {
		return nil, err
	}
	if _, err := block.NewVerified(cid, data); err != nil {
		return nil, storageerr.Wrap(storageerr.InvalidBlock, "node.getBlock", err)
	}
	if putErr := e.store.Put(ctx, cid, data); putErr != nil {
		e.log.Warn("failed to cache network-fetched block locally", "cid", cid.String(), "err", putErr)
	}
	return data, nil
}

// getBlockByIndex fetches the block at (treeCid, index), preferring
// the local store's index entry and falling back to the network. A
// network hit is cached locally by CID only: the network protocol
// doesn't carry the leaf's inclusion proof, so the (treeCid, index)
// mapping itself is not repopulated.
func (e *Engine) getBlockByIndex(ctx context.Context, treeCid hashcodec.CID, index int) ([]byte, error) {
	data, err := e.store.GetByIndex(ctx, treeCid, index)
	if err == nil {
		return data, nil
	}
	if storageerr.KindOf(err) != storageerr.NotFound {
		return nil, err
	}

	cid, data, err := e.network.FetchBlockByIndex(ctx, treeCid, index)
	if err != nil {
		return nil, err
	}
	if _, err := block.NewVerified(cid, data); err != nil {
		return nil, storageerr.Wrap(storageerr.InvalidBlock, "node.getBlockByIndex", err)
	}
	if putErr := e.store.Put(ctx, cid, data); putErr != nil {
		e.log.Warn("failed to cache network-fetched block locally", "cid", cid.String(), "err", putErr)
	}
	return data, nil
}

// HasLocalBlock reports whether cid is present in the local store,
// without touching the network.
func (e *Engine) HasLocalBlock(ctx context.Context, cid hashcodec.CID) (bool, error) {
	return e.store.Has(ctx, cid)
}

// FetchManifest fetches and decodes the manifest addressed by cid,
// rejecting CIDs that don't carry the manifest data-codec.
func (e *Engine) FetchManifest(ctx context.Context, cid hashcodec.CID) (manifest.Manifest, error) {
	if !cid.IsManifest() {
		return manifest.Manifest{}, storageerr.Newf(storageerr.NotAManifest, "node.FetchManifest", "cid %s is not a manifest", cid.String())
	}
	data, err := e.getBlock(ctx, cid)
	if err != nil {
		return manifest.Manifest{}, err
	}
	return manifest.Decode(data)
}

// Store chunks r into blockSize blocks, hashes and persists each one,
// builds a Merkle tree over the leaf hashes, and writes the resulting
// manifest. It returns the manifest's CID.
func (e *Engine) Store(ctx context.Context, r io.Reader, filename, mimetype string, blockSize uint32, onBlockStored func([]byte)) (hashcodec.CID, error) {
	c, err := chunker.New(r, blockSize)
	if err != nil {
		return hashcodec.CID{}, err
	}

	var leaves []hashcodec.Hash
	var cids []hashcodec.CID
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return hashcodec.CID{}, err
		}

		blk, err := block.NewWithHashCodec(chunk, e.hashCodec)
		if err != nil {
			return hashcodec.CID{}, err
		}
		if err := e.store.Put(ctx, blk.CID(), blk.RawData()); err != nil {
			return hashcodec.CID{}, err
		}

		leafHash, err := blk.CID().Hash()
		if err != nil {
			return hashcodec.CID{}, storageerr.Wrap(storageerr.Internal, "node.Store", err)
		}
		leaves = append(leaves, leafHash)
		cids = append(cids, blk.CID())

		if onBlockStored != nil {
			onBlockStored(chunk)
		}
	}

	if len(leaves) == 0 {
		leaves = append(leaves, hashcodec.Hash{})
		empty, err := hashcodec.ComputeHash(e.hashCodec, nil)
		if err != nil {
			return hashcodec.CID{}, storageerr.Wrap(storageerr.Internal, "node.Store", err)
		}
		leaves[0] = empty
		emptyCid, err := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.BlockCodec, empty)
		if err != nil {
			return hashcodec.CID{}, storageerr.Wrap(storageerr.Internal, "node.Store", err)
		}
		if err := e.store.Put(ctx, emptyCid, nil); err != nil {
			return hashcodec.CID{}, err
		}
		cids = append(cids, emptyCid)
	}

	var tree *merkle.Tree
	if e.pool != nil && len(leaves) > 1024 {
		tree, err = merkle.BuildAsync(e.hashCodec, leaves, e.pool)
	} else {
		tree, err = merkle.Build(e.hashCodec, leaves)
	}
	if err != nil {
		return hashcodec.CID{}, err
	}

	rootHash := tree.Root()
	treeCid, err := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.DatasetRootCodec, rootHash)
	if err != nil {
		return hashcodec.CID{}, storageerr.Wrap(storageerr.Internal, "node.Store", err)
	}

	for i, cid := range cids {
		proof, err := tree.GetProof(i)
		if err != nil {
			return hashcodec.CID{}, err
		}
		if err := e.store.PutCidAndProof(ctx, treeCid, i, cid, proof); err != nil {
			return hashcodec.CID{}, err
		}
	}

	m := manifest.Manifest{
		TreeCid:     treeCid,
		BlockSize:   blockSize,
		DatasetSize: c.Offset(),
		Codec:       hashcodec.BlockCodec,
		HashCodec:   e.hashCodec,
		CidVersion:  hashcodec.CidVersion,
		Filename:    filename,
		HasFilename: filename != "",
		Mimetype:    mimetype,
		HasMimetype: mimetype != "",
	}
	encoded := manifest.Encode(m)
	manifestHash, err := hashcodec.ComputeHash(e.hashCodec, encoded)
	if err != nil {
		return hashcodec.CID{}, storageerr.Wrap(storageerr.Internal, "node.Store", err)
	}
	manifestCid, err := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.ManifestCodec, manifestHash)
	if err != nil {
		return hashcodec.CID{}, storageerr.Wrap(storageerr.Internal, "node.Store", err)
	}
	if err := e.store.Put(ctx, manifestCid, encoded); err != nil {
		return hashcodec.CID{}, err
	}

	return manifestCid, nil
}

// IterateManifests decodes every manifest CID in the local store and
// invokes callback with each one. A callback error stops iteration and
// is returned.
func (e *Engine) IterateManifests(ctx context.Context, callback func(hashcodec.CID, manifest.Manifest) error) error {
	cids, err := e.store.ListBlocks(ctx, blockstore.ListManifests)
	if err != nil {
		return err
	}
	for _, cid := range cids {
		m, err := e.FetchManifest(ctx, cid)
		if err != nil {
			return err
		}
		if err := callback(cid, m); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a dataset (or single block) by CID. Deleting an
// absent manifest is a no-op success.
func (e *Engine) Delete(ctx context.Context, cid hashcodec.CID) error {
	if !cid.IsManifest() {
		return e.store.Delete(ctx, cid)
	}

	present, err := e.store.Has(ctx, cid)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}

	m, err := e.FetchManifest(ctx, cid)
	if err != nil {
		return err
	}

	var firstErr error
	for i := uint64(0); i < m.BlocksCount(); i++ {
		data, err := e.store.GetByIndex(ctx, m.TreeCid, int(i))
		if err == nil {
			leafHash, hashErr := hashcodec.ComputeHash(m.HashCodec, data)
			if hashErr == nil {
				leafCid, cidErr := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.BlockCodec, leafHash)
				if cidErr == nil {
					if delErr := e.store.Delete(ctx, leafCid); delErr != nil && firstErr == nil {
						firstErr = delErr
					}
				}
			}
		} else if storageerr.KindOf(err) != storageerr.NotFound && firstErr == nil {
			firstErr = err
		}

		if delErr := e.store.DeleteByIndex(ctx, m.TreeCid, int(i)); delErr != nil && firstErr == nil {
			firstErr = delErr
		}
	}

	if err := e.store.Delete(ctx, cid); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
