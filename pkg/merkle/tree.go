// Package merkle builds a flattened, layer-by-layer Merkle tree over
// leaf hashes and produces/verifies inclusion proofs against it. It is
// the cryptographic backbone the node engine uses to derive a
// dataset's tree CID and to verify retrieved blocks.
package merkle

import (
	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Tree is a flattened, layer-by-layer Merkle tree. Layer 0 holds the
// leaves; each following layer holds ceil(prev/2) nodes. The node
// buffer is owned exclusively by the Tree for its lifetime.
type Tree struct {
	codec     hashcodec.HashCodec
	zero      hashcodec.Hash
	nodes     []hashcodec.Hash
	sizes     []int
	offsets   []int
	leafCount int
}

// Build constructs a tree over leaves using codec's compression
// function. It fails with storageerr.InvalidArgument if leaves is
// empty.
func Build(codec hashcodec.HashCodec, leaves []hashcodec.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, storageerr.Newf(storageerr.InvalidArgument, "merkle.Build", "leaf set must not be empty")
	}

	zero, err := hashcodec.ZeroHash(codec)
	if err != nil {
		return nil, storageerr.Wrap(storageerr.Internal, "merkle.Build", err)
	}

	sizes := layerSizes(len(leaves))
	offsets := layerOffsets(sizes)
	nodes := make([]hashcodec.Hash, totalNodes(sizes))
	copy(nodes[offsets[0]:offsets[0]+sizes[0]], leaves)

	t := &Tree{codec: codec, zero: zero, nodes: nodes, sizes: sizes, offsets: offsets, leafCount: len(leaves)}
	if err := t.buildLayers(); err != nil {
		return nil, err
	}
	return t, nil
}

// buildLayers fills layers 1..top from the leaves already copied into
// layer 0, applying the odd-child policy at each level.
func (t *Tree) buildLayers() error {
	for level := 0; level < len(t.sizes)-1; level++ {
		size := t.sizes[level]
		base := t.offsets[level]
		parentBase := t.offsets[level+1]

		for i := 0; i < size; i += 2 {
			left := t.nodes[base+i]
			var (
				right    hashcodec.Hash
				oddChild bool
			)
			if i+1 < size {
				right = t.nodes[base+i+1]
			} else {
				right = t.zero
				oddChild = true
			}

			parent, err := t.codec.Compress(left, right, int(keyFor(level, oddChild)))
			if err != nil {
				return storageerr.Wrap(storageerr.Internal, "merkle.buildLayers", err)
			}
			t.nodes[parentBase+i/2] = parent
		}
	}
	return nil
}

// BuildAsync offloads construction to pool and blocks on the result.
// This wait is intentionally non-cancellable: the worker still holds
// a reference to the shared node buffer while it runs, so tearing down
// the caller early would leave a dangling writer.
func BuildAsync(codec hashcodec.HashCodec, leaves []hashcodec.Hash, pool *WorkerPool) (*Tree, error) {
	type result struct {
		tree *Tree
		err  error
	}
	done := make(chan result, 1)
	pool.Submit(func() {
		tree, err := Build(codec, leaves)
		done <- result{tree, err}
	})
	res := <-done
	return res.tree, res.err
}

// FromNodes reconstructs a Tree from a previously flattened node
// buffer and its original leaf count, without recomputing any hash.
// The buffer's length must match what layerSizes(leafCount) predicts.
func FromNodes(codec hashcodec.HashCodec, nodes []hashcodec.Hash, leafCount int) (*Tree, error) {
	if leafCount <= 0 {
		return nil, storageerr.Newf(storageerr.InvalidArgument, "merkle.FromNodes", "leafCount must be positive")
	}
	sizes := layerSizes(leafCount)
	offsets := layerOffsets(sizes)
	if len(nodes) != totalNodes(sizes) {
		return nil, storageerr.Newf(
			storageerr.InvalidArgument, "merkle.FromNodes",
			"node buffer has %d entries, want %d for %d leaves", len(nodes), totalNodes(sizes), leafCount,
		)
	}
	zero, err := hashcodec.ZeroHash(codec)
	if err != nil {
		return nil, storageerr.Wrap(storageerr.Internal, "merkle.FromNodes", err)
	}
	return &Tree{codec: codec, zero: zero, nodes: nodes, sizes: sizes, offsets: offsets, leafCount: leafCount}, nil
}

// Root returns the single hash at the top layer.
func (t *Tree) Root() hashcodec.Hash {
	return t.nodes[len(t.nodes)-1]
}

// LeafCount returns the number of leaves the tree was built over.
func (t *Tree) LeafCount() int {
	return t.leafCount
}

// Codec returns the hash codec used for every node in the tree.
func (t *Tree) Codec() hashcodec.HashCodec {
	return t.codec
}

// Nodes returns the flattened node buffer, layer 0 first. Callers
// wanting to persist a tree for later FromNodes reconstruction should
// store this slice alongside LeafCount().
func (t *Tree) Nodes() []hashcodec.Hash {
	return t.nodes
}

// Leaf returns the hash at leaf index i.
func (t *Tree) Leaf(i int) (hashcodec.Hash, error) {
	if i < 0 || i >= t.leafCount {
		return hashcodec.Hash{}, storageerr.Newf(storageerr.InvalidArgument, "merkle.Leaf", "index %d out of range [0,%d)", i, t.leafCount)
	}
	return t.nodes[t.offsets[0]+i], nil
}
