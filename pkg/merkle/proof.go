package merkle

import (
	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Proof is everything needed to reconstruct and check a Merkle root
// from a single leaf: the leaf's index, its sibling path, the total
// leaf count (which determines the shape of every layer), which
// compression function produced the tree, and the zero value used for
// unpaired nodes.
type Proof struct {
	LeafIndex int
	Siblings  []hashcodec.Hash
	LeafCount int
	Codec     hashcodec.HashCodec
	Zero      hashcodec.Hash
}

// GetProof builds the inclusion proof for leaf index i.
func (t *Tree) GetProof(i int) (Proof, error) {
	if i < 0 || i >= t.leafCount {
		return Proof{}, storageerr.Newf(storageerr.InvalidArgument, "merkle.GetProof", "index %d out of range [0,%d)", i, t.leafCount)
	}

	if t.leafCount == 1 {
		return Proof{LeafIndex: 0, Siblings: nil, LeafCount: 1, Codec: t.codec, Zero: t.zero}, nil
	}

	steps := len(t.sizes) - 1
	siblings := make([]hashcodec.Hash, 0, steps)
	idx := i
	for level := 0; level < steps; level++ {
		size := t.sizes[level]
		base := t.offsets[level]

		var sibIdx int
		var missing bool
		if idx%2 == 0 {
			sibIdx = idx + 1
			missing = sibIdx >= size
		} else {
			sibIdx = idx - 1
		}

		var sib hashcodec.Hash
		if missing {
			sib = t.zero
		} else {
			sib = t.nodes[base+sibIdx]
		}
		siblings = append(siblings, sib)
		idx /= 2
	}

	return Proof{LeafIndex: i, Siblings: siblings, LeafCount: t.leafCount, Codec: t.codec, Zero: t.zero}, nil
}

// Verify reconstructs a root from proof and leaf and reports whether
// it equals root.
func Verify(proof Proof, leaf hashcodec.Hash, root hashcodec.Hash) bool {
	if proof.LeafCount <= 0 {
		return false
	}

	if proof.LeafCount == 1 {
		got, err := proof.Codec.Compress(leaf, proof.Zero, int(KeyOddAndBottomLayer))
		return err == nil && got.Equal(root)
	}

	sizes := layerSizes(proof.LeafCount)
	steps := len(sizes) - 1
	if len(proof.Siblings) != steps {
		return false
	}

	cur := leaf
	idx := proof.LeafIndex
	for level := 0; level < steps; level++ {
		size := sizes[level]
		sib := proof.Siblings[level]

		oddChild := idx%2 == 0 && idx+1 >= size
		key := keyFor(level, oddChild)

		var (
			next hashcodec.Hash
			err  error
		)
		if idx%2 == 0 {
			next, err = proof.Codec.Compress(cur, sib, int(key))
		} else {
			next, err = proof.Codec.Compress(sib, cur, int(key))
		}
		if err != nil {
			return false
		}
		cur = next
		idx /= 2
	}

	return cur.Equal(root)
}
