package merkle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
)

func leafSet(t *testing.T, n int) []hashcodec.Hash {
	t.Helper()
	leaves := make([]hashcodec.Hash, n)
	for i := 0; i < n; i++ {
		h, err := hashcodec.ComputeHash(hashcodec.SHA2_256, []byte{byte(i), byte(i >> 8)})
		require.NoError(t, err)
		leaves[i] = h
	}
	return leaves
}

func TestBuildSingleLeaf(t *testing.T) {
	leaves := leafSet(t, 1)
	tree, err := Build(hashcodec.SHA2_256, leaves)
	require.NoError(t, err)
	require.Equal(t, 1, tree.LeafCount())

	zero, err := hashcodec.ZeroHash(hashcodec.SHA2_256)
	require.NoError(t, err)
	want, err := hashcodec.SHA2_256.Compress(leaves[0], zero, int(KeyOddAndBottomLayer))
	require.NoError(t, err)
	require.True(t, tree.Root().Equal(want))

	proof, err := tree.GetProof(0)
	require.NoError(t, err)
	require.Empty(t, proof.Siblings)
	require.True(t, Verify(proof, leaves[0], tree.Root()))
}

func TestBuildAsyncMatchesSync(t *testing.T) {
	leaves := leafSet(t, 37)
	sync, err := Build(hashcodec.SHA2_256, leaves)
	require.NoError(t, err)

	pool := NewWorkerPool(4)
	defer pool.Close()
	async, err := BuildAsync(hashcodec.SHA2_256, leaves, pool)
	require.NoError(t, err)

	require.True(t, sync.Root().Equal(async.Root()))
}

func TestProofRoundTripEvenAndOdd(t *testing.T) {
	for _, n := range []int{2, 3, 4, 5, 8, 13, 37} {
		leaves := leafSet(t, n)
		tree, err := Build(hashcodec.SHA2_256, leaves)
		require.NoError(t, err)

		for i := 0; i < n; i++ {
			proof, err := tree.GetProof(i)
			require.NoError(t, err)
			require.True(t, Verify(proof, leaves[i], tree.Root()), "leaf %d of %d", i, n)
		}
	}
}

func TestProofRejectsWrongLeaf(t *testing.T) {
	leaves := leafSet(t, 5)
	tree, err := Build(hashcodec.SHA2_256, leaves)
	require.NoError(t, err)

	proof, err := tree.GetProof(2)
	require.NoError(t, err)
	require.False(t, Verify(proof, leaves[3], tree.Root()))
}

func TestFromNodesReconstructsWithoutRehashing(t *testing.T) {
	leaves := leafSet(t, 6)
	tree, err := Build(hashcodec.SHA2_256, leaves)
	require.NoError(t, err)

	rebuilt, err := FromNodes(hashcodec.SHA2_256, tree.Nodes(), tree.LeafCount())
	require.NoError(t, err)
	require.True(t, rebuilt.Root().Equal(tree.Root()))

	proof, err := rebuilt.GetProof(4)
	require.NoError(t, err)
	require.True(t, Verify(proof, leaves[4], rebuilt.Root()))
}

func TestFromNodesRejectsMismatchedBufferSize(t *testing.T) {
	leaves := leafSet(t, 6)
	tree, err := Build(hashcodec.SHA2_256, leaves)
	require.NoError(t, err)

	_, err = FromNodes(hashcodec.SHA2_256, tree.Nodes()[:len(tree.Nodes())-1], tree.LeafCount())
	require.Error(t, err)
}

func TestBuildRejectsEmptyLeafSet(t *testing.T) {
	_, err := Build(hashcodec.SHA2_256, nil)
	require.Error(t, err)
}

func TestGetProofRejectsOutOfRangeIndex(t *testing.T) {
	leaves := leafSet(t, 4)
	tree, err := Build(hashcodec.SHA2_256, leaves)
	require.NoError(t, err)

	_, err = tree.GetProof(4)
	require.Error(t, err)
	_, err = tree.GetProof(-1)
	require.Error(t, err)
}
