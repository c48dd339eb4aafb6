// Package block implements the immutable (CID, bytes) pair that is the
// unit of storage and exchange throughout this module.
package block

import (
	"fmt"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Block is an immutable (CID, bytes) pair. Its CID's embedded hash
// must equal hash(CID.hash.codec, bytes) unless the block was built
// via NewTrusted by a producer that just computed that hash itself.
type Block struct {
	cid  hashcodec.CID
	data []byte
}

// New computes the default hash (SHA2_256) over data, wraps it in a
// BlockCodec CID, and returns the resulting Block. This never fails
// for well-formed input.
func New(data []byte) (Block, error) {
	return NewWithHashCodec(data, hashcodec.SHA2_256)
}

// NewWithHashCodec is like New but lets the caller pick the hash
// codec used to derive the block's CID (e.g. Poseidon2 for leaves
// destined for a zero-knowledge-friendly Merkle tree).
func NewWithHashCodec(data []byte, codec hashcodec.HashCodec) (Block, error) {
	h, err := hashcodec.ComputeHash(codec, data)
	if err != nil {
		return Block{}, storageerr.Wrap(storageerr.Internal, "block.New", err)
	}
	c, err := hashcodec.NewCID(hashcodec.CidVersion, hashcodec.BlockCodec, h)
	if err != nil {
		return Block{}, storageerr.Wrap(storageerr.Internal, "block.New", err)
	}
	return Block{cid: c, data: data}, nil
}

// NewVerified builds a Block from an already-known CID and bytes,
// recomputing the hash and comparing it against the CID's embedded
// hash. It fails with storageerr.InvalidBlock on any mismatch.
func NewVerified(c hashcodec.CID, data []byte) (Block, error) {
	wantHash, err := c.Hash()
	if err != nil {
		return Block{}, storageerr.Wrap(storageerr.InvalidCid, "block.NewVerified", err)
	}
	codec, err := wantHash.Codec()
	if err != nil {
		return Block{}, storageerr.Wrap(storageerr.InvalidCid, "block.NewVerified", err)
	}
	gotHash, err := hashcodec.ComputeHash(codec, data)
	if err != nil {
		return Block{}, storageerr.Wrap(storageerr.Internal, "block.NewVerified", err)
	}
	if !gotHash.Equal(wantHash) {
		return Block{}, storageerr.Newf(
			storageerr.InvalidBlock, "block.NewVerified",
			"block bytes hash to %s, cid claims %s", gotHash, wantHash,
		)
	}
	return Block{cid: c, data: data}, nil
}

// NewTrusted builds a Block from a CID and bytes without
// re-verifying the hash. Producers that just computed the CID from
// these exact bytes (e.g. the chunker's per-chunk hashing step) use
// this to avoid a redundant hash pass.
func NewTrusted(c hashcodec.CID, data []byte) Block {
	return Block{cid: c, data: data}
}

// CID returns the block's content identifier.
func (b Block) CID() hashcodec.CID {
	return b.cid
}

// RawData returns the block's payload bytes.
func (b Block) RawData() []byte {
	return b.data
}

// Size returns len(RawData()).
func (b Block) Size() int {
	return len(b.data)
}

func (b Block) String() string {
	return fmt.Sprintf("Block(%s, %d bytes)", b.cid, len(b.data))
}
