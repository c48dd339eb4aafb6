package hashcodec

import (
	"fmt"

	mh "github.com/multiformats/go-multihash"
)

// Compress is the Merkle-tree two-input compression function:
// (left, right, key) -> hash. key is an opaque small integer supplied
// by the caller (pkg/merkle assigns the {None, BottomLayer, Odd,
// OddAndBottomLayer} meaning); codecs that don't need domain
// separation (SHA2_256) accept it but ignore it, as spec requires.
func (c HashCodec) Compress(left, right Hash, key int) (Hash, error) {
	switch c {
	case SHA2_256:
		return compressSha256(left, right)
	case Poseidon2:
		return compressPoseidon2(left, right, key)
	default:
		return Hash{}, fmt.Errorf("hashcodec: unknown hash codec %d", c)
	}
}

func compressSha256(left, right Hash) (Hash, error) {
	ld, err := left.Digest()
	if err != nil {
		return Hash{}, fmt.Errorf("hashcodec: left digest: %w", err)
	}
	rd, err := right.Digest()
	if err != nil {
		return Hash{}, fmt.Errorf("hashcodec: right digest: %w", err)
	}
	buf := make([]byte, 0, len(ld)+len(rd))
	buf = append(buf, ld...)
	buf = append(buf, rd...)
	return ComputeHash(SHA2_256, buf)
}

func compressPoseidon2(left, right Hash, key int) (Hash, error) {
	ld, err := left.Digest()
	if err != nil {
		return Hash{}, fmt.Errorf("hashcodec: left digest: %w", err)
	}
	rd, err := right.Digest()
	if err != nil {
		return Hash{}, fmt.Errorf("hashcodec: right digest: %w", err)
	}
	lf := bytesToFieldElement(ld)
	rf := bytesToFieldElement(rd)
	digest := poseidon2Compress(lf, rf, int64(key))

	code, err := Poseidon2.multicodec()
	if err != nil {
		return Hash{}, err
	}
	encoded, err := mh.Encode(digest, code)
	if err != nil {
		return Hash{}, fmt.Errorf("hashcodec: encode multihash: %w", err)
	}
	return Hash{mhash: encoded}, nil
}
