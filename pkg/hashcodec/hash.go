// Package hashcodec implements the self-describing hash and CID
// primitives that every other package in this module addresses data
// with: a multi-codec-tagged digest (Hash) and a (version, data-codec,
// hash) triple (CID).
//
// Hashes and CIDs are built directly on top of the real multiformats
// implementations (github.com/multiformats/go-multihash,
// github.com/ipfs/go-cid) rather than a bespoke encoding, since both
// are already transitive dependencies of github.com/ipfs/boxo.
package hashcodec

import (
	"crypto/sha256"
	"fmt"

	mh "github.com/multiformats/go-multihash"
)

// HashCodec names a supported digest algorithm.
type HashCodec int

const (
	// SHA2_256 is the standard 32-byte SHA-256 digest, multicodec 0x12.
	SHA2_256 HashCodec = iota
	// Poseidon2 is an algebraic hash over a 254-bit prime field, used
	// for Merkle constructions that interoperate with zero-knowledge
	// circuits. It has no entry in the public multicodec table, so it
	// is registered under the multicodec private-use range.
	Poseidon2
)

// poseidon2Code is a private-use multicodec allocation
// (0x300000-0x3FFFFF is reserved for private/experimental use).
const poseidon2Code = 0x300001

func (c HashCodec) multicodec() (uint64, error) {
	switch c {
	case SHA2_256:
		return mh.SHA2_256, nil
	case Poseidon2:
		return poseidon2Code, nil
	default:
		return 0, fmt.Errorf("hashcodec: unknown hash codec %d", c)
	}
}

func hashCodecFromMulticodec(code uint64) (HashCodec, error) {
	switch code {
	case mh.SHA2_256:
		return SHA2_256, nil
	case poseidon2Code:
		return Poseidon2, nil
	default:
		return 0, fmt.Errorf("hashcodec: unrecognized multicodec 0x%x", code)
	}
}

// DigestSize returns the digest length, in bytes, produced by codec.
func (c HashCodec) DigestSize() (int, error) {
	switch c {
	case SHA2_256:
		return sha256.Size, nil
	case Poseidon2:
		return fieldElementSize, nil
	default:
		return 0, fmt.Errorf("hashcodec: unknown hash codec %d", c)
	}
}

func (c HashCodec) String() string {
	switch c {
	case SHA2_256:
		return "sha2-256"
	case Poseidon2:
		return "poseidon2"
	default:
		return fmt.Sprintf("hashcodec(%d)", int(c))
	}
}

// Hash is a self-describing digest: a multihash-encoded (codec,
// digest-bytes) pair.
type Hash struct {
	mhash mh.Multihash
}

// ComputeHash hashes data with the given codec, returning a
// self-describing Hash. It fails only when codec is not one of the
// codecs known to this package.
func ComputeHash(codec HashCodec, data []byte) (Hash, error) {
	code, err := codec.multicodec()
	if err != nil {
		return Hash{}, err
	}

	var digest []byte
	switch codec {
	case SHA2_256:
		sum := sha256.Sum256(data)
		digest = sum[:]
	case Poseidon2:
		digest = poseidon2HashBytes(data)
	default:
		return Hash{}, fmt.Errorf("hashcodec: unknown hash codec %d", codec)
	}

	encoded, err := mh.Encode(digest, code)
	if err != nil {
		return Hash{}, fmt.Errorf("hashcodec: encode multihash: %w", err)
	}
	return Hash{mhash: encoded}, nil
}

// ZeroHash returns the designated "zero" digest for codec, used as the
// right sibling of an unpaired Merkle node.
func ZeroHash(codec HashCodec) (Hash, error) {
	size, err := codec.DigestSize()
	if err != nil {
		return Hash{}, err
	}
	code, err := codec.multicodec()
	if err != nil {
		return Hash{}, err
	}
	encoded, err := mh.Encode(make([]byte, size), code)
	if err != nil {
		return Hash{}, fmt.Errorf("hashcodec: encode zero multihash: %w", err)
	}
	return Hash{mhash: encoded}, nil
}

// DecodeHash parses previously-encoded multihash bytes.
func DecodeHash(b []byte) (Hash, error) {
	if _, err := mh.Decode(b); err != nil {
		return Hash{}, fmt.Errorf("hashcodec: decode multihash: %w", err)
	}
	return Hash{mhash: mh.Multihash(b)}, nil
}

// Codec reports which HashCodec produced h.
func (h Hash) Codec() (HashCodec, error) {
	dec, err := mh.Decode(h.mhash)
	if err != nil {
		return 0, fmt.Errorf("hashcodec: decode multihash: %w", err)
	}
	return hashCodecFromMulticodec(dec.Code)
}

// Digest returns the raw digest bytes (without the multihash prefix).
func (h Hash) Digest() ([]byte, error) {
	dec, err := mh.Decode(h.mhash)
	if err != nil {
		return nil, fmt.Errorf("hashcodec: decode multihash: %w", err)
	}
	return dec.Digest, nil
}

// Bytes returns the full self-describing multihash encoding.
func (h Hash) Bytes() []byte {
	out := make([]byte, len(h.mhash))
	copy(out, h.mhash)
	return out
}

// IsZero reports whether h has never been set.
func (h Hash) IsZero() bool {
	return len(h.mhash) == 0
}

// Equal reports whether h and other encode the same codec and digest.
func (h Hash) Equal(other Hash) bool {
	return h.mhash.String() == other.mhash.String()
}

func (h Hash) String() string {
	return h.mhash.HexString()
}
