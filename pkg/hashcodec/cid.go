package hashcodec

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mbase "github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
)

// DataCodec distinguishes the kind of payload a CID's block contains.
type DataCodec uint64

const (
	// BlockCodec tags a block whose bytes are raw user data. This
	// reuses the standard "raw" multicodec entry (0x55) rather than
	// allocating a private code, since raw bytes are exactly what the
	// multicodec table's raw entry describes.
	BlockCodec DataCodec = 0x55
	// ManifestCodec tags a block whose bytes are an encoded manifest.
	// Private-use multicodec allocation (0x300000-0x3FFFFF range).
	ManifestCodec DataCodec = 0x300010
	// DatasetRootCodec tags the CID of a Merkle tree root.
	DatasetRootCodec DataCodec = 0x300011
)

func (d DataCodec) String() string {
	switch d {
	case BlockCodec:
		return "block"
	case ManifestCodec:
		return "manifest"
	case DatasetRootCodec:
		return "dataset-root"
	default:
		return fmt.Sprintf("data-codec(0x%x)", uint64(d))
	}
}

// CidVersion is the CID structural version. NewCID builds only CIDv1,
// the latest standardized form; ParseCID and DecodeCIDBytes decode any
// version go-cid accepts, CIDv0 included.
const CidVersion = 1

// CID is a self-describing content identifier: (version, data-codec,
// hash). It wraps github.com/ipfs/go-cid's real implementation of the
// CID spec rather than reimplementing multibase/multicodec framing.
type CID struct {
	c cid.Cid
}

// NewCID builds a CID from an explicit version, data codec, and hash.
// It never fails for the version/codec combinations this module
// supports (CIDv1 with a supported DataCodec and Hash).
func NewCID(version uint64, dataCodec DataCodec, h Hash) (CID, error) {
	if version != CidVersion {
		return CID{}, fmt.Errorf("hashcodec: unsupported cid version %d", version)
	}
	if h.IsZero() {
		return CID{}, fmt.Errorf("hashcodec: cannot build a cid from a zero hash")
	}
	c := cid.NewCidV1(uint64(dataCodec), mh.Multihash(h.Bytes()))
	return CID{c: c}, nil
}

// ParseCID decodes a CID from its multibase-encoded text form.
func ParseCID(s string) (CID, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return CID{}, fmt.Errorf("hashcodec: parse cid %q: %w", s, err)
	}
	return CID{c: c}, nil
}

// DecodeCIDBytes decodes a CID from its raw binary form.
func DecodeCIDBytes(b []byte) (CID, error) {
	c, err := cid.Cast(b)
	if err != nil {
		return CID{}, fmt.Errorf("hashcodec: decode cid bytes: %w", err)
	}
	return CID{c: c}, nil
}

// IsZero reports whether c was never assigned.
func (c CID) IsZero() bool {
	return !c.c.Defined()
}

// DataCodec reports the payload kind this CID addresses.
func (c CID) DataCodec() DataCodec {
	return DataCodec(c.c.Type())
}

// IsManifest reports whether this CID addresses a manifest block.
func (c CID) IsManifest() bool {
	return c.DataCodec() == ManifestCodec
}

// Hash returns the self-describing hash embedded in this CID.
func (c CID) Hash() (Hash, error) {
	return DecodeHash([]byte(c.c.Hash()))
}

// Bytes returns the raw binary CID encoding.
func (c CID) Bytes() []byte {
	return c.c.Bytes()
}

// String returns the multibase base58btc text form of the CID
// (the "z"-prefixed encoding), matching the wire format datasets are
// addressed by wherever a CID crosses a text boundary (manifest JSON,
// REST paths, log lines). ParseCID accepts any multibase the
// underlying go-cid decoder recognizes, so this is not the only form
// this module can read back in.
func (c CID) String() string {
	s, err := c.c.StringOfBase(mbase.Base58BTC)
	if err != nil {
		return c.c.String()
	}
	return s
}

// Equals reports whether c and other address the same data-codec/hash
// pair. CIDs are only ever compared for equality; there is no
// ordering semantics.
func (c CID) Equals(other CID) bool {
	return c.c.Equals(other.c)
}
