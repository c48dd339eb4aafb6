// Package manifest implements the metadata record that binds a Merkle
// root to a dataset's size, block layout, and optional filename/MIME
// attributes, plus the tag-length-value binary codec it is stored and
// exchanged with.
package manifest

import (
	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
)

// Manifest describes a dataset addressed by a Merkle tree CID.
type Manifest struct {
	TreeCid     hashcodec.CID
	BlockSize   uint32
	DatasetSize uint64
	Codec       hashcodec.DataCodec
	HashCodec   hashcodec.HashCodec
	CidVersion  uint32
	Filename    string
	HasFilename bool
	Mimetype    string
	HasMimetype bool
}

// BlocksCount returns ceil(DatasetSize / BlockSize).
func (m Manifest) BlocksCount() uint64 {
	if m.BlockSize == 0 {
		return 0
	}
	bs := uint64(m.BlockSize)
	return (m.DatasetSize + bs - 1) / bs
}

// Equal reports whether m and other encode identical fields.
func (m Manifest) Equal(other Manifest) bool {
	return m.TreeCid.Equals(other.TreeCid) &&
		m.BlockSize == other.BlockSize &&
		m.DatasetSize == other.DatasetSize &&
		m.Codec == other.Codec &&
		m.HashCodec == other.HashCodec &&
		m.CidVersion == other.CidVersion &&
		m.Filename == other.Filename &&
		m.HasFilename == other.HasFilename &&
		m.Mimetype == other.Mimetype &&
		m.HasMimetype == other.HasMimetype
}
