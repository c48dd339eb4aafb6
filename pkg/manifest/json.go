package manifest

import "github.com/nipsysdev/logos-storage-go/pkg/hashcodec"

// JSON is the wire projection returned by download_manifest and the
// REST surface. protected is always false: dataset encryption is out
// of scope, but the field must round-trip because callers depend on
// its presence in the response payload.
type JSON struct {
	TreeCid     string `json:"treeCid"`
	DatasetSize uint64 `json:"datasetSize"`
	BlockSize   uint32 `json:"blockSize"`
	Filename    string `json:"filename,omitempty"`
	Mimetype    string `json:"mimetype,omitempty"`
	Protected   bool   `json:"protected"`
}

// ToJSON projects m into its wire representation.
func (m Manifest) ToJSON() JSON {
	j := JSON{
		TreeCid:     m.TreeCid.String(),
		DatasetSize: m.DatasetSize,
		BlockSize:   m.BlockSize,
		Protected:   false,
	}
	if m.HasFilename {
		j.Filename = m.Filename
	}
	if m.HasMimetype {
		j.Mimetype = m.Mimetype
	}
	return j
}

// FromJSON parses a wire projection back into a Manifest, taking
// Codec/HashCodec from the caller and setting CidVersion to the
// module's CidVersion, since the JSON form does not carry them.
func FromJSON(j JSON, codec hashcodec.DataCodec, hashCodec hashcodec.HashCodec) (Manifest, error) {
	treeCid, err := hashcodec.ParseCID(j.TreeCid)
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{
		TreeCid:     treeCid,
		BlockSize:   j.BlockSize,
		DatasetSize: j.DatasetSize,
		Codec:       codec,
		HashCodec:   hashCodec,
		CidVersion:  hashcodec.CidVersion,
		Filename:    j.Filename,
		HasFilename: j.Filename != "",
		Mimetype:    j.Mimetype,
		HasMimetype: j.Mimetype != "",
	}, nil
}
