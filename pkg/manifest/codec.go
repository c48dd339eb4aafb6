package manifest

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Field tags for the binary manifest encoding. All fields are
// optional on the wire; Decode enforces which ones are required.
const (
	tagTreeCid     = 1
	tagBlockSize   = 2
	tagDatasetSize = 3
	tagCodec       = 4
	tagHashCodec   = 5
	tagCidVersion  = 6
	tagFilename    = 7
	tagMimetype    = 8
)

// Encode serializes m as a sequence of (tag byte, u32 length, value)
// records. Multi-byte integer fields are varint-encoded; treeCid and
// the two optional strings are stored as raw bytes.
func Encode(m Manifest) []byte {
	var buf bytes.Buffer

	writeField(&buf, tagTreeCid, m.TreeCid.Bytes())
	writeVarintField(&buf, tagBlockSize, uint64(m.BlockSize))
	writeVarintField(&buf, tagDatasetSize, m.DatasetSize)
	writeVarintField(&buf, tagCodec, uint64(m.Codec))
	writeVarintField(&buf, tagHashCodec, uint64(m.HashCodec))
	writeVarintField(&buf, tagCidVersion, uint64(m.CidVersion))
	if m.HasFilename {
		writeField(&buf, tagFilename, []byte(m.Filename))
	}
	if m.HasMimetype {
		writeField(&buf, tagMimetype, []byte(m.Mimetype))
	}

	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, tag byte, value []byte) {
	buf.WriteByte(tag)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
	buf.Write(lenBuf[:])
	buf.Write(value)
}

func writeVarintField(buf *bytes.Buffer, tag byte, v uint64) {
	var vbuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(vbuf[:], v)
	writeField(buf, tag, vbuf[:n])
}

// Decode parses a manifest encoded by Encode. It fails with
// storageerr.MalformedManifest when a required field is missing, or
// storageerr.InvalidArgument when the byte stream is truncated or
// carries an unparsable field.
func Decode(data []byte) (Manifest, error) {
	var (
		m           Manifest
		haveTreeCid, haveBlockSize, haveDatasetSize bool
		haveCodec, haveHashCodec, haveCidVersion    bool
	)

	r := bytes.NewReader(data)
	for {
		tag, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Manifest{}, storageerr.Wrap(storageerr.InvalidArgument, "manifest.Decode", err)
		}

		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return Manifest{}, storageerr.Newf(storageerr.InvalidArgument, "manifest.Decode", "truncated length for tag %d", tag)
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			return Manifest{}, storageerr.Newf(storageerr.InvalidArgument, "manifest.Decode", "truncated value for tag %d", tag)
		}

		switch tag {
		case tagTreeCid:
			c, err := hashcodec.DecodeCIDBytes(value)
			if err != nil {
				return Manifest{}, storageerr.Wrap(storageerr.InvalidArgument, "manifest.Decode", err)
			}
			m.TreeCid = c
			haveTreeCid = true
		case tagBlockSize:
			v, err := readUvarint(value)
			if err != nil {
				return Manifest{}, err
			}
			m.BlockSize = uint32(v)
			haveBlockSize = true
		case tagDatasetSize:
			v, err := readUvarint(value)
			if err != nil {
				return Manifest{}, err
			}
			m.DatasetSize = v
			haveDatasetSize = true
		case tagCodec:
			v, err := readUvarint(value)
			if err != nil {
				return Manifest{}, err
			}
			m.Codec = hashcodec.DataCodec(v)
			haveCodec = true
		case tagHashCodec:
			v, err := readUvarint(value)
			if err != nil {
				return Manifest{}, err
			}
			m.HashCodec = hashcodec.HashCodec(v)
			haveHashCodec = true
		case tagCidVersion:
			v, err := readUvarint(value)
			if err != nil {
				return Manifest{}, err
			}
			m.CidVersion = uint32(v)
			haveCidVersion = true
		case tagFilename:
			m.Filename = string(value)
			m.HasFilename = true
		case tagMimetype:
			m.Mimetype = string(value)
			m.HasMimetype = true
		default:
			// unknown tags are tolerated for forward compatibility
		}
	}

	if !haveTreeCid || !haveBlockSize || !haveDatasetSize || !haveCodec || !haveHashCodec || !haveCidVersion {
		return Manifest{}, storageerr.Newf(storageerr.MalformedManifest, "manifest.Decode", "missing required field(s)")
	}

	return m, nil
}

func readUvarint(value []byte) (uint64, error) {
	v, n := binary.Uvarint(value)
	if n <= 0 {
		return 0, storageerr.Newf(storageerr.InvalidArgument, "manifest.Decode", "malformed varint field")
	}
	return v, nil
}
