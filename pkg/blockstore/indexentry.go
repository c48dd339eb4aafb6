package blockstore

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/nipsysdev/logos-storage-go/pkg/block"
	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/merkle"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// verifyIndexedBlock re-hashes data and checks it against entry's
// recorded leaf CID, so a GetByIndex caller never receives bytes that
// were mutated on disk since they were written.
func verifyIndexedBlock(entry indexEntry, data []byte) ([]byte, error) {
	if _, err := block.NewVerified(entry.cid, data); err != nil {
		return nil, storageerr.Wrap(storageerr.InvalidBlock, "blockstore.GetByIndex", err)
	}
	return data, nil
}

// indexEntry is the on-disk record backing PutCidAndProof/GetByIndex:
// the leaf's own CID plus its inclusion proof, so a caller retrieving
// by (treeCid, index) doesn't need to decode the whole manifest and
// rebuild the tree to check inclusion.
type indexEntry struct {
	cid   hashcodec.CID
	proof merkle.Proof
}

func encodeIndexEntry(e indexEntry) []byte {
	var buf bytes.Buffer

	writeBytes(&buf, e.cid.Bytes())
	writeUvarint(&buf, uint64(e.proof.LeafIndex))
	writeUvarint(&buf, uint64(e.proof.LeafCount))
	writeUvarint(&buf, uint64(e.proof.Codec))
	writeBytes(&buf, e.proof.Zero.Bytes())
	writeUvarint(&buf, uint64(len(e.proof.Siblings)))
	for _, sib := range e.proof.Siblings {
		writeBytes(&buf, sib.Bytes())
	}

	return buf.Bytes()
}

func decodeIndexEntry(data []byte) (indexEntry, error) {
	r := bytes.NewReader(data)

	cidBytes, err := readBytes(r)
	if err != nil {
		return indexEntry{}, err
	}
	cid, err := hashcodec.DecodeCIDBytes(cidBytes)
	if err != nil {
		return indexEntry{}, storageerr.Wrap(storageerr.Internal, "blockstore.decodeIndexEntry", err)
	}

	leafIndex, err := readUvarint(r)
	if err != nil {
		return indexEntry{}, err
	}
	leafCount, err := readUvarint(r)
	if err != nil {
		return indexEntry{}, err
	}
	codec, err := readUvarint(r)
	if err != nil {
		return indexEntry{}, err
	}
	zeroBytes, err := readBytes(r)
	if err != nil {
		return indexEntry{}, err
	}
	zero, err := hashcodec.DecodeHash(zeroBytes)
	if err != nil {
		return indexEntry{}, storageerr.Wrap(storageerr.Internal, "blockstore.decodeIndexEntry", err)
	}

	sibCount, err := readUvarint(r)
	if err != nil {
		return indexEntry{}, err
	}
	siblings := make([]hashcodec.Hash, 0, sibCount)
	for i := uint64(0); i < sibCount; i++ {
		sibBytes, err := readBytes(r)
		if err != nil {
			return indexEntry{}, err
		}
		sib, err := hashcodec.DecodeHash(sibBytes)
		if err != nil {
			return indexEntry{}, storageerr.Wrap(storageerr.Internal, "blockstore.decodeIndexEntry", err)
		}
		siblings = append(siblings, sib)
	}

	return indexEntry{
		cid: cid,
		proof: merkle.Proof{
			LeafIndex: int(leafIndex),
			Siblings:  siblings,
			LeafCount: int(leafCount),
			Codec:     hashcodec.HashCodec(codec),
			Zero:      zero,
		},
	}, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var vbuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(vbuf[:], v)
	buf.Write(vbuf[:n])
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, storageerr.Wrap(storageerr.Internal, "blockstore.readBytes", err)
	}
	return b, nil
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, storageerr.Wrap(storageerr.Internal, "blockstore.readUvarint", err)
	}
	return v, nil
}

// indexKey builds the sortable key used to store an indexEntry:
// treeCid bytes, then the index as a fixed-width big-endian u64 so
// iteration order matches leaf order.
func indexKey(treeCid hashcodec.CID, index int) []byte {
	tc := treeCid.Bytes()
	key := make([]byte, len(tc)+8)
	copy(key, tc)
	binary.BigEndian.PutUint64(key[len(tc):], uint64(index))
	return key
}
