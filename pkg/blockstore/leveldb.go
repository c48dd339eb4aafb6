package blockstore

import (
	"context"
	"sync/atomic"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/merkle"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// LevelDBStore is a Store backed by github.com/syndtr/goleveldb, one
// of the three backends named for the block repository.
type LevelDBStore struct {
	db            *leveldb.DB
	quotaMaxBytes uint64

	totalBlocks   atomic.Uint64
	usedBytes     atomic.Uint64
	reservedBytes atomic.Uint64
}

// OpenLevelDBStore opens (creating if absent) a LevelDB database at
// dir. quotaMaxBytes of 0 means unbounded.
func OpenLevelDBStore(dir string, quotaMaxBytes uint64) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.OpenLevelDBStore", err)
	}

	s := &LevelDBStore{db: db, quotaMaxBytes: quotaMaxBytes}
	if err := s.warmCounters(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LevelDBStore) warmCounters() error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{badgerBlockPrefix}), nil)
	defer iter.Release()

	var count, used uint64
	for iter.Next() {
		count++
		used += uint64(len(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.warmCounters", err)
	}
	s.totalBlocks.Store(count)
	s.usedBytes.Store(used)
	return nil
}

func (s *LevelDBStore) Put(ctx context.Context, cid hashcodec.CID, data []byte) error {
	s.reservedBytes.Add(uint64(len(data)))
	defer s.reservedBytes.Add(-uint64(len(data)))

	key := blockKey(cid)
	exists, err := s.db.Has(key, nil)
	if err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Put", err)
	}
	if !exists && s.quotaMaxBytes > 0 && s.usedBytes.Load()+uint64(len(data)) > s.quotaMaxBytes {
		return storageerr.Newf(storageerr.QuotaExceeded, "blockstore.Put", "storing %d bytes would exceed quota of %d", len(data), s.quotaMaxBytes)
	}
	if exists {
		return nil
	}
	if err := s.db.Put(key, data, nil); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Put", err)
	}
	s.totalBlocks.Add(1)
	s.usedBytes.Add(uint64(len(data)))
	return nil
}

func (s *LevelDBStore) Get(ctx context.Context, cid hashcodec.CID) ([]byte, error) {
	data, err := s.db.Get(blockKey(cid), nil)
	if err == leveldb.ErrNotFound {
		return nil, storageerr.Newf(storageerr.NotFound, "blockstore.Get", "cid %s not found", cid.String())
	}
	if err != nil {
		return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.Get", err)
	}
	return data, nil
}

func (s *LevelDBStore) GetByIndex(ctx context.Context, treeCid hashcodec.CID, index int) ([]byte, error) {
	entry, err := s.getIndexEntry(treeCid, index)
	if err != nil {
		return nil, err
	}
	data, err := s.Get(ctx, entry.cid)
	if err != nil {
		return nil, err
	}
	return verifyIndexedBlock(entry, data)
}

func (s *LevelDBStore) getIndexEntry(treeCid hashcodec.CID, index int) (indexEntry, error) {
	key := append([]byte{badgerIndexPrefix}, indexKey(treeCid, index)...)
	raw, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return indexEntry{}, storageerr.Newf(storageerr.NotFound, "blockstore.GetByIndex", "no entry at index %d of %s", index, treeCid.String())
	}
	if err != nil {
		return indexEntry{}, storageerr.Wrap(storageerr.IoFailure, "blockstore.GetByIndex", err)
	}
	return decodeIndexEntry(raw)
}

func (s *LevelDBStore) Has(ctx context.Context, cid hashcodec.CID) (bool, error) {
	found, err := s.db.Has(blockKey(cid), nil)
	if err != nil {
		return false, storageerr.Wrap(storageerr.IoFailure, "blockstore.Has", err)
	}
	return found, nil
}

func (s *LevelDBStore) Delete(ctx context.Context, cid hashcodec.CID) error {
	key := blockKey(cid)
	data, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil
	}
	if err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Delete", err)
	}
	if err := s.db.Delete(key, nil); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Delete", err)
	}
	s.totalBlocks.Add(^uint64(0))
	s.usedBytes.Add(^uint64(len(data) - 1))
	return nil
}

func (s *LevelDBStore) DeleteByIndex(ctx context.Context, treeCid hashcodec.CID, index int) error {
	key := append([]byte{badgerIndexPrefix}, indexKey(treeCid, index)...)
	if err := s.db.Delete(key, nil); err != nil && err != leveldb.ErrNotFound {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.DeleteByIndex", err)
	}
	return nil
}

func (s *LevelDBStore) PutCidAndProof(ctx context.Context, treeCid hashcodec.CID, index int, cid hashcodec.CID, proof merkle.Proof) error {
	key := append([]byte{badgerIndexPrefix}, indexKey(treeCid, index)...)
	value := encodeIndexEntry(indexEntry{cid: cid, proof: proof})
	if err := s.db.Put(key, value, nil); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.PutCidAndProof", err)
	}
	return nil
}

func (s *LevelDBStore) ListBlocks(ctx context.Context, kind ListKind) ([]hashcodec.CID, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{badgerBlockPrefix}), nil)
	defer iter.Release()

	var out []hashcodec.CID
	for iter.Next() {
		key := iter.Key()
		cid, err := hashcodec.DecodeCIDBytes(key[1:])
		if err != nil {
			continue
		}
		if kind == ListManifests && !cid.IsManifest() {
			continue
		}
		out = append(out, cid)
	}
	if err := iter.Error(); err != nil {
		return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.ListBlocks", err)
	}
	return out, nil
}

func (s *LevelDBStore) EnsureExpiry(ctx context.Context, treeCid hashcodec.CID, index int, ttl int64) error {
	key := append([]byte{badgerExpiryPrefix}, indexKey(treeCid, index)...)
	value := make([]byte, 8)
	for i := 0; i < 8; i++ {
		value[i] = byte(ttl >> (56 - 8*i))
	}
	if err := s.db.Put(key, value, nil); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.EnsureExpiry", err)
	}
	return nil
}

func (s *LevelDBStore) TotalBlocks(ctx context.Context) (uint64, error) {
	return s.totalBlocks.Load(), nil
}

func (s *LevelDBStore) QuotaMaxBytes() uint64 {
	return s.quotaMaxBytes
}

func (s *LevelDBStore) QuotaUsedBytes(ctx context.Context) (uint64, error) {
	return s.usedBytes.Load(), nil
}

func (s *LevelDBStore) QuotaReservedBytes() uint64 {
	return s.reservedBytes.Load()
}

func (s *LevelDBStore) Close() error {
	if err := s.db.Close(); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Close", err)
	}
	return nil
}
