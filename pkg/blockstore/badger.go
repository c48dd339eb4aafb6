package blockstore

import (
	"context"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/merkle"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

const (
	badgerBlockPrefix = 'b'
	badgerIndexPrefix = 'i'
	badgerExpiryPrefix = 'e'
)

// BadgerStore is a Store backed by github.com/dgraph-io/badger/v4:
// every mutation runs inside db.Update, every read inside db.View.
type BadgerStore struct {
	db            *badger.DB
	quotaMaxBytes uint64

	totalBlocks    atomic.Uint64
	usedBytes      atomic.Uint64
	reservedBytes  atomic.Uint64
}

// OpenBadgerStore opens (creating if absent) a Badger database at dir.
// quotaMaxBytes of 0 means unbounded.
func OpenBadgerStore(dir string, quotaMaxBytes uint64) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.OpenBadgerStore", err)
	}

	s := &BadgerStore{db: db, quotaMaxBytes: quotaMaxBytes}
	if err := s.warmCounters(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BadgerStore) warmCounters() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{badgerBlockPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()

		var count, used uint64
		for it.Rewind(); it.Valid(); it.Next() {
			count++
			used += uint64(it.Item().ValueSize())
		}
		s.totalBlocks.Store(count)
		s.usedBytes.Store(used)
		return nil
	})
}

func blockKey(cid hashcodec.CID) []byte {
	return append([]byte{badgerBlockPrefix}, cid.Bytes()...)
}

func (s *BadgerStore) Put(ctx context.Context, cid hashcodec.CID, data []byte) error {
	s.reservedBytes.Add(uint64(len(data)))
	defer s.reservedBytes.Add(-uint64(len(data)))

	if s.quotaMaxBytes > 0 && s.usedBytes.Load()+uint64(len(data)) > s.quotaMaxBytes {
		if exists, _ := s.Has(ctx, cid); !exists {
			return storageerr.Newf(storageerr.QuotaExceeded, "blockstore.Put", "storing %d bytes would exceed quota of %d", len(data), s.quotaMaxBytes)
		}
	}

	var wasNew bool
	err := s.db.Update(func(txn *badger.Txn) error {
		key := blockKey(cid)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		wasNew = true
		return txn.Set(key, data)
	})
	if err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Put", err)
	}
	if wasNew {
		s.totalBlocks.Add(1)
		s.usedBytes.Add(uint64(len(data)))
	}
	return nil
}

func (s *BadgerStore) Get(ctx context.Context, cid hashcodec.CID) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(cid))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, storageerr.Newf(storageerr.NotFound, "blockstore.Get", "cid %s not found", cid.String())
	}
	if err != nil {
		return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.Get", err)
	}
	return out, nil
}

func (s *BadgerStore) GetByIndex(ctx context.Context, treeCid hashcodec.CID, index int) ([]byte, error) {
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

func (s *BadgerStore) getIndexEntry(treeCid hashcodec.CID, index int) (indexEntry, error) {
	key := append([]byte{badgerIndexPrefix}, indexKey(treeCid, index)...)
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return indexEntry{}, storageerr.Newf(storageerr.NotFound, "blockstore.GetByIndex", "no entry at index %d of %s", index, treeCid.String())
	}
	if err != nil {
		return indexEntry{}, storageerr.Wrap(storageerr.IoFailure, "blockstore.GetByIndex", err)
	}
	return decodeIndexEntry(raw)
}

func (s *BadgerStore) Has(ctx context.Context, cid hashcodec.CID) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(blockKey(cid))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, storageerr.Wrap(storageerr.IoFailure, "blockstore.Has", err)
	}
	return found, nil
}

func (s *BadgerStore) Delete(ctx context.Context, cid hashcodec.CID) error {
	var size int
	var existed bool
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(cid))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		size = int(item.ValueSize())
		return txn.Delete(blockKey(cid))
	})
	if err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Delete", err)
	}
	if existed {
		s.totalBlocks.Add(^uint64(0))
		s.usedBytes.Add(^uint64(size - 1))
	}
	return nil
}

func (s *BadgerStore) DeleteByIndex(ctx context.Context, treeCid hashcodec.CID, index int) error {
	key := append([]byte{badgerIndexPrefix}, indexKey(treeCid, index)...)
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.DeleteByIndex", err)
	}
	return nil
}

func (s *BadgerStore) PutCidAndProof(ctx context.Context, treeCid hashcodec.CID, index int, cid hashcodec.CID, proof merkle.Proof) error {
	key := append([]byte{badgerIndexPrefix}, indexKey(treeCid, index)...)
	value := encodeIndexEntry(indexEntry{cid: cid, proof: proof})
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.PutCidAndProof", err)
	}
	return nil
}

func (s *BadgerStore) ListBlocks(ctx context.Context, kind ListKind) ([]hashcodec.CID, error) {
	var out []hashcodec.CID
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{badgerBlockPrefix}
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			cid, err := hashcodec.DecodeCIDBytes(key[1:])
			if err != nil {
				continue
			}
			if kind == ListManifests && !cid.IsManifest() {
				continue
			}
			out = append(out, cid)
		}
		return nil
	})
	if err != nil {
		return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.ListBlocks", err)
	}
	return out, nil
}

func (s *BadgerStore) EnsureExpiry(ctx context.Context, treeCid hashcodec.CID, index int, ttl int64) error {
	key := append([]byte{badgerExpiryPrefix}, indexKey(treeCid, index)...)
	value := make([]byte, 8)
	for i := 0; i < 8; i++ {
		value[i] = byte(ttl >> (56 - 8*i))
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.EnsureExpiry", err)
	}
	return nil
}

func (s *BadgerStore) TotalBlocks(ctx context.Context) (uint64, error) {
	return s.totalBlocks.Load(), nil
}

func (s *BadgerStore) QuotaMaxBytes() uint64 {
	return s.quotaMaxBytes
}

func (s *BadgerStore) QuotaUsedBytes(ctx context.Context) (uint64, error) {
	return s.usedBytes.Load(), nil
}

func (s *BadgerStore) QuotaReservedBytes() uint64 {
	return s.reservedBytes.Load()
}

func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Close", err)
	}
	return nil
}
