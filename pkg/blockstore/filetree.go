package blockstore

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/merkle"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// FileTreeStore is a Store backed directly by the filesystem: each
// block is one file named by the hex encoding of its CID bytes, placed
// in a single level of subdirectories named by the first two hex
// characters of that name. No
// third-party sharded-store package (flatfs or similar) appears
// anywhere in the retrieved corpus, so this backend is plain os/io.
type FileTreeStore struct {
	root          string
	quotaMaxBytes uint64

	mu            sync.RWMutex
	indexMu       sync.RWMutex
	totalBlocks   atomic.Uint64
	usedBytes     atomic.Uint64
	reservedBytes atomic.Uint64
}

// OpenFileTreeStore creates root (and its blocks/index/expiry
// subdirectories) with owner-only permissions if absent, and warms
// its quota counters from what's already on disk.
func OpenFileTreeStore(root string, quotaMaxBytes uint64) (*FileTreeStore, error) {
	for _, sub := range []string{"blocks", "index", "expiry"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o700); err != nil {
			return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.OpenFileTreeStore", err)
		}
	}

	s := &FileTreeStore{root: root, quotaMaxBytes: quotaMaxBytes}
	if err := s.warmCounters(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileTreeStore) warmCounters() error {
	entries, err := os.ReadDir(s.blocksDir())
	if err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.warmCounters", err)
	}
	var count, used uint64
	for _, shard := range entries {
		if !shard.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.blocksDir(), shard.Name()))
		if err != nil {
			return storageerr.Wrap(storageerr.IoFailure, "blockstore.warmCounters", err)
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil {
				continue
			}
			count++
			used += uint64(info.Size())
		}
	}
	s.totalBlocks.Store(count)
	s.usedBytes.Store(used)
	return nil
}

func (s *FileTreeStore) blocksDir() string { return filepath.Join(s.root, "blocks") }
func (s *FileTreeStore) indexDir() string  { return filepath.Join(s.root, "index") }
func (s *FileTreeStore) expiryDir() string { return filepath.Join(s.root, "expiry") }

func (s *FileTreeStore) blockPath(cid hashcodec.CID) string {
	name := hex.EncodeToString(cid.Bytes())
	shard := name[:2]
	return filepath.Join(s.blocksDir(), shard, name)
}

func (s *FileTreeStore) indexPath(treeCid hashcodec.CID, index int) string {
	name := hex.EncodeToString(indexKey(treeCid, index))
	return filepath.Join(s.indexDir(), name)
}

func (s *FileTreeStore) expiryPath(treeCid hashcodec.CID, index int) string {
	name := hex.EncodeToString(indexKey(treeCid, index))
	return filepath.Join(s.expiryDir(), name)
}

func (s *FileTreeStore) Put(ctx context.Context, cid hashcodec.CID, data []byte) error {
	s.reservedBytes.Add(uint64(len(data)))
	defer s.reservedBytes.Add(-uint64(len(data)))

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.blockPath(cid)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if s.quotaMaxBytes > 0 && s.usedBytes.Load()+uint64(len(data)) > s.quotaMaxBytes {
		return storageerr.Newf(storageerr.QuotaExceeded, "blockstore.Put", "storing %d bytes would exceed quota of %d", len(data), s.quotaMaxBytes)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Put", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Put", err)
	}
	s.totalBlocks.Add(1)
	s.usedBytes.Add(uint64(len(data)))
	return nil
}

func (s *FileTreeStore) Get(ctx context.Context, cid hashcodec.CID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.blockPath(cid))
	if os.IsNotExist(err) {
		return nil, storageerr.Newf(storageerr.NotFound, "blockstore.Get", "cid %s not found", cid.String())
	}
	if err != nil {
		return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.Get", err)
	}
	return data, nil
}

func (s *FileTreeStore) GetByIndex(ctx context.Context, treeCid hashcodec.CID, index int) ([]byte, error) {
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

func (s *FileTreeStore) getIndexEntry(treeCid hashcodec.CID, index int) (indexEntry, error) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	raw, err := os.ReadFile(s.indexPath(treeCid, index))
	if os.IsNotExist(err) {
		return indexEntry{}, storageerr.Newf(storageerr.NotFound, "blockstore.GetByIndex", "no entry at index %d of %s", index, treeCid.String())
	}
	if err != nil {
		return indexEntry{}, storageerr.Wrap(storageerr.IoFailure, "blockstore.GetByIndex", err)
	}
	return decodeIndexEntry(raw)
}

func (s *FileTreeStore) Has(ctx context.Context, cid hashcodec.CID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.blockPath(cid))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, storageerr.Wrap(storageerr.IoFailure, "blockstore.Has", err)
	}
	return true, nil
}

func (s *FileTreeStore) Delete(ctx context.Context, cid hashcodec.CID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.blockPath(cid)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Delete", err)
	}
	if err := os.Remove(path); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.Delete", err)
	}
	s.totalBlocks.Add(^uint64(0))
	s.usedBytes.Add(^uint64(info.Size() - 1))
	return nil
}

func (s *FileTreeStore) DeleteByIndex(ctx context.Context, treeCid hashcodec.CID, index int) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if err := os.Remove(s.indexPath(treeCid, index)); err != nil && !os.IsNotExist(err) {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.DeleteByIndex", err)
	}
	return nil
}

func (s *FileTreeStore) PutCidAndProof(ctx context.Context, treeCid hashcodec.CID, index int, cid hashcodec.CID, proof merkle.Proof) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	value := encodeIndexEntry(indexEntry{cid: cid, proof: proof})
	if err := os.WriteFile(s.indexPath(treeCid, index), value, 0o600); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.PutCidAndProof", err)
	}
	return nil
}

func (s *FileTreeStore) ListBlocks(ctx context.Context, kind ListKind) ([]hashcodec.CID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shards, err := os.ReadDir(s.blocksDir())
	if err != nil {
		return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.ListBlocks", err)
	}

	var out []hashcodec.CID
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.blocksDir(), shard.Name()))
		if err != nil {
			return nil, storageerr.Wrap(storageerr.IoFailure, "blockstore.ListBlocks", err)
		}
		for _, f := range files {
			raw, err := hex.DecodeString(f.Name())
			if err != nil {
				continue
			}
			cid, err := hashcodec.DecodeCIDBytes(raw)
			if err != nil {
				continue
			}
			if kind == ListManifests && !cid.IsManifest() {
				continue
			}
			out = append(out, cid)
		}
	}
	return out, nil
}

func (s *FileTreeStore) EnsureExpiry(ctx context.Context, treeCid hashcodec.CID, index int, ttl int64) error {
	value := make([]byte, 8)
	for i := 0; i < 8; i++ {
		value[i] = byte(ttl >> (56 - 8*i))
	}
	if err := os.WriteFile(s.expiryPath(treeCid, index), value, 0o600); err != nil {
		return storageerr.Wrap(storageerr.IoFailure, "blockstore.EnsureExpiry", err)
	}
	return nil
}

func (s *FileTreeStore) TotalBlocks(ctx context.Context) (uint64, error) {
	return s.totalBlocks.Load(), nil
}

func (s *FileTreeStore) QuotaMaxBytes() uint64 {
	return s.quotaMaxBytes
}

func (s *FileTreeStore) QuotaUsedBytes(ctx context.Context) (uint64, error) {
	return s.usedBytes.Load(), nil
}

func (s *FileTreeStore) QuotaReservedBytes() uint64 {
	return s.reservedBytes.Load()
}

func (s *FileTreeStore) Close() error {
	return nil
}
