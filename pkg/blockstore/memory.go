package blockstore

import (
	"context"
	"sync"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/merkle"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// MemoryStore is an in-process Store used by tests and by the node
// engine's own unit tests; it holds no on-disk state.
type MemoryStore struct {
	mu            sync.RWMutex
	blocks        map[string][]byte
	index         map[string]indexEntry
	expiry        map[string]int64
	quotaMaxBytes uint64
	usedBytes     uint64
}

// NewMemoryStore returns an empty MemoryStore. quotaMaxBytes of 0
// means unbounded.
func NewMemoryStore(quotaMaxBytes uint64) *MemoryStore {
	return &MemoryStore{
		blocks:        make(map[string][]byte),
		index:         make(map[string]indexEntry),
		expiry:        make(map[string]int64),
		quotaMaxBytes: quotaMaxBytes,
	}
}

func (s *MemoryStore) Put(ctx context.Context, cid hashcodec.CID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(cid.Bytes())
	if _, ok := s.blocks[key]; ok {
		return nil
	}
	if s.quotaMaxBytes > 0 && s.usedBytes+uint64(len(data)) > s.quotaMaxBytes {
		return storageerr.Newf(storageerr.QuotaExceeded, "blockstore.Put", "storing %d bytes would exceed quota of %d", len(data), s.quotaMaxBytes)
	}
	s.blocks[key] = append([]byte(nil), data...)
	s.usedBytes += uint64(len(data))
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, cid hashcodec.CID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blocks[string(cid.Bytes())]
	if !ok {
		return nil, storageerr.Newf(storageerr.NotFound, "blockstore.Get", "cid %s not found", cid.String())
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) GetByIndex(ctx context.Context, treeCid hashcodec.CID, index int) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.index[string(indexKey(treeCid, index))]
	s.mu.RUnlock()
	if !ok {
		return nil, storageerr.Newf(storageerr.NotFound, "blockstore.GetByIndex", "no entry at index %d of %s", index, treeCid.String())
	}
	data, err := s.Get(ctx, entry.cid)
	if err != nil {
		return nil, err
	}
	return verifyIndexedBlock(entry, data)
}

// CorruptForTest overwrites the bytes stored under cid, bypassing Put's
// write-once semantics. It exists so tests can simulate a block that was
// mutated on disk after it was written, without going through the normal
// write path.
func (s *MemoryStore) CorruptForTest(cid hashcodec.CID, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[string(cid.Bytes())] = append([]byte(nil), data...)
}

func (s *MemoryStore) Has(ctx context.Context, cid hashcodec.CID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[string(cid.Bytes())]
	return ok, nil
}

func (s *MemoryStore) Delete(ctx context.Context, cid hashcodec.CID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(cid.Bytes())
	if data, ok := s.blocks[key]; ok {
		s.usedBytes -= uint64(len(data))
		delete(s.blocks, key)
	}
	return nil
}

func (s *MemoryStore) DeleteByIndex(ctx context.Context, treeCid hashcodec.CID, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.index, string(indexKey(treeCid, index)))
	return nil
}

func (s *MemoryStore) PutCidAndProof(ctx context.Context, treeCid hashcodec.CID, index int, cid hashcodec.CID, proof merkle.Proof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[string(indexKey(treeCid, index))] = indexEntry{cid: cid, proof: proof}
	return nil
}

func (s *MemoryStore) ListBlocks(ctx context.Context, kind ListKind) ([]hashcodec.CID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []hashcodec.CID
	for key := range s.blocks {
		cid, err := hashcodec.DecodeCIDBytes([]byte(key))
		if err != nil {
			continue
		}
		if kind == ListManifests && !cid.IsManifest() {
			continue
		}
		out = append(out, cid)
	}
	return out, nil
}

func (s *MemoryStore) EnsureExpiry(ctx context.Context, treeCid hashcodec.CID, index int, ttl int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry[string(indexKey(treeCid, index))] = ttl
	return nil
}

func (s *MemoryStore) TotalBlocks(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.blocks)), nil
}

func (s *MemoryStore) QuotaMaxBytes() uint64 {
	return s.quotaMaxBytes
}

func (s *MemoryStore) QuotaUsedBytes(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedBytes, nil
}

func (s *MemoryStore) QuotaReservedBytes() uint64 {
	return 0
}

func (s *MemoryStore) Close() error {
	return nil
}
