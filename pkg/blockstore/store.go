// Package blockstore defines the storage abstraction the node engine
// puts and gets blocks through, plus the backends that implement it.
//
// Store is deliberately a capability interface rather than a base
// type: three independent backends (Badger, a plain file tree, and
// LevelDB) satisfy it with no shared implementation inheritance.
package blockstore

import (
	"context"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/merkle"
)

// ListKind selects which subset of CIDs ListBlocks enumerates.
type ListKind int

const (
	// ListManifests enumerates only manifest-codec CIDs.
	ListManifests ListKind = iota
	// ListAll enumerates every stored CID.
	ListAll
)

// StoredBlock pairs a block's CID with its bytes. No Store method
// returns it: Get yields the bytes alone and ListBlocks the CIDs alone.
type StoredBlock struct {
	Cid  hashcodec.CID
	Data []byte
}

// Store is the persistence contract every block-store backend
// satisfies.
//
// # Responsibilities
//
//   - Put/Get/Has/Delete individual blocks by CID.
//   - Index blocks by (treeCid, index) alongside their inclusion
//     proof, and serve them back by that key.
//   - Enumerate stored CIDs, either all of them or only manifests.
//   - Track TTL metadata per (treeCid, index) entry.
//   - Report quota usage so callers can enforce or display limits.
//
// # Thread safety
//
// Implementations must be safe for concurrent use; the node engine and
// the session layer may call Put/Get from independent goroutines.
//
// # Durability
//
// Every on-disk backend (Badger, file tree, LevelDB) persists across
// process restarts; MemoryStore does not. Put must not return
// success until the write is durable (or queued durably) per the
// backend's own consistency guarantees.
type Store interface {
	// Put stores block under its own CID. Idempotent: storing the same
	// CID twice succeeds and does not double-count against quota.
	Put(ctx context.Context, cid hashcodec.CID, data []byte) error

	// Get retrieves a block's bytes by CID.
	Get(ctx context.Context, cid hashcodec.CID) ([]byte, error)

	// GetByIndex retrieves the block previously stored at
	// (treeCid, index) via PutCidAndProof.
	GetByIndex(ctx context.Context, treeCid hashcodec.CID, index int) ([]byte, error)

	// Has reports whether cid is stored locally.
	Has(ctx context.Context, cid hashcodec.CID) (bool, error)

	// Delete removes a block by CID. Deleting an absent CID succeeds.
	Delete(ctx context.Context, cid hashcodec.CID) error

	// DeleteByIndex removes the (treeCid, index) association and its
	// proof; the underlying block bytes are left untouched (a leaf may
	// be referenced by more than one dataset in principle, so byte
	// deletion goes through Delete with the leaf's own CID).
	DeleteByIndex(ctx context.Context, treeCid hashcodec.CID, index int) error

	// PutCidAndProof associates leaf index within treeCid's dataset
	// with cid and its inclusion proof, so it can later be retrieved
	// via GetByIndex without decoding the whole manifest.
	PutCidAndProof(ctx context.Context, treeCid hashcodec.CID, index int, cid hashcodec.CID, proof merkle.Proof) error

	// ListBlocks returns every CID matching kind. The returned slice is
	// a snapshot: a CID present in it was fetchable at some point
	// during the call, modulo concurrent deletes racing the snapshot.
	ListBlocks(ctx context.Context, kind ListKind) ([]hashcodec.CID, error)

	// EnsureExpiry updates the TTL metadata for a (treeCid, index)
	// entry. Backends only record the value; nothing in this package
	// removes an entry once its TTL lapses.
	EnsureExpiry(ctx context.Context, treeCid hashcodec.CID, index int, ttl int64) error

	// TotalBlocks returns the number of distinct CIDs currently stored.
	TotalBlocks(ctx context.Context) (uint64, error)

	// QuotaMaxBytes returns the configured storage ceiling, or 0 if
	// unbounded.
	QuotaMaxBytes() uint64

	// QuotaUsedBytes returns bytes currently occupied by stored blocks.
	QuotaUsedBytes(ctx context.Context) (uint64, error)

	// QuotaReservedBytes returns bytes provisionally reserved by
	// in-flight writes that have not yet committed.
	QuotaReservedBytes() uint64

	// Close releases any resources (file handles, DB connections) held
	// by the backend.
	Close() error
}
