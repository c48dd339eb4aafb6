// Package session implements the per-caller upload and download state
// machines that sit between the request pipeline and the node engine.
// Sessions are addressed by an opaque ID and are safe for concurrent
// use across distinct sessions; operations within one session are
// expected to be called in order by the owner.
package session

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// UploadState is a state in an upload session's lifecycle.
type UploadState int

const (
	UploadOpen UploadState = iota
	UploadFinalizing
	UploadCancelled
	UploadCompleted
)

func (s UploadState) String() string {
	switch s {
	case UploadOpen:
		return "Open"
	case UploadFinalizing:
		return "Finalizing"
	case UploadCancelled:
		return "Cancelled"
	case UploadCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

type uploadSession struct {
	mu sync.Mutex

	id       string
	filename string
	blockSize uint32

	buffer []byte
	state  UploadState
	result hashcodec.CID
}

// UploadManager tracks in-flight upload sessions over a shared node
// engine. Sessions live in a sync.Map so lookups and independent
// sessions never contend on a single lock.
type UploadManager struct {
	engine   *node.Engine
	sessions sync.Map // map[string]*uploadSession
}

// NewUploadManager builds an UploadManager driving engine.
func NewUploadManager(engine *node.Engine) *UploadManager {
	return &UploadManager{engine: engine}
}

// Init opens a new upload session for filename (used as the stored
// manifest's filename hint) chunked at blockSize, returning its
// session ID.
func (m *UploadManager) Init(filename string, blockSize uint32) string {
	id := uuid.NewString()
	m.sessions.Store(id, &uploadSession{
		id:        id,
		filename:  filename,
		blockSize: blockSize,
		state:     UploadOpen,
	})
	return id
}

func (m *UploadManager) session(id string) (*uploadSession, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, storageerr.Newf(storageerr.NotFound, "session.upload", "unknown upload session %q", id)
	}
	return v.(*uploadSession), nil
}

// Chunk appends data to the session's pending buffer. Only valid while
// the session is Open.
func (m *UploadManager) Chunk(id string, data []byte) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != UploadOpen {
		return storageerr.Newf(storageerr.InvalidState, "session.UploadChunk", "session %q is %s, not Open", id, s.state)
	}
	s.buffer = append(s.buffer, data...)
	return nil
}

// Cancel discards a session's buffered bytes and terminates it. Only
// valid while the session is Open.
func (m *UploadManager) Cancel(id string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != UploadOpen {
		return storageerr.Newf(storageerr.InvalidState, "session.UploadCancel", "session %q is %s, not Open", id, s.state)
	}
	s.state = UploadCancelled
	s.buffer = nil
	return nil
}

// Finalize drives the session's accumulated buffer through the engine's
// store operation, producing a manifest CID equal to what storing the
// same bytes directly would yield. Only valid while the session is
// Open.
func (m *UploadManager) Finalize(ctx context.Context, id string, mimetype string) (hashcodec.CID, error) {
	s, err := m.session(id)
	if err != nil {
		return hashcodec.CID{}, err
	}

	s.mu.Lock()
	if s.state != UploadOpen {
		s.mu.Unlock()
		return hashcodec.CID{}, storageerr.Newf(storageerr.InvalidState, "session.UploadFinalize", "session %q is %s, not Open", id, s.state)
	}
	s.state = UploadFinalizing
	data := s.buffer
	s.buffer = nil
	filename, blockSize := s.filename, s.blockSize
	s.mu.Unlock()

	cid, err := m.engine.Store(ctx, bytes.NewReader(data), filename, mimetype, blockSize, nil)
	if err != nil {
		return hashcodec.CID{}, err
	}

	s.mu.Lock()
	s.state = UploadCompleted
	s.result = cid
	s.mu.Unlock()
	return cid, nil
}

// UploadFile opens the file named by the session's filename, streams
// it through the engine's store operation, and invokes onProgress once
// per block stored. Only valid while the session is Open.
func (m *UploadManager) UploadFile(ctx context.Context, id string, mimetype string, onProgress func(index int, block []byte)) (hashcodec.CID, error) {
	s, err := m.session(id)
	if err != nil {
		return hashcodec.CID{}, err
	}

	s.mu.Lock()
	if s.state != UploadOpen {
		s.mu.Unlock()
		return hashcodec.CID{}, storageerr.Newf(storageerr.InvalidState, "session.UploadFile", "session %q is %s, not Open", id, s.state)
	}
	s.state = UploadFinalizing
	filename, blockSize := s.filename, s.blockSize
	s.mu.Unlock()

	f, err := os.Open(filename)
	if err != nil {
		return hashcodec.CID{}, storageerr.Wrap(storageerr.IoFailure, "session.UploadFile", err)
	}
	defer f.Close()

	index := 0
	cid, err := m.engine.Store(ctx, f, filepath.Base(filename), mimetype, blockSize, func(block []byte) {
		if onProgress != nil {
			onProgress(index, block)
		}
		index++
	})
	if err != nil {
		return hashcodec.CID{}, err
	}

	s.mu.Lock()
	s.state = UploadCompleted
	s.result = cid
	s.mu.Unlock()
	return cid, nil
}

// State reports a session's current state.
func (m *UploadManager) State(id string) (UploadState, error) {
	s, err := m.session(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}
