package session

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/manifest"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// DownloadState is a state in a download session's lifecycle.
type DownloadState int

const (
	DownloadInitialized DownloadState = iota
	DownloadStreaming
	DownloadCancelled
	DownloadCompleted
)

func (s DownloadState) String() string {
	switch s {
	case DownloadInitialized:
		return "Initialized"
	case DownloadStreaming:
		return "Streaming"
	case DownloadCancelled:
		return "Cancelled"
	case DownloadCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

type downloadSession struct {
	mu sync.Mutex

	id        string
	cid       hashcodec.CID
	blockSize uint32
	local     bool
	filepath  string

	state  DownloadState
	reader io.ReadCloser
	file   *os.File
}

// DownloadManager tracks in-flight download sessions over a shared
// node engine.
type DownloadManager struct {
	engine   *node.Engine
	sessions sync.Map // map[string]*downloadSession
}

// NewDownloadManager builds a DownloadManager driving engine.
func NewDownloadManager(engine *node.Engine) *DownloadManager {
	return &DownloadManager{engine: engine}
}

// Init records a new download session for cid, chunked at blockSize
// for Chunk/Stream reads. If local is false the underlying retrieve
// also warms the local store from the network in the background. If
// path is non-empty, streamed bytes are additionally written there.
func (m *DownloadManager) Init(cid hashcodec.CID, blockSize uint32, local bool, path string) string {
	id := uuid.NewString()
	m.sessions.Store(id, &downloadSession{
		id:        id,
		cid:       cid,
		blockSize: blockSize,
		local:     local,
		filepath:  path,
		state:     DownloadInitialized,
	})
	return id
}

func (m *DownloadManager) session(id string) (*downloadSession, error) {
	v, ok := m.sessions.Load(id)
	if !ok {
		return nil, storageerr.Newf(storageerr.NotFound, "session.download", "unknown download session %q", id)
	}
	return v.(*downloadSession), nil
}

// ensureOpen lazily opens the retrieval stream (and destination file,
// if configured) on the first read. s.mu must be held by the caller.
func (m *DownloadManager) ensureOpen(ctx context.Context, s *downloadSession) error {
	if s.reader != nil {
		return nil
	}
	r, err := m.engine.Retrieve(ctx, s.cid, s.local)
	if err != nil {
		return err
	}
	if s.filepath != "" {
		f, err := os.Create(s.filepath)
		if err != nil {
			_ = r.Close()
			return storageerr.Wrap(storageerr.IoFailure, "session.DownloadStream", err)
		}
		s.file = f
	}
	s.reader = r
	return nil
}

func (m *DownloadManager) finish(s *downloadSession) {
	s.state = DownloadCompleted
	if s.reader != nil {
		_ = s.reader.Close()
	}
	if s.file != nil {
		_ = s.file.Close()
	}
}

// Chunk returns the next chunk (up to blockSize bytes) from the
// session's stream, writing it to the session's file if one is
// configured. It returns io.EOF once the stream is exhausted, after
// which the session is Completed and further calls fail with
// InvalidState.
func (m *DownloadManager) Chunk(ctx context.Context, id string) ([]byte, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == DownloadCancelled || s.state == DownloadCompleted {
		return nil, storageerr.Newf(storageerr.InvalidState, "session.DownloadChunk", "session %q is %s", id, s.state)
	}

	if err := m.ensureOpen(ctx, s); err != nil {
		return nil, err
	}
	s.state = DownloadStreaming

	buf := make([]byte, s.blockSize)
	n, err := io.ReadFull(s.reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		m.finish(s)
		return nil, storageerr.Wrap(storageerr.IoFailure, "session.DownloadChunk", err)
	}
	chunk := buf[:n]

	if s.file != nil && n > 0 {
		if _, werr := s.file.Write(chunk); werr != nil {
			m.finish(s)
			return nil, storageerr.Wrap(storageerr.IoFailure, "session.DownloadChunk", werr)
		}
	}

	if n == 0 {
		m.finish(s)
		return nil, io.EOF
	}
	return chunk, nil
}

// Stream drains the session via repeated Chunk calls, invoking onChunk
// for each non-empty chunk. An onChunk error stops streaming and is
// returned.
func (m *DownloadManager) Stream(ctx context.Context, id string, onChunk func([]byte) error) error {
	for {
		chunk, err := m.Chunk(ctx, id)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if onChunk != nil {
			if cbErr := onChunk(chunk); cbErr != nil {
				return cbErr
			}
		}
	}
}

// Cancel halts a session's emissions and releases its resources. Not
// valid once the session is already terminal.
func (m *DownloadManager) Cancel(id string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == DownloadCancelled || s.state == DownloadCompleted {
		return storageerr.Newf(storageerr.InvalidState, "session.DownloadCancel", "session %q is already %s", id, s.state)
	}
	if s.reader != nil {
		_ = s.reader.Close()
	}
	if s.file != nil {
		_ = s.file.Close()
	}
	s.state = DownloadCancelled
	return nil
}

// Manifest fetches and returns the session's manifest as its JSON
// projection, independent of the session's streaming cursor.
func (m *DownloadManager) Manifest(ctx context.Context, id string) (manifest.JSON, error) {
	s, err := m.session(id)
	if err != nil {
		return manifest.JSON{}, err
	}
	man, err := m.engine.FetchManifest(ctx, s.cid)
	if err != nil {
		return manifest.JSON{}, err
	}
	return man.ToJSON(), nil
}

// State reports a session's current state.
func (m *DownloadManager) State(id string) (DownloadState, error) {
	s, err := m.session(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}
