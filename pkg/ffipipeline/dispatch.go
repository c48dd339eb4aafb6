package ffipipeline

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync/atomic"

	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/logging"
	"github.com/nipsysdev/logos-storage-go/pkg/manifest"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
	"github.com/nipsysdev/logos-storage-go/pkg/session"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Op names one supported operation, mirroring an entry point of the
// foreign function surface this pipeline stands in for.
type Op string

const (
	OpLifecycleNew   Op = "new"
	OpLifecycleStart Op = "start"
	OpLifecycleStop  Op = "stop"
	OpLifecycleClose Op = "close"

	OpInfoVersion  Op = "version"
	OpInfoRevision Op = "revision"
	OpInfoRepo     Op = "repo"

	OpDebugInfo     Op = "debug"
	OpDebugLogLevel Op = "log_level"

	OpP2PSpr       Op = "spr"
	OpP2PPeerID    Op = "peer_id"
	OpP2PConnect   Op = "connect"
	OpP2PPeerDebug Op = "peer_debug"

	OpUploadInit       Op = "upload_init"
	OpUploadChunk      Op = "upload_chunk"
	OpUploadFinalize   Op = "upload_finalize"
	OpUploadCancel     Op = "upload_cancel"
	OpUploadFile       Op = "upload_file"
	OpDownloadInit     Op = "download_init"
	OpDownloadStream   Op = "download_stream"
	OpDownloadChunk    Op = "download_chunk"
	OpDownloadCancel   Op = "download_cancel"
	OpDownloadManifest Op = "download_manifest"
	OpStorageDelete    Op = "storage_delete"
	OpStorageExists    Op = "storage_exists"
	OpStorageList      Op = "storage_list"
	OpStorageSpace     Op = "storage_space"
	OpStorageFetch     Op = "storage_fetch"
)

// opKinds tells NewRequest and Handle which Kind an Op belongs to,
// mirroring the foreign envelope's kind field, which groups ops the
// same way this table does.
var opKinds = map[Op]Kind{
	OpLifecycleNew:   KindLifecycle,
	OpLifecycleStart: KindLifecycle,
	OpLifecycleStop:  KindLifecycle,
	OpLifecycleClose: KindLifecycle,

	OpInfoVersion:  KindInfo,
	OpInfoRevision: KindInfo,
	OpInfoRepo:     KindInfo,

	OpDebugInfo:     KindDebug,
	OpDebugLogLevel: KindDebug,

	OpP2PSpr:       KindP2P,
	OpP2PPeerID:    KindP2P,
	OpP2PConnect:   KindP2P,
	OpP2PPeerDebug: KindP2P,

	OpUploadInit:     KindUpload,
	OpUploadChunk:    KindUpload,
	OpUploadFinalize: KindUpload,
	OpUploadCancel:   KindUpload,
	OpUploadFile:     KindUpload,

	OpDownloadInit:     KindDownload,
	OpDownloadStream:   KindDownload,
	OpDownloadChunk:    KindDownload,
	OpDownloadCancel:   KindDownload,
	OpDownloadManifest: KindDownload,

	OpStorageDelete: KindStorage,
	OpStorageExists: KindStorage,
	OpStorageList:   KindStorage,
	OpStorageSpace:  KindStorage,
	OpStorageFetch:  KindStorage,
}

type UploadInitPayload struct {
	Filepath  string
	ChunkSize uint32
}

type UploadChunkPayload struct {
	SessionID string
	Data      []byte
}

type UploadFinalizePayload struct {
	SessionID string
	Mimetype  string
}

type UploadCancelPayload struct {
	SessionID string
}

type UploadFilePayload struct {
	SessionID string
	Mimetype  string
}

type DownloadInitPayload struct {
	Cid       string
	ChunkSize uint32
	Local     bool
	Filepath  string
}

type DownloadStreamPayload struct {
	SessionID string
}

type DownloadChunkPayload struct {
	SessionID string
}

type DownloadCancelPayload struct {
	SessionID string
}

type DownloadManifestPayload struct {
	SessionID string
}

type StorageCidPayload struct {
	Cid string
}

type StorageListPayload struct{}

type StorageSpacePayload struct{}

// LogLevelPayload carries the new minimum level for OpDebugLogLevel,
// one of the names logging.ParseLevel accepts.
type LogLevelPayload struct {
	Level string
}

// ConnectPayload carries the peer to dial for OpP2PConnect.
type ConnectPayload struct {
	PeerID string
	Addrs  []string
}

// PeerDebugPayload carries the peer to inspect for OpP2PPeerDebug.
type PeerDebugPayload struct {
	PeerID string
}

// PeerInfo is the peer-to-peer transport surface the Debug and P2P
// kinds need. With a nil PeerInfo the P2P ops fail with InvalidState
// and OpDebugInfo replies with an empty object, so no transport is
// required just to serve storage/upload ops.
type PeerInfo interface {
	SPR() (string, error)
	PeerID() (string, error)
	Connect(peerID string, addrs []string) error
	DebugInfo() (map[string]any, error)
	PeerDebug(peerID string) (map[string]any, error)
}

// lifecycleStage tracks new/start/stop/close transitions the way the
// foreign ABI's context lifecycle expects: start is idempotent while
// running, stop requires having been running.
type lifecycleStage int32

const (
	stageNew lifecycleStage = iota
	stageRunning
	stageStopped
	stageClosed
)

// Dispatcher turns Requests into calls against the node engine and the
// session managers, replying on each request's Callback.
type Dispatcher struct {
	Engine    *node.Engine
	Store     blockstore.Store
	Uploads   *session.UploadManager
	Downloads *session.DownloadManager
	Peers     PeerInfo
	NodeLog   *logging.Logger
	Version   string
	Revision  string
	DataDir   string

	stage int32 // lifecycleStage, accessed atomically
}

// DispatcherOption configures optional Dispatcher fields at
// construction, keeping NewDispatcher's two required arguments stable
// for callers that only need the storage/upload/download ops.
type DispatcherOption func(*Dispatcher)

// WithPeers wires a peer-to-peer transport into the Debug and P2P ops.
func WithPeers(p PeerInfo) DispatcherOption {
	return func(d *Dispatcher) { d.Peers = p }
}

// WithNodeLog lets OpDebugLogLevel reach into the node's own
// runtime-adjustable logger.
func WithNodeLog(l *logging.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.NodeLog = l }
}

// WithVersion sets the strings OpInfoVersion/OpInfoRevision report.
func WithVersion(version, revision string) DispatcherOption {
	return func(d *Dispatcher) { d.Version = version; d.Revision = revision }
}

// WithDataDir sets the path OpInfoRepo reports.
func WithDataDir(dir string) DispatcherOption {
	return func(d *Dispatcher) { d.DataDir = dir }
}

// NewDispatcher builds a Dispatcher over the given engine, its
// backing store, and per-caller session managers.
func NewDispatcher(engine *node.Engine, store blockstore.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		Engine:    engine,
		Store:     store,
		Uploads:   session.NewUploadManager(engine),
		Downloads: session.NewDownloadManager(engine),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle implements Handler, routing req first by Kind (as the
// foreign envelope does) and then by its specific Op.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) {
	kind, ok := opKinds[req.Op]
	if !ok {
		req.fail(storageerr.Newf(storageerr.InvalidArgument, "ffipipeline.Handle", "unknown op %q", req.Op))
		return
	}
	req.Kind = kind

	switch kind {
	case KindLifecycle:
		d.handleLifecycle(req)
	case KindInfo:
		d.handleInfo(req)
	case KindDebug:
		d.handleDebug(req)
	case KindP2P:
		d.handleP2P(req)
	case KindUpload:
		d.handleUpload(ctx, req)
	case KindDownload:
		d.handleDownload(ctx, req)
	case KindStorage:
		d.handleStorage(ctx, req)
	}
}

// handleLifecycle implements the new/start/stop/close sequence a
// foreign caller drives a context through. new is a no-op here since
// the Dispatcher already exists once constructed; start is idempotent
// while already running, matching a double-start being harmless.
func (d *Dispatcher) handleLifecycle(req *Request) {
	switch req.Op {
	case OpLifecycleNew:
		req.reply(CodeOK, nil)
	case OpLifecycleStart:
		atomic.CompareAndSwapInt32(&d.stage, int32(stageNew), int32(stageRunning))
		req.reply(CodeOK, nil)
	case OpLifecycleStop:
		if !atomic.CompareAndSwapInt32(&d.stage, int32(stageRunning), int32(stageStopped)) {
			req.fail(storageerr.Newf(storageerr.InvalidState, "ffipipeline.stop", "node is not running"))
			return
		}
		req.reply(CodeOK, nil)
	case OpLifecycleClose:
		atomic.StoreInt32(&d.stage, int32(stageClosed))
		req.reply(CodeOK, nil)
	default:
		req.fail(errBadPayload(req.Op))
	}
}

func (d *Dispatcher) handleInfo(req *Request) {
	switch req.Op {
	case OpInfoVersion:
		req.reply(CodeOK, mustJSON(map[string]string{"version": d.Version}))
	case OpInfoRevision:
		req.reply(CodeOK, mustJSON(map[string]string{"revision": d.Revision}))
	case OpInfoRepo:
		req.reply(CodeOK, mustJSON(map[string]string{"repo": d.DataDir}))
	default:
		req.fail(errBadPayload(req.Op))
	}
}

func (d *Dispatcher) handleDebug(req *Request) {
	switch req.Op {
	case OpDebugInfo:
		info := map[string]any{}
		if d.Peers != nil {
			peerInfo, err := d.Peers.DebugInfo()
			if err != nil {
				req.fail(err)
				return
			}
			info = peerInfo
		}
		req.reply(CodeOK, mustJSON(info))

	case OpDebugLogLevel:
		p, ok := req.Payload.(LogLevelPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		if d.NodeLog == nil {
			req.fail(storageerr.Newf(storageerr.InvalidState, "ffipipeline.log_level", "node logger not configured"))
			return
		}
		level, err := logging.ParseLevel(strings.TrimSpace(p.Level))
		if err != nil {
			req.fail(storageerr.Wrap(storageerr.InvalidArgument, "ffipipeline.log_level", err))
			return
		}
		d.NodeLog.SetLevel(level)
		req.reply(CodeOK, nil)

	default:
		req.fail(errBadPayload(req.Op))
	}
}

func (d *Dispatcher) handleP2P(req *Request) {
	if d.Peers == nil {
		req.fail(storageerr.Newf(storageerr.InvalidState, "ffipipeline."+string(req.Op), "peer-to-peer transport not configured on this node"))
		return
	}

	switch req.Op {
	case OpP2PSpr:
		spr, err := d.Peers.SPR()
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, mustJSON(map[string]string{"spr": spr}))

	case OpP2PPeerID:
		id, err := d.Peers.PeerID()
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, mustJSON(map[string]string{"peerId": id}))

	case OpP2PConnect:
		p, ok := req.Payload.(ConnectPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		if err := d.Peers.Connect(p.PeerID, p.Addrs); err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, nil)

	case OpP2PPeerDebug:
		p, ok := req.Payload.(PeerDebugPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		info, err := d.Peers.PeerDebug(p.PeerID)
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, mustJSON(info))

	default:
		req.fail(errBadPayload(req.Op))
	}
}

func (d *Dispatcher) handleUpload(ctx context.Context, req *Request) {
	switch req.Op {
	case OpUploadInit:
		p, ok := req.Payload.(UploadInitPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		id := d.Uploads.Init(p.Filepath, p.ChunkSize)
		req.reply(CodeOK, mustJSON(map[string]string{"sessionId": id}))

	case OpUploadChunk:
		p, ok := req.Payload.(UploadChunkPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		if err := d.Uploads.Chunk(p.SessionID, p.Data); err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, nil)

	case OpUploadFinalize:
		p, ok := req.Payload.(UploadFinalizePayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		cid, err := d.Uploads.Finalize(ctx, p.SessionID, p.Mimetype)
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, mustJSON(map[string]string{"cid": cid.String()}))

	case OpUploadCancel:
		p, ok := req.Payload.(UploadCancelPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		if err := d.Uploads.Cancel(p.SessionID); err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, nil)

	case OpUploadFile:
		p, ok := req.Payload.(UploadFilePayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		cid, err := d.Uploads.UploadFile(ctx, p.SessionID, p.Mimetype, func(index int, block []byte) {
			req.reply(CodeProgress, mustJSON(map[string]int{"index": index, "bytes": len(block)}))
		})
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, mustJSON(map[string]string{"cid": cid.String()}))

	default:
		req.fail(errBadPayload(req.Op))
	}
}

func (d *Dispatcher) handleDownload(ctx context.Context, req *Request) {
	switch req.Op {
	case OpDownloadInit:
		p, ok := req.Payload.(DownloadInitPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		cid, err := hashcodec.ParseCID(p.Cid)
		if err != nil {
			req.fail(storageerr.Wrap(storageerr.InvalidCid, "ffipipeline.download_init", err))
			return
		}
		id := d.Downloads.Init(cid, p.ChunkSize, p.Local, p.Filepath)
		req.reply(CodeOK, mustJSON(map[string]string{"sessionId": id}))

	case OpDownloadStream:
		p, ok := req.Payload.(DownloadStreamPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		err := d.Downloads.Stream(ctx, p.SessionID, func(chunk []byte) error {
			req.reply(CodeProgress, chunk)
			return nil
		})
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, nil)

	case OpDownloadChunk:
		p, ok := req.Payload.(DownloadChunkPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		chunk, err := d.Downloads.Chunk(ctx, p.SessionID)
		if err != nil && err != io.EOF {
			req.fail(err)
			return
		}
		if err == io.EOF {
			req.reply(CodeOK, nil)
			return
		}
		req.reply(CodeProgress, chunk)

	case OpDownloadCancel:
		p, ok := req.Payload.(DownloadCancelPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		if err := d.Downloads.Cancel(p.SessionID); err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, nil)

	case OpDownloadManifest:
		p, ok := req.Payload.(DownloadManifestPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		j, err := d.Downloads.Manifest(ctx, p.SessionID)
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, mustJSON(j))

	default:
		req.fail(errBadPayload(req.Op))
	}
}

func (d *Dispatcher) handleStorage(ctx context.Context, req *Request) {
	switch req.Op {
	case OpStorageDelete:
		p, ok := req.Payload.(StorageCidPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		cid, err := hashcodec.ParseCID(p.Cid)
		if err != nil {
			req.fail(storageerr.Wrap(storageerr.InvalidCid, "ffipipeline.storage_delete", err))
			return
		}
		if err := d.Engine.Delete(ctx, cid); err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, nil)

	case OpStorageFetch:
		p, ok := req.Payload.(StorageCidPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		cid, err := hashcodec.ParseCID(p.Cid)
		if err != nil {
			req.fail(storageerr.Wrap(storageerr.InvalidCid, "ffipipeline.storage_fetch", err))
			return
		}
		m, err := d.Engine.FetchManifest(ctx, cid)
		if err != nil {
			req.fail(err)
			return
		}
		if _, err := d.Engine.FetchBatched(ctx, node.FetchBatchedRequest{Manifest: &m, FetchLocal: true}); err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, nil)

	case OpStorageExists:
		p, ok := req.Payload.(StorageCidPayload)
		if !ok {
			req.fail(errBadPayload(req.Op))
			return
		}
		cid, err := hashcodec.ParseCID(p.Cid)
		if err != nil {
			req.fail(storageerr.Wrap(storageerr.InvalidCid, "ffipipeline.storage_exists", err))
			return
		}
		has, err := d.Engine.HasLocalBlock(ctx, cid)
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, mustJSON(map[string]bool{"exists": has}))

	case OpStorageList:
		var cids []string
		err := d.Engine.IterateManifests(ctx, func(cid hashcodec.CID, m manifest.Manifest) error {
			cids = append(cids, cid.String())
			return nil
		})
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, mustJSON(map[string][]string{"manifests": cids}))

	case OpStorageSpace:
		total, err := d.Store.TotalBlocks(ctx)
		if err != nil {
			req.fail(err)
			return
		}
		used, err := d.Store.QuotaUsedBytes(ctx)
		if err != nil {
			req.fail(err)
			return
		}
		req.reply(CodeOK, mustJSON(map[string]uint64{
			"totalBlocks":        total,
			"quotaMaxBytes":      d.Store.QuotaMaxBytes(),
			"quotaUsedBytes":     used,
			"quotaReservedBytes": d.Store.QuotaReservedBytes(),
		}))

	default:
		req.fail(errBadPayload(req.Op))
	}
}

func errBadPayload(op Op) error {
	return storageerr.Newf(storageerr.InvalidArgument, "ffipipeline.Handle", "payload type mismatch for op %q", op)
}

func mustJSON(v any) []byte {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return b
}
