package ffipipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/logging"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
)

type stubPeerInfo struct {
	spr        string
	peerID     string
	connected  []string
	debugInfo  map[string]any
	peerDebugs map[string]map[string]any
}

func (s *stubPeerInfo) SPR() (string, error)    { return s.spr, nil }
func (s *stubPeerInfo) PeerID() (string, error) { return s.peerID, nil }

func (s *stubPeerInfo) Connect(peerID string, addrs []string) error {
	s.connected = append(s.connected, peerID)
	return nil
}

func (s *stubPeerInfo) DebugInfo() (map[string]any, error) { return s.debugInfo, nil }

func (s *stubPeerInfo) PeerDebug(peerID string) (map[string]any, error) {
	return s.peerDebugs[peerID], nil
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	store := blockstore.NewMemoryStore(0)
	e, err := node.New(store)
	require.NoError(t, err)
	return NewDispatcher(e, store)
}

func syncCall(t *testing.T, d *Dispatcher, op Op, payload any) (Code, []byte) {
	t.Helper()
	type result struct {
		code Code
		msg  []byte
	}
	results := make(chan result, 4)
	d.Handle(context.Background(), &Request{
		Op:      op,
		Payload: payload,
		Callback: func(code Code, msg []byte, userData any) {
			results <- result{code, msg}
		},
	})

	var last result
	for {
		select {
		case r := <-results:
			last = r
			if r.code != CodeProgress {
				return last.code, last.msg
			}
		default:
			return last.code, last.msg
		}
	}
}

func TestUploadThenDownloadRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)

	code, msg := syncCall(t, d, OpUploadInit, UploadInitPayload{Filepath: "greeting.txt", ChunkSize: 65536})
	require.Equal(t, CodeOK, code)
	var initResp struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(msg, &initResp))
	require.NotEmpty(t, initResp.SessionID)

	code, _ = syncCall(t, d, OpUploadChunk, UploadChunkPayload{SessionID: initResp.SessionID, Data: []byte("hello there")})
	require.Equal(t, CodeOK, code)

	code, msg = syncCall(t, d, OpUploadFinalize, UploadFinalizePayload{SessionID: initResp.SessionID, Mimetype: "text/plain"})
	require.Equal(t, CodeOK, code)
	var finalizeResp struct {
		Cid string `json:"cid"`
	}
	require.NoError(t, json.Unmarshal(msg, &finalizeResp))
	require.NotEmpty(t, finalizeResp.Cid)

	code, msg = syncCall(t, d, OpDownloadInit, DownloadInitPayload{Cid: finalizeResp.Cid, ChunkSize: 65536, Local: true})
	require.Equal(t, CodeOK, code)
	var dlInitResp struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(msg, &dlInitResp))

	code, msg = syncCall(t, d, OpDownloadManifest, DownloadManifestPayload{SessionID: dlInitResp.SessionID})
	require.Equal(t, CodeOK, code)
	require.Contains(t, string(msg), `"protected":false`)

	code, _ = syncCall(t, d, OpStorageExists, StorageCidPayload{Cid: finalizeResp.Cid})
	require.Equal(t, CodeOK, code)
}

func TestUnknownOpFails(t *testing.T) {
	d := newTestDispatcher(t)
	code, msg := syncCall(t, d, Op("not_a_real_op"), nil)
	require.Equal(t, CodeErr, code)
	require.NotEmpty(t, msg)
}

func TestUploadChunkBadPayloadFails(t *testing.T) {
	d := newTestDispatcher(t)
	code, _ := syncCall(t, d, OpUploadChunk, "not the right payload type")
	require.Equal(t, CodeErr, code)
}

func TestHandleStampsKindFromOp(t *testing.T) {
	d := newTestDispatcher(t)
	req := &Request{Op: OpP2PSpr, Callback: func(Code, []byte, any) {}}
	d.Handle(context.Background(), req)
	require.Equal(t, KindP2P, req.Kind)
}

func TestLifecycleStartIsIdempotent(t *testing.T) {
	d := newTestDispatcher(t)
	code, _ := syncCall(t, d, OpLifecycleStart, nil)
	require.Equal(t, CodeOK, code)
	code, _ = syncCall(t, d, OpLifecycleStart, nil)
	require.Equal(t, CodeOK, code)
	code, _ = syncCall(t, d, OpLifecycleStop, nil)
	require.Equal(t, CodeOK, code)
}

func TestLifecycleStopWithoutStartFails(t *testing.T) {
	d := newTestDispatcher(t)
	code, _ := syncCall(t, d, OpLifecycleStop, nil)
	require.Equal(t, CodeErr, code)
}

func TestInfoOpsReportConfiguredValues(t *testing.T) {
	engine, store := newTestEngineAndStore(t)
	d := NewDispatcher(engine, store, WithVersion("1.2.3", "deadbeef"), WithDataDir("/var/lib/storage"))

	code, msg := syncCall(t, d, OpInfoVersion, nil)
	require.Equal(t, CodeOK, code)
	require.JSONEq(t, `{"version":"1.2.3"}`, string(msg))

	code, msg = syncCall(t, d, OpInfoRevision, nil)
	require.Equal(t, CodeOK, code)
	require.JSONEq(t, `{"revision":"deadbeef"}`, string(msg))

	code, msg = syncCall(t, d, OpInfoRepo, nil)
	require.Equal(t, CodeOK, code)
	require.JSONEq(t, `{"repo":"/var/lib/storage"}`, string(msg))
}

func TestDebugLogLevelChangesNodeLogger(t *testing.T) {
	log := logging.New(logging.LevelInfo)
	engine, store := newTestEngineAndStore(t)
	d := NewDispatcher(engine, store, WithNodeLog(log))

	code, _ := syncCall(t, d, OpDebugLogLevel, LogLevelPayload{Level: "DEBUG"})
	require.Equal(t, CodeOK, code)
	require.Equal(t, logging.LevelDebug, log.Level())
}

func TestDebugLogLevelWithoutNodeLogFails(t *testing.T) {
	d := newTestDispatcher(t)
	code, _ := syncCall(t, d, OpDebugLogLevel, LogLevelPayload{Level: "DEBUG"})
	require.Equal(t, CodeErr, code)
}

func TestP2POpsWithoutPeersFail(t *testing.T) {
	d := newTestDispatcher(t)
	code, msg := syncCall(t, d, OpP2PSpr, nil)
	require.Equal(t, CodeErr, code)
	require.Contains(t, string(msg), "not configured")
}

func TestP2POpsUsePeerInfo(t *testing.T) {
	peers := &stubPeerInfo{
		spr:       "spr:example",
		peerID:    "peer-1",
		debugInfo: map[string]any{"peerId": "peer-1"},
		peerDebugs: map[string]map[string]any{
			"peer-2": {"peerId": "peer-2", "connected": true},
		},
	}
	engine, store := newTestEngineAndStore(t)
	d := NewDispatcher(engine, store, WithPeers(peers))

	code, msg := syncCall(t, d, OpP2PSpr, nil)
	require.Equal(t, CodeOK, code)
	require.JSONEq(t, `{"spr":"spr:example"}`, string(msg))

	code, msg = syncCall(t, d, OpP2PPeerID, nil)
	require.Equal(t, CodeOK, code)
	require.JSONEq(t, `{"peerId":"peer-1"}`, string(msg))

	code, _ = syncCall(t, d, OpP2PConnect, ConnectPayload{PeerID: "peer-3", Addrs: []string{"/ip4/127.0.0.1/udp/4001"}})
	require.Equal(t, CodeOK, code)
	require.Contains(t, peers.connected, "peer-3")

	code, msg = syncCall(t, d, OpP2PPeerDebug, PeerDebugPayload{PeerID: "peer-2"})
	require.Equal(t, CodeOK, code)
	require.JSONEq(t, `{"peerId":"peer-2","connected":true}`, string(msg))

	code, msg = syncCall(t, d, OpDebugInfo, nil)
	require.Equal(t, CodeOK, code)
	require.JSONEq(t, `{"peerId":"peer-1"}`, string(msg))
}

func newTestEngineAndStore(t *testing.T) (*node.Engine, blockstore.Store) {
	t.Helper()
	store := blockstore.NewMemoryStore(0)
	e, err := node.New(store)
	require.NoError(t, err)
	return e, store
}
