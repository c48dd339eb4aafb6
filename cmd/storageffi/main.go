// Command storageffi builds this module as a cgo-exported shared
// library: one exported C function per entry point of the foreign
// storage ABI, each translating its arguments into a
// ffipipeline.Request and submitting it to a per-context Pipeline.
//
// Build with:
//
//	go build -buildmode=c-shared -o libstorage.so ./cmd/storageffi
//
// Version and Revision are set at build time via -ldflags, for
// example:
//
//	-ldflags "-X main.Version=$(git describe --tags) -X main.Revision=$(git rev-parse --short HEAD)"
package main

/*
#include <stdint.h>
#include <stdlib.h>

typedef void (*storage_callback)(int callerRet, const char *msg, size_t len, void *userData);

static inline void logos_storage_invoke_callback(storage_callback cb, int callerRet, const char *msg, size_t len, void *userData) {
	if (cb != NULL) {
		cb(callerRet, msg, len, userData);
	}
}
*/
import "C"

import (
	"context"
	"unsafe"

	"runtime/cgo"

	"github.com/nipsysdev/logos-storage-go/internal/nodesetup"
	"github.com/nipsysdev/logos-storage-go/pkg/config"
	"github.com/nipsysdev/logos-storage-go/pkg/ffipipeline"
	"github.com/nipsysdev/logos-storage-go/pkg/logging"
)

func main() {}

// Version and Revision report through storage_version/storage_revision.
var (
	Version  = "dev"
	Revision = "unknown"
)

// Return codes matching the foreign ABI's RET_* constants.
const (
	retOK              = C.int(ffipipeline.CodeOK)
	retErr             = C.int(ffipipeline.CodeErr)
	retMissingCallback = C.int(ffipipeline.CodeMissingCallback)
)

// shimContext bundles everything one storage_new call builds. Every
// exported function after storage_new receives a cgo.Handle to one of
// these, packed into the void* ctx pointer the ABI passes around.
type shimContext struct {
	node       *nodesetup.Node
	dispatcher *ffipipeline.Dispatcher
	pipeline   *ffipipeline.Pipeline
	log        *logging.Logger
}

// invoke calls cb with a heap-allocated copy of msg, freed once the
// callback returns; the caller on the other side of the ABI owns
// nothing beyond the lifetime of that single call.
func invoke(cb C.storage_callback, userData unsafe.Pointer, code ffipipeline.Code, msg []byte) {
	if cb == nil {
		return
	}
	var cMsg *C.char
	var cLen C.size_t
	if len(msg) > 0 {
		cMsg = (*C.char)(C.CBytes(msg))
		cLen = C.size_t(len(msg))
		defer C.free(unsafe.Pointer(cMsg))
	}
	C.logos_storage_invoke_callback(cb, C.int(code), cMsg, cLen, userData)
}

// packHandle stores h in a small malloc'd buffer and returns it as the
// opaque void* the ABI expects storage_new to return; a Go value can't
// be handed across the cgo boundary directly.
func packHandle(h cgo.Handle) unsafe.Pointer {
	ptr := C.malloc(C.size_t(unsafe.Sizeof(h)))
	*(*cgo.Handle)(ptr) = h
	return ptr
}

func unpackHandle(ctx unsafe.Pointer) (cgo.Handle, *shimContext, bool) {
	if ctx == nil {
		return 0, nil, false
	}
	h := *(*cgo.Handle)(ctx)
	sc, ok := h.Value().(*shimContext)
	return h, sc, ok
}

func unpackContext(ctx unsafe.Pointer) (*shimContext, bool) {
	_, sc, ok := unpackHandle(ctx)
	return sc, ok
}

//export storage_new
func storage_new(configJSON *C.char, cb C.storage_callback, userData unsafe.Pointer) unsafe.Pointer {
	cfg, err := config.Parse(C.GoString(configJSON))
	if err != nil {
		invoke(cb, userData, ffipipeline.CodeErr, []byte(err.Error()))
		return nil
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		invoke(cb, userData, ffipipeline.CodeErr, []byte(err.Error()))
		return nil
	}
	log := logging.NewWithFormat(level, cfg.LogFormat)

	n, err := nodesetup.Build(cfg, log.Logger)
	if err != nil {
		invoke(cb, userData, ffipipeline.CodeErr, []byte(err.Error()))
		return nil
	}

	dispatcher := ffipipeline.NewDispatcher(n.Engine, n.Store,
		ffipipeline.WithPeers(n.Transport),
		ffipipeline.WithNodeLog(log),
		ffipipeline.WithVersion(Version, Revision),
		ffipipeline.WithDataDir(cfg.DataDir))
	pipeline := ffipipeline.New(dispatcher.Handle)

	sc := &shimContext{node: n, dispatcher: dispatcher, pipeline: pipeline, log: log}
	h := cgo.NewHandle(sc)

	invoke(cb, userData, ffipipeline.CodeOK, nil)
	return packHandle(h)
}

// submit translates one exported call into a ffipipeline.Request,
// relaying every callback invocation (including intermediate PROGRESS
// signals) back across the ABI via cb.
func submit(ctx unsafe.Pointer, op ffipipeline.Op, payload any, cb C.storage_callback, userData unsafe.Pointer) C.int {
	if cb == nil {
		return retMissingCallback
	}
	sc, ok := unpackContext(ctx)
	if !ok {
		invoke(cb, userData, ffipipeline.CodeErr, []byte("invalid or destroyed storage context"))
		return retErr
	}

	req := ffipipeline.NewRequest(op, payload, func(code ffipipeline.Code, msg []byte, _ any) {
		invoke(cb, userData, code, msg)
	}, nil)

	if err := sc.pipeline.Submit(context.Background(), req); err != nil {
		invoke(cb, userData, ffipipeline.CodeErr, []byte(err.Error()))
		return retErr
	}
	return retOK
}

//export storage_start
func storage_start(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpLifecycleStart, nil, cb, userData)
}

//export storage_stop
func storage_stop(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpLifecycleStop, nil, cb, userData)
}

//export storage_close
func storage_close(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpLifecycleClose, nil, cb, userData)
}

// storage_destroy stops the worker pipeline, closes the underlying
// node and frees the context. It must be the last call made against
// ctx; any use afterward finds a released Handle and fails.
//
//export storage_destroy
func storage_destroy(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	h, sc, ok := unpackHandle(ctx)
	if !ok {
		invoke(cb, userData, ffipipeline.CodeErr, []byte("invalid storage context"))
		return retErr
	}

	sc.pipeline.Close()
	err := sc.node.Close()
	h.Delete()
	C.free(ctx)

	if err != nil {
		invoke(cb, userData, ffipipeline.CodeErr, []byte(err.Error()))
		return retErr
	}
	invoke(cb, userData, ffipipeline.CodeOK, nil)
	return retOK
}

//export storage_version
func storage_version(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpInfoVersion, nil, cb, userData)
}

//export storage_revision
func storage_revision(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpInfoRevision, nil, cb, userData)
}

//export storage_repo
func storage_repo(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpInfoRepo, nil, cb, userData)
}

//export storage_debug
func storage_debug(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpDebugInfo, nil, cb, userData)
}

//export storage_log_level
func storage_log_level(ctx unsafe.Pointer, logLevel *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpDebugLogLevel, ffipipeline.LogLevelPayload{Level: C.GoString(logLevel)}, cb, userData)
}

//export storage_spr
func storage_spr(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpP2PSpr, nil, cb, userData)
}

//export storage_peer_id
func storage_peer_id(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpP2PPeerID, nil, cb, userData)
}

//export storage_connect
func storage_connect(ctx unsafe.Pointer, peerID *C.char, peerAddresses **C.char, peerAddressesSize C.size_t, cb C.storage_callback, userData unsafe.Pointer) C.int {
	addrs := goStrings(peerAddresses, peerAddressesSize)
	return submit(ctx, ffipipeline.OpP2PConnect, ffipipeline.ConnectPayload{PeerID: C.GoString(peerID), Addrs: addrs}, cb, userData)
}

//export storage_peer_debug
func storage_peer_debug(ctx unsafe.Pointer, peerID *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpP2PPeerDebug, ffipipeline.PeerDebugPayload{PeerID: C.GoString(peerID)}, cb, userData)
}

//export storage_upload_init
func storage_upload_init(ctx unsafe.Pointer, filepath *C.char, chunkSize C.size_t, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpUploadInit, ffipipeline.UploadInitPayload{Filepath: C.GoString(filepath), ChunkSize: uint32(chunkSize)}, cb, userData)
}

//export storage_upload_chunk
func storage_upload_chunk(ctx unsafe.Pointer, sessionID *C.char, chunk *C.uint8_t, length C.size_t, cb C.storage_callback, userData unsafe.Pointer) C.int {
	data := C.GoBytes(unsafe.Pointer(chunk), C.int(length))
	return submit(ctx, ffipipeline.OpUploadChunk, ffipipeline.UploadChunkPayload{SessionID: C.GoString(sessionID), Data: data}, cb, userData)
}

//export storage_upload_finalize
func storage_upload_finalize(ctx unsafe.Pointer, sessionID *C.char, mimetype *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpUploadFinalize, ffipipeline.UploadFinalizePayload{SessionID: C.GoString(sessionID), Mimetype: C.GoString(mimetype)}, cb, userData)
}

//export storage_upload_cancel
func storage_upload_cancel(ctx unsafe.Pointer, sessionID *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpUploadCancel, ffipipeline.UploadCancelPayload{SessionID: C.GoString(sessionID)}, cb, userData)
}

//export storage_upload_file
func storage_upload_file(ctx unsafe.Pointer, sessionID *C.char, mimetype *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpUploadFile, ffipipeline.UploadFilePayload{SessionID: C.GoString(sessionID), Mimetype: C.GoString(mimetype)}, cb, userData)
}

//export storage_download_init
func storage_download_init(ctx unsafe.Pointer, cid *C.char, chunkSize C.size_t, local C.int, filepath *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpDownloadInit, ffipipeline.DownloadInitPayload{
		Cid:       C.GoString(cid),
		ChunkSize: uint32(chunkSize),
		Local:     local != 0,
		Filepath:  C.GoString(filepath),
	}, cb, userData)
}

// storage_download_stream drives a previously-initialized download
// session to completion, delivering every chunk as a PROGRESS callback
// and a final OK once the dataset is exhausted.
//
//export storage_download_stream
func storage_download_stream(ctx unsafe.Pointer, sessionID *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpDownloadStream, ffipipeline.DownloadStreamPayload{SessionID: C.GoString(sessionID)}, cb, userData)
}

//export storage_download_chunk
func storage_download_chunk(ctx unsafe.Pointer, sessionID *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpDownloadChunk, ffipipeline.DownloadChunkPayload{SessionID: C.GoString(sessionID)}, cb, userData)
}

//export storage_download_cancel
func storage_download_cancel(ctx unsafe.Pointer, sessionID *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpDownloadCancel, ffipipeline.DownloadCancelPayload{SessionID: C.GoString(sessionID)}, cb, userData)
}

//export storage_download_manifest
func storage_download_manifest(ctx unsafe.Pointer, sessionID *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpDownloadManifest, ffipipeline.DownloadManifestPayload{SessionID: C.GoString(sessionID)}, cb, userData)
}

//export storage_list
func storage_list(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpStorageList, ffipipeline.StorageListPayload{}, cb, userData)
}

//export storage_space
func storage_space(ctx unsafe.Pointer, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpStorageSpace, ffipipeline.StorageSpacePayload{}, cb, userData)
}

//export storage_delete
func storage_delete(ctx unsafe.Pointer, cid *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpStorageDelete, ffipipeline.StorageCidPayload{Cid: C.GoString(cid)}, cb, userData)
}

//export storage_fetch
func storage_fetch(ctx unsafe.Pointer, cid *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpStorageFetch, ffipipeline.StorageCidPayload{Cid: C.GoString(cid)}, cb, userData)
}

//export storage_exists
func storage_exists(ctx unsafe.Pointer, cid *C.char, cb C.storage_callback, userData unsafe.Pointer) C.int {
	return submit(ctx, ffipipeline.OpStorageExists, ffipipeline.StorageCidPayload{Cid: C.GoString(cid)}, cb, userData)
}

// goStrings copies a C array of size C strings into a Go slice.
func goStrings(arr **C.char, size C.size_t) []string {
	if arr == nil || size == 0 {
		return nil
	}
	items := unsafe.Slice(arr, int(size))
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = C.GoString(s)
	}
	return out
}
