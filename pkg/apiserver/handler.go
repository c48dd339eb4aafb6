package apiserver

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/nipsysdev/logos-storage-go/pkg/hashcodec"
	"github.com/nipsysdev/logos-storage-go/pkg/manifest"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// registeredTopLevelTypes are the IANA top-level media types (plus the
// "example" type reserved for documentation); anything else is
// syntactically a type/subtype pair but not a real MIME type.
var registeredTopLevelTypes = map[string]bool{
	"application": true,
	"audio":       true,
	"example":     true,
	"font":        true,
	"image":       true,
	"message":     true,
	"model":       true,
	"multipart":   true,
	"text":        true,
	"video":       true,
}

// validateMimetype rejects a Content-Type that isn't a well-formed
// "type/subtype" pair under a registered top-level type. An empty
// mimetype is left to the caller to fall back on, not validated here.
func validateMimetype(raw string) error {
	if raw == "" {
		return nil
	}
	full := raw
	if i := strings.IndexByte(full, ';'); i >= 0 {
		full = full[:i]
	}
	typ, _, err := mime.ParseMediaType(raw)
	if err != nil || !registeredTopLevelTypes[strings.ToLower(strings.Split(typ, "/")[0])] {
		return storageerr.Newf(storageerr.InvalidMimetype, "apiserver.handleStore",
			"The MIME type '%s' is not valid.", strings.TrimSpace(full))
	}
	return nil
}

type storeResponse struct {
	Cid string `json:"cid"`
}

type listResponse struct {
	Manifests []manifest.JSON `json:"manifests"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

type spaceResponse struct {
	TotalBlocks        uint64 `json:"totalBlocks"`
	QuotaMaxBytes      uint64 `json:"quotaMaxBytes"`
	QuotaUsedBytes     uint64 `json:"quotaUsedBytes"`
	QuotaReservedBytes uint64 `json:"quotaReservedBytes"`
}

type networkFetchResponse struct {
	Succeeded     int   `json:"succeeded"`
	FailedIndices []int `json:"failedIndices"`
}

func pathCid(r *http.Request) (hashcodec.CID, error) {
	return hashcodec.ParseCID(r.PathValue("cid"))
}

// handleStore implements POST /data: a multipart/form-data upload with
// a required "file" field and an optional "mimetype"/"blockSize" form
// value, chunked and hashed through the engine directly (no session).
func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	if reqType := strings.TrimSpace(r.Header.Get("Content-Type")); reqType != "" && !strings.HasPrefix(strings.ToLower(reqType), "multipart/") {
		if err := validateMimetype(reqType); err != nil {
			s.writeError(w, "apiserver.handleStore", err)
			return
		}
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	mimetype := strings.TrimSpace(r.FormValue("mimetype"))
	if mimetype == "" {
		mimetype = strings.TrimSpace(header.Header.Get("Content-Type"))
	}
	if err := validateMimetype(mimetype); err != nil {
		s.writeError(w, "apiserver.handleStore", err)
		return
	}

	blockSize := uint32(0)
	if raw := r.FormValue("blockSize"); raw != "" {
		parsed, convErr := strconv.ParseUint(raw, 10, 32)
		if convErr != nil {
			http.Error(w, "invalid blockSize", http.StatusBadRequest)
			return
		}
		blockSize = uint32(parsed)
	}
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}

	cid, err := s.engine.Store(r.Context(), file, header.Filename, mimetype, blockSize, nil)
	if err != nil {
		s.writeError(w, "apiserver.handleStore", err)
		return
	}
	writeJSON(w, http.StatusCreated, storeResponse{Cid: cid.String()})
}

// handleList implements GET /data: every manifest currently held
// locally, as its JSON projection.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	resp := listResponse{Manifests: []manifest.JSON{}}
	err := s.engine.IterateManifests(r.Context(), func(cid hashcodec.CID, m manifest.Manifest) error {
		resp.Manifests = append(resp.Manifests, m.ToJSON())
		return nil
	})
	if err != nil {
		s.writeError(w, "apiserver.handleList", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGet implements GET /data/{cid}: a local-only retrieval of the
// whole dataset, streamed to the response body.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.streamDataset(w, r, true)
}

// handleNetworkStream implements GET /data/{cid}/network/stream: the
// same retrieval, but permitted to fall back to the peer network for
// blocks not already held locally.
func (s *Server) handleNetworkStream(w http.ResponseWriter, r *http.Request) {
	s.streamDataset(w, r, false)
}

func (s *Server) streamDataset(w http.ResponseWriter, r *http.Request, local bool) {
	cid, err := pathCid(r)
	if err != nil {
		http.Error(w, "invalid cid", http.StatusBadRequest)
		return
	}

	m, err := s.engine.FetchManifest(r.Context(), cid)
	if err != nil {
		s.writeError(w, "apiserver.streamDataset", err)
		return
	}

	reader, err := s.engine.Retrieve(r.Context(), cid, local)
	if err != nil {
		s.writeError(w, "apiserver.streamDataset", err)
		return
	}
	defer reader.Close()

	contentType := "application/octet-stream"
	if m.HasMimetype {
		contentType = m.Mimetype
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatUint(m.DatasetSize, 10))
	if m.HasFilename {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", m.Filename))
	}

	if _, err := io.Copy(w, reader); err != nil {
		s.log.Error("apiserver.streamDataset", "error", err, "cid", cid.String())
	}
}

// handleNetworkManifest implements GET /data/{cid}/network/manifest:
// fetch the manifest, permitting a network fallback if it isn't held
// locally yet.
func (s *Server) handleNetworkManifest(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCid(r)
	if err != nil {
		http.Error(w, "invalid cid", http.StatusBadRequest)
		return
	}
	m, err := s.engine.FetchManifest(r.Context(), cid)
	if err != nil {
		s.writeError(w, "apiserver.handleNetworkManifest", err)
		return
	}
	writeJSON(w, http.StatusOK, m.ToJSON())
}

// handleDelete implements DELETE /data/{cid}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCid(r)
	if err != nil {
		http.Error(w, "invalid cid", http.StatusBadRequest)
		return
	}
	if err := s.engine.Delete(r.Context(), cid); err != nil {
		s.writeError(w, "apiserver.handleDelete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNetworkFetch implements POST /data/{cid}/network: warms the
// local store with every block of the dataset, fetching from peers
// whatever isn't already local.
func (s *Server) handleNetworkFetch(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCid(r)
	if err != nil {
		http.Error(w, "invalid cid", http.StatusBadRequest)
		return
	}
	m, err := s.engine.FetchManifest(r.Context(), cid)
	if err != nil {
		s.writeError(w, "apiserver.handleNetworkFetch", err)
		return
	}
	result, err := s.engine.FetchBatched(r.Context(), node.FetchBatchedRequest{
		Manifest:   &m,
		FetchLocal: true,
	})
	if err != nil {
		s.writeError(w, "apiserver.handleNetworkFetch", err)
		return
	}
	writeJSON(w, http.StatusOK, networkFetchResponse{
		Succeeded:     result.Succeeded,
		FailedIndices: result.FailedIndices,
	})
}

// handleExists implements GET /data/{cid}/exists.
func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	cid, err := pathCid(r)
	if err != nil {
		http.Error(w, "invalid cid", http.StatusBadRequest)
		return
	}
	exists, err := s.engine.HasLocalBlock(r.Context(), cid)
	if err != nil {
		s.writeError(w, "apiserver.handleExists", err)
		return
	}
	writeJSON(w, http.StatusOK, existsResponse{Exists: exists})
}

// handleSpace implements GET /space.
func (s *Server) handleSpace(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.TotalBlocks(r.Context())
	if err != nil {
		s.writeError(w, "apiserver.handleSpace", err)
		return
	}
	used, err := s.store.QuotaUsedBytes(r.Context())
	if err != nil {
		s.writeError(w, "apiserver.handleSpace", err)
		return
	}
	writeJSON(w, http.StatusOK, spaceResponse{
		TotalBlocks:        total,
		QuotaMaxBytes:      s.store.QuotaMaxBytes(),
		QuotaUsedBytes:     used,
		QuotaReservedBytes: s.store.QuotaReservedBytes(),
	})
}

const defaultBlockSize = 64 * 1024
