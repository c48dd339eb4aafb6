package apiserver

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nipsysdev/logos-storage-go/pkg/blockstore"
	"github.com/nipsysdev/logos-storage-go/pkg/node"
)

func newTestServer(t *testing.T) (*Server, blockstore.Store) {
	t.Helper()
	store := blockstore.NewMemoryStore(0)
	e, err := node.New(store)
	require.NoError(t, err)
	return New(e, store), store
}

func multipartUpload(t *testing.T, filename string, content []byte, mimetype string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	if mimetype != "" {
		require.NoError(t, w.WriteField("mimetype", mimetype))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadThenGetRoundTrips(t *testing.T) {
	s, _ := newTestServer(t)

	body, contentType := multipartUpload(t, "hello.txt", []byte("hello world"), "text/plain")
	req := httptest.NewRequest(http.MethodPost, "/data", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var stored storeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	require.NotEmpty(t, stored.Cid)

	getReq := httptest.NewRequest(http.MethodGet, "/data/"+stored.Cid, nil)
	getRec := httptest.NewRecorder()
	s.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
	require.Equal(t, "text/plain", getRec.Header().Get("Content-Type"))
	data, err := io.ReadAll(getRec.Body)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestStoreRejectsInvalidMimetype(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/data", bytes.NewReader([]byte("hello world")))
	req.Header.Set("Content-Type", "hello/world")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "The MIME type 'hello/world' is not valid.", resp.Error)
}

func TestStoreRejectsInvalidMimetypeFormField(t *testing.T) {
	s, _ := newTestServer(t)

	body, contentType := multipartUpload(t, "hello.txt", []byte("hello world"), "hello/world")
	req := httptest.NewRequest(http.MethodPost, "/data", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "The MIME type 'hello/world' is not valid.", resp.Error)
}

func TestListShowsStoredManifest(t *testing.T) {
	s, _ := newTestServer(t)

	body, contentType := multipartUpload(t, "a.txt", []byte("a"), "text/plain")
	req := httptest.NewRequest(http.MethodPost, "/data", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/data", nil)
	listRec := httptest.NewRecorder()
	s.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &resp))
	require.Len(t, resp.Manifests, 1)
	require.False(t, resp.Manifests[0].Protected)
}

func TestExistsAndDeleteAndSpace(t *testing.T) {
	s, _ := newTestServer(t)

	body, contentType := multipartUpload(t, "a.txt", []byte("some content"), "text/plain")
	req := httptest.NewRequest(http.MethodPost, "/data", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var stored storeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))

	existsReq := httptest.NewRequest(http.MethodGet, "/data/"+stored.Cid+"/exists", nil)
	existsRec := httptest.NewRecorder()
	s.ServeHTTP(existsRec, existsReq)
	var existsResp existsResponse
	require.NoError(t, json.Unmarshal(existsRec.Body.Bytes(), &existsResp))
	require.True(t, existsResp.Exists)

	spaceReq := httptest.NewRequest(http.MethodGet, "/space", nil)
	spaceRec := httptest.NewRecorder()
	s.ServeHTTP(spaceRec, spaceReq)
	require.Equal(t, http.StatusOK, spaceRec.Code)
	var spaceResp spaceResponse
	require.NoError(t, json.Unmarshal(spaceRec.Body.Bytes(), &spaceResp))
	require.Greater(t, spaceResp.TotalBlocks, uint64(0))

	delReq := httptest.NewRequest(http.MethodDelete, "/data/"+stored.Cid, nil)
	delRec := httptest.NewRecorder()
	s.ServeHTTP(delRec, delReq)
	require.Equal(t, http.StatusNoContent, delRec.Code)

	existsRec2 := httptest.NewRecorder()
	s.ServeHTTP(existsRec2, httptest.NewRequest(http.MethodGet, "/data/"+stored.Cid+"/exists", nil))
	var existsResp2 existsResponse
	require.NoError(t, json.Unmarshal(existsRec2.Body.Bytes(), &existsResp2))
	require.False(t, existsResp2.Exists)
}

func TestGetInvalidCidIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/data/invalid-cid", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPeerEndpointsWithoutTransportReturnNotImplemented(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{"/spr", "/peerid", "/debug/info"} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotImplemented, rec.Code, path)
	}
}

func TestOptionsRequestReturnsNoContentWithCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/data", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
