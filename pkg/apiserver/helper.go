package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusForErr maps a storageerr.Kind to the HTTP status the REST
// surface reports it as.
func statusForErr(err error) int {
	switch storageerr.KindOf(err) {
	case storageerr.NotFound:
		return http.StatusNotFound
	case storageerr.NotAManifest, storageerr.InvalidCid, storageerr.InvalidArgument, storageerr.InvalidState, storageerr.MalformedManifest:
		return http.StatusBadRequest
	case storageerr.InvalidMimetype:
		return http.StatusUnprocessableEntity
	case storageerr.QuotaExceeded:
		return http.StatusInsufficientStorage
	case storageerr.NetworkFailure, storageerr.Timeout:
		return http.StatusGatewayTimeout
	case storageerr.Cancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusForErr(err)
	s.log.Error(op, "error", err)
	writeJSON(w, status, errorResponse{Error: storageerr.Message(err)})
}

type errorResponse struct {
	Error string `json:"error"`
}
