// Package gateway provides the main Cratos gateway server.
//
// rest_config.go implements the /api/v1/config REST surface (GET returns
// the current config snapshot + hash, PUT applies an edited config) over
// the control-plane ConfigManager the server already implements for the
// WebSocket/gRPC config surface.
package gateway

import (
	"encoding/json"
	"net/http"
)

func (s *Server) mountConfigAPI(mux *http.ServeMux) {
	wrap := httpAuthMiddleware(s.authService, s.logger)
	mux.Handle("/api/v1/config", wrap(http.HandlerFunc(s.handleConfigAPI)))
}

type configPutRequest struct {
	Raw      string `json:"raw"`
	BaseHash string `json:"base_hash,omitempty"`
}

func (s *Server) handleConfigAPI(w http.ResponseWriter, r *http.Request) {
	if caller, ok := callerFromRequest(r); (!ok || !caller.Admin) && s.authService != nil && s.authService.Enabled() {
		writeJSONError(w, http.StatusForbidden, "admin scope required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		snapshot, err := s.ConfigSnapshot(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	case http.MethodPut:
		var req configPutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		result, err := s.ApplyConfig(r.Context(), req.Raw, req.BaseHash)
		if err != nil {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
