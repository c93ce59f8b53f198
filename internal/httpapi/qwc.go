package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/qbd-sync-gateway/internal/qbdprovision"
)

type generateQWCRequest struct {
	TenantID *string `json:"tenant_id"`
}

type generateQWCResponse struct {
	TenantID      string `json:"tenant_id"`
	Password      string `json:"password"`
	QWCFileBase64 string `json:"qwc_file_base64"`
	Username      string `json:"username,omitempty"`
	FileID        string `json:"file_id,omitempty"`
}

// handleGenerateQWC implements POST /client-systems/quickbooks/desktop/qwc.
func (s *Server) handleGenerateQWC(w http.ResponseWriter, r *http.Request) {
	var body generateQWCRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if body.TenantID == nil || *body.TenantID == "" {
		writeError(w, r, http.StatusBadRequest, "tenant_id is required")
		return
	}

	out, err := s.Provision.GenerateQWC(r.Context(), *body.TenantID, s.DefaultApp)
	if err != nil {
		if errors.Is(err, qbdprovision.ErrTenantNotFound) {
			writeError(w, r, http.StatusNotFound, "tenant not found")
			return
		}
		log.Error().Err(err).Msg("generate qwc failed")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, generateQWCResponse{
		TenantID:      out.TenantID,
		Password:      out.Password,
		QWCFileBase64: out.QWCFileBase64,
		Username:      out.Username,
		FileID:        out.FileID,
	})
}
