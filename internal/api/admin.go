package api

import (
	"net/http"
	"time"
)

type deleteAllDataRequest struct {
	Confirm bool `json:"confirm"`
}

type deleteAllDataResponse struct {
	OK        bool      `json:"ok"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (s *Server) handleDeleteAllData(w http.ResponseWriter, r *http.Request) {
	var req deleteAllDataRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Confirm {
		writeDetail(w, http.StatusBadRequest, "Confirmation required")
		return
	}
	if err := s.store.DeleteAllData(r.Context()); err != nil {
		s.writeError(w, err, "")
		return
	}
	s.chat.ResetWarmState()
	writeJSON(w, http.StatusOK, deleteAllDataResponse{OK: true, DeletedAt: time.Now().UTC()})
}

type exportResponse struct {
	Version       string `json:"version"`
	Model         string `json:"model"`
	OllamaBaseURL string `json:"ollama_base_url"`
	Data          any    `json:"data"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.store.Export(r.Context(), s.cfg.TenantID)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{
		Version:       "aigentd-export-v1",
		Model:         s.cfg.Model,
		OllamaBaseURL: s.cfg.OllamaBaseURL,
		Data:          snapshot,
	})
}
