package api

import (
	"net/http"
)

type baselineStartRequest struct {
	EnforceMaxResponseTokens *bool `json:"enforce_max_response_tokens"`
}

func (r baselineStartRequest) enforce() bool {
	if r.EnforceMaxResponseTokens == nil {
		return true
	}
	return *r.EnforceMaxResponseTokens
}

type baselineStartResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (s *Server) handleBaselineStart(w http.ResponseWriter, r *http.Request) {
	var req baselineStartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	jobID := s.baseline.Start(r.Context(), req.enforce())
	writeJSON(w, http.StatusOK, baselineStartResponse{JobID: jobID, Status: "running"})
}

func (s *Server) handleBaselineStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.baseline.Status(r.PathValue("id"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Baseline job not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleBaselineRun(w http.ResponseWriter, r *http.Request) {
	var req baselineStartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.baseline.Run(r.Context(), req.enforce())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
