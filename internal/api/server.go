// Package api exposes the HTTP surface: chat, conversation CRUD, prompt
// profile management, context settings, performance reporting, baseline
// jobs, and admin operations. All error responses are JSON objects with a
// single "detail" field.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"aigentd/internal/baseline"
	"aigentd/internal/chat"
	"aigentd/internal/llm"
	"aigentd/internal/ratelimit"
	"aigentd/internal/storage"
)

type Config struct {
	TenantID      string
	Model         string
	OllamaBaseURL string
	HealthPath    string
	MetricsPath   string
}

type Server struct {
	chat     *chat.Service
	store    *storage.Store
	baseline *baseline.Registry
	limiter  *ratelimit.Limiter
	logger   zerolog.Logger
	cfg      Config
}

func NewServer(chatSvc *chat.Service, store *storage.Store, registry *baseline.Registry, limiter *ratelimit.Limiter, logger zerolog.Logger, cfg Config) *Server {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return &Server{
		chat:     chatSvc,
		store:    store,
		baseline: registry,
		limiter:  limiter,
		logger:   logger.With().Str("component", "api").Logger(),
		cfg:      cfg,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+s.cfg.HealthPath, s.handleHealth)
	mux.Handle("GET "+s.cfg.MetricsPath, promhttp.Handler())

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/llm/warmup", s.handleWarmup)

	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)

	mux.HandleFunc("GET /api/prompts/system", s.handleSystemPrompt)
	mux.HandleFunc("GET /api/prompts/components", s.handleListComponents)
	mux.HandleFunc("PATCH /api/prompts/components/{id}", s.handleUpdateComponent)
	mux.HandleFunc("GET /api/prompts/profiles", s.handleListProfiles)
	mux.HandleFunc("POST /api/prompts/profiles", s.handleCreateProfile)
	mux.HandleFunc("POST /api/prompts/profiles/{id}/activate", s.handleActivateProfile)
	mux.HandleFunc("POST /api/prompts/reset", s.handleResetPrompts)
	mux.HandleFunc("GET /api/prompts/context-settings", s.handleGetContextSettings)
	mux.HandleFunc("PATCH /api/prompts/context-settings", s.handleUpdateContextSettings)

	mux.HandleFunc("GET /api/performance/recent", s.handleRecentPerformance)
	mux.HandleFunc("GET /api/performance/summary", s.handlePerformanceSummary)
	mux.HandleFunc("GET /api/debug/logs", s.handleDebugLogs)

	mux.HandleFunc("POST /api/baseline/start", s.handleBaselineStart)
	mux.HandleFunc("GET /api/baseline/status/{id}", s.handleBaselineStatus)
	mux.HandleFunc("POST /api/baseline/run", s.handleBaselineRun)

	mux.HandleFunc("POST /api/admin/delete-all-data", s.handleDeleteAllData)
	mux.HandleFunc("GET /api/admin/export", s.handleExport)

	return mux
}

type healthResponse struct {
	Status        string `json:"status"`
	TenantID      string `json:"tenant_id"`
	Model         string `json:"model"`
	OllamaBaseURL string `json:"ollama_base_url"`
	IsWarm        bool   `json:"is_warm"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		TenantID:      s.cfg.TenantID,
		Model:         s.cfg.Model,
		OllamaBaseURL: s.cfg.OllamaBaseURL,
		IsWarm:        s.chat.IsWarm(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// decodeBody parses a JSON request body into dst. An empty body is allowed
// and leaves dst at its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
	return false
}

// writeError maps service errors onto the HTTP status taxonomy. notFoundMsg
// customizes the 404 body per resource.
func (s *Server) writeError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeDetail(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, llm.ErrBackendUnavailable), errors.Is(err, llm.ErrBackendFormat):
		writeDetail(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeDetail(w, http.StatusInternalServerError, err.Error())
	}
}
