package api

import (
	"net/http"
	"strings"
	"time"
)

const (
	maxProfileNameLen    = 64
	minResponseTokens    = 16
	maxResponseTokensCap = 262144
	minTriggerPct        = 0.1
	maxTriggerPct        = 1.0
)

type systemPromptResponse struct {
	Prompt         string `json:"prompt"`
	ComponentCount int    `json:"component_count"`
	ProfileName    string `json:"profile_name"`
	IsCustom       bool   `json:"is_custom"`
}

func (s *Server) handleSystemPrompt(w http.ResponseWriter, r *http.Request) {
	profile, components, overrides, err := s.chat.EffectiveComponents(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	prompt, err := s.chat.SystemPrompt(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, systemPromptResponse{
		Prompt:         prompt,
		ComponentCount: len(components),
		ProfileName:    profile.Name,
		IsCustom:       len(overrides) > 0,
	})
}

type componentResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
	Order    int    `json:"order"`
	Enabled  bool   `json:"enabled"`
	IsSystem bool   `json:"is_system"`
	IsCustom bool   `json:"is_custom"`
}

func (s *Server) handleListComponents(w http.ResponseWriter, r *http.Request) {
	_, components, overrides, err := s.chat.EffectiveComponents(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	out := make([]componentResponse, 0, len(components))
	for _, c := range components {
		_, custom := overrides[c.ID]
		out = append(out, componentResponse{
			ID:       c.ID,
			Name:     c.Name,
			FilePath: c.FilePath,
			Content:  c.Content,
			Order:    c.Order,
			Enabled:  c.Enabled,
			IsSystem: c.IsSystem,
			IsCustom: custom,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type componentUpdateRequest struct {
	Content *string `json:"content"`
	Enabled *bool   `json:"enabled"`
}

func (s *Server) handleUpdateComponent(w http.ResponseWriter, r *http.Request) {
	componentID := r.PathValue("id")
	var req componentUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	_, components, _, err := s.chat.EffectiveComponents(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	known := false
	for _, c := range components {
		if c.ID == componentID {
			known = true
			break
		}
	}
	if !known {
		writeDetail(w, http.StatusNotFound, "Prompt component not found")
		return
	}

	profile, err := s.store.ActivePromptProfile(r.Context(), s.cfg.TenantID)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	if err := s.store.UpsertPromptOverride(r.Context(), profile.ID, componentID, req.Content, req.Enabled); err != nil {
		s.writeError(w, err, "")
		return
	}

	_, components, _, err = s.chat.EffectiveComponents(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	for _, c := range components {
		if c.ID != componentID {
			continue
		}
		writeJSON(w, http.StatusOK, componentResponse{
			ID:       c.ID,
			Name:     c.Name,
			FilePath: c.FilePath,
			Content:  c.Content,
			Order:    c.Order,
			Enabled:  c.Enabled,
			IsSystem: c.IsSystem,
			IsCustom: true,
		})
		return
	}
	writeDetail(w, http.StatusNotFound, "Prompt component not found")
}

type profileResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	IsDefault bool   `json:"is_default"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListPromptProfiles(r.Context(), s.cfg.TenantID)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	out := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, profileResponse{ID: p.ID, Name: p.Name, IsActive: p.IsActive, IsDefault: p.IsDefault})
	}
	writeJSON(w, http.StatusOK, out)
}

type profileCreateRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxProfileNameLen {
		writeDetail(w, http.StatusBadRequest, "Profile name must be 1-64 characters")
		return
	}
	created, err := s.store.CreatePromptProfile(r.Context(), s.cfg.TenantID, name)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{ID: created.ID, Name: created.Name, IsActive: created.IsActive, IsDefault: created.IsDefault})
}

func (s *Server) handleActivateProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ActivatePromptProfile(r.Context(), s.cfg.TenantID, r.PathValue("id")); err != nil {
		s.writeError(w, err, "Prompt profile not found")
		return
	}
	active, err := s.store.ActivePromptProfile(r.Context(), s.cfg.TenantID)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{ID: active.ID, Name: active.Name, IsActive: active.IsActive, IsDefault: active.IsDefault})
}

type promptResetResponse struct {
	OK          bool   `json:"ok"`
	ProfileID   string `json:"profile_id"`
	ProfileName string `json:"profile_name"`
}

func (s *Server) handleResetPrompts(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.ActivePromptProfile(r.Context(), s.cfg.TenantID)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	if err := s.store.ResetPromptProfile(r.Context(), profile.ID); err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, promptResetResponse{OK: true, ProfileID: profile.ID, ProfileName: profile.Name})
}

type contextSettingsResponse struct {
	MaxContextTokens    int       `json:"max_context_tokens"`
	MaxResponseTokens   int       `json:"max_response_tokens"`
	CompactTriggerPct   float64   `json:"compact_trigger_pct"`
	CompactInstructions string    `json:"compact_instructions"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (s *Server) handleGetContextSettings(w http.ResponseWriter, r *http.Request) {
	current, err := s.chat.ContextSettings(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, contextSettingsResponse{
		MaxContextTokens:    current.MaxContextTokens,
		MaxResponseTokens:   current.MaxResponseTokens,
		CompactTriggerPct:   current.CompactTriggerPct,
		CompactInstructions: current.CompactInstructions,
		UpdatedAt:           current.UpdatedAt,
	})
}

type contextSettingsUpdateRequest struct {
	MaxResponseTokens   *int     `json:"max_response_tokens"`
	CompactTriggerPct   *float64 `json:"compact_trigger_pct"`
	CompactInstructions *string  `json:"compact_instructions"`
}

func (s *Server) handleUpdateContextSettings(w http.ResponseWriter, r *http.Request) {
	var req contextSettingsUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MaxResponseTokens != nil && (*req.MaxResponseTokens < minResponseTokens || *req.MaxResponseTokens > maxResponseTokensCap) {
		writeDetail(w, http.StatusBadRequest, "max_response_tokens out of range")
		return
	}
	if req.CompactTriggerPct != nil && (*req.CompactTriggerPct < minTriggerPct || *req.CompactTriggerPct > maxTriggerPct) {
		writeDetail(w, http.StatusBadRequest, "compact_trigger_pct out of range")
		return
	}
	current, err := s.chat.UpdateContextSettings(r.Context(), req.MaxResponseTokens, req.CompactTriggerPct, req.CompactInstructions)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, contextSettingsResponse{
		MaxContextTokens:    current.MaxContextTokens,
		MaxResponseTokens:   current.MaxResponseTokens,
		CompactTriggerPct:   current.CompactTriggerPct,
		CompactInstructions: current.CompactInstructions,
		UpdatedAt:           current.UpdatedAt,
	})
}
