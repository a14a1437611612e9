package api

import (
	"net/http"
	"time"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

type conversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	LastMessage  string    `json:"last_message"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

type conversationDetail struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []messageResponse `json:"messages"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, updatedAt, err := s.store.CreateConversation(r.Context(), req.Title)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	title := req.Title
	if title == "" {
		title = "New Conversation"
	}
	writeJSON(w, http.StatusOK, conversationDetail{
		ID:        id,
		Title:     title,
		UpdatedAt: updatedAt,
		Messages:  []messageResponse{},
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	out := make([]conversationSummary, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, conversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			LastMessage:  c.LastMessage,
			UpdatedAt:    c.UpdatedAt,
			MessageCount: c.MessageCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	title, updatedAt, messages, err := s.store.ConversationDetail(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "Conversation not found")
		return
	}
	out := conversationDetail{
		ID:        id,
		Title:     title,
		UpdatedAt: updatedAt,
		Messages:  make([]messageResponse, 0, len(messages)),
	}
	for _, m := range messages {
		out.Messages = append(out.Messages, messageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err, "Conversation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
