package api

import (
	"net/http"
	"strings"
	"time"

	"aigentd/internal/chat"
)

const maxMessageChars = 10000

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type contextCompaction struct {
	Applied                     bool `json:"applied"`
	TriggerTokens               int  `json:"trigger_tokens"`
	EstimatedPromptTokensBefore int  `json:"estimated_prompt_tokens_before"`
	EstimatedPromptTokensAfter  int  `json:"estimated_prompt_tokens_after"`
	DroppedHistoryMessages      int  `json:"dropped_history_messages"`
}

type performanceMetrics struct {
	TotalLatencyMS    int64                `json:"total_latency_ms"`
	LLMLatencyMS      int64                `json:"llm_latency_ms"`
	PromptTokens      *int                 `json:"prompt_tokens"`
	CompletionTokens  *int                 `json:"completion_tokens"`
	TotalTokens       *int                 `json:"total_tokens"`
	PromptBreakdown   chat.PromptBreakdown `json:"prompt_breakdown"`
	ContextCompaction *contextCompaction   `json:"context_compaction,omitempty"`
}

type chatResponse struct {
	ConversationID   string             `json:"conversation_id"`
	UserMessage      messageResponse    `json:"user_message"`
	AssistantMessage messageResponse    `json:"assistant_message"`
	Performance      performanceMetrics `json:"performance"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	message := req.Message
	if strings.TrimSpace(message) == "" {
		writeDetail(w, http.StatusBadRequest, "Message must not be empty")
		return
	}
	if len(message) > maxMessageChars {
		writeDetail(w, http.StatusBadRequest, "Message exceeds maximum length")
		return
	}

	allowed, _, resetAt, err := s.limiter.Allow(r.Context(), s.cfg.TenantID, time.Now())
	if err != nil {
		s.logger.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
	} else if !allowed {
		w.Header().Set("Retry-After", resetAt.UTC().Format(http.TimeFormat))
		writeDetail(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	result, err := s.chat.Send(r.Context(), req.ConversationID, message)
	if err != nil {
		s.writeError(w, err, "Conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: result.ConversationID,
		UserMessage: messageResponse{
			ID:        result.UserMessage.ID,
			Role:      result.UserMessage.Role,
			Content:   result.UserMessage.Content,
			Timestamp: result.UserMessage.CreatedAt,
		},
		AssistantMessage: messageResponse{
			ID:        result.AssistantMessage.ID,
			Role:      result.AssistantMessage.Role,
			Content:   result.AssistantMessage.Content,
			Timestamp: result.AssistantMessage.CreatedAt,
		},
		Performance: performanceMetrics{
			TotalLatencyMS:   result.TotalLatencyMS,
			LLMLatencyMS:     result.LLMLatencyMS,
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			TotalTokens:      result.TotalTokens,
			PromptBreakdown:  result.Breakdown,
			ContextCompaction: &contextCompaction{
				Applied:                     result.Compaction.Applied(),
				TriggerTokens:               result.Compaction.ThresholdTokens,
				EstimatedPromptTokensBefore: result.Compaction.EstimatedBefore,
				EstimatedPromptTokensAfter:  result.Compaction.EstimatedAfter,
				DroppedHistoryMessages:      result.Compaction.DroppedMessages,
			},
		},
	})
}

type warmupResponse struct {
	OK        bool      `json:"ok"`
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Model     string    `json:"model"`
	WarmedAt  time.Time `json:"warmed_at"`
}

func (s *Server) handleWarmup(w http.ResponseWriter, r *http.Request) {
	result, err := s.chat.Warmup(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, warmupResponse{
		OK:        true,
		Status:    result.Status,
		LatencyMS: result.LatencyMS,
		Model:     s.cfg.Model,
		WarmedAt:  result.WarmedAt,
	})
}
