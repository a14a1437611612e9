package api

import (
	"net/http"
	"strconv"
	"time"

	"aigentd/internal/chat"
	"aigentd/internal/storage"
)

type performanceExchangeResponse struct {
	ID               string             `json:"id"`
	ConversationID   string             `json:"conversation_id"`
	CreatedAt        time.Time          `json:"created_at"`
	UserPreview      string             `json:"user_preview"`
	AssistantPreview string             `json:"assistant_preview"`
	Metrics          performanceMetrics `json:"metrics"`
}

func exchangeMetrics(row storage.PerformanceExchange) performanceMetrics {
	return performanceMetrics{
		TotalLatencyMS:   row.TotalLatencyMS,
		LLMLatencyMS:     row.LLMLatencyMS,
		PromptTokens:     row.PromptTokens,
		CompletionTokens: row.CompletionTokens,
		TotalTokens:      row.TotalTokens,
		PromptBreakdown: chat.PromptBreakdown{
			SystemChars:        row.SystemChars,
			UserChars:          row.UserChars,
			AssistantChars:     row.AssistantChars,
			SystemTokensEst:    row.SystemTokensEst,
			UserTokensEst:      row.UserTokensEst,
			AssistantTokensEst: row.AssistantTokensEst,
		},
	}
}

func queryLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

func (s *Server) handleRecentPerformance(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 5, 50)
	rows, err := s.store.RecentPerformanceExchanges(r.Context(), limit)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	out := make([]performanceExchangeResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, performanceExchangeResponse{
			ID:               row.ID,
			ConversationID:   row.ConversationID,
			CreatedAt:        row.CreatedAt,
			UserPreview:      row.UserPreview,
			AssistantPreview: row.AssistantPreview,
			Metrics:          exchangeMetrics(row),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type tokenWindowStats struct {
	TotalTokens          int     `json:"total_tokens"`
	PromptTokens         int     `json:"prompt_tokens"`
	CompletionTokens     int     `json:"completion_tokens"`
	ExchangeCount        int     `json:"exchange_count"`
	AvgTokensPerExchange float64 `json:"avg_tokens_per_exchange"`
}

func windowStats(w storage.TokenWindow) tokenWindowStats {
	avg := 0.0
	if w.ExchangeCount > 0 {
		avg = float64(w.TotalTokens) / float64(w.ExchangeCount)
	}
	return tokenWindowStats{
		TotalTokens:          w.TotalTokens,
		PromptTokens:         w.PromptTokens,
		CompletionTokens:     w.CompletionTokens,
		ExchangeCount:        w.ExchangeCount,
		AvgTokensPerExchange: avg,
	}
}

type performanceSummaryResponse struct {
	ExchangeCount int              `json:"exchange_count"`
	LatencyMinMS  int64            `json:"latency_min_ms"`
	LatencyMaxMS  int64            `json:"latency_max_ms"`
	LatencyAvgMS  float64          `json:"latency_avg_ms"`
	TokensDay     tokenWindowStats `json:"tokens_day"`
	TokensWeek    tokenWindowStats `json:"tokens_week"`
	TokensMonth   tokenWindowStats `json:"tokens_month"`
	TokensAllTime tokenWindowStats `json:"tokens_all_time"`
}

func (s *Server) handlePerformanceSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.SummarizePerformance(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, performanceSummaryResponse{
		ExchangeCount: summary.ExchangeCount,
		LatencyMinMS:  summary.LatencyMinMS,
		LatencyMaxMS:  summary.LatencyMaxMS,
		LatencyAvgMS:  summary.LatencyAvgMS,
		TokensDay:     windowStats(summary.TokensDay),
		TokensWeek:    windowStats(summary.TokensWeek),
		TokensMonth:   windowStats(summary.TokensMonth),
		TokensAllTime: windowStats(summary.TokensAllTime),
	})
}

type debugLogResponse struct {
	ID         string    `json:"id"`
	LogType    string    `json:"log_type"`
	DurationMS int64     `json:"duration_ms"`
	TokenCount *int      `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
	Content    any       `json:"content"`
}

func (s *Server) handleDebugLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 200)
	rows, err := s.store.RecentPerformanceExchanges(r.Context(), limit)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	out := make([]debugLogResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, debugLogResponse{
			ID:         row.ID,
			LogType:    "llm_exchange",
			DurationMS: row.TotalLatencyMS,
			TokenCount: row.TotalTokens,
			CreatedAt:  row.CreatedAt,
			Content: map[string]any{
				"conversation_id":   row.ConversationID,
				"user_preview":      row.UserPreview,
				"assistant_preview": row.AssistantPreview,
				"metrics":           exchangeMetrics(row),
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}
