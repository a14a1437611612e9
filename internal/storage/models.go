package storage

import "time"

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type Conversation struct {
	ID           string
	Title        string
	UpdatedAt    time.Time
	LastMessage  string
	MessageCount int
}

type PerformanceExchange struct {
	ID                 string    `json:"id"`
	ConversationID     string    `json:"conversation_id"`
	CreatedAt          time.Time `json:"created_at"`
	UserPreview        string    `json:"user_preview"`
	AssistantPreview   string    `json:"assistant_preview"`
	TotalLatencyMS     int64     `json:"total_latency_ms"`
	LLMLatencyMS       int64     `json:"llm_latency_ms"`
	PromptTokens       *int      `json:"prompt_tokens"`
	CompletionTokens   *int      `json:"completion_tokens"`
	TotalTokens        *int      `json:"total_tokens"`
	SystemChars        int       `json:"system_chars"`
	UserChars          int       `json:"user_chars"`
	AssistantChars     int       `json:"assistant_chars"`
	SystemTokensEst    *int      `json:"system_tokens_est"`
	UserTokensEst      *int      `json:"user_tokens_est"`
	AssistantTokensEst *int      `json:"assistant_tokens_est"`
}

type ContextSettings struct {
	TenantID            string    `json:"tenant_id"`
	MaxContextTokens    int       `json:"max_context_tokens"`
	MaxResponseTokens   int       `json:"max_response_tokens"`
	CompactTriggerPct   float64   `json:"compact_trigger_pct"`
	CompactInstructions string    `json:"compact_instructions"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type TokenWindow struct {
	TotalTokens      int
	PromptTokens     int
	CompletionTokens int
	ExchangeCount    int
}

type PerformanceSummary struct {
	ExchangeCount int
	LatencyMinMS  int64
	LatencyMaxMS  int64
	LatencyAvgMS  float64
	TokensDay     TokenWindow
	TokensWeek    TokenWindow
	TokensMonth   TokenWindow
	TokensAllTime TokenWindow
}

// ExportSnapshot is the admin export payload, shaped for JSON serialization.
type ExportSnapshot struct {
	TenantID        string                `json:"tenant_id"`
	ExportedAt      time.Time             `json:"exported_at"`
	Conversations   []ExportConversation  `json:"conversations"`
	Messages        []Message             `json:"messages"`
	Exchanges       []PerformanceExchange `json:"performance_exchanges"`
	PromptProfiles  []ExportProfile       `json:"prompt_profiles"`
	PromptOverrides []ExportOverride      `json:"prompt_component_overrides"`
	ContextSettings *ContextSettings      `json:"prompt_context_settings"`
}

type ExportConversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ExportProfile struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ExportOverride struct {
	ID          string    `json:"id"`
	ProfileID   string    `json:"profile_id"`
	ComponentID string    `json:"component_id"`
	Content     *string   `json:"content"`
	Enabled     *bool     `json:"enabled"`
	UpdatedAt   time.Time `json:"updated_at"`
}
