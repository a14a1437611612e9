package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrBackendUnavailable wraps network-level failures reaching the model backend.
	ErrBackendUnavailable = errors.New("model backend unavailable")
	// ErrBackendFormat wraps responses that cannot be parsed into a completion.
	ErrBackendFormat = errors.New("invalid model response format")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is one model response. Token counts are nil when the backend
// does not report them; callers fall back to estimation.
type Completion struct {
	Content          string
	LatencyMS        int64
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
}

type Client interface {
	// Chat issues a single model call. maxTokens <= 0 means no response cap.
	// The client never retries on its own.
	Chat(ctx context.Context, messages []Message, maxTokens int) (Completion, error)
}
