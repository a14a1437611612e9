// Package chat orchestrates one conversational turn: persist the user
// message, compose the system prompt for the active profile, compact the
// context window, call the model, and record performance data.
package chat

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aigentd/internal/contextwin"
	"aigentd/internal/llm"
	"aigentd/internal/metrics"
	"aigentd/internal/prompts"
	"aigentd/internal/storage"
	"aigentd/internal/tokens"
)

const previewLimit = 160

type Config struct {
	TenantID          string
	Model             string
	ContextWindow     int
	MaxResponseTokens int
	// DefaultTriggerPct seeds compact_trigger_pct on first access.
	DefaultTriggerPct float64
}

type Service struct {
	store     *storage.Store
	client    llm.Client
	estimator tokens.Estimator
	source    *prompts.Source
	compactor *contextwin.Compactor
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	cfg       Config

	warmupMu sync.Mutex
	warmedAt *time.Time

	titleWG sync.WaitGroup
}

func NewService(store *storage.Store, client llm.Client, source *prompts.Source, logger zerolog.Logger, cfg Config) *Service {
	if cfg.DefaultTriggerPct <= 0 {
		cfg.DefaultTriggerPct = 0.9
	}
	estimator := tokens.CharEstimator{}
	return &Service{
		store:     store,
		client:    client,
		estimator: estimator,
		source:    source,
		compactor: contextwin.New(estimator),
		logger:    logger.With().Str("component", "chat").Logger(),
		metrics:   metrics.Global(),
		cfg:       cfg,
	}
}

// Close waits for in-flight background title refreshes to finish.
func (s *Service) Close() {
	s.titleWG.Wait()
}

func (s *Service) Model() string { return s.cfg.Model }

// IsWarm reports whether a warmup call has completed since startup.
func (s *Service) IsWarm() bool {
	s.warmupMu.Lock()
	defer s.warmupMu.Unlock()
	return s.warmedAt != nil
}

// ResetWarmState forgets the warmup marker, e.g. after a full data wipe.
func (s *Service) ResetWarmState() {
	s.warmupMu.Lock()
	s.warmedAt = nil
	s.warmupMu.Unlock()
}

// EffectiveComponents resolves the active profile and merges its overrides
// into the default component list.
func (s *Service) EffectiveComponents(ctx context.Context) (prompts.Profile, []prompts.Component, map[string]prompts.Override, error) {
	defaults, err := s.source.Components()
	if err != nil {
		return prompts.Profile{}, nil, nil, err
	}
	profile, err := s.store.ActivePromptProfile(ctx, s.cfg.TenantID)
	if err != nil {
		return prompts.Profile{}, nil, nil, err
	}
	overrides, err := s.store.PromptOverrides(ctx, profile.ID)
	if err != nil {
		return prompts.Profile{}, nil, nil, err
	}
	return profile, prompts.ApplyOverrides(defaults, overrides), overrides, nil
}

// SystemPrompt composes the effective system prompt for the active profile.
func (s *Service) SystemPrompt(ctx context.Context) (string, error) {
	_, components, _, err := s.EffectiveComponents(ctx)
	if err != nil {
		return "", err
	}
	return prompts.Compose(components), nil
}

// ContextSettings returns the tenant's settings, keeping max_context_tokens
// pinned to the configured model window. The window is not client-settable;
// stored drift (e.g. after a redeploy with a different model) is corrected
// on read. max_response_tokens and the compaction fields stay as stored.
func (s *Service) ContextSettings(ctx context.Context) (storage.ContextSettings, error) {
	current, err := s.store.EnsureContextSettings(ctx, s.cfg.TenantID, s.cfg.ContextWindow, s.cfg.MaxResponseTokens, s.cfg.DefaultTriggerPct)
	if err != nil {
		return storage.ContextSettings{}, err
	}
	if current.MaxContextTokens != s.cfg.ContextWindow {
		window := s.cfg.ContextWindow
		return s.store.UpdateContextSettings(ctx, s.cfg.TenantID, &window, nil, nil, nil)
	}
	return current, nil
}

// UpdateContextSettings patches the mutable settings fields. The context
// window is forced back to the configured value on every write.
func (s *Service) UpdateContextSettings(ctx context.Context, maxResponseTokens *int, compactTriggerPct *float64, compactInstructions *string) (storage.ContextSettings, error) {
	window := s.cfg.ContextWindow
	return s.store.UpdateContextSettings(ctx, s.cfg.TenantID, &window, maxResponseTokens, compactTriggerPct, compactInstructions)
}

type PromptBreakdown struct {
	SystemChars        int  `json:"system_chars"`
	UserChars          int  `json:"user_chars"`
	AssistantChars     int  `json:"assistant_chars"`
	SystemTokensEst    *int `json:"system_tokens_est"`
	UserTokensEst      *int `json:"user_tokens_est"`
	AssistantTokensEst *int `json:"assistant_tokens_est"`
}

type SendResult struct {
	ConversationID   string
	UserMessage      storage.Message
	AssistantMessage storage.Message
	TotalLatencyMS   int64
	LLMLatencyMS     int64
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	Breakdown        PromptBreakdown
	Compaction       contextwin.Report
}

// Send runs one full chat turn. An empty conversationID starts a new
// conversation. Returns storage.ErrNotFound when the given conversation does
// not exist and the model backend's error unchanged when the call fails; the
// user message is persisted either way.
func (s *Service) Send(ctx context.Context, conversationID, message string) (SendResult, error) {
	s.metrics.ChatRequests.Inc()

	if conversationID != "" {
		exists, err := s.store.ConversationExists(ctx, conversationID)
		if err != nil {
			return SendResult{}, err
		}
		if !exists {
			return SendResult{}, storage.ErrNotFound
		}
	} else {
		id, _, err := s.store.CreateConversation(ctx, "")
		if err != nil {
			return SendResult{}, err
		}
		conversationID = id
	}

	userMessage, err := s.store.AddMessage(ctx, conversationID, llm.RoleUser, message)
	if err != nil {
		return SendResult{}, err
	}
	if err := s.store.MaybeSetTitleFromMessage(ctx, conversationID, message); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("set provisional title")
	}

	systemPrompt, err := s.SystemPrompt(ctx)
	if err != nil {
		return SendResult{}, err
	}
	settings, err := s.ContextSettings(ctx)
	if err != nil {
		return SendResult{}, err
	}

	stored, err := s.store.Messages(ctx, conversationID)
	if err != nil {
		return SendResult{}, err
	}
	history := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}

	llmMessages, report := s.compactor.Assemble(systemPrompt, history, contextwin.Settings{
		MaxContextTokens:    settings.MaxContextTokens,
		CompactTriggerPct:   settings.CompactTriggerPct,
		CompactInstructions: settings.CompactInstructions,
	})
	if report.Applied() {
		s.metrics.CompactionsRun.Inc()
		s.metrics.DroppedMessages.Add(float64(report.DroppedMessages))
		s.logger.Debug().
			Str("conversation_id", conversationID).
			Int("dropped", report.DroppedMessages).
			Int("est_before", report.EstimatedBefore).
			Int("est_after", report.EstimatedAfter).
			Msg("context compacted")
	}

	var systemChars, userChars, assistantChars int
	for _, m := range llmMessages {
		switch m.Role {
		case llm.RoleSystem:
			systemChars += len(m.Content)
		case llm.RoleUser:
			userChars += len(m.Content)
		case llm.RoleAssistant:
			assistantChars += len(m.Content)
		}
	}

	started := time.Now()
	completion, err := s.client.Chat(ctx, llmMessages, settings.MaxResponseTokens)
	if err != nil {
		s.metrics.ModelCallErrors.WithLabelValues("chat").Inc()
		return SendResult{}, err
	}
	totalLatency := time.Since(started)
	s.metrics.ModelCalls.WithLabelValues("chat").Inc()
	s.metrics.ModelLatencySecs.Observe(totalLatency.Seconds())

	assistantMessage, err := s.store.AddMessage(ctx, conversationID, llm.RoleAssistant, completion.Content)
	if err != nil {
		return SendResult{}, err
	}

	sysEst, userEst, asstEst := allocateEstimatedTokens(completion.PromptTokens, systemChars, userChars, assistantChars)
	exchange := storage.PerformanceExchange{
		ConversationID:     conversationID,
		UserPreview:        preview(message),
		AssistantPreview:   preview(completion.Content),
		TotalLatencyMS:     totalLatency.Milliseconds(),
		LLMLatencyMS:       completion.LatencyMS,
		PromptTokens:       completion.PromptTokens,
		CompletionTokens:   completion.CompletionTokens,
		TotalTokens:        completion.TotalTokens,
		SystemChars:        systemChars,
		UserChars:          userChars,
		AssistantChars:     assistantChars,
		SystemTokensEst:    sysEst,
		UserTokensEst:      userEst,
		AssistantTokensEst: asstEst,
	}
	if err := s.store.AddPerformanceExchange(ctx, exchange); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("record performance exchange")
	}

	s.maybeRefreshTitle(ctx, conversationID)

	return SendResult{
		ConversationID:   conversationID,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		TotalLatencyMS:   totalLatency.Milliseconds(),
		LLMLatencyMS:     completion.LatencyMS,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		TotalTokens:      completion.TotalTokens,
		Breakdown: PromptBreakdown{
			SystemChars:        systemChars,
			UserChars:          userChars,
			AssistantChars:     assistantChars,
			SystemTokensEst:    sysEst,
			UserTokensEst:      userEst,
			AssistantTokensEst: asstEst,
		},
		Compaction: report,
	}, nil
}

type WarmupResult struct {
	Status    string
	LatencyMS int64
	WarmedAt  time.Time
}

// Warmup sends a trivial completion so the backend loads the model before
// real traffic arrives. Concurrent callers serialize on one mutex; only the
// first successful call hits the backend.
func (s *Service) Warmup(ctx context.Context) (WarmupResult, error) {
	started := time.Now()
	s.warmupMu.Lock()
	defer s.warmupMu.Unlock()

	if s.warmedAt != nil {
		return WarmupResult{
			Status:    "already_warmed",
			LatencyMS: time.Since(started).Milliseconds(),
			WarmedAt:  *s.warmedAt,
		}, nil
	}

	maxTokens := s.cfg.MaxResponseTokens
	if maxTokens > 64 {
		maxTokens = 64
	}
	_, err := s.client.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: "hello"}}, maxTokens)
	if err != nil {
		s.metrics.ModelCallErrors.WithLabelValues("warmup").Inc()
		return WarmupResult{}, err
	}
	s.metrics.ModelCalls.WithLabelValues("warmup").Inc()

	now := time.Now().UTC()
	s.warmedAt = &now
	return WarmupResult{
		Status:    "warmed",
		LatencyMS: time.Since(started).Milliseconds(),
		WarmedAt:  now,
	}, nil
}

// maybeRefreshTitle regenerates the conversation title with the model after
// the first assistant reply and every tenth one after that. Runs in the
// background so it never delays the chat response; failures are logged and
// dropped.
func (s *Service) maybeRefreshTitle(ctx context.Context, conversationID string) {
	bg := context.WithoutCancel(ctx)
	s.titleWG.Add(1)
	go func() {
		defer s.titleWG.Done()
		ctx, cancel := context.WithTimeout(bg, 2*time.Minute)
		defer cancel()
		if err := s.refreshTitle(ctx, conversationID); err != nil {
			s.logger.Debug().Err(err).Str("conversation_id", conversationID).Msg("title refresh skipped")
		}
	}()
}

func (s *Service) refreshTitle(ctx context.Context, conversationID string) error {
	messages, err := s.store.Messages(ctx, conversationID)
	if err != nil {
		return err
	}
	assistantTurns := 0
	for _, m := range messages {
		if m.Role == llm.RoleAssistant {
			assistantTurns++
		}
	}
	if assistantTurns != 1 && (assistantTurns == 0 || assistantTurns%10 != 0) {
		return nil
	}

	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			if c := strings.TrimSpace(m.Content); c != "" {
				lines = append(lines, "User: "+c)
			}
		case llm.RoleAssistant:
			if c := VisibleText(m.Content); c != "" {
				lines = append(lines, "Assistant: "+c)
			}
		}
	}
	transcript := strings.TrimSpace(strings.Join(lines, "\n"))
	if transcript == "" {
		return nil
	}
	if len(transcript) > 8000 {
		transcript = transcript[len(transcript)-8000:]
	}

	completion, err := s.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "Generate a short conversation title for a sidebar list. Return one plain line, 4-10 words, no markdown, no quotes."},
		{Role: llm.RoleUser, Content: "Conversation transcript:\n" + transcript},
	}, 64)
	if err != nil {
		s.metrics.ModelCallErrors.WithLabelValues("title").Inc()
		return err
	}
	s.metrics.ModelCalls.WithLabelValues("title").Inc()

	title := VisibleText(completion.Content)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.Trim(strings.TrimSpace(title), " \"'`")
	if title == "" {
		return nil
	}
	if len(title) > 96 {
		title = strings.TrimRight(title[:96], " ")
	}
	if err := s.store.UpdateConversationTitle(ctx, conversationID, title); err != nil {
		return err
	}
	s.metrics.TitleRefreshTotal.Inc()
	return nil
}

var (
	thinkBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>`)
	thinkTagRe   = regexp.MustCompile(`(?i)</?think>`)
)

// VisibleText strips reasoning-model think blocks and stray think tags from
// model output.
func VisibleText(text string) string {
	out := thinkBlockRe.ReplaceAllString(text, "")
	out = thinkTagRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

// allocateEstimatedTokens splits a reported prompt token count across the
// system, user, and assistant portions proportionally to their character
// share. The assistant share takes the rounding remainder so the three
// always sum to the total.
func allocateEstimatedTokens(total *int, systemChars, userChars, assistantChars int) (*int, *int, *int) {
	if total == nil {
		return nil, nil, nil
	}
	totalChars := systemChars + userChars + assistantChars
	if totalChars <= 0 {
		zero := 0
		a, b, c := zero, zero, zero
		return &a, &b, &c
	}
	sys := int(math.Round(float64(*total) * float64(systemChars) / float64(totalChars)))
	user := int(math.Round(float64(*total) * float64(userChars) / float64(totalChars)))
	asst := *total - sys - user
	return &sys, &user, &asst
}

func preview(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > previewLimit {
		return trimmed[:previewLimit]
	}
	return trimmed
}
