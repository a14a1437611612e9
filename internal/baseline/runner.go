// Package baseline measures raw model throughput with a fixed synthetic
// workload: 34 calls across simple Q/A, summarization, a 20-turn
// conversation, structured extraction, and system prompt pressure. Payload
// sizes are expressed in estimated tokens so runs are comparable across
// models and hosts.
package baseline

import (
	"context"
	"strconv"
	"strings"
	"time"

	"aigentd/internal/llm"
	"aigentd/internal/storage"
	"aigentd/internal/tokens"
)

// TotalCalls is the fixed call count of one full run:
// 3 Q/A + 4 summarization + 20 multi-turn + 1 extraction + 6 pressure.
const TotalCalls = 34

type PromptSource interface {
	SystemPrompt(ctx context.Context) (string, error)
}

type SettingsSource interface {
	ContextSettings(ctx context.Context) (storage.ContextSettings, error)
}

type CaseResult struct {
	ID                      string  `json:"id"`
	Label                   string  `json:"label"`
	Calls                   int     `json:"calls"`
	InputTokensEst          int     `json:"input_tokens_est"`
	PromptTokens            int     `json:"prompt_tokens"`
	CompletionTokens        int     `json:"completion_tokens"`
	TotalTokens             int     `json:"total_tokens"`
	TotalLatencyMS          int64   `json:"total_latency_ms"`
	AvgLatencyMS            float64 `json:"avg_latency_ms"`
	MinLatencyMS            *int64  `json:"min_latency_ms"`
	MaxLatencyMS            *int64  `json:"max_latency_ms"`
	PerTurnLatencyMS        []int64 `json:"per_turn_latency_ms,omitempty"`
	PerTurnPromptTokens     []int   `json:"per_turn_prompt_tokens,omitempty"`
	PerTurnCompletionTokens []int   `json:"per_turn_completion_tokens,omitempty"`
}

type CategoryResult struct {
	ID    string       `json:"id"`
	Label string       `json:"label"`
	Cases []CaseResult `json:"cases"`
}

type RunResult struct {
	Model       string           `json:"model"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	DurationMS  int64            `json:"duration_ms"`
	TotalCalls  int              `json:"total_calls"`
	Categories  []CategoryResult `json:"categories"`
}

// progressFunc reports a step label; inc is 1 when a call just finished,
// 0 when it is about to start.
type progressFunc func(step string, inc int)

type Runner struct {
	client    llm.Client
	estimator tokens.Estimator
	prompts   PromptSource
	settings  SettingsSource
	model     string
}

func NewRunner(client llm.Client, prompts PromptSource, settings SettingsSource, model string) *Runner {
	return &Runner{
		client:    client,
		estimator: tokens.CharEstimator{},
		prompts:   prompts,
		settings:  settings,
		model:     model,
	}
}

type singleTurnCase struct {
	id          string
	label       string
	instruction string
	inputTokens int
}

// Execute runs the full workload sequentially. The first model error aborts
// the run; partial results are discarded.
func (r *Runner) Execute(ctx context.Context, enforceMaxResponseTokens bool, progress progressFunc) (RunResult, error) {
	startedAt := time.Now().UTC()
	started := time.Now()

	effectivePrompt, err := r.prompts.SystemPrompt(ctx)
	if err != nil {
		return RunResult{}, err
	}
	maxTokens := 0
	if enforceMaxResponseTokens {
		settings, err := r.settings.ContextSettings(ctx)
		if err != nil {
			return RunResult{}, err
		}
		maxTokens = settings.MaxResponseTokens
	}

	qaCases := []singleTurnCase{
		{"qa_100", "Simple Q/A (100 user tokens)", "Answer directly in 6-10 concise sentences.", 100},
		{"qa_250", "Simple Q/A (250 user tokens)", "Answer directly in 6-10 concise sentences.", 250},
		{"qa_500", "Simple Q/A (500 user tokens)", "Answer directly in 6-10 concise sentences.", 500},
	}
	sumCases := []singleTurnCase{
		{"sum_200", "Summarization (200 user tokens)", "Summarize the content in 5 bullet points.", 200},
		{"sum_500", "Summarization (500 user tokens)", "Summarize the content in 5 bullet points.", 500},
		{"sum_1000", "Summarization (1000 user tokens)", "Summarize the content in 8 bullet points.", 1000},
		{"sum_2000", "Summarization (2000 user tokens)", "Summarize the content in 10 bullet points.", 2000},
	}
	extractionCases := []singleTurnCase{
		{"extract_400", "Structured Extraction (400 user tokens)", "Extract entities into JSON with keys: people, organizations, dates, locations, and actions.", 400},
	}

	categories := []CategoryResult{
		{ID: "simple_qa", Label: "Simple Q/A"},
		{ID: "summarization", Label: "Summarization Tasks"},
		{ID: "multi_turn", Label: "20-Turn Conversation"},
		{ID: "structured_extraction", Label: "Structured Extraction (Extra)"},
		{ID: "system_prompt_pressure", Label: "System Prompt Pressure"},
	}

	for _, c := range qaCases {
		result, err := r.runSingleTurn(ctx, effectivePrompt, c, maxTokens, progress)
		if err != nil {
			return RunResult{}, err
		}
		categories[0].Cases = append(categories[0].Cases, result)
	}
	for _, c := range sumCases {
		result, err := r.runSingleTurn(ctx, effectivePrompt, c, maxTokens, progress)
		if err != nil {
			return RunResult{}, err
		}
		categories[1].Cases = append(categories[1].Cases, result)
	}

	turnTargets := make([]int, 20)
	for i := range turnTargets {
		turnTargets[i] = 50 + ((i * 17) % 151)
	}
	multiTurn, err := r.runMultiTurn(ctx, effectivePrompt,
		"mt_20x_50_200", "20-turn conversation (50-200 user tokens/turn)",
		"Maintain consistency across turns and preserve key decisions while answering each turn concisely.",
		turnTargets, maxTokens, progress)
	if err != nil {
		return RunResult{}, err
	}
	categories[2].Cases = append(categories[2].Cases, multiTurn)

	for _, c := range extractionCases {
		result, err := r.runSingleTurn(ctx, effectivePrompt, c, maxTokens, progress)
		if err != nil {
			return RunResult{}, err
		}
		categories[3].Cases = append(categories[3].Cases, result)
	}

	pressureTargets := []int{200, 500, 1000, 2000, 5000, 10000}
	for idx, target := range pressureTargets {
		userTokens := 100 + ((idx * 37) % 201)
		result, err := r.runPressure(ctx, effectivePrompt, target, userTokens, maxTokens, progress)
		if err != nil {
			return RunResult{}, err
		}
		categories[4].Cases = append(categories[4].Cases, result)
	}

	completedAt := time.Now().UTC()
	totalCalls := 0
	for _, category := range categories {
		for _, c := range category.Cases {
			totalCalls += c.Calls
		}
	}
	return RunResult{
		Model:       r.model,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		DurationMS:  time.Since(started).Milliseconds(),
		TotalCalls:  totalCalls,
		Categories:  categories,
	}, nil
}

func (r *Runner) runSingleTurn(ctx context.Context, effectivePrompt string, c singleTurnCase, maxTokens int, progress progressFunc) (CaseResult, error) {
	if progress != nil {
		progress(c.label, 0)
	}
	userPayload := r.buildUserPayload(c.inputTokens, c.label+" input")
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: effectivePrompt},
		{Role: llm.RoleSystem, Content: c.instruction},
		{Role: llm.RoleUser, Content: userPayload},
	}
	started := time.Now()
	completion, err := r.client.Chat(ctx, messages, maxTokens)
	if err != nil {
		return CaseResult{}, err
	}
	latencyMS := time.Since(started).Milliseconds()
	promptTokens, completionTokens, totalTokens := r.resolveTokenCounts(completion, messages)
	if progress != nil {
		progress(c.label, 1)
	}
	return CaseResult{
		ID:               c.id,
		Label:            c.label,
		Calls:            1,
		InputTokensEst:   r.estimator.EstimateText(userPayload),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
		TotalLatencyMS:   latencyMS,
		AvgLatencyMS:     float64(latencyMS),
		MinLatencyMS:     &latencyMS,
		MaxLatencyMS:     &latencyMS,
	}, nil
}

func (r *Runner) runPressure(ctx context.Context, effectivePrompt string, systemTokens, userTokens, maxTokens int, progress progressFunc) (CaseResult, error) {
	c := singleTurnCase{
		id:    "sys_" + itoa(systemTokens),
		label: "System Prompt Pressure (" + itoa(systemTokens) + " system tokens)",
	}
	if progress != nil {
		progress(c.label, 0)
	}
	systemPressure := r.buildSystemPayload(systemTokens, c.label+" system context")
	userPayload := r.buildUserPayload(userTokens, c.label+" user input")
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: effectivePrompt},
		{Role: llm.RoleSystem, Content: systemPressure},
		{Role: llm.RoleUser, Content: userPayload},
	}
	started := time.Now()
	completion, err := r.client.Chat(ctx, messages, maxTokens)
	if err != nil {
		return CaseResult{}, err
	}
	latencyMS := time.Since(started).Milliseconds()
	promptTokens, completionTokens, totalTokens := r.resolveTokenCounts(completion, messages)
	if progress != nil {
		progress(c.label, 1)
	}
	return CaseResult{
		ID:               c.id,
		Label:            c.label,
		Calls:            1,
		InputTokensEst:   r.estimator.EstimateText(userPayload),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
		TotalLatencyMS:   latencyMS,
		AvgLatencyMS:     float64(latencyMS),
		MinLatencyMS:     &latencyMS,
		MaxLatencyMS:     &latencyMS,
	}, nil
}

func (r *Runner) runMultiTurn(ctx context.Context, effectivePrompt, caseID, label, instruction string, turnTargets []int, maxTokens int, progress progressFunc) (CaseResult, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: effectivePrompt},
		{Role: llm.RoleSystem, Content: instruction},
	}

	result := CaseResult{
		ID:    caseID,
		Label: label,
		Calls: len(turnTargets),
	}
	for idx, target := range turnTargets {
		step := label + " (turn " + itoa(idx+1) + "/" + itoa(len(turnTargets)) + ")"
		if progress != nil {
			progress(step, 0)
		}
		userPayload := r.buildUserPayload(target, label+" turn "+itoa(idx+1))
		result.InputTokensEst += r.estimator.EstimateText(userPayload)
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userPayload})

		started := time.Now()
		completion, err := r.client.Chat(ctx, messages, maxTokens)
		if err != nil {
			return CaseResult{}, err
		}
		latencyMS := time.Since(started).Milliseconds()
		promptTokens, completionTokens, totalTokens := r.resolveTokenCounts(completion, messages)

		result.TotalLatencyMS += latencyMS
		result.PerTurnLatencyMS = append(result.PerTurnLatencyMS, latencyMS)
		result.PerTurnPromptTokens = append(result.PerTurnPromptTokens, promptTokens)
		result.PerTurnCompletionTokens = append(result.PerTurnCompletionTokens, completionTokens)
		result.PromptTokens += promptTokens
		result.CompletionTokens += completionTokens
		result.TotalTokens += totalTokens

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: completion.Content})
		if progress != nil {
			progress(step, 1)
		}
	}

	if result.Calls > 0 {
		result.AvgLatencyMS = float64(result.TotalLatencyMS) / float64(result.Calls)
	}
	for i, latency := range result.PerTurnLatencyMS {
		l := latency
		if i == 0 {
			result.MinLatencyMS = &l
			result.MaxLatencyMS = &l
			continue
		}
		if l < *result.MinLatencyMS {
			result.MinLatencyMS = &l
		}
		if l > *result.MaxLatencyMS {
			result.MaxLatencyMS = &l
		}
	}
	return result, nil
}

// resolveTokenCounts prefers backend-reported counts and falls back to the
// character estimator so every case carries comparable numbers.
func (r *Runner) resolveTokenCounts(completion llm.Completion, messages []llm.Message) (promptTokens, completionTokens, totalTokens int) {
	if completion.PromptTokens != nil {
		promptTokens = *completion.PromptTokens
	} else {
		promptTokens = r.estimator.EstimateMessages(messages)
	}
	if completion.CompletionTokens != nil {
		completionTokens = *completion.CompletionTokens
	} else {
		completionTokens = r.estimator.EstimateText(completion.Content)
	}
	if completion.TotalTokens != nil {
		totalTokens = *completion.TotalTokens
	} else {
		totalTokens = promptTokens + completionTokens
	}
	return promptTokens, completionTokens, totalTokens
}

// buildUserPayload repeats a deterministic fragment until the estimator
// meets the target, so payload size scales with the requested token count
// rather than any real corpus.
func (r *Runner) buildUserPayload(targetTokens int, seed string) string {
	fragment := seed + ". Keep this coherent, factual, and concise. " +
		"Include clear constraints, concrete details, and specific wording. "
	var b strings.Builder
	for r.estimator.EstimateText(b.String()) < targetTokens {
		b.WriteString(fragment)
	}
	return b.String()
}

func (r *Runner) buildSystemPayload(targetTokens int, seed string) string {
	fragment := seed + ". Preserve instruction fidelity, avoid hallucination, and remain concise. " +
		"Use explicit constraints and deterministic formatting cues. "
	var b strings.Builder
	for r.estimator.EstimateText(b.String()) < targetTokens {
		b.WriteString(fragment)
	}
	return b.String()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
