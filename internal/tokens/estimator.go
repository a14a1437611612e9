package tokens

import "aigentd/internal/llm"

// Estimator approximates token counts for budget decisions. Implementations
// must be pure and deterministic; nothing downstream treats the numbers as
// exact counts.
type Estimator interface {
	EstimateText(text string) int
	EstimateMessages(messages []llm.Message) int
}

// CharEstimator is the default heuristic: one token per four characters,
// rounded up, never below one. The floor keeps empty prompts from producing
// zero-token artifacts in ratio math downstream.
type CharEstimator struct{}

var _ Estimator = CharEstimator{}

func (CharEstimator) EstimateText(text string) int {
	return fromChars(len(text))
}

func (CharEstimator) EstimateMessages(messages []llm.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return fromChars(chars)
}

func fromChars(n int) int {
	est := (n + 3) / 4
	if est < 1 {
		return 1
	}
	return est
}
