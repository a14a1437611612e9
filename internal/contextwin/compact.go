// Package contextwin bounds the message list sent to the model for one chat
// turn. Compaction is advisory and mechanical: it inserts summarization
// guidance for the model to reason about, then evicts oldest history until
// the estimated size fits the configured window. It never fails a request.
package contextwin

import (
	"strings"

	"aigentd/internal/llm"
	"aigentd/internal/tokens"
)

type Settings struct {
	MaxContextTokens    int
	CompactTriggerPct   float64
	CompactInstructions string
}

type Report struct {
	// InstructionsInserted is true when the compaction guidance message was
	// added at position 1.
	InstructionsInserted bool
	ThresholdTokens      int
	EstimatedBefore      int
	EstimatedAfter       int
	DroppedMessages      int
}

// Applied reports whether compaction changed the outgoing message list at all.
func (r Report) Applied() bool {
	return r.InstructionsInserted || r.DroppedMessages > 0
}

type Compactor struct {
	estimator tokens.Estimator
}

func New(estimator tokens.Estimator) *Compactor {
	return &Compactor{estimator: estimator}
}

// Assemble builds the ordered message list for one model call: the composed
// system prompt, optionally the compaction instructions, then as much history
// as the token budget allows. History must already be filtered to
// user/assistant roles in chronological order.
//
// The instructions message, once inserted, counts toward the eviction budget
// like any other message; the trigger threshold itself is evaluated against
// the pre-insertion estimate.
func (c *Compactor) Assemble(systemPrompt string, history []llm.Message, settings Settings) ([]llm.Message, Report) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)

	report := Report{
		EstimatedBefore: c.estimator.EstimateMessages(messages),
		ThresholdTokens: int(float64(settings.MaxContextTokens) * settings.CompactTriggerPct),
	}

	instructions := strings.TrimSpace(settings.CompactInstructions)
	if instructions != "" && report.EstimatedBefore >= report.ThresholdTokens {
		messages = append(messages, llm.Message{})
		copy(messages[2:], messages[1:])
		messages[1] = llm.Message{Role: llm.RoleSystem, Content: instructions}
		report.InstructionsInserted = true
	}

	// Oldest-first eviction past the two leading slots. Unconditional: an
	// assistant message is dropped exactly like a user message once it is
	// the oldest non-leading entry.
	for len(messages) > 2 && c.estimator.EstimateMessages(messages) > settings.MaxContextTokens {
		messages = append(messages[:2], messages[3:]...)
		report.DroppedMessages++
	}

	report.EstimatedAfter = c.estimator.EstimateMessages(messages)
	return messages, report
}
