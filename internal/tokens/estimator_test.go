package tokens

import (
	"strings"
	"testing"

	"aigentd/internal/llm"
)

func TestEstimateText(t *testing.T) {
	e := CharEstimator{}

	cases := []struct {
		text string
		want int
	}{
		{"", 1},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
		{strings.Repeat("x", 401), 101},
	}
	for _, c := range cases {
		if got := e.EstimateText(c.text); got != c.want {
			t.Fatalf("EstimateText(%d chars) = %d, want %d", len(c.text), got, c.want)
		}
	}
}

func TestEstimateTextMonotonic(t *testing.T) {
	e := CharEstimator{}
	prev := 0
	for n := 0; n <= 64; n++ {
		got := e.EstimateText(strings.Repeat("x", n))
		if got < prev {
			t.Fatalf("estimate decreased at %d chars: %d < %d", n, got, prev)
		}
		prev = got
	}
}

func TestEstimateMessagesSumsBeforeRounding(t *testing.T) {
	e := CharEstimator{}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "ab"},
		{Role: llm.RoleUser, Content: "cd"},
	}
	// 4 chars total is one token; per-message rounding would give two.
	if got := e.EstimateMessages(messages); got != 1 {
		t.Fatalf("EstimateMessages = %d, want 1", got)
	}

	if got := e.EstimateMessages(nil); got != 1 {
		t.Fatalf("EstimateMessages(nil) = %d, want 1", got)
	}
}
