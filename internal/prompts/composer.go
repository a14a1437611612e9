package prompts

import (
	"sort"
	"strings"
)

// FallbackPrompt guarantees the model never receives an empty system prompt.
const FallbackPrompt = "You are a helpful local AI assistant."

// ApplyOverrides merges a profile's sparse overrides into the default
// components. Overrides only mutate existing components; unknown component
// ids in the override map are ignored.
func ApplyOverrides(defaults []Component, overrides map[string]Override) []Component {
	merged := make([]Component, 0, len(defaults))
	for _, c := range defaults {
		o, ok := overrides[c.ID]
		if !ok {
			merged = append(merged, c)
			continue
		}
		if o.Content != nil {
			c.Content = *o.Content
		}
		if o.Enabled != nil {
			c.Enabled = *o.Enabled
		}
		merged = append(merged, c)
	}
	return merged
}

// Compose joins enabled, non-empty components in Order with blank lines.
func Compose(components []Component) string {
	sorted := make([]Component, len(components))
	copy(sorted, components)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	parts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		content := strings.TrimSpace(c.Content)
		if !c.Enabled || content == "" {
			continue
		}
		parts = append(parts, content)
	}
	if len(parts) == 0 {
		return FallbackPrompt
	}
	return strings.Join(parts, "\n\n")
}
