package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	store, err := Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func intPtr(n int) *int          { return &n }
func strPtr(s string) *string    { return &s }
func boolPtr(b bool) *bool       { return &b }
func floatPtr(f float64) *float64 { return &f }

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, _, err := store.CreateConversation(ctx, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	exists, err := store.ConversationExists(ctx, id)
	if err != nil || !exists {
		t.Fatalf("exists = %v, err = %v", exists, err)
	}

	if _, err := store.AddMessage(ctx, id, "user", "hello there"); err != nil {
		t.Fatalf("add user message: %v", err)
	}
	if err := store.MaybeSetTitleFromMessage(ctx, id, "hello there"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	if _, err := store.AddMessage(ctx, id, "assistant", "hi"); err != nil {
		t.Fatalf("add assistant message: %v", err)
	}

	title, _, messages, err := store.ConversationDetail(ctx, id)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if title != "hello there" {
		t.Fatalf("title = %q, want %q", title, "hello there")
	}
	if len(messages) != 2 || messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Fatalf("messages out of order: %+v", messages)
	}

	list, err := store.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(list))
	}
	if list[0].MessageCount != 2 || list[0].LastMessage != "hi" {
		t.Fatalf("summary = %+v", list[0])
	}

	if err := store.DeleteConversation(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, _, err := store.ConversationDetail(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("detail after delete = %v, want ErrNotFound", err)
	}
	if err := store.DeleteConversation(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete = %v, want ErrNotFound", err)
	}
}

func TestMaybeSetTitleTruncatesAndSkipsLater(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, _, err := store.CreateConversation(ctx, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	long := strings.Repeat("word ", 20)
	if _, err := store.AddMessage(ctx, id, "user", long); err != nil {
		t.Fatalf("add message: %v", err)
	}
	if err := store.MaybeSetTitleFromMessage(ctx, id, long); err != nil {
		t.Fatalf("set title: %v", err)
	}
	title, _, _, err := store.ConversationDetail(ctx, id)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if len(title) != 48 {
		t.Fatalf("title length = %d, want 48", len(title))
	}

	if _, err := store.AddMessage(ctx, id, "assistant", "reply"); err != nil {
		t.Fatalf("add message: %v", err)
	}
	if err := store.MaybeSetTitleFromMessage(ctx, id, "second message"); err != nil {
		t.Fatalf("set title again: %v", err)
	}
	after, _, _, err := store.ConversationDetail(ctx, id)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if after != title {
		t.Fatalf("title changed after second message: %q", after)
	}
}

func TestUpdateConversationTitle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, _, err := store.CreateConversation(ctx, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if err := store.UpdateConversationTitle(ctx, id, "   "); err != nil {
		t.Fatalf("blank title update: %v", err)
	}
	title, _, _, _ := store.ConversationDetail(ctx, id)
	if title != "New Conversation" {
		t.Fatalf("blank update changed title to %q", title)
	}

	if err := store.UpdateConversationTitle(ctx, id, strings.Repeat("t", 200)); err != nil {
		t.Fatalf("update title: %v", err)
	}
	title, _, _, _ = store.ConversationDetail(ctx, id)
	if len(title) != 96 {
		t.Fatalf("title length = %d, want 96", len(title))
	}
}

func TestPerformanceExchangesAndSummary(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	id, _, err := store.CreateConversation(ctx, "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	for i := 0; i < 3; i++ {
		err := store.AddPerformanceExchange(ctx, PerformanceExchange{
			ConversationID:   id,
			UserPreview:      "u",
			AssistantPreview: "a",
			TotalLatencyMS:   int64(100 * (i + 1)),
			LLMLatencyMS:     int64(90 * (i + 1)),
			PromptTokens:     intPtr(10 * (i + 1)),
			CompletionTokens: intPtr(5),
			TotalTokens:      intPtr(10*(i+1) + 5),
			SystemChars:      40,
			UserChars:        20,
			AssistantChars:   10,
		})
		if err != nil {
			t.Fatalf("add exchange %d: %v", i, err)
		}
	}
	// One exchange without backend token counts.
	if err := store.AddPerformanceExchange(ctx, PerformanceExchange{
		ConversationID: id, UserPreview: "u", AssistantPreview: "a",
		TotalLatencyMS: 50, LLMLatencyMS: 40,
		SystemChars: 4, UserChars: 4, AssistantChars: 4,
	}); err != nil {
		t.Fatalf("add tokenless exchange: %v", err)
	}

	recent, err := store.RecentPerformanceExchanges(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 exchanges, got %d", len(recent))
	}
	if recent[0].PromptTokens != nil {
		t.Fatalf("newest exchange should have nil prompt tokens, got %v", *recent[0].PromptTokens)
	}

	summary, err := store.SummarizePerformance(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.ExchangeCount != 4 {
		t.Fatalf("exchange count = %d, want 4", summary.ExchangeCount)
	}
	if summary.LatencyMinMS != 50 || summary.LatencyMaxMS != 300 {
		t.Fatalf("latency min/max = %d/%d", summary.LatencyMinMS, summary.LatencyMaxMS)
	}
	// 15 + 25 + 35 total tokens; the tokenless row contributes nothing.
	if summary.TokensAllTime.TotalTokens != 75 {
		t.Fatalf("all time tokens = %d, want 75", summary.TokensAllTime.TotalTokens)
	}
	if summary.TokensDay.ExchangeCount != 4 {
		t.Fatalf("day window count = %d, want 4", summary.TokensDay.ExchangeCount)
	}
}

func TestPromptProfileActivation(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	const tenant = "default"

	def, err := store.EnsureDefaultPromptProfile(ctx, tenant)
	if err != nil {
		t.Fatalf("ensure default: %v", err)
	}
	if !def.IsDefault || !def.IsActive {
		t.Fatalf("default profile flags: %+v", def)
	}
	// Idempotent.
	again, err := store.EnsureDefaultPromptProfile(ctx, tenant)
	if err != nil || again.ID != def.ID {
		t.Fatalf("ensure default twice: %+v, %v", again, err)
	}

	custom, err := store.CreatePromptProfile(ctx, tenant, "  Research  ")
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if custom.Name != "Research" || custom.IsActive || custom.IsDefault {
		t.Fatalf("new profile flags: %+v", custom)
	}

	if err := store.ActivatePromptProfile(ctx, tenant, custom.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	active, err := store.ActivePromptProfile(ctx, tenant)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID != custom.ID {
		t.Fatalf("active = %s, want %s", active.ID, custom.ID)
	}

	profiles, err := store.ListPromptProfiles(ctx, tenant)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	activeCount := 0
	for _, p := range profiles {
		if p.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("active profiles = %d, want exactly 1", activeCount)
	}
	if profiles[0].ID != custom.ID {
		t.Fatalf("active profile should sort first, got %s", profiles[0].ID)
	}

	if err := store.ActivatePromptProfile(ctx, tenant, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("activate missing = %v, want ErrNotFound", err)
	}
	// Failed activation leaves the previous active profile in place.
	active, _ = store.ActivePromptProfile(ctx, tenant)
	if active.ID != custom.ID {
		t.Fatalf("active changed after failed activation: %s", active.ID)
	}

	if err := store.ActivatePromptProfile(ctx, "other-tenant", custom.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross tenant activation = %v, want ErrNotFound", err)
	}
}

func TestPromptOverridesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	profile, err := store.EnsureDefaultPromptProfile(ctx, "default")
	if err != nil {
		t.Fatalf("ensure default: %v", err)
	}

	if err := store.UpsertPromptOverride(ctx, profile.ID, "identity", strPtr("custom"), nil); err != nil {
		t.Fatalf("upsert content: %v", err)
	}
	if err := store.UpsertPromptOverride(ctx, profile.ID, "identity", nil, boolPtr(false)); err != nil {
		t.Fatalf("upsert enabled: %v", err)
	}

	overrides, err := store.PromptOverrides(ctx, profile.ID)
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	o, ok := overrides["identity"]
	if !ok {
		t.Fatal("identity override missing")
	}
	// The enabled-only patch must not clear the earlier content patch.
	if o.Content == nil || *o.Content != "custom" {
		t.Fatalf("content = %v, want custom", o.Content)
	}
	if o.Enabled == nil || *o.Enabled {
		t.Fatalf("enabled = %v, want false", o.Enabled)
	}

	if err := store.ResetPromptProfile(ctx, profile.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	overrides, err = store.PromptOverrides(ctx, profile.ID)
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if len(overrides) != 0 {
		t.Fatalf("expected no overrides after reset, got %d", len(overrides))
	}
}

func TestContextSettings(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	const tenant = "default"

	created, err := store.EnsureContextSettings(ctx, tenant, 4096, 512, 0.9)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if created.MaxContextTokens != 4096 || created.MaxResponseTokens != 512 {
		t.Fatalf("created = %+v", created)
	}
	if created.CompactInstructions != DefaultCompactInstructions {
		t.Fatalf("instructions not seeded: %q", created.CompactInstructions)
	}

	updated, err := store.UpdateContextSettings(ctx, tenant, nil, intPtr(1024), floatPtr(0.8), strPtr("keep the goal"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.MaxResponseTokens != 1024 || updated.CompactTriggerPct != 0.8 || updated.CompactInstructions != "keep the goal" {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.MaxContextTokens != 4096 {
		t.Fatalf("nil window changed value: %d", updated.MaxContextTokens)
	}

	// Blanking the instructions restores the default text.
	blanked, err := store.UpdateContextSettings(ctx, tenant, nil, nil, nil, strPtr("   "))
	if err != nil {
		t.Fatalf("blank update: %v", err)
	}
	if blanked.CompactInstructions != DefaultCompactInstructions {
		t.Fatalf("blank instructions not restored: %q", blanked.CompactInstructions)
	}
	if blanked.MaxResponseTokens != 1024 {
		t.Fatalf("unrelated field changed: %d", blanked.MaxResponseTokens)
	}
}

func TestExportAndDeleteAll(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	const tenant = "default"

	id, _, err := store.CreateConversation(ctx, "exported")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if _, err := store.AddMessage(ctx, id, "user", "hello"); err != nil {
		t.Fatalf("add message: %v", err)
	}
	profile, err := store.EnsureDefaultPromptProfile(ctx, tenant)
	if err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if err := store.UpsertPromptOverride(ctx, profile.ID, "style", strPtr("short"), nil); err != nil {
		t.Fatalf("upsert override: %v", err)
	}
	if _, err := store.EnsureContextSettings(ctx, tenant, 4096, 512, 0.9); err != nil {
		t.Fatalf("ensure settings: %v", err)
	}

	snapshot, err := store.Export(ctx, tenant)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(snapshot.Conversations) != 1 || len(snapshot.Messages) != 1 {
		t.Fatalf("snapshot sizes: %d conversations, %d messages", len(snapshot.Conversations), len(snapshot.Messages))
	}
	if len(snapshot.PromptProfiles) != 1 || len(snapshot.PromptOverrides) != 1 {
		t.Fatalf("snapshot profiles/overrides: %d/%d", len(snapshot.PromptProfiles), len(snapshot.PromptOverrides))
	}
	if snapshot.ContextSettings == nil {
		t.Fatal("snapshot missing context settings")
	}

	if err := store.DeleteAllData(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	snapshot, err = store.Export(ctx, tenant)
	if err != nil {
		t.Fatalf("export after wipe: %v", err)
	}
	if len(snapshot.Conversations) != 0 || len(snapshot.Messages) != 0 || len(snapshot.PromptProfiles) != 0 {
		t.Fatalf("data survived wipe: %+v", snapshot)
	}
	if snapshot.ContextSettings != nil {
		t.Fatal("context settings survived wipe")
	}
}
