package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aigentd/internal/llm"
)

func TestBuildPayload(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:11434", Model: "llama3.2:3b"})
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
	}

	body, err := c.buildPayload(messages, 128)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["model"] != "llama3.2:3b" {
		t.Fatalf("model = %v", payload["model"])
	}
	if payload["stream"] != false {
		t.Fatalf("stream = %v, want false", payload["stream"])
	}
	options := payload["options"].(map[string]any)
	if options["temperature"] != 0.7 {
		t.Fatalf("temperature = %v", options["temperature"])
	}
	if options["num_predict"] != float64(128) {
		t.Fatalf("num_predict = %v", options["num_predict"])
	}
}

func TestBuildPayloadNoCap(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:11434", Model: "m"})
	body, err := c.buildPayload([]llm.Message{{Role: llm.RoleUser, Content: "hi"}}, 0)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	var payload struct {
		Options map[string]any `json:"options"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if _, ok := payload.Options["num_predict"]; ok {
		t.Fatal("num_predict set without a cap")
	}
}

func TestChatParsesCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"message":{"content":"  hello there  "},"prompt_eval_count":12,"eval_count":5}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Model: "m"})
	completion, err := c.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, 64)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if completion.Content != "hello there" {
		t.Fatalf("content = %q", completion.Content)
	}
	if completion.PromptTokens == nil || *completion.PromptTokens != 12 {
		t.Fatalf("prompt tokens = %v", completion.PromptTokens)
	}
	if completion.TotalTokens == nil || *completion.TotalTokens != 17 {
		t.Fatalf("total tokens = %v", completion.TotalTokens)
	}
	if completion.LatencyMS < 0 {
		t.Fatalf("latency = %d", completion.LatencyMS)
	}
}

func TestChatMissingCountsAreNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"ok"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "m"})
	completion, err := c.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, 0)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if completion.PromptTokens != nil || completion.CompletionTokens != nil || completion.TotalTokens != nil {
		t.Fatalf("expected nil token counts, got %+v", completion)
	}
}

func TestChatErrorMapping(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		c := New(Config{BaseURL: srv.URL, Model: "m"})
		_, err := c.Chat(context.Background(), nil, 0)
		if !errors.Is(err, llm.ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()
		c := New(Config{BaseURL: srv.URL, Model: "m"})
		_, err := c.Chat(context.Background(), nil, 0)
		if !errors.Is(err, llm.ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()
		c := New(Config{BaseURL: srv.URL, Model: "m"})
		_, err := c.Chat(context.Background(), nil, 0)
		if !errors.Is(err, llm.ErrBackendFormat) {
			t.Fatalf("expected ErrBackendFormat, got %v", err)
		}
	})

	t.Run("missing message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"prompt_eval_count":1}`))
		}))
		defer srv.Close()
		c := New(Config{BaseURL: srv.URL, Model: "m"})
		_, err := c.Chat(context.Background(), nil, 0)
		if !errors.Is(err, llm.ErrBackendFormat) {
			t.Fatalf("expected ErrBackendFormat, got %v", err)
		}
	})
}
