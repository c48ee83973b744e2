package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"reflexruntime/internal/config"
)

func completionResponse(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newOpenAITestClient(url string) *OpenAIClient {
	return NewOpenAIClient(config.LLMConfig{
		Provider: "openai",
		APIKey:   "test-key",
		Model:    "gpt-4",
		BaseURL:  url,
		Timeout:  "10s",
	})
}

func TestOpenAIClient_Complete(t *testing.T) {
	var gotAuth string
	var gotBody openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(completionResponse("  the patch  ")))
	}))
	defer srv.Close()

	client := newOpenAITestClient(srv.URL)
	out, err := client.CompleteWithSystem(context.Background(), "you fix code", "divide broke")
	if err != nil {
		t.Fatalf("CompleteWithSystem: %v", err)
	}
	if out != "the patch" {
		t.Errorf("response = %q, want trimmed content", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, want system then user", gotBody.Messages)
	}
}

func TestOpenAIClient_RetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(completionResponse("ok")))
	}))
	defer srv.Close()

	out, err := newOpenAITestClient(srv.URL).Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "ok" {
		t.Errorf("response = %q", out)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("calls = %d, want retry after 429", calls)
	}
}

func TestOpenAIClient_ServerErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newOpenAITestClient(srv.URL).Complete(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, 500 must not be retried", calls)
	}
}

func TestOpenAIClient_MissingAPIKey(t *testing.T) {
	client := NewOpenAIClient(config.LLMConfig{BaseURL: "http://localhost:0"})
	if _, err := client.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestNewClient_Factory(t *testing.T) {
	if _, err := NewClient(config.LLMConfig{Provider: "openai"}); err != nil {
		t.Errorf("openai provider should construct: %v", err)
	}
	if _, err := NewClient(config.LLMConfig{Provider: ""}); err != nil {
		t.Errorf("empty provider should default to openai: %v", err)
	}
	if _, err := NewClient(config.LLMConfig{Provider: "carrier-pigeon"}); err == nil {
		t.Error("unknown provider should fail")
	}
}
