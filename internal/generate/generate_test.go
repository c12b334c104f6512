package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxprep/voxprep-core/internal/config"
)

func TestMockGeneratorIsDeterministicallyNumbered(t *testing.T) {
	gen := NewMockGenerator()
	first, err := gen.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "I built a queue in Go"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(first, "Follow-up 1") {
		t.Fatalf("first response = %q", first)
	}
	second, _ := gen.Generate(context.Background(), Request{})
	if !strings.Contains(second, "Follow-up 2") {
		t.Fatalf("second response = %q", second)
	}
}

func TestHTTPGeneratorStreamsChunks(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotPrompt = req.Prompt
		for _, chunk := range []streamResponse{
			{Response: "What is "},
			{Response: "a goroutine?", Done: true},
		} {
			line, _ := json.Marshal(chunk)
			w.Write(append(line, '\n'))
		}
	}))
	defer server.Close()

	gen := NewHTTPGenerator(config.GenerateConfig{
		Endpoint: server.URL, Model: "test-model", TimeoutMS: 2000,
	})
	out, err := gen.Generate(context.Background(), Request{
		System:   "you are an interviewer",
		Messages: []Message{{Role: "user", Content: "my answer"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "What is a goroutine?" {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(gotPrompt, "user: my answer") || !strings.HasSuffix(gotPrompt, "assistant: ") {
		t.Fatalf("prompt = %q", gotPrompt)
	}
}

func TestHTTPGeneratorRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gen := NewHTTPGenerator(config.GenerateConfig{Endpoint: server.URL})
	if _, err := gen.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for 503")
	}
}

func TestFromConfig(t *testing.T) {
	if _, err := FromConfig(config.GenerateConfig{Mode: "mock"}); err != nil {
		t.Fatalf("mock mode: %v", err)
	}
	if _, err := FromConfig(config.GenerateConfig{Mode: "http", Endpoint: "http://localhost"}); err != nil {
		t.Fatalf("http mode: %v", err)
	}
	if _, err := FromConfig(config.GenerateConfig{Mode: "nope"}); err == nil {
		t.Fatal("unknown mode should fail")
	}
}
