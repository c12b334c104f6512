package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voxprep/voxprep-core/internal/config"
)

type httpGenerator struct {
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	client      *http.Client
}

// NewHTTPGenerator talks to an ollama-compatible /api/generate endpoint.
func NewHTTPGenerator(cfg config.GenerateConfig) Generator {
	return &httpGenerator{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     time.Duration(cfg.TimeoutMS) * time.Millisecond,
		client:      http.DefaultClient,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type streamResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (g *httpGenerator) Generate(ctx context.Context, req Request) (string, error) {
	payload := generateRequest{
		Model:  g.model,
		Prompt: renderPrompt(req.Messages),
		System: req.System,
		Stream: true,
		Options: generateOptions{
			Temperature: coalesceFloat(req.Temperature, g.temperature),
			NumPredict:  coalesceInt(req.MaxTokens, g.maxTokens),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	reqCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, g.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("generate backend returned status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	var accumulated strings.Builder
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk streamResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("decode generate chunk: %w", err)
		}
		accumulated.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(accumulated.String()), nil
}

func renderPrompt(messages []Message) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("assistant: ")
	return b.String()
}

func coalesceInt(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func coalesceFloat(value, fallback float64) float64 {
	if value > 0 {
		return value
	}
	return fallback
}
