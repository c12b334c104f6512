package generate

import (
	"context"
	"fmt"

	"github.com/voxprep/voxprep-core/internal/config"
)

// Message is one conversation turn handed to a text backend.
type Message struct {
	Role    string
	Content string
}

// Request describes a completion request built from the interview history.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Generator is a pluggable text backend used when the live stream cannot
// produce the next assistant turn (degraded sessions, local tooling).
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// FromConfig builds the configured backend.
func FromConfig(cfg config.GenerateConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(), nil
	case "http":
		return NewHTTPGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown generate mode %q", cfg.Mode)
	}
}
