package generate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

type mockGenerator struct {
	calls atomic.Int64
}

// NewMockGenerator returns a deterministic backend for tests and the local
// terminal session.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	n := m.calls.Add(1)
	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	return fmt.Sprintf("Thanks for that answer. Follow-up %d: can you go deeper on %q?", n, truncate(last, 60)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
