package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxprep/voxprep-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if err := es.AppendEntry(context.Background(), Entry{SessionID: "s", Kind: KindTranscript}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	entries, err := es.SessionTimeline(context.Background(), "s", 10)
	if err != nil || entries != nil {
		t.Fatalf("ephemeral timeline = %v, %v", entries, err)
	}
}

func TestAppendAndTimeline(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "sessions.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	sessionID := "session-123"
	if err := es.CreateSession(context.Background(), sessionID, "technical", "Backend Engineer", false); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := es.AppendEntry(context.Background(), Entry{
		SessionID: sessionID, Kind: KindTranscript, Speaker: "user", Payload: []byte("hello"),
	}); err != nil {
		t.Fatalf("append transcript: %v", err)
	}
	if err := es.AppendEntry(context.Background(), Entry{
		SessionID: sessionID, Kind: KindQuestion, Speaker: "assistant", Payload: []byte("first question"),
	}); err != nil {
		t.Fatalf("append question: %v", err)
	}

	entries, err := es.SessionTimeline(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != KindTranscript || string(entries[0].Payload) != "hello" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Kind != KindQuestion {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{
		Path:          filepath.Join(tmp, "sessions.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxSessions:   1,
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.CreateSession(context.Background(), "old-session", "technical", "", false); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := es.AppendEntry(context.Background(), Entry{SessionID: "old-session", Kind: KindStateChange}); err != nil {
		t.Fatalf("append entry: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.CreateSession(context.Background(), "new-session", "behavioral", "", true); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	entries, err := es.SessionTimeline(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(entries) != 0 {
		t.Fatal("expected old session pruned")
	}
}
