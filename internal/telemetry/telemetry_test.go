package telemetry

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSnapshotAverages(t *testing.T) {
	a := newTestAggregator()
	a.BeginSession("sess-1", false)

	a.RecordTranscript(true, 0.9)
	a.RecordTranscript(true, 0.7)
	a.RecordTranscript(false, 0)
	a.RecordQuestion(false)
	a.RecordQuestion(true)
	a.RecordError("stream")

	snap := a.Snapshot()
	if snap.SessionID != "sess-1" {
		t.Fatalf("session id = %q", snap.SessionID)
	}
	if snap.FinalTranscripts != 2 || snap.PartialTranscripts != 1 {
		t.Fatalf("transcript counts = %d/%d", snap.FinalTranscripts, snap.PartialTranscripts)
	}
	if got := snap.AverageConfidence; got < 0.79 || got > 0.81 {
		t.Fatalf("average confidence = %f, want 0.8", got)
	}
	if snap.QuestionsAsked != 2 || snap.FallbackQuestions != 1 {
		t.Fatalf("question counts = %d/%d", snap.QuestionsAsked, snap.FallbackQuestions)
	}
	if snap.Errors != 1 {
		t.Fatalf("errors = %d", snap.Errors)
	}
}

func TestTurnLatency(t *testing.T) {
	a := newTestAggregator()
	a.BeginSession("sess-2", false)

	a.RecordAudioTurn()
	time.Sleep(5 * time.Millisecond)
	a.RecordTurnComplete()

	snap := a.Snapshot()
	if snap.AudioTurns != 1 {
		t.Fatalf("audio turns = %d", snap.AudioTurns)
	}
	if snap.LastTurnLatency < 5*time.Millisecond {
		t.Fatalf("latency = %v, want >= 5ms", snap.LastTurnLatency)
	}
	if snap.AverageTurnLatency == 0 {
		t.Fatal("average latency not recorded")
	}

	// Complete without a pending turn is a no-op.
	a.RecordTurnComplete()
	if got := a.Snapshot(); got.AverageTurnLatency != snap.AverageTurnLatency {
		t.Fatal("latency should be unchanged without a pending turn")
	}
}

func TestBeginSessionResets(t *testing.T) {
	a := newTestAggregator()
	a.BeginSession("first", false)
	a.RecordQuestion(false)
	a.RecordError("audio")

	a.BeginSession("second", true)
	snap := a.Snapshot()
	if snap.SessionID != "second" || !snap.Degraded {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.QuestionsAsked != 0 || snap.Errors != 0 {
		t.Fatal("counters should reset on BeginSession")
	}
}

func TestEndSessionStampsDuration(t *testing.T) {
	a := newTestAggregator()
	a.BeginSession("sess-3", false)
	time.Sleep(2 * time.Millisecond)
	final := a.EndSession()
	if final.EndedAt.IsZero() {
		t.Fatal("EndedAt not set")
	}
	if final.SessionDuration <= 0 {
		t.Fatalf("duration = %v", final.SessionDuration)
	}
}
