package interview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/voxprep/voxprep-core/internal/config"
)

type stubSource struct {
	turns int
	fail  bool
}

func (s *stubSource) NextTurn(ctx context.Context, system string, history []HistoryEntry) (string, error) {
	if s.fail {
		return "", errors.New("backend unavailable")
	}
	s.turns++
	return fmt.Sprintf("Generated question %d?", s.turns), nil
}

func testEngine(t *testing.T, source QuestionSource) *Engine {
	t.Helper()
	cfg := config.Default().Interview
	cfg.Type = "technical"
	cfg.Position = "Backend Engineer"
	return NewEngine(cfg, source, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func runIntake(t *testing.T, e *Engine, countAnswer string) Reply {
	t.Helper()
	answers := []string{"Senior Engineer", "React, Node", "5", "System design", countAnswer}
	var reply Reply
	for i, answer := range answers {
		var err error
		reply, err = e.Answer(context.Background(), answer)
		if err != nil {
			t.Fatalf("intake answer %d: %v", i, err)
		}
	}
	return reply
}

func TestAnswerBeforeStart(t *testing.T) {
	e := testEngine(t, &stubSource{})
	if _, err := e.Answer(context.Background(), "hello"); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestStartAsksFirstIntakeQuestion(t *testing.T) {
	e := testEngine(t, &stubSource{})
	reply := e.Start()
	if reply.Phase != PhaseIntake {
		t.Fatalf("phase = %q, want %q", reply.Phase, PhaseIntake)
	}
	if !strings.Contains(reply.Text, intakeQuestions[0].Prompt) {
		t.Fatalf("greeting reply missing first intake question: %q", reply.Text)
	}
}

func TestIntakeSequenceAndTransition(t *testing.T) {
	e := testEngine(t, &stubSource{})
	e.Start()

	reply := runIntake(t, e, "10")
	if reply.Phase != PhaseMain {
		t.Fatalf("phase after intake = %q, want %q", reply.Phase, PhaseMain)
	}
	if !reply.Transition {
		t.Fatal("expected transition reply")
	}
	if !strings.Contains(reply.Text, "begin the interview") {
		t.Fatalf("transition text missing marker: %q", reply.Text)
	}
	if reply.QuestionNumber != 1 {
		t.Fatalf("question number = %d, want 1", reply.QuestionNumber)
	}

	ivCtx := e.Context()
	if !ivCtx.ProfileCollected {
		t.Fatal("profile not marked collected")
	}
	if ivCtx.MaxQuestions != 10 {
		t.Fatalf("max questions = %d, want 10", ivCtx.MaxQuestions)
	}

	profile := e.Profile()
	if profile["role"] != "Senior Engineer" || profile["tech_stack"] != "React, Node" {
		t.Fatalf("profile answers not stored: %v", profile)
	}

	history := e.History()
	if len(history) == 0 || history[0].Role != RoleSystem || history[0].Content == "" {
		t.Fatalf("first history entry should be non-empty system context, got %+v", history)
	}
}

func TestQuestionCountClamping(t *testing.T) {
	cases := []struct {
		answer string
		want   int
	}{
		{"10", 10},
		{"3", 5},
		{"50", 20},
		{"a bunch", 10},
		{"", 10},
		{"maybe 15 or so", 15},
	}
	for _, tc := range cases {
		t.Run(tc.answer, func(t *testing.T) {
			e := testEngine(t, &stubSource{})
			e.Start()
			reply := runIntake(t, e, tc.answer)
			if reply.MaxQuestions != tc.want {
				t.Fatalf("max questions for %q = %d, want %d", tc.answer, reply.MaxQuestions, tc.want)
			}
		})
	}
}

func TestFullInterviewCompletes(t *testing.T) {
	e := testEngine(t, &stubSource{})
	e.Start()
	runIntake(t, e, "10")

	var reply Reply
	for i := 0; i < 10; i++ {
		var err error
		reply, err = e.Answer(context.Background(), fmt.Sprintf("answer %d", i+1))
		if err != nil {
			t.Fatalf("main answer %d: %v", i+1, err)
		}
		if ivCtx := e.Context(); ivCtx.CurrentQuestionCount > ivCtx.MaxQuestions {
			t.Fatalf("question count %d exceeded max %d", ivCtx.CurrentQuestionCount, ivCtx.MaxQuestions)
		}
		if i < 9 && reply.IsComplete {
			t.Fatalf("completed early at answer %d", i+1)
		}
	}
	if !reply.IsComplete {
		t.Fatal("tenth answer should complete the interview")
	}
	if reply.Phase != PhaseComplete {
		t.Fatalf("phase = %q, want %q", reply.Phase, PhaseComplete)
	}
	if reply.Text != closingMessage {
		t.Fatalf("final reply = %q, want closing message", reply.Text)
	}

	// Further answers stay terminal.
	again, err := e.Answer(context.Background(), "anything else?")
	if err != nil {
		t.Fatalf("post-complete answer: %v", err)
	}
	if !again.IsComplete || again.Phase != PhaseComplete {
		t.Fatalf("post-complete reply = %+v", again)
	}
}

func TestGenerationFailureUsesFallback(t *testing.T) {
	e := testEngine(t, &stubSource{fail: true})
	e.Start()

	reply := runIntake(t, e, "5")
	if !reply.Outcome.Fallback {
		t.Fatal("expected fallback outcome for first question")
	}
	if reply.Text == "" || !strings.Contains(reply.Text, reply.Outcome.Text) {
		t.Fatalf("transition should carry fallback question, got %q", reply.Text)
	}

	next, err := e.Answer(context.Background(), "my answer")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !next.Outcome.Fallback {
		t.Fatal("expected fallback outcome in main phase")
	}
	if next.QuestionNumber != 2 {
		t.Fatalf("fallback turn should still count, question number = %d", next.QuestionNumber)
	}
}

func TestStartResetsState(t *testing.T) {
	e := testEngine(t, &stubSource{})
	e.Start()
	runIntake(t, e, "5")
	if _, err := e.Answer(context.Background(), "some answer"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	e.Start()
	if got := e.Phase(); got != PhaseIntake {
		t.Fatalf("phase after restart = %q, want %q", got, PhaseIntake)
	}
	if len(e.History()) != 0 {
		t.Fatal("history should be empty after restart")
	}
	if ivCtx := e.Context(); ivCtx.CurrentQuestionCount != 0 || ivCtx.ProfileCollected {
		t.Fatalf("context not reset: %+v", ivCtx)
	}
}

func TestFallbackQuestionSelection(t *testing.T) {
	if got := fallbackQuestion("technical", 1); got != fallbackQuestions["technical"][0] {
		t.Fatalf("turn 1 = %q", got)
	}
	if got := fallbackQuestion("technical", 6); got != fallbackQuestions["technical"][0] {
		t.Fatalf("selection should wrap, got %q", got)
	}
	if got := fallbackQuestion("unknown-type", 1); got != defaultFallbacks[0] {
		t.Fatalf("unknown type should use defaults, got %q", got)
	}
}
