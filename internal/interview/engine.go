package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voxprep/voxprep-core/internal/config"
)

// ErrNotStarted is returned when an answer arrives before Start.
var ErrNotStarted = errors.New("interview: not started")

// Engine is the interview's authoritative state machine. All mutation runs
// through Start and Answer; the orchestrator serializes calls on its event
// loop, the mutex only protects snapshot readers.
type Engine struct {
	cfg    config.InterviewConfig
	source QuestionSource
	log    *slog.Logger

	mu          sync.Mutex
	phase       Phase
	intakeIndex int
	profile     map[string]string
	ivCtx       Context
	history     []HistoryEntry
}

func NewEngine(cfg config.InterviewConfig, source QuestionSource, log *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		source: source,
		log:    log.With(slog.String("component", "interview-engine")),
		phase:  PhaseIdle,
	}
}

// Start resets all candidate-facing state and enters the first intake step.
// The reply carries the greeting plus intake question 0.
func (e *Engine) Start() Reply {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.phase = PhaseIntake
	e.intakeIndex = 0
	e.profile = make(map[string]string)
	e.history = nil
	e.ivCtx = Context{
		Type:         e.cfg.Type,
		Position:     e.cfg.Position,
		Company:      e.cfg.Company,
		Difficulty:   e.cfg.Difficulty,
		MaxQuestions: e.cfg.DefaultMaxQuestions,
	}

	return Reply{
		Text:         greeting + " " + intakeQuestions[0].Prompt,
		Phase:        PhaseIntake,
		MaxQuestions: e.ivCtx.MaxQuestions,
	}
}

// Answer dispatches one candidate answer into the state machine and returns
// the next assistant turn. Generation failures never propagate: the reply's
// Outcome records whether fallback content was substituted.
func (e *Engine) Answer(ctx context.Context, text string) (Reply, error) {
	e.mu.Lock()
	phase := e.phase
	e.mu.Unlock()

	switch phase {
	case PhaseIdle:
		return Reply{}, ErrNotStarted
	case PhaseIntake:
		return e.answerIntake(ctx, text), nil
	case PhaseMain:
		return e.answerMain(ctx, text), nil
	case PhaseComplete:
		e.mu.Lock()
		defer e.mu.Unlock()
		return Reply{
			Text:           closingMessage,
			Phase:          PhaseComplete,
			QuestionNumber: e.ivCtx.CurrentQuestionCount,
			MaxQuestions:   e.ivCtx.MaxQuestions,
			IsComplete:     true,
		}, nil
	default:
		return Reply{}, fmt.Errorf("interview: unknown phase %q", phase)
	}
}

func (e *Engine) answerIntake(ctx context.Context, text string) Reply {
	e.mu.Lock()
	key := intakeQuestions[e.intakeIndex].Key
	e.profile[key] = strings.TrimSpace(text)
	e.intakeIndex++

	if e.intakeIndex < len(intakeQuestions) {
		prompt := intakeQuestions[e.intakeIndex].Prompt
		reply := Reply{
			Text:         prompt,
			Phase:        PhaseIntake,
			MaxQuestions: e.ivCtx.MaxQuestions,
		}
		e.mu.Unlock()
		return reply
	}

	// Intake complete: the profile is immutable from here on.
	e.ivCtx.ProfileCollected = true
	e.ivCtx.MaxQuestions = clampQuestionCount(e.profile["question_count"],
		e.cfg.DefaultMaxQuestions, e.cfg.MinQuestions, e.cfg.MaxQuestions)
	system := e.systemContext()
	e.history = append(e.history, HistoryEntry{Role: RoleSystem, Content: system})
	history := e.historyCopy()
	interviewType := e.ivCtx.Type
	e.mu.Unlock()

	outcome := e.generate(ctx, system, history, interviewType, 1)

	e.mu.Lock()
	e.history = append(e.history, HistoryEntry{Role: RoleAssistant, Content: outcome.Text})
	e.ivCtx.CurrentQuestionCount = 1
	e.phase = PhaseMain
	reply := Reply{
		Text:           "Great, that completes your profile. Let's begin the interview. " + outcome.Text,
		Phase:          PhaseMain,
		QuestionNumber: 1,
		MaxQuestions:   e.ivCtx.MaxQuestions,
		Transition:     true,
		Outcome:        outcome,
	}
	e.mu.Unlock()

	e.log.Info("profile intake complete",
		slog.Int("max_questions", reply.MaxQuestions),
		slog.Bool("fallback_first_question", outcome.Fallback))
	return reply
}

func (e *Engine) answerMain(ctx context.Context, text string) Reply {
	e.mu.Lock()
	e.history = append(e.history, HistoryEntry{Role: RoleUser, Content: strings.TrimSpace(text)})

	// The final turn completes on its answer; no further question is asked.
	if e.ivCtx.CurrentQuestionCount >= e.ivCtx.MaxQuestions {
		e.phase = PhaseComplete
		e.history = append(e.history, HistoryEntry{Role: RoleAssistant, Content: closingMessage})
		reply := Reply{
			Text:           closingMessage,
			Phase:          PhaseComplete,
			QuestionNumber: e.ivCtx.CurrentQuestionCount,
			MaxQuestions:   e.ivCtx.MaxQuestions,
			IsComplete:     true,
		}
		e.mu.Unlock()
		e.log.Info("interview complete", slog.Int("questions", reply.QuestionNumber))
		return reply
	}

	system := e.systemContextLocked()
	history := e.historyCopy()
	interviewType := e.ivCtx.Type
	nextTurn := e.ivCtx.CurrentQuestionCount + 1
	e.mu.Unlock()

	outcome := e.generate(ctx, system, history, interviewType, nextTurn)

	e.mu.Lock()
	e.history = append(e.history, HistoryEntry{Role: RoleAssistant, Content: outcome.Text})
	e.ivCtx.CurrentQuestionCount = nextTurn
	reply := Reply{
		Text:           outcome.Text,
		Phase:          PhaseMain,
		QuestionNumber: nextTurn,
		MaxQuestions:   e.ivCtx.MaxQuestions,
		Outcome:        outcome,
	}
	e.mu.Unlock()
	return reply
}

// generate asks the question source for the next turn and substitutes the
// deterministic fallback on failure. The turn always counts either way.
func (e *Engine) generate(ctx context.Context, system string, history []HistoryEntry, interviewType string, turn int) Outcome {
	if e.source == nil {
		return Outcome{Text: fallbackQuestion(interviewType, turn), Fallback: true, FallbackReason: "no question source"}
	}
	text, err := e.source.NextTurn(ctx, system, history)
	if err != nil || strings.TrimSpace(text) == "" {
		reason := "empty response"
		if err != nil {
			reason = err.Error()
			e.log.Warn("question generation failed, using fallback",
				slog.Int("turn", turn), slog.String("error", err.Error()))
		}
		return Outcome{Text: fallbackQuestion(interviewType, turn), Fallback: true, FallbackReason: reason}
	}
	return Outcome{Text: strings.TrimSpace(text)}
}

func (e *Engine) systemContext() string {
	return e.systemContextLocked()
}

// systemContextLocked renders the interviewer persona from the collected
// profile. Callers hold e.mu.
func (e *Engine) systemContextLocked() string {
	var b strings.Builder
	b.WriteString("You are an experienced interviewer conducting a ")
	if e.ivCtx.Difficulty != "" {
		b.WriteString(e.ivCtx.Difficulty)
		b.WriteString("-level ")
	}
	b.WriteString(e.ivCtx.Type)
	b.WriteString(" mock interview")
	if e.ivCtx.Position != "" {
		b.WriteString(" for the position of ")
		b.WriteString(e.ivCtx.Position)
	}
	if e.ivCtx.Company != "" {
		b.WriteString(" at ")
		b.WriteString(e.ivCtx.Company)
	}
	b.WriteString(".\n")
	b.WriteString(fmt.Sprintf("Candidate role: %s.\n", orUnknown(e.profile["role"])))
	b.WriteString(fmt.Sprintf("Tech stack: %s.\n", orUnknown(e.profile["tech_stack"])))
	b.WriteString(fmt.Sprintf("Experience: %s.\n", orUnknown(e.profile["experience"])))
	b.WriteString(fmt.Sprintf("Focus areas: %s.\n", orUnknown(e.profile["skills"])))
	b.WriteString(fmt.Sprintf("Ask %d questions total, one at a time. ", e.ivCtx.MaxQuestions))
	b.WriteString("Ask a single focused question per turn and keep it conversational.")
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not specified"
	}
	return s
}

// SystemContext returns the interviewer persona, or "" while the profile is
// still being collected.
func (e *Engine) SystemContext() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ivCtx.ProfileCollected {
		return ""
	}
	return e.systemContextLocked()
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Context returns a snapshot of the interview bookkeeping.
func (e *Engine) Context() Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ivCtx
}

// Profile returns a copy of the collected intake answers.
func (e *Engine) Profile() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.profile))
	for k, v := range e.profile {
		out[k] = v
	}
	return out
}

// History returns a copy of the durable conversation history.
func (e *Engine) History() []HistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.historyCopy()
}

func (e *Engine) historyCopy() []HistoryEntry {
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

// clampQuestionCount parses the candidate's requested count and clamps it.
// Non-numeric or missing input takes the default.
func clampQuestionCount(input string, def, min, max int) int {
	count := def
	if digits := firstDigitRun(input); digits != "" {
		parsed := 0
		for _, r := range digits {
			parsed = parsed*10 + int(r-'0')
			if parsed > max {
				parsed = max + 1
				break
			}
		}
		count = parsed
	}
	if count < min {
		return min
	}
	if count > max {
		return max
	}
	return count
}

func firstDigitRun(s string) string {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}
