package interview

import "context"

// Phase is the interview's authoritative state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseIntake   Phase = "profile-intake"
	PhaseMain     Phase = "main-interview"
	PhaseComplete Phase = "complete"
)

// Role tags a conversation history entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryEntry is one durable conversation turn. History is append-only for
// the lifetime of a session; the system entry is inserted exactly once, when
// profile intake completes.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Context is the interview bookkeeping visible to callers.
type Context struct {
	Type                 string
	Position             string
	Company              string
	Difficulty           string
	CurrentQuestionCount int
	MaxQuestions         int
	ProfileCollected     bool
}

// Outcome is the two-branch result of a generation call: either the remote
// service produced the next turn, or a deterministic fallback was
// substituted. The fallback path is a visible branch, never a hidden
// exception handler.
type Outcome struct {
	Text           string
	Fallback       bool
	FallbackReason string
}

// Reply is what the engine hands back for each dispatched answer.
type Reply struct {
	Text           string
	Phase          Phase
	QuestionNumber int
	MaxQuestions   int
	IsComplete     bool
	Transition     bool
	Outcome        Outcome
}

// QuestionSource produces the next assistant turn from the full history.
// The orchestrator implements it over the live stream; degraded sessions use
// a local text backend.
type QuestionSource interface {
	NextTurn(ctx context.Context, system string, history []HistoryEntry) (string, error)
}
