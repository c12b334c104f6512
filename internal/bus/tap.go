package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/voxprep/voxprep-core/internal/protocol"
	"github.com/voxprep/voxprep-core/internal/telemetry"
)

type stateMessage struct {
	SessionID      string    `json:"session_id"`
	Phase          string    `json:"phase"`
	QuestionNumber int       `json:"question_number"`
	MaxQuestions   int       `json:"max_questions"`
	Degraded       bool      `json:"degraded"`
	Timestamp      time.Time `json:"timestamp"`
}

type transcriptMessage struct {
	SessionID string                   `json:"session_id"`
	Entry     protocol.TranscriptEntry `json:"entry"`
}

// Tap mirrors session activity onto the bus so external dashboards can watch
// a live interview without touching the session itself. All publishes are
// fire-and-forget; a broken tap never fails the session.
type Tap struct {
	client    *Client
	log       *slog.Logger
	snapshot  func() telemetry.Metrics
	heartbeat *time.Ticker
	cancel    context.CancelFunc
}

// NewTap starts the heartbeat loop. snapshot is polled on every tick.
func NewTap(ctx context.Context, client *Client, interval time.Duration, snapshot func() telemetry.Metrics, log *slog.Logger) *Tap {
	ctx, cancel := context.WithCancel(ctx)
	t := &Tap{
		client:   client,
		log:      log.With(slog.String("component", "bus-tap")),
		snapshot: snapshot,
		cancel:   cancel,
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t.heartbeat = time.NewTicker(interval)
	go t.runHeartbeat(ctx)
	return t
}

func (t *Tap) Close() {
	if t == nil {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	if t.heartbeat != nil {
		t.heartbeat.Stop()
	}
}

func (t *Tap) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.heartbeat.C:
			t.publishHeartbeat()
		}
	}
}

func (t *Tap) publishHeartbeat() {
	if t.snapshot == nil {
		return
	}
	t.publish(protocol.SubjectHeartbeat, t.snapshot())
}

// PublishState announces a phase or question-count change.
func (t *Tap) PublishState(sessionID, phase string, questionNumber, maxQuestions int, degraded bool) {
	t.publish(protocol.SubjectSessionState, stateMessage{
		SessionID:      sessionID,
		Phase:          phase,
		QuestionNumber: questionNumber,
		MaxQuestions:   maxQuestions,
		Degraded:       degraded,
		Timestamp:      time.Now().UTC(),
	})
}

// PublishTranscript mirrors a final transcript entry.
func (t *Tap) PublishTranscript(sessionID string, entry protocol.TranscriptEntry) {
	t.publish(protocol.SubjectTranscriptFinal, transcriptMessage{SessionID: sessionID, Entry: entry})
}

func (t *Tap) publish(subject string, v any) {
	if t == nil || t.client == nil || !t.client.Healthy() {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		t.log.Warn("failed to encode tap message", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := t.client.Conn().Publish(subject, payload); err != nil {
		t.log.Warn("failed to publish tap message", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
