package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "voxprep.session"

// Metrics is a point-in-time snapshot of one interview session's counters.
type Metrics struct {
	SessionID           string        `json:"session_id"`
	StartedAt           time.Time     `json:"started_at"`
	EndedAt             time.Time     `json:"ended_at,omitempty"`
	Degraded            bool          `json:"degraded"`
	ConnectionAttempts  int           `json:"connection_attempts"`
	Reconnects          int           `json:"reconnects"`
	PartialTranscripts  int           `json:"partial_transcripts"`
	FinalTranscripts    int           `json:"final_transcripts"`
	QuestionsAsked      int           `json:"questions_asked"`
	FallbackQuestions   int           `json:"fallback_questions"`
	AudioTurns          int           `json:"audio_turns"`
	Playbacks           int           `json:"playbacks"`
	Errors              int           `json:"errors"`
	AverageConfidence   float64       `json:"average_confidence"`
	AverageTurnLatency  time.Duration `json:"average_turn_latency"`
	LastTurnLatency     time.Duration `json:"last_turn_latency"`
	SessionDuration     time.Duration `json:"session_duration"`
	confidenceSum       float64
	confidenceCount     int
	turnLatencySum      time.Duration
	turnLatencyCount    int
}

// Aggregator accumulates per-session counters and mirrors them onto otel
// instruments. One aggregator per live session; the bridge owns its lifecycle.
type Aggregator struct {
	log *slog.Logger

	mu        sync.Mutex
	metrics   Metrics
	turnStart time.Time

	questionCounter   metric.Int64Counter
	transcriptCounter metric.Int64Counter
	errorCounter      metric.Int64Counter
	reconnectCounter  metric.Int64Counter
	confidenceHist    metric.Float64Histogram
	latencyHist       metric.Float64Histogram
}

func NewAggregator(log *slog.Logger) *Aggregator {
	meter := otel.Meter(meterName)
	a := &Aggregator{log: log.With(slog.String("component", "telemetry"))}

	var err error
	if a.questionCounter, err = meter.Int64Counter("voxprep.questions.asked"); err != nil {
		a.log.Warn("failed to create question counter", slog.String("error", err.Error()))
	}
	if a.transcriptCounter, err = meter.Int64Counter("voxprep.transcripts.received"); err != nil {
		a.log.Warn("failed to create transcript counter", slog.String("error", err.Error()))
	}
	if a.errorCounter, err = meter.Int64Counter("voxprep.session.errors"); err != nil {
		a.log.Warn("failed to create error counter", slog.String("error", err.Error()))
	}
	if a.reconnectCounter, err = meter.Int64Counter("voxprep.stream.reconnects"); err != nil {
		a.log.Warn("failed to create reconnect counter", slog.String("error", err.Error()))
	}
	if a.confidenceHist, err = meter.Float64Histogram("voxprep.transcript.confidence"); err != nil {
		a.log.Warn("failed to create confidence histogram", slog.String("error", err.Error()))
	}
	if a.latencyHist, err = meter.Float64Histogram("voxprep.turn.latency.seconds"); err != nil {
		a.log.Warn("failed to create latency histogram", slog.String("error", err.Error()))
	}
	return a
}

// BeginSession resets all counters for a new session.
func (a *Aggregator) BeginSession(sessionID string, degraded bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = Metrics{
		SessionID: sessionID,
		StartedAt: time.Now(),
		Degraded:  degraded,
	}
	a.turnStart = time.Time{}
}

// EndSession stamps the session end and returns the final snapshot.
func (a *Aggregator) EndSession() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.EndedAt = time.Now()
	return a.snapshotLocked()
}

func (a *Aggregator) RecordConnectionAttempt() {
	a.mu.Lock()
	a.metrics.ConnectionAttempts++
	a.mu.Unlock()
}

func (a *Aggregator) RecordReconnect() {
	a.mu.Lock()
	a.metrics.Reconnects++
	a.mu.Unlock()
	a.add(a.reconnectCounter, 1)
}

// RecordTranscript observes a transcript entry. Confidence only contributes
// to the rolling average on final transcripts with a reported value.
func (a *Aggregator) RecordTranscript(final bool, confidence float64) {
	a.mu.Lock()
	if final {
		a.metrics.FinalTranscripts++
		if confidence > 0 {
			a.metrics.confidenceSum += confidence
			a.metrics.confidenceCount++
		}
	} else {
		a.metrics.PartialTranscripts++
	}
	a.mu.Unlock()

	a.add(a.transcriptCounter, 1, attribute.Bool("final", final))
	if final && confidence > 0 && a.confidenceHist != nil {
		a.confidenceHist.Record(bgCtx(), confidence)
	}
}

// RecordQuestion counts one assistant question; fallback marks locally
// substituted content.
func (a *Aggregator) RecordQuestion(fallback bool) {
	a.mu.Lock()
	a.metrics.QuestionsAsked++
	if fallback {
		a.metrics.FallbackQuestions++
	}
	a.mu.Unlock()
	a.add(a.questionCounter, 1, attribute.Bool("fallback", fallback))
}

func (a *Aggregator) RecordAudioTurn() {
	a.mu.Lock()
	a.metrics.AudioTurns++
	a.turnStart = time.Now()
	a.mu.Unlock()
}

func (a *Aggregator) RecordPlayback() {
	a.mu.Lock()
	a.metrics.Playbacks++
	a.mu.Unlock()
}

// RecordTurnComplete measures candidate-turn latency from the moment a
// recording finished to the assistant response being ready.
func (a *Aggregator) RecordTurnComplete() {
	a.mu.Lock()
	if a.turnStart.IsZero() {
		a.mu.Unlock()
		return
	}
	latency := time.Since(a.turnStart)
	a.turnStart = time.Time{}
	a.metrics.LastTurnLatency = latency
	a.metrics.turnLatencySum += latency
	a.metrics.turnLatencyCount++
	a.mu.Unlock()

	if a.latencyHist != nil {
		a.latencyHist.Record(bgCtx(), latency.Seconds())
	}
}

func (a *Aggregator) RecordError(kind string) {
	a.mu.Lock()
	a.metrics.Errors++
	a.mu.Unlock()
	a.add(a.errorCounter, 1, attribute.String("kind", kind))
}

// Snapshot returns the current counters without ending the session.
func (a *Aggregator) Snapshot() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Metrics {
	snap := a.metrics
	if snap.confidenceCount > 0 {
		snap.AverageConfidence = snap.confidenceSum / float64(snap.confidenceCount)
	}
	if snap.turnLatencyCount > 0 {
		snap.AverageTurnLatency = snap.turnLatencySum / time.Duration(snap.turnLatencyCount)
	}
	end := snap.EndedAt
	if end.IsZero() {
		end = time.Now()
	}
	if !snap.StartedAt.IsZero() {
		snap.SessionDuration = end.Sub(snap.StartedAt)
	}
	return snap
}

func (a *Aggregator) add(counter metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(bgCtx(), n, metric.WithAttributes(attrs...))
}

// Instrument callbacks outlive any request scope.
func bgCtx() context.Context { return context.Background() }
