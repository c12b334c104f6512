package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxprep/voxprep-core/internal/audio"
	"github.com/voxprep/voxprep-core/internal/bus"
	"github.com/voxprep/voxprep-core/internal/config"
	"github.com/voxprep/voxprep-core/internal/eventstore"
	"github.com/voxprep/voxprep-core/internal/feedback"
	"github.com/voxprep/voxprep-core/internal/generate"
	"github.com/voxprep/voxprep-core/internal/interview"
	"github.com/voxprep/voxprep-core/internal/protocol"
	"github.com/voxprep/voxprep-core/internal/telemetry"
	"github.com/voxprep/voxprep-core/internal/transport"
)

// Deps carries everything the bridge needs. All collaborators are injected;
// the bridge owns no process-global state.
type Deps struct {
	Provisioner Provisioner
	Pipeline    *audio.Pipeline
	Generator   generate.Generator
	Telemetry   *telemetry.Aggregator
	Store       *eventstore.Store
	Tap         *bus.Tap
	Feedback    *feedback.Client
	Logger      *slog.Logger
}

type turnResult struct {
	text string
	err  error
}

// Bridge orchestrates one voice interview session: it provisions the speech
// session, owns the stream client and audio pipeline, and drives the
// interview engine from a single event loop. When provisioning or the first
// connection fails it degrades to a local text-only session instead of
// failing the interview attempt.
type Bridge struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger

	engine *interview.Engine

	mu           sync.Mutex
	active       bool
	degraded     bool
	finished     bool
	submitted    bool
	sess         Session
	opening      string
	client       *transport.Client
	speaking     bool
	waiting      bool
	audioBuf     map[string][]byte
	waiter       chan turnResult
	instructions string
	loopCtx      context.Context
	loopCancel   context.CancelFunc
	wg           sync.WaitGroup
}

func NewBridge(cfg config.Config, deps Deps) *Bridge {
	b := &Bridge{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With(slog.String("component", "session-bridge")),
	}
	b.engine = interview.NewEngine(cfg.Interview, bridgeSource{b}, deps.Logger)
	return b
}

// bridgeSource routes question generation to the live stream when connected
// and to the local text backend otherwise.
type bridgeSource struct{ b *Bridge }

func (s bridgeSource) NextTurn(ctx context.Context, system string, history []interview.HistoryEntry) (string, error) {
	s.b.mu.Lock()
	degraded := s.b.degraded
	s.b.mu.Unlock()
	if degraded {
		return s.b.localTurn(ctx, system, history)
	}
	return s.b.remoteTurn(ctx, system, history)
}

// StartVoiceSession provisions and attaches a session. Calling it while a
// session is active is a no-op.
func (b *Bridge) StartVoiceSession(ctx context.Context) error {
	b.mu.Lock()
	if b.active {
		b.mu.Unlock()
		return nil
	}
	b.active = true
	b.degraded = false
	b.finished = false
	b.submitted = false
	b.instructions = ""
	b.audioBuf = make(map[string][]byte)
	b.mu.Unlock()

	sess, err := b.deps.Provisioner.Provision(ctx)
	if err != nil {
		b.log.Warn("provisioning failed, entering degraded session",
			slog.String("error", err.Error()))
		return b.startDegraded(ctx)
	}

	client, err := transport.New(b.cfg.Stream, sess.StreamURL, sess.Credential, b.deps.Logger)
	if err != nil {
		b.log.Warn("stream client setup failed, entering degraded session",
			slog.String("error", err.Error()))
		return b.startDegraded(ctx)
	}
	if err := client.Connect(ctx); err != nil {
		b.log.Warn("stream connection failed, entering degraded session",
			slog.String("error", err.Error()))
		return b.startDegraded(ctx)
	}

	b.mu.Lock()
	b.sess = sess
	b.client = client
	b.mu.Unlock()

	b.deps.Telemetry.BeginSession(sess.ID, false)
	b.deps.Telemetry.RecordConnectionAttempt()
	b.recordSessionStart(ctx, sess.ID, false)

	if err := b.configureStream(""); err != nil {
		b.log.Warn("session configuration failed", slog.String("error", err.Error()))
		b.deps.Telemetry.RecordError("configure")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.loopCtx = loopCtx
	b.loopCancel = cancel
	b.mu.Unlock()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.eventLoop(loopCtx, client)
	}()

	reply := b.engine.Start()
	b.mu.Lock()
	b.opening = reply.Text
	b.mu.Unlock()
	b.speak(reply.Text)
	b.publishState(reply)

	// Capture lives for the session, not for the caller's request context.
	// A device acquisition failure is fatal to starting: tear the
	// half-started session down so the caller can try again.
	if b.deps.Pipeline != nil {
		if err := b.deps.Pipeline.StartCapture(loopCtx); err != nil {
			b.deps.Telemetry.RecordError("audio")
			b.StopVoiceSession(ctx)
			return newError(ErrAudio, "start capture", err)
		}
	}

	b.log.Info("voice session started",
		slog.String("session_id", sess.ID),
		slog.String("stream_url", sess.StreamURL))
	return nil
}

// startDegraded runs the interview locally with the text generation backend.
// No stream, no speech; answers arrive through SubmitText.
func (b *Bridge) startDegraded(ctx context.Context) error {
	if b.deps.Generator == nil {
		b.mu.Lock()
		b.active = false
		b.mu.Unlock()
		return newError(ErrSession, "start degraded session", errors.New("no local generation backend"))
	}

	sessionID := "local-" + uuid.NewString()
	b.mu.Lock()
	b.degraded = true
	b.sess = Session{ID: sessionID, CreatedAt: time.Now().UTC()}
	b.mu.Unlock()

	b.deps.Telemetry.BeginSession(sessionID, true)
	b.recordSessionStart(ctx, sessionID, true)

	reply := b.engine.Start()
	b.mu.Lock()
	b.opening = reply.Text
	b.mu.Unlock()
	b.publishState(reply)
	b.log.Info("degraded session started", slog.String("session_id", sessionID))
	return nil
}

// StopVoiceSession tears the session down. Idempotent; the final metrics
// snapshot is flushed to the event store before state resets.
func (b *Bridge) StopVoiceSession(ctx context.Context) {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return
	}
	b.active = false
	client := b.client
	b.client = nil
	cancel := b.loopCancel
	b.loopCancel = nil
	b.loopCtx = nil
	sessionID := b.sess.ID
	finished := b.finished
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.failWaiter(errors.New("session stopped"))
	if b.deps.Pipeline != nil {
		b.deps.Pipeline.StopCapture()
	}
	if client != nil {
		client.Close(1000, "session complete")
	}
	b.wg.Wait()

	metrics := b.deps.Telemetry.EndSession()
	b.recordMetrics(ctx, sessionID, metrics)
	if b.deps.Store != nil {
		_ = b.deps.Store.AppendEntry(ctx, eventstore.Entry{
			SessionID: sessionID, Kind: eventstore.KindSessionEnded,
		})
		if err := b.deps.Store.Prune(ctx); err != nil {
			b.log.Warn("event store prune failed", slog.String("error", err.Error()))
		}
	}
	if finished {
		b.submitFeedback(ctx, sessionID, metrics)
	}

	b.log.Info("voice session stopped",
		slog.String("session_id", sessionID),
		slog.Bool("interview_finished", finished))
}

// RetryConnection builds a fresh stream client after the automatic retry
// budget is spent. The interview state is untouched.
func (b *Bridge) RetryConnection(ctx context.Context) error {
	b.mu.Lock()
	if !b.active || b.degraded {
		b.mu.Unlock()
		return newError(ErrConnection, "retry connection", errors.New("no live session"))
	}
	sess := b.sess
	old := b.client
	cancel := b.loopCancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if old != nil {
		old.Close(1000, "reconnecting")
	}
	b.wg.Wait()

	// Brief pause so a flapping endpoint is not hammered by manual retries.
	if delay := time.Duration(b.cfg.Stream.BaseRetryDelayMS) * time.Millisecond; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	client, err := transport.New(b.cfg.Stream, sess.StreamURL, sess.Credential, b.deps.Logger)
	if err != nil {
		return newError(ErrConnection, "rebuild stream client", err)
	}
	b.deps.Telemetry.RecordConnectionAttempt()
	if err := client.Connect(ctx); err != nil {
		b.deps.Telemetry.RecordError("connection")
		return newError(ErrConnection, "reconnect stream", err)
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.client = client
	b.loopCtx = loopCtx
	b.loopCancel = loopCancel
	b.mu.Unlock()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.eventLoop(loopCtx, client)
	}()

	// Re-send the session settings, including the interviewer persona when
	// intake already completed on the old connection.
	system := b.engine.SystemContext()
	if err := b.configureStream(system); err != nil {
		b.log.Warn("session reconfiguration failed", slog.String("error", err.Error()))
	} else {
		b.mu.Lock()
		b.instructions = system
		b.mu.Unlock()
	}

	// The old capture run died with the previous loop context.
	b.mu.Lock()
	finished := b.finished
	b.mu.Unlock()
	if b.deps.Pipeline != nil && !finished {
		if err := b.deps.Pipeline.StartCapture(loopCtx); err != nil {
			b.deps.Telemetry.RecordError("audio")
			b.log.Warn("failed to resume capture after reconnect", slog.String("error", err.Error()))
		}
	}

	b.log.Info("stream connection re-established", slog.String("session_id", sess.ID))
	return nil
}

// SubmitText dispatches one typed candidate answer. This is the only input
// path for degraded sessions and a debugging path for live ones.
func (b *Bridge) SubmitText(ctx context.Context, text string) (interview.Reply, error) {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return interview.Reply{}, newError(ErrSession, "submit answer", errors.New("no active session"))
	}
	sessionID := b.sess.ID
	b.waiting = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.waiting = false
		b.mu.Unlock()
	}()

	b.recordTranscript(ctx, sessionID, protocol.TranscriptEntry{
		ID: uuid.NewString(), Timestamp: time.Now().UTC(),
		Speaker: protocol.SpeakerUser, Text: text,
	})

	reply, err := b.engine.Answer(ctx, text)
	if err != nil {
		return interview.Reply{}, newError(ErrSession, "dispatch answer", err)
	}
	b.afterReply(ctx, sessionID, reply)
	return reply, nil
}

// StartRecording begins a capture run for the next candidate answer. The run
// is scoped to the session, never to the caller's request.
func (b *Bridge) StartRecording() error {
	if b.deps.Pipeline == nil {
		return newError(ErrAudio, "start recording", errors.New("no audio pipeline"))
	}
	b.mu.Lock()
	active := b.active
	ctx := b.loopCtx
	b.mu.Unlock()
	if !active {
		return newError(ErrSession, "start recording", errors.New("no active session"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.deps.Pipeline.StartCapture(ctx); err != nil {
		b.deps.Telemetry.RecordError("audio")
		return newError(ErrAudio, "start recording", err)
	}
	return nil
}

// StopRecording ends the capture run early. The buffered audio still flows
// through the normal turn path.
func (b *Bridge) StopRecording() {
	if b.deps.Pipeline != nil {
		b.deps.Pipeline.StopCapture()
	}
}

func (b *Bridge) eventLoop(ctx context.Context, client *transport.Client) {
	var pipelineEvents <-chan audio.Event
	if b.deps.Pipeline != nil {
		pipelineEvents = b.deps.Pipeline.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			b.handleStreamMessage(ctx, msg)
		case status := <-client.Statuses():
			b.handleStatus(status)
		case evt, ok := <-pipelineEvents:
			if !ok {
				pipelineEvents = nil
				continue
			}
			b.handleAudioEvent(ctx, evt)
		}
	}
}

func (b *Bridge) handleStreamMessage(ctx context.Context, msg transport.Message) {
	event, err := protocol.Decode(msg.Data)
	if err != nil {
		b.log.Warn("undecodable stream message", slog.String("error", err.Error()))
		return
	}

	b.mu.Lock()
	sessionID := b.sess.ID
	b.mu.Unlock()

	switch e := event.(type) {
	case protocol.SessionCreated:
		b.log.Info("remote session created",
			slog.String("remote_id", e.RemoteID),
			slog.String("voice", e.Voice))
	case protocol.TranscriptReceived:
		if e.Entry.IsPartial {
			b.deps.Telemetry.RecordTranscript(false, 0)
			return
		}
		b.recordTranscript(ctx, sessionID, e.Entry)
		if e.Entry.Speaker == protocol.SpeakerUser {
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.dispatchAnswer(ctx, sessionID, e.Entry.Text)
			}()
		}
	case protocol.AudioDelta:
		b.mu.Lock()
		b.audioBuf[e.ItemID] = append(b.audioBuf[e.ItemID], e.PCM...)
		b.mu.Unlock()
	case protocol.TextDelta:
		// Incremental text is display-only; the durable entry arrives on done.
	case protocol.ResponseDone:
		b.handleResponseDone(e)
	case protocol.RemoteError:
		b.deps.Telemetry.RecordError("remote")
		b.log.Warn("remote error",
			slog.String("code", e.Code),
			slog.String("message", e.Message))
		b.failWaiter(fmt.Errorf("remote error %s: %s", e.Code, e.Message))
	case protocol.Unknown:
		b.log.Debug("ignoring unknown stream message", slog.String("type", e.Type))
	}
}

func (b *Bridge) handleResponseDone(e protocol.ResponseDone) {
	b.deps.Telemetry.RecordTurnComplete()

	b.mu.Lock()
	pcm := b.audioBuf[e.ItemID]
	delete(b.audioBuf, e.ItemID)
	waiter := b.waiter
	b.waiter = nil
	b.mu.Unlock()

	if waiter != nil {
		waiter <- turnResult{text: e.Text}
	}
	if len(pcm) > 0 && b.deps.Pipeline != nil {
		b.mu.Lock()
		b.speaking = true
		b.mu.Unlock()
		b.deps.Pipeline.Play(context.Background(), pcm)
	}
}

func (b *Bridge) handleStatus(status transport.Status) {
	switch status.State {
	case transport.StateConnecting:
		if status.RetryCount > 0 {
			b.deps.Telemetry.RecordReconnect()
		}
	case transport.StateError:
		b.deps.Telemetry.RecordError("connection")
		if errors.Is(status.LastError, transport.ErrRetriesExhausted) {
			b.log.Error("stream lost, automatic retries exhausted")
			b.failWaiter(status.LastError)
		}
	}
}

func (b *Bridge) handleAudioEvent(ctx context.Context, evt audio.Event) {
	switch e := evt.(type) {
	case audio.TurnCaptured:
		if len(e.PCM) == 0 {
			return
		}
		b.deps.Telemetry.RecordAudioTurn()
		b.sendAudioTurn(e.PCM)
	case audio.PlaybackStarted:
		b.deps.Telemetry.RecordPlayback()
	case audio.PlaybackFinished:
		b.mu.Lock()
		b.speaking = false
		active := b.active
		finished := b.finished
		b.mu.Unlock()
		// Hand the microphone back once the question finished playing.
		if active && !finished && b.deps.Pipeline != nil {
			if err := b.deps.Pipeline.StartCapture(ctx); err != nil {
				b.deps.Telemetry.RecordError("audio")
				b.log.Warn("failed to resume capture", slog.String("error", err.Error()))
			}
		}
	}
}

// sendAudioTurn streams one captured answer and commits the input buffer so
// the remote transcribes it.
func (b *Bridge) sendAudioTurn(pcm []byte) {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return
	}

	const chunkSize = 16 * 1024
	for off := 0; off < len(pcm); off += chunkSize {
		end := off + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		frame, err := protocol.AppendAudio(pcm[off:end])
		if err != nil {
			b.log.Warn("failed to encode audio append", slog.String("error", err.Error()))
			return
		}
		if err := client.Send(frame); err != nil {
			b.deps.Telemetry.RecordError("stream")
			b.log.Warn("failed to send audio", slog.String("error", err.Error()))
			return
		}
	}
	commit, err := protocol.CommitAudio()
	if err == nil {
		err = client.Send(commit)
	}
	if err != nil {
		b.deps.Telemetry.RecordError("stream")
		b.log.Warn("failed to commit audio turn", slog.String("error", err.Error()))
	}
}

// dispatchAnswer feeds one final user transcript through the engine. Runs off
// the event loop so remoteTurn can wait for the response events.
func (b *Bridge) dispatchAnswer(ctx context.Context, sessionID, text string) {
	b.mu.Lock()
	b.waiting = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.waiting = false
		b.mu.Unlock()
	}()

	reply, err := b.engine.Answer(ctx, text)
	if err != nil {
		b.log.Warn("answer dispatch failed", slog.String("error", err.Error()))
		b.deps.Telemetry.RecordError("engine")
		return
	}
	b.afterReply(ctx, sessionID, reply)
	// Intake prompts and completion are locally produced text, so they are
	// spoken explicitly; generated questions already streamed their audio.
	if reply.Phase == interview.PhaseIntake || reply.Transition || reply.IsComplete {
		b.speak(reply.Text)
	}
}

// afterReply applies the bookkeeping every engine reply needs.
func (b *Bridge) afterReply(ctx context.Context, sessionID string, reply interview.Reply) {
	if reply.Phase == interview.PhaseMain || reply.IsComplete {
		if reply.Outcome.Text != "" {
			b.deps.Telemetry.RecordQuestion(reply.Outcome.Fallback)
		}
		if b.deps.Store != nil && reply.Text != "" {
			_ = b.deps.Store.AppendEntry(ctx, eventstore.Entry{
				SessionID: sessionID,
				Kind:      eventstore.KindQuestion,
				Speaker:   string(interview.RoleAssistant),
				Payload:   []byte(reply.Text),
			})
		}
	}
	b.publishState(reply)

	if reply.IsComplete {
		b.mu.Lock()
		alreadyFinished := b.finished
		b.finished = true
		b.mu.Unlock()
		if !alreadyFinished {
			if b.deps.Pipeline != nil {
				b.deps.Pipeline.StopCapture()
			}
			b.submitFeedback(ctx, sessionID, b.deps.Telemetry.Snapshot())
		}
	}
}

// remoteTurn asks the live stream to produce the next question and waits for
// the matching response.done. The interviewer persona goes out as session
// instructions before the first generated question so the remote knows the
// candidate profile.
func (b *Bridge) remoteTurn(ctx context.Context, system string, history []interview.HistoryEntry) (string, error) {
	b.mu.Lock()
	client := b.client
	sentInstructions := b.instructions
	if client == nil {
		b.mu.Unlock()
		return "", errors.New("stream not connected")
	}
	waiter := make(chan turnResult, 1)
	b.waiter = waiter
	b.mu.Unlock()

	clearWaiter := func() {
		b.mu.Lock()
		if b.waiter == waiter {
			b.waiter = nil
		}
		b.mu.Unlock()
	}

	if system != "" && system != sentInstructions {
		if err := b.configureStream(system); err != nil {
			b.log.Warn("failed to send interviewer instructions", slog.String("error", err.Error()))
		} else {
			b.mu.Lock()
			b.instructions = system
			b.mu.Unlock()
		}
	}

	if len(history) > 0 {
		last := history[len(history)-1]
		if last.Role == interview.RoleUser {
			frame, err := protocol.SendText(string(last.Role), last.Content)
			if err == nil {
				err = client.Send(frame)
			}
			if err != nil {
				clearWaiter()
				return "", fmt.Errorf("send user turn: %w", err)
			}
		}
	}
	frame, err := protocol.RequestResponse()
	if err == nil {
		err = client.Send(frame)
	}
	if err != nil {
		clearWaiter()
		return "", fmt.Errorf("request response: %w", err)
	}

	timeout := time.Duration(b.cfg.Generate.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	select {
	case result := <-waiter:
		if result.err != nil {
			return "", result.err
		}
		return result.text, nil
	case <-time.After(timeout):
		clearWaiter()
		return "", errors.New("timed out waiting for response")
	case <-ctx.Done():
		clearWaiter()
		return "", ctx.Err()
	}
}

// localTurn produces the next question with the local text backend.
func (b *Bridge) localTurn(ctx context.Context, system string, history []interview.HistoryEntry) (string, error) {
	messages := make([]generate.Message, 0, len(history))
	for _, entry := range history {
		if entry.Role == interview.RoleSystem {
			continue
		}
		messages = append(messages, generate.Message{Role: string(entry.Role), Content: entry.Content})
	}
	return b.deps.Generator.Generate(ctx, generate.Request{System: system, Messages: messages})
}

// speak sends locally produced text to the remote for synthesis. Degraded
// sessions have no speech output; the text reply is the product.
func (b *Bridge) speak(text string) {
	b.mu.Lock()
	client := b.client
	degraded := b.degraded
	b.mu.Unlock()
	if degraded || client == nil || text == "" {
		return
	}
	frame, err := protocol.SendText(string(interview.RoleAssistant), text)
	if err == nil {
		err = client.Send(frame)
	}
	if err == nil {
		var req []byte
		if req, err = protocol.RequestResponse(); err == nil {
			err = client.Send(req)
		}
	}
	if err != nil {
		b.log.Warn("failed to send assistant text", slog.String("error", err.Error()))
	}
}

func (b *Bridge) configureStream(instructions string) error {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return errors.New("stream not connected")
	}
	frame, err := protocol.ConfigureSession(protocol.SessionSettings{
		Voice:                 b.cfg.Provision.Voice,
		Locale:                b.cfg.Provision.Locale,
		SpeakingRate:          b.cfg.Provision.SpeakingRate,
		Tone:                  b.cfg.Provision.Tone,
		Instructions:          instructions,
		NoiseSuppression:      b.cfg.Provision.NoiseSuppression,
		EchoCancellation:      b.cfg.Provision.EchoCancellation,
		InterruptionDetection: b.cfg.Provision.InterruptionDetection,
		InputSampleRate:       b.cfg.Provision.SampleRate,
	})
	if err != nil {
		return err
	}
	return client.Send(frame)
}

func (b *Bridge) failWaiter(err error) {
	b.mu.Lock()
	waiter := b.waiter
	b.waiter = nil
	b.mu.Unlock()
	if waiter != nil {
		waiter <- turnResult{err: err}
	}
}

func (b *Bridge) recordSessionStart(ctx context.Context, sessionID string, degraded bool) {
	if b.deps.Store == nil {
		return
	}
	if err := b.deps.Store.CreateSession(ctx, sessionID, b.cfg.Interview.Type, b.cfg.Interview.Position, degraded); err != nil {
		b.log.Warn("failed to record session", slog.String("error", err.Error()))
		return
	}
	_ = b.deps.Store.AppendEntry(ctx, eventstore.Entry{
		SessionID: sessionID, Kind: eventstore.KindSessionStarted,
	})
}

func (b *Bridge) recordTranscript(ctx context.Context, sessionID string, entry protocol.TranscriptEntry) {
	b.deps.Telemetry.RecordTranscript(true, entry.Confidence)
	if b.deps.Store != nil {
		_ = b.deps.Store.AppendEntry(ctx, eventstore.Entry{
			SessionID: sessionID,
			Kind:      eventstore.KindTranscript,
			Speaker:   string(entry.Speaker),
			Payload:   []byte(entry.Text),
		})
	}
	b.deps.Tap.PublishTranscript(sessionID, entry)
}

func (b *Bridge) recordMetrics(ctx context.Context, sessionID string, metrics telemetry.Metrics) {
	if b.deps.Store == nil {
		return
	}
	payload, err := json.Marshal(metrics)
	if err != nil {
		b.log.Warn("failed to encode metrics", slog.String("error", err.Error()))
		return
	}
	_ = b.deps.Store.AppendEntry(ctx, eventstore.Entry{
		SessionID: sessionID, Kind: eventstore.KindMetrics, Payload: payload,
	})
}

func (b *Bridge) publishState(reply interview.Reply) {
	b.mu.Lock()
	sessionID := b.sess.ID
	degraded := b.degraded
	b.mu.Unlock()
	b.deps.Tap.PublishState(sessionID, string(reply.Phase), reply.QuestionNumber, reply.MaxQuestions, degraded)
}

func (b *Bridge) submitFeedback(ctx context.Context, sessionID string, metrics telemetry.Metrics) {
	b.mu.Lock()
	if b.submitted {
		b.mu.Unlock()
		return
	}
	b.submitted = true
	b.mu.Unlock()

	if !b.deps.Feedback.Enabled() {
		return
	}
	report := feedback.Report{
		SessionID:  sessionID,
		Position:   b.cfg.Interview.Position,
		Type:       b.cfg.Interview.Type,
		Transcript: b.engine.History(),
		Metrics:    metrics,
	}
	if err := b.deps.Feedback.Submit(ctx, report); err != nil {
		b.log.Warn("feedback handoff failed", slog.String("error", err.Error()))
	}
}

// IsRecording reports whether the microphone is capturing.
func (b *Bridge) IsRecording() bool {
	return b.deps.Pipeline != nil && b.deps.Pipeline.IsRecording()
}

// IsSpeaking reports whether interviewer audio is playing.
func (b *Bridge) IsSpeaking() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speaking
}

// IsWaiting reports whether an answer is being processed.
func (b *Bridge) IsWaiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting
}

// IsActive reports whether a session is running.
func (b *Bridge) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// IsDegraded reports whether the session is running locally without speech.
func (b *Bridge) IsDegraded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.degraded
}

// IsInterviewFinished reports whether the interview reached completion.
func (b *Bridge) IsInterviewFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

// OpeningPrompt returns the greeting spoken when the session started.
func (b *Bridge) OpeningPrompt() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opening
}

// CurrentSession returns the provisioned session handle.
func (b *Bridge) CurrentSession() Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sess
}

// Phase returns the interview's current phase.
func (b *Bridge) Phase() interview.Phase {
	return b.engine.Phase()
}

// InterviewContext returns the engine's bookkeeping snapshot.
func (b *Bridge) InterviewContext() interview.Context {
	return b.engine.Context()
}

// Transcript returns the durable conversation history.
func (b *Bridge) Transcript() []interview.HistoryEntry {
	return b.engine.History()
}

// Metrics returns the live telemetry snapshot.
func (b *Bridge) Metrics() telemetry.Metrics {
	return b.deps.Telemetry.Snapshot()
}
