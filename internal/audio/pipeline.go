package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/voxprep/voxprep-core/internal/config"
)

// Pipeline owns microphone capture and synthesized-audio playback for the
// lifetime of one session. Silence detection is frame-driven: capture devices
// keep producing frames while the speaker is quiet, so activity timestamps
// advance with the frames themselves and the logic stays deterministic.
type Pipeline struct {
	cfg    config.AudioConfig
	device CaptureDevice
	player Player
	log    *slog.Logger

	events chan Event
	done   chan struct{}

	mu            sync.Mutex
	recording     bool
	playing       bool
	buffer        []byte
	startedAt     time.Time
	lastActivity  time.Time
	lastLevel     time.Time
	cancelCapture context.CancelFunc
	closed        bool

	wg sync.WaitGroup
}

func NewPipeline(cfg config.AudioConfig, device CaptureDevice, player Player, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		device: device,
		player: player,
		log:    log.With(slog.String("component", "audio-pipeline")),
		events: make(chan Event, 128),
		done:   make(chan struct{}),
	}
}

// Events yields pipeline events in order on a single channel.
func (p *Pipeline) Events() <-chan Event { return p.events }

// IsRecording reports whether a capture run is in progress.
func (p *Pipeline) IsRecording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recording
}

// IsPlaying reports whether synthesized audio is currently playing.
func (p *Pipeline) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// StartCapture acquires the capture device and begins buffering frames.
// A second call while recording is a no-op.
func (p *Pipeline) StartCapture(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("audio pipeline closed")
	}
	if p.recording {
		p.mu.Unlock()
		return nil
	}
	captureCtx, cancel := context.WithCancel(ctx)
	p.cancelCapture = cancel
	p.recording = true
	p.buffer = nil
	p.startedAt = time.Time{}
	p.lastActivity = time.Time{}
	p.lastLevel = time.Time{}
	p.mu.Unlock()

	frames, err := p.device.Start(captureCtx)
	if err != nil {
		p.mu.Lock()
		p.recording = false
		p.cancelCapture = nil
		p.mu.Unlock()
		cancel()
		return fmt.Errorf("acquire capture device: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.captureLoop(frames)
	}()
	return nil
}

// StopCapture ends the capture run and hands the buffered audio to the
// caller. Safe to call when not recording.
func (p *Pipeline) StopCapture() {
	p.finishCapture(StopManual)
}

func (p *Pipeline) captureLoop(frames <-chan Frame) {
	silenceWindow := time.Duration(p.cfg.SilenceWindowMS) * time.Millisecond
	ceiling := time.Duration(p.cfg.MaxRecordingMS) * time.Millisecond
	levelInterval := time.Duration(p.cfg.LevelIntervalMS) * time.Millisecond

	for frame := range frames {
		ts := frame.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}

		p.mu.Lock()
		if !p.recording {
			p.mu.Unlock()
			return
		}
		if p.startedAt.IsZero() {
			p.startedAt = ts
			p.lastActivity = ts
		}
		p.buffer = append(p.buffer, frame.Data...)

		rms := RMS(frame.Data)
		if rms >= float64(p.cfg.SilenceRMS) {
			p.lastActivity = ts
		}
		emitLevel := levelInterval <= 0 || p.lastLevel.IsZero() || ts.Sub(p.lastLevel) >= levelInterval
		if emitLevel {
			p.lastLevel = ts
		}
		silent := ts.Sub(p.lastActivity) >= silenceWindow
		ceilingHit := ts.Sub(p.startedAt) >= ceiling
		p.mu.Unlock()

		p.emit(FrameCaptured{Frame: frame})
		if emitLevel {
			p.emit(LevelMeasured{RMS: rms, At: ts})
		}

		switch {
		case ceilingHit:
			p.finishCapture(StopCeiling)
			return
		case silent:
			p.finishCapture(StopSilence)
			return
		}
	}

	// The device closed its frame channel (capture process exited or the
	// start context was cancelled). Deliver whatever was buffered so the run
	// always ends in a turn and the pipeline can be restarted.
	p.finishCapture(StopDevice)
}

// finishCapture delivers the buffered turn exactly once per capture run.
func (p *Pipeline) finishCapture(reason StopReason) {
	p.mu.Lock()
	if !p.recording {
		p.mu.Unlock()
		return
	}
	p.recording = false
	cancel := p.cancelCapture
	p.cancelCapture = nil
	pcm := p.buffer
	p.buffer = nil
	started := p.startedAt
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.device.Stop()

	var duration time.Duration
	if !started.IsZero() {
		duration = pcmDuration(len(pcm), p.cfg.SampleRate, p.cfg.Channels)
	}
	p.log.Info("capture stopped",
		slog.String("reason", string(reason)),
		slog.Duration("duration", duration),
		slog.Int("bytes", len(pcm)))

	p.emit(TurnCaptured{
		PCM:        pcm,
		Duration:   duration,
		Reason:     reason,
		SampleRate: p.cfg.SampleRate,
		Channels:   p.cfg.Channels,
	})
}

// Play decodes a synthesized payload (WAV or raw PCM) and plays it to
// completion. A playback failure is non-fatal: it is reported through the
// PlaybackFinished event and the session continues text-only for that turn.
func (p *Pipeline) Play(ctx context.Context, payload []byte) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.playing = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.emit(PlaybackStarted{})
		pcm, sampleRate, channels, err := decodePayload(payload, p.cfg.SampleRate, p.cfg.Channels)
		if err == nil {
			err = p.player.Play(ctx, pcm, sampleRate, channels)
		}
		if err != nil {
			p.log.Warn("playback failed", slog.String("error", err.Error()))
		}

		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		p.emit(PlaybackFinished{Err: err})
	}()
}

// Close releases the capture device and audio output. The orchestrator hooks
// this on session teardown and process unload so OS audio handles never leak
// across interview attempts.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	recording := p.recording
	p.recording = false
	cancel := p.cancelCapture
	p.cancelCapture = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if recording {
		p.device.Stop()
	}
	close(p.done)
	p.wg.Wait()
	close(p.events)
}

func (p *Pipeline) emit(event Event) {
	select {
	case p.events <- event:
	case <-p.done:
	}
}

// RMS computes the root mean square of little-endian 16-bit PCM samples.
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(n))
}

func pcmDuration(byteLen, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := byteLen / 2 / channels
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
