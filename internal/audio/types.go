package audio

import (
	"context"
	"time"
)

// Frame is one fixed-duration chunk of captured PCM. Frames are transient:
// they exist between capture and the transport, never persisted.
type Frame struct {
	Data       []byte
	Timestamp  time.Time
	SampleRate int
	Channels   int
}

// StopReason records why a capture run ended.
type StopReason string

const (
	StopSilence StopReason = "silence"
	StopCeiling StopReason = "ceiling"
	StopManual  StopReason = "manual"
	StopDevice  StopReason = "device_closed"
)

// CaptureDevice abstracts the platform microphone source.
type CaptureDevice interface {
	// Start begins producing frames until Stop is called or ctx is done.
	// An acquisition failure here is fatal to starting a session.
	Start(ctx context.Context) (<-chan Frame, error)
	Stop()
}

// Player abstracts platform audio output. Play blocks until the payload has
// been played to completion.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate, channels int) error
}

// Event is the tagged union emitted by the pipeline on a single channel.
type Event interface {
	audioEvent() string
}

// FrameCaptured is emitted for every captured frame while recording.
type FrameCaptured struct {
	Frame Frame
}

func (FrameCaptured) audioEvent() string { return "frame" }

// LevelMeasured is a periodic RMS reading used for voice-activity detection.
type LevelMeasured struct {
	RMS float64
	At  time.Time
}

func (LevelMeasured) audioEvent() string { return "level" }

// TurnCaptured hands the buffered audio of one finished spoken turn to the
// caller. It is delivered exactly once per capture run.
type TurnCaptured struct {
	PCM        []byte
	Duration   time.Duration
	Reason     StopReason
	SampleRate int
	Channels   int
}

func (TurnCaptured) audioEvent() string { return "turn" }

// PlaybackStarted fires when a synthesized response begins playing.
type PlaybackStarted struct{}

func (PlaybackStarted) audioEvent() string { return "playback_started" }

// PlaybackFinished fires when playback ends; Err is set when the payload
// could not be played (non-fatal, the turn proceeds text-only).
type PlaybackFinished struct {
	Err error
}

func (PlaybackFinished) audioEvent() string { return "playback_finished" }
