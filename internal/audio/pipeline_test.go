package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/voxprep/voxprep-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{
		Mode:            "mock",
		SampleRate:      16000,
		Channels:        1,
		FrameDurationMS: 20,
		LevelIntervalMS: 100,
		SilenceRMS:      500,
		SilenceWindowMS: 2000,
		MaxRecordingMS:  30000,
	}
}

func pcmFrame(amplitude int16, samples int, at time.Time) Frame {
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return Frame{Data: data, Timestamp: at, SampleRate: 16000, Channels: 1}
}

func waitForTurn(t *testing.T, events <-chan Event) TurnCaptured {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event := <-events:
			if turn, ok := event.(TurnCaptured); ok {
				return turn
			}
		case <-deadline:
			t.Fatal("timed out waiting for captured turn")
		}
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("expected zero RMS for empty input, got %f", got)
	}
	loud := pcmFrame(4000, 160, time.Now())
	if got := RMS(loud.Data); got < 3999 || got > 4001 {
		t.Fatalf("expected RMS near 4000, got %f", got)
	}
	quiet := pcmFrame(0, 160, time.Now())
	if got := RMS(quiet.Data); got != 0 {
		t.Fatalf("expected zero RMS for silence, got %f", got)
	}
}

func TestSilenceAutoStop(t *testing.T) {
	device := NewMockDevice()
	pipeline := NewPipeline(testAudioConfig(), device, NewMockPlayer(), newLogger())
	defer pipeline.Close()

	if err := pipeline.StartCapture(context.Background()); err != nil {
		t.Fatalf("start capture: %v", err)
	}

	base := time.Now()
	// A loud frame establishes activity, then quiet frames span past the
	// 2000 ms silence window.
	device.Feed(pcmFrame(4000, 160, base))
	for i := 0; i < 25; i++ {
		device.Feed(pcmFrame(0, 160, base.Add(time.Duration(i+1)*100*time.Millisecond)))
	}

	turn := waitForTurn(t, pipeline.Events())
	if turn.Reason != StopSilence {
		t.Fatalf("expected silence stop, got %s", turn.Reason)
	}
	if len(turn.PCM) == 0 {
		t.Fatal("expected buffered audio in the turn")
	}
	if pipeline.IsRecording() {
		t.Fatal("expected recording to have stopped")
	}

	// The buffered audio is handed over exactly once.
	select {
	case event := <-pipeline.Events():
		if _, ok := event.(TurnCaptured); ok {
			t.Fatal("received a second turn for one capture run")
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLoudFramesResetSilenceWindow(t *testing.T) {
	device := NewMockDevice()
	pipeline := NewPipeline(testAudioConfig(), device, NewMockPlayer(), newLogger())
	defer pipeline.Close()

	if err := pipeline.StartCapture(context.Background()); err != nil {
		t.Fatalf("start capture: %v", err)
	}

	base := time.Now()
	// Quiet for 1900 ms, then speech, then quiet again: the window restarts.
	for i := 0; i < 19; i++ {
		device.Feed(pcmFrame(0, 160, base.Add(time.Duration(i)*100*time.Millisecond)))
	}
	device.Feed(pcmFrame(4000, 160, base.Add(1900*time.Millisecond)))
	for i := 0; i < 19; i++ {
		device.Feed(pcmFrame(0, 160, base.Add(time.Duration(2000+i*100)*time.Millisecond)))
	}

	if event, ok := <-drainUntilTurn(pipeline.Events(), 300*time.Millisecond); ok {
		t.Fatalf("capture stopped early: %+v", event)
	}
	if !pipeline.IsRecording() {
		t.Fatal("expected capture to still be running")
	}

	// Now exceed the window.
	device.Feed(pcmFrame(0, 160, base.Add(4000*time.Millisecond)))
	turn := waitForTurn(t, pipeline.Events())
	if turn.Reason != StopSilence {
		t.Fatalf("expected silence stop, got %s", turn.Reason)
	}
}

func drainUntilTurn(events <-chan Event, window time.Duration) chan Event {
	out := make(chan Event, 1)
	deadline := time.After(window)
	go func() {
		for {
			select {
			case event := <-events:
				if _, ok := event.(TurnCaptured); ok {
					out <- event
					return
				}
			case <-deadline:
				close(out)
				return
			}
		}
	}()
	return out
}

func TestRecordingCeiling(t *testing.T) {
	cfg := testAudioConfig()
	cfg.MaxRecordingMS = 3000
	device := NewMockDevice()
	pipeline := NewPipeline(cfg, device, NewMockPlayer(), newLogger())
	defer pipeline.Close()

	if err := pipeline.StartCapture(context.Background()); err != nil {
		t.Fatalf("start capture: %v", err)
	}

	base := time.Now()
	// Continuous speech: silence never triggers, the ceiling does.
	for i := 0; i <= 31; i++ {
		device.Feed(pcmFrame(4000, 160, base.Add(time.Duration(i)*100*time.Millisecond)))
	}

	turn := waitForTurn(t, pipeline.Events())
	if turn.Reason != StopCeiling {
		t.Fatalf("expected ceiling stop, got %s", turn.Reason)
	}
}

func TestManualStopHandsBuffer(t *testing.T) {
	device := NewMockDevice()
	pipeline := NewPipeline(testAudioConfig(), device, NewMockPlayer(), newLogger())
	defer pipeline.Close()

	if err := pipeline.StartCapture(context.Background()); err != nil {
		t.Fatalf("start capture: %v", err)
	}
	device.Feed(pcmFrame(4000, 160, time.Now()))
	time.Sleep(50 * time.Millisecond)
	pipeline.StopCapture()

	turn := waitForTurn(t, pipeline.Events())
	if turn.Reason != StopManual {
		t.Fatalf("expected manual stop, got %s", turn.Reason)
	}
	if len(turn.PCM) != 320 {
		t.Fatalf("expected one frame of buffered audio, got %d bytes", len(turn.PCM))
	}

	// Stop again: no second turn, no panic.
	pipeline.StopCapture()
}

func TestDeviceCloseFinishesCapture(t *testing.T) {
	device := NewMockDevice()
	pipeline := NewPipeline(testAudioConfig(), device, NewMockPlayer(), newLogger())
	defer pipeline.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if err := pipeline.StartCapture(ctx); err != nil {
		t.Fatalf("start capture: %v", err)
	}
	device.Feed(pcmFrame(4000, 160, time.Now()))
	time.Sleep(50 * time.Millisecond)

	// Cancelling the start context stops the device, which closes its frame
	// channel. The buffered audio must still come out as a turn.
	cancel()

	turn := waitForTurn(t, pipeline.Events())
	if turn.Reason != StopDevice {
		t.Fatalf("expected device stop, got %s", turn.Reason)
	}
	if len(turn.PCM) != 320 {
		t.Fatalf("expected one buffered frame, got %d bytes", len(turn.PCM))
	}
	if pipeline.IsRecording() {
		t.Fatal("expected recording flag cleared after device close")
	}

	// The pipeline must be usable again after the device went away.
	if err := pipeline.StartCapture(context.Background()); err != nil {
		t.Fatalf("restart capture: %v", err)
	}
	if !device.Feed(pcmFrame(4000, 160, time.Now())) {
		t.Fatal("device not re-acquired after restart")
	}
	pipeline.StopCapture()
	waitForTurn(t, pipeline.Events())
}

func TestStartCaptureDeviceFailure(t *testing.T) {
	device := NewMockDevice()
	device.FailStart = errors.New("mic busy")
	pipeline := NewPipeline(testAudioConfig(), device, NewMockPlayer(), newLogger())
	defer pipeline.Close()

	if err := pipeline.StartCapture(context.Background()); err == nil {
		t.Fatal("expected device acquisition failure")
	}
	if pipeline.IsRecording() {
		t.Fatal("expected pipeline not recording after failure")
	}
}

func TestPlaybackEvents(t *testing.T) {
	player := NewMockPlayer()
	pipeline := NewPipeline(testAudioConfig(), NewMockDevice(), player, newLogger())
	defer pipeline.Close()

	pipeline.Play(context.Background(), pcmFrame(1000, 160, time.Now()).Data)

	var started, finished bool
	deadline := time.After(2 * time.Second)
	for !(started && finished) {
		select {
		case event := <-pipeline.Events():
			switch e := event.(type) {
			case PlaybackStarted:
				started = true
			case PlaybackFinished:
				finished = true
				if e.Err != nil {
					t.Fatalf("unexpected playback error: %v", e.Err)
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for playback events")
		}
	}
	if len(player.Played()) != 1 {
		t.Fatalf("expected one played payload, got %d", len(player.Played()))
	}
}

func TestPlaybackFailureIsNonFatal(t *testing.T) {
	player := NewMockPlayer()
	player.Fail = errors.New("output device gone")
	pipeline := NewPipeline(testAudioConfig(), NewMockDevice(), player, newLogger())
	defer pipeline.Close()

	pipeline.Play(context.Background(), []byte{0, 0})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-pipeline.Events():
			if finished, ok := event.(PlaybackFinished); ok {
				if finished.Err == nil {
					t.Fatal("expected playback error to be reported")
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for playback finish")
		}
	}
}
