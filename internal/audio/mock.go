package audio

import (
	"context"
	"sync"
	"time"
)

// MockDevice is a capture device fed by tests or the local terminal session.
type MockDevice struct {
	mu     sync.Mutex
	frames chan Frame
	open   bool

	// FailStart makes Start return an error, simulating an unavailable
	// microphone.
	FailStart error
}

func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

func (d *MockDevice) Start(ctx context.Context) (<-chan Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailStart != nil {
		return nil, d.FailStart
	}
	d.frames = make(chan Frame, 256)
	d.open = true
	frames := d.frames
	go func() {
		<-ctx.Done()
		d.Stop()
	}()
	return frames, nil
}

func (d *MockDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		close(d.frames)
		d.open = false
	}
}

// Feed injects a frame as if it came from the microphone. Returns false when
// the device is not capturing.
func (d *MockDevice) Feed(frame Frame) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return false
	}
	select {
	case d.frames <- frame:
		return true
	default:
		return false
	}
}

// MockPlayer plays instantly and records what it was asked to play.
type MockPlayer struct {
	mu     sync.Mutex
	played [][]byte

	// Delay simulates playback time.
	Delay time.Duration
	// Fail makes Play return this error.
	Fail error
}

func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

func (p *MockPlayer) Play(ctx context.Context, pcm []byte, sampleRate, channels int) error {
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.Fail != nil {
		return p.Fail
	}
	p.mu.Lock()
	p.played = append(p.played, append([]byte(nil), pcm...))
	p.mu.Unlock()
	return nil
}

// Played returns the payloads played so far.
func (p *MockPlayer) Played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.played))
	copy(out, p.played)
	return out
}
