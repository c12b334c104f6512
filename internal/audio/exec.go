package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/voxprep/voxprep-core/internal/config"
)

// execDevice captures raw little-endian 16-bit PCM from an external
// command's stdout (for example arecord or sox in raw mode).
type execDevice struct {
	cmd []string
	cfg config.AudioConfig

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewExecDevice(cfg config.AudioConfig) (CaptureDevice, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.CaptureCommand)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	return &execDevice{cmd: args, cfg: cfg}, nil
}

func (d *execDevice) Start(ctx context.Context) (<-chan Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	command := exec.CommandContext(runCtx, d.cmd[0], d.cmd[1:]...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	if err := command.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start capture command: %w", err)
	}
	d.cancel = cancel

	frameBytes := d.cfg.SampleRate * d.cfg.Channels * 2 * d.cfg.FrameDurationMS / 1000
	frames := make(chan Frame, 64)

	go func() {
		defer close(frames)
		defer command.Wait()
		buf := make([]byte, frameBytes)
		for {
			if _, err := io.ReadFull(stdout, buf); err != nil {
				return
			}
			frame := Frame{
				Data:       append([]byte(nil), buf...),
				Timestamp:  time.Now(),
				SampleRate: d.cfg.SampleRate,
				Channels:   d.cfg.Channels,
			}
			select {
			case frames <- frame:
			case <-runCtx.Done():
				return
			}
		}
	}()
	return frames, nil
}

func (d *execDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// execPlayer writes the payload to a temporary WAV file and hands it to an
// external playback command (for example aplay).
type execPlayer struct {
	cmd []string
	mu  sync.Mutex
}

func NewExecPlayer(command string) (Player, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command is empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (p *execPlayer) Play(ctx context.Context, pcm []byte, sampleRate, channels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "voxprep_play_*.wav")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := WriteWAV(file, pcm, sampleRate, channels); err != nil {
		return err
	}

	args := append([]string{}, p.cmd[1:]...)
	args = append(args, file.Name())
	command := exec.CommandContext(ctx, p.cmd[0], args...)
	if err := command.Run(); err != nil {
		return fmt.Errorf("playback command failed: %w", err)
	}
	return nil
}
