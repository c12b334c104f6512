package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// decodePayload turns a synthesized payload into playable PCM. WAV containers
// are decoded; anything else is treated as raw PCM at the session format.
func decodePayload(payload []byte, fallbackRate, fallbackChannels int) ([]byte, int, int, error) {
	if len(payload) < 12 || string(payload[:4]) != "RIFF" {
		return payload, fallbackRate, fallbackChannels, nil
	}

	decoder := wav.NewDecoder(bytes.NewReader(payload))
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode wav payload: %w", err)
	}
	if buf.Format == nil {
		return nil, 0, 0, fmt.Errorf("wav payload missing format")
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, sample := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(sample)))
	}
	return pcm, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// WriteWAV encodes raw PCM into a WAV file, used when handing a captured
// turn to tooling that expects a container.
func WriteWAV(file *os.File, pcm []byte, sampleRate, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
