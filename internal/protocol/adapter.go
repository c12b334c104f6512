package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Decode translates one raw inbound stream message into a domain event.
// A decode failure is reported to the caller as an error; it is never a
// reason to tear down the connection.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("message missing type")
	}

	switch envelope.Type {
	case TypeSessionCreated:
		var payload sessionCreatedPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		return SessionCreated{RemoteID: payload.SessionID, Voice: payload.Voice, Model: payload.Model}, nil
	case TypeTranscriptPart, TypeTranscriptFinal:
		var payload transcriptPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		id := payload.ItemID
		if id == "" {
			id = uuid.NewString()
		}
		return TranscriptReceived{Entry: TranscriptEntry{
			ID:         id,
			Timestamp:  time.Now().UTC(),
			Speaker:    SpeakerUser,
			Text:       payload.Text,
			Confidence: payload.Confidence,
			IsPartial:  envelope.Type == TypeTranscriptPart,
			Sentiment:  payload.Sentiment,
		}}, nil
	case TypeAudioDelta:
		var payload audioDeltaPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		pcm, err := base64.StdEncoding.DecodeString(payload.AudioB64)
		if err != nil {
			return nil, fmt.Errorf("decode audio delta payload: %w", err)
		}
		return AudioDelta{ItemID: payload.ItemID, PCM: pcm}, nil
	case TypeTextDelta:
		var payload textDeltaPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		return TextDelta{ItemID: payload.ItemID, Delta: payload.Delta}, nil
	case TypeResponseDone:
		var payload responseDonePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		return ResponseDone{ItemID: payload.ItemID, Text: payload.Text}, nil
	case TypeError:
		var payload errorPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
		}
		return RemoteError{Code: payload.Error.Code, Message: payload.Error.Message}, nil
	default:
		return Unknown{Type: envelope.Type}, nil
	}
}

// ConfigureSession builds the session.update message sent once after the
// stream opens.
func ConfigureSession(settings SessionSettings) ([]byte, error) {
	return json.Marshal(sessionUpdatePayload{Type: TypeSessionUpdate, Session: settings})
}

// AppendAudio builds an input_audio_buffer.append message for one PCM frame.
func AppendAudio(pcm []byte) ([]byte, error) {
	return json.Marshal(audioAppendPayload{Type: TypeAudioAppend, AudioB64: base64.StdEncoding.EncodeToString(pcm)})
}

// CommitAudio marks the buffered input audio as a finished utterance.
func CommitAudio() ([]byte, error) {
	return json.Marshal(controlPayload{Type: TypeAudioCommit})
}

// ClearAudio discards any buffered input audio.
func ClearAudio() ([]byte, error) {
	return json.Marshal(controlPayload{Type: TypeAudioClear})
}

// SendText builds a conversation.item.create message carrying candidate text.
func SendText(role, text string) ([]byte, error) {
	payload := itemCreatePayload{Type: TypeItemCreate}
	payload.Item.Role = role
	payload.Item.Text = text
	return json.Marshal(payload)
}

// RequestResponse asks the service to produce the next assistant turn.
func RequestResponse() ([]byte, error) {
	return json.Marshal(controlPayload{Type: TypeResponseStart})
}
