package protocol

import "time"

// Wire message types exchanged with the remote speech service. The stream is
// JSON control messages; synthesized audio arrives base64-encoded inside
// response.audio.delta payloads.
const (
	TypeSessionCreated  = "session.created"
	TypeTranscriptPart  = "transcript.partial"
	TypeTranscriptFinal = "transcript.final"
	TypeAudioDelta      = "response.audio.delta"
	TypeTextDelta       = "response.text.delta"
	TypeResponseDone    = "response.done"
	TypeError           = "error"

	TypeSessionUpdate = "session.update"
	TypeAudioAppend   = "input_audio_buffer.append"
	TypeAudioCommit   = "input_audio_buffer.commit"
	TypeAudioClear    = "input_audio_buffer.clear"
	TypeItemCreate    = "conversation.item.create"
	TypeResponseStart = "response.create"
)

// Subjects for the optional observability bus tap.
const (
	SubjectSessionState    = "interview.session.state"
	SubjectTranscriptFinal = "interview.transcript.final"
	SubjectHeartbeat       = "interview.telemetry.heartbeat"
)

// Speaker identifies the source of a transcript entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// TranscriptEntry is one provisional or durable piece of recognized speech.
// Partial entries are superseded by the final entry for the same item.
type TranscriptEntry struct {
	ID         string             `json:"id"`
	Timestamp  time.Time          `json:"timestamp"`
	Speaker    Speaker            `json:"speaker"`
	Text       string             `json:"text"`
	Confidence float64            `json:"confidence,omitempty"`
	IsPartial  bool               `json:"is_partial"`
	Sentiment  *SentimentAnalysis `json:"sentiment,omitempty"`
}

// SentimentAnalysis is an optional signal attached to a transcript entry.
// It never blocks conversation progress.
type SentimentAnalysis struct {
	Score            float64  `json:"score"`
	Magnitude        float64  `json:"magnitude"`
	Label            string   `json:"label"`
	Confidence       float64  `json:"confidence"`
	StressIndicators []string `json:"stress_indicators,omitempty"`
}

// SessionSettings is the configuration sent on session.update after the
// stream opens.
type SessionSettings struct {
	Voice                 string  `json:"voice"`
	Locale                string  `json:"locale"`
	SpeakingRate          float64 `json:"speaking_rate,omitempty"`
	Tone                  string  `json:"tone,omitempty"`
	Instructions          string  `json:"instructions,omitempty"`
	InputSampleRate       int     `json:"input_sample_rate,omitempty"`
	NoiseSuppression      bool    `json:"noise_suppression,omitempty"`
	EchoCancellation      bool    `json:"echo_cancellation,omitempty"`
	InterruptionDetection bool    `json:"interruption_detection,omitempty"`
	Temperature           float64 `json:"temperature,omitempty"`
	MaxTokens             int     `json:"max_tokens,omitempty"`
}

type sessionCreatedPayload struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Voice     string `json:"voice,omitempty"`
	Model     string `json:"model,omitempty"`
}

type transcriptPayload struct {
	Type       string             `json:"type"`
	ItemID     string             `json:"item_id"`
	Text       string             `json:"text"`
	Confidence float64            `json:"confidence,omitempty"`
	Sentiment  *SentimentAnalysis `json:"sentiment,omitempty"`
}

type audioDeltaPayload struct {
	Type     string `json:"type"`
	ItemID   string `json:"item_id"`
	AudioB64 string `json:"audio"`
}

type textDeltaPayload struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

type responseDonePayload struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Text   string `json:"text"`
}

type errorPayload struct {
	Type  string `json:"type"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type sessionUpdatePayload struct {
	Type    string          `json:"type"`
	Session SessionSettings `json:"session"`
}

type audioAppendPayload struct {
	Type     string `json:"type"`
	AudioB64 string `json:"audio"`
}

type controlPayload struct {
	Type string `json:"type"`
}

type itemCreatePayload struct {
	Type string `json:"type"`
	Item struct {
		Role string `json:"role"`
		Text string `json:"text"`
	} `json:"item"`
}
