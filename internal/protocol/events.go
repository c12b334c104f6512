package protocol

// Event is the tagged union of domain events produced by the adapter.
// Consumers dispatch with a type switch; one channel carries all kinds.
type Event interface {
	eventKind() string
}

// SessionCreated reports the remote session id and negotiated voice/model.
type SessionCreated struct {
	RemoteID string
	Voice    string
	Model    string
}

func (SessionCreated) eventKind() string { return TypeSessionCreated }

// TranscriptReceived carries a partial or final transcript entry.
type TranscriptReceived struct {
	Entry TranscriptEntry
}

func (e TranscriptReceived) eventKind() string {
	if e.Entry.IsPartial {
		return TypeTranscriptPart
	}
	return TypeTranscriptFinal
}

// AudioDelta is a decoded chunk of synthesized audio for playback.
type AudioDelta struct {
	ItemID string
	PCM    []byte
}

func (AudioDelta) eventKind() string { return TypeAudioDelta }

// TextDelta is incremental assistant text for streaming display.
type TextDelta struct {
	ItemID string
	Delta  string
}

func (TextDelta) eventKind() string { return TypeTextDelta }

// ResponseDone marks the end of an assistant response, with the full text.
type ResponseDone struct {
	ItemID string
	Text   string
}

func (ResponseDone) eventKind() string { return TypeResponseDone }

// RemoteError is a typed provider error. Recoverability is decided by the
// orchestrator, not here.
type RemoteError struct {
	Code    string
	Message string
}

func (RemoteError) eventKind() string { return TypeError }

// Unknown is an unrecognized message type, logged and ignored by consumers.
type Unknown struct {
	Type string
}

func (e Unknown) eventKind() string { return e.Type }
