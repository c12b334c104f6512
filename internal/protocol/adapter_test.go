package protocol

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestDecodeSessionCreated(t *testing.T) {
	raw := []byte(`{"type":"session.created","session_id":"sess-42","voice":"alloy","model":"rt-1"}`)
	event, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	created, ok := event.(SessionCreated)
	if !ok {
		t.Fatalf("expected SessionCreated, got %T", event)
	}
	if created.RemoteID != "sess-42" || created.Voice != "alloy" {
		t.Fatalf("unexpected payload: %+v", created)
	}
}

func TestDecodeTranscriptPartialAndFinal(t *testing.T) {
	partial, err := Decode([]byte(`{"type":"transcript.partial","item_id":"i1","text":"hel"}`))
	if err != nil {
		t.Fatalf("decode partial: %v", err)
	}
	entry := partial.(TranscriptReceived).Entry
	if !entry.IsPartial || entry.Text != "hel" || entry.Speaker != SpeakerUser {
		t.Fatalf("unexpected partial entry: %+v", entry)
	}

	final, err := Decode([]byte(`{"type":"transcript.final","item_id":"i1","text":"hello","confidence":0.93}`))
	if err != nil {
		t.Fatalf("decode final: %v", err)
	}
	entry = final.(TranscriptReceived).Entry
	if entry.IsPartial || entry.Text != "hello" || entry.Confidence != 0.93 {
		t.Fatalf("unexpected final entry: %+v", entry)
	}
}

func TestDecodeAudioDelta(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	raw := []byte(`{"type":"response.audio.delta","item_id":"r1","audio":"` + base64.StdEncoding.EncodeToString(pcm) + `"}`)
	event, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	delta := event.(AudioDelta)
	if string(delta.PCM) != string(pcm) {
		t.Fatalf("expected decoded pcm, got %v", delta.PCM)
	}

	if _, err := Decode([]byte(`{"type":"response.audio.delta","item_id":"r1","audio":"not-base64!"}`)); err == nil {
		t.Fatal("expected error for invalid base64 audio")
	}
}

func TestDecodeError(t *testing.T) {
	raw := []byte(`{"type":"error","error":{"code":"rate_limited","message":"slow down"}}`)
	event, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	remoteErr := event.(RemoteError)
	if remoteErr.Code != "rate_limited" || remoteErr.Message != "slow down" {
		t.Fatalf("unexpected error event: %+v", remoteErr)
	}
}

func TestDecodeUnknownTypeIsForwardCompatible(t *testing.T) {
	event, err := Decode([]byte(`{"type":"rate.limits.updated","limit":10}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := event.(Unknown); !ok {
		t.Fatalf("expected Unknown, got %T", event)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Fatal("expected envelope decode error")
	}
	if _, err := Decode([]byte(`{"text":"no type"}`)); err == nil {
		t.Fatal("expected missing type error")
	}
}

func TestOutboundBuilders(t *testing.T) {
	data, err := ConfigureSession(SessionSettings{Voice: "alloy", Locale: "en-US", InputSampleRate: 16000})
	if err != nil {
		t.Fatalf("configure session: %v", err)
	}
	var update map[string]any
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if update["type"] != TypeSessionUpdate {
		t.Fatalf("unexpected type: %v", update["type"])
	}

	data, err = AppendAudio([]byte{9, 9})
	if err != nil {
		t.Fatalf("append audio: %v", err)
	}
	var appendMsg map[string]string
	if err := json.Unmarshal(data, &appendMsg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if appendMsg["audio"] == "" {
		t.Fatal("expected base64 audio field")
	}

	for name, build := range map[string]func() ([]byte, error){
		"commit":   CommitAudio,
		"clear":    ClearAudio,
		"response": RequestResponse,
	} {
		data, err := build()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		var msg map[string]string
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("%s unmarshal: %v", name, err)
		}
		if msg["type"] == "" {
			t.Fatalf("%s missing type", name)
		}
	}

	data, err = SendText("user", "my answer")
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	var item itemCreatePayload
	if err := json.Unmarshal(data, &item); err != nil {
		t.Fatalf("unmarshal item: %v", err)
	}
	if item.Item.Role != "user" || item.Item.Text != "my answer" {
		t.Fatalf("unexpected item payload: %+v", item)
	}
}
