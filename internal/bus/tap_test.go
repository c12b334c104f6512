package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/voxprep/voxprep-core/internal/config"
	"github.com/voxprep/voxprep-core/internal/natsserver"
	"github.com/voxprep/voxprep-core/internal/protocol"
	"github.com/voxprep/voxprep-core/internal/telemetry"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startBus(t *testing.T) *Client {
	t.Helper()
	// Port -1 asks the server for a random free port.
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, newLogger())
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := Connect(config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestTapPublishesStateAndTranscript(t *testing.T) {
	client := startBus(t)

	states := make(chan *nats.Msg, 4)
	if _, err := client.Conn().ChanSubscribe(protocol.SubjectSessionState, states); err != nil {
		t.Fatalf("subscribe state: %v", err)
	}
	transcripts := make(chan *nats.Msg, 4)
	if _, err := client.Conn().ChanSubscribe(protocol.SubjectTranscriptFinal, transcripts); err != nil {
		t.Fatalf("subscribe transcript: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	tap := NewTap(context.Background(), client, time.Hour, nil, newLogger())
	defer tap.Close()

	tap.PublishState("sess-1", "main-interview", 3, 10, false)
	tap.PublishTranscript("sess-1", protocol.TranscriptEntry{
		ID: "t-1", Speaker: protocol.SpeakerUser, Text: "my answer", IsPartial: false,
	})

	select {
	case msg := <-states:
		var state stateMessage
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if state.SessionID != "sess-1" || state.QuestionNumber != 3 {
			t.Fatalf("unexpected state: %+v", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("state message not received")
	}

	select {
	case msg := <-transcripts:
		var tm transcriptMessage
		if err := json.Unmarshal(msg.Data, &tm); err != nil {
			t.Fatalf("decode transcript: %v", err)
		}
		if tm.Entry.Text != "my answer" {
			t.Fatalf("unexpected transcript: %+v", tm)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transcript message not received")
	}
}

func TestTapHeartbeat(t *testing.T) {
	client := startBus(t)

	beats := make(chan *nats.Msg, 4)
	if _, err := client.Conn().ChanSubscribe(protocol.SubjectHeartbeat, beats); err != nil {
		t.Fatalf("subscribe heartbeat: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	snapshot := func() telemetry.Metrics {
		return telemetry.Metrics{SessionID: "sess-2", QuestionsAsked: 4}
	}
	tap := NewTap(context.Background(), client, 10*time.Millisecond, snapshot, newLogger())
	defer tap.Close()

	select {
	case msg := <-beats:
		var m telemetry.Metrics
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			t.Fatalf("decode heartbeat: %v", err)
		}
		if m.SessionID != "sess-2" || m.QuestionsAsked != 4 {
			t.Fatalf("unexpected heartbeat: %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat not received")
	}
}

func TestTapSurvivesUnhealthyClient(t *testing.T) {
	tap := NewTap(context.Background(), nil, time.Hour, nil, newLogger())
	defer tap.Close()
	tap.PublishState("sess", "idle", 0, 0, true)
}
