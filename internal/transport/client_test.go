package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxprep/voxprep-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastStreamConfig() config.StreamConfig {
	return config.StreamConfig{
		ProtocolVersion:    "2024-10-01",
		Deployment:         "test",
		HandshakeTimeoutMS: 2000,
		WriteTimeoutMS:     1000,
		BaseRetryDelayMS:   5,
		BackoffFactor:      2.0,
		MaxRetryDelayMS:    50,
		RetryJitterMS:      0,
		MaxRetries:         5,
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConnectAndReceive(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("version") != "2024-10-01" {
			t.Errorf("missing protocol version query parameter")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session.created"}`))
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := New(fastStreamConfig(), wsURL(server), "tok-1", newLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case msg := <-client.Messages():
		if !strings.Contains(string(msg.Data), "session.created") {
			t.Fatalf("unexpected message: %s", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}

	if got := client.Status().State; got != StateConnected {
		t.Fatalf("expected connected, got %s", got)
	}

	client.Close(websocket.CloseNormalClosure, "done")
	client.Close(websocket.CloseNormalClosure, "done") // idempotent
	if got := client.Status().State; got != StateClosed {
		t.Fatalf("expected closed, got %s", got)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var connections atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connections.Add(1)
		if n == 1 {
			// Drop the first connection abruptly to trigger the retry path.
			conn.Close()
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"transcript.final","text":"back"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := New(fastStreamConfig(), wsURL(server), "tok", newLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close(websocket.CloseNormalClosure, "")

	select {
	case msg := <-client.Messages():
		if !strings.Contains(string(msg.Data), "back") {
			t.Fatalf("unexpected message after reconnect: %s", msg.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message after reconnect")
	}

	status := client.Status()
	if status.State != StateConnected {
		t.Fatalf("expected connected after reconnect, got %s", status.State)
	}
	if status.RetryCount < 1 {
		t.Fatalf("expected retry count >= 1, got %d", status.RetryCount)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))

	cfg := fastStreamConfig()
	cfg.MaxRetries = 3
	client, err := New(cfg, wsURL(server), "tok", newLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Refuse all reconnect attempts.
	server.Close()

	deadline := time.After(5 * time.Second)
	for {
		status := client.Status()
		if status.State == StateError {
			if status.RetryCount != 3 {
				t.Fatalf("expected 3 attempts, got %d", status.RetryCount)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("transport never reached error state, currently %s", status.State)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSendRequiresConnection(t *testing.T) {
	client, err := New(fastStreamConfig(), "ws://localhost:1/stream", "", newLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Send([]byte("{}")); err == nil {
		t.Fatal("expected send to fail before connect")
	}
}
