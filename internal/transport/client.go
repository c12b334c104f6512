package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/voxprep/voxprep-core/internal/config"
)

// State is the connection lifecycle state of the stream client.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
	StateClosed       State = "closed"
)

// Status is a snapshot of the connection state, retry count and last error.
type Status struct {
	State      State
	RetryCount int
	LastError  error
}

// Message is one inbound frame, re-emitted with no interpretation.
type Message struct {
	Binary bool
	Data   []byte
}

// ErrRetriesExhausted marks the terminal error state after the retry budget
// is spent. Only an explicit fresh session clears it.
var ErrRetriesExhausted = errors.New("transport: retry budget exhausted")

var errClosed = errors.New("transport: client closed")

// Client owns one bidirectional websocket stream to the speech service and
// reconnects with exponential backoff on non-clean disconnects.
type Client struct {
	cfg    config.StreamConfig
	wsURL  string
	header http.Header
	log    *slog.Logger
	dialer *websocket.Dialer

	messages chan Message
	statuses chan Status
	done     chan struct{}

	mu         sync.Mutex
	conn       *websocket.Conn
	state      State
	retryCount int
	lastErr    error

	writeMu   sync.Mutex
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New prepares a client for the given stream URL and short-lived credential.
// Protocol version and deployment identifier ride as query parameters; the
// credential is sent as a bearer header.
func New(cfg config.StreamConfig, streamURL, credential string, log *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(streamURL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	query := parsed.Query()
	query.Set("version", cfg.ProtocolVersion)
	query.Set("deployment", cfg.Deployment)
	parsed.RawQuery = query.Encode()

	header := make(http.Header)
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	return &Client{
		cfg:    cfg,
		wsURL:  parsed.String(),
		header: header,
		log:    log.With(slog.String("component", "transport")),
		dialer: &websocket.Dialer{
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeoutMS) * time.Millisecond,
		},
		messages: make(chan Message, 64),
		statuses: make(chan Status, 16),
		done:     make(chan struct{}),
		state:    StateIdle,
	}, nil
}

// Connect dials the stream and starts the read loop. It is the caller's one
// explicit connection attempt; reconnects after that are automatic.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting, nil)
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, c.header)
	if err != nil {
		c.setState(StateError, err)
		return fmt.Errorf("dial stream: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected, nil)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readLoop()
	}()
	return nil
}

// Send writes one text frame. The boolean mirrors whether the payload was
// accepted for transmission.
func (c *Client) Send(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

// SendBinary writes one binary frame.
func (c *Client) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return fmt.Errorf("transport: not connected (state=%s)", state)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if timeout := time.Duration(c.cfg.WriteTimeoutMS) * time.Millisecond; timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Messages yields inbound frames in delivery order.
func (c *Client) Messages() <-chan Message { return c.messages }

// Statuses yields state transitions, best effort.
func (c *Client) Statuses() <-chan Status { return c.statuses }

// Status returns the current connection snapshot.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, RetryCount: c.retryCount, LastError: c.lastErr}
}

// Close performs a caller-initiated shutdown. Safe to call more than once;
// the resulting closed state is terminal.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			c.writeMu.Lock()
			deadline := time.Now().Add(2 * time.Second)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
			c.writeMu.Unlock()
			_ = conn.Close()
		}
		c.setState(StateClosed, nil)
	})
	c.wg.Wait()
}

func (c *Client) readLoop() {
	defer close(c.messages)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setState(StateDisconnected, err)
				return
			}
			c.setState(StateDisconnected, err)
			if !c.reconnect() {
				return
			}
			continue
		}

		msg := Message{Binary: messageType == websocket.BinaryMessage, Data: append([]byte(nil), data...)}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

// reconnect runs strictly sequential retry attempts until one succeeds or
// the budget is spent. Returns false when the client should stop reading.
func (c *Client) reconnect() bool {
	policy := &backoff.ExponentialBackOff{
		InitialInterval:     time.Duration(c.cfg.BaseRetryDelayMS) * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          c.cfg.BackoffFactor,
		MaxInterval:         time.Duration(c.cfg.MaxRetryDelayMS) * time.Millisecond,
	}
	policy.Reset()

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		delay := policy.NextBackOff()
		if jitter := time.Duration(c.cfg.RetryJitterMS) * time.Millisecond; jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(jitter)))
		}
		if maxDelay := time.Duration(c.cfg.MaxRetryDelayMS) * time.Millisecond; delay > maxDelay {
			delay = maxDelay
		}

		c.log.Info("scheduling stream reconnect",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.cfg.MaxRetries),
			slog.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-c.done:
			return false
		}

		c.setConnecting(attempt)
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.cfg.HandshakeTimeoutMS)*time.Millisecond)
		conn, _, err := c.dialer.DialContext(ctx, c.wsURL, c.header)
		cancel()
		if err != nil {
			c.log.Warn("stream reconnect failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			c.setState(StateDisconnected, err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected, nil)
		c.log.Info("stream reconnected", slog.Int("attempt", attempt))
		return true
	}

	c.setState(StateError, ErrRetriesExhausted)
	c.log.Error("stream reconnect budget exhausted", slog.Int("attempts", c.cfg.MaxRetries))
	return false
}

func (c *Client) setConnecting(attempt int) {
	c.mu.Lock()
	c.state = StateConnecting
	c.retryCount = attempt
	status := Status{State: c.state, RetryCount: c.retryCount, LastError: c.lastErr}
	c.mu.Unlock()
	c.emitStatus(status)
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	// closed is terminal, never overwritten by a racing read loop.
	if c.state == StateClosed && state != StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	if err != nil {
		c.lastErr = err
	}
	status := Status{State: c.state, RetryCount: c.retryCount, LastError: c.lastErr}
	c.mu.Unlock()
	c.emitStatus(status)
}

func (c *Client) emitStatus(status Status) {
	select {
	case c.statuses <- status:
	default:
	}
}
