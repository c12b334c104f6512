package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxprep/voxprep-core/internal/config"
	"github.com/voxprep/voxprep-core/internal/interview"
	"github.com/voxprep/voxprep-core/internal/telemetry"
)

// Report is the payload handed to the feedback service when an interview
// finishes. The transcript preserves conversation order.
type Report struct {
	SessionID  string                   `json:"session_id"`
	Position   string                   `json:"position,omitempty"`
	Type       string                   `json:"interview_type,omitempty"`
	Transcript []interview.HistoryEntry `json:"transcript"`
	Metrics    telemetry.Metrics        `json:"metrics"`
	FinishedAt time.Time                `json:"finished_at"`
}

// Client submits completed interview transcripts for feedback generation.
// Submission failures are logged and returned but never retried here; the
// transcript stays available in the event store.
type Client struct {
	cfg     config.FeedbackConfig
	httpCli *http.Client
	log     *slog.Logger
}

func NewClient(cfg config.FeedbackConfig, log *slog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		httpCli: http.DefaultClient,
		log:     log.With(slog.String("component", "feedback")),
	}
}

// Enabled reports whether submissions are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled && c.cfg.Endpoint != ""
}

// Submit posts the report. A disabled client returns nil immediately.
func (c *Client) Submit(ctx context.Context, report Report) error {
	if !c.Enabled() {
		return nil
	}
	if report.FinishedAt.IsZero() {
		report.FinishedAt = time.Now().UTC()
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode feedback report: %w", err)
	}

	if c.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		c.log.Warn("feedback submission failed", slog.String("error", err.Error()))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		err := fmt.Errorf("feedback service returned status %s", resp.Status)
		c.log.Warn("feedback submission rejected", slog.String("status", resp.Status))
		return err
	}

	c.log.Info("feedback report submitted",
		slog.String("session_id", report.SessionID),
		slog.Int("transcript_entries", len(report.Transcript)))
	return nil
}
