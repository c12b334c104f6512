package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voxprep/voxprep-core/internal/config"
)

// Session is the provisioned speech session handle: a short-lived credential
// and the stream URL to attach to.
type Session struct {
	ID         string    `json:"sessionId"`
	StreamURL  string    `json:"streamUrl"`
	Credential string    `json:"credential"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Provisioner obtains a fresh session from the provisioning service. One
// provision call per interview attempt.
type Provisioner interface {
	Provision(ctx context.Context) (Session, error)
}

type provisionRequest struct {
	Voice                 string  `json:"voice"`
	Locale                string  `json:"locale"`
	SpeakingRate          float64 `json:"speakingRate,omitempty"`
	Tone                  string  `json:"tone,omitempty"`
	NoiseSuppression      bool    `json:"noiseSuppression"`
	EchoCancellation      bool    `json:"echoCancellation"`
	InterruptionDetection bool    `json:"interruptionDetection"`
	SampleRate            int     `json:"sampleRate,omitempty"`
	InterviewType         string  `json:"interviewType,omitempty"`
	Position              string  `json:"position,omitempty"`
}

type httpProvisioner struct {
	cfg       config.ProvisionConfig
	interview config.InterviewConfig
	client    *http.Client
}

// NewHTTPProvisioner provisions sessions via a JSON POST to the configured
// endpoint.
func NewHTTPProvisioner(cfg config.ProvisionConfig, interview config.InterviewConfig) Provisioner {
	return &httpProvisioner{cfg: cfg, interview: interview, client: http.DefaultClient}
}

func (p *httpProvisioner) Provision(ctx context.Context) (Session, error) {
	body, err := json.Marshal(provisionRequest{
		Voice:                 p.cfg.Voice,
		Locale:                p.cfg.Locale,
		SpeakingRate:          p.cfg.SpeakingRate,
		Tone:                  p.cfg.Tone,
		NoiseSuppression:      p.cfg.NoiseSuppression,
		EchoCancellation:      p.cfg.EchoCancellation,
		InterruptionDetection: p.cfg.InterruptionDetection,
		SampleRate:            p.cfg.SampleRate,
		InterviewType:         p.interview.Type,
		Position:              p.interview.Position,
	})
	if err != nil {
		return Session{}, newError(ErrSession, "encode provision request", err)
	}

	if p.cfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Session{}, newError(ErrSession, "build provision request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Session{}, newError(ErrConnection, "call provision endpoint", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return Session{}, newError(ErrSession, "provision endpoint",
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return Session{}, newError(ErrValidation, "decode provision response", err)
	}
	if err := validateSession(sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func validateSession(sess Session) error {
	if strings.TrimSpace(sess.ID) == "" {
		return newError(ErrValidation, "provision response", fmt.Errorf("missing sessionId"))
	}
	if strings.TrimSpace(sess.StreamURL) == "" {
		return newError(ErrValidation, "provision response", fmt.Errorf("missing streamUrl"))
	}
	if strings.TrimSpace(sess.Credential) == "" {
		return newError(ErrValidation, "provision response", fmt.Errorf("missing credential"))
	}
	return nil
}
