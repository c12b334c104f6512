package runtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

type statusResponse struct {
	Active         bool   `json:"active"`
	Degraded       bool   `json:"degraded"`
	Recording      bool   `json:"recording"`
	Speaking       bool   `json:"speaking"`
	Waiting        bool   `json:"waiting"`
	Finished       bool   `json:"finished"`
	Phase          string `json:"phase"`
	QuestionNumber int    `json:"question_number"`
	MaxQuestions   int    `json:"max_questions"`
	SessionID      string `json:"session_id,omitempty"`
}

type answerRequest struct {
	Text string `json:"text"`
}

func (r *Runtime) registerSessionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /session/start", r.handleSessionStart)
	mux.HandleFunc("POST /session/stop", r.handleSessionStop)
	mux.HandleFunc("POST /session/retry", r.handleSessionRetry)
	mux.HandleFunc("POST /session/answer", r.handleSessionAnswer)
	mux.HandleFunc("POST /session/recording/start", r.handleRecordingStart)
	mux.HandleFunc("POST /session/recording/stop", r.handleRecordingStop)
	mux.HandleFunc("GET /session/status", r.handleSessionStatus)
	mux.HandleFunc("GET /session/transcript", r.handleSessionTranscript)
	mux.HandleFunc("GET /session/metrics", r.handleSessionMetrics)
	mux.HandleFunc("GET /session/timeline", r.handleSessionTimeline)
}

func (r *Runtime) handleSessionStart(w http.ResponseWriter, req *http.Request) {
	if err := r.bridge.StartVoiceSession(req.Context()); err != nil {
		r.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": r.bridge.CurrentSession().ID,
		"degraded":   r.bridge.IsDegraded(),
	})
}

func (r *Runtime) handleSessionStop(w http.ResponseWriter, req *http.Request) {
	r.bridge.StopVoiceSession(req.Context())
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}

func (r *Runtime) handleSessionRetry(w http.ResponseWriter, req *http.Request) {
	if err := r.bridge.RetryConnection(req.Context()); err != nil {
		r.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reconnected": true})
}

func (r *Runtime) handleSessionAnswer(w http.ResponseWriter, req *http.Request) {
	var body answerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "text must not be empty"})
		return
	}
	reply, err := r.bridge.SubmitText(req.Context(), body.Text)
	if err != nil {
		r.writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":            reply.Text,
		"phase":           string(reply.Phase),
		"question_number": reply.QuestionNumber,
		"max_questions":   reply.MaxQuestions,
		"complete":        reply.IsComplete,
		"fallback":        reply.Outcome.Fallback,
	})
}

func (r *Runtime) handleRecordingStart(w http.ResponseWriter, _ *http.Request) {
	if err := r.bridge.StartRecording(); err != nil {
		r.writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recording": true})
}

func (r *Runtime) handleRecordingStop(w http.ResponseWriter, _ *http.Request) {
	r.bridge.StopRecording()
	writeJSON(w, http.StatusOK, map[string]any{"recording": false})
}

func (r *Runtime) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	ivCtx := r.bridge.InterviewContext()
	writeJSON(w, http.StatusOK, statusResponse{
		Active:         r.bridge.IsActive(),
		Degraded:       r.bridge.IsDegraded(),
		Recording:      r.bridge.IsRecording(),
		Speaking:       r.bridge.IsSpeaking(),
		Waiting:        r.bridge.IsWaiting(),
		Finished:       r.bridge.IsInterviewFinished(),
		Phase:          string(r.bridge.Phase()),
		QuestionNumber: ivCtx.CurrentQuestionCount,
		MaxQuestions:   ivCtx.MaxQuestions,
		SessionID:      r.bridge.CurrentSession().ID,
	})
}

func (r *Runtime) handleSessionTranscript(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.bridge.Transcript())
}

func (r *Runtime) handleSessionMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.bridge.Metrics())
}

func (r *Runtime) handleSessionTimeline(w http.ResponseWriter, req *http.Request) {
	limit := 0
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	sessionID := req.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = r.bridge.CurrentSession().ID
	}
	entries, err := r.store.SessionTimeline(req.Context(), sessionID, limit)
	if err != nil {
		r.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (r *Runtime) writeError(w http.ResponseWriter, status int, err error) {
	r.logger.Warn("api request failed", slog.Int("status", status), slog.String("error", err.Error()))
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
