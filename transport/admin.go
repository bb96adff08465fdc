package transport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hireloop/go-intake/command"
	"github.com/hireloop/go-intake/core"
	"github.com/hireloop/go-intake/query"
)

// AdminHandler exposes the operations surface: ledger inspection, dead
// letter replay, and CRM-side interview mutations.
type AdminHandler struct {
	GetEvent        *query.GetEventQuery
	ListDeadLetters *query.ListDeadLettersQuery
	GetInterview    *query.GetInterviewQuery

	ReplayEvent         *command.ReplayEventCommand
	CancelInterview     *command.CancelInterviewCommand
	RescheduleInterview *command.RescheduleInterviewCommand

	Transcripts core.TranscriptSink
}

func (h *AdminHandler) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	msg := query.GetEventMessage{
		Provider: core.Provider(chi.URLParam(r, "provider")),
		EventID:  chi.URLParam(r, "eventID"),
	}
	if err := msg.Validate(); err != nil {
		writeError(w, err)
		return
	}
	event, err := h.GetEvent.Query(r.Context(), msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *AdminHandler) HandleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, core.NewMalformedPayloadError("transport: limit must be an integer", nil))
			return
		}
		limit = parsed
	}
	msg := query.ListDeadLettersMessage{Limit: limit}
	if err := msg.Validate(); err != nil {
		writeError(w, err)
		return
	}
	events, err := h.ListDeadLetters.Query(r.Context(), msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": events})
}

func (h *AdminHandler) HandleReplayEvent(w http.ResponseWriter, r *http.Request) {
	msg := command.ReplayEventMessage{LedgerID: chi.URLParam(r, "ledgerID")}
	if err := msg.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.ReplayEvent.Execute(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"requeued": true, "ledger_id": msg.LedgerID})
}

func (h *AdminHandler) HandleGetInterview(w http.ResponseWriter, r *http.Request) {
	msg := query.GetInterviewMessage{MeetingRef: chi.URLParam(r, "meetingRef")}
	if err := msg.Validate(); err != nil {
		writeError(w, err)
		return
	}
	interview, err := h.GetInterview.Query(r.Context(), msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, interview)
}

func (h *AdminHandler) HandleCancelInterview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		// Reason is optional; an empty body cancels without one.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	msg := command.CancelInterviewMessage{
		MeetingRef: chi.URLParam(r, "meetingRef"),
		Reason:     body.Reason,
	}
	if err := msg.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.CancelInterview.Execute(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "meeting_ref": msg.MeetingRef})
}

func (h *AdminHandler) HandleRescheduleInterview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ScheduledAt     time.Time `json:"scheduled_at"`
		DurationMinutes int       `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, core.NewMalformedPayloadError("transport: invalid reschedule body", nil))
		return
	}
	msg := command.RescheduleInterviewMessage{
		MeetingRef:      chi.URLParam(r, "meetingRef"),
		ScheduledAt:     body.ScheduledAt,
		DurationMinutes: body.DurationMinutes,
	}
	if err := msg.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.RescheduleInterview.Execute(r.Context(), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rescheduled":  true,
		"meeting_ref":  msg.MeetingRef,
		"scheduled_at": msg.ScheduledAt.UTC(),
	})
}

// HandleTranscriptEvent is the downstream pipeline's callback: the
// transcription worker reports progress keyed by interview id.
func (h *AdminHandler) HandleTranscriptEvent(w http.ResponseWriter, r *http.Request) {
	if h.Transcripts == nil {
		writeError(w, core.NewTransientError(nil, "transport: transcript sink is not configured", nil))
		return
	}

	var body struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, core.NewMalformedPayloadError("transport: invalid transcript callback body", nil))
		return
	}

	interviewID := chi.URLParam(r, "interviewID")
	var err error
	switch core.TranscriptStatus(body.Status) {
	case core.TranscriptStatusProcessing:
		err = h.Transcripts.TranscriptStarted(r.Context(), interviewID)
	case core.TranscriptStatusCompleted:
		err = h.Transcripts.TranscriptCompleted(r.Context(), interviewID)
	case core.TranscriptStatusFailed:
		err = h.Transcripts.TranscriptFailed(r.Context(), interviewID, body.Reason)
	default:
		writeError(w, core.NewMalformedPayloadError(
			"transport: invalid transcript callback status",
			map[string]any{"status": body.Status},
		))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"interview_id": interviewID,
		"status":       body.Status,
	})
}
