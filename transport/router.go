package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hireloop/go-intake/core"
)

// NewRouter mounts the webhook ingress and the operations surface. The
// webhook routes are the hot path; the intake routes are for operators.
func NewRouter(webhookHandler *WebhookHandler, adminHandler *AdminHandler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	if webhookHandler != nil {
		r.Post("/webhooks/meet", webhookHandler.Handle(core.ProviderMeet))
		r.Post("/webhooks/mail", webhookHandler.Handle(core.ProviderMail))
	}

	if adminHandler != nil {
		r.Route("/intake", func(r chi.Router) {
			r.Get("/events/{provider}/{eventID}", adminHandler.HandleGetEvent)
			r.Get("/dead-letters", adminHandler.HandleListDeadLetters)
			r.Post("/dead-letters/{ledgerID}/replay", adminHandler.HandleReplayEvent)
			r.Get("/interviews/{meetingRef}", adminHandler.HandleGetInterview)
			r.Post("/interviews/{meetingRef}/cancel", adminHandler.HandleCancelInterview)
			r.Post("/interviews/{meetingRef}/reschedule", adminHandler.HandleRescheduleInterview)
		})
		r.Post("/pipeline/transcripts/{interviewID}", adminHandler.HandleTranscriptEvent)
	}

	return r
}
