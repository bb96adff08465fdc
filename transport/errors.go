package transport

import (
	"encoding/json"
	"net/http"

	"github.com/hireloop/go-intake/core"
)

type errorBody struct {
	Message  string         `json:"message"`
	TextCode string         `json:"text_code"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeError normalizes err through the intake taxonomy and writes the
// resulting envelope. Handlers never pick their own status codes.
func writeError(w http.ResponseWriter, err error) {
	mapped := core.IntakeErrorMapper(err)
	if mapped == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	status := mapped.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorBody{
			Message:  mapped.Message,
			TextCode: mapped.TextCode,
			Metadata: mapped.Metadata,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
