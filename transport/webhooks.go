package transport

import (
	"io"
	"net/http"
	"strings"

	"github.com/hireloop/go-intake/core"
	"github.com/hireloop/go-intake/webhooks"
)

// DefaultMaxBodyBytes caps inbound webhook bodies. Providers send small JSON
// envelopes; anything past this is hostile or broken.
const DefaultMaxBodyBytes int64 = 1 << 20

// WebhookHandler terminates provider HTTP deliveries and hands the raw
// request to the intake processor. It owns nothing beyond the HTTP shape;
// signature checks and parsing live in the provider adapters.
type WebhookHandler struct {
	Processor    *webhooks.Processor
	Instr        *core.Instrumentation
	MaxBodyBytes int64
}

func NewWebhookHandler(processor *webhooks.Processor, instr *core.Instrumentation) *WebhookHandler {
	return &WebhookHandler{
		Processor:    processor,
		Instr:        instr,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Handle returns the endpoint for one provider.
func (h *WebhookHandler) Handle(provider core.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil || h.Processor == nil {
			writeError(w, core.NewTransientError(nil, "transport: webhook processor is not configured", nil))
			return
		}

		body, err := readBody(r, h.maxBodyBytes())
		if err != nil {
			writeError(w, core.NewMalformedPayloadError(
				"transport: request body unreadable or over limit",
				map[string]any{"provider": string(provider)},
			))
			return
		}

		out, err := h.Processor.Process(r.Context(), core.InboundRequest{
			Provider: provider,
			Headers:  flattenHeaders(r.Header),
			Body:     body,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeInboundResult(w, out)
	}
}

func (h *WebhookHandler) maxBodyBytes() int64 {
	if h != nil && h.MaxBodyBytes > 0 {
		return h.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
}

// flattenHeaders keeps the first value per header under its canonical lowered
// name; the verifiers match header names case-insensitively.
func flattenHeaders(header http.Header) map[string]string {
	flattened := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) == 0 {
			continue
		}
		flattened[strings.ToLower(name)] = values[0]
	}
	return flattened
}

func writeInboundResult(w http.ResponseWriter, out core.InboundResult) {
	status := out.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if len(out.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(out.Body)
		return
	}
	payload := map[string]any{"accepted": out.Accepted}
	for key, value := range out.Metadata {
		payload[key] = value
	}
	writeJSON(w, status, payload)
}
