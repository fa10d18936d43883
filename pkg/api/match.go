package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hooktrigger/internal"
	"hooktrigger/pkg/trigger"
)

// MatchHandler evaluates a posted webhook payload without publishing, for
// checking trigger configurations against real events.
//
//	POST ?provider=github&event=push   body: raw webhook payload
type MatchHandler struct {
	// Dispatcher must be built without a publisher.
	Dispatcher *internal.Dispatcher
	MaxBody    int64
	Logger     zerolog.Logger
}

func (h *MatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	provider := trigger.Provider(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("provider"))))
	event := strings.TrimSpace(r.URL.Query().Get("event"))
	if provider == "" || event == "" {
		http.Error(w, "missing provider or event", http.StatusBadRequest)
		return
	}
	if h.MaxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBody)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	prepared, err := h.Dispatcher.Engine().PrepareAllRaw(provider, event, body)
	switch {
	case errors.Is(err, trigger.ErrUnsupportedEvent), errors.Is(err, trigger.ErrMalformedPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.Logger.Error().Err(err).Msg("prepare failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	reports, err := h.Dispatcher.DispatchAll(r.Context(), uuid.NewString(), prepared)
	if err != nil {
		var lookupErr *trigger.ConfigLookupError
		if errors.As(err, &lookupErr) {
			http.Error(w, "pipeline lookup failed", http.StatusBadGateway)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, internal.ReportBody(reports))
}
